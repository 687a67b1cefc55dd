//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package fd

import (
	"golang.org/x/sys/unix"
)

// kqueuePoller is the BSD/macOS backend (spec.md 4.B backend list:
// "epoll, kqueue, evports, poll, select").
type kqueuePoller struct {
	kqfd   int
	events []unix.Kevent_t
}

func init() {
	register(func() (Poller, error) { return &kqueuePoller{}, nil })
}

func (p *kqueuePoller) Name() string    { return "kqueue" }
func (p *kqueuePoller) Preference() int { return 300 }

func (p *kqueuePoller) Init() error {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return err
	}
	p.kqfd = kqfd
	p.events = make([]unix.Kevent_t, 1024)
	return nil
}

func (p *kqueuePoller) Term() error {
	return unix.Close(p.kqfd)
}

func (p *kqueuePoller) Register(f int, wantRecv, wantSend bool) error {
	var changes []unix.Kevent_t
	rFlags := uint16(unix.EV_DELETE)
	if wantRecv {
		rFlags = unix.EV_ADD | unix.EV_ENABLE
	}
	changes = append(changes, unix.Kevent_t{
		Ident: uint64(f), Filter: unix.EVFILT_READ, Flags: rFlags,
	})
	wFlags := uint16(unix.EV_DELETE)
	if wantSend {
		wFlags = unix.EV_ADD | unix.EV_ENABLE
	}
	changes = append(changes, unix.Kevent_t{
		Ident: uint64(f), Filter: unix.EVFILT_WRITE, Flags: wFlags,
	})

	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Close(f int) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(f), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(f), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(p.kqfd, changes, nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *kqueuePoller) Poll(expiryMS int, wake int) ([]ReadyFD, error) {
	var ts *unix.Timespec
	if expiryMS >= 0 {
		t := unix.NsecToTimespec(int64(expiryMS) * 1e6)
		ts = &t
	}
	if wake >= 0 {
		wev := []unix.Kevent_t{{Ident: uint64(wake), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE}}
		_, _ = unix.Kevent(p.kqfd, wev, nil, nil)
	}

	n, err := unix.Kevent(p.kqfd, nil, p.events, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	out := make([]ReadyFD, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fdNum := int(ev.Ident)
		if fdNum == wake {
			continue
		}
		var bits uint32
		switch ev.Filter {
		case unix.EVFILT_READ:
			bits |= EvIn
		case unix.EVFILT_WRITE:
			bits |= EvOut
		}
		if ev.Flags&unix.EV_EOF != 0 {
			bits |= EvHup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			bits |= EvErr
		}
		out = append(out, ReadyFD{FD: fdNum, Events: bits})
	}
	return out, nil
}
