//go:build linux

package fd

import (
	"golang.org/x/sys/unix"
)

// epollPoller is the Linux backend, built on golang.org/x/sys/unix
// rather than the lower-level syscall package the teacher's
// core/poller/epoll.go uses, since x/sys/unix is the maintained
// successor the rest of the ecosystem (including golang.org/x/net
// itself) is built on.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

func init() {
	register(func() (Poller, error) { return &epollPoller{}, nil })
}

func (p *epollPoller) Name() string    { return "epoll" }
func (p *epollPoller) Preference() int { return 300 }

func (p *epollPoller) Init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	p.events = make([]unix.EpollEvent, 1024)
	return nil
}

func (p *epollPoller) Term() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) Register(f int, wantRecv, wantSend bool) error {
	if !wantRecv && !wantSend {
		err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, f, nil)
		if err == unix.ENOENT {
			return nil
		}
		return err
	}

	var events uint32
	if wantRecv {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if wantSend {
		events |= unix.EPOLLOUT
	}
	ev := &unix.EpollEvent{Events: events, Fd: int32(f)}

	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, f, ev); err == unix.ENOENT {
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, f, ev)
	} else {
		return err
	}
}

func (p *epollPoller) Close(f int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, f, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (p *epollPoller) Poll(expiryMS int, wake int) ([]ReadyFD, error) {
	if wake >= 0 {
		wev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wake)}
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, wake, wev)
	}

	n, err := unix.EpollWait(p.epfd, p.events, expiryMS)
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
		if int(ev.Fd) == wake {
			continue
		}
		var bits uint32
		if ev.Events&unix.EPOLLIN != 0 {
			bits |= EvIn
		}
		if ev.Events&unix.EPOLLPRI != 0 {
			bits |= EvPri
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			bits |= EvOut
		}
		if ev.Events&unix.EPOLLERR != 0 {
			bits |= EvErr
		}
		if ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			bits |= EvHup
		}
		out = append(out, ReadyFD{FD: int(ev.Fd), Events: bits})
	}
	return out, nil
}
