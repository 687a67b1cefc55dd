package fd

import (
	"sync"

	"golang.org/x/sys/unix"
)

// pollPoller is the lowest-common-denominator O(n) backend (spec.md
// 4.B backend list includes "poll"), used when neither epoll nor
// kqueue is available, or deliberately selected for its lower
// Preference() in tests.
type pollPoller struct {
	mu      sync.Mutex
	watched map[int]*unix.PollFd
}

func init() {
	register(func() (Poller, error) { return &pollPoller{}, nil })
}

func (p *pollPoller) Name() string    { return "poll" }
func (p *pollPoller) Preference() int { return 100 }

func (p *pollPoller) Init() error {
	p.watched = make(map[int]*unix.PollFd)
	return nil
}

func (p *pollPoller) Term() error { return nil }

func (p *pollPoller) Register(f int, wantRecv, wantSend bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !wantRecv && !wantSend {
		delete(p.watched, f)
		return nil
	}
	var events int16
	if wantRecv {
		events |= unix.POLLIN
	}
	if wantSend {
		events |= unix.POLLOUT
	}
	p.watched[f] = &unix.PollFd{Fd: int32(f), Events: events}
	return nil
}

func (p *pollPoller) Close(f int) error {
	p.mu.Lock()
	delete(p.watched, f)
	p.mu.Unlock()
	return nil
}

func (p *pollPoller) Poll(expiryMS int, wake int) ([]ReadyFD, error) {
	p.mu.Lock()
	fds := make([]unix.PollFd, 0, len(p.watched)+1)
	for _, pf := range p.watched {
		fds = append(fds, *pf)
	}
	p.mu.Unlock()

	if wake >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(wake), Events: unix.POLLIN})
	}

	n, err := unix.Poll(fds, expiryMS)
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
	for _, pf := range fds {
		if pf.Revents == 0 || int(pf.Fd) == wake {
			continue
		}
		var bits uint32
		if pf.Revents&unix.POLLIN != 0 {
			bits |= EvIn
		}
		if pf.Revents&unix.POLLOUT != 0 {
			bits |= EvOut
		}
		if pf.Revents&unix.POLLERR != 0 {
			bits |= EvErr
		}
		if pf.Revents&unix.POLLHUP != 0 {
			bits |= EvHup
		}
		out = append(out, ReadyFD{FD: int(pf.Fd), Events: bits})
	}
	return out, nil
}
