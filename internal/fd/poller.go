package fd

// Poller is the I/O multiplexing backend trait (spec.md 4.B): register,
// init, term, poll, close, plus identity/preference used at startup to
// pick the best available backend for the platform.
type Poller interface {
	Name() string
	// Preference ranks backends when more than one is usable on this
	// platform; higher wins. epoll/kqueue outrank the generic poll()
	// fallback.
	Preference() int

	Init() error
	Term() error

	// Register applies a fd's coalesced pending changes (update_mask)
	// to the kernel: add, modify, or remove its watched event set.
	Register(fd int, wantRecv, wantSend bool) error
	Close(fd int) error

	// Poll blocks for up to expiryMS (or indefinitely if negative),
	// returning every fd that became ready. wake is a side-channel fd
	// (the thread's wake pipe) that, if armed, can interrupt the wait
	// early for a cross-thread tasklet wakeup.
	Poll(expiryMS int, wake int) ([]ReadyFD, error)
}

// ReadyFD is one fd's worth of events reported by a single Poll call.
type ReadyFD struct {
	FD     int
	Events uint32 // EvIn | EvPri | EvOut | EvErr | EvHup
}

// factories is populated by the platform-specific backend files via
// init(), each appending its constructor. NewBestPoller picks the
// highest-Preference backend that Init()s successfully.
var factories []func() (Poller, error)

func register(factory func() (Poller, error)) {
	factories = append(factories, factory)
}

// NewBestPoller constructs every registered backend and keeps the one
// with the highest Preference() that initializes without error,
// matching spec.md 4.B "The framework picks the highest-preference
// backend at startup".
func NewBestPoller() (Poller, error) {
	var best Poller
	var bestPref = -1
	var firstErr error

	for _, f := range factories {
		p, err := f()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := p.Init(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if p.Preference() > bestPref {
			if best != nil {
				best.Term()
			}
			best = p
			bestPref = p.Preference()
		} else {
			p.Term()
		}
	}

	if best == nil {
		return nil, firstErr
	}
	return best, nil
}
