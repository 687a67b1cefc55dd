// Package conn implements the connection layer: the mux-facing vtable,
// the pre-application handshake pipeline (L4 connect, SOCKS4, PROXY
// protocol, transport handshake, ALPN-driven mux selection), the
// single-subscriber wake model, and cross-thread takeover.
package conn

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/fastserver/lbcore/internal/fd"
	"github.com/fastserver/lbcore/internal/sched"
)

// Flag bits tracked on a Conn (spec.md 4.E, 7).
type Flag uint32

const (
	FlagError Flag = 1 << iota
	FlagRcvdProxy
	FlagWaitL4Conn
	FlagLingerRisk
	FlagLocal // PROXY v2 LOCAL command: no address rewrite
)

// ShutMode selects the semantics of a half-close.
type ShutMode int

const (
	ShutNormal ShutMode = iota // linger allowed
	ShutSilent                 // disables linger
)

type ShutRMode int

const (
	ShutRDrain ShutRMode = iota
	ShutRClean
)

// SubEvent is the bitmask passed to Subscribe.
type SubEvent uint32

const (
	SubRetryRecv SubEvent = 1 << iota
	SubRetrySend
)

// Mux is the vtable every multiplexer (H1, H2, passthrough TCP)
// implements, matching the public operations list in spec.md 4.E.
type Mux interface {
	Init(c *Conn) error
	Wake(c *Conn)
	Attach(c *Conn) (StreamHandle, error)
	Detach(sh StreamHandle)
	Destroy(c *Conn)
	GetFirstCS(c *Conn) StreamHandle
	AvailStreams(c *Conn) int
	UsedStreams(c *Conn) int
	RcvBuf(c *Conn) (int, error)
	SndBuf(c *Conn) (int, error)
	Subscribe(c *Conn, events SubEvent, tl *sched.Tasklet) error
	Unsubscribe(c *Conn, events SubEvent)
	ShutR(c *Conn, mode ShutRMode)
	ShutW(c *Conn, mode ShutMode)
	Takeover(c *Conn, newThread int) error
}

// StreamHandle is an opaque upper-layer stream reference; the real
// stream object lives above this package's scope (spec.md's
// out-of-scope upstream callbacks).
type StreamHandle any

// Transport is the handshake/IO trait a connection delegates to
// (raw TCP is a no-op handshake; TLS would implement this in a fuller
// build). Kept minimal since TLS itself is out of scope for this core.
type Transport interface {
	Handshake(c *Conn) error
	Recv(fdNum int, p []byte) (int, error)
	Send(fdNum int, p []byte) (int, error)
}

// RawTransport is a Transport that performs no handshake.
type RawTransport struct{}

func (RawTransport) Handshake(c *Conn) error                { return nil }
func (RawTransport) Recv(fdNum int, p []byte) (int, error)  { return 0, nil }
func (RawTransport) Send(fdNum int, p []byte) (int, error)  { return 0, nil }

// subscription is the at-most-one waiter a connection tracks.
type subscription struct {
	events SubEvent
	tl     *sched.Tasklet
}

// Conn is a single network connection plus everything the handshake
// pipeline and mux attach to it.
type Conn struct {
	FDNum  int
	Entry  *fd.Entry
	Thread int

	Src net.IP
	Dst net.IP

	SrcPort uint16
	DstPort uint16

	flags atomic.Uint32

	Transport Transport
	Mux       Mux
	muxCtx    any // mux-private per-connection state

	mu      sync.Mutex
	sub     *subscription
	dataAvail atomic.Bool

	shutR, shutW atomic.Bool

	TimeoutTask *sched.Task
}

// New creates a connection wrapping an accepted or dialed fd.
func New(fdNum int, entry *fd.Entry, thread int) *Conn {
	return &Conn{FDNum: fdNum, Entry: entry, Thread: thread, Transport: RawTransport{}}
}

func (c *Conn) SetFlag(f Flag) {
	for {
		old := c.flags.Load()
		if c.flags.CompareAndSwap(old, old|uint32(f)) {
			return
		}
	}
}

func (c *Conn) ClearFlag(f Flag) {
	for {
		old := c.flags.Load()
		if c.flags.CompareAndSwap(old, old&^uint32(f)) {
			return
		}
	}
}

func (c *Conn) HasFlag(f Flag) bool { return c.flags.Load()&uint32(f) != 0 }

// Subscribe registers tl to be woken on events. If data is already
// available (dataAvail is set) it wakes tl immediately instead of
// storing the subscription, per spec.md 4.E "calling subscribe when
// data is already available wakes the tasklet immediately and clears
// the subscription."
func (c *Conn) Subscribe(events SubEvent, tl *sched.Tasklet, sched_ *sched.Scheduler, callerTid int) error {
	c.mu.Lock()
	if c.dataAvail.Load() {
		c.dataAvail.Store(false)
		c.mu.Unlock()
		sched_.WakeTasklet(callerTid, tl)
		return nil
	}
	c.sub = &subscription{events: events, tl: tl}
	c.mu.Unlock()
	return nil
}

// Unsubscribe clears any pending subscription.
func (c *Conn) Unsubscribe() {
	c.mu.Lock()
	c.sub = nil
	c.mu.Unlock()
}

// NotifyDataAvailable wakes the current subscriber, if any, else marks
// data as available so the next Subscribe call wakes immediately.
func (c *Conn) NotifyDataAvailable(s *sched.Scheduler, callerTid int) {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		s.WakeTasklet(callerTid, sub.tl)
		return
	}
	c.dataAvail.Store(true)
}

// ShutW implements idempotent half-close of the write side (spec.md 8
// invariant 8: "calling shutw(NORMAL) more than once has the effect of
// exactly one"). mode == ShutSilent disables linger.
func (c *Conn) ShutW(mode ShutMode) {
	if c.shutW.Swap(true) {
		return // already shut; idempotent
	}
	if mode == ShutSilent {
		c.SetFlag(FlagLingerRisk)
	}
}

// ShutR implements half-close of the read side.
func (c *Conn) ShutR(mode ShutRMode) {
	c.shutR.Store(true)
}

// FullyShut reports whether both directions are closed, the
// precondition for actually tearing down the fd (spec.md 4.E "Full
// close happens only once both directions are shut and no reader is
// parked").
func (c *Conn) FullyShut() bool {
	c.mu.Lock()
	parked := c.sub != nil
	c.mu.Unlock()
	return c.shutR.Load() && c.shutW.Load() && !parked
}
