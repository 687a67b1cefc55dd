// Package fd implements the fixed-size FD table and the pluggable poller
// backends (spec.md 4.B). Every socket the core touches is registered
// here exactly once; the table entry tracks per-direction state with a
// small state machine (inactive -> active -> ready -> shut) and a
// thread-ownership mask enforced by CAS, never by a mutex, because the
// scheduler's hot path cannot afford to block on FD bookkeeping.
package fd

import (
	"sync/atomic"
)

// Direction bits within State, one set per direction (R, W), matching
// spec.md 3 "FD entry": {active_r, ready_r, shut_r, active_w, ready_w,
// shut_w, err}.
const (
	ActiveR uint32 = 1 << iota
	ReadyR
	ShutR
	ActiveW
	ReadyW
	ShutW
	Err
	LingerRisk
	Cloned
	Initialized
	EtPossible
)

// Poison is written into a freed-but-not-yet-closed slot's owner field
// so that any stray dereference faults loudly instead of silently
// touching reused memory (spec.md 4.B "Special values").
const Poison = 0xFDDEADFD

// Invalid is the sentinel for "no fd" (spec.md 4.B).
const Invalid = -1

// Entry is one row of the FD table. state, ev, thread_mask,
// running_mask and update_mask are all manipulated with atomics only;
// per spec.md 9 "bit-packed state words used with CAS" they must never
// be hidden behind a mutex-guarded struct.
type Entry struct {
	state        atomic.Uint32 // direction/err/flag bits above
	ev           atomic.Uint32 // events reported by the last poll: in/pri/out/err/hup
	threadMask   atomic.Uint64 // threads allowed to process this fd
	runningMask  atomic.Uint64 // threads currently processing this fd (single bit set)
	updateMask   atomic.Uint64 // threads with a pending (coalesced) state change

	owner atomic.Pointer[any] // opaque: *connection.Connection or *listener.Listener
	iocb  atomic.Pointer[func(fd int)]
}

// Event bits for ev, independent of State's direction bits.
const (
	EvIn uint32 = 1 << iota
	EvPri
	EvOut
	EvErr
	EvHup
)

// Table is the process-wide, fixed-size FD table. Index == fd.
type Table struct {
	entries []Entry
}

// NewTable allocates a table sized for file descriptors 0..maxFD-1.
func NewTable(maxFD int) *Table {
	return &Table{entries: make([]Entry, maxFD)}
}

// Get returns the entry for fd, or nil if fd is out of range.
func (t *Table) Get(fd int) *Entry {
	if fd < 0 || fd >= len(t.entries) {
		return nil
	}
	return &t.entries[fd]
}

// TryAcquireRunning attempts to CAS this thread's bit into running_mask.
// Returns true if no other thread currently holds the running bit.
// Invariant (spec.md 3): at most one thread has the running_mask bit set
// for any given fd at a time.
func (e *Entry) TryAcquireRunning(tid int) bool {
	bit := uint64(1) << uint(tid)
	for {
		cur := e.runningMask.Load()
		if cur != 0 && cur != bit {
			return false
		}
		if e.runningMask.CompareAndSwap(cur, bit) {
			return true
		}
	}
}

// ReleaseRunning clears this thread's running bit.
func (e *Entry) ReleaseRunning(tid int) {
	bit := uint64(1) << uint(tid)
	for {
		cur := e.runningMask.Load()
		if e.runningMask.CompareAndSwap(cur, cur&^bit) {
			return
		}
	}
}

// MarkUpdate coalesces a pending state change for thread tid; multiple
// want/stop calls within one tasklet execution collapse into a single
// bit until the next Poll() entry drains update_mask (spec.md 4.B).
func (e *Entry) MarkUpdate(tid int) {
	bit := uint64(1) << uint(tid)
	for {
		cur := e.updateMask.Load()
		if e.updateMask.CompareAndSwap(cur, cur|bit) {
			return
		}
	}
}

// ClearUpdate drops tid's pending-update bit, called once the backend
// has applied the coalesced change.
func (e *Entry) ClearUpdate(tid int) {
	bit := uint64(1) << uint(tid)
	for {
		cur := e.updateMask.Load()
		if e.updateMask.CompareAndSwap(cur, cur&^bit) {
			return
		}
	}
}

// WantRecv transitions R from inactive to active.
func (e *Entry) WantRecv() { e.setBits(ActiveR) }

// StopRecv transitions R from active back to inactive, clearing ready too.
func (e *Entry) StopRecv() { e.clearBits(ActiveR | ReadyR) }

// WantSend transitions W from inactive to active.
func (e *Entry) WantSend() { e.setBits(ActiveW) }

// StopSend transitions W from active back to inactive, clearing ready too.
func (e *Entry) StopSend() { e.clearBits(ActiveW | ReadyW) }

// ReportReadable marks R ready, following a poll report.
func (e *Entry) ReportReadable() { e.setBits(ReadyR) }

// ReportWritable marks W ready, following a poll report.
func (e *Entry) ReportWritable() { e.setBits(ReadyW) }

// ShutdownRecv marks R shut (recv() returned 0 or the kernel reported HUP).
func (e *Entry) ShutdownRecv() { e.setBits(ShutR) }

// ShutdownSend marks W shut.
func (e *Entry) ShutdownSend() { e.setBits(ShutW) }

func (e *Entry) setBits(bits uint32) {
	for {
		cur := e.state.Load()
		if e.state.CompareAndSwap(cur, cur|bits) {
			return
		}
	}
}

func (e *Entry) clearBits(bits uint32) {
	for {
		cur := e.state.Load()
		if e.state.CompareAndSwap(cur, cur&^bits) {
			return
		}
	}
}

// State returns the current direction/flag bitfield.
func (e *Entry) State() uint32 { return e.state.Load() }

// Reset poisons the entry before the fd slot is reused for a new socket.
func (e *Entry) Reset() {
	e.state.Store(0)
	e.ev.Store(0)
	e.threadMask.Store(0)
	e.runningMask.Store(0)
	e.updateMask.Store(0)
	var zero any = uintptr(Poison)
	e.owner.Store(&zero)
	e.iocb.Store(nil)
}
