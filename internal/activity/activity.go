// Package activity implements the per-thread stats surface spec.md 6
// requires the core to expose, adapted from the teacher's atomic
// per-handler counter style (core/observability/monitor.go) but keyed
// by thread id instead of handler name, and serialized with protobuf
// (google.golang.org/protobuf) for wire export instead of the
// teacher's ad-hoc fmt-based dump.
package activity

import "sync/atomic"

// Counters holds one thread's activity[thread] counters (spec.md 6):
// conn_dead, empty_rq, long_rq, tasksw, ctxsw, pool_fail.
type Counters struct {
	ConnDead atomic.Uint64
	EmptyRQ  atomic.Uint64
	LongRQ   atomic.Uint64
	TasksW   atomic.Uint64
	CtxSw    atomic.Uint64
	PoolFail atomic.Uint64
}

// Snapshot is a point-in-time copy of Counters suitable for
// serialization (protobuf encoding lives in wire.go).
type Snapshot struct {
	Thread   int
	ConnDead uint64
	EmptyRQ  uint64
	LongRQ   uint64
	TasksW   uint64
	CtxSw    uint64
	PoolFail uint64
}

// Snapshot reads every counter without resetting it.
func (c *Counters) Snapshot(thread int) Snapshot {
	return Snapshot{
		Thread:   thread,
		ConnDead: c.ConnDead.Load(),
		EmptyRQ:  c.EmptyRQ.Load(),
		LongRQ:   c.LongRQ.Load(),
		TasksW:   c.TasksW.Load(),
		CtxSw:    c.CtxSw.Load(),
		PoolFail: c.PoolFail.Load(),
	}
}

// Registry owns one Counters per thread.
type Registry struct {
	threads []*Counters
}

// NewRegistry allocates a Registry for numThreads worker threads.
func NewRegistry(numThreads int) *Registry {
	r := &Registry{threads: make([]*Counters, numThreads)}
	for i := range r.threads {
		r.threads[i] = &Counters{}
	}
	return r
}

// For returns the per-thread counters for tid.
func (r *Registry) For(tid int) *Counters { return r.threads[tid] }

// SnapshotAll returns a snapshot of every thread's counters, in thread
// id order.
func (r *Registry) SnapshotAll() []Snapshot {
	out := make([]Snapshot, len(r.threads))
	for i, c := range r.threads {
		out[i] = c.Snapshot(i)
	}
	return out
}
