// Package pool implements the sized object allocator shared by every
// hot-path object in lbcore: tasks, tasklets, buffers, connections and
// conn_streams all come from a Pool so that steady-state operation never
// touches the Go allocator.
//
// Each Pool keeps a lock-free global free-list (a CAS-linked stack of
// wrapper nodes) plus one bounded cache per registered thread id.
// Allocation drains the local cache first, then the global stack, and
// only calls the object factory (accounting it as a fresh allocation)
// when both are empty.
package pool

import (
	"sync"
	"sync/atomic"
)

// defaultPerThreadCacheLimit is the object-count budget of a single thread's
// cache before it evicts its oldest quarter back to the global
// free-list (spec.md 4.A: "when the cache exceeds ~256 KiB it evicts
// the LRU quarter"). Expressed here as a count because objects are
// Go values of varying true size; callers construct pools per fixed
// payload so this is calibrated per pool in New.
const defaultPerThreadCacheLimit = 256 * 1024 / 64 // ~4096 objects of ~64B

// numSizeClasses is the count of power-of-two size classes reachable by
// index (0..15) for O(1) cache lookup, per spec.md 4.A. classTable below
// is indexed by sizeClassIndex and lets Lookup find an already-registered
// pool of a given size without scanning the whole registry.
const numSizeClasses = 16

// emaWeightNum/Den: HAProxy's pool.c tracks a "needed average" of
// outstanding objects with an EMA of weight 4/1024 per sample.
const (
	emaWeightNum = 4
	emaWeightDen = 1024
)

// freeNode is a free-list entry: a CAS-linked stack node wrapping one
// pooled object. Reusing freeNode objects themselves through a sync.Pool
// keeps the allocator's own bookkeeping off the hot path.
type freeNode struct {
	obj  any
	next *freeNode
}

var nodePool = sync.Pool{New: func() any { return new(freeNode) }}

// Pool is a sized object allocator: a lock-free global free-list plus a
// small cache per registered thread.
type Pool struct {
	name    string
	size    uintptr
	limit   int64 // 0 = unlimited
	newFunc func() any

	global atomic.Pointer[freeNode]

	allocated atomic.Int64
	used      atomic.Int64
	failed    atomic.Uint64
	neededAvg atomic.Int64 // fixed-point, x1024

	mu      sync.RWMutex
	caches  []*threadCache
	limitPT int // per-thread cache object limit

	failRate atomic.Uint32 // 0..100, debug fuzz knob
}

// threadCache is the small per-thread freelist that Alloc/Free prefer
// over the shared global stack. Indexed by an externally supplied
// thread id (0..NumThreads-1); there is no cross-thread contention on a
// given index because only that thread ever touches it.
type threadCache struct {
	mu    sync.Mutex
	items []any // LIFO; items[len-1] is most-recently-freed
}

var (
	registryMu sync.Mutex
	registry   []*Pool
	classTable [numSizeClasses][]*Pool
)

// sizeClassIndex maps a nominal object size to one of numSizeClasses
// power-of-two buckets (8, 16, 32, ... up to 2^(numSizeClasses+2)),
// clamping anything larger than the top bucket into the last class.
func sizeClassIndex(size uintptr) int {
	class := 0
	for bucket := uintptr(8); bucket < size && class < numSizeClasses-1; bucket <<= 1 {
		class++
	}
	return class
}

// Lookup returns a previously registered pool whose nominal size exactly
// matches size, using classTable to check only the one size class size
// falls into rather than scanning every registered pool (spec.md 4.A
// "reachable via an index (0..15) for O(1) cache lookup"). Returns nil
// if no such pool has been created yet.
func Lookup(size uintptr) *Pool {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, p := range classTable[sizeClassIndex(size)] {
		if p.size == size {
			return p
		}
	}
	return nil
}

// New creates a pool whose objects are produced by newFunc, with an
// optional hard allocation limit (0 = unlimited). size is the nominal
// object size in bytes, used only for accounting / cache-size
// calibration, not for memory layout (Go objects are not manually laid
// out the way the C allocator lays out pool slabs).
func New(name string, size uintptr, limit int64, newFunc func() any) *Pool {
	p := &Pool{
		name:    name,
		size:    size,
		limit:   limit,
		newFunc: newFunc,
	}
	p.limitPT = int(defaultPerThreadCacheLimit)
	if size > 64 {
		p.limitPT = int((256 * 1024) / uint64(size))
		if p.limitPT < 16 {
			p.limitPT = 16
		}
	}
	registryMu.Lock()
	registry = append(registry, p)
	idx := sizeClassIndex(size)
	classTable[idx] = append(classTable[idx], p)
	registryMu.Unlock()
	return p
}

// Name returns the pool's registered name.
func (p *Pool) Name() string { return p.name }

// Size returns the nominal object size in bytes.
func (p *Pool) Size() uintptr { return p.size }

// EnsureThread grows the per-thread cache table so that thread id tid is
// addressable. Threads are registered once at startup by the scheduler.
func (p *Pool) EnsureThread(tid int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.caches) <= tid {
		p.caches = append(p.caches, &threadCache{})
	}
}

func (p *Pool) cacheFor(tid int) *threadCache {
	p.mu.RLock()
	if tid >= 0 && tid < len(p.caches) {
		c := p.caches[tid]
		p.mu.RUnlock()
		return c
	}
	p.mu.RUnlock()
	p.EnsureThread(tid)
	p.mu.RLock()
	c := p.caches[tid]
	p.mu.RUnlock()
	return c
}

func (p *Pool) bumpNeededAvg(outstanding int64) {
	for {
		old := p.neededAvg.Load()
		sample := outstanding * emaWeightDen
		next := old + (sample-old)*emaWeightNum/emaWeightDen
		if p.neededAvg.CompareAndSwap(old, next) {
			return
		}
	}
}

// Stats is a point-in-time snapshot of a pool's accounting counters.
type Stats struct {
	Allocated int64
	Used      int64
	Failed    uint64
	NeededAvg float64
}

// Stats returns the current accounting snapshot. Invariant (spec.md 3,
// 4.A): Allocated >= Used >= 0, Used + cached + global_free == Allocated.
func (p *Pool) Stats() Stats {
	return Stats{
		Allocated: p.allocated.Load(),
		Used:      p.used.Load(),
		Failed:    p.failed.Load(),
		NeededAvg: float64(p.neededAvg.Load()) / float64(emaWeightDen),
	}
}

// SetFailRate sets a 0..100 probability that Alloc synthetically fails,
// for fuzzing recovery paths (spec.md 4.A "fail_rate debug knob").
func (p *Pool) SetFailRate(pct uint32) {
	if pct > 100 {
		pct = 100
	}
	p.failRate.Store(pct)
}

// AllPools returns every pool created via New, for Flush/GC sweeps.
func AllPools() []*Pool {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*Pool, len(registry))
	copy(out, registry)
	return out
}
