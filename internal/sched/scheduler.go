package sched

import (
	"sync"
	"sync/atomic"

	"github.com/fastserver/lbcore/internal/pool"
)

// Default per-class weights and overall per-loop budget, spec.md 4.C
// step 1: "Compute default weights {urgent=64, normal=48, bulk=16} ...
// allocate a per-class budget summing to runqueue_depth (default 200)".
const (
	defaultRunqueueDepth = 200
	weightUrgent         = 64
	weightNormal         = 48
	weightBulk           = 16
)

// Scheduler owns every per-thread and shared structure named in
// spec.md 3-5: the global/local runqueue and timer trees, the
// per-thread tasklet lists, and the cross-thread shared tasklet list.
// It is the process-wide value spec.md 9 calls for ("a process-wide
// Scheduler value owned by main"), sharded by thread id rather than
// guarded by one global lock.
type Scheduler struct {
	threads []*threadState

	globalRQ *orderedTree
	rqLock   sync.Mutex

	globalWQ *orderedTree
	wqLock   sync.RWMutex

	rqTicks atomic.Uint32

	sleepingMask atomic.Uint64
	wakeFn       func(tid int) // platform hook: write a byte to thread tid's wake pipe

	runqueueDepth int
	lowLatency    bool

	taskPool    *pool.Pool
	taskletPool *pool.Pool
}

type threadState struct {
	tid       int
	threadBit uint64

	localRQ *orderedTree
	localWQ *orderedTree

	lists [numClasses]list

	shared sharedTasklets

	// budget consumed by the current loop iteration, surfaced for tests
	// and for the activity[thread] counters (spec.md 6).
	lastTasksRun int
	ctxSwitches  uint64
}

// sharedTasklets is a lock-free multi-producer stack (a Treiber stack):
// producers CAS-push, the single consumer (the owning thread, at the
// top of its own loop) atomically swaps the whole chain out. This is
// the Go-idiomatic equivalent of spec.md 5's "doubly-linked list with a
// busy bit on prev" — a CAS-linked singly-linked stack needs no busy
// bit because push is a single CAS and drain is a single atomic swap.
type sharedTasklets struct {
	head atomic.Pointer[Tasklet]
}

func (s *sharedTasklets) push(tl *Tasklet) {
	for {
		old := s.head.Load()
		tl.next = old
		if s.head.CompareAndSwap(old, tl) {
			return
		}
	}
}

// drainInto pops the entire chain and appends it to dst in the order
// producers pushed it (oldest first), by reversing the LIFO chain.
func (s *sharedTasklets) drainInto(dst *list) {
	chain := s.head.Swap(nil)
	if chain == nil {
		return
	}
	// reverse
	var prev *Tasklet
	for chain != nil {
		next := chain.next
		chain.next = prev
		prev = chain
		chain = next
	}
	for n := prev; n != nil; {
		next := n.next
		n.next = nil
		dst.pushTail(n)
		n = next
	}
}

// New creates a scheduler for numThreads worker threads (thread ids
// 0..numThreads-1).
func New(numThreads int, runqueueDepth int) *Scheduler {
	if runqueueDepth <= 0 {
		runqueueDepth = defaultRunqueueDepth
	}
	s := &Scheduler{
		globalRQ:      newOrderedTree(),
		globalWQ:      newOrderedTree(),
		runqueueDepth: runqueueDepth,
	}
	s.taskPool = pool.New("task", 96, 0, func() any { return &Task{} })
	s.taskletPool = pool.New("tasklet", 48, 0, func() any { return &Tasklet{} })
	for i := 0; i < numThreads; i++ {
		s.taskPool.EnsureThread(i)
		s.taskletPool.EnsureThread(i)
		s.threads = append(s.threads, &threadState{
			tid:       i,
			threadBit: 1 << uint(i),
			localRQ:   newOrderedTree(),
			localWQ:   newOrderedTree(),
		})
	}
	return s
}

// NumThreads returns the configured worker thread count.
func (s *Scheduler) NumThreads() int { return len(s.threads) }

// SetWakeFunc installs the platform hook used to interrupt a sleeping
// thread's poll() wait (spec.md 4.C "Cross-thread wakeups": "a byte is
// written to its wake pipe").
func (s *Scheduler) SetWakeFunc(f func(tid int)) { s.wakeFn = f }

// SetLowLatency toggles the preemption policy of step 4: when enabled,
// tasklets that arrive on the cross-thread shared list while a class is
// running are moved to the urgent list once that class is done, and the
// walk restarts from urgent (spec.md 4.C step 4).
func (s *Scheduler) SetLowLatency(v bool) { s.lowLatency = v }

// NewTask allocates a task from the pool instead of the Go heap,
// wiring the scheduler to the pool allocator the way spec.md's intro
// requires ("every timeout lives in the scheduler's timer tree" and
// every hot-path object comes from a pool).
func (s *Scheduler) NewTask(tid int, threadMask uint64, nice int32, process ProcessFunc, ctx any) *Task {
	t := s.taskPool.Alloc(tid).(*Task)
	t.process = process
	t.ctx = ctx
	t.threadMask = threadMask
	t.nice = nice
	t.expire = Eternity
	t.rqNode = nil
	t.wqNode = nil
	t.destroyed.Store(false)
	t.state.Store(StSleeping)
	return t
}

// ReleaseTask returns a task to the pool. The caller must ensure it is
// neither queued nor running.
func (s *Scheduler) ReleaseTask(tid int, t *Task) {
	s.taskPool.Free(tid, t)
}

// NewTasklet allocates a tasklet from the pool.
func (s *Scheduler) NewTasklet(tid int, threadMask uint64, class Class, process ProcessFunc, ctx any) *Tasklet {
	tl := s.taskletPool.Alloc(tid).(*Tasklet)
	tl.process = process
	tl.ctx = ctx
	tl.threadMask = threadMask
	tl.class = class
	tl.next = nil
	tl.state.Store(StSleeping)
	return tl
}

func (s *Scheduler) ReleaseTasklet(tid int, tl *Tasklet) {
	s.taskletPool.Free(tid, tl)
}
