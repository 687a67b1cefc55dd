package sched

import "sync/atomic"

// Result is the tagged sum type returned by a task/tasklet's process
// function, preserved literally per spec.md 9 "Coroutine-style yield":
// the action machinery's ACT_RET_* family, reused here as the uniform
// return type of every schedulable unit so the caller (the scheduler's
// run loop) can tell a finished task from one that merely yielded.
type Result int

const (
	Continue Result = iota
	Stop
	Yield
	Done
	Deny
	Abort
	Error
	Invalid
)

// State bits, one per concept named in spec.md 3 "Task": a single
// machine word manipulated exclusively with atomic CAS, never behind a
// mutex (spec.md 9 "bit-packed state words").
const (
	StSleeping uint32 = 1 << iota
	StQueued
	StRunning
	StInList
	StKilled
	StSharedWQ
	StSelfWaking
	StHeavy
	StGlobal
	StWokenInit
	StWokenTimer
	StWokenIO
	StWokenSignal
	StWokenMsg
	StWokenRes
	StWokenOther
)

// wokenMask is every WOKEN_* bit; if any remain set when a task finishes
// running, the scheduler requeues it (spec.md 4.C "Task state CAS
// discipline").
const wokenMask = StWokenInit | StWokenTimer | StWokenIO | StWokenSignal | StWokenMsg | StWokenRes | StWokenOther

// TaskletNice is the reserved nice value marking a schedulable unit as
// a tasklet rather than a full task (spec.md glossary "Nice").
const TaskletNice = -32768

// ProcessFunc is a task or tasklet's body. ctx is the opaque context
// supplied at creation time.
type ProcessFunc func(ctx any) Result

// Task is a schedulable unit with a timer and a nice-biased runqueue
// position (spec.md 3 "Task").
type Task struct {
	state      atomic.Uint32
	process    ProcessFunc
	ctx        any
	threadMask uint64
	nice       int32

	expire Tick
	rqNode *node // set while present in a runqueue tree
	wqNode *node // set while present in the timer tree

	destroyed atomic.Bool
}

// NewTask creates a task bound to threadMask (the threads allowed to
// run it) with the given nice bias (-1024..1024).
func NewTask(threadMask uint64, nice int32, process ProcessFunc, ctx any) *Task {
	t := &Task{
		process:    process,
		ctx:        ctx,
		threadMask: threadMask,
		nice:       nice,
		expire:     Eternity,
	}
	t.state.Store(StSleeping)
	return t
}

// State returns the current state word.
func (t *Task) State() uint32 { return t.state.Load() }

// Nice returns the task's runqueue bias.
func (t *Task) Nice() int32 { return t.nice }

// ThreadMask returns the threads allowed to process this task.
func (t *Task) ThreadMask() uint64 { return t.threadMask }

// SetExpire arms (or disarms, with Eternity) the task's timer.
func (t *Task) SetExpire(when Tick) { t.expire = when }

// Expire returns the task's current timer value.
func (t *Task) Expire() Tick { return t.expire }

// wakeup ORs reason into the state word and, if the task was not
// already running or queued, CASes it into the queued state so the
// caller can insert it into a runqueue tree (spec.md 4.C "wakeup(f)").
// It returns true when the caller must perform that insertion.
func (t *Task) wakeup(reason uint32) bool {
	for {
		old := t.state.Load()
		next := old | reason
		if old&(StRunning|StQueued) != 0 {
			// already running or queued: OR in the reason and we're done,
			// whoever is running it will notice and requeue on exit.
			if t.state.CompareAndSwap(old, next) {
				return false
			}
			continue
		}
		next |= StQueued
		if t.state.CompareAndSwap(old, next) {
			return true
		}
	}
}

// beginRun transitions to Running, replacing the whole state word with
// only its persistent bits (SharedWQ/SelfWaking/Killed) plus Running —
// mirroring original_source/haproxy/src/task.c's
// `t->state = new_state = (old_state & (TASK_SHARED_WQ|TASK_SELF_WAKING|TASK_KILLED)) | TASK_RUNNING`.
// Every WOKEN_* bit carried in from before this run is discarded here:
// if left intact, a task whose process() returns Continue/Yield after
// ever being woken once would see the same stale bit forever and
// endRun would requeue it on every single loop with no real wakeup
// (spec.md 4.C "Task state CAS discipline"). Only a wakeup() call that
// lands on an OR'd-in bit while the task is genuinely running/queued
// again should survive to endRun's check. Returns the state word
// observed just before the transition, for the caller to pass along.
func (t *Task) beginRun() uint32 {
	for {
		old := t.state.Load()
		next := (old & (StSharedWQ | StSelfWaking | StKilled)) | StRunning
		if t.state.CompareAndSwap(old, next) {
			return old
		}
	}
}

// endRun clears Running and reports whether WOKEN_* bits reappeared
// during execution, meaning the task must be requeued immediately
// (spec.md 4.C: "if woken_* bits re-appeared during run, requeue").
func (t *Task) endRun() (woken bool, killed bool) {
	for {
		old := t.state.Load()
		next := old &^ StRunning
		if t.state.CompareAndSwap(old, next) {
			return old&wokenMask != 0, old&StKilled != 0
		}
	}
}

// Kill marks t for destruction. A task that isn't currently running is
// eligible for immediate freeing by the scheduler; one that is running
// gets freed once it returns (spec.md 4.C "Cancellation").
func (t *Task) Kill() {
	for {
		old := t.state.Load()
		if old&StKilled != 0 {
			return
		}
		if t.state.CompareAndSwap(old, old|StKilled) {
			return
		}
	}
}

func (t *Task) Killed() bool { return t.state.Load()&StKilled != 0 }
