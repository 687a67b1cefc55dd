package sched

import "sync/atomic"

// Class selects which of the three per-thread tasklet lists a tasklet
// is queued into (spec.md 3 "Tasklet", 4.C).
type Class int

const (
	Urgent Class = iota
	Normal
	Bulk
	numClasses
)

// Tasklet is a lighter schedulable unit with no timer (spec.md 3
// "Tasklet"): nice is implicitly TaskletNice, and it can be pinned to
// one thread.
type Tasklet struct {
	state      atomic.Uint32
	process    ProcessFunc
	ctx        any
	threadMask uint64
	class      Class

	next *Tasklet // intrusive singly-linked list node (urgent/normal/bulk/shared)
}

// NewTasklet creates a tasklet pinned to threadMask (normally a single
// bit) in the given class.
func NewTasklet(threadMask uint64, class Class, process ProcessFunc, ctx any) *Tasklet {
	tl := &Tasklet{process: process, ctx: ctx, threadMask: threadMask, class: class}
	tl.state.Store(StSleeping)
	return tl
}

func (tl *Tasklet) Killed() bool { return tl.state.Load()&StKilled != 0 }

func (tl *Tasklet) Kill() {
	for {
		old := tl.state.Load()
		if tl.state.CompareAndSwap(old, old|StKilled) {
			return
		}
	}
}

// tryEnterList CASes TASK_IN_LIST into the state word; exactly one
// concurrent caller wins, matching spec.md scenario 6 "tasklet wakeup
// race" and spec.md 4.C "Cross-thread wakeups".
func (tl *Tasklet) tryEnterList() bool {
	for {
		old := tl.state.Load()
		if old&StInList != 0 {
			return false
		}
		if tl.state.CompareAndSwap(old, old|StInList) {
			return true
		}
	}
}

func (tl *Tasklet) leaveList() {
	for {
		old := tl.state.Load()
		if tl.state.CompareAndSwap(old, old&^StInList) {
			return
		}
	}
}

// list is a simple intrusive singly-linked LIFO/FIFO-capable list used
// for the per-thread urgent/normal/bulk tasklet queues.
type list struct {
	head, tail *Tasklet
	size       int
}

func (l *list) pushTail(tl *Tasklet) {
	tl.next = nil
	if l.tail == nil {
		l.head, l.tail = tl, tl
	} else {
		l.tail.next = tl
		l.tail = tl
	}
	l.size++
}

func (l *list) pushHead(tl *Tasklet) {
	tl.next = l.head
	l.head = tl
	if l.tail == nil {
		l.tail = tl
	}
	l.size++
}

func (l *list) popHead() *Tasklet {
	tl := l.head
	if tl == nil {
		return nil
	}
	l.head = tl.next
	if l.head == nil {
		l.tail = nil
	}
	tl.next = nil
	l.size--
	return tl
}

// spliceFrom appends other's entire contents after l's tail and empties
// other. It has no caller: the cross-thread shared list is drained into
// the urgent list by sharedTasklets.drainInto.
func (l *list) spliceFrom(other *list) {
	if other.head == nil {
		return
	}
	if l.tail == nil {
		l.head = other.head
	} else {
		l.tail.next = other.head
	}
	l.tail = other.tail
	l.size += other.size
	other.head, other.tail, other.size = nil, nil, 0
}
