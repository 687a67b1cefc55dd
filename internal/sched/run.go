package sched

// isSingleThread reports whether mask designates exactly thread tid and
// no other, in which case a task/timer can live in that thread's local
// tree instead of the shared global one (spec.md 4.C: "One global tree
// plus one per thread").
func isSingleThread(mask uint64, tid int) bool {
	bit := uint64(1) << uint(tid)
	return mask == bit
}

// WakeTask implements spec.md 4.C "wakeup(f)": OR in the reason, and if
// the task wasn't already running or queued, insert it into a runqueue
// tree. callerTid identifies the thread performing the wakeup (used to
// decide local vs. global placement and whether a sleeping peer needs
// poking).
func (s *Scheduler) WakeTask(callerTid int, t *Task, reason uint32) {
	if !t.wakeup(reason) {
		return
	}

	key := Tick(s.rqTicks.Add(1))
	if t.nice != 0 {
		key += Tick(int32(t.nice) * int32(s.runqueueDepth))
	}

	local := isSingleThread(t.threadMask, callerTid)
	if local {
		ts := s.threads[callerTid]
		t.rqNode = ts.localRQ.Insert(key, t.threadMask, t)
	} else {
		s.rqLock.Lock()
		t.rqNode = s.globalRQ.Insert(key, t.threadMask, t)
		s.rqLock.Unlock()
	}

	s.wakeEligibleSleepers(t.threadMask, callerTid)
}

// wakeEligibleSleepers pokes one sleeping thread out of its poll() wait
// when every thread eligible to run the newly queued work is currently
// asleep (spec.md 4.C "__task_wakeup": "If all threads that are
// supposed to handle this task are sleeping, wake one").
func (s *Scheduler) wakeEligibleSleepers(mask uint64, exclude int) {
	excludeBit := uint64(1) << uint(exclude)
	eligible := mask &^ excludeBit
	if eligible == 0 {
		return
	}
	sleeping := s.sleepingMask.Load()
	if eligible&sleeping != eligible {
		return
	}
	// pick the lowest eligible bit
	lowest := eligible & (-eligible)
	for {
		cur := s.sleepingMask.Load()
		if s.sleepingMask.CompareAndSwap(cur, cur&^lowest) {
			break
		}
	}
	tid := trailingZeros64(lowest)
	if s.wakeFn != nil {
		s.wakeFn(tid)
	}
}

func trailingZeros64(x uint64) int {
	n := 0
	for x&1 == 0 && x != 0 {
		x >>= 1
		n++
	}
	return n
}

// WakeTasklet implements spec.md 4.C tasklet wakeup + spec.md 5
// "Cross-thread wakeups": exactly one caller wins the CAS into
// TASK_IN_LIST (spec scenario 6); the winner enqueues either directly
// into its pinned thread's local class list (same-thread fast path) or
// onto that thread's lock-free shared list (cross-thread path), waking
// it if it was sleeping.
func (s *Scheduler) WakeTasklet(callerTid int, tl *Tasklet) {
	if !tl.tryEnterList() {
		return // another caller already queued it; exactly-once guarantee
	}

	target := trailingZeros64(tl.threadMask)
	if target == callerTid || tl.threadMask == 0 {
		ts := s.threads[callerTid]
		ts.lists[tl.class].pushTail(tl)
		return
	}

	ts := s.threads[target]
	ts.shared.push(tl)

	bit := uint64(1) << uint(target)
	if s.sleepingMask.Load()&bit != 0 {
		for {
			cur := s.sleepingMask.Load()
			if s.sleepingMask.CompareAndSwap(cur, cur&^bit) {
				break
			}
		}
		if s.wakeFn != nil {
			s.wakeFn(target)
		}
	}
}

// SetTimer arms task t's timer and inserts it into the appropriate wait
// queue (spec.md 4.C "Task in timer tree"). Due to HAProxy's
// "__task_queue" semantics, re-arming an already-queued task first
// unlinks it (idempotent).
func (s *Scheduler) SetTimer(ownerTid int, t *Task, when Tick) {
	s.unlinkTimer(ownerTid, t)
	t.expire = when
	if when == Eternity {
		return
	}
	if isSingleThread(t.threadMask, ownerTid) {
		ts := s.threads[ownerTid]
		t.wqNode = ts.localWQ.Insert(when, t.threadMask, t)
	} else {
		s.wqLock.Lock()
		t.wqNode = s.globalWQ.Insert(when, t.threadMask, t)
		s.wqLock.Unlock()
	}
}

func (s *Scheduler) unlinkTimer(ownerTid int, t *Task) {
	if t.wqNode == nil {
		return
	}
	if isSingleThread(t.threadMask, ownerTid) {
		s.threads[ownerTid].localWQ.Remove(t.wqNode)
	} else {
		s.wqLock.Lock()
		s.globalWQ.Remove(t.wqNode)
		s.wqLock.Unlock()
	}
	t.wqNode = nil
}

// NextTimerExpiry returns the earliest expiry visible to thread tid
// across its local timer tree and the shared global one, or Eternity if
// none is armed. Used to compute the poll() timeout.
func (s *Scheduler) NextTimerExpiry(tid int) Tick {
	best := Eternity
	have := false
	if n := s.threads[tid].localWQ.PeekMin(); n != nil {
		best, have = n.key, true
	}
	s.wqLock.RLock()
	if n := s.globalWQ.PeekMin(); n != nil && (!have || n.key.Before(best)) {
		best = n.key
	}
	s.wqLock.RUnlock()
	return best
}

// WakeExpiredTasks pops every timer-tree entry whose key is due
// relative to now (spec.md 4.C "wake_expired_tasks"), local tree first
// then the global one under its write lock, and wakes each with
// WOKEN_TIMER. Returns the count woken, bounded by runqueueDepth per
// spec.md's "max_processed" cap.
func (s *Scheduler) WakeExpiredTasks(tid int, now Tick) int {
	count := 0
	max := s.runqueueDepth

	ts := s.threads[tid]
	for count < max {
		n := ts.localWQ.PeekMin()
		if n == nil || !n.key.Due(now) {
			break
		}
		ts.localWQ.PopMin()
		task := n.value.(*Task)
		task.wqNode = nil
		s.WakeTask(tid, task, StWokenTimer)
		count++
	}

	for count < max {
		s.wqLock.Lock()
		n := s.globalWQ.PeekMin()
		if n == nil || !n.key.Due(now) {
			s.wqLock.Unlock()
			break
		}
		s.globalWQ.PopMin()
		s.wqLock.Unlock()
		task := n.value.(*Task)
		task.wqNode = nil
		s.WakeTask(tid, task, StWokenTimer)
		count++
	}

	return count
}

// ProcessRunnableTasks implements spec.md 4.C's five-step main loop for
// thread tid: it is called once per scheduler iteration between poll()
// calls. It returns the number of tasks and tasklets actually run this
// call.
//
// Step 1: compute per-class budgets from the weights so they sum to
// runqueueDepth.
// Step 2: drain the runqueue trees (local first, then every task of
// the global one eligible for this thread) into the local "normal"
// tasklet list, wrapping each task in an adapter tasklet-like run.
// Step 3: splice the cross-thread shared list into the urgent list.
// Step 4: walk urgent -> normal -> bulk, running up to each class's
// budget. In low-latency mode, once a class is done, a non-empty
// cross-thread shared list is spliced into the urgent list and the
// walk restarts from urgent instead of going on to the next class.
// Step 5: loop while any list is non-empty and the total run count
// hasn't hit runqueueDepth.
func (s *Scheduler) ProcessRunnableTasks(tid int) int {
	ts := s.threads[tid]
	ts.shared.drainInto(&ts.lists[Urgent])

	total := 0
	for total < s.runqueueDepth {
		s.drainRunqueue(tid)

		budgets := [numClasses]int{
			Urgent: s.classBudget(weightUrgent),
			Normal: s.classBudget(weightNormal),
			Bulk:   s.classBudget(weightBulk),
		}

		ran := 0
		for class := Urgent; class < numClasses; class++ {
			ran += s.runClass(tid, class, budgets[class])
			if s.lowLatency && ts.shared.head.Load() != nil {
				ts.shared.drainInto(&ts.lists[Urgent])
				break
			}
		}

		total += ran
		ts.lastTasksRun = ran
		if ran == 0 {
			break
		}
	}
	return total
}

func (s *Scheduler) classBudget(weight int) int {
	total := weightUrgent + weightNormal + weightBulk
	b := s.runqueueDepth * weight / total
	if b < 1 {
		b = 1
	}
	return b
}

// drainRunqueue pops eligible tasks from the local and global runqueue
// trees and appends each as a runnable unit onto the local normal
// tasklet list (spec.md 4.C step 2).
func (s *Scheduler) drainRunqueue(tid int) {
	ts := s.threads[tid]
	bit := ts.threadBit

	for {
		n := ts.localRQ.PopEligible(bit)
		if n == nil {
			break
		}
		s.enqueueTaskAsRunnable(tid, n.value.(*Task))
	}

	s.rqLock.Lock()
	for {
		n := s.globalRQ.PopEligible(bit)
		if n == nil {
			break
		}
		s.rqLock.Unlock()
		s.enqueueTaskAsRunnable(tid, n.value.(*Task))
		s.rqLock.Lock()
	}
	s.rqLock.Unlock()
}

// enqueueTaskAsRunnable adapts a *Task into something the tasklet class
// lists can carry, by wrapping it in a one-shot tasklet whose process
// function runs the task's real body and performs task-specific post-run
// bookkeeping (re-wake if woken during the run, timer unlink and pool
// release on Done, Stop or kill).
func (s *Scheduler) enqueueTaskAsRunnable(tid int, t *Task) {
	t.rqNode = nil
	wrapper := &Tasklet{threadMask: t.threadMask, class: Normal}
	wrapper.state.Store(StInList)
	wrapper.process = func(_ any) Result {
		return s.runTask(tid, t)
	}
	s.threads[tid].lists[Normal].pushTail(wrapper)
}

func (s *Scheduler) runTask(tid int, t *Task) Result {
	if t.Killed() {
		t.endRun()
		s.ReleaseTask(tid, t)
		return Done
	}
	t.beginRun()
	res := t.process(t.ctx)
	woken, killed := t.endRun()
	s.threads[tid].ctxSwitches++

	switch {
	case killed || res == Done || res == Stop:
		s.unlinkTimer(tid, t)
		s.ReleaseTask(tid, t)
	case woken:
		s.WakeTask(tid, t, StWokenOther)
	}
	return res
}

// runClass runs up to budget tasklets from class's list, returning the
// number actually run. A tasklet returning Yield or Continue and still
// alive is simply dropped (spec.md semantics: re-arming, if any, is the
// caller's responsibility via WakeTasklet/WakeTask).
func (s *Scheduler) runClass(tid int, class Class, budget int) int {
	l := &s.threads[tid].lists[class]
	ran := 0
	for ran < budget {
		tl := l.popHead()
		if tl == nil {
			break
		}
		tl.leaveList()
		if tl.Killed() {
			ran++
			continue
		}
		tl.process(tl.ctx)
		ran++
	}
	return ran
}
