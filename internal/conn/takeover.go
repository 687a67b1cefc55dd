package conn

import (
	"errors"

	"github.com/fastserver/lbcore/internal/sched"
)

var ErrTakeoverFailed = errors.New("conn: takeover failed")

// Takeover moves c to newThread, implementing the four steps of
// spec.md 4.G "Takeover": (1) CAS the fd's thread bits via
// fd.Entry.TryAcquireRunning, (2) rebuild tasklets bound to the new
// thread, (3) kill the old timer task and create a new one on the new
// thread, (4) re-run the transport's Handshake on c. If any step fails, the
// connection is flagged ERROR (spec.md 8 invariant 7: after a
// successful takeover, no thread but newThread touches the fd until
// another takeover succeeds).
func Takeover(s *sched.Scheduler, c *Conn, newThread int, rebuildTasklet func(threadMask uint64) *sched.Tasklet, retimer func(old *sched.Task) *sched.Task) error {
	if !c.Entry.TryAcquireRunning(newThread) {
		c.SetFlag(FlagError)
		return ErrTakeoverFailed
	}

	newMask := uint64(1) << uint(newThread)
	tl := rebuildTasklet(newMask)
	if tl == nil {
		c.Entry.ReleaseRunning(newThread)
		c.SetFlag(FlagError)
		return ErrTakeoverFailed
	}

	oldTask := c.TimeoutTask
	newTask := retimer(oldTask)
	if newTask == nil {
		c.SetFlag(FlagError)
		return ErrTakeoverFailed
	}
	if oldTask != nil {
		oldTask.Kill()
	}
	c.TimeoutTask = newTask

	if err := c.Transport.Handshake(c); err != nil {
		c.SetFlag(FlagError)
		return ErrTakeoverFailed
	}

	c.Thread = newThread
	return nil
}
