package main

import (
	"log"
	"net"
	"time"

	"github.com/fastserver/lbcore/internal/activity"
	"github.com/fastserver/lbcore/internal/config"
	"github.com/fastserver/lbcore/internal/fd"
	"github.com/fastserver/lbcore/internal/sched"
)

// startTime anchors the wrapping millisecond tick used for the
// scheduler's timer tree, since sched.Tick is a relative counter, not
// a wall-clock value (spec.md 3 glossary "Tick").
var startTime = time.Now()

func currentTick() sched.Tick {
	return sched.Tick(uint32(time.Since(startTime).Milliseconds()))
}

func msToTick(ms int) sched.Tick {
	return currentTick() + sched.Tick(uint32(ms))
}

// Server owns every process-wide structure the connection handlers
// share, mirroring the teacher's Engine struct (core/engine.go) but
// keyed on the scheduler/fd/activity trio instead of the teacher's
// router and ad-hoc connection map.
type Server struct {
	cfg       *config.Manager
	sched     *sched.Scheduler
	fdTable   *fd.Table
	activity  *activity.Registry
	listener  net.Listener
	numThread int

	nextThread int
}

// Serve runs the accept loop. Each accepted connection gets its own
// goroutine (Go's runtime netpoller already multiplexes the blocking
// Read/Write calls beneath it); the scheduler drives only the
// connection's idle-timeout bookkeeping, not the I/O readiness
// notification that internal/fd/poller models and that package's own
// tests exercise directly.
func (s *Server) Serve() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			log.Printf("accept: %v", err)
			return
		}
		tid := s.nextThread
		s.nextThread = (s.nextThread + 1) % s.numThread
		go s.handleConn(nc, tid)
	}
}

// runTimeoutLoop is the per-thread scheduler pump: it wakes expired
// timers and drains the runnable tasklet lists, the Go-goroutine
// stand-in for spec.md 4.C's per-thread run loop (here driven by a
// ticker instead of epoll_wait, since actual I/O readiness comes from
// the Go runtime netpoller in this binary).
func (s *Server) runTimeoutLoop(tid int) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		now := currentTick()
		woken := s.sched.WakeExpiredTasks(tid, now)
		ran := s.sched.ProcessRunnableTasks(tid)
		if woken > 0 || ran > 0 {
			s.activity.For(tid).TasksW.Add(uint64(woken))
			s.activity.For(tid).CtxSw.Add(uint64(ran))
		}
	}
}
