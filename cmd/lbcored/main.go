// Command lbcored wires the scheduler, pool allocator, fd table,
// connection layer, and H1/H2 muxes into a runnable listener, the way
// the teacher's app.App/core.Engine pair wires its router and pools
// into a running HTTP server (app/app.go, core/engine.go).
package main

import (
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastserver/lbcore/internal/activity"
	"github.com/fastserver/lbcore/internal/config"
	"github.com/fastserver/lbcore/internal/fd"
	"github.com/fastserver/lbcore/internal/sched"
)

func main() {
	tunables, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatalf("config: %v", err)
	}
	mgr := config.NewManager(tunables)

	addr := ":8080"
	if a := os.Getenv("LBCORE_LISTEN"); a != "" {
		addr = a
	}

	poller, err := fd.NewBestPoller()
	if err != nil {
		log.Fatalf("poller: %v", err)
	}
	log.Printf("selected poller backend: %s (preference %d)", poller.Name(), poller.Preference())
	defer poller.Term()

	numThreads := tunables.NumThreads
	if numThreads < 1 {
		numThreads = 1
	}

	scheduler := sched.New(numThreads, tunables.RunqueueDepth)
	scheduler.SetLowLatency(tunables.LowLatency)

	fdTable := fd.NewTable(65536)
	reg := activity.NewRegistry(numThreads)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}
	log.Printf("lbcored listening on %s with %d thread(s)", addr, numThreads)

	srv := &Server{
		cfg:       mgr,
		sched:     scheduler,
		fdTable:   fdTable,
		activity:  reg,
		listener:  ln,
		numThread: numThreads,
	}

	for tid := 0; tid < numThreads; tid++ {
		go srv.runTimeoutLoop(tid)
	}

	go srv.Serve()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("signal received: %v, shutting down", sig)
	ln.Close()
}
