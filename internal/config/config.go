// Package config holds the core's tunables, loaded the way the
// teacher's config.go does (flag.FlagSet plus environment overrides)
// but scoped to the knobs spec.md 5/6 names instead of an HTTP
// server's port/timeouts.
package config

import (
	"flag"
	"os"
	"strconv"
)

// Tunables holds every configurable knob the scheduler, pool, and
// connection layers read at startup (spec.md 5 "Resource limits", 6
// "Required dynamic knobs").
type Tunables struct {
	NumThreads    int
	RunqueueDepth int

	PoolCacheLimitBytes int // per-thread cache ceiling before eviction to global

	MaxConn    int
	MaxSSLConn int

	IdleTimeoutMS int
	ShutTimeoutMS int

	// HTTP/2 dynamic knobs (spec.md 6).
	H2HeaderTableSize      uint32
	H2InitialWindowSize    uint32
	H2MaxConcurrentStreams uint32
	H2MaxFrameSize         uint32

	// PollerPreference orders poller backend names by descending
	// preference; an empty slice means "use each backend's own default
	// Preference() score" (spec.md 4.B).
	PollerPreference []string

	LowLatency bool
}

// Defaults returns the RFC/spec-mandated defaults before any
// flag/env overlay is applied.
func Defaults() *Tunables {
	return &Tunables{
		NumThreads:             1,
		RunqueueDepth:          200,
		PoolCacheLimitBytes:    256 * 1024,
		MaxConn:                2000,
		MaxSSLConn:             2000,
		IdleTimeoutMS:          30000,
		ShutTimeoutMS:          5000,
		H2HeaderTableSize:      4096,
		H2InitialWindowSize:    65535,
		H2MaxConcurrentStreams: 100,
		H2MaxFrameSize:         16384,
	}
}

// ParseFlags overlays command-line flags onto the defaults, mirroring
// the teacher's flag.IntVar-per-field style.
func ParseFlags(args []string) (*Tunables, error) {
	t := Defaults()
	fs := flag.NewFlagSet("lbcore", flag.ContinueOnError)

	fs.IntVar(&t.NumThreads, "nbthread", t.NumThreads, "number of worker threads")
	fs.IntVar(&t.RunqueueDepth, "runqueue-depth", t.RunqueueDepth, "scheduler runqueue depth budget per loop")
	fs.IntVar(&t.PoolCacheLimitBytes, "pool-cache-bytes", t.PoolCacheLimitBytes, "per-thread pool cache ceiling in bytes")
	fs.IntVar(&t.MaxConn, "maxconn", t.MaxConn, "maximum concurrent connections")
	fs.IntVar(&t.MaxSSLConn, "maxsslconn", t.MaxSSLConn, "maximum concurrent SSL contexts")
	fs.IntVar(&t.IdleTimeoutMS, "timeout-idle-ms", t.IdleTimeoutMS, "idle connection timeout in milliseconds")
	fs.IntVar(&t.ShutTimeoutMS, "timeout-shut-ms", t.ShutTimeoutMS, "post-shutdown timeout in milliseconds")
	fs.BoolVar(&t.LowLatency, "low-latency", t.LowLatency, "enable scheduler low-latency class preemption")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	applyEnvOverrides(t)
	return t, nil
}

// applyEnvOverrides lets LBCORE_NBTHREAD, LBCORE_RUNQUEUE_DEPTH and
// LBCORE_MAXCONN override the corresponding flag values; no other
// tunable is read from the environment.
func applyEnvOverrides(t *Tunables) {
	if v, ok := envInt("LBCORE_NBTHREAD"); ok {
		t.NumThreads = v
	}
	if v, ok := envInt("LBCORE_RUNQUEUE_DEPTH"); ok {
		t.RunqueueDepth = v
	}
	if v, ok := envInt("LBCORE_MAXCONN"); ok {
		t.MaxConn = v
	}
}

func envInt(name string) (int, bool) {
	s := os.Getenv(name)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
