// Package config holds the daemon's runtime tunables, populated by
// cmd/lanscatterd from cobra flags and mirroring the Python original's
// parse_cli_args.
package config

import (
	"time"

	"github.com/lanscatter/masterd/build"
)

// Config bundles every flag the daemon accepts.
type Config struct {
	Dir               string
	Port              int
	ULLimit           float64
	ConcurrentUploads int
	RescanInterval    time.Duration
	ChunkSize         int64
	MaxWorkers        int
	Debug             bool
	JSON              bool
	TLSCert           string
	TLSKey            string
	HashTasksPerChunk int
	NoCompress        bool
}

// Defaults holds the values used when a flag is left unset. The planner
// tick and peer heartbeat intervals are the handful of constants that
// legitimately vary with build mode, generalizing build.Select(build.Var)
// the way the rest of the module's constants do.
var Defaults = Config{
	Dir:               ".",
	Port:              9876,
	ULLimit:           0,
	ConcurrentUploads: 3,
	RescanInterval:    5 * time.Second,
	ChunkSize:         4 << 20,
	MaxWorkers:        4,
	HashTasksPerChunk: 1,
}

// PlannerTick and PeerHeartbeat vary with build.Release: faster in dev and
// testing builds so integration tests don't wait on production-sized
// timers.
var (
	PlannerTick   = selectDuration(2*time.Second, 500*time.Millisecond, 50*time.Millisecond)
	PeerHeartbeat = selectDuration(time.Minute, 15*time.Second, time.Second)
)

func selectDuration(standard, dev, testing time.Duration) time.Duration {
	v := build.Select(build.Var{Standard: standard, Dev: dev, Testing: testing})
	return v.(time.Duration)
}
