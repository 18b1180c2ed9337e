package swarm

import "time"

const (
	// avgUploadWindow is the number of recent per-chunk upload durations
	// kept per node; avg_ul_time is the arithmetic mean of this window.
	// Pinned at 20 samples per spec decision (see DESIGN.md).
	avgUploadWindow = 20

	// defaultTransferTimeout is used for timeout_secs when the sender has
	// no observed avg_ul_time yet.
	defaultTransferTimeout = 60 * time.Second

	// transferTimeoutFactor (k) and transferTimeoutFloor bound
	// timeout_secs derived from a sender's avg_ul_time: k * avg_ul_time,
	// never less than the floor.
	transferTimeoutFactor = 5
	transferTimeoutFloor  = 5 * time.Second
)
