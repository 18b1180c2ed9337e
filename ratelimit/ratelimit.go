// Package ratelimit provides a global read/write bandwidth limit that can
// be applied to any io.ReadWriter, such as a peer's websocket connection or
// a blob download. Limits are process-wide: every RLReadWriter created by
// NewRLReadWriter shares the same two token buckets, so the configured caps
// bound the daemon's total upload and download bandwidth rather than any
// single connection's.
package ratelimit

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

// pktSize is the chunk size that reads and writes are broken into before
// being passed through the limiter. Smaller packets make the limiter more
// responsive to SetLimits changes and other connections at the cost of a
// little more overhead.
var (
	mu          sync.Mutex
	readLimiter  = rate.NewLimiter(rate.Inf, 1<<20)
	writeLimiter = rate.NewLimiter(rate.Inf, 1<<20)
	pktSize      = uint64(1 << 16)
)

// SetLimits sets the global read and write bandwidth caps, in bytes per
// second, and the packet size that reads/writes are chunked into. A limit
// of 0 means unlimited.
func SetLimits(readBPS, writeBPS int64, packetSize uint64) {
	mu.Lock()
	defer mu.Unlock()

	pktSize = packetSize
	burst := int(packetSize)
	if burst <= 0 {
		burst = 1
	}

	if readBPS <= 0 {
		readLimiter.SetLimit(rate.Inf)
	} else {
		readLimiter.SetLimit(rate.Limit(readBPS))
	}
	readLimiter.SetBurst(burst)

	if writeBPS <= 0 {
		writeLimiter.SetLimit(rate.Inf)
	} else {
		writeLimiter.SetLimit(rate.Limit(writeBPS))
	}
	writeLimiter.SetBurst(burst)
}

// RLReadWriter wraps an io.ReadWriter, passing every Read and Write through
// the package's global rate limiters.
type RLReadWriter struct {
	rw io.ReadWriter
}

// NewRLReadWriter returns a rate-limited wrapper around rw.
func NewRLReadWriter(rw io.ReadWriter) io.ReadWriter {
	return &RLReadWriter{rw: rw}
}

// Read reads from the underlying ReadWriter in packetSize-sized chunks,
// blocking on the global read limiter between chunks.
func (r *RLReadWriter) Read(b []byte) (int, error) {
	mu.Lock()
	chunk := pktSize
	mu.Unlock()

	var read int
	for read < len(b) {
		end := read + int(chunk)
		if end > len(b) {
			end = len(b)
		}
		if err := readLimiter.WaitN(context.Background(), end-read); err != nil {
			return read, err
		}
		n, err := r.rw.Read(b[read:end])
		read += n
		if err != nil {
			return read, err
		}
	}
	return read, nil
}

// Write writes to the underlying ReadWriter in packetSize-sized chunks,
// blocking on the global write limiter between chunks.
func (r *RLReadWriter) Write(b []byte) (int, error) {
	mu.Lock()
	chunk := pktSize
	mu.Unlock()

	var written int
	for written < len(b) {
		end := written + int(chunk)
		if end > len(b) {
			end = len(b)
		}
		if err := writeLimiter.WaitN(context.Background(), end-written); err != nil {
			return written, err
		}
		n, err := r.rw.Write(b[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
