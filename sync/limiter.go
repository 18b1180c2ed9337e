package sync

import "sync"

// Limiter is a counting semaphore: it bounds the number of units of some
// resource (outstanding connections, in-flight transfers, open file
// descriptors) that may be in use at once. Unlike a plain buffered channel,
// a Limiter allows a single Request to consume more than one unit, and
// allows the limit to be changed while requests are outstanding.
type Limiter struct {
	mu      sync.Mutex
	cond    sync.Cond
	limit   int64
	current int64
}

// NewLimiter returns a Limiter that permits up to limit units to be
// outstanding at once.
func NewLimiter(limit int64) *Limiter {
	l := &Limiter{
		limit: limit,
	}
	l.cond.L = &l.mu
	return l
}

// Request blocks until n units are available and reserves them, or until
// cancel is closed. It returns true if the request was cancelled before n
// units became available.
//
// A request for more units than the limit allows is satisfied once current
// usage drops to zero, so that a single oversized request is never starved
// forever; subsequent requests will then block until usage falls back under
// the limit.
func (l *Limiter) Request(n int64, cancel <-chan struct{}) (cancelled bool) {
	if cancel != nil {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-cancel:
				l.mu.Lock()
				cancelled = true
				l.cond.Broadcast()
				l.mu.Unlock()
			case <-done:
			}
		}()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for !l.available(n) && !cancelled {
		l.cond.Wait()
	}
	if cancelled {
		return true
	}
	l.current += n
	return false
}

// available reports whether n units could be reserved right now, given the
// current limit and usage.
func (l *Limiter) available(n int64) bool {
	if l.current == 0 {
		return true
	}
	return l.current+n <= l.limit
}

// Release returns n units to the limiter, waking any goroutines blocked in
// Request.
func (l *Limiter) Release(n int64) {
	l.mu.Lock()
	l.current -= n
	l.mu.Unlock()
	l.cond.Broadcast()
}

// SetLimit changes the limiter's capacity. It is safe to call while requests
// are outstanding; raising the limit wakes any blocked Request calls that
// can now be satisfied.
func (l *Limiter) SetLimit(limit int64) {
	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()
	l.cond.Broadcast()
}
