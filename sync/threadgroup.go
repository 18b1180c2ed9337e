package sync

import (
	"errors"
	"sync"
)

// ErrStopped is returned by ThreadGroup methods if Stop has already been
// called.
var ErrStopped = errors.New("thread group already stopped")

// ThreadGroup is used to facilitate clean shutdown of code that spawns
// goroutines. Every goroutine that might outlive the caller should call Add
// when it starts and Done when it finishes. Stop blocks until every
// outstanding Add has been matched by a Done, and closes the channel
// returned by StopChan so that blocked goroutines can select on it and
// return early.
//
// Functions registered with OnStop are called in LIFO order as soon as Stop
// is invoked, before Stop waits for outstanding calls to finish. Functions
// registered with AfterStop are called, also in LIFO order, once all
// outstanding calls have returned. This lets a caller shut down short-lived
// listeners immediately while deferring the closing of resources that the
// long-lived goroutines are still using.
type ThreadGroup struct {
	onStopFns    []func()
	afterStopFns []func()

	once     sync.Once
	stopChan chan struct{}

	mu         sync.Mutex
	wg         sync.WaitGroup
	isStopping bool
}

// init initializes the stop channel. It is idempotent and safe to call from
// any ThreadGroup method that touches stopChan.
func (tg *ThreadGroup) init() {
	tg.once.Do(func() {
		tg.stopChan = make(chan struct{})
	})
}

// isStopped returns true if Stop has been called.
func (tg *ThreadGroup) isStopped() bool {
	tg.init()
	select {
	case <-tg.stopChan:
		return true
	default:
		return false
	}
}

// StopChan returns a channel that will be closed when Stop is called.
func (tg *ThreadGroup) StopChan() <-chan struct{} {
	tg.init()
	return tg.stopChan
}

// Add increments the waitgroup counter. It returns ErrStopped if the thread
// group has already been stopped, in which case the caller should abort
// rather than spawn a goroutine that would never be shut down cleanly.
func (tg *ThreadGroup) Add() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.init()
	if tg.isStopping || tg.isStopped() {
		return ErrStopped
	}
	tg.wg.Add(1)
	return nil
}

// Done decrements the waitgroup counter, indicating that a goroutine added
// with Add has exited.
func (tg *ThreadGroup) Done() {
	tg.wg.Done()
}

// Flush waits for the waitgroup counter to reach zero, without closing the
// stop channel or calling the registered OnStop/AfterStop functions. It can
// be used to block until transient goroutines have finished without tearing
// down long-lived resources that the group still owns.
func (tg *ThreadGroup) Flush() error {
	tg.mu.Lock()
	if tg.isStopped() {
		tg.mu.Unlock()
		return ErrStopped
	}
	tg.mu.Unlock()
	tg.wg.Wait()
	return nil
}

// OnStop registers a function to be called when Stop is called. Functions
// are called in LIFO order, before Stop waits on the waitgroup. If the
// group has already stopped, fn is called immediately.
func (tg *ThreadGroup) OnStop(fn func()) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.isStopped() {
		fn()
		return
	}
	tg.onStopFns = append(tg.onStopFns, fn)
}

// AfterStop registers a function to be called after Stop has finished
// waiting for outstanding calls to Done. Functions are called in LIFO
// order. If the group has already stopped, fn is called immediately.
func (tg *ThreadGroup) AfterStop(fn func()) {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	if tg.isStopped() {
		fn()
		return
	}
	tg.afterStopFns = append(tg.afterStopFns, fn)
}

// Stop closes the group's stop channel, calls the registered OnStop
// functions, waits for the waitgroup counter to reach zero, and then calls
// the registered AfterStop functions. It returns ErrStopped if called more
// than once.
func (tg *ThreadGroup) Stop() error {
	tg.mu.Lock()
	tg.init()
	if tg.isStopped() {
		tg.mu.Unlock()
		return ErrStopped
	}
	tg.isStopping = true
	close(tg.stopChan)
	for i := len(tg.onStopFns) - 1; i >= 0; i-- {
		tg.onStopFns[i]()
	}
	tg.onStopFns = nil
	tg.mu.Unlock()

	tg.wg.Wait()

	tg.mu.Lock()
	for i := len(tg.afterStopFns) - 1; i >= 0; i-- {
		tg.afterStopFns[i]()
	}
	tg.afterStopFns = nil
	tg.mu.Unlock()
	return nil
}
