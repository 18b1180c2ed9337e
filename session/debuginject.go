package session

import (
	"sync"

	"github.com/google/uuid"
)

// injector is the process-wide debug injector registry: it lets test code
// enqueue inbound frames onto a specific session's processing loop from
// outside that loop, keyed by the session's uuid rather than a live
// pointer so a session that has already closed is simply a miss rather
// than a dangling reference.
type injector struct {
	mu   sync.Mutex
	subs map[uuid.UUID]chan<- []byte
}

var debugInjector = &injector{
	subs: make(map[uuid.UUID]chan<- []byte),
}

func (r *injector) register(id uuid.UUID, ch chan<- []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[id] = ch
}

func (r *injector) unregister(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Inject schedules frame onto the inbound processing loop of the session
// identified by id, as if the peer had sent it over the websocket. It
// returns false if no session with that id is currently registered. The
// send onto the session's channel is itself non-blocking so a misbehaving
// or already-overloaded session cannot wedge the caller.
func Inject(id uuid.UUID, frame []byte) bool {
	debugInjector.mu.Lock()
	ch, ok := debugInjector.subs[id]
	debugInjector.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- frame:
		return true
	default:
		return false
	}
}
