// Package session implements the peer-session half of the control
// protocol: a websocket-framed message loop per connected peer that
// bridges the wire protocol to a swarm.Node. Exactly one goroutine
// processes inbound frames for a given Session, in arrival order,
// regardless of whether they came off the socket or were scheduled by the
// debug injector - this is what gives the per-peer ordering guarantee
// even though every session runs concurrently with every other.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lanscatter/masterd/persist"
	"github.com/lanscatter/masterd/swarm"
	"github.com/lanscatter/masterd/wire"
)

// BatchSource is consulted for the current authoritative Batch. It returns
// ok=false while the master is still waiting on the first scan, in which
// case the session answers every frame with a "hold on" OK instead of
// processing it.
type BatchSource func() (batch swarm.Batch, hashes []swarm.Hash, ok bool)

// Config bundles the tunables a Session needs from its owner; all of them
// are expected to come from config.Config.
type Config struct {
	MasterVersion   string
	QueueCapacity   int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	UploadBandwidth int
}

// Session is one connected peer's control-channel actor.
type Session struct {
	ID   uuid.UUID
	conn *websocket.Conn
	cfg  Config

	coordinator *swarm.Coordinator
	batchSource BatchSource

	// onReplanNeeded is invoked after any handler that may open a free
	// slot or change the swarm graph, so the owning master loop can set
	// the replan trigger. It is the session's only contact with the
	// master loop, keeping it decoupled from the loop's own scheduling.
	onReplanNeeded func()

	logger *persist.Logger
	nick   string

	state           State
	node            *swarm.Node
	gotInitialBatch bool

	outbound chan interface{}
	injected chan []byte
	rawIn    chan []byte

	writeLoopDone chan struct{}

	signalOnce sync.Once
	closed     chan struct{}

	closeOnce sync.Once
}

// New returns a Session wrapping an already-upgraded websocket connection.
// Run must be called to actually process frames.
func New(conn *websocket.Conn, cfg Config, coordinator *swarm.Coordinator, batchSource BatchSource, onReplanNeeded func(), logger *persist.Logger) *Session {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 64
	}
	s := &Session{
		ID:             uuid.New(),
		conn:           conn,
		cfg:            cfg,
		coordinator:    coordinator,
		batchSource:    batchSource,
		onReplanNeeded: onReplanNeeded,
		logger:         logger,
		state:          Connected,
		outbound:       make(chan interface{}, cfg.QueueCapacity),
		injected:       make(chan []byte, 8),
		rawIn:          make(chan []byte, 8),
		writeLoopDone:  make(chan struct{}),
		closed:         make(chan struct{}),
	}
	debugInjector.register(s.ID, s.injected)
	return s
}

// State returns the session's current state, for tests and status display.
func (s *Session) State() State { return s.state }

// Node returns the swarm.Node associated with this session, or nil if the
// peer has not joined.
func (s *Session) Node() *swarm.Node { return s.node }

// Run drives the session until the connection closes or the session is
// closed by the caller. It spawns the socket read pump and the outbound
// write loop, and processes frames sequentially on the calling goroutine.
func (s *Session) Run() {
	defer s.Close()

	go s.readPump()
	go s.writeLoop()

	s.sendWelcome()

	// Re-check every 5s so initial_batch is pushed once a Batch exists,
	// with a "hold on" OK on each check before that.
	recheck := time.NewTicker(5 * time.Second)
	defer recheck.Stop()

	for {
		select {
		case <-s.closed:
			return
		case data, ok := <-s.rawIn:
			if !ok {
				return
			}
			s.handleFrame(data)
		case data := <-s.injected:
			s.handleFrame(data)
		case <-recheck.C:
			s.sendInitialBatchOrHoldOn()
		}
	}
}

// readPump blocks on conn.ReadMessage in its own goroutine and forwards
// each frame onto rawIn, so the processing loop in Run never blocks on the
// socket directly.
func (s *Session) readPump() {
	defer close(s.rawIn)
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.rawIn <- data:
		case <-s.closed:
			return
		}
	}
}

// writeLoop drains the outbound queue and writes each message to the
// socket, plus sends periodic pings. It is the only goroutine that ever
// calls conn.WriteJSON, so writes are never interleaved. On s.closed it
// flushes whatever is still queued (at minimum a pending fatal frame)
// before returning, so Close can rely on the peer having received it
// before the socket goes away. A write error only signals the closed
// channel rather than calling the full Close, since Close waits on this
// goroutine to finish and must never be invoked from it.
func (s *Session) writeLoop() {
	defer close(s.writeLoopDone)
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			s.flushOutbound()
			return
		case msg, ok := <-s.outbound:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.signalClose()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.signalClose()
				return
			}
		}
	}
}

// flushOutbound writes every message already queued on outbound, in
// order, without blocking on new arrivals. Called once writeLoop has been
// told to stop, so a fatal frame enqueued just before Close is not lost.
func (s *Session) flushOutbound() {
	for {
		select {
		case msg := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// signalClose closes the closed channel exactly once. Safe to call from
// any goroutine, including writeLoop and readPump on a socket error.
func (s *Session) signalClose() {
	s.signalOnce.Do(func() { close(s.closed) })
}

// sendWelcome sends the first frame the peer will ever see: initial_batch
// if a Batch already exists, or a "hold on" OK otherwise. This is the same
// check handleFrame repeats on every subsequent frame, and Run every 5s,
// until a Batch becomes available.
func (s *Session) sendWelcome() {
	s.sendInitialBatchOrHoldOn()
}

// sendInitialBatchOrHoldOn sends initial_batch exactly once, the first
// time a Batch is available, and a "hold on" OK every time it is called
// before that. It reports whether the initial handshake has now gone out.
func (s *Session) sendInitialBatchOrHoldOn() (ready bool) {
	if s.gotInitialBatch {
		return true
	}
	batch, _, ok := s.batchSource()
	if !ok {
		s.enqueue(&wire.OK{Action: "ok", Message: "hold on, still scanning"})
		return false
	}
	s.enqueue(&wire.InitialBatch{
		Action:  "initial_batch",
		Message: "welcome",
		Data:    toWireBatch(batch),
	})
	s.gotInitialBatch = true
	return true
}

// enqueue places msg on the outbound queue without blocking. A session
// whose queue is full is treated as a slow consumer and dropped.
func (s *Session) enqueue(msg interface{}) {
	select {
	case s.outbound <- msg:
	default:
		s.logger.Println("DROP: outbound queue full for session", s.ID, "- dropping slow consumer")
		s.Close()
	}
}

// Close tears the session down: marks it Closed, destroys its Node if any,
// closes the socket, and unregisters it from the debug injector. It is
// safe to call more than once, and from a different goroutine than Run
// (e.g. a handler invoked on the Run goroutine itself). It waits for
// writeLoop to flush any already-queued frame - notably a just-enqueued
// fatal frame - before closing the underlying connection, so the peer
// reads the reason for its disconnection instead of just seeing the
// socket drop. Must never be called from writeLoop itself.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.signalClose()
		if s.conn != nil {
			<-s.writeLoopDone
		}
		debugInjector.unregister(s.ID)
		if s.node != nil {
			s.coordinator.RemoveNode(s.node.ID)
			s.logger.Println("DESTROY: node", s.node.ID, "destroyed on session close")
		}
		s.state = Closed
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

func toWireBatch(b swarm.Batch) wire.Batch {
	wb := wire.Batch{Chunks: make([]wire.Chunk, len(b.Chunks))}
	for i, c := range b.Chunks {
		wb.Chunks[i] = wire.Chunk{
			Hash:     string(c.Hash),
			Path:     c.Path,
			Pos:      c.Pos,
			Size:     c.Size,
			CmpRatio: c.CmpRatio,
		}
	}
	return wb
}
