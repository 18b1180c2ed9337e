// Package master implements the master loop: batch assimilation,
// replanning, and dispatching download directives to peers. It is the one
// place that ties the scanner, the swarm.Coordinator and the planner
// together.
package master

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lanscatter/masterd/persist"
	tg "github.com/lanscatter/masterd/sync"
	"github.com/lanscatter/masterd/swarm"
	"github.com/lanscatter/masterd/wire"
)

// Scanner produces the authoritative Batch describing the directory being
// shared. It is polled on Config.RescanInterval; a scan failure is logged
// and the previous Batch stays authoritative.
type Scanner interface {
	Scan() (swarm.Batch, error)
}

// UploadCounters is the seed node's own view of the uploads the co-hosted
// file server is currently serving, drained into the master's Node record
// on every planner tick.
type UploadCounters interface {
	// Drain returns the number of uploads currently being served and the
	// durations of uploads that finished since the last Drain call, and
	// resets both counters.
	Drain() (active int, finishedDurations []float64)
}

// Config bundles the tunables Loop needs, all sourced from config.Config.
type Config struct {
	MasterName           string
	RescanInterval       time.Duration
	PlannerTick          time.Duration
	SeedMaxConcurrentULs int
}

// Loop is the master loop: it owns the authoritative Batch, drives
// rescans, and dispatches download directives resulting from
// swarm.PlanTransfers. batchMu serializes the handful of fields the scan
// loop writes and BatchSource reads; it is distinct from the
// Coordinator's own lock, which serializes the swarm graph itself.
type Loop struct {
	cfg Config

	coordinator *swarm.Coordinator
	scanner     Scanner
	uploads     UploadCounters
	logger      *persist.Logger

	batchMu sync.Mutex
	batch   swarm.Batch
	hashes  []swarm.Hash
	ready   bool

	replanCh chan struct{}

	masterID swarm.NodeID
}

// New constructs a Loop and registers the master's own Node in the swarm
// with the full hash universe, since the master is always a complete
// seed.
func New(cfg Config, coordinator *swarm.Coordinator, scanner Scanner, uploads UploadCounters, logger *persist.Logger) (*Loop, error) {
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = 5 * time.Second
	}
	if cfg.PlannerTick <= 0 {
		cfg.PlannerTick = 2 * time.Second
	}
	node, err := coordinator.NodeJoin(cfg.MasterName, nil, 0, cfg.SeedMaxConcurrentULs, true)
	if err != nil {
		return nil, err
	}
	return &Loop{
		cfg:         cfg,
		coordinator: coordinator,
		scanner:     scanner,
		uploads:     uploads,
		logger:      logger,
		replanCh:    make(chan struct{}, 1),
		masterID:    node.ID,
	}, nil
}

// BatchSource adapts Loop's current Batch to session.BatchSource: ok is
// false until the first successful scan has landed.
func (l *Loop) BatchSource() (swarm.Batch, []swarm.Hash, bool) {
	l.batchMu.Lock()
	defer l.batchMu.Unlock()
	return l.batch, l.hashes, l.ready
}

// TriggerReplan sets the edge-triggered replan signal. Safe to call from
// any goroutine, including a session's dispatch handlers, without
// blocking - the send is non-blocking because the channel only needs to
// remember that *a* replan is owed, not how many.
func (l *Loop) TriggerReplan() {
	select {
	case l.replanCh <- struct{}{}:
	default:
	}
}

// Run drives the scan loop and the planner loop concurrently under an
// errgroup.Group, the way the original used asyncio.wait(...,
// FIRST_COMPLETED) to run both loops side by side and surface whichever
// stopped first. Both loops exit only when threads.StopChan fires, so
// Wait() normally returns nil on a clean shutdown; Run itself returns
// immediately; the result of Wait() is logged from the goroutine it
// spawns.
func (l *Loop) Run(threads *tg.ThreadGroup) error {
	if err := threads.Add(); err != nil {
		return err
	}
	go func() {
		defer threads.Done()
		g := new(errgroup.Group)
		g.Go(func() error {
			l.scanLoop(threads)
			return nil
		})
		g.Go(func() error {
			l.plannerLoop(threads)
			return nil
		})
		if err := g.Wait(); err != nil {
			l.logger.Println("LOOP ERROR:", err)
		}
	}()
	return nil
}

// scanLoop polls the scanner on RescanInterval and assimilates any new
// Batch.
func (l *Loop) scanLoop(threads *tg.ThreadGroup) {
	ticker := time.NewTicker(l.cfg.RescanInterval)
	defer ticker.Stop()

	l.rescan()
	for {
		select {
		case <-threads.StopChan():
			return
		case <-ticker.C:
			l.rescan()
		}
	}
}

// rescan runs one scan and assimilates the result if it changed.
func (l *Loop) rescan() {
	batch, err := l.scanner.Scan()
	if err != nil {
		l.logger.Println("SCAN ERROR:", err, "- previous batch remains authoritative")
		return
	}

	l.batchMu.Lock()
	unchanged := l.ready && l.batch.Equal(batch)
	l.batchMu.Unlock()
	if unchanged {
		return
	}

	hashes := batch.Hashes()
	l.batchMu.Lock()
	l.batch = batch
	l.hashes = hashes
	l.ready = true
	l.batchMu.Unlock()

	l.coordinator.ResetHashes(hashes)
	l.broadcastNewBatch(batch)
	l.logger.Println("BATCH: new batch assimilated,", len(hashes), "chunks")
	l.TriggerReplan()
}

// broadcastNewBatch enqueues a new_batch frame onto every joined peer's
// outbound queue. The master's own Node has no queue and is skipped.
func (l *Loop) broadcastNewBatch(batch swarm.Batch) {
	wb := toWireBatch(batch)
	for _, n := range l.coordinator.AliveNodes() {
		if n.IsMaster || n.OutboundQueue == nil {
			continue
		}
		select {
		case n.OutboundQueue <- &wire.NewBatch{Action: "new_batch", Data: wb}:
		default:
			l.logger.Println("DROP: new_batch for", n.Name, "- outbound queue full")
		}
	}
}

// plannerLoop runs one planning pass whenever the replan trigger fires or
// the periodic safety-net tick elapses, whichever comes first.
func (l *Loop) plannerLoop(threads *tg.ThreadGroup) {
	ticker := time.NewTicker(l.cfg.PlannerTick)
	defer ticker.Stop()

	for {
		select {
		case <-threads.StopChan():
			return
		case <-l.replanCh:
			l.plan()
		case <-ticker.C:
			l.plan()
		}
	}
}

// plan drains the file server's upload counters into the seed Node, then
// runs PlanTransfers and dispatches the resulting directives.
func (l *Loop) plan() {
	l.drainSeedUploads()

	for _, t := range l.coordinator.PlanTransfers() {
		l.dispatchTransfer(t)
	}
}

// drainSeedUploads refreshes the master's own Node with the file server's
// current upload count and the durations of uploads that finished since
// the last drain, then clears those counters. This runs on every planner
// tick, whether triggered or periodic, and only there: a finished upload
// is recorded by the file server but neither drains the counters nor
// triggers a replan by itself.
func (l *Loop) drainSeedUploads() {
	if l.uploads == nil {
		return
	}
	active, durations := l.uploads.Drain()
	if err := l.coordinator.SetNodeActiveTransfers(l.masterID, nil, active); err != nil {
		l.logger.Println("WARN: file server reported more active uploads than the seed node's configured slots:", err)
		return
	}
	if err := l.coordinator.UpdateNodeTransferSpeed(l.masterID, durations); err != nil {
		l.logger.Println("WARN:", err)
	}
}

// dispatchTransfer enqueues a download frame on the receiver's outbound
// queue, built from the sender's dl_url_template with {hash} substituted.
func (l *Loop) dispatchTransfer(t swarm.Transfer) {
	sender, err := l.coordinator.Node(t.FromNode)
	if err != nil || sender.DLURLTemplate == "" {
		return
	}
	receiver, err := l.coordinator.Node(t.ToNode)
	if err != nil || receiver.OutboundQueue == nil {
		return
	}

	url := strings.Replace(sender.DLURLTemplate, "{hash}", string(t.Hash), 1)
	msg := &wire.Download{
		Action:  "download",
		Hash:    string(t.Hash),
		URL:     url,
		Timeout: t.TimeoutSecs,
		MaxRate: t.MaxBandwidth,
	}
	select {
	case receiver.OutboundQueue <- msg:
	default:
		l.logger.Println("DROP: download for", receiver.Name, "- outbound queue full")
	}
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
