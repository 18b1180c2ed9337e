package swarm

// NodeID is a stable identifier for a Node record. Sessions and Transfers
// hold a NodeID rather than a pointer into another node's state, so that
// the Coordinator remains the sole owner of Node lifetime (see DESIGN.md's
// note on the Node/Swarm/Session reference cycle).
type NodeID string

// activeDownloadKey identifies one in-flight download: the hash being
// fetched and the node it is being fetched from.
type activeDownloadKey struct {
	Hash Hash
	From NodeID
}

// Node is one swarm participant: a peer, or the master itself.
type Node struct {
	ID   NodeID
	Name string

	// IsMaster is true for exactly the Node representing the master; such
	// a Node's Hashes always equals the swarm universe and it is never a
	// transfer receiver.
	IsMaster bool

	// Alive is false once Destroy has been called. A dead node is never
	// selected by the planner and is skipped by every reader.
	Alive bool

	Hashes map[Hash]struct{}

	MaxConcurrentDLs int
	MaxConcurrentULs int

	activeDownloads    map[activeDownloadKey]float64
	activeUploadsCount int

	// ulDurations is a fixed-size ring buffer of the node's most recent
	// per-chunk upload durations, in seconds.
	ulDurations [avgUploadWindow]float64
	ulCount     int // number of samples written so far, saturating at len(ulDurations)
	ulNext      int // next ring buffer slot to write

	// DLURLTemplate and OutboundQueue are the out-edge back to the
	// session: a template like "http://host:port/blob/{hash}" and the
	// channel the session drains to write frames to the peer. Both are
	// zero for the master Node, which has no client connection.
	DLURLTemplate string
	OutboundQueue chan<- interface{}
}

// newNode constructs a Node with empty hash/transfer state.
func newNode(id NodeID, name string, isMaster bool, maxDLs, maxULs int) *Node {
	return &Node{
		ID:               id,
		Name:             name,
		IsMaster:         isMaster,
		Alive:            true,
		Hashes:           make(map[Hash]struct{}),
		MaxConcurrentDLs: maxDLs,
		MaxConcurrentULs: maxULs,
		activeDownloads:  make(map[activeDownloadKey]float64),
	}
}

// HasHash reports whether the node currently claims to possess h.
func (n *Node) HasHash(h Hash) bool {
	_, ok := n.Hashes[h]
	return ok
}

// AddHashes adds hs to the node's hash set, filtered against universe. If
// clearFirst is true, the node's hash set is replaced by the intersection
// of hs and universe instead of being unioned into. It returns the subset
// of hs that was not in universe, for the caller to report back as a
// rehash.
func (n *Node) AddHashes(hs []Hash, clearFirst bool, universe map[Hash]struct{}) (unknown []Hash) {
	if clearFirst {
		n.Hashes = make(map[Hash]struct{}, len(hs))
	}
	for _, h := range hs {
		if _, ok := universe[h]; !ok {
			unknown = append(unknown, h)
			continue
		}
		n.Hashes[h] = struct{}{}
	}
	return unknown
}

// ActiveDownload is one entry of the mapping reported by a peer via
// report_transfers: the hash being fetched, the node it is coming from, and
// the bandwidth cap the peer applied to that transfer.
type ActiveDownload struct {
	Hash         Hash
	From         NodeID
	MaxBandwidth float64
}

// SetActiveTransfers replaces the node's active-download set and upload
// count. isAlive reports whether a given NodeID currently names a live
// node, so that active_downloads entries referencing a dead sender are
// rejected. It rejects inputs that overlap the node's own hashes,
// duplicate a hash across senders, reference a dead sender, or exceed the
// node's negotiated capacity, leaving the node's previous state
// untouched.
func (n *Node) SetActiveTransfers(downloads []ActiveDownload, ulCount int, isAlive func(NodeID) bool) error {
	if len(downloads) > n.MaxConcurrentDLs {
		return ErrTooManyDownloads
	}
	if ulCount > n.MaxConcurrentULs || ulCount < 0 {
		return ErrTooManyUploads
	}

	next := make(map[activeDownloadKey]float64, len(downloads))
	seenHash := make(map[Hash]struct{}, len(downloads))
	for _, d := range downloads {
		if n.HasHash(d.Hash) {
			return ErrBadActiveDownloads
		}
		if _, dup := seenHash[d.Hash]; dup {
			return ErrBadActiveDownloads
		}
		if !isAlive(d.From) {
			return ErrDeadSender
		}
		seenHash[d.Hash] = struct{}{}
		next[activeDownloadKey{Hash: d.Hash, From: d.From}] = d.MaxBandwidth
	}

	n.activeDownloads = next
	n.activeUploadsCount = ulCount
	return nil
}

// ActiveDownloads returns the node's current active-download set.
func (n *Node) ActiveDownloads() map[activeDownloadKey]float64 {
	return n.activeDownloads
}

// IsDownloading reports whether the node has an in-flight download for h,
// regardless of sender.
func (n *Node) IsDownloading(h Hash) bool {
	for k := range n.activeDownloads {
		if k.Hash == h {
			return true
		}
	}
	return false
}

// ActiveUploadsCount returns the number of uploads the node is currently
// serving, as last reported via report_transfers.
func (n *Node) ActiveUploadsCount() int {
	return n.activeUploadsCount
}

// FreeDownloadSlots and FreeUploadSlots return how much capacity the node
// has left for new transfers this planning pass.
func (n *Node) FreeDownloadSlots() int {
	return n.MaxConcurrentDLs - len(n.activeDownloads)
}

func (n *Node) FreeUploadSlots() int {
	return n.MaxConcurrentULs - n.activeUploadsCount
}

// UpdateTransferSpeed appends each positive duration to the node's bounded
// upload-duration window. Non-positive durations are ignored; they cannot
// correspond to a real upload.
func (n *Node) UpdateTransferSpeed(durations []float64) {
	for _, d := range durations {
		if d <= 0 {
			continue
		}
		n.ulDurations[n.ulNext] = d
		n.ulNext = (n.ulNext + 1) % len(n.ulDurations)
		if n.ulCount < len(n.ulDurations) {
			n.ulCount++
		}
	}
}

// AvgUploadTime returns the arithmetic mean of the node's recent upload
// durations, or -1 if no samples have been recorded yet.
func (n *Node) AvgUploadTime() float64 {
	if n.ulCount == 0 {
		return -1
	}
	var sum float64
	for i := 0; i < n.ulCount; i++ {
		sum += n.ulDurations[i]
	}
	return sum / float64(n.ulCount)
}

// Destroy marks the node dead and clears its hashes and out-edges. It is
// idempotent: calling it twice has no additional effect.
func (n *Node) Destroy() {
	if !n.Alive {
		return
	}
	n.Alive = false
	n.Hashes = make(map[Hash]struct{})
	n.activeDownloads = make(map[activeDownloadKey]float64)
	n.activeUploadsCount = 0
	n.DLURLTemplate = ""
	n.OutboundQueue = nil
}
