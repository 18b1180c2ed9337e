package swarm

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lanscatter/masterd/lock"
)

// Coordinator owns the set of nodes and the authoritative hash universe.
// All of its mutators serialize through a single deadlock-detecting lock,
// the way modules/gateway.go's g.mu serializes mutation of a peer list:
// every peer session runs on its own goroutine, but only one can be
// mutating the swarm graph at a time.
type Coordinator struct {
	mu *lock.Lock

	nodes     map[NodeID]*Node
	allHashes []Hash
	hashSet   map[Hash]struct{}
	masterID  NodeID
	hasMaster bool

	linkMapper LinkMapper

	nextID int
}

// NewCoordinator returns an empty Coordinator using the given LinkMapper to
// decide which nodes may transfer to which.
func NewCoordinator(linkMapper LinkMapper) *Coordinator {
	if linkMapper == nil {
		linkMapper = FullMesh{}
	}
	return &Coordinator{
		mu:         lock.New(5 * time.Second),
		nodes:      make(map[NodeID]*Node),
		hashSet:    make(map[Hash]struct{}),
		linkMapper: linkMapper,
	}
}

// NodeJoin allocates a new Node, filters initialHashes against the current
// universe, and adds it to the swarm. At most one master Node may exist;
// NodeJoin returns ErrAlreadyMaster if master is true and one already does.
func (c *Coordinator) NodeJoin(name string, initialHashes []Hash, maxDLs, maxULs int, master bool) (*Node, error) {
	id := c.mu.Lock("Coordinator.NodeJoin")
	defer c.mu.Unlock("Coordinator.NodeJoin", id)

	if master && c.hasMaster {
		return nil, ErrAlreadyMaster
	}

	c.nextID++
	nodeID := NodeID(name)
	if _, exists := c.nodes[nodeID]; exists {
		// A live node is already registered under this name; the session
		// layer is responsible for destroying and removing the previous
		// Node before rejoining (JOINED -> REJOINING -> JOINED). Suffix
		// the ID so the new Node never aliases a still-registered one.
		nodeID = NodeID(name + "#" + strconv.Itoa(c.nextID))
	}

	n := newNode(nodeID, name, master, maxDLs, maxULs)
	if master {
		// The master's hashes always equal the universe exactly, not just
		// the filtered initialHashes: the master is always a complete seed.
		for h := range c.hashSet {
			n.Hashes[h] = struct{}{}
		}
		c.masterID = nodeID
		c.hasMaster = true
	} else {
		n.AddHashes(initialHashes, true, c.hashSet)
	}
	c.nodes[nodeID] = n
	return n, nil
}

// ResetHashes replaces the swarm universe with newUniverse. Every node's
// hash set is intersected with the new universe, dropping stale hashes,
// and the master node (if any) is brought up to exactly the new universe.
func (c *Coordinator) ResetHashes(newUniverse []Hash) {
	id := c.mu.Lock("Coordinator.ResetHashes")
	defer c.mu.Unlock("Coordinator.ResetHashes", id)

	c.allHashes = append([]Hash(nil), newUniverse...)
	c.hashSet = make(map[Hash]struct{}, len(newUniverse))
	for _, h := range newUniverse {
		c.hashSet[h] = struct{}{}
	}

	for id, n := range c.nodes {
		if !n.Alive {
			continue
		}
		if id == c.masterID && c.hasMaster {
			n.Hashes = make(map[Hash]struct{}, len(c.hashSet))
			for h := range c.hashSet {
				n.Hashes[h] = struct{}{}
			}
			continue
		}
		kept := make(map[Hash]struct{}, len(n.Hashes))
		for h := range n.Hashes {
			if _, ok := c.hashSet[h]; ok {
				kept[h] = struct{}{}
			}
		}
		n.Hashes = kept
	}
}

// AllHashes returns the current universe in display order.
func (c *Coordinator) AllHashes() []Hash {
	id := c.mu.RLock("Coordinator.AllHashes")
	defer c.mu.RUnlock("Coordinator.AllHashes", id)
	return append([]Hash(nil), c.allHashes...)
}

// Node returns the node with the given ID, or nil and ErrUnknownNode if no
// such node exists (including a node that has been destroyed and whose ID
// was never reused).
func (c *Coordinator) Node(id NodeID) (*Node, error) {
	rid := c.mu.RLock("Coordinator.Node")
	defer c.mu.RUnlock("Coordinator.Node", rid)
	n, ok := c.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}
	return n, nil
}

// RemoveNode destroys the node with the given ID, if it exists, and drops
// it from the coordinator's registry entirely so its identifier can be
// reused by a future join.
func (c *Coordinator) RemoveNode(id NodeID) {
	rid := c.mu.Lock("Coordinator.RemoveNode")
	defer c.mu.Unlock("Coordinator.RemoveNode", rid)
	if n, ok := c.nodes[id]; ok {
		n.Destroy()
		delete(c.nodes, id)
	}
}

// IsAlive reports whether id currently names a live node. It has the shape
// of the alive-check Node.SetActiveTransfers takes, which rejects a report
// naming a sender that is not alive; SetNodeActiveTransfers passes
// isAliveLocked instead since it already holds c.mu.
func (c *Coordinator) IsAlive(id NodeID) bool {
	rid := c.mu.RLock("Coordinator.IsAlive")
	defer c.mu.RUnlock("Coordinator.IsAlive", rid)
	return c.isAliveLocked(id)
}

// isAliveLocked is IsAlive's body for callers that already hold c.mu.
func (c *Coordinator) isAliveLocked(id NodeID) bool {
	n, ok := c.nodes[id]
	return ok && n.Alive
}

// UpdateNodeHashes adds hashes to the node's hash set under the
// coordinator's write lock, with AddHashes's clearFirst/filter semantics.
// It returns the subset of hashes not in the current universe. Every
// mutation of a Node's state must go through a Coordinator method like
// this one rather than calling the Node method directly, since planner.go
// and GetStatusTable read every alive node's Hashes/activeDownloads/
// upload window under c.mu and would otherwise race with a session
// goroutine mutating them unlocked.
func (c *Coordinator) UpdateNodeHashes(id NodeID, hashes []Hash, clearFirst bool) ([]Hash, error) {
	rid := c.mu.Lock("Coordinator.UpdateNodeHashes")
	defer c.mu.Unlock("Coordinator.UpdateNodeHashes", rid)
	n, ok := c.nodes[id]
	if !ok {
		return nil, ErrUnknownNode
	}
	return n.AddHashes(hashes, clearFirst, c.hashSet), nil
}

// SetNodeActiveTransfers replaces a node's active-download set and upload
// count under the coordinator's write lock. See UpdateNodeHashes for why
// this indirection exists.
func (c *Coordinator) SetNodeActiveTransfers(id NodeID, downloads []ActiveDownload, ulCount int) error {
	rid := c.mu.Lock("Coordinator.SetNodeActiveTransfers")
	defer c.mu.Unlock("Coordinator.SetNodeActiveTransfers", rid)
	n, ok := c.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	return n.SetActiveTransfers(downloads, ulCount, c.isAliveLocked)
}

// UpdateNodeTransferSpeed appends upload durations to a node's window under
// the coordinator's write lock. See UpdateNodeHashes for why this
// indirection exists.
func (c *Coordinator) UpdateNodeTransferSpeed(id NodeID, durations []float64) error {
	rid := c.mu.Lock("Coordinator.UpdateNodeTransferSpeed")
	defer c.mu.Unlock("Coordinator.UpdateNodeTransferSpeed", rid)
	n, ok := c.nodes[id]
	if !ok {
		return ErrUnknownNode
	}
	n.UpdateTransferSpeed(durations)
	return nil
}

// NodeFreeSlots returns a node's current free download/upload slot counts
// under the coordinator's read lock. Reading FreeDownloadSlots/
// FreeUploadSlots straight off a *Node without going through the
// coordinator would race with planner.go and GetStatusTable, which read
// the same fields under c.mu.
func (c *Coordinator) NodeFreeSlots(id NodeID) (dl, ul int, err error) {
	rid := c.mu.RLock("Coordinator.NodeFreeSlots")
	defer c.mu.RUnlock("Coordinator.NodeFreeSlots", rid)
	n, ok := c.nodes[id]
	if !ok {
		return 0, 0, ErrUnknownNode
	}
	return n.FreeDownloadSlots(), n.FreeUploadSlots(), nil
}

// ResolveSenderByURL maps a reported download URL back to the NodeID whose
// DLURLTemplate, with its "{hash}" placeholder stripped, is a prefix of
// url. The first match in node iteration order wins; ties are not treated
// as an error (see DESIGN.md's Open Question decision on this).
func (c *Coordinator) ResolveSenderByURL(url string) (NodeID, bool) {
	id := c.mu.RLock("Coordinator.ResolveSenderByURL")
	defer c.mu.RUnlock("Coordinator.ResolveSenderByURL", id)

	for _, n := range c.aliveNodesLocked() {
		if n.DLURLTemplate == "" {
			continue
		}
		prefix := n.DLURLTemplate
		if i := strings.Index(prefix, "{hash}"); i >= 0 {
			prefix = prefix[:i]
		}
		if strings.HasPrefix(url, prefix) {
			return n.ID, true
		}
	}
	return "", false
}

// AliveNodes returns the currently alive nodes, sorted by NodeID. Used by
// the master loop to broadcast new_batch.
func (c *Coordinator) AliveNodes() []*Node {
	id := c.mu.RLock("Coordinator.AliveNodes")
	defer c.mu.RUnlock("Coordinator.AliveNodes", id)
	return c.aliveNodesLocked()
}

// aliveNodesLocked returns the alive nodes, sorted by NodeID for
// deterministic iteration order. Callers must hold c.mu.
func (c *Coordinator) aliveNodesLocked() []*Node {
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if n.Alive {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// StatusNode is one row of a status table snapshot: a node's name, its
// possession state for every hash in the universe, and its live transfer
// counters.
type StatusNode struct {
	Name       string
	IsMaster   bool
	Possession []float64 // parallel to StatusTable.AllHashes: 1 have, 0.5 downloading, 0 missing
	Downloads  int
	Uploads    int
	AvgULTime  float64
}

// StatusTable is the rendering-friendly snapshot returned by
// GetStatusTable, consumed by the HTML status page.
type StatusTable struct {
	AllHashes []Hash
	Nodes     []StatusNode
}

// GetStatusTable renders the current swarm state for the status page.
func (c *Coordinator) GetStatusTable() StatusTable {
	id := c.mu.RLock("Coordinator.GetStatusTable")
	defer c.mu.RUnlock("Coordinator.GetStatusTable", id)

	table := StatusTable{AllHashes: append([]Hash(nil), c.allHashes...)}
	for _, n := range c.aliveNodesLocked() {
		row := StatusNode{
			Name:      n.Name,
			IsMaster:  n.IsMaster,
			Downloads: len(n.activeDownloads),
			Uploads:   n.activeUploadsCount,
			AvgULTime: n.AvgUploadTime(),
		}
		row.Possession = make([]float64, len(table.AllHashes))
		for i, h := range table.AllHashes {
			switch {
			case n.HasHash(h):
				row.Possession[i] = 1
			case n.IsDownloading(h):
				row.Possession[i] = 0.5
			default:
				row.Possession[i] = 0
			}
		}
		table.Nodes = append(table.Nodes, row)
	}
	return table
}
