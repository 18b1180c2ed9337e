package swarm

import "sort"

// Transfer is one planner-emitted directive: fetch Hash from FromNode on
// behalf of ToNode. Transfers are ephemeral - they exist only for the
// duration of dispatching a `download` frame and are never stored on the
// swarm graph itself.
type Transfer struct {
	Hash         Hash
	FromNode     NodeID
	ToNode       NodeID
	TimeoutSecs  float64
	MaxBandwidth float64
}

// reservation tracks the capacity a candidate transfer would consume,
// local to a single planning pass, so later selections in the same pass
// see an up-to-date picture without mutating any Node.
type reservation struct {
	freeDL map[NodeID]int
	freeUL map[NodeID]int
	taken  map[activeDownloadKey]struct{} // (hash, receiver) reserved this pass
}

// PlanTransfers is a pure function over the current swarm state that
// selects a set of new transfers respecting capacity, preferring
// rarest-first, then fastest uploader. It never mutates the swarm graph
// and never blocks; running it twice on an unchanged swarm yields an
// identical sequence of Transfers.
func (c *Coordinator) PlanTransfers() []Transfer {
	id := c.mu.RLock("Coordinator.PlanTransfers")
	defer c.mu.RUnlock("Coordinator.PlanTransfers", id)

	alive := c.aliveNodesLocked()
	if len(c.allHashes) == 0 || len(alive) == 0 {
		return nil
	}

	rarity := make(map[Hash]int, len(c.allHashes))
	for _, h := range c.allHashes {
		n := 0
		for _, node := range alive {
			if node.HasHash(h) {
				n++
			}
		}
		rarity[h] = n
	}

	res := &reservation{
		freeDL: make(map[NodeID]int, len(alive)),
		freeUL: make(map[NodeID]int, len(alive)),
		taken:  make(map[activeDownloadKey]struct{}),
	}
	for _, n := range alive {
		res.freeDL[n.ID] = n.FreeDownloadSlots()
		res.freeUL[n.ID] = n.FreeUploadSlots()
	}

	// Ascending rarity, ties broken by stable position in allHashes (the
	// sort below is stable and allHashes is already iterated in order).
	hashesByRarity := append([]Hash(nil), c.allHashes...)
	sort.SliceStable(hashesByRarity, func(i, j int) bool {
		return rarity[hashesByRarity[i]] < rarity[hashesByRarity[j]]
	})

	var transfers []Transfer
	for _, h := range hashesByRarity {
		if rarity[h] == 0 {
			continue // unavailable: no alive node holds it
		}

		receivers := c.eligibleReceivers(alive, h, res)
		sort.SliceStable(receivers, func(i, j int) bool {
			return len(receivers[i].Hashes) < len(receivers[j].Hashes)
		})

		for _, recv := range receivers {
			if res.freeDL[recv.ID] <= 0 {
				continue
			}
			if _, already := res.taken[activeDownloadKey{Hash: h, From: recv.ID}]; already {
				continue
			}

			sender := c.bestSender(alive, h, recv.ID, res)
			if sender == nil {
				continue
			}

			transfers = append(transfers, c.makeTransfer(h, sender, recv))
			res.freeDL[recv.ID]--
			res.freeUL[sender.ID]--
			res.taken[activeDownloadKey{Hash: h, From: recv.ID}] = struct{}{}
		}
	}
	return transfers
}

// eligibleReceivers returns the alive, non-master nodes that still need h
// and have a free download slot remaining this pass.
func (c *Coordinator) eligibleReceivers(alive []*Node, h Hash, res *reservation) []*Node {
	var out []*Node
	for _, n := range alive {
		if n.IsMaster || n.HasHash(h) || n.IsDownloading(h) {
			continue
		}
		if res.freeDL[n.ID] <= 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}

// bestSender picks, among alive nodes holding h with a free upload slot and
// link-mapper permission to reach receiver, the one with the smallest
// AvgUploadTime (unknown treated as neutral, i.e. worst), breaking ties by
// ascending ActiveUploadsCount, then by Name.
func (c *Coordinator) bestSender(alive []*Node, h Hash, receiver NodeID, res *reservation) *Node {
	var best *Node
	var bestAvg float64
	for _, s := range alive {
		if s.ID == receiver || !s.HasHash(h) || s.IsDownloading(h) {
			continue
		}
		if res.freeUL[s.ID] <= 0 {
			continue
		}
		if !c.linkMapper.CanSend(s.ID, receiver) {
			continue
		}

		avg := s.AvgUploadTime()
		if avg < 0 {
			avg = neutralAvgUploadTime
		}

		if best == nil {
			best, bestAvg = s, avg
			continue
		}
		if avg < bestAvg ||
			(avg == bestAvg && s.ActiveUploadsCount() < best.ActiveUploadsCount()) ||
			(avg == bestAvg && s.ActiveUploadsCount() == best.ActiveUploadsCount() && s.Name < best.Name) {
			best, bestAvg = s, avg
		}
	}
	return best
}

// neutralAvgUploadTime is the tie-break value substituted for a sender with
// no observed upload history ("unknown = neutral"). It is larger than any
// realistic avg_ul_time so a sender with real history is always preferred
// over one with none, while two unknown senders still tie (and fall
// through to the activeUploadsCount/name tie-breaks).
const neutralAvgUploadTime = 1e18

// makeTransfer derives timeout_secs and max_bandwidth for a transfer of h
// from sender to receiver.
func (c *Coordinator) makeTransfer(h Hash, sender, receiver *Node) Transfer {
	avg := sender.AvgUploadTime()

	timeout := defaultTransferTimeout.Seconds()
	if avg >= 0 {
		timeout = avg * transferTimeoutFactor
		if timeout < transferTimeoutFloor.Seconds() {
			timeout = transferTimeoutFloor.Seconds()
		}
	}

	maxBandwidth := 0.0
	if sender.MaxConcurrentULs > 0 {
		maxBandwidth = float64(senderUploadBudget) / float64(sender.MaxConcurrentULs)
	}

	return Transfer{
		Hash:         h,
		FromNode:     sender.ID,
		ToNode:       receiver.ID,
		TimeoutSecs:  timeout,
		MaxBandwidth: maxBandwidth,
	}
}

// senderUploadBudget is a sender's overall upload bandwidth budget in bytes
// per second; makeTransfer divides it by the sender's MaxConcurrentULs to
// get each transfer's max_bandwidth. It is a fixed ceiling rather than a
// measured value - the receiver treats it only as a soft cap.
var senderUploadBudget = 10 << 20 // 10 MiB/s, not configurable
