package session

import (
	"strings"

	"github.com/NebulousLabs/errors"

	"github.com/lanscatter/masterd/swarm"
	"github.com/lanscatter/masterd/wire"
)

// handleFrame decodes and dispatches one inbound frame. It never panics on
// bad input: a malformed or out-of-order frame yields an error/fatal reply
// instead. Exactly one call to handleFrame is ever in flight for a given
// Session, so Node mutations below never race with each other.
func (s *Session) handleFrame(data []byte) {
	if !s.sendInitialBatchOrHoldOn() {
		// Still awaiting the first Batch: every frame gets a polite
		// "hold on" reply instead of being processed. This is not an
		// error.
		return
	}

	msg, err := wire.Decode(data)
	if err != nil {
		s.handleDecodeError(data, err)
		return
	}

	switch m := msg.(type) {
	case *wire.Version:
		s.handleVersion(m)
	case *wire.JoinSwarm:
		s.handleJoinSwarm(m)
	case *wire.SetHashes:
		s.handleSetOrAddHashes(m.Hashes, true)
	case *wire.AddHashes:
		s.handleSetOrAddHashes(m.Hashes, false)
	case *wire.ReportTransfers:
		s.handleReportTransfers(m)
	case *wire.InboundError:
		s.logger.Println("PEER ERROR:", s.nick, m.Message)
	}
}

// handleDecodeError maps a wire.Decode failure onto the fatal/transient
// split: no action and bad JSON are always fatal, regardless of session
// state, matching how bad JSON was always fatal there; while still
// unversioned (Connected) every other decode error is fatal too, an unknown
// action and a malformed handshake alike; after that, an unknown action or
// a known action with a missing or mistyped argument is a transient error.
func (s *Session) handleDecodeError(data []byte, err error) {
	if err == wire.ErrNoAction || errors.Contains(err, wire.ErrBadJSON) {
		s.sendFatal("malformed frame: "+err.Error(), data)
		s.Close()
		return
	}
	if s.state == Connected {
		s.sendFatal("malformed handshake", data)
		s.Close()
		return
	}
	s.sendError("could not parse frame: "+err.Error(), data)
}

func (s *Session) handleVersion(v *wire.Version) {
	if s.state != Connected {
		s.sendError("unexpected version handshake", v)
		return
	}
	if majorVersion(v.Protocol) != majorVersion(s.cfg.MasterVersion) {
		s.sendFatal("protocol version mismatch: peer="+v.Protocol+" master="+s.cfg.MasterVersion, v)
		s.Close()
		return
	}
	s.state = Versioned
}

func (s *Session) handleJoinSwarm(j *wire.JoinSwarm) {
	if s.state != Versioned && s.state != Joined {
		s.sendFatal("join_swarm received before a valid version handshake", j)
		s.Close()
		return
	}
	if !strings.Contains(j.DLURL, "http") || !strings.Contains(j.DLURL, "{hash}") {
		s.sendError(ErrBadDLURL.Error(), j)
		return
	}

	if s.state == Joined {
		// Second join_swarm: JOINED -> REJOINING -> JOINED.
		s.state = Rejoining
		s.logger.Println("REJOIN:", s.nick, "destroying previous node", s.node.ID)
		s.coordinator.RemoveNode(s.node.ID)
		s.node = nil
	}

	hashes := toSwarmHashes(j.Hashes)
	node, err := s.coordinator.NodeJoin(j.Nick, hashes, j.ConcurrentTransfers, j.ConcurrentTransfers, false)
	if err != nil {
		s.sendError(err.Error(), j)
		s.state = Versioned
		return
	}
	node.DLURLTemplate = j.DLURL
	node.OutboundQueue = s.outbound

	s.nick = j.Nick
	s.node = node
	s.state = Joined

	batch, hashUniverse, _ := s.batchSource()
	unknown := diffUnknown(hashes, hashUniverse)
	s.enqueue(&wire.NewBatch{Action: "new_batch", Data: toWireBatch(batch)})
	if len(unknown) > 0 {
		s.sendRehash(unknown)
	}
	if s.onReplanNeeded != nil {
		s.onReplanNeeded()
	}
}

func (s *Session) handleSetOrAddHashes(hashes []string, clearFirst bool) {
	if s.state != Joined {
		s.sendError(ErrNotJoined.Error(), nil)
		return
	}
	unknown, err := s.coordinator.UpdateNodeHashes(s.node.ID, toSwarmHashes(hashes), clearFirst)
	if err != nil {
		s.sendError(err.Error(), nil)
		return
	}
	if len(unknown) > 0 {
		s.sendRehash(unknown)
	}
	if s.onReplanNeeded != nil {
		s.onReplanNeeded()
	}
}

func (s *Session) handleReportTransfers(r *wire.ReportTransfers) {
	if s.state != Joined {
		s.sendError(ErrNotJoined.Error(), nil)
		return
	}

	downloads := make([]swarm.ActiveDownload, 0, len(r.DLs))
	for _, dl := range r.DLs {
		from, ok := s.resolveSender(dl.URL)
		if !ok {
			s.logger.Println("WARN: could not resolve sender for url", dl.URL, "reported by", s.nick)
			continue
		}
		downloads = append(downloads, swarm.ActiveDownload{
			Hash:         swarm.Hash(dl.Hash),
			From:         from,
			MaxBandwidth: dl.MbpsLimit,
		})
	}

	dlFree, ulFree, _ := s.coordinator.NodeFreeSlots(s.node.ID)
	hadFreeSlot := dlFree > 0 || ulFree > 0
	if err := s.coordinator.SetNodeActiveTransfers(s.node.ID, downloads, r.ULCount); err != nil {
		s.sendError(err.Error(), r)
		return
	}
	if err := s.coordinator.UpdateNodeTransferSpeed(s.node.ID, r.ULTimes); err != nil {
		s.sendError(err.Error(), r)
		return
	}

	dlFree, ulFree, _ = s.coordinator.NodeFreeSlots(s.node.ID)
	if s.onReplanNeeded != nil && (hadFreeSlot || dlFree > 0 || ulFree > 0) {
		s.onReplanNeeded()
	}
}

// resolveSender maps a reported download URL back to the NodeID whose
// dl_url_template prefix matches: the sender's dl_url_template with
// {hash} stripped, first match in the current node list wins.
func (s *Session) resolveSender(url string) (swarm.NodeID, bool) {
	return s.coordinator.ResolveSenderByURL(url)
}

func (s *Session) sendOK(message string) {
	s.enqueue(&wire.OK{Action: "ok", Message: message})
}

func (s *Session) sendError(message string, orig interface{}) {
	s.enqueue(&wire.OutboundError{Action: "error", Message: message, OrigMsg: orig})
}

func (s *Session) sendFatal(message string, orig interface{}) {
	s.enqueue(&wire.Fatal{Action: "fatal", Message: message, OrigMsg: orig})
}

func (s *Session) sendRehash(unknown []swarm.Hash) {
	strs := make([]string, len(unknown))
	for i, h := range unknown {
		strs[i] = string(h)
	}
	s.enqueue(&wire.Rehash{Action: "rehash", Message: "unknown hashes", UnknownHashes: strs})
}

func toSwarmHashes(hs []string) []swarm.Hash {
	out := make([]swarm.Hash, len(hs))
	for i, h := range hs {
		out[i] = swarm.Hash(h)
	}
	return out
}

func diffUnknown(hashes []swarm.Hash, universe []swarm.Hash) []swarm.Hash {
	universeSet := make(map[swarm.Hash]struct{}, len(universe))
	for _, h := range universe {
		universeSet[h] = struct{}{}
	}
	var unknown []swarm.Hash
	for _, h := range hashes {
		if _, ok := universeSet[h]; !ok {
			unknown = append(unknown, h)
		}
	}
	return unknown
}

// majorVersion returns the first dot-separated component of a version
// string, e.g. "1.4.1" -> "1". Only the major component is enforced.
func majorVersion(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}
