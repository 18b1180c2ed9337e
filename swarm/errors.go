package swarm

import "github.com/NebulousLabs/errors"

var (
	// ErrUnknownNode is returned when an operation references a NodeID the
	// Coordinator has no record of.
	ErrUnknownNode = errors.New("unknown node")

	// ErrAlreadyMaster is returned by NodeJoin if a master node already
	// exists in the swarm; at most one node may have IsMaster set.
	ErrAlreadyMaster = errors.New("swarm already has a master node")

	// ErrBadActiveDownloads is returned by SetActiveTransfers when the
	// supplied active-download set is inconsistent: it overlaps the
	// node's own hashes, or assigns the same hash to two senders at once.
	ErrBadActiveDownloads = errors.New("active downloads overlap owned hashes or duplicate a hash")

	// ErrDeadSender is returned by SetActiveTransfers when an active
	// download names a sender node that is not alive.
	ErrDeadSender = errors.New("active download references a dead or unknown sender node")

	// ErrTooManyDownloads and ErrTooManyUploads are returned when a node
	// reports more active transfers than its negotiated capacity allows.
	ErrTooManyDownloads = errors.New("active downloads exceed max_concurrent_dls")
	ErrTooManyUploads   = errors.New("active upload count exceeds max_concurrent_uls")
)
