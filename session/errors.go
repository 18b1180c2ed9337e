package session

import "github.com/NebulousLabs/errors"

var (
	// ErrNotVersioned is returned when a peer sends anything other than a
	// matching version handshake while in the Connected state.
	ErrNotVersioned = errors.New("first frame must be a matching version handshake")

	// ErrBadVersion is returned when a peer's protocol major version does
	// not match the master's.
	ErrBadVersion = errors.New("protocol major version mismatch")

	// ErrNotJoined is returned when a peer sends set_hashes, add_hashes or
	// report_transfers before join_swarm.
	ErrNotJoined = errors.New("peer has not joined the swarm")

	// ErrBadDLURL is returned when join_swarm's dl_url does not contain
	// both "http" and the "{hash}" placeholder.
	ErrBadDLURL = errors.New("dl_url must contain \"http\" and the \"{hash}\" placeholder")

	// ErrSessionClosed describes a session that has already closed. enqueue
	// does not return it: a full queue closes the session instead.
	ErrSessionClosed = errors.New("session is closed")
)
