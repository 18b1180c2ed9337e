package session

// State is one step of the per-peer state machine described by the
// control protocol:
//
//	CONNECTED -> VERSIONED -> JOINED -> (JOINED | REJOINING) -> CLOSED
//	          \_ CLOSED (fatal on bad version or malformed first message)
type State int

const (
	// Connected is the state immediately after the websocket is accepted,
	// before a valid version handshake has been received. Until
	// initial_batch has gone out (Session.gotInitialBatch), the session
	// answers every inbound frame, a version handshake included, with a
	// polite "hold on" OK rather than processing it or replying with an
	// error.
	Connected State = iota
	// Versioned is reached after a matching version handshake; only
	// join_swarm is accepted from here.
	Versioned
	// Joined is reached after a successful join_swarm; the peer has a
	// live Node and participates in planning.
	Joined
	// Rejoining is a transient sub-step of Joined->Joined: the previous
	// Node has been destroyed and a new join_swarm is being processed.
	Rejoining
	// Closed is terminal; no further frames are processed.
	Closed
)

// String renders the state for log lines.
func (s State) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case Versioned:
		return "VERSIONED"
	case Joined:
		return "JOINED"
	case Rejoining:
		return "REJOINING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
