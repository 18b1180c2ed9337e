// Package wire defines the master control protocol: one JSON object per
// websocket frame, every frame carrying an "action" field that names a
// closed set of message types. Decode dispatches on that field and
// constructs the matching Go struct, so a malformed or unknown action fails
// before any swarm mutation is attempted.
package wire

// Chunk mirrors swarm.Chunk on the wire: a content hash, its file path,
// offset, size and compression ratio.
type Chunk struct {
	Hash     string  `json:"hash"`
	Path     string  `json:"path"`
	Pos      int64   `json:"pos"`
	Size     int64   `json:"size"`
	CmpRatio float64 `json:"cmpratio"`
}

// Batch mirrors swarm.Batch on the wire.
type Batch struct {
	Chunks []Chunk `json:"chunks"`
}

// --- Inbound (peer -> master) ---

// Version is the first message a peer must send: {action:"version",
// protocol:"x.y.z", app:"..."}. Only the major component of protocol is
// enforced against the master's own version.
type Version struct {
	Action   string `json:"action"`
	Protocol string `json:"protocol"`
	App      string `json:"app"`
}

// JoinSwarm requests admission: {action:"join_swarm", hashes:[...],
// dl_url:"...", concurrent_transfers:N, nick:"..."}. dl_url must contain
// the literal substring "http" and the placeholder "{hash}".
type JoinSwarm struct {
	Action              string   `json:"action"`
	Hashes              []string `json:"hashes"`
	DLURL               string   `json:"dl_url"`
	ConcurrentTransfers int      `json:"concurrent_transfers"`
	Nick                string   `json:"nick"`
}

// SetHashes and AddHashes both carry the same payload; SetHashes replaces
// the peer's known-hash set, AddHashes unions into it.
type SetHashes struct {
	Action string   `json:"action"`
	Hashes []string `json:"hashes"`
}

type AddHashes struct {
	Action string   `json:"action"`
	Hashes []string `json:"hashes"`
}

// TransferReport is one entry of ReportTransfers.DLs: a hash being
// downloaded, the URL it is being fetched from, and the bandwidth cap the
// peer applied to it.
type TransferReport struct {
	Hash      string  `json:"hash"`
	URL       string  `json:"url"`
	MbpsLimit float64 `json:"mbps_limit"`
}

// ReportTransfers is the periodic status a peer sends about its own
// in-flight downloads and the uploads it is currently serving.
type ReportTransfers struct {
	Action  string           `json:"action"`
	DLs     []TransferReport `json:"dls"`
	ULCount int              `json:"ul_count"`
	ULTimes []float64        `json:"ul_times"`
}

// InboundError is a peer-originated error report, logged only.
type InboundError struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// --- Outbound (master -> peer) ---

// OK carries a benign informational message, including the "hold on, still
// scanning" frame sent while awaiting the first Batch.
type OK struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

// OutboundError reports a transient protocol error; the session stays
// open. OrigMsg optionally echoes the offending inbound frame.
type OutboundError struct {
	Action  string      `json:"action"`
	Message string      `json:"message"`
	OrigMsg interface{} `json:"orig_msg,omitempty"`
}

// Fatal reports an unrecoverable protocol error; the session is closed
// immediately after this frame is sent.
type Fatal struct {
	Action  string      `json:"action"`
	Message string      `json:"message"`
	OrigMsg interface{} `json:"orig_msg,omitempty"`
}

// InitialBatch is always the first substantive frame a connected peer
// receives, sent before its version handshake is processed.
type InitialBatch struct {
	Action  string `json:"action"`
	Message string `json:"message"`
	Data    Batch  `json:"data"`
}

// NewBatch is sent to every joined peer whenever the authoritative Batch
// changes.
type NewBatch struct {
	Action string `json:"action"`
	Data   Batch  `json:"data"`
}

// Rehash reports hashes a peer claimed to possess that are not part of the
// current universe.
type Rehash struct {
	Action        string   `json:"action"`
	Message       string   `json:"message"`
	UnknownHashes []string `json:"unknown_hashes"`
}

// Download is a planner-dispatched directive to fetch one chunk from a
// specific URL.
type Download struct {
	Action  string  `json:"action"`
	Hash    string  `json:"hash"`
	URL     string  `json:"url"`
	Timeout float64 `json:"timeout"`
	MaxRate float64 `json:"max_rate"`
}
