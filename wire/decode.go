package wire

import (
	"encoding/json"

	"github.com/NebulousLabs/errors"
)

var (
	// ErrNoAction is returned when a frame has no "action" field at all.
	ErrNoAction = errors.New("frame has no action field")

	// ErrUnknownAction is returned when "action" names something outside
	// the closed set of accepted inbound actions.
	ErrUnknownAction = errors.New("unknown action")

	// ErrBadJSON is returned when the frame itself is not valid JSON, so
	// not even the action field could be read. Distinct from ErrMalformed
	// so callers can treat it as fatal in every session state, matching
	// how bad JSON is handled regardless of state.
	ErrBadJSON = errors.New("frame is not valid JSON")

	// ErrMalformed is returned when an action's required arguments are
	// missing or the wrong type.
	ErrMalformed = errors.New("malformed message: missing or mistyped arguments")
)

// peek is used only to read the action field before deciding which
// concrete type to unmarshal the rest of the frame into.
type peek struct {
	Action string `json:"action"`
}

// Decode parses one inbound wire frame and returns the concrete message
// type matching its action: *Version, *JoinSwarm, *SetHashes, *AddHashes,
// *ReportTransfers or *InboundError. It validates required arguments
// strictly - a missing or type-mismatched argument is reported as
// ErrMalformed rather than silently zero-valued, so bad input never
// reaches the swarm core.
func Decode(data []byte) (interface{}, error) {
	var p peek
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Extend(ErrBadJSON, err)
	}
	if p.Action == "" {
		return nil, ErrNoAction
	}

	switch p.Action {
	case "version":
		var v Version
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Extend(ErrMalformed, err)
		}
		if v.Protocol == "" || v.App == "" {
			return nil, ErrMalformed
		}
		return &v, nil

	case "join_swarm":
		var j JoinSwarm
		if err := json.Unmarshal(data, &j); err != nil {
			return nil, errors.Extend(ErrMalformed, err)
		}
		if j.Hashes == nil || j.DLURL == "" || j.ConcurrentTransfers < 1 || j.Nick == "" {
			return nil, ErrMalformed
		}
		return &j, nil

	case "set_hashes":
		var s SetHashes
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, errors.Extend(ErrMalformed, err)
		}
		if s.Hashes == nil {
			return nil, ErrMalformed
		}
		return &s, nil

	case "add_hashes":
		var a AddHashes
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, errors.Extend(ErrMalformed, err)
		}
		if a.Hashes == nil {
			return nil, ErrMalformed
		}
		return &a, nil

	case "report_transfers":
		var r ReportTransfers
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.Extend(ErrMalformed, err)
		}
		var present struct {
			DLs []struct {
				Hash      *string  `json:"hash"`
				URL       *string  `json:"url"`
				MbpsLimit *float64 `json:"mbps_limit"`
			} `json:"dls"`
			ULCount *int `json:"ul_count"`
		}
		json.Unmarshal(data, &present)
		if r.DLs == nil || r.ULTimes == nil || present.ULCount == nil || r.ULCount < 0 {
			return nil, ErrMalformed
		}
		for _, dl := range present.DLs {
			if dl.Hash == nil || dl.URL == nil || dl.MbpsLimit == nil {
				return nil, ErrMalformed
			}
		}
		return &r, nil

	case "error":
		var e InboundError
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, errors.Extend(ErrMalformed, err)
		}
		return &e, nil

	default:
		return nil, ErrUnknownAction
	}
}
