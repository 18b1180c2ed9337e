// Package persist provides small, dependency-free building blocks for
// writing daemon state to disk: a timestamped file logger and a random
// suffix generator for scratch files. It deliberately does not manage any
// durable swarm state - the master coordinator is rebuilt from peer JOIN
// messages on every restart, so there is nothing here for loading or saving
// JSON snapshots.
package persist

import (
	"encoding/hex"

	"github.com/NebulousLabs/fastrand"
)

// persistDir is the subdirectory, relative to the testing root, that the
// package's own tests write their scratch files into.
const persistDir = "persist"

// RandomSuffix returns a random string that can be appended to a filename
// to avoid collisions with concurrent writers, e.g. while rotating a log
// file or writing a scratch download blob.
func RandomSuffix() string {
	return hex.EncodeToString(fastrand.Bytes(16))
}
