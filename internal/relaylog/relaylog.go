// Package relaylog wires the relay engine's logging onto the leveled
// logger convention used throughout the btcd/pktd lineage this protocol
// descends from.
package relaylog

import (
	"io"

	"github.com/btcsuite/btclog"
)

// New returns a Logger tagged "RELY" writing to w at info level, or
// btclog.Disabled (a safe no-op logger) if w is nil.
func New(w io.Writer) btclog.Logger {
	if w == nil {
		return btclog.Disabled
	}
	backend := btclog.NewBackend(w)
	logger := backend.Logger("RELY")
	logger.SetLevel(btclog.LevelInfo)
	return logger
}
