package encoding

import "crypto/sha256"

// Hash256 computes a double SHA-256, the canonical block/header identity
// hash used for log lines (the relay engine never needs this for
// anything on the wire — headers and transactions are opaque payloads to
// it — but a human-readable block id is useful when logging what just
// got reconstructed).
func Hash256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}
