package relay

import "time"

// Magic is the fixed relay-protocol frame magic, wire-order big-endian.
const Magic uint32 = 0xF2BEEF42

// DefaultPort is the TCP port relay servers listen on.
const DefaultPort = 8336

// VersionTag is the fixed version string both peers exchange on
// connect and must observe equal before processing anything else.
var VersionTag = []byte("prioritized panther")

// Message types.
const (
	msgVersion     uint32 = 0
	msgBlock       uint32 = 1
	msgTransaction uint32 = 2
	msgEndBlock    uint32 = 3
	msgMaxVersion  uint32 = 4
)

// Admission and cache limits.
const (
	// MaxRelayTransactionBytes is the threshold past which a relayed
	// transaction is considered oversize.
	MaxRelayTransactionBytes = 10_000
	// MaxRelayOversizeTransactionBytes is the hard ceiling an oversize
	// transaction may still reach to be admitted under quota.
	MaxRelayOversizeTransactionBytes = 250_000
	// MaxExtraOversizeTransactions bounds how many oversize
	// transactions a single cache may hold at once.
	MaxExtraOversizeTransactions = 20
	// MaxNonBlockFrameLength bounds any frame's length field except a
	// BLOCK frame's (which instead carries a transaction count).
	MaxNonBlockFrameLength = 1_000_000
	// CacheCapacity is the bound on both the send and receive caches.
	CacheCapacity = 1000
)

// reconnectDelay is the fixed pause before a fresh connect attempt
// after any fatal connection error. No backoff, no attempt cap.
const reconnectDelay = 1 * time.Second
