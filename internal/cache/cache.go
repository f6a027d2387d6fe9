// Package cache implements the flagged, indexed transaction set the relay
// protocol engine keeps in lockstep with its peer.
//
// A FlaggedSet gives every present payload a stable external index equal to
// its position among the currently-present entries, oldest first. Both
// peers of a relay connection run the identical sequence of add/remove
// operations against their own cache, so an index sent on the wire names
// the same transaction on both ends without either side ever
// retransmitting the transaction bytes twice.
package cache

// entry is one present payload together with its oversize flag.
type entry struct {
	payload []byte
	flag    bool
}

// FlaggedSet is a bounded, FIFO-evicting set of byte-string payloads, each
// tagged with a flag used for oversize-transaction quota accounting.
//
// Present entries occupy dense external indices [0, Len()) in insertion
// order; removing an entry shifts every entry inserted after it down by
// one index, so index(q) for any surviving q never leaves a gap. See the
// package doc for why this matters to the relay protocol.
//
// Not safe for concurrent use; callers serialize access (the relay engine
// does so with its send mutex for the send-side cache, and by confining
// the receive-side cache to the single receive goroutine).
type FlaggedSet struct {
	capacity int
	order    []entry
	index    map[string]int

	flagCount int
}

// New returns an empty set bounded to capacity entries. A non-positive
// capacity is treated as 1.
func New(capacity int) *FlaggedSet {
	if capacity < 1 {
		capacity = 1
	}
	return &FlaggedSet{
		capacity: capacity,
		index:    make(map[string]int),
	}
}

func key(payload []byte) string {
	return string(payload)
}

// Len reports how many entries are currently present.
func (s *FlaggedSet) Len() int {
	return len(s.order)
}

// FlagCount reports how many present entries carry flag == true.
func (s *FlaggedSet) FlagCount() int {
	return s.flagCount
}

// Contains reports whether payload is present, regardless of its flag.
func (s *FlaggedSet) Contains(payload []byte) bool {
	_, ok := s.index[key(payload)]
	return ok
}

// GetIndex returns the external index of payload and true, or (0, false)
// if payload is not present.
func (s *FlaggedSet) GetIndex(payload []byte) (int, bool) {
	i, ok := s.index[key(payload)]
	return i, ok
}

// GetByIndex returns the payload currently at external index i, or nil and
// false if no entry occupies that index.
func (s *FlaggedSet) GetByIndex(i int) ([]byte, bool) {
	if i < 0 || i >= len(s.order) {
		return nil, false
	}
	return s.order[i].payload, true
}

// Add inserts payload with the given oversize flag. It reports false
// without modifying the set if payload is already present. If the set is
// at capacity just before the insert, the oldest entry is evicted first
// (FIFO).
func (s *FlaggedSet) Add(payload []byte, flag bool) bool {
	if s.Contains(payload) {
		return false
	}

	if len(s.order) >= s.capacity {
		s.removeAt(0)
	}

	s.index[key(payload)] = len(s.order)
	s.order = append(s.order, entry{payload: payload, flag: flag})
	if flag {
		s.flagCount++
	}
	return true
}

// Remove deletes payload if present. It is a silent no-op otherwise.
func (s *FlaggedSet) Remove(payload []byte) {
	i, ok := s.index[key(payload)]
	if !ok {
		return
	}
	s.removeAt(i)
}

// removeAt drops the entry at position i and renumbers every entry after
// it down by one index, preserving density.
func (s *FlaggedSet) removeAt(i int) {
	removed := s.order[i]
	delete(s.index, key(removed.payload))
	if removed.flag {
		s.flagCount--
	}

	s.order = append(s.order[:i], s.order[i+1:]...)
	for j := i; j < len(s.order); j++ {
		s.index[key(s.order[j].payload)] = j
	}
}
