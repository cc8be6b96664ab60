// Package idgen provides monotonic, zero-padded identifier sequences.
//
// Integration and review ids must be pairwise distinct and contiguous under
// concurrent allocation, so each namespace uses a single atomic counter.
// This is the only global synchronization point in the system.
package idgen

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// Sequence allocates ids of the form <prefix>-%06d, 1-indexed, never reused.
type Sequence struct {
	prefix string
	n      atomic.Uint64
}

// NewSequence creates a sequence for the given prefix (e.g. "INT", "REV").
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next allocates and returns the next id in the sequence.
func (s *Sequence) Next() string {
	return fmt.Sprintf("%s-%06d", s.prefix, s.n.Add(1))
}

// Current returns the last allocated counter value, for snapshotting.
func (s *Sequence) Current() uint64 {
	return s.n.Load()
}

// Restore sets the counter so the next allocation continues after n.
// Used when reloading persisted state; it never moves the counter backwards.
func (s *Sequence) Restore(n uint64) {
	for {
		cur := s.n.Load()
		if cur >= n || s.n.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Parse extracts the numeric part of an id produced by a Sequence with the
// given prefix. Returns false if the id does not match the format.
func Parse(prefix, id string) (uint64, bool) {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	if !ok || len(rest) < 6 {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
