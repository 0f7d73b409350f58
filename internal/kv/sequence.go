package kv

import (
	"math"
	"sync"
)

// Sequence is a half-open allocated range [Start, End) returned by
// getSequence.
type Sequence struct {
	Start int64
	End   int64
}

// SequenceStore allocates monotonically increasing ranges per key. Each
// key's end value never decreases except by explicit reset, which removes
// the record entirely.
type SequenceStore struct {
	mu   sync.Mutex
	data map[string]int64
}

// NewSequenceStore returns an empty sequence store.
func NewSequenceStore() *SequenceStore {
	return &SequenceStore{data: make(map[string]int64)}
}

// getSafeEndValueForSequence computes start+step clamped to never
// overflow below start (saturating add).
func getSafeEndValueForSequence(start int64, step int) int64 {
	end := start + int64(step)
	if end < start {
		return math.MaxInt64
	}
	return end
}

// getSequence rejects step < 0 with an error. If step == 0, returns
// (current, current) without mutation. Otherwise allocates
// [current, current+step) and stores the new end value.
func (s *SequenceStore) getSequence(key []byte, step int) (Sequence, error) {
	if step < 0 {
		return Sequence{}, &opError{op: "GET_SEQUENCE", kind: KindInvalidArgument, err: errString("step must >= 0")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := string(key)
	start := s.data[k]
	if step == 0 {
		return Sequence{Start: start, End: start}, nil
	}

	end := getSafeEndValueForSequence(start, step)
	if start != end {
		s.data[k] = end
	}
	return Sequence{Start: start, End: end}, nil
}

// resetSequence unconditionally removes the record for key.
func (s *SequenceStore) resetSequence(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, string(key))
}

// subMap returns the sequence store filtered to region, or the full map
// when region is the single-group sentinel.
func (s *SequenceStore) subMap(region Region) map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filterByteMap(s.data, region)
}

// putAll merges entries into the live store, overwriting existing keys.
func (s *SequenceStore) putAll(entries map[string]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.data[k] = v
	}
}
