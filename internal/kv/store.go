package kv

import (
	"math"
	"sync"

	"github.com/google/btree"
)

// KVEntry is a single (key, value) pair returned by scan; Value is nil
// when the caller asked for keys only.
type KVEntry struct {
	Key   []byte
	Value []byte
}

// kvItem is the btree.Item backing PrimaryStore's ordered map. Ordering
// is unsigned lexicographic on Key, matching the package comparator.
type kvItem struct {
	key   []byte
	value []byte
}

func (i *kvItem) Less(than btree.Item) bool {
	return compareBytes(i.key, than.(*kvItem).key) < 0
}

// PrimaryStore is the thread-safe ordered byte-key to byte-value mapping
// backing the engine's default keyspace. A plain btree.BTree is not
// itself concurrency-safe, so every accessor goes through mu.
type PrimaryStore struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

// NewPrimaryStore returns an empty ordered store.
func NewPrimaryStore() *PrimaryStore {
	return &PrimaryStore{tree: btree.New(32)}
}

// get returns the value for key, or nil if absent. Never fails on a
// missing key.
func (s *PrimaryStore) get(key []byte) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.tree.Get(&kvItem{key: key})
	if found == nil {
		return nil
	}
	return found.(*kvItem).value
}

// multiGet returns only the keys present in the store; absent keys are
// omitted rather than mapped to nil.
func (s *PrimaryStore) multiGet(keys [][]byte) map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		found := s.tree.Get(&kvItem{key: key})
		if found == nil {
			continue
		}
		result[string(key)] = found.(*kvItem).value
	}
	return result
}

// put stores value for key unconditionally, discarding any prior value.
func (s *PrimaryStore) put(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.ReplaceOrInsert(&kvItem{key: key, value: value})
}

// getAndPut returns the prior value (or nil) then stores value.
func (s *PrimaryStore) getAndPut(key, value []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.tree.ReplaceOrInsert(&kvItem{key: key, value: value})
	if prev == nil {
		return nil
	}
	return prev.(*kvItem).value
}

// putIfAbsent stores value only if key is absent; returns the prior value
// if any, or nil after a successful store. Atomic with respect to
// concurrent putIfAbsent/getAndPut on the same key.
func (s *PrimaryStore) putIfAbsent(key, value []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.tree.Get(&kvItem{key: key})
	if existing != nil {
		return existing.(*kvItem).value
	}
	s.tree.ReplaceOrInsert(&kvItem{key: key, value: value})
	return nil
}

const mergeDelimiter = byte(',')

// merge sets key to value if absent, or to oldValue ‖ ',' ‖ value if
// present. Atomic compute over the key.
func (s *PrimaryStore) merge(key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.tree.Get(&kvItem{key: key})
	if existing == nil {
		s.tree.ReplaceOrInsert(&kvItem{key: key, value: value})
		return
	}
	oldVal := existing.(*kvItem).value
	newVal := make([]byte, len(oldVal)+1+len(value))
	copy(newVal, oldVal)
	newVal[len(oldVal)] = mergeDelimiter
	copy(newVal[len(oldVal)+1:], value)
	s.tree.ReplaceOrInsert(&kvItem{key: key, value: newVal})
}

// delete removes key if present; succeeds regardless of prior presence.
func (s *PrimaryStore) delete(key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.Delete(&kvItem{key: key})
}

// putBatch applies entries in order with no isolation between entries of
// the same batch — a later entry for the same key overrides an earlier
// one, matching a plain for-loop over the list.
func (s *PrimaryStore) putBatch(entries []KVEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.tree.ReplaceOrInsert(&kvItem{key: e.Key, value: e.Value})
	}
}

// scan returns up to limit entries whose keys lie in [start, end), in
// ascending order. limit == 0 means unbounded. If onlyKeys, values are
// omitted from returned entries.
func (s *PrimaryStore) scan(start, end []byte, limit int, onlyKeys bool) []KVEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maxCount := limit
	if limit <= 0 {
		maxCount = math.MaxInt
	}

	realStart := nullToEmpty(start)
	entries := make([]KVEntry, 0)
	visit := func(i btree.Item) bool {
		it := i.(*kvItem)
		v := it.value
		if onlyKeys {
			v = nil
		}
		entries = append(entries, KVEntry{Key: it.key, Value: v})
		return len(entries) < maxCount
	}

	if end == nil {
		s.tree.AscendGreaterOrEqual(&kvItem{key: realStart}, visit)
	} else {
		s.tree.AscendRange(&kvItem{key: realStart}, &kvItem{key: end}, visit)
	}
	return entries
}

// deleteRange removes all entries with keys in [start, end). No effect
// if the range is empty.
func (s *PrimaryStore) deleteRange(start, end []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var toDelete []btree.Item
	s.tree.AscendRange(&kvItem{key: start}, &kvItem{key: end}, func(i btree.Item) bool {
		toDelete = append(toDelete, i)
		return true
	})
	for _, i := range toDelete {
		s.tree.Delete(i)
	}
}

// approximateKeysInRange returns the size of the sub-range view; end ==
// nil means tail from start.
func (s *PrimaryStore) approximateKeysInRange(start, end []byte) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	realStart := nullToEmpty(start)
	var count int64
	visit := func(i btree.Item) bool {
		count++
		return true
	}
	if end == nil {
		s.tree.AscendGreaterOrEqual(&kvItem{key: realStart}, visit)
	} else {
		s.tree.AscendRange(&kvItem{key: realStart}, &kvItem{key: end}, visit)
	}
	return count
}

// jumpOver returns the distance-th key at or after start (1-indexed); if
// fewer keys exist, returns the last key; returns nil only if the tail is
// empty. The returned key is a copy, independent of the store's buffer,
// so the caller may mutate it as an exclusive-end bound.
func (s *PrimaryStore) jumpOver(start []byte, distance int64) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	realStart := nullToEmpty(start)
	var lastKey []byte
	var seen int64
	s.tree.AscendGreaterOrEqual(&kvItem{key: realStart}, func(i btree.Item) bool {
		lastKey = i.(*kvItem).key
		seen++
		return seen < distance
	})
	if lastKey == nil {
		return nil
	}
	out := make([]byte, len(lastKey))
	copy(out, lastKey)
	return out
}

// Iterator is a restartable, point-in-time snapshot of the keys present
// in the store when it was created, in ascending order. Safe against
// concurrent mutation of the live store.
type Iterator struct {
	entries []KVEntry
	pos     int
}

// Next advances the iterator and returns the next entry, or ok == false
// once exhausted.
func (it *Iterator) Next() (KVEntry, bool) {
	if it.pos >= len(it.entries) {
		return KVEntry{}, false
	}
	e := it.entries[it.pos]
	it.pos++
	return e, true
}

// Reset rewinds the iterator to its first entry without re-snapshotting.
func (it *Iterator) Reset() {
	it.pos = 0
}

// localIterator returns a restartable forward iterator over the current
// snapshot of keys, safe against concurrent mutation of the live store.
func (s *PrimaryStore) localIterator() *Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]KVEntry, 0, s.tree.Len())
	s.tree.Ascend(func(i btree.Item) bool {
		it := i.(*kvItem)
		entries = append(entries, KVEntry{Key: it.key, Value: it.value})
		return true
	})
	return &Iterator{entries: entries}
}
