package kv

// Region is a contiguous key range [Start, End) that partitions the
// keyspace for replication. A nil End means an open upper bound (tail).
type Region struct {
	Start []byte
	End   []byte
}

// SingleGroup is the sentinel region recognized as "all keys" — sub-map
// filtering against it is a no-op passthrough rather than a predicate walk.
var SingleGroup = Region{}

// isSingleGroup reports whether r is the "all keys" sentinel: both bounds
// empty/nil, i.e. no actual partitioning in effect.
func isSingleGroup(r Region) bool {
	return len(r.Start) == 0 && len(r.End) == 0
}

// containsKey reports whether key lies in [r.Start, r.End), with a nil/empty
// End treated as an open upper bound.
func (r Region) containsKey(key []byte) bool {
	if compareBytes(key, nullToEmpty(r.Start)) < 0 {
		return false
	}
	if len(r.End) > 0 && compareBytes(key, r.End) >= 0 {
		return false
	}
	return true
}

// filterByteMap returns the subset of m whose keys fall within region,
// or m itself unchanged when region is the single-group sentinel.
func filterByteMap[V any](m map[string]V, region Region) map[string]V {
	if isSingleGroup(region) {
		return m
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		if region.containsKey([]byte(k)) {
			out[k] = v
		}
	}
	return out
}
