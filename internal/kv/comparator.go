package kv

import "bytes"

// compareBytes is the authoritative ordering for scans, range boundaries,
// and region membership: unsigned lexicographic comparison of byte
// sequences. bytes.Compare already implements this for []byte, so this
// wrapper exists only to give call sites a name that matches the rest of
// the package's vocabulary.
func compareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}

// nullToEmpty normalizes a nil key to an empty, non-nil slice.
func nullToEmpty(key []byte) []byte {
	if key == nil {
		return []byte{}
	}
	return key
}
