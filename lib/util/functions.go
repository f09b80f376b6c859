package util

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is a hash value based on uint64
type UintKey uint64

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}

// ReplicaID derives a non-zero replica id from a node name. Dragonboat reserves 0.
func ReplicaID(name string) uint64 {
	id := uint64(HashString(name, 0))
	if id == 0 {
		return 1
	}
	return id
}
