package merkle

import "crypto/sha256"

// HashFunc hashes the concatenation of its arguments into a 32 byte digest
type HashFunc func(data ...[]byte) [32]byte

// Sha256 is the target chain's hash primitive
func Sha256(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MerkleTree is a binary merkle tree over bytecode chunks.
type MerkleTree struct {
	// Leaves contains the leaf hashes in chunk order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte
}
