package merkle

import (
	"fmt"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// ContractChunkSize is the chunk size used when computing predicate and contract code roots
const ContractChunkSize = 16 * 1024

var (
	leafPrefix = []byte{0x00}
	nodePrefix = []byte{0x01}
)

// ChunkAndPad splits data into consecutive chunks of exactly chunkSize bytes.
// The final chunk is zero padded up to chunkSize and empty input yields a single
// all-zero chunk.
func ChunkAndPad(data []byte, chunkSize int) ([][]byte, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", types.ErrInvalidParameter, chunkSize)
	}

	if len(data) == 0 {
		return [][]byte{make([]byte, chunkSize)}, nil
	}

	chunks := make([][]byte, 0, (len(data)+chunkSize-1)/chunkSize)
	for offset := 0; offset < len(data); offset += chunkSize {
		chunk := make([]byte, chunkSize)
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		copy(chunk, data[offset:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// BuildMerkleTree builds the binary merkle tree used by the target chain.
//
// Leaves are hash(0x00 || data) and inner nodes are hash(0x01 || left || right).
// If a level has an odd number of nodes, the last one is carried up to the next
// level unchanged. This rule is fixed by the chain; published predicate
// addresses depend on it.
func BuildMerkleTree(leaves [][]byte, hash HashFunc) (*MerkleTree, error) {
	if hash == nil {
		hash = Sha256
	}
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty leaf list")
	}

	hashed := make([][32]byte, len(leaves))
	for i, leaf := range leaves {
		hashed[i] = hash(leafPrefix, leaf)
	}

	currentLevel := hashed
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i+1 < len(currentLevel); i += 2 {
			nextLevel = append(nextLevel, hashNode(hash, currentLevel[i], currentLevel[i+1]))
		}
		// odd node is promoted, not duplicated
		if len(currentLevel)%2 == 1 {
			nextLevel = append(nextLevel, currentLevel[len(currentLevel)-1])
		}

		currentLevel = nextLevel
	}

	return &MerkleTree{
		Leaves: hashed,
		Root:   currentLevel[0],
	}, nil
}

// CalcRoot returns the merkle root of the given leaves. The root of an empty
// leaf list is the hash of empty input.
func CalcRoot(leaves [][]byte, hash HashFunc) [32]byte {
	if hash == nil {
		hash = Sha256
	}
	if len(leaves) == 0 {
		return hash()
	}
	tree, err := BuildMerkleTree(leaves, hash)
	if err != nil {
		// unreachable: leaves is non-empty
		panic(err)
	}
	return tree.Root
}

// ComputeBytecodeRoot chunks bytecode into zero padded chunkSize blocks and
// returns their merkle root under hash. A nil hash means Sha256.
func ComputeBytecodeRoot(bytecode []byte, chunkSize int, hash HashFunc) ([32]byte, error) {
	chunks, err := ChunkAndPad(bytecode, chunkSize)
	if err != nil {
		return [32]byte{}, err
	}
	return CalcRoot(chunks, hash), nil
}

func hashNode(hash HashFunc, left, right [32]byte) [32]byte {
	return hash(nodePrefix, left[:], right[:])
}
