package predicate

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// PredicateDataLength is the encoded size of the predicate's witness_index argument
const PredicateDataLength = 8

// SpendingCondition is everything needed to spend from a derived account:
// the patched bytecode and the address it hashes to.
type SpendingCondition struct {
	Signer   common.Address
	Address  types.Address
	Bytecode []byte
	ChainId  uint64
}

// NewSpendingCondition patches program for signer and derives its address on chainId
func NewSpendingCondition(program *Program, signer common.Address, chainId uint64) (*SpendingCondition, error) {
	patched, err := program.WithSigner(signer)
	if err != nil {
		return nil, err
	}
	root, err := PredicateRoot(patched, chainId)
	if err != nil {
		return nil, err
	}
	return &SpendingCondition{
		Signer:   signer,
		Address:  types.Address(root),
		Bytecode: patched,
		ChainId:  chainId,
	}, nil
}

// PredicateData encodes the witness index the predicate reads its signature from
func (sc *SpendingCondition) PredicateData(witnessIndex uint64) []byte {
	return EncodePredicateData(witnessIndex)
}

// EncodePredicateData encodes main(witness_index: u64) arguments
func EncodePredicateData(witnessIndex uint64) []byte {
	out := make([]byte, PredicateDataLength)
	binary.BigEndian.PutUint64(out, witnessIndex)
	return out
}

// DecodePredicateData is the inverse of EncodePredicateData
func DecodePredicateData(data []byte) (uint64, error) {
	if len(data) != PredicateDataLength {
		return 0, fmt.Errorf("predicate data must be %d bytes, got %d", PredicateDataLength, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
