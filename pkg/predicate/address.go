package predicate

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/merkle"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// MagicTag domain-separates predicate roots from every other hash on the chain
var MagicTag = [4]byte{'F', 'U', 'E', 'L'}

// PredicateRoot computes hash(MagicTag || be64(chainId) || codeRoot) for already patched bytecode
func PredicateRoot(bytecode []byte, chainId uint64) ([32]byte, error) {
	codeRoot, err := merkle.ComputeBytecodeRoot(bytecode, merkle.ContractChunkSize, merkle.Sha256)
	if err != nil {
		return [32]byte{}, err
	}

	var chainIdBytes [8]byte
	binary.BigEndian.PutUint64(chainIdBytes[:], chainId)

	return merkle.Sha256(MagicTag[:], chainIdBytes[:], codeRoot[:]), nil
}

// DeriveAddress returns the account address the program occupies on chainId once
// signer is written into its SIGNER configurable. It is a pure function of its inputs.
func DeriveAddress(program *Program, signer common.Address, chainId uint64) (types.Address, error) {
	patched, err := program.WithSigner(signer)
	if err != nil {
		return types.Address{}, err
	}
	root, err := PredicateRoot(patched, chainId)
	if err != nil {
		return types.Address{}, err
	}
	return types.Address(root), nil
}
