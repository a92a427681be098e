package persistence

import (
	"encoding/hex"
	"fmt"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

// DerivationKey identifies one derivation: the program (by digest of its bytecode
// and configurable layout), the external signer and the target chain.
type DerivationKey struct {
	ProgramDigest [32]byte
	Signer        common.Address
	ChainId       uint64
}

// String returns the canonical storage key, e.g. "<digest>:<signer>:<chainId>".
func (k DerivationKey) String() string {
	return fmt.Sprintf("%s:%s:%d", hex.EncodeToString(k.ProgramDigest[:]), k.Signer.Hex(), k.ChainId)
}

// DerivedAccount is the memoized result of a derivation.
type DerivedAccount struct {
	Key DerivationKey

	// Address is the predicate address on the target chain.
	Address types.Address

	// DerivedAt is the Unix timestamp of the first derivation. Informational only;
	// entries are never invalidated by age.
	DerivedAt int64
}
