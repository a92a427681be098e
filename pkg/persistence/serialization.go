package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// derivedAccountJSON is the JSON-serializable form of DerivedAccount
type derivedAccountJSON struct {
	ProgramDigest string `json:"programDigest"`
	Signer        string `json:"signer"`
	ChainId       uint64 `json:"chainId"`
	Address       string `json:"address"`
	DerivedAt     int64  `json:"derivedAt"`
}

// MarshalDerivedAccount serializes a DerivedAccount to JSON
func MarshalDerivedAccount(account *DerivedAccount) ([]byte, error) {
	if account == nil {
		return nil, fmt.Errorf("cannot marshal nil DerivedAccount")
	}
	return json.Marshal(&derivedAccountJSON{
		ProgramDigest: hexutil.Encode(account.Key.ProgramDigest[:]),
		Signer:        account.Key.Signer.Hex(),
		ChainId:       account.Key.ChainId,
		Address:       account.Address.Hex(),
		DerivedAt:     account.DerivedAt,
	})
}

// UnmarshalDerivedAccount deserializes a DerivedAccount from JSON
func UnmarshalDerivedAccount(data []byte) (*DerivedAccount, error) {
	var raw derivedAccountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DerivedAccount: %w", err)
	}

	digest, err := hexutil.Decode(raw.ProgramDigest)
	if err != nil || len(digest) != 32 {
		return nil, fmt.Errorf("invalid program digest %q", raw.ProgramDigest)
	}
	if !common.IsHexAddress(raw.Signer) {
		return nil, fmt.Errorf("invalid signer address %q", raw.Signer)
	}
	address, err := types.HexToAddress(raw.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid derived address: %w", err)
	}

	account := &DerivedAccount{
		Key: DerivationKey{
			Signer:  common.HexToAddress(raw.Signer),
			ChainId: raw.ChainId,
		},
		Address:   address,
		DerivedAt: raw.DerivedAt,
	}
	copy(account.Key.ProgramDigest[:], digest)
	return account, nil
}
