package testutil

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/signature"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// Known derivation of the verification program used across packages
var (
	GoldenSigner        = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	GoldenAddressChain0 = "0x0cc03921dbb6c9bfe7ea50623544db820627832ac7af9d4673ffa7193693b18c"
	GoldenBech32Chain0  = "fuel1pnqrjgwmkmymlel22p3r23xmsgrz0qe2c7he63nnl7n3jd5nkxxqsh649m"
)

// LoadProgram loads the embedded verification program
func LoadProgram(t *testing.T) *predicate.Program {
	t.Helper()
	program, err := predicate.LoadVerificationProgram()
	require.NoError(t, err)
	return program
}

// NewKey generates a fresh secp256k1 key and returns it with its address
func NewKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

// PersonalSigner returns a signer callback that personal_signs transaction ids with key,
// producing r || s || v with v in {27, 28} like a browser wallet.
func PersonalSigner(key *ecdsa.PrivateKey) func(ctx context.Context, txId types.TxId, account common.Address) ([]byte, error) {
	return func(ctx context.Context, txId types.TxId, account common.Address) ([]byte, error) {
		sig, err := crypto.Sign(signature.PersonalMessageHash(txId), key)
		if err != nil {
			return nil, err
		}
		sig[64] += 27
		return sig, nil
	}
}
