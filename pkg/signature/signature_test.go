package signature

import (
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

func randomTxId(t *testing.T) types.TxId {
	t.Helper()
	var id types.TxId
	_, err := rand.Read(id[:])
	require.NoError(t, err)
	return id
}

func TestToCompact_RoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := crypto.PubkeyToAddress(key.PublicKey)

	for i := 0; i < 1000; i++ {
		txId := randomTxId(t)
		sig, err := crypto.Sign(PersonalMessageHash(txId), key)
		require.NoError(t, err)

		// wallets return v in {27, 28}; exercise both encodings
		if i%2 == 0 {
			sig[64] += 27
		}

		compact, err := ToCompact(sig)
		require.NoError(t, err)

		parity, err := NormalizeRecoveryId(sig[64])
		require.NoError(t, err)
		assert.Equal(t, parity, ExtractParity(compact))

		r := R(compact)
		s := S(compact)
		assert.Equal(t, sig[:32], r[:])
		assert.Equal(t, sig[32:64], s[:])

		recovered, err := RecoverSigner(txId, compact)
		require.NoError(t, err)
		require.Equal(t, signer, recovered)
	}
}

func TestToRecoverable(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	txId := randomTxId(t)
	sig, err := crypto.Sign(PersonalMessageHash(txId), key)
	require.NoError(t, err)

	compact, err := ToCompact(sig)
	require.NoError(t, err)
	assert.Equal(t, sig, ToRecoverable(compact))

	back, err := CompactFromBytes(compact.Bytes())
	require.NoError(t, err)
	assert.Equal(t, compact, back)
}

func TestToCompact_Invalid(t *testing.T) {
	valid := make([]byte, 65)
	valid[0] = 1
	valid[63] = 1

	tests := []struct {
		name string
		sig  func() []byte
	}{
		{"too short", func() []byte { return valid[:64] }},
		{"too long", func() []byte { return append(append([]byte{}, valid...), 0) }},
		{"v is 2", func() []byte { s := append([]byte{}, valid...); s[64] = 2; return s }},
		{"v is 29", func() []byte { s := append([]byte{}, valid...); s[64] = 29; return s }},
		{"high s", func() []byte { s := append([]byte{}, valid...); s[32] = 0x80; return s }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToCompact(tt.sig())
			assert.ErrorIs(t, err, types.ErrInvalidSignatureEncoding)
		})
	}
}

func TestToCompact_ParityPacking(t *testing.T) {
	sig := make([]byte, 65)
	sig[32] = 0x7f
	sig[64] = 28

	compact, err := ToCompact(sig)
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), compact[32])
	assert.Equal(t, byte(1), ExtractParity(compact))

	s := S(compact)
	assert.Equal(t, byte(0x7f), s[0])
}

func TestVerifySigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	txId := randomTxId(t)
	sig, err := crypto.Sign(PersonalMessageHash(txId), key)
	require.NoError(t, err)
	compact, err := ToCompact(sig)
	require.NoError(t, err)

	require.NoError(t, VerifySigner(txId, compact, crypto.PubkeyToAddress(key.PublicKey)))

	err = VerifySigner(txId, compact, crypto.PubkeyToAddress(other.PublicKey))
	assert.ErrorIs(t, err, types.ErrInvalidSignatureEncoding)

	// a different message recovers to a different address
	err = VerifySigner(randomTxId(t), compact, crypto.PubkeyToAddress(key.PublicKey))
	assert.Error(t, err)
}

func TestCompactFromBytes_Invalid(t *testing.T) {
	_, err := CompactFromBytes(make([]byte, 65))
	assert.ErrorIs(t, err, types.ErrInvalidSignatureEncoding)
}
