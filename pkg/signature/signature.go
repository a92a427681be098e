// Package signature converts between the 65 byte r||s||v signatures produced by
// EVM wallets and the 64 byte compact form the verification predicate reads
// from a transaction witness.
package signature

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

const (
	// RecoverableLength is the length of an r || s || v signature
	RecoverableLength = crypto.SignatureLength

	// CompactLength is the length of an r || (parity<<255 | s) signature
	CompactLength = 64
)

// CompactSignature is r (32 bytes) followed by s with the recovery parity
// folded into its most significant bit.
type CompactSignature [CompactLength]byte

// Bytes returns a copy of the compact signature
func (c CompactSignature) Bytes() []byte {
	out := make([]byte, CompactLength)
	copy(out, c[:])
	return out
}

// NormalizeRecoveryId maps v in {0, 1, 27, 28} to the recovery parity {0, 1}
func NormalizeRecoveryId(v byte) (byte, error) {
	switch v {
	case 0, 1:
		return v, nil
	case 27, 28:
		return v - 27, nil
	default:
		return 0, fmt.Errorf("%w: recovery id %d is not one of 0, 1, 27, 28", types.ErrInvalidSignatureEncoding, v)
	}
}

// ToCompact packs a 65 byte r || s || v signature into compact form.
// s must be in the lower half of the 256-bit range since its top bit carries parity.
func ToCompact(sig []byte) (CompactSignature, error) {
	var out CompactSignature
	if len(sig) != RecoverableLength {
		return out, fmt.Errorf("%w: expected %d bytes, got %d", types.ErrInvalidSignatureEncoding, RecoverableLength, len(sig))
	}

	parity, err := NormalizeRecoveryId(sig[64])
	if err != nil {
		return out, err
	}
	if sig[32]&0x80 != 0 {
		return out, fmt.Errorf("%w: s has its most significant bit set", types.ErrInvalidSignatureEncoding)
	}

	copy(out[:], sig[:64])
	out[32] |= parity << 7
	return out, nil
}

// ExtractParity returns the recovery parity stored in the top bit of s
func ExtractParity(c CompactSignature) byte {
	return c[32] >> 7
}

// R returns the r component
func R(c CompactSignature) [32]byte {
	var r [32]byte
	copy(r[:], c[:32])
	return r
}

// S returns the s component with the parity bit cleared
func S(c CompactSignature) [32]byte {
	var s [32]byte
	copy(s[:], c[32:])
	s[0] &= 0x7f
	return s
}

// ToRecoverable unpacks a compact signature into r || s || v with v in {0, 1},
// the form accepted by crypto.SigToPub.
func ToRecoverable(c CompactSignature) []byte {
	r := R(c)
	s := S(c)
	out := make([]byte, RecoverableLength)
	copy(out[:32], r[:])
	copy(out[32:64], s[:])
	out[64] = ExtractParity(c)
	return out
}

// CompactFromBytes reads a 64 byte witness payload
func CompactFromBytes(b []byte) (CompactSignature, error) {
	var out CompactSignature
	if len(b) != CompactLength {
		return out, fmt.Errorf("%w: compact signature must be %d bytes, got %d", types.ErrInvalidSignatureEncoding, CompactLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// PersonalMessageHash returns the personal_sign digest of the raw transaction id bytes:
// keccak256("\x19Ethereum Signed Message:\n32" || txId).
func PersonalMessageHash(txId types.TxId) []byte {
	return accounts.TextHash(txId[:])
}

// RecoverSigner recovers the external address that produced a compact witness over txId
func RecoverSigner(txId types.TxId, c CompactSignature) (common.Address, error) {
	pub, err := crypto.SigToPub(PersonalMessageHash(txId), ToRecoverable(c))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: failed to recover public key: %v", types.ErrInvalidSignatureEncoding, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySigner reports whether c is a signature by expected over txId
func VerifySigner(txId types.TxId, c CompactSignature, expected common.Address) error {
	recovered, err := RecoverSigner(txId, c)
	if err != nil {
		return err
	}
	if recovered != expected {
		return fmt.Errorf("%w: signature recovers to %s, expected %s",
			types.ErrInvalidSignatureEncoding, recovered.Hex(), expected.Hex())
	}
	return nil
}
