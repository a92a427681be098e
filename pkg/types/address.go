package types

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	// AddressLength is the byte length of a target chain account address (B256)
	AddressLength = 32

	// Bech32Prefix is the human readable part of a target chain bech32 address
	Bech32Prefix = "fuel"
)

// Address is a 32-byte target chain account address. Predicate accounts use
// the predicate root as their address.
type Address [AddressLength]byte

// BytesToAddress converts an exactly 32 byte slice to an Address
func BytesToAddress(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("invalid address length: expected %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// HexToAddress parses a 0x-prefixed B256 hex string
func HexToAddress(s string) (Address, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex address %q: %w", s, err)
	}
	return BytesToAddress(b)
}

// Bech32ToAddress parses a bech32 address using the "fuel" human readable part
func Bech32ToAddress(s string) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address %q: %w", s, err)
	}
	if hrp != Bech32Prefix {
		return Address{}, fmt.Errorf("invalid bech32 prefix: expected %s, got %s", Bech32Prefix, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("failed to convert bech32 data: %w", err)
	}
	return BytesToAddress(raw)
}

// ParseAddress accepts either the bech32 or the B256 hex form
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), Bech32Prefix+"1") {
		return Bech32ToAddress(s)
	}
	return HexToAddress(s)
}

// Bytes returns a copy of the address bytes
func (a Address) Bytes() []byte {
	b := make([]byte, AddressLength)
	copy(b, a[:])
	return b
}

// Hex returns the 0x-prefixed B256 form
func (a Address) Hex() string {
	return hexutil.Encode(a[:])
}

// Bech32 returns the "fuel1..." form
func (a Address) Bech32() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		// 8->5 conversion with padding cannot fail for a fixed 32 byte input
		panic(fmt.Sprintf("bech32 conversion failed: %v", err))
	}
	s, err := bech32.Encode(Bech32Prefix, conv)
	if err != nil {
		panic(fmt.Sprintf("bech32 encoding failed: %v", err))
	}
	return s
}

// String renders the bech32 form, matching how wallets display accounts
func (a Address) String() string {
	return a.Bech32()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText encodes the address as B256 hex so it can be used in JSON and as map keys
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText accepts both the hex and bech32 forms
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AssetId identifies a native asset on the target chain
type AssetId [32]byte

// BaseAssetId is the chain's base (fee) asset
var BaseAssetId = AssetId{}

// HexToAssetId parses a 0x-prefixed 32 byte asset id
func HexToAssetId(s string) (AssetId, error) {
	var id AssetId
	b, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid asset id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid asset id length: expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func (id AssetId) Hex() string {
	return hexutil.Encode(id[:])
}

func (id AssetId) String() string {
	return id.Hex()
}

func (id AssetId) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

func (id *AssetId) UnmarshalText(text []byte) error {
	parsed, err := HexToAssetId(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TxId is the canonical, chain-bound transaction id
type TxId [32]byte

func (id TxId) Hex() string {
	return hexutil.Encode(id[:])
}

func (id TxId) String() string {
	return id.Hex()
}

// HexToTxId parses a 0x-prefixed 32 byte transaction id
func HexToTxId(s string) (TxId, error) {
	var id TxId
	b, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid transaction id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid transaction id length: expected %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}
