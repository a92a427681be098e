package transaction

import (
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// InputType discriminates transaction inputs on the wire
type InputType uint8

const (
	InputTypeCoin InputType = 0
)

// OutputType discriminates transaction outputs on the wire
type OutputType uint8

const (
	OutputTypeCoin     OutputType = 0
	OutputTypeChange   OutputType = 2
	OutputTypeVariable OutputType = 3
)

func (t OutputType) String() string {
	switch t {
	case OutputTypeCoin:
		return "coin"
	case OutputTypeChange:
		return "change"
	case OutputTypeVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// UtxoId points at an unspent output of an earlier transaction
type UtxoId struct {
	TxId        types.TxId `json:"txId"`
	OutputIndex uint16     `json:"outputIndex"`
}

// TxPointer locates the transaction that created a coin. It is filled in by the
// chain and excluded from the transaction id.
type TxPointer struct {
	BlockHeight uint32 `json:"blockHeight"`
	TxIndex     uint16 `json:"txIndex"`
}

// Coin is a spendable resource returned by the target chain
type Coin struct {
	UtxoId    UtxoId        `json:"utxoId"`
	Owner     types.Address `json:"owner"`
	Amount    uint64        `json:"amount"`
	AssetId   types.AssetId `json:"assetId"`
	TxPointer TxPointer     `json:"txPointer"`
}

// InputCoin spends a coin. Predicate-owned coins carry the predicate bytecode and
// its encoded arguments instead of referencing a signing witness.
type InputCoin struct {
	UtxoId           UtxoId        `json:"utxoId"`
	Owner            types.Address `json:"owner"`
	Amount           uint64        `json:"amount"`
	AssetId          types.AssetId `json:"assetId"`
	TxPointer        TxPointer     `json:"txPointer"`
	WitnessIndex     uint16        `json:"witnessIndex"`
	PredicateGasUsed uint64        `json:"predicateGasUsed"`
	Predicate        []byte        `json:"predicate,omitempty"`
	PredicateData    []byte        `json:"predicateData,omitempty"`
}

// IsPredicate reports whether the input is unlocked by a predicate
func (in *InputCoin) IsPredicate() bool {
	return len(in.Predicate) > 0
}

// Output is a coin, change or variable output. Change outputs receive whatever
// remains of AssetId after all other outputs; their Amount is set by the chain.
type Output struct {
	Type    OutputType    `json:"type"`
	To      types.Address `json:"to"`
	Amount  uint64        `json:"amount"`
	AssetId types.AssetId `json:"assetId"`
}
