package transaction

import (
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// ScriptRequest is a script transaction under construction. Witnesses are
// appended by signers; everything else is covered by the transaction id.
type ScriptRequest struct {
	GasPrice   uint64      `json:"gasPrice"`
	GasLimit   uint64      `json:"gasLimit"`
	Maturity   uint32      `json:"maturity"`
	Script     []byte      `json:"script"`
	ScriptData []byte      `json:"scriptData"`
	Inputs     []InputCoin `json:"inputs"`
	Outputs    []Output    `json:"outputs"`
	Witnesses  [][]byte    `json:"witnesses"`
}

// NewScriptRequest returns an empty script transaction with the given gas settings
func NewScriptRequest(gasPrice, gasLimit uint64) *ScriptRequest {
	return &ScriptRequest{
		GasPrice:   gasPrice,
		GasLimit:   gasLimit,
		Script:     []byte{},
		ScriptData: []byte{},
	}
}

// AddCoinOutput sends amount of assetId to `to`
func (r *ScriptRequest) AddCoinOutput(to types.Address, amount uint64, assetId types.AssetId) {
	r.Outputs = append(r.Outputs, Output{
		Type:    OutputTypeCoin,
		To:      to,
		Amount:  amount,
		AssetId: assetId,
	})
}

// AddChangeOutput adds a change output for assetId unless one already exists
func (r *ScriptRequest) AddChangeOutput(to types.Address, assetId types.AssetId) {
	for _, out := range r.Outputs {
		if out.Type == OutputTypeChange && out.AssetId == assetId {
			return
		}
	}
	r.Outputs = append(r.Outputs, Output{
		Type:    OutputTypeChange,
		To:      to,
		AssetId: assetId,
	})
}

// AddVariableOutput reserves an output slot the script may fill at execution time
func (r *ScriptRequest) AddVariableOutput() {
	r.Outputs = append(r.Outputs, Output{Type: OutputTypeVariable})
}

// AddResource spends coin and routes change back to its owner. Already
// present coins are ignored.
func (r *ScriptRequest) AddResource(coin Coin) {
	for _, in := range r.Inputs {
		if in.UtxoId == coin.UtxoId {
			return
		}
	}
	r.Inputs = append(r.Inputs, InputCoin{
		UtxoId:    coin.UtxoId,
		Owner:     coin.Owner,
		Amount:    coin.Amount,
		AssetId:   coin.AssetId,
		TxPointer: coin.TxPointer,
	})
	r.AddChangeOutput(coin.Owner, coin.AssetId)
}

// AddResources calls AddResource for each coin
func (r *ScriptRequest) AddResources(coins []Coin) {
	for _, c := range coins {
		r.AddResource(c)
	}
}

// AddWitness appends a witness and returns its index
func (r *ScriptRequest) AddWitness(witness []byte) int {
	w := make([]byte, len(witness))
	copy(w, witness)
	r.Witnesses = append(r.Witnesses, w)
	return len(r.Witnesses) - 1
}

// AttachPredicate sets predicate and predicateData on every coin input owned by
// owner and returns how many inputs were updated.
func (r *ScriptRequest) AttachPredicate(owner types.Address, predicate, predicateData []byte) int {
	attached := 0
	for i := range r.Inputs {
		if r.Inputs[i].Owner != owner {
			continue
		}
		r.Inputs[i].Predicate = cloneBytes(predicate)
		r.Inputs[i].PredicateData = cloneBytes(predicateData)
		attached++
	}
	return attached
}

// CoinQuantities sums the coin outputs per asset, the amounts the sender must cover
func (r *ScriptRequest) CoinQuantities() map[types.AssetId]uint64 {
	out := make(map[types.AssetId]uint64)
	for _, o := range r.Outputs {
		if o.Type == OutputTypeCoin {
			out[o.AssetId] += o.Amount
		}
	}
	return out
}

// Clone returns a deep copy
func (r *ScriptRequest) Clone() *ScriptRequest {
	c := &ScriptRequest{
		GasPrice:   r.GasPrice,
		GasLimit:   r.GasLimit,
		Maturity:   r.Maturity,
		Script:     cloneBytes(r.Script),
		ScriptData: cloneBytes(r.ScriptData),
		Outputs:    append([]Output(nil), r.Outputs...),
	}
	if r.Inputs != nil {
		c.Inputs = make([]InputCoin, len(r.Inputs))
		for i, in := range r.Inputs {
			in.Predicate = cloneBytes(in.Predicate)
			in.PredicateData = cloneBytes(in.PredicateData)
			c.Inputs[i] = in
		}
	}
	if r.Witnesses != nil {
		c.Witnesses = make([][]byte, len(r.Witnesses))
		for i, w := range r.Witnesses {
			c.Witnesses[i] = cloneBytes(w)
		}
	}
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
