package transaction

import (
	"encoding/binary"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/merkle"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// ID returns the chain-bound transaction id:
// sha256(be64(chainId) || encoding with witnesses removed and chain-filled fields
// zeroed). Chain-filled fields are the input tx pointer and predicate gas, the
// amount of change outputs and everything but the type of variable outputs.
// Appending a witness or re-estimating predicate gas does not change the id, so a
// signature over it stays valid.
func (r *ScriptRequest) ID(chainId uint64) types.TxId {
	stripped := r.Clone()
	stripped.Witnesses = nil
	for i := range stripped.Inputs {
		stripped.Inputs[i].TxPointer = TxPointer{}
		stripped.Inputs[i].PredicateGasUsed = 0
	}
	for i := range stripped.Outputs {
		switch stripped.Outputs[i].Type {
		case OutputTypeChange:
			stripped.Outputs[i].Amount = 0
		case OutputTypeVariable:
			stripped.Outputs[i] = Output{Type: OutputTypeVariable}
		}
	}

	var chainIdBytes [8]byte
	binary.BigEndian.PutUint64(chainIdBytes[:], chainId)

	return types.TxId(merkle.Sha256(chainIdBytes[:], stripped.Encode()))
}
