package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

var (
	owner      = types.Address{0xaa}
	recipient  = types.Address{0xbb}
	otherAsset = types.AssetId{0x01}
)

func sampleRequest() *ScriptRequest {
	r := NewScriptRequest(1, 100000)
	r.Maturity = 7
	r.Script = []byte{0x24, 0x04, 0x00, 0x00}
	r.ScriptData = []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	r.AddCoinOutput(recipient, 10, types.BaseAssetId)
	r.AddResource(Coin{
		UtxoId:  UtxoId{TxId: types.TxId{0x11}, OutputIndex: 1},
		Owner:   owner,
		Amount:  1000000,
		AssetId: types.BaseAssetId,
	})
	r.Inputs[0].TxPointer = TxPointer{BlockHeight: 5, TxIndex: 2}
	r.Inputs[0].Predicate = []byte{0xde, 0xad, 0xbe, 0xef, 0x01}
	r.Inputs[0].PredicateData = []byte{0, 0, 0, 0, 0, 0, 0, 0}
	r.AddWitness([]byte{0xff, 0xee})
	return r
}

func TestEncodeDecode(t *testing.T) {
	r := sampleRequest()
	encoded := r.Encode()
	assert.Zero(t, len(encoded)%wordSize)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, decoded.Encode())

	assert.Equal(t, r.Script, decoded.Script)
	assert.Equal(t, r.ScriptData, decoded.ScriptData)
	assert.Equal(t, r.Inputs, decoded.Inputs)
	assert.Equal(t, r.Outputs, decoded.Outputs)
	assert.Equal(t, r.Witnesses, decoded.Witnesses)
	assert.Equal(t, uint32(7), decoded.Maturity)
}

func TestDecode_Invalid(t *testing.T) {
	encoded := sampleRequest().Encode()

	_, err := Decode(encoded[:len(encoded)-1])
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	_, err = Decode(append(append([]byte{}, encoded...), make([]byte, 8)...))
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	wrongType := append([]byte{}, encoded...)
	wrongType[7] = 1
	_, err = Decode(wrongType)
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	_, err = Decode(nil)
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	// script length larger than the payload
	huge := append([]byte{}, encoded...)
	huge[4*8] = 0xff
	_, err = Decode(huge)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestID_IgnoresWitnessesAndChainFilledFields(t *testing.T) {
	r := sampleRequest()
	id := r.ID(0)

	r.AddWitness(make([]byte, 64))
	assert.Equal(t, id, r.ID(0))

	r.Inputs[0].PredicateGasUsed = 12345
	r.Inputs[0].TxPointer = TxPointer{}
	assert.Equal(t, id, r.ID(0))

	assert.NotEqual(t, id, r.ID(9889))

	r.Outputs[0].Amount = 11
	assert.NotEqual(t, id, r.ID(0))
}

func TestID_IgnoresChainFilledOutputs(t *testing.T) {
	r := sampleRequest()
	r.AddVariableOutput()
	id := r.ID(0)

	var change, variable int
	for i, out := range r.Outputs {
		switch out.Type {
		case OutputTypeChange:
			change = i
		case OutputTypeVariable:
			variable = i
		}
	}

	r.Outputs[change].Amount = 999_990
	r.Outputs[variable].To = recipient
	r.Outputs[variable].Amount = 3
	r.Outputs[variable].AssetId = otherAsset
	assert.Equal(t, id, r.ID(0))

	// the change recipient is chosen by the sender
	r.Outputs[change].To = recipient
	assert.NotEqual(t, id, r.ID(0))
}

func TestAddResource_CarriesTxPointer(t *testing.T) {
	r := NewScriptRequest(1, 100)
	pointer := TxPointer{BlockHeight: 1207, TxIndex: 4}
	r.AddResource(Coin{UtxoId: UtxoId{TxId: types.TxId{1}}, Owner: owner, Amount: 5, TxPointer: pointer})
	require.Len(t, r.Inputs, 1)
	assert.Equal(t, pointer, r.Inputs[0].TxPointer)

	decoded, err := Decode(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, pointer, decoded.Inputs[0].TxPointer)
}

func TestID_CoversPredicateData(t *testing.T) {
	r := sampleRequest()
	id := r.ID(0)

	r.Inputs[0].PredicateData = []byte{0, 0, 0, 0, 0, 0, 0, 1}
	assert.NotEqual(t, id, r.ID(0))
}

func TestClone_IsDeep(t *testing.T) {
	r := sampleRequest()
	c := r.Clone()
	require.Equal(t, r.Encode(), c.Encode())

	c.Inputs[0].Predicate[0] = 0
	c.Witnesses[0][0] = 0
	c.Script[0] = 0
	c.Outputs[0].Amount = 1
	c.AddWitness([]byte{1})

	assert.Equal(t, byte(0xde), r.Inputs[0].Predicate[0])
	assert.Equal(t, byte(0xff), r.Witnesses[0][0])
	assert.Equal(t, byte(0x24), r.Script[0])
	assert.Equal(t, uint64(10), r.Outputs[0].Amount)
	assert.Len(t, r.Witnesses, 1)
}

func TestAddResource(t *testing.T) {
	r := NewScriptRequest(0, 1000)
	coin := Coin{UtxoId: UtxoId{TxId: types.TxId{1}}, Owner: owner, Amount: 5, AssetId: otherAsset}

	r.AddResource(coin)
	r.AddResource(coin)
	r.AddResources([]Coin{{UtxoId: UtxoId{TxId: types.TxId{2}}, Owner: owner, Amount: 6, AssetId: otherAsset}})

	require.Len(t, r.Inputs, 2)
	require.Len(t, r.Outputs, 1)
	assert.Equal(t, OutputTypeChange, r.Outputs[0].Type)
	assert.Equal(t, owner, r.Outputs[0].To)
	assert.Equal(t, otherAsset, r.Outputs[0].AssetId)
}

func TestAttachPredicate(t *testing.T) {
	r := NewScriptRequest(0, 1000)
	r.AddResource(Coin{UtxoId: UtxoId{TxId: types.TxId{1}}, Owner: owner, Amount: 5})
	r.AddResource(Coin{UtxoId: UtxoId{TxId: types.TxId{2}}, Owner: recipient, Amount: 5})
	r.AddResource(Coin{UtxoId: UtxoId{TxId: types.TxId{3}}, Owner: owner, Amount: 5})

	predicate := []byte{1, 2, 3}
	n := r.AttachPredicate(owner, predicate, []byte{9})
	assert.Equal(t, 2, n)

	predicate[0] = 0xff
	assert.True(t, r.Inputs[0].IsPredicate())
	assert.False(t, r.Inputs[1].IsPredicate())
	assert.Equal(t, []byte{1, 2, 3}, r.Inputs[2].Predicate)
	assert.Equal(t, []byte{9}, r.Inputs[2].PredicateData)
}

func TestCoinQuantities(t *testing.T) {
	r := NewScriptRequest(0, 1000)
	r.AddCoinOutput(recipient, 10, types.BaseAssetId)
	r.AddCoinOutput(owner, 5, types.BaseAssetId)
	r.AddCoinOutput(owner, 3, otherAsset)
	r.AddChangeOutput(owner, types.BaseAssetId)
	r.AddVariableOutput()

	q := r.CoinQuantities()
	assert.Equal(t, uint64(15), q[types.BaseAssetId])
	assert.Equal(t, uint64(3), q[otherAsset])
	assert.Equal(t, "variable", r.Outputs[4].Type.String())
}
