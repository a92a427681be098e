package predicate

import (
	"testing"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layoutAbi = `{
  "types": [
    {"typeId": 0, "type": "b256"},
    {"typeId": 1, "type": "u64"},
    {"typeId": 2, "type": "struct Pair", "components": [{"name": "a", "type": 0}, {"name": "b", "type": 1}]},
    {"typeId": 3, "type": "[_; 3]", "components": [{"name": "__array_element", "type": 1}]},
    {"typeId": 4, "type": "(_, _)", "components": [{"name": "__tuple_element", "type": 1}, {"name": "__tuple_element", "type": 8}]},
    {"typeId": 8, "type": "bool"}
  ],
  "functions": [],
  "configurables": [
    {"name": "KEY", "configurableType": {"name": "", "type": 0}, "offset": 0},
    {"name": "PAIR", "configurableType": {"name": "", "type": 2}, "offset": 32},
    {"name": "LIST", "configurableType": {"name": "", "type": 3}, "offset": 72},
    {"name": "TUPLE", "configurableType": {"name": "", "type": 4}, "offset": 96}
  ]
}`

func TestResolveConfigurables_Sizes(t *testing.T) {
	abi, err := ParseAbi([]byte(layoutAbi))
	require.NoError(t, err)

	descs, err := abi.ResolveConfigurables()
	require.NoError(t, err)

	assert.Equal(t, ConfigurableDescriptor{Name: "KEY", ByteOffset: 0, ByteLength: 32}, descs["KEY"])
	assert.Equal(t, ConfigurableDescriptor{Name: "PAIR", ByteOffset: 32, ByteLength: 40}, descs["PAIR"])
	assert.Equal(t, ConfigurableDescriptor{Name: "LIST", ByteOffset: 72, ByteLength: 24}, descs["LIST"])
	assert.Equal(t, ConfigurableDescriptor{Name: "TUPLE", ByteOffset: 96, ByteLength: 16}, descs["TUPLE"])
	assert.Equal(t, 112, descs["TUPLE"].End())
}

func TestResolveConfigurables_VerificationProgram(t *testing.T) {
	abi, err := ParseAbi(verificationPredicateAbi)
	require.NoError(t, err)

	descs, err := abi.ResolveConfigurables()
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, ConfigurableDescriptor{Name: "SIGNER", ByteOffset: 1952, ByteLength: 32}, descs["SIGNER"])
}

func TestResolveConfigurables_Malformed(t *testing.T) {
	tests := []struct {
		name string
		abi  string
	}{
		{
			name: "unknown type",
			abi:  `{"types":[{"typeId":0,"type":"String"}],"configurables":[{"name":"X","configurableType":{"type":0},"offset":0}]}`,
		},
		{
			name: "missing type id",
			abi:  `{"types":[],"configurables":[{"name":"X","configurableType":{"type":7},"offset":0}]}`,
		},
		{
			name: "duplicate name",
			abi:  `{"types":[{"typeId":0,"type":"u64"}],"configurables":[{"name":"X","configurableType":{"type":0},"offset":0},{"name":"X","configurableType":{"type":0},"offset":8}]}`,
		},
		{
			name: "empty name",
			abi:  `{"types":[{"typeId":0,"type":"u64"}],"configurables":[{"name":"","configurableType":{"type":0},"offset":0}]}`,
		},
		{
			name: "negative offset",
			abi:  `{"types":[{"typeId":0,"type":"u64"}],"configurables":[{"name":"X","configurableType":{"type":0},"offset":-8}]}`,
		},
		{
			name: "recursive struct",
			abi:  `{"types":[{"typeId":0,"type":"struct Loop","components":[{"name":"a","type":0}]}],"configurables":[{"name":"X","configurableType":{"type":0},"offset":0}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abi, err := ParseAbi([]byte(tt.abi))
			require.NoError(t, err)
			_, err = abi.ResolveConfigurables()
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrMalformedProgram)
		})
	}
}

func TestParseAbi_Invalid(t *testing.T) {
	_, err := ParseAbi(nil)
	assert.ErrorIs(t, err, types.ErrMalformedProgram)

	_, err = ParseAbi([]byte(`{"types": 5}`))
	assert.ErrorIs(t, err, types.ErrMalformedProgram)
}
