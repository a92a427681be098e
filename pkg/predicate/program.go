package predicate

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/merkle"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// ConfigurableSigner is the configurable constant holding the authorized external signer
const ConfigurableSigner = "SIGNER"

// Program is an immutable compiled predicate together with its resolved
// configurable layout. Accessors return copies.
type Program struct {
	bytecode      []byte
	abi           *JsonAbi
	configurables map[string]ConfigurableDescriptor
	digest        [32]byte
}

// NewProgram validates the ABI against the bytecode once so later patches can only
// fail on value length mismatches.
func NewProgram(bytecode []byte, abiJSON []byte) (*Program, error) {
	if len(bytecode) == 0 {
		return nil, fmt.Errorf("%w: empty bytecode", types.ErrMalformedProgram)
	}

	abi, err := ParseAbi(abiJSON)
	if err != nil {
		return nil, err
	}

	configurables, err := abi.ResolveConfigurables()
	if err != nil {
		return nil, err
	}

	for _, desc := range configurables {
		if desc.End() > len(bytecode) {
			return nil, fmt.Errorf("%w: configurable %s spans [%d, %d) beyond bytecode length %d",
				types.ErrMalformedProgram, desc.Name, desc.ByteOffset, desc.End(), len(bytecode))
		}
	}

	code := make([]byte, len(bytecode))
	copy(code, bytecode)

	return &Program{
		bytecode:      code,
		abi:           abi,
		configurables: configurables,
		digest:        programDigest(code, configurables),
	}, nil
}

// LoadProgramFromFiles reads a compiled predicate binary and its JSON ABI from disk
func LoadProgramFromFiles(bytecodePath, abiPath string) (*Program, error) {
	bytecode, err := os.ReadFile(bytecodePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bytecode from %s: %w", bytecodePath, err)
	}
	abiJSON, err := os.ReadFile(abiPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ABI from %s: %w", abiPath, err)
	}
	return NewProgram(bytecode, abiJSON)
}

// Bytecode returns a copy of the unpatched bytecode
func (p *Program) Bytecode() []byte {
	out := make([]byte, len(p.bytecode))
	copy(out, p.bytecode)
	return out
}

// Abi returns the parsed ABI
func (p *Program) Abi() *JsonAbi {
	return p.abi
}

// Digest identifies the program (bytecode plus configurable layout) for cache keys
func (p *Program) Digest() [32]byte {
	return p.digest
}

// Configurable returns the descriptor for a named configurable constant
func (p *Program) Configurable(name string) (ConfigurableDescriptor, bool) {
	desc, ok := p.configurables[name]
	return desc, ok
}

// Patch returns a copy of the bytecode with every assignment written at its
// configurable's offset.
func (p *Program) Patch(assignments map[string][]byte) ([]byte, error) {
	patched := p.Bytecode()
	for name, value := range assignments {
		desc, ok := p.configurables[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown configurable %s", types.ErrMalformedProgram, name)
		}
		if len(value) != desc.ByteLength {
			return nil, fmt.Errorf("%w: configurable %s expects %d bytes, got %d",
				types.ErrMalformedProgram, name, desc.ByteLength, len(value))
		}
		copy(patched[desc.ByteOffset:desc.End()], value)
	}
	return patched, nil
}

// WithSigner patches the SIGNER configurable with the left-padded external address
func (p *Program) WithSigner(signer common.Address) ([]byte, error) {
	padded := PadEvmAddress(signer)
	return p.Patch(map[string][]byte{ConfigurableSigner: padded[:]})
}

// ReadConfigurable reads a configurable's current value out of (possibly patched) bytecode
func (p *Program) ReadConfigurable(bytecode []byte, name string) ([]byte, error) {
	desc, ok := p.configurables[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown configurable %s", types.ErrMalformedProgram, name)
	}
	if desc.End() > len(bytecode) {
		return nil, fmt.Errorf("%w: bytecode of length %d does not contain configurable %s",
			types.ErrMalformedProgram, len(bytecode), name)
	}
	out := make([]byte, desc.ByteLength)
	copy(out, bytecode[desc.ByteOffset:desc.End()])
	return out, nil
}

// SignerFromBytecode extracts the external signer from patched bytecode
func (p *Program) SignerFromBytecode(bytecode []byte) (common.Address, error) {
	value, err := p.ReadConfigurable(bytecode, ConfigurableSigner)
	if err != nil {
		return common.Address{}, err
	}
	if len(value) != 32 {
		return common.Address{}, fmt.Errorf("%w: SIGNER must be 32 bytes, got %d", types.ErrMalformedProgram, len(value))
	}
	return common.BytesToAddress(value[12:]), nil
}

// PadEvmAddress left pads a 20 byte address with zeros to 32 bytes
func PadEvmAddress(addr common.Address) [32]byte {
	var out [32]byte
	copy(out[32-common.AddressLength:], addr.Bytes())
	return out
}

func programDigest(bytecode []byte, configurables map[string]ConfigurableDescriptor) [32]byte {
	names := make([]string, 0, len(configurables))
	for name := range configurables {
		names = append(names, name)
	}
	sort.Strings(names)

	layout := make([]byte, 0, len(names)*24)
	for _, name := range names {
		desc := configurables[name]
		layout = append(layout, []byte(name)...)
		layout = binary.BigEndian.AppendUint64(layout, uint64(desc.ByteOffset))
		layout = binary.BigEndian.AppendUint64(layout, uint64(desc.ByteLength))
	}
	return merkle.Sha256(bytecode, layout)
}
