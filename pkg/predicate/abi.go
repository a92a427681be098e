package predicate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// wordSize is the encoded width of every primitive numeric type in the predicate ABI
const wordSize = 8

// JsonAbi is the subset of the compiled program ABI needed to locate configurable constants.
type JsonAbi struct {
	Types         []AbiType         `json:"types"`
	Functions     []AbiFunction     `json:"functions"`
	Configurables []AbiConfigurable `json:"configurables"`
}

type AbiType struct {
	TypeId     int            `json:"typeId"`
	Type       string         `json:"type"`
	Components []AbiComponent `json:"components"`
}

type AbiComponent struct {
	Name string `json:"name"`
	Type int    `json:"type"`
}

type AbiFunction struct {
	Name   string         `json:"name"`
	Inputs []AbiComponent `json:"inputs"`
	Output AbiComponent   `json:"output"`
}

type AbiConfigurable struct {
	Name             string       `json:"name"`
	ConfigurableType AbiComponent `json:"configurableType"`
	Offset           int          `json:"offset"`
}

// ConfigurableDescriptor locates one configurable constant inside the bytecode.
type ConfigurableDescriptor struct {
	Name       string
	ByteOffset int
	ByteLength int
}

// End returns the exclusive end offset of the constant
func (cd ConfigurableDescriptor) End() int {
	return cd.ByteOffset + cd.ByteLength
}

var arrayTypePattern = regexp.MustCompile(`^\[_; (\d+)\]$`)

// ParseAbi decodes a JSON ABI document
func ParseAbi(data []byte) (*JsonAbi, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty ABI", types.ErrMalformedProgram)
	}
	var abi JsonAbi
	if err := json.Unmarshal(data, &abi); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ABI: %v", types.ErrMalformedProgram, err)
	}
	return &abi, nil
}

// ResolveConfigurables turns the ABI's configurables into typed descriptors,
// computing each constant's encoded byte length from its type.
func (a *JsonAbi) ResolveConfigurables() (map[string]ConfigurableDescriptor, error) {
	typesById := make(map[int]AbiType, len(a.Types))
	for _, t := range a.Types {
		typesById[t.TypeId] = t
	}

	descriptors := make(map[string]ConfigurableDescriptor, len(a.Configurables))
	for _, c := range a.Configurables {
		if c.Name == "" {
			return nil, fmt.Errorf("%w: configurable with empty name", types.ErrMalformedProgram)
		}
		if _, exists := descriptors[c.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate configurable %s", types.ErrMalformedProgram, c.Name)
		}
		if c.Offset < 0 {
			return nil, fmt.Errorf("%w: configurable %s has negative offset %d", types.ErrMalformedProgram, c.Name, c.Offset)
		}

		size, err := encodedSize(typesById, c.ConfigurableType.Type, map[int]bool{})
		if err != nil {
			return nil, fmt.Errorf("%w: configurable %s: %v", types.ErrMalformedProgram, c.Name, err)
		}

		descriptors[c.Name] = ConfigurableDescriptor{
			Name:       c.Name,
			ByteOffset: c.Offset,
			ByteLength: size,
		}
	}
	return descriptors, nil
}

func encodedSize(typesById map[int]AbiType, typeId int, visiting map[int]bool) (int, error) {
	t, ok := typesById[typeId]
	if !ok {
		return 0, fmt.Errorf("unknown type id %d", typeId)
	}
	if visiting[typeId] {
		return 0, fmt.Errorf("recursive type %s", t.Type)
	}
	visiting[typeId] = true
	defer delete(visiting, typeId)

	switch {
	case t.Type == "b256":
		return 32, nil
	case t.Type == "u8", t.Type == "u16", t.Type == "u32", t.Type == "u64", t.Type == "bool":
		return wordSize, nil
	case strings.HasPrefix(t.Type, "struct "), strings.HasPrefix(t.Type, "("):
		total := 0
		for _, component := range t.Components {
			size, err := encodedSize(typesById, component.Type, visiting)
			if err != nil {
				return 0, err
			}
			total += size
		}
		return total, nil
	case arrayTypePattern.MatchString(t.Type):
		if len(t.Components) != 1 {
			return 0, fmt.Errorf("array type %s must have exactly one component", t.Type)
		}
		n, err := strconv.Atoi(arrayTypePattern.FindStringSubmatch(t.Type)[1])
		if err != nil {
			return 0, fmt.Errorf("invalid array length in %s: %v", t.Type, err)
		}
		size, err := encodedSize(typesById, t.Components[0].Type, visiting)
		if err != nil {
			return 0, err
		}
		return n * size, nil
	default:
		return 0, fmt.Errorf("unsupported configurable type %s", t.Type)
	}
}
