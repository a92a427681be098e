package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for connector configuration
const (
	EnvPredicateChainID           = "PREDICATE_CHAIN_ID"
	EnvPredicateGraphQLURL        = "PREDICATE_GRAPHQL_URL"
	EnvPredicateRequestsPerSecond = "PREDICATE_REQUESTS_PER_SECOND"
	EnvPredicatePersistence       = "PREDICATE_PERSISTENCE"
	EnvPredicateDataDir           = "PREDICATE_DATA_DIR"
	EnvPredicateRedisAddress      = "PREDICATE_REDIS_ADDRESS"
	EnvPredicateRedisPassword     = "PREDICATE_REDIS_PASSWORD"
	EnvPredicateRedisDB           = "PREDICATE_REDIS_DB"
	EnvPredicateSigner            = "PREDICATE_SIGNER"
	EnvPredicatePrivateKey        = "PREDICATE_PRIVATE_KEY"
	EnvPredicateEvmRPCURL         = "PREDICATE_EVM_RPC_URL"
	EnvPredicateKMSKeyID          = "PREDICATE_KMS_KEY_ID"
	EnvPredicateAWSRegion         = "PREDICATE_AWS_REGION"
	EnvPredicateVerbose           = "PREDICATE_VERBOSE"
	EnvPredicateProgramBytecode   = "PREDICATE_PROGRAM_BIN"
	EnvPredicateProgramABI        = "PREDICATE_PROGRAM_ABI"
)

// ChainId identifies a target chain. It is hashed into every predicate root and
// transaction id.
type ChainId uint64

const (
	ChainId_FuelTestnet ChainId = 0
	ChainId_FuelMainnet ChainId = 9889
)

type ChainName string

const (
	ChainName_FuelTestnet ChainName = "testnet"
	ChainName_FuelMainnet ChainName = "mainnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_FuelTestnet: ChainName_FuelTestnet,
	ChainId_FuelMainnet: ChainName_FuelMainnet,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_FuelTestnet: ChainId_FuelTestnet,
	ChainName_FuelMainnet: ChainId_FuelMainnet,
}

// DefaultGraphQLURL is a local devnet node. Transactions are submitted in this
// module's own encoding, so there is no public default; public nodes only serve
// the read queries.
const DefaultGraphQLURL = "http://127.0.0.1:4000/v1/graphql"

// GetSupportedChainIDs returns all supported chain IDs
func GetSupportedChainIDs() []ChainId {
	return []ChainId{
		ChainId_FuelTestnet,
		ChainId_FuelMainnet,
	}
}

// GetSupportedChainIDsString returns supported chain IDs as strings for CLI help
func GetSupportedChainIDsString() string {
	return fmt.Sprintf("%d (testnet), %d (mainnet)", ChainId_FuelTestnet, ChainId_FuelMainnet)
}

// PersistenceType selects the derivation store backend
type PersistenceType string

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

func (p PersistenceType) String() string {
	return string(p)
}

// SignerType selects where the external account's key lives
type SignerType string

const (
	// SignerTypeLocal signs with a private key held in process
	SignerTypeLocal SignerType = "local"
	// SignerTypeRPC forwards personal_sign to an EVM JSON-RPC endpoint (e.g. a node with unlocked accounts)
	SignerTypeRPC SignerType = "rpc"
	// SignerTypeKMS signs with an AWS KMS ECC_SECG_P256K1 key
	SignerTypeKMS SignerType = "kms"
)

func (s SignerType) String() string {
	return string(s)
}

// PersistenceConfig configures the derivation store
type PersistenceConfig struct {
	Type PersistenceType `json:"type" yaml:"type"`

	// DataDir is the badger directory
	DataDir string `json:"dataDir" yaml:"dataDir"`

	// MemoryCapacity bounds the in-memory LRU store
	MemoryCapacity int `json:"memoryCapacity" yaml:"memoryCapacity"`

	RedisAddress  string `json:"redisAddress" yaml:"redisAddress"`
	RedisPassword string `json:"redisPassword" yaml:"redisPassword"`
	RedisDB       int    `json:"redisDb" yaml:"redisDb"`
}

func (pc *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch pc.Type {
	case PersistenceTypeMemory, "":
		if pc.MemoryCapacity < 0 {
			allErrors = append(allErrors, field.Invalid(path.Child("memoryCapacity"), pc.MemoryCapacity, "must not be negative"))
		}
	case PersistenceTypeBadger:
		if pc.DataDir == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataDir"), "dataDir is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if pc.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if pc.RedisDB < 0 || pc.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDb"), pc.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), pc.Type,
			[]string{PersistenceTypeMemory.String(), PersistenceTypeBadger.String(), PersistenceTypeRedis.String()}))
	}
	return allErrors
}

// ProgramConfig points at a compiled verification predicate on disk. Empty paths
// select the embedded program.
type ProgramConfig struct {
	BytecodePath string `json:"bytecodePath" yaml:"bytecodePath"`
	AbiPath      string `json:"abiPath" yaml:"abiPath"`
}

// Embedded reports whether the built-in program is used
func (pc *ProgramConfig) Embedded() bool {
	return pc.BytecodePath == "" && pc.AbiPath == ""
}

func (pc *ProgramConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	if pc.BytecodePath != "" && pc.AbiPath == "" {
		allErrors = append(allErrors, field.Required(path.Child("abiPath"), "abiPath is required with bytecodePath"))
	}
	if pc.AbiPath != "" && pc.BytecodePath == "" {
		allErrors = append(allErrors, field.Required(path.Child("bytecodePath"), "bytecodePath is required with abiPath"))
	}
	return allErrors
}

// SignerConfig configures the external account provider
type SignerConfig struct {
	Type SignerType `json:"type" yaml:"type"`

	// PrivateKey is a hex secp256k1 key for the local signer
	PrivateKey string `json:"privateKey" yaml:"privateKey"`

	// RpcUrl is the EVM JSON-RPC endpoint for the rpc signer
	RpcUrl string `json:"rpcUrl" yaml:"rpcUrl"`

	// PollInterval is how often the rpc signer polls eth_accounts
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`

	KMSKeyId  string `json:"kmsKeyId" yaml:"kmsKeyId"`
	AWSRegion string `json:"awsRegion" yaml:"awsRegion"`
}

func (sc *SignerConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList
	switch sc.Type {
	case "":
		// no external wallet; only derivation and queries are possible
	case SignerTypeLocal:
		if sc.PrivateKey == "" {
			allErrors = append(allErrors, field.Required(path.Child("privateKey"), "privateKey is required for the local signer"))
		} else if !isPrivateKeyHex(sc.PrivateKey) {
			allErrors = append(allErrors, field.Invalid(path.Child("privateKey"), "<redacted>", "must be 32 bytes of hex"))
		}
	case SignerTypeRPC:
		if sc.RpcUrl == "" {
			allErrors = append(allErrors, field.Required(path.Child("rpcUrl"), "rpcUrl is required for the rpc signer"))
		}
		if sc.PollInterval < 0 {
			allErrors = append(allErrors, field.Invalid(path.Child("pollInterval"), sc.PollInterval.String(), "must not be negative"))
		}
	case SignerTypeKMS:
		if sc.KMSKeyId == "" {
			allErrors = append(allErrors, field.Required(path.Child("kmsKeyId"), "kmsKeyId is required for the kms signer"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), sc.Type,
			[]string{SignerTypeLocal.String(), SignerTypeRPC.String(), SignerTypeKMS.String()}))
	}
	return allErrors
}

func isPrivateKeyHex(key string) bool {
	if !strings.HasPrefix(key, "0x") {
		key = "0x" + key
	}
	b, err := hexutil.Decode(key)
	return err == nil && len(b) == 32
}

// ConnectorConfig is the complete configuration of a predicate connector
type ConnectorConfig struct {
	// Target chain
	ChainID    ChainId   `json:"chain_id"`
	ChainName  ChainName `json:"chain_name"`
	GraphQLURL string    `json:"graphql_url"`

	// RequestsPerSecond rate limits the target chain client; zero disables limiting
	RequestsPerSecond float64 `json:"requests_per_second"`

	Program     ProgramConfig     `json:"program"`
	Persistence PersistenceConfig `json:"persistence"`
	Signer      SignerConfig      `json:"signer"`

	// Operational settings
	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`
}

// Validate checks the configuration and fills in the chain name and, for known
// chains without a URL, the local devnet node.
func (c *ConnectorConfig) Validate() error {
	var allErrors field.ErrorList

	chainName, exists := ChainIdToName[c.ChainID]
	switch {
	case exists:
		c.ChainName = chainName
		if c.GraphQLURL == "" {
			c.GraphQLURL = DefaultGraphQLURL
		}
	case c.GraphQLURL == "":
		allErrors = append(allErrors, field.Invalid(field.NewPath("chainId"), c.ChainID,
			fmt.Sprintf("unsupported chain ID without graphqlUrl. Supported: %s", GetSupportedChainIDsString())))
	default:
		c.ChainName = ChainName(fmt.Sprintf("custom-%d", c.ChainID))
	}

	if c.RequestsPerSecond < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("requestsPerSecond"), c.RequestsPerSecond, "must not be negative"))
	}

	allErrors = append(allErrors, c.Program.validate(field.NewPath("program"))...)
	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)
	allErrors = append(allErrors, c.Signer.validate(field.NewPath("signer"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// ParseSignerAddress validates an optional signer address argument
func ParseSignerAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid EVM address: %s", s)
	}
	return common.HexToAddress(s), nil
}
