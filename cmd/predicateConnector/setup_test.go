package main

import (
	"context"
	"flag"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/config"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence/memory"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

const testPrivateKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewStore(t *testing.T) {
	l := zaptest.NewLogger(t)

	store, err := newStore(&config.PersistenceConfig{Type: config.PersistenceTypeMemory}, l)
	require.NoError(t, err)
	_, ok := store.(*memory.MemoryPersistence)
	assert.True(t, ok)
	require.NoError(t, store.Close())

	store, err = newStore(&config.PersistenceConfig{Type: config.PersistenceTypeBadger, DataDir: t.TempDir()}, l)
	require.NoError(t, err)
	require.NoError(t, store.HealthCheck())
	require.NoError(t, store.Close())
}

func TestNewProviderFactory_Local(t *testing.T) {
	ctx := context.Background()
	factory := newProviderFactory(&config.SignerConfig{Type: config.SignerTypeLocal, PrivateKey: testPrivateKey}, zaptest.NewLogger(t))

	provider, err := factory(ctx)
	require.NoError(t, err)
	accounts, err := eip1193.RequestAccounts(ctx, provider)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", accounts[0].Hex())
}

func TestNewProviderFactory_None(t *testing.T) {
	_, err := newProviderFactory(&config.SignerConfig{}, zaptest.NewLogger(t))(context.Background())
	require.Error(t, err)
}

func TestParseConnectorConfig(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Uint64("chain-id", 9889, "")
	set.String("persistence", "redis", "")
	set.String("redis-address", "localhost:6379", "")
	set.String("signer", "kms", "")
	set.String("kms-key-id", "alias/predicate", "")
	set.Bool("verbose", true, "")

	cfg := parseConnectorConfig(cli.NewContext(cli.NewApp(), set, nil))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.ChainName_FuelMainnet, cfg.ChainName)
	assert.Equal(t, config.PersistenceTypeRedis, cfg.Persistence.Type)
	assert.Equal(t, config.SignerTypeKMS, cfg.Signer.Type)
	assert.True(t, cfg.Debug)
}

func TestOpenStore(t *testing.T) {
	l := zaptest.NewLogger(t)
	store, err := openStore(&config.PersistenceConfig{Type: config.PersistenceTypeBadger, DataDir: t.TempDir()}, l)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = openStore(&config.PersistenceConfig{Type: config.PersistenceTypeRedis, RedisAddress: "127.0.0.1:1"}, l)
	require.Error(t, err)
}

func TestLoadProgram(t *testing.T) {
	embedded, err := loadProgram(&config.ProgramConfig{})
	require.NoError(t, err)

	fromFiles, err := loadProgram(&config.ProgramConfig{
		BytecodePath: "../../pkg/predicate/resources/verification-predicate.bin",
		AbiPath:      "../../pkg/predicate/resources/verification-predicate-abi.json",
	})
	require.NoError(t, err)
	assert.Equal(t, embedded.Digest(), fromFiles.Digest())

	_, err = loadProgram(&config.ProgramConfig{BytecodePath: "missing.bin", AbiPath: "missing.json"})
	require.Error(t, err)
}

func TestPurgeDerivations(t *testing.T) {
	program, err := predicate.LoadVerificationProgram()
	require.NoError(t, err)
	store, err := memory.NewMemoryPersistence(memory.DefaultCapacity)
	require.NoError(t, err)

	alice := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	save := func(signer common.Address, chainId uint64) {
		require.NoError(t, store.SaveDerivedAccount(&persistence.DerivedAccount{
			Key:     persistence.DerivationKey{ProgramDigest: program.Digest(), Signer: signer, ChainId: chainId},
			Address: types.Address{byte(chainId)},
		}))
	}
	save(alice, 0)
	save(bob, 0)
	save(alice, 9889)

	removed, err := purgeDerivations(store, derivationFilter{ChainId: 0, Signer: &alice})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = purgeDerivations(store, derivationFilter{ChainId: 0})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	left, err := store.ListDerivedAccounts()
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, uint64(9889), left[0].Key.ChainId)

	removed, err = purgeDerivations(store, derivationFilter{All: true})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
