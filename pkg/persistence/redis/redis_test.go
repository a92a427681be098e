package redis

import (
	"os"
	"testing"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// getTestRedisAddress uses REDIS_TEST_ADDRESS if set, otherwise localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test when no Redis server is reachable. Each test gets
// its own key prefix so runs do not observe each other's entries.
func requireRedis(t *testing.T) *RedisPersistence {
	t.Helper()

	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15,
		KeyPrefix: "test-" + uuid.NewString() + ":",
	}

	rp, err := NewRedisPersistence(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}
	t.Cleanup(func() { _ = rp.Close() })
	return rp
}

func newAccount(chainId uint64) *persistence.DerivedAccount {
	return &persistence.DerivedAccount{
		Key: persistence.DerivationKey{
			ProgramDigest: [32]byte{0x42},
			Signer:        common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			ChainId:       chainId,
		},
		Address:   types.Address{0x0c, byte(chainId)},
		DerivedAt: 1700000000,
	}
}

func TestNewRedisPersistence_InvalidConfig(t *testing.T) {
	_, err := NewRedisPersistence(nil, zaptest.NewLogger(t))
	assert.Error(t, err)

	_, err = NewRedisPersistence(&RedisConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRedisPersistence_SaveAndLoad(t *testing.T) {
	rp := requireRedis(t)

	acc := newAccount(0)
	require.NoError(t, rp.SaveDerivedAccount(acc))

	loaded, err := rp.LoadDerivedAccount(acc.Key)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, acc, loaded)

	missing, err := rp.LoadDerivedAccount(newAccount(1).Key)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisPersistence_ListAndDelete(t *testing.T) {
	rp := requireRedis(t)

	require.NoError(t, rp.SaveDerivedAccount(newAccount(0)))
	require.NoError(t, rp.SaveDerivedAccount(newAccount(9889)))

	list, err := rp.ListDerivedAccounts()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, rp.DeleteDerivedAccount(newAccount(0).Key))
	require.NoError(t, rp.DeleteDerivedAccount(newAccount(0).Key))

	list, err = rp.ListDerivedAccounts()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(9889), list[0].Key.ChainId)
}

func TestRedisPersistence_HealthAndClose(t *testing.T) {
	rp := requireRedis(t)

	require.NoError(t, rp.HealthCheck())
	require.NoError(t, rp.Close())
	require.NoError(t, rp.Close())
	assert.Error(t, rp.HealthCheck())
}
