package memory

import (
	"sync"
	"testing"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func account(chainId uint64) *persistence.DerivedAccount {
	return &persistence.DerivedAccount{
		Key: persistence.DerivationKey{
			ProgramDigest: [32]byte{9},
			Signer:        common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			ChainId:       chainId,
		},
		Address:   types.Address{byte(chainId)},
		DerivedAt: 1,
	}
}

func TestMemoryPersistence_SaveAndLoad(t *testing.T) {
	m, err := NewMemoryPersistence(0)
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	acc := account(0)
	require.NoError(t, m.SaveDerivedAccount(acc))

	loaded, err := m.LoadDerivedAccount(acc.Key)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, acc, loaded)

	// mutation of the returned copy does not leak into the store
	loaded.Address[0] = 0xff
	again, err := m.LoadDerivedAccount(acc.Key)
	require.NoError(t, err)
	assert.Equal(t, acc.Address, again.Address)
}

func TestMemoryPersistence_LoadMissing(t *testing.T) {
	m, err := NewMemoryPersistence(8)
	require.NoError(t, err)

	loaded, err := m.LoadDerivedAccount(account(1).Key)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryPersistence_ChainIdIsPartOfKey(t *testing.T) {
	m, err := NewMemoryPersistence(8)
	require.NoError(t, err)

	require.NoError(t, m.SaveDerivedAccount(account(0)))
	require.NoError(t, m.SaveDerivedAccount(account(9889)))

	list, err := m.ListDerivedAccounts()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	loaded, err := m.LoadDerivedAccount(account(9889).Key)
	require.NoError(t, err)
	assert.Equal(t, types.Address{byte(9889 & 0xff)}, loaded.Address)
}

func TestMemoryPersistence_Eviction(t *testing.T) {
	m, err := NewMemoryPersistence(2)
	require.NoError(t, err)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, m.SaveDerivedAccount(account(i)))
	}
	assert.Equal(t, 2, m.Len())

	oldest, err := m.LoadDerivedAccount(account(1).Key)
	require.NoError(t, err)
	assert.Nil(t, oldest)
}

func TestMemoryPersistence_Delete(t *testing.T) {
	m, err := NewMemoryPersistence(8)
	require.NoError(t, err)

	acc := account(3)
	require.NoError(t, m.SaveDerivedAccount(acc))
	require.NoError(t, m.DeleteDerivedAccount(acc.Key))
	require.NoError(t, m.DeleteDerivedAccount(acc.Key))

	loaded, err := m.LoadDerivedAccount(acc.Key)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestMemoryPersistence_Closed(t *testing.T) {
	m, err := NewMemoryPersistence(8)
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	assert.Error(t, m.HealthCheck())
	assert.Error(t, m.SaveDerivedAccount(account(0)))
	_, err = m.ListDerivedAccounts()
	assert.Error(t, err)
}

func TestMemoryPersistence_SaveNil(t *testing.T) {
	m, err := NewMemoryPersistence(8)
	require.NoError(t, err)
	assert.Error(t, m.SaveDerivedAccount(nil))
}

func TestMemoryPersistence_Concurrent(t *testing.T) {
	m, err := NewMemoryPersistence(128)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc := account(uint64(i))
			assert.NoError(t, m.SaveDerivedAccount(acc))
			loaded, err := m.LoadDerivedAccount(acc.Key)
			assert.NoError(t, err)
			assert.NotNil(t, loaded)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, m.Len())
}
