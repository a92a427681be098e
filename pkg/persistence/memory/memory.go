package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCapacity bounds the number of derivations held in memory.
const DefaultCapacity = 4096

// MemoryPersistence is a bounded in-memory IDerivationStore.
//
// Entries are evicted least-recently-used once the capacity is reached. Eviction
// only costs a recomputation since every entry is a pure function of its key.
// Copies are stored and returned to prevent external mutation.
type MemoryPersistence struct {
	mu     sync.RWMutex
	cache  *lru.Cache
	closed bool
}

// NewMemoryPersistence creates an in-memory store holding at most capacity entries.
// A non-positive capacity selects DefaultCapacity.
func NewMemoryPersistence(capacity int) (*MemoryPersistence, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &MemoryPersistence{cache: cache}, nil
}

// SaveDerivedAccount stores a copy of the account.
func (m *MemoryPersistence) SaveDerivedAccount(account *persistence.DerivedAccount) error {
	if account == nil {
		return fmt.Errorf("cannot save nil DerivedAccount")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	stored := *account
	m.cache.Add(account.Key, &stored)
	return nil
}

// LoadDerivedAccount returns a copy of the stored account, or nil if absent.
func (m *MemoryPersistence) LoadDerivedAccount(key persistence.DerivationKey) (*persistence.DerivedAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	val, ok := m.cache.Get(key)
	if !ok {
		return nil, nil
	}
	found := *(val.(*persistence.DerivedAccount))
	return &found, nil
}

func (m *MemoryPersistence) DeleteDerivedAccount(key persistence.DerivationKey) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	m.cache.Remove(key)
	return nil
}

// ListDerivedAccounts returns copies of all resident entries sorted by key.
func (m *MemoryPersistence) ListDerivedAccounts() ([]*persistence.DerivedAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	accounts := make([]*persistence.DerivedAccount, 0, m.cache.Len())
	for _, k := range m.cache.Keys() {
		// Peek does not touch recency
		val, ok := m.cache.Peek(k)
		if !ok {
			continue
		}
		found := *(val.(*persistence.DerivedAccount))
		accounts = append(accounts, &found)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Key.String() < accounts[j].Key.String()
	})
	return accounts, nil
}

// Len returns the number of resident entries.
func (m *MemoryPersistence) Len() int {
	return m.cache.Len()
}

func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.cache.Purge()
	return nil
}

func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("persistence layer is closed")
	}
	return nil
}
