package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Key prefixes for namespacing
const (
	keyPrefixDerivation  = "derivation:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerPersistence is a disk-backed IDerivationStore using Badger.
// Derivations survive restarts so the CLI does not recompute the bytecode root
// for every invocation.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) a Badger database at dataPath.
// A background goroutine runs value log garbage collection until Close.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
		}
		return nil
	})
}

func (b *BadgerPersistence) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func derivationKey(key persistence.DerivationKey) []byte {
	return []byte(keyPrefixDerivation + key.String())
}

// SaveDerivedAccount persists a derived account
func (b *BadgerPersistence) SaveDerivedAccount(account *persistence.DerivedAccount) error {
	if account == nil {
		return fmt.Errorf("cannot save nil DerivedAccount")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	data, err := persistence.MarshalDerivedAccount(account)
	if err != nil {
		return fmt.Errorf("failed to marshal DerivedAccount: %w", err)
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(derivationKey(account.Key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to save DerivedAccount: %w", err)
	}
	return nil
}

// LoadDerivedAccount retrieves a derived account, nil if not present
func (b *BadgerPersistence) LoadDerivedAccount(key persistence.DerivationKey) (*persistence.DerivedAccount, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(derivationKey(key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load DerivedAccount: %w", err)
	}
	if data == nil {
		return nil, nil
	}

	account, err := persistence.UnmarshalDerivedAccount(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DerivedAccount: %w", err)
	}
	return account, nil
}

// DeleteDerivedAccount removes a derived account. Idempotent.
func (b *BadgerPersistence) DeleteDerivedAccount(key persistence.DerivationKey) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(derivationKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete DerivedAccount: %w", err)
	}
	return nil
}

// ListDerivedAccounts returns every persisted derivation sorted by key
func (b *BadgerPersistence) ListDerivedAccounts() ([]*persistence.DerivedAccount, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	accounts := []*persistence.DerivedAccount{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixDerivation)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			var data []byte
			err := item.Value(func(val []byte) error {
				data = append([]byte{}, val...)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			account, err := persistence.UnmarshalDerivedAccount(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal DerivedAccount, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}
			accounts = append(accounts, account)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list DerivedAccounts: %w", err)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Key.String() < accounts[j].Key.String()
	})
	return accounts, nil
}

// Close stops garbage collection and closes the database. Idempotent.
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the database is readable and initialized
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
