package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixDerivation  = "predicate:derivation:"
	keySchemaVersion     = "predicate:metadata:schema_version"
	currentSchemaVersion = "v1"

	// Redis has no native prefix iteration, so listing goes through an index set
	keySetDerivations = "predicate:derivations:index"

	operationTimeout = 5 * time.Second
)

// RedisPersistence is an IDerivationStore shared through Redis, so several
// connector processes reuse each other's derivations.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is prepended to every key, e.g. "tenant-a:" for multi-tenant setups
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and validates the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err == redis.Nil {
		return r.client.Set(ctx, schemaKey, currentSchemaVersion, 0).Err()
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if existingVersion != currentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, currentSchemaVersion)
	}
	return nil
}

// SaveDerivedAccount stores the account and indexes its key in one pipeline
func (r *RedisPersistence) SaveDerivedAccount(account *persistence.DerivedAccount) error {
	if account == nil {
		return fmt.Errorf("cannot save nil DerivedAccount")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := persistence.MarshalDerivedAccount(account)
	if err != nil {
		return fmt.Errorf("failed to marshal DerivedAccount: %w", err)
	}

	id := account.Key.String()
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.prefixKey(keyPrefixDerivation+id), data, 0)
	pipe.SAdd(ctx, r.prefixKey(keySetDerivations), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save DerivedAccount: %w", err)
	}
	return nil
}

// LoadDerivedAccount retrieves a derived account, nil if not present
func (r *RedisPersistence) LoadDerivedAccount(key persistence.DerivationKey) (*persistence.DerivedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyPrefixDerivation+key.String())).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load DerivedAccount: %w", err)
	}

	account, err := persistence.UnmarshalDerivedAccount(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal DerivedAccount: %w", err)
	}
	return account, nil
}

// DeleteDerivedAccount removes the account and its index entry. Idempotent.
func (r *RedisPersistence) DeleteDerivedAccount(key persistence.DerivationKey) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	id := key.String()
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.prefixKey(keyPrefixDerivation+id))
	pipe.SRem(ctx, r.prefixKey(keySetDerivations), id)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete DerivedAccount: %w", err)
	}
	return nil
}

// ListDerivedAccounts fetches every indexed derivation sorted by key
func (r *RedisPersistence) ListDerivedAccounts() ([]*persistence.DerivedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	indexKey := r.prefixKey(keySetDerivations)
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list derivation keys: %w", err)
	}
	if len(ids) == 0 {
		return []*persistence.DerivedAccount{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.prefixKey(keyPrefixDerivation + id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch DerivedAccounts: %w", err)
	}

	accounts := make([]*persistence.DerivedAccount, 0, len(values))
	for i, val := range values {
		if val == nil {
			// stale index entry
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for DerivedAccount", "key", keys[i])
			continue
		}

		account, err := persistence.UnmarshalDerivedAccount([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal DerivedAccount, skipping",
				"key", keys[i], "error", err)
			continue
		}
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Key.String() < accounts[j].Key.String()
	})
	return accounts, nil
}

// Close closes the Redis client. Idempotent.
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck pings Redis and verifies the schema marker
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("persistence layer is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if err == redis.Nil {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}
	return nil
}
