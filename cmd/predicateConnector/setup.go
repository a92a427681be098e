package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	awsConfig "github.com/Layr-Labs/evm-predicate-connector-go/internal/aws"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/clients/fuelClient"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/config"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/connector"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193/awsKmsProvider"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193/localProvider"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193/rpcProvider"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/logger"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	persistenceBadger "github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence/badger"
	persistenceMemory "github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence/memory"
	persistenceRedis "github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence/redis"
)

// app bundles everything a command needs
type app struct {
	cfg       *config.ConnectorConfig
	logger    *zap.Logger
	program   *predicate.Program
	store     persistence.IDerivationStore
	chain     *fuelClient.Client
	connector *connector.Connector
}

func parseConnectorConfig(c *cli.Context) *config.ConnectorConfig {
	return &config.ConnectorConfig{
		ChainID:           config.ChainId(c.Uint64("chain-id")),
		GraphQLURL:        c.String("graphql-url"),
		RequestsPerSecond: c.Float64("requests-per-second"),
		Program: config.ProgramConfig{
			BytecodePath: c.String("predicate-bin"),
			AbiPath:      c.String("predicate-abi"),
		},
		Persistence: config.PersistenceConfig{
			Type:          config.PersistenceType(c.String("persistence")),
			DataDir:       c.String("data-dir"),
			RedisAddress:  c.String("redis-address"),
			RedisPassword: c.String("redis-password"),
			RedisDB:       c.Int("redis-db"),
		},
		Signer: config.SignerConfig{
			Type:         config.SignerType(c.String("signer")),
			PrivateKey:   c.String("private-key"),
			RpcUrl:       c.String("evm-rpc-url"),
			PollInterval: c.Duration("poll-interval"),
			KMSKeyId:     c.String("kms-key-id"),
			AWSRegion:    c.String("aws-region"),
		},
		Debug:   c.Bool("verbose"),
		Verbose: c.Bool("verbose"),
	}
}

func newStore(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IDerivationStore, error) {
	switch cfg.Type {
	case config.PersistenceTypeBadger:
		return persistenceBadger.NewBadgerPersistence(cfg.DataDir, l)
	case config.PersistenceTypeRedis:
		return persistenceRedis.NewRedisPersistence(&persistenceRedis.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
	default:
		capacity := cfg.MemoryCapacity
		if capacity == 0 {
			capacity = persistenceMemory.DefaultCapacity
		}
		return persistenceMemory.NewMemoryPersistence(capacity)
	}
}

func loadProgram(cfg *config.ProgramConfig) (*predicate.Program, error) {
	if cfg.Embedded() {
		return predicate.LoadVerificationProgram()
	}
	return predicate.LoadProgramFromFiles(cfg.BytecodePath, cfg.AbiPath)
}

// openStore opens the configured store and makes sure it is usable
func openStore(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IDerivationStore, error) {
	store, err := newStore(cfg, l)
	if err != nil {
		return nil, err
	}
	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s store is not healthy: %w", cfg.Type, err)
	}
	return store, nil
}

func newProviderFactory(cfg *config.SignerConfig, l *zap.Logger) connector.ProviderFactory {
	return func(ctx context.Context) (eip1193.IProvider, error) {
		switch cfg.Type {
		case config.SignerTypeRPC:
			return rpcProvider.NewRpcProvider(ctx, cfg.RpcUrl, cfg.PollInterval, l)

		case config.SignerTypeKMS:
			awsCfg, err := awsConfig.LoadAWSConfig(ctx, cfg.AWSRegion)
			if err != nil {
				return nil, err
			}
			if arn, err := awsConfig.GetCallerIdentity(ctx, awsCfg); err != nil {
				l.Sugar().Warnw("Could not determine AWS caller identity", "error", err)
			} else {
				l.Sugar().Infow("Signing with AWS KMS", "keyId", cfg.KMSKeyId, "caller", arn)
			}
			return awsKmsProvider.NewAWSKMSProvider(awsCfg, cfg.KMSKeyId, "", l), nil

		case config.SignerTypeLocal:
			p := localProvider.NewLocalProvider("", l)
			if _, err := p.LoadPrivateKeyFromHex(cfg.PrivateKey); err != nil {
				return nil, err
			}
			return p, nil

		default:
			return nil, fmt.Errorf("no signer configured")
		}
	}
}

// newApp validates the configuration and wires the store, target chain client and
// connector. withSigner is false for commands that never contact the external wallet.
func newApp(c *cli.Context, withSigner bool) (*app, error) {
	cfg := parseConnectorConfig(c)
	if !withSigner {
		cfg.Signer = config.SignerConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	program, err := loadProgram(&cfg.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to load verification program: %w", err)
	}

	store, err := openStore(&cfg.Persistence, l)
	if err != nil {
		return nil, fmt.Errorf("failed to open derivation store: %w", err)
	}

	chain, err := fuelClient.NewClient(&fuelClient.ClientConfig{
		URL:               cfg.GraphQLURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}, l)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create target chain client: %w", err)
	}

	conn, err := connector.NewConnector(
		&connector.Config{Program: program, Store: store},
		newProviderFactory(&cfg.Signer, l),
		func(ctx context.Context) (fuelClient.ITargetChain, error) { return chain, nil },
		l,
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	l.Sugar().Debugw("Using chain",
		"name", cfg.ChainName,
		"chain_id", cfg.ChainID,
		"graphql", cfg.GraphQLURL,
		"embeddedProgram", cfg.Program.Embedded(),
	)
	return &app{cfg: cfg, logger: l, program: program, store: store, chain: chain, connector: conn}, nil
}

func (a *app) close() {
	if err := a.connector.Close(); err != nil {
		a.logger.Sugar().Warnw("Failed to close connector", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Sugar().Warnw("Failed to close derivation store", "error", err)
	}
	_ = a.logger.Sync()
}
