package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/config"
)

func main() {
	app := &cli.App{
		Name:  "predicate-connector",
		Usage: "Spend from Fuel predicate accounts with an EVM wallet",
		Description: `Every EVM account owns a predicate account on the target chain whose address is
derived from the verification predicate with the EVM address patched into it.

This tool can:
- Derive the predicate account of an EVM address
- List the predicate accounts of a wallet
- Query balances and transfer coins, signing with the EVM key`,
		Version: "0.0.0",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Usage:   fmt.Sprintf("Target chain ID: %s", config.GetSupportedChainIDsString()),
				Value:   uint64(config.ChainId_FuelTestnet),
				EnvVars: []string{config.EnvPredicateChainID},
			},
			&cli.StringFlag{
				Name:    "graphql-url",
				Usage:   "Target chain GraphQL endpoint of a devnet node (default " + config.DefaultGraphQLURL + ")",
				EnvVars: []string{config.EnvPredicateGraphQLURL},
			},
			&cli.Float64Flag{
				Name:    "requests-per-second",
				Usage:   "Rate limit for target chain requests, 0 disables limiting",
				Value:   10,
				EnvVars: []string{config.EnvPredicateRequestsPerSecond},
			},
			&cli.StringFlag{
				Name:    "predicate-bin",
				Usage:   "Compiled verification predicate, defaults to the embedded program",
				EnvVars: []string{config.EnvPredicateProgramBytecode},
			},
			&cli.StringFlag{
				Name:    "predicate-abi",
				Usage:   "JSON ABI of --predicate-bin",
				EnvVars: []string{config.EnvPredicateProgramABI},
			},
			&cli.StringFlag{
				Name:    "persistence",
				Usage:   "Derivation store: memory, badger or redis",
				Value:   string(config.PersistenceTypeMemory),
				EnvVars: []string{config.EnvPredicatePersistence},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Badger data directory",
				EnvVars: []string{config.EnvPredicateDataDir},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port)",
				EnvVars: []string{config.EnvPredicateRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvPredicateRedisPassword},
			},
			&cli.IntFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				EnvVars: []string{config.EnvPredicateRedisDB},
			},
			&cli.StringFlag{
				Name:    "signer",
				Usage:   "External account backend: local, rpc or kms",
				Value:   string(config.SignerTypeLocal),
				EnvVars: []string{config.EnvPredicateSigner},
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex secp256k1 private key for the local signer",
				EnvVars: []string{config.EnvPredicatePrivateKey},
			},
			&cli.StringFlag{
				Name:    "evm-rpc-url",
				Usage:   "EVM JSON-RPC endpoint for the rpc signer",
				EnvVars: []string{config.EnvPredicateEvmRPCURL},
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often the rpc signer polls eth_accounts",
				Value: 2 * time.Second,
			},
			&cli.StringFlag{
				Name:    "kms-key-id",
				Usage:   "AWS KMS key id or ARN for the kms signer",
				EnvVars: []string{config.EnvPredicateKMSKeyID},
			},
			&cli.StringFlag{
				Name:    "aws-region",
				Usage:   "AWS region override for the kms signer",
				EnvVars: []string{config.EnvPredicateAWSRegion},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Deadline for the whole command, including waiting for the signer",
				Value: 2 * time.Minute,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvPredicateVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "derive-address",
				Usage: "Print the predicate account of an EVM address",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "evm-address",
						Usage:    "EVM address whose predicate account to derive",
						Required: true,
					},
				},
				Action: deriveAddressCommand,
			},
			{
				Name:   "accounts",
				Usage:  "Connect the signer and list its predicate accounts",
				Action: accountsCommand,
			},
			{
				Name:  "balance",
				Usage: "Print the balance of a predicate account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "address",
						Usage: "Account (0x or fuel1 form), defaults to the signer's current account",
					},
					&cli.StringFlag{
						Name:  "asset-id",
						Usage: "Asset id, defaults to the base asset",
					},
				},
				Action: balanceCommand,
			},
			{
				Name:  "transfer",
				Usage: "Transfer coins from the signer's current predicate account",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Recipient (0x or fuel1 form)",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:     "amount",
						Usage:    "Amount to transfer",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "asset-id",
						Usage: "Asset id, defaults to the base asset",
					},
					&cli.Uint64Flag{
						Name:  "gas-price",
						Usage: "Gas price",
						Value: 1,
					},
					&cli.Uint64Flag{
						Name:  "gas-limit",
						Usage: "Script gas limit",
						Value: 1_000_000,
					},
					&cli.Uint64Flag{
						Name:  "fee-reserve",
						Usage: "Additional base asset to select for fees",
					},
				},
				Action: transferCommand,
			},
			{
				Name:  "cache",
				Usage: "Inspect or clear memoized derivations in the badger or redis store",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "List derivations of the selected chain, ~ marks another program build",
						Flags:  cacheFilterFlags(),
						Action: cacheListCommand,
					},
					{
						Name:   "purge",
						Usage:  "Delete derivations of the selected chain",
						Flags:  cacheFilterFlags(),
						Action: cachePurgeCommand,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func cacheFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "evm-address",
			Usage: "Only derivations of this EVM address",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Every chain and signer",
		},
	}
}
