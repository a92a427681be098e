package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/config"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context, c.Duration("timeout"))
}

func parseAssetId(s string) (types.AssetId, error) {
	if s == "" {
		return types.BaseAssetId, nil
	}
	return types.HexToAssetId(s)
}

func deriveAddressCommand(c *cli.Context) error {
	signer, err := config.ParseSignerAddress(c.String("evm-address"))
	if err != nil {
		return err
	}

	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	deriver, err := predicate.NewDeriver(a.program, a.store, a.logger)
	if err != nil {
		return err
	}
	address, err := deriver.Derive(signer, uint64(a.cfg.ChainID))
	if err != nil {
		return fmt.Errorf("failed to derive address: %w", err)
	}

	fmt.Printf("EVM address:       %s\n", signer.Hex())
	fmt.Printf("Chain:             %s (%d)\n", a.cfg.ChainName, a.cfg.ChainID)
	fmt.Printf("Predicate account: %s\n", address.Hex())
	fmt.Printf("                   %s\n", address.Bech32())
	return nil
}

func accountsCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	a, err := newApp(c, true)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.connector.Connect(ctx); err != nil {
		return err
	}
	accounts, err := a.connector.Accounts(ctx)
	if err != nil {
		return err
	}

	for i, account := range accounts {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		fmt.Printf("%s %s  %s\n", marker, account.Hex(), account.Bech32())
	}
	return nil
}

func balanceCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	assetId, err := parseAssetId(c.String("asset-id"))
	if err != nil {
		return err
	}

	explicit := c.String("address")
	a, err := newApp(c, explicit == "")
	if err != nil {
		return err
	}
	defer a.close()

	var owner types.Address
	if explicit != "" {
		if owner, err = types.ParseAddress(explicit); err != nil {
			return err
		}
	} else {
		if _, err := a.connector.Connect(ctx); err != nil {
			return err
		}
		if owner, err = a.connector.CurrentAccount(ctx); err != nil {
			return err
		}
	}

	balance, err := a.chain.GetBalance(ctx, owner, assetId)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	fmt.Printf("%s: %d (asset %s)\n", owner.Bech32(), balance, assetId.Hex())
	return nil
}

func transferCommand(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	to, err := types.ParseAddress(c.String("to"))
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	assetId, err := parseAssetId(c.String("asset-id"))
	if err != nil {
		return err
	}
	amount := c.Uint64("amount")
	if amount == 0 {
		return fmt.Errorf("amount must be greater than zero")
	}

	a, err := newApp(c, true)
	if err != nil {
		return err
	}
	defer a.close()

	if _, err := a.connector.Connect(ctx); err != nil {
		return err
	}
	from, err := a.connector.CurrentAccount(ctx)
	if err != nil {
		return err
	}

	req := transaction.NewScriptRequest(c.Uint64("gas-price"), c.Uint64("gas-limit"))
	req.AddCoinOutput(to, amount, assetId)

	quantities := req.CoinQuantities()
	if reserve := c.Uint64("fee-reserve"); reserve > 0 {
		quantities[types.BaseAssetId] += reserve
	}
	coins, err := a.chain.GetCoinsToSpend(ctx, from, quantities)
	if err != nil {
		return fmt.Errorf("failed to select coins: %w", err)
	}
	req.AddResources(coins)

	a.logger.Sugar().Infow("Submitting transfer",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount,
		"assetId", assetId.Hex(),
		"inputs", len(req.Inputs),
	)
	txId, err := a.connector.SendTransaction(ctx, from, req)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}

	fmt.Printf("Transaction submitted: %s\n", txId.Hex())
	return nil
}

// derivationFilter selects memoized derivations. A nil Signer matches every signer.
type derivationFilter struct {
	All     bool
	ChainId uint64
	Signer  *common.Address
}

func (f derivationFilter) matches(account *persistence.DerivedAccount) bool {
	if f.All {
		return true
	}
	if account.Key.ChainId != f.ChainId {
		return false
	}
	return f.Signer == nil || account.Key.Signer == *f.Signer
}

func parseDerivationFilter(c *cli.Context, chainId config.ChainId) (derivationFilter, error) {
	filter := derivationFilter{All: c.Bool("all"), ChainId: uint64(chainId)}
	if s := c.String("evm-address"); s != "" {
		signer, err := config.ParseSignerAddress(s)
		if err != nil {
			return filter, err
		}
		filter.Signer = &signer
	}
	return filter, nil
}

// purgeDerivations deletes every entry matching filter and returns how many were removed
func purgeDerivations(store persistence.IDerivationStore, filter derivationFilter) (int, error) {
	accounts, err := store.ListDerivedAccounts()
	if err != nil {
		return 0, fmt.Errorf("failed to list derivations: %w", err)
	}
	removed := 0
	for _, account := range accounts {
		if !filter.matches(account) {
			continue
		}
		if err := store.DeleteDerivedAccount(account.Key); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", account.Key.String(), err)
		}
		removed++
	}
	return removed, nil
}

func cacheListCommand(c *cli.Context) error {
	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	filter, err := parseDerivationFilter(c, a.cfg.ChainID)
	if err != nil {
		return err
	}
	accounts, err := a.store.ListDerivedAccounts()
	if err != nil {
		return fmt.Errorf("failed to list derivations: %w", err)
	}

	digest := a.program.Digest()
	for _, account := range accounts {
		if !filter.matches(account) {
			continue
		}
		marker := " "
		if account.Key.ProgramDigest != digest {
			// derived from another program build
			marker = "~"
		}
		fmt.Printf("%s %s  chain %d  %s\n", marker, account.Key.Signer.Hex(), account.Key.ChainId, account.Address.Hex())
	}
	return nil
}

func cachePurgeCommand(c *cli.Context) error {
	a, err := newApp(c, false)
	if err != nil {
		return err
	}
	defer a.close()

	filter, err := parseDerivationFilter(c, a.cfg.ChainID)
	if err != nil {
		return err
	}
	removed, err := purgeDerivations(a.store, filter)
	if err != nil {
		return err
	}
	a.logger.Sugar().Infow("Purged derivations", "removed", removed, "all", filter.All, "chainId", filter.ChainId)
	fmt.Printf("Removed %d derivation(s)\n", removed)
	return nil
}
