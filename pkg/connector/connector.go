// Package connector exposes derived predicate accounts of an EVM wallet as accounts
// of the target chain.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/assembler"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/clients/fuelClient"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

const (
	AppVersion     = "0.0.0"
	NetworkVersion = "0.0.0"
)

// ProviderFactory creates the external wallet provider on first use
type ProviderFactory func(ctx context.Context) (eip1193.IProvider, error)

// TargetChainFactory creates the target chain client on first use
type TargetChainFactory func(ctx context.Context) (fuelClient.ITargetChain, error)

// Config configures a Connector
type Config struct {
	// Program is the verification program; the embedded one is used when nil
	Program *predicate.Program

	// Store memoizes derivations across connector instances; optional
	Store persistence.IDerivationStore
}

// Connector is a wallet connector whose accounts are verification predicates
// unlocked by signatures of an external EVM account.
type Connector struct {
	logger          *zap.Logger
	deriver         *predicate.Deriver
	providerFactory ProviderFactory
	chainFactory    TargetChainFactory
	events          *eventBus

	// background context for relaying provider notifications, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	initMu    sync.Mutex
	provider  eip1193.IProvider
	chain     fuelClient.ITargetChain
	chainId   uint64
	assembler *assembler.Assembler

	mu                  sync.Mutex
	state               State
	bridge              bridgeState
	unsubscribeProvider func()
	pairings            map[common.Address]types.Address
	currentExternal     *common.Address
}

// NewConnector creates a disconnected connector. Neither factory is called until an
// operation needs it.
func NewConnector(cfg *Config, providerFactory ProviderFactory, chainFactory TargetChainFactory, logger *zap.Logger) (*Connector, error) {
	if providerFactory == nil || chainFactory == nil {
		return nil, fmt.Errorf("provider and target chain factories are required")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	program := cfg.Program
	if program == nil {
		var err error
		program, err = predicate.LoadVerificationProgram()
		if err != nil {
			return nil, fmt.Errorf("failed to load verification program: %w", err)
		}
	}

	deriver, err := predicate.NewDeriver(program, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		logger:          logger,
		deriver:         deriver,
		providerFactory: providerFactory,
		chainFactory:    chainFactory,
		events:          newEventBus(),
		ctx:             ctx,
		cancel:          cancel,
		pairings:        make(map[common.Address]types.Address),
	}, nil
}

// getProviders returns the cached provider and target chain, creating them on first use
func (c *Connector) getProviders(ctx context.Context) (eip1193.IProvider, fuelClient.ITargetChain, error) {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.provider == nil {
		provider, err := c.providerFactory(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create external provider: %w", err)
		}
		if provider == nil {
			return nil, nil, fmt.Errorf("external provider not found")
		}
		c.provider = provider
	}
	if c.chain == nil {
		chain, err := c.chainFactory(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create target chain client: %w", err)
		}
		if chain == nil {
			return nil, nil, fmt.Errorf("target chain client not found")
		}
		chainId, err := chain.GetChainId(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get target chain id: %w", err)
		}
		c.chain = chain
		c.chainId = chainId
		c.assembler = assembler.NewAssembler(chain, c.logger)
		c.logger.Sugar().Infow("Connected to target chain", "url", chain.URL(), "chainId", chainId)
	}
	return c.provider, c.chain, nil
}

// setup relays provider notifications and publishes the initial current account.
// It subscribes at most once per bridge lifetime.
func (c *Connector) setup(ctx context.Context) error {
	c.mu.Lock()
	if c.bridge != bridgeUnset {
		c.mu.Unlock()
		return nil
	}
	c.bridge = bridgeSettingUp
	c.mu.Unlock()

	provider, _, err := c.getProviders(ctx)
	if err == nil {
		err = c.setupCurrentAccount(ctx)
	}
	if err != nil {
		c.mu.Lock()
		c.bridge = bridgeUnset
		c.mu.Unlock()
		return err
	}

	unsubscribe := provider.On(c.onProviderNotification)

	c.mu.Lock()
	c.unsubscribeProvider = unsubscribe
	c.bridge = bridgeReady
	c.mu.Unlock()

	c.logger.Sugar().Debugw("Event bridge ready")
	return nil
}

func (c *Connector) setupCurrentAccount(ctx context.Context) error {
	pairs, err := c.getPairings(ctx)
	if err != nil {
		return err
	}

	var current *types.Address
	c.mu.Lock()
	if len(pairs) > 0 {
		external := pairs[0].External
		derived := pairs[0].Derived
		c.currentExternal = &external
		current = &derived
	} else {
		c.currentExternal = nil
	}
	c.mu.Unlock()

	c.events.publish(CurrentAccountChanged{Account: current})
	return nil
}

func (c *Connector) onProviderNotification(n eip1193.Notification) {
	ctx := c.ctx
	if ctx.Err() != nil {
		return
	}

	switch n.Kind {
	case eip1193.NotificationAccountsChanged:
		accounts, err := c.Accounts(ctx)
		if err != nil {
			c.logger.Sugar().Warnw("Failed to refresh accounts after provider notification", "error", err)
			return
		}
		c.events.publish(AccountsChanged{Accounts: accounts})

		c.mu.Lock()
		changed := false
		switch {
		case len(n.Accounts) == 0:
			changed = c.currentExternal != nil
		case c.currentExternal == nil:
			changed = true
		default:
			changed = *c.currentExternal != n.Accounts[0]
		}
		c.mu.Unlock()

		if changed {
			if err := c.setupCurrentAccount(ctx); err != nil {
				c.logger.Sugar().Warnw("Failed to refresh current account", "error", err)
			}
		}

	case eip1193.NotificationConnect, eip1193.NotificationDisconnect:
		connected, err := c.IsConnected(ctx)
		if err != nil {
			c.logger.Sugar().Warnw("Failed to refresh connection state", "error", err)
			return
		}
		c.mu.Lock()
		if connected {
			c.state = StateConnected
		} else if c.state == StateConnected {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.events.publish(ConnectionChanged{Connected: connected})
	}
}

// getPairings queries the external provider and derives, or reuses, the predicate
// account of every authorized account in provider order.
func (c *Connector) getPairings(ctx context.Context) ([]pairing, error) {
	provider, _, err := c.getProviders(ctx)
	if err != nil {
		return nil, err
	}
	externals, err := eip1193.Accounts(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to list external accounts: %w", err)
	}

	pairs := make([]pairing, 0, len(externals))
	for _, external := range externals {
		c.mu.Lock()
		derived, ok := c.pairings[external]
		c.mu.Unlock()

		if !ok {
			derived, err = c.deriver.Derive(external, c.chainId)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.pairings[external] = derived
			c.mu.Unlock()
		}
		pairs = append(pairs, pairing{External: external, Derived: derived})
	}
	return pairs, nil
}

func (c *Connector) pairingFor(ctx context.Context, address types.Address) (pairing, error) {
	pairs, err := c.getPairings(ctx)
	if err != nil {
		return pairing{}, err
	}
	if len(pairs) == 0 {
		return pairing{}, types.ErrNotConnected
	}
	for _, p := range pairs {
		if p.Derived == address {
			return p, nil
		}
	}
	return pairing{}, fmt.Errorf("%w: no account found for %s", types.ErrInvalidAccount, address.Hex())
}

// Subscribe registers h for connector events and returns a function that cancels the
// subscription.
func (c *Connector) Subscribe(h Handler) func() {
	return c.events.subscribe(h)
}

// State returns the current connection state
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ping initializes the providers and the event bridge
func (c *Connector) Ping(ctx context.Context) (bool, error) {
	if err := c.setup(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Version returns the connector version
func (c *Connector) Version() Version {
	return Version{App: AppVersion, Network: NetworkVersion}
}

// IsConnected reports whether the external provider has authorized at least one account
func (c *Connector) IsConnected(ctx context.Context) (bool, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return false, err
	}
	return len(accounts) > 0, nil
}

// Accounts returns the derived accounts of every authorized external account. Index 0
// is the external wallet's current account.
func (c *Connector) Accounts(ctx context.Context) ([]types.Address, error) {
	pairs, err := c.getPairings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Address, len(pairs))
	for i, p := range pairs {
		out[i] = p.Derived
	}
	return out, nil
}

// CurrentAccount returns the derived account of the external wallet's current account
func (c *Connector) CurrentAccount(ctx context.Context) (types.Address, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return types.Address{}, err
	}
	if len(accounts) == 0 {
		return types.Address{}, types.ErrNotConnected
	}
	return accounts[0], nil
}

// Connect asks the external wallet to authorize its accounts unless it already has.
// The request may block on the user.
func (c *Connector) Connect(ctx context.Context) (bool, error) {
	if err := c.setup(ctx); err != nil {
		return false, err
	}

	connected, err := c.IsConnected(ctx)
	if err != nil {
		return false, err
	}
	if connected {
		c.setState(StateConnected)
		return true, nil
	}

	c.setState(StateConnecting)
	provider, _, err := c.getProviders(ctx)
	if err == nil {
		err = eip1193.RequestPermissions(ctx, provider)
	}
	if err != nil {
		c.setState(StateDisconnected)
		return false, fmt.Errorf("failed to request account permissions: %w", err)
	}

	c.setState(StateConnected)
	c.logger.Sugar().Infow("Connector connected")
	return true, nil
}

// Disconnect revokes the external wallet's authorization and forgets every pairing
func (c *Connector) Disconnect(ctx context.Context) (bool, error) {
	connected, err := c.IsConnected(ctx)
	if err != nil {
		return false, err
	}
	if connected {
		provider, _, err := c.getProviders(ctx)
		if err == nil {
			err = eip1193.RevokePermissions(ctx, provider)
		}
		if err != nil {
			return false, fmt.Errorf("failed to revoke account permissions: %w", err)
		}
	}

	c.mu.Lock()
	c.pairings = make(map[common.Address]types.Address)
	c.currentExternal = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	c.logger.Sugar().Infow("Connector disconnected")
	return true, nil
}

func (c *Connector) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// SendTransaction spends from the derived account address with the given skeleton. The
// external wallet is asked to personal_sign the transaction id.
func (c *Connector) SendTransaction(ctx context.Context, address types.Address, skeleton *transaction.ScriptRequest) (types.TxId, error) {
	p, err := c.pairingFor(ctx, address)
	if err != nil {
		return types.TxId{}, err
	}
	provider, _, err := c.getProviders(ctx)
	if err != nil {
		return types.TxId{}, err
	}

	condition, err := c.deriver.SpendingCondition(p.External, c.chainId)
	if err != nil {
		return types.TxId{}, err
	}
	if condition.Address != p.Derived {
		c.logger.Sugar().Errorw("Paired address does not match predicate root",
			"account", address.Hex(),
			"predicateRoot", condition.Address.Hex(),
			"external", p.External.Hex(),
		)
		return types.TxId{}, fmt.Errorf("%w: %s is not the predicate root %s", types.ErrInvalidAccount, address.Hex(), condition.Address.Hex())
	}

	signer := func(ctx context.Context, txId types.TxId, account common.Address) ([]byte, error) {
		return eip1193.PersonalSign(ctx, provider, txId[:], account)
	}
	return c.assembler.AssembleAndSubmit(ctx, skeleton, condition, signer)
}

// SignMessage always fails: a predicate account has no key to sign arbitrary messages
func (c *Connector) SignMessage(ctx context.Context, address types.Address, message string) (string, error) {
	return "", fmt.Errorf("%w: a predicate account cannot sign messages", types.ErrUnsupportedOperation)
}

// CurrentNetwork returns the target chain the connector submits to
func (c *Connector) CurrentNetwork(ctx context.Context) (Network, error) {
	_, chain, err := c.getProviders(ctx)
	if err != nil {
		return Network{}, err
	}
	return Network{URL: chain.URL(), ChainId: c.chainId}, nil
}

// Networks returns the only network the connector supports
func (c *Connector) Networks(ctx context.Context) ([]Network, error) {
	n, err := c.CurrentNetwork(ctx)
	if err != nil {
		return nil, err
	}
	return []Network{n}, nil
}

// Assets always returns an empty list
func (c *Connector) Assets(ctx context.Context) ([]types.AssetId, error) {
	return []types.AssetId{}, nil
}

func (c *Connector) AddAsset(ctx context.Context, asset types.AssetId) bool {
	c.logger.Sugar().Warnw("A predicate account cannot add an asset", "assetId", asset.Hex())
	return false
}

func (c *Connector) AddAssets(ctx context.Context, assets []types.AssetId) bool {
	c.logger.Sugar().Warnw("A predicate account cannot add assets", "count", len(assets))
	return false
}

func (c *Connector) AddNetwork(ctx context.Context, networkUrl string) bool {
	c.logger.Sugar().Warnw("Cannot add a network", "url", networkUrl)
	return false
}

func (c *Connector) SelectNetwork(ctx context.Context, network Network) bool {
	c.logger.Sugar().Warnw("Cannot select a network", "url", network.URL, "chainId", network.ChainId)
	return false
}

func (c *Connector) AddAbi(ctx context.Context, abis map[string]json.RawMessage) bool {
	c.logger.Sugar().Warnw("Cannot add an ABI to a predicate account", "count", len(abis))
	return false
}

func (c *Connector) HasAbi(ctx context.Context, contractId string) bool {
	c.logger.Sugar().Warnw("A predicate account cannot have an ABI", "contractId", contractId)
	return false
}

func (c *Connector) GetAbi(ctx context.Context, contractId string) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: cannot get the ABI of %s for a predicate", types.ErrUnsupportedOperation, contractId)
}

// Close removes the provider subscription made by the event bridge and closes the
// provider when it holds resources. The derivation store belongs to the caller.
func (c *Connector) Close() error {
	c.cancel()

	c.mu.Lock()
	unsubscribe := c.unsubscribeProvider
	c.unsubscribeProvider = nil
	c.bridge = bridgeUnset
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	c.initMu.Lock()
	provider := c.provider
	c.initMu.Unlock()

	switch p := provider.(type) {
	case io.Closer:
		return p.Close()
	case interface{ Close() }:
		p.Close()
	}
	return nil
}
