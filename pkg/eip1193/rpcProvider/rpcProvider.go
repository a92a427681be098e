package rpcProvider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
)

const DefaultPollInterval = 2 * time.Second

// RpcProvider forwards EIP-1193 requests to a JSON-RPC endpoint (a node, a
// signer such as Clef, or a wallet bridge). JSON-RPC has no push channel for
// wallet events, so listeners are fed by polling eth_accounts.
type RpcProvider struct {
	eip1193.Emitter

	client       *rpc.Client
	logger       *zap.Logger
	pollInterval time.Duration

	mu        sync.Mutex
	polling   bool
	reachable bool
	accounts  []common.Address
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// NewRpcProvider dials url (http, ws or ipc)
func NewRpcProvider(ctx context.Context, url string, pollInterval time.Duration, logger *zap.Logger) (*RpcProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return NewRpcProviderFromClient(client, pollInterval, logger), nil
}

// NewRpcProviderFromClient wraps an existing client. The provider takes ownership
// and closes it on Close.
func NewRpcProviderFromClient(client *rpc.Client, pollInterval time.Duration, logger *zap.Logger) *RpcProvider {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &RpcProvider{
		client:       client,
		logger:       logger,
		pollInterval: pollInterval,
	}
}

var _ eip1193.IProvider = (*RpcProvider)(nil)

// Request implements eip1193.IProvider. JSON-RPC errors carrying a code are
// returned as *eip1193.ProviderError.
func (r *RpcProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	var result json.RawMessage
	if err := r.client.CallContext(ctx, &result, method, params...); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return nil, &eip1193.ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
		}
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	return result, nil
}

// On registers listener and starts the account poller on first use
func (r *RpcProvider) On(listener eip1193.Listener) func() {
	unsubscribe := r.Emitter.On(listener)
	r.startPolling()
	return unsubscribe
}

func (r *RpcProvider) startPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.polling || r.closed {
		return
	}
	r.polling = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.poll(ctx)
}

func (r *RpcProvider) poll(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.pollOnce(ctx)
	for {
		select {
		case <-ticker.C:
			r.pollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce compares the current account list with the last one seen and emits
// connect, disconnect and accountsChanged transitions.
func (r *RpcProvider) pollOnce(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, r.pollInterval)
	defer cancel()

	accounts, err := eip1193.Accounts(callCtx, r)
	if ctx.Err() != nil {
		return
	}

	r.mu.Lock()
	wasReachable := r.reachable
	previous := r.accounts
	if err != nil {
		r.reachable = false
	} else {
		r.reachable = true
		r.accounts = accounts
	}
	r.mu.Unlock()

	switch {
	case err != nil && wasReachable:
		r.logger.Sugar().Warnw("RPC provider unreachable", "error", err)
		r.Emit(eip1193.Notification{
			Kind: eip1193.NotificationDisconnect,
			Err:  &eip1193.ProviderError{Code: eip1193.CodeDisconnected, Message: err.Error()},
		})
	case err != nil:
		r.logger.Sugar().Debugw("RPC provider still unreachable", "error", err)
	case !wasReachable:
		r.Emit(eip1193.Notification{Kind: eip1193.NotificationConnect})
		if !equalAccounts(previous, accounts) {
			r.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: accounts})
		}
	case !equalAccounts(previous, accounts):
		r.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: accounts})
	}
}

func equalAccounts(a, b []common.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close stops polling and closes the RPC client. Idempotent.
func (r *RpcProvider) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.client.Close()
}
