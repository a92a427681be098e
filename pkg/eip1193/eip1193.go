// Package eip1193 models the external chain wallet as an EIP-1193 provider:
// a JSON-RPC style request function plus account and connectivity notifications.
package eip1193

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Provider methods used by the connector
const (
	MethodAccounts           = "eth_accounts"
	MethodRequestAccounts    = "eth_requestAccounts"
	MethodChainId            = "eth_chainId"
	MethodPersonalSign       = "personal_sign"
	MethodRequestPermissions = "wallet_requestPermissions"
	MethodRevokePermissions  = "wallet_revokePermissions"
)

// Standard EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnected = 4901
	CodeInternalError     = -32603
	CodeInvalidParams     = -32602
	CodeMethodNotFound    = -32601
)

// ProviderError is an EIP-1193 error returned by a provider request
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// NotificationKind names a provider event
type NotificationKind string

const (
	NotificationAccountsChanged NotificationKind = "accountsChanged"
	NotificationConnect         NotificationKind = "connect"
	NotificationDisconnect      NotificationKind = "disconnect"
)

// Notification is an event emitted by a provider. Accounts is set for
// accountsChanged, ChainId for connect and Err for disconnect.
type Notification struct {
	Kind     NotificationKind
	Accounts []common.Address
	ChainId  string
	Err      *ProviderError
}

// Listener receives provider notifications. Listeners run synchronously on the
// emitting goroutine and must not block.
type Listener func(Notification)

// IProvider is an EIP-1193 provider
type IProvider interface {
	// Request performs method with positional params and returns the raw JSON result.
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)

	// On registers listener and returns a function removing exactly that registration.
	On(listener Listener) (unsubscribe func())
}

// Emitter is a listener registry providers embed to implement On
type Emitter struct {
	mu        sync.RWMutex
	nextId    uint64
	listeners map[uint64]Listener
}

// On registers listener. The returned function is idempotent.
func (e *Emitter) On(listener Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.listeners == nil {
		e.listeners = make(map[uint64]Listener)
	}
	id := e.nextId
	e.nextId++
	e.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// Emit delivers n to every registered listener in registration order
func (e *Emitter) Emit(n Notification) {
	e.mu.RLock()
	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, e.listeners[id])
	}
	e.mu.RUnlock()

	for _, l := range listeners {
		l(n)
	}
}

// ListenerCount returns the number of active registrations
func (e *Emitter) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

func decodeAccounts(raw json.RawMessage) ([]common.Address, error) {
	var hexAccounts []string
	if err := json.Unmarshal(raw, &hexAccounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	accounts := make([]common.Address, 0, len(hexAccounts))
	for _, a := range hexAccounts {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("provider returned invalid address %q", a)
		}
		accounts = append(accounts, common.HexToAddress(a))
	}
	return accounts, nil
}

// Accounts returns the authorized accounts; the first one is the wallet's selected account
func Accounts(ctx context.Context, p IProvider) ([]common.Address, error) {
	raw, err := p.Request(ctx, MethodAccounts)
	if err != nil {
		return nil, err
	}
	return decodeAccounts(raw)
}

// RequestAccounts asks the wallet to authorize accounts and returns them
func RequestAccounts(ctx context.Context, p IProvider) ([]common.Address, error) {
	raw, err := p.Request(ctx, MethodRequestAccounts)
	if err != nil {
		return nil, err
	}
	return decodeAccounts(raw)
}

func accountsPermission() map[string]interface{} {
	return map[string]interface{}{MethodAccounts: map[string]interface{}{}}
}

// RequestPermissions asks the user to grant eth_accounts. May block on user interaction.
func RequestPermissions(ctx context.Context, p IProvider) error {
	_, err := p.Request(ctx, MethodRequestPermissions, accountsPermission())
	return err
}

// RevokePermissions drops the eth_accounts grant
func RevokePermissions(ctx context.Context, p IProvider) error {
	_, err := p.Request(ctx, MethodRevokePermissions, accountsPermission())
	return err
}

// ChainId returns the external chain id as reported by the provider
func ChainId(ctx context.Context, p IProvider) (string, error) {
	raw, err := p.Request(ctx, MethodChainId)
	if err != nil {
		return "", err
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("failed to decode chain id: %w", err)
	}
	return id, nil
}

// PersonalSign asks account to sign message with personal_sign semantics and
// returns the 65 byte r || s || v signature.
func PersonalSign(ctx context.Context, p IProvider, message []byte, account common.Address) ([]byte, error) {
	raw, err := p.Request(ctx, MethodPersonalSign, hexutil.Encode(message), account.Hex())
	if err != nil {
		return nil, err
	}
	var sigHex string
	if err := json.Unmarshal(raw, &sigHex); err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return nil, fmt.Errorf("provider returned invalid signature %q: %w", sigHex, err)
	}
	return sig, nil
}
