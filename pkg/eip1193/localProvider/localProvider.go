package localProvider

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
)

// keyEntry stores a private key and the address it controls
type keyEntry struct {
	keyId      string
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// LocalProvider is an in-memory EIP-1193 wallet holding raw secp256k1 keys.
// It tracks the eth_accounts permission like a browser wallet does and signs
// personal_sign requests without user interaction. Intended for development and tests.
type LocalProvider struct {
	eip1193.Emitter

	logger  *zap.Logger
	chainId string

	mu         sync.RWMutex
	keys       []*keyEntry // ordered; index 0 is the selected account
	authorized bool
	reject     bool
	calls      map[string]int
}

// NewLocalProvider creates an empty wallet reporting chainId (e.g. "0x1") for eth_chainId
func NewLocalProvider(chainId string, logger *zap.Logger) *LocalProvider {
	if chainId == "" {
		chainId = "0x1"
	}
	return &LocalProvider{
		logger:  logger,
		chainId: chainId,
		calls:   make(map[string]int),
	}
}

var _ eip1193.IProvider = (*LocalProvider)(nil)

// Request implements eip1193.IProvider
func (l *LocalProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.calls[method]++
	l.mu.Unlock()

	l.logger.Debug("Local provider request", zap.String("method", method), zap.Int("params", len(params)))

	switch method {
	case eip1193.MethodAccounts:
		return json.Marshal(l.authorizedAccounts())

	case eip1193.MethodRequestAccounts:
		if err := l.grant(); err != nil {
			return nil, err
		}
		return json.Marshal(l.authorizedAccounts())

	case eip1193.MethodRequestPermissions:
		if err := l.grant(); err != nil {
			return nil, err
		}
		return json.Marshal([]map[string]string{{"parentCapability": eip1193.MethodAccounts}})

	case eip1193.MethodRevokePermissions:
		l.revoke()
		return json.RawMessage("null"), nil

	case eip1193.MethodChainId:
		return json.Marshal(l.chainId)

	case eip1193.MethodPersonalSign:
		return l.personalSign(params)

	default:
		return nil, &eip1193.ProviderError{
			Code:    eip1193.CodeUnsupportedMethod,
			Message: fmt.Sprintf("the method %s is not implemented by the local provider", method),
		}
	}
}

func (l *LocalProvider) authorizedAccounts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []string{}
	if !l.authorized {
		return out
	}
	for _, k := range l.keys {
		out = append(out, k.address.Hex())
	}
	return out
}

func (l *LocalProvider) addresses() []common.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]common.Address, 0, len(l.keys))
	for _, k := range l.keys {
		out = append(out, k.address)
	}
	return out
}

func (l *LocalProvider) grant() error {
	l.mu.Lock()
	if l.reject {
		l.mu.Unlock()
		return &eip1193.ProviderError{Code: eip1193.CodeUserRejected, Message: "user rejected the request"}
	}
	changed := !l.authorized
	l.authorized = true
	l.mu.Unlock()

	if changed {
		l.Emit(eip1193.Notification{Kind: eip1193.NotificationConnect, ChainId: l.chainId})
		l.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: l.addresses()})
	}
	return nil
}

func (l *LocalProvider) revoke() {
	l.mu.Lock()
	changed := l.authorized
	l.authorized = false
	l.mu.Unlock()

	if changed {
		l.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: []common.Address{}})
		l.Emit(eip1193.Notification{
			Kind: eip1193.NotificationDisconnect,
			Err:  &eip1193.ProviderError{Code: eip1193.CodeDisconnected, Message: "permissions revoked"},
		})
	}
}

func (l *LocalProvider) personalSign(params []interface{}) (json.RawMessage, error) {
	if len(params) != 2 {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: "personal_sign expects [message, address]"}
	}
	messageHex, ok := params[0].(string)
	if !ok {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: "message must be a hex string"}
	}
	addressHex, ok := params[1].(string)
	if !ok || !common.IsHexAddress(addressHex) {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: "address must be a hex address"}
	}
	message, err := hexutil.Decode(messageHex)
	if err != nil {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeInvalidParams, Message: err.Error()}
	}

	entry, err := l.authorizedKey(common.HexToAddress(addressHex))
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(accounts.TextHash(message), entry.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message with key %s: %w", entry.keyId, err)
	}
	// wallets return v in {27, 28}
	sig[crypto.RecoveryIDOffset] += 27

	l.logger.Debug("Signed personal message",
		zap.String("keyId", entry.keyId),
		zap.String("address", entry.address.Hex()),
		zap.Int("messageLen", len(message)),
	)
	return json.Marshal(hexutil.Encode(sig))
}

func (l *LocalProvider) authorizedKey(address common.Address) (*keyEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.authorized {
		return nil, &eip1193.ProviderError{Code: eip1193.CodeUnauthorized, Message: "eth_accounts permission not granted"}
	}
	for _, k := range l.keys {
		if k.address == address {
			return k, nil
		}
	}
	return nil, &eip1193.ProviderError{Code: eip1193.CodeUnauthorized, Message: fmt.Sprintf("account %s not found", address.Hex())}
}

// Helper functions for tests and development

// LoadPrivateKey adds privateKey as the last account and returns its key id
func (l *LocalProvider) LoadPrivateKey(privateKey *ecdsa.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("private key cannot be nil")
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	l.mu.Lock()
	for _, k := range l.keys {
		if k.address == address {
			l.mu.Unlock()
			return "", fmt.Errorf("account %s already loaded", address.Hex())
		}
	}
	keyId := fmt.Sprintf("local-key-%s", uuid.New().String())
	l.keys = append(l.keys, &keyEntry{keyId: keyId, privateKey: privateKey, address: address})
	authorized := l.authorized
	l.mu.Unlock()

	l.logger.Info("Loaded private key into local provider",
		zap.String("keyId", keyId),
		zap.String("address", address.Hex()),
	)

	if authorized {
		l.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: l.addresses()})
	}
	return keyId, nil
}

// LoadPrivateKeyFromHex loads a hex private key, with or without 0x prefix
func (l *LocalProvider) LoadPrivateKeyFromHex(privateKeyHex string) (common.Address, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to parse private key from hex: %w", err)
	}
	if _, err := l.LoadPrivateKey(privateKey); err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// GenerateAccount creates a fresh key and returns its address
func (l *LocalProvider) GenerateAccount() (common.Address, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	if _, err := l.LoadPrivateKey(privateKey); err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(privateKey.PublicKey), nil
}

// SelectAccount moves address to the front of the account list, as a wallet
// does when the user switches accounts.
func (l *LocalProvider) SelectAccount(address common.Address) error {
	l.mu.Lock()
	idx := -1
	for i, k := range l.keys {
		if k.address == address {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return fmt.Errorf("account %s not found", address.Hex())
	}
	selected := l.keys[idx]
	copy(l.keys[1:idx+1], l.keys[:idx])
	l.keys[0] = selected
	authorized := l.authorized
	l.mu.Unlock()

	if authorized {
		l.Emit(eip1193.Notification{Kind: eip1193.NotificationAccountsChanged, Accounts: l.addresses()})
	}
	return nil
}

// SetRejectRequests makes subsequent permission requests fail with code 4001
func (l *LocalProvider) SetRejectRequests(reject bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reject = reject
}

// CallCount returns how many times method was requested
func (l *LocalProvider) CallCount(method string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.calls[method]
}

// GetKeyCount returns the number of loaded keys
func (l *LocalProvider) GetKeyCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}
