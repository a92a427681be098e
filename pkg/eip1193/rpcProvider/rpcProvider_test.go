package rpcProvider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/signature"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// wallet backs the eth_, personal_ and wallet_ namespaces of the test server
type wallet struct {
	mu       sync.Mutex
	accounts []string
	key      []byte
}

type ethService struct{ w *wallet }

func (s *ethService) Accounts() []string {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	return append([]string{}, s.w.accounts...)
}

type personalService struct{ w *wallet }

func (s *personalService) Sign(data hexutil.Bytes, addr common.Address) (hexutil.Bytes, error) {
	key, err := crypto.ToECDSA(s.w.key)
	if err != nil {
		return nil, err
	}
	if crypto.PubkeyToAddress(key.PublicKey) != addr {
		return nil, errors.New("unknown account")
	}
	sig, err := crypto.Sign(accounts.TextHash(data), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

type walletService struct{ w *wallet }

func (s *walletService) RequestPermissions(_ map[string]interface{}) ([]map[string]string, error) {
	return []map[string]string{{"parentCapability": "eth_accounts"}}, nil
}

func newTestProvider(t *testing.T, w *wallet) *RpcProvider {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", &ethService{w: w}))
	require.NoError(t, server.RegisterName("personal", &personalService{w: w}))
	require.NoError(t, server.RegisterName("wallet", &walletService{w: w}))
	t.Cleanup(server.Stop)

	p := NewRpcProviderFromClient(rpc.DialInProc(server), 10*time.Millisecond, zaptest.NewLogger(t))
	t.Cleanup(p.Close)
	return p
}

func TestRpcProvider_Requests(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	p := newTestProvider(t, &wallet{accounts: []string{addr.Hex()}, key: crypto.FromECDSA(key)})
	ctx := context.Background()

	got, err := eip1193.Accounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{addr}, got)

	require.NoError(t, eip1193.RequestPermissions(ctx, p))

	txId := types.TxId{0xab}
	sig, err := eip1193.PersonalSign(ctx, p, txId[:], addr)
	require.NoError(t, err)
	compact, err := signature.ToCompact(sig)
	require.NoError(t, err)
	recovered, err := signature.RecoverSigner(txId, compact)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestRpcProvider_ErrorCodes(t *testing.T) {
	p := newTestProvider(t, &wallet{})

	_, err := p.Request(context.Background(), "eth_sendTransaction")
	var providerErr *eip1193.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, eip1193.CodeMethodNotFound, providerErr.Code)
}

func TestRpcProvider_PollsAccountChanges(t *testing.T) {
	w := &wallet{}
	p := newTestProvider(t, w)

	var mu sync.Mutex
	var got []eip1193.Notification
	unsubscribe := p.On(func(n eip1193.Notification) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, n)
	})
	defer unsubscribe()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0].Kind == eip1193.NotificationConnect
	}, 2*time.Second, 5*time.Millisecond)

	account := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	w.mu.Lock()
	w.accounts = []string{account.Hex()}
	w.mu.Unlock()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2 && got[1].Kind == eip1193.NotificationAccountsChanged
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []common.Address{account}, got[1].Accounts)
	mu.Unlock()
}

func TestRpcProvider_CloseIsIdempotent(t *testing.T) {
	p := newTestProvider(t, &wallet{})
	p.On(func(eip1193.Notification) {})
	p.Close()
	p.Close()
}
