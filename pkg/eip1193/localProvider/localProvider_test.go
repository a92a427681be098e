package localProvider

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/eip1193"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/signature"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

func newProvider(t *testing.T) *LocalProvider {
	t.Helper()
	return NewLocalProvider("0x1", zaptest.NewLogger(t))
}

func TestLocalProvider_PermissionLifecycle(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	addr, err := p.GenerateAccount()
	require.NoError(t, err)

	accounts, err := eip1193.Accounts(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	require.NoError(t, eip1193.RequestPermissions(ctx, p))
	accounts, err = eip1193.Accounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{addr}, accounts)

	require.NoError(t, eip1193.RevokePermissions(ctx, p))
	accounts, err = eip1193.Accounts(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	assert.Equal(t, 3, p.CallCount(eip1193.MethodAccounts))
	assert.Equal(t, 1, p.CallCount(eip1193.MethodRequestPermissions))
}

func TestLocalProvider_RejectedRequest(t *testing.T) {
	p := newProvider(t)
	_, err := p.GenerateAccount()
	require.NoError(t, err)
	p.SetRejectRequests(true)

	err = eip1193.RequestPermissions(context.Background(), p)
	var providerErr *eip1193.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, eip1193.CodeUserRejected, providerErr.Code)
}

func TestLocalProvider_Events(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	first, err := p.GenerateAccount()
	require.NoError(t, err)
	second, err := p.GenerateAccount()
	require.NoError(t, err)

	var got []eip1193.Notification
	unsubscribe := p.On(func(n eip1193.Notification) { got = append(got, n) })

	require.NoError(t, eip1193.RequestPermissions(ctx, p))
	require.NoError(t, p.SelectAccount(second))
	require.NoError(t, eip1193.RevokePermissions(ctx, p))

	require.Len(t, got, 5)
	assert.Equal(t, eip1193.NotificationConnect, got[0].Kind)
	assert.Equal(t, "0x1", got[0].ChainId)
	assert.Equal(t, eip1193.NotificationAccountsChanged, got[1].Kind)
	assert.Equal(t, []common.Address{first, second}, got[1].Accounts)
	assert.Equal(t, []common.Address{second, first}, got[2].Accounts)
	assert.Empty(t, got[3].Accounts)
	assert.Equal(t, eip1193.NotificationDisconnect, got[4].Kind)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, p.ListenerCount())

	require.NoError(t, eip1193.RequestPermissions(ctx, p))
	assert.Len(t, got, 5)
}

func TestLocalProvider_PersonalSign(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)
	addr, err := p.GenerateAccount()
	require.NoError(t, err)

	txId := types.TxId{0x01, 0x02, 0x03}

	// unauthorized
	_, err = eip1193.PersonalSign(ctx, p, txId[:], addr)
	var providerErr *eip1193.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, eip1193.CodeUnauthorized, providerErr.Code)

	require.NoError(t, eip1193.RequestPermissions(ctx, p))
	sig, err := eip1193.PersonalSign(ctx, p, txId[:], addr)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	compact, err := signature.ToCompact(sig)
	require.NoError(t, err)
	recovered, err := signature.RecoverSigner(txId, compact)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)

	// unknown account
	_, err = eip1193.PersonalSign(ctx, p, txId[:], common.HexToAddress("0x01"))
	assert.Error(t, err)
}

func TestLocalProvider_LoadPrivateKey(t *testing.T) {
	p := newProvider(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyId, err := p.LoadPrivateKey(key)
	require.NoError(t, err)
	assert.Contains(t, keyId, "local-key-")

	_, err = p.LoadPrivateKey(key)
	assert.Error(t, err)
	_, err = p.LoadPrivateKey(nil)
	assert.Error(t, err)

	addr, err := p.LoadPrivateKeyFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), addr)
	assert.Equal(t, 2, p.GetKeyCount())

	_, err = p.LoadPrivateKeyFromHex("zz")
	assert.Error(t, err)
}

func TestLocalProvider_UnsupportedMethod(t *testing.T) {
	p := newProvider(t)
	_, err := p.Request(context.Background(), "eth_sendTransaction")

	var providerErr *eip1193.ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.Equal(t, eip1193.CodeUnsupportedMethod, providerErr.Code)
}

func TestLocalProvider_ChainIdAndRequestAccounts(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider("", zaptest.NewLogger(t))
	addr, err := p.GenerateAccount()
	require.NoError(t, err)

	id, err := eip1193.ChainId(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "0x1", id)

	accounts, err := eip1193.RequestAccounts(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{addr}, accounts)
}
