package fuelClient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

type recordedRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// newTestServer answers each request with handler(query, variables)
func newTestServer(t *testing.T, handler func(req recordedRequest) string) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get(requestIdHeader))

		var req recordedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(handler(req)))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(&ClientConfig{URL: server.URL, RequestsPerSecond: 100, Burst: 10}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = NewClient(&ClientConfig{}, zaptest.NewLogger(t))
	assert.Error(t, err)
	_, err = NewClient(&ClientConfig{URL: "http://localhost"}, nil)
	assert.Error(t, err)

	c, err := NewClient(&ClientConfig{URL: "http://localhost:4000/v1/graphql"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4000/v1/graphql", c.URL())
}

func TestClient_GetChainId(t *testing.T) {
	c := newTestServer(t, func(req recordedRequest) string {
		assert.Contains(t, req.Query, "consensusParameters")
		return `{"data":{"chain":{"consensusParameters":{"chainId":"9889"}}}}`
	})

	id, err := c.GetChainId(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(9889), id)
}

func TestClient_GetBalance(t *testing.T) {
	owner := types.Address{0xaa}
	c := newTestServer(t, func(req recordedRequest) string {
		assert.Equal(t, owner.Hex(), req.Variables["owner"])
		assert.Equal(t, types.BaseAssetId.Hex(), req.Variables["assetId"])
		return `{"data":{"balance":{"amount":"1000000"}}}`
	})

	balance, err := c.GetBalance(context.Background(), owner, types.BaseAssetId)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000000), balance)
}

func TestClient_GetCoinsToSpend(t *testing.T) {
	owner := types.Address{0xaa}
	utxo := "0x" + strings.Repeat("11", 32) + "0003"
	c := newTestServer(t, func(req recordedRequest) string {
		perAsset, ok := req.Variables["queryPerAsset"].([]interface{})
		require.True(t, ok)
		require.Len(t, perAsset, 1)
		assert.Equal(t, "10", perAsset[0].(map[string]interface{})["amount"])
		return `{"data":{"coinsToSpend":[[{"utxoId":"` + utxo + `","owner":"` + owner.Hex() + `","amount":"500","assetId":"` + types.BaseAssetId.Hex() + `","blockCreated":"1207","txCreatedIdx":"4"},{}]]}}`
	})

	coins, err := c.GetCoinsToSpend(context.Background(), owner, map[types.AssetId]uint64{types.BaseAssetId: 10})
	require.NoError(t, err)
	require.Len(t, coins, 1)
	assert.Equal(t, uint16(3), coins[0].UtxoId.OutputIndex)
	assert.Equal(t, byte(0x11), coins[0].UtxoId.TxId[0])
	assert.Equal(t, uint64(500), coins[0].Amount)
	assert.Equal(t, owner, coins[0].Owner)
	assert.Equal(t, transaction.TxPointer{BlockHeight: 1207, TxIndex: 4}, coins[0].TxPointer)
}

func predicateRequest() *transaction.ScriptRequest {
	r := transaction.NewScriptRequest(1, 10000)
	r.AddResource(transaction.Coin{UtxoId: transaction.UtxoId{TxId: types.TxId{1}}, Owner: types.Address{0xaa}, Amount: 100})
	r.AttachPredicate(types.Address{0xaa}, []byte{1, 2, 3, 4}, make([]byte, 8))
	return r
}

func TestClient_EstimatePredicates(t *testing.T) {
	req := predicateRequest()
	c := newTestServer(t, func(rec recordedRequest) string {
		raw, err := hexutil.Decode(rec.Variables["encodedTransaction"].(string))
		require.NoError(t, err)
		tx, err := transaction.Decode(raw)
		require.NoError(t, err)
		tx.Inputs[0].PredicateGasUsed = 4242
		return `{"data":{"estimatePredicates":{"rawPayload":"` + hexutil.Encode(tx.Encode()) + `"}}}`
	})

	require.NoError(t, c.EstimatePredicates(context.Background(), req))
	assert.Equal(t, uint64(4242), req.Inputs[0].PredicateGasUsed)
}

func TestClient_EstimateTxDependencies_AddsVariableOutputs(t *testing.T) {
	req := predicateRequest()
	var dryRuns int32
	c := newTestServer(t, func(rec recordedRequest) string {
		if strings.Contains(rec.Query, "estimatePredicates(") {
			return `{"data":{"estimatePredicates":{"rawPayload":"` + rec.Variables["encodedTransaction"].(string) + `"}}}`
		}
		require.Contains(t, rec.Query, "dryRun(")
		if atomic.AddInt32(&dryRuns, 1) == 1 {
			return `{"data":{"dryRun":[{"id":"0x00","status":{"__typename":"DryRunFailureStatus","reason":"Revert"},"receipts":[{"receiptType":"REVERT","ra":"0xffffffffffff0001"}]}]}}`
		}
		return `{"data":{"dryRun":[{"id":"0x00","status":{"__typename":"DryRunSuccessStatus"},"receipts":[{"receiptType":"RETURN","ra":"0x0"}]}]}}`
	})

	require.NoError(t, c.EstimateTxDependencies(context.Background(), req))
	assert.Equal(t, int32(2), atomic.LoadInt32(&dryRuns))
	last := req.Outputs[len(req.Outputs)-1]
	assert.Equal(t, transaction.OutputTypeVariable, last.Type)
}

func TestClient_EstimateTxDependencies_GivesUp(t *testing.T) {
	c := newTestServer(t, func(rec recordedRequest) string {
		return `{"data":{"dryRun":[{"id":"0x00","status":{"__typename":"DryRunFailureStatus"},"receipts":[{"receiptType":"REVERT","ra":"0xffffffffffff0001"}]}]}}`
	})
	c.maxAttempts = 3

	req := transaction.NewScriptRequest(1, 10000)
	err := c.EstimateTxDependencies(context.Background(), req)
	require.Error(t, err)
	assert.Len(t, req.Outputs, 3)
}

func TestClient_Submit(t *testing.T) {
	id := "0x" + strings.Repeat("ab", 32)
	c := newTestServer(t, func(rec recordedRequest) string {
		assert.Contains(t, rec.Query, "submit(")
		return `{"data":{"submit":{"id":"` + id + `"}}}`
	})

	txId, err := c.Submit(context.Background(), predicateRequest())
	require.NoError(t, err)
	assert.Equal(t, id, txId.Hex())
}

func TestClient_SubmitRejected(t *testing.T) {
	c := newTestServer(t, func(rec recordedRequest) string {
		return `{"data":null,"errors":[{"message":"InsufficientFeeAmount { expected: 3, provided: 0 }"}]}`
	})

	_, err := c.Submit(context.Background(), predicateRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrSubmissionRejected))

	var rejected *types.SubmissionRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "InsufficientFeeAmount { expected: 3, provided: 0 }", rejected.Reason)
}

func TestClient_HttpError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := NewClient(&ClientConfig{URL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.GetChainId(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestServer(t, func(rec recordedRequest) string {
		return `{"data":{"chain":{"consensusParameters":{"chainId":"0"}}}}`
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetChainId(ctx)
	assert.Error(t, err)
}
