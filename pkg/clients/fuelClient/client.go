package fuelClient

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

const (
	DefaultTimeout               = 30 * time.Second
	DefaultMaxEstimationAttempts = 10

	// failedTransferToAddressSignal is the revert value a script emits when a
	// transfer has no variable output to land in
	failedTransferToAddressSignal = "0xffffffffffff0001"

	requestIdHeader = "X-Request-Id"
)

// ClientConfig configures the GraphQL client
type ClientConfig struct {
	// URL is the node's GraphQL endpoint, e.g. http://127.0.0.1:4000/v1/graphql
	URL string

	// RequestsPerSecond limits outgoing requests; zero disables limiting
	RequestsPerSecond float64

	// Burst is the limiter bucket size, defaults to 1
	Burst int

	// Timeout applies to each HTTP request
	Timeout time.Duration

	// MaxEstimationAttempts bounds the dry-run loop in EstimateTxDependencies
	MaxEstimationAttempts int
}

// Client talks to a target chain node over GraphQL. Chain, balance and coin
// queries work against any node; estimation and submission send transactions in
// the transaction package's encoding and need a node that accepts it.
type Client struct {
	url         string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	logger      *zap.Logger
}

// GraphQLError carries the error messages returned by the node
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// NewClient creates a GraphQL client for the node at cfg.URL
func NewClient(cfg *ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	maxAttempts := cfg.MaxEstimationAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxEstimationAttempts
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		url:         cfg.URL,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     limiter,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// SetHttpClient replaces the underlying HTTP client
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) URL() string {
	return c.url
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// do executes one GraphQL operation and decodes its data into out
func (c *Client) do(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(&graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestId := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestIdHeader, requestId)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var gqlResp graphQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(gqlResp.Errors) > 0 {
		gqlErr := &GraphQLError{}
		for _, e := range gqlResp.Errors {
			gqlErr.Messages = append(gqlErr.Messages, e.Message)
		}
		c.logger.Sugar().Debugw("GraphQL request returned errors", "requestId", requestId, "errors", gqlErr.Messages)
		return gqlErr
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// u64 accepts the node's U64 scalar, which is serialized as a decimal string
type u64 uint64

func (v *u64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid U64 %s: %w", string(data), err)
	}
	*v = u64(n)
	return nil
}

func (c *Client) GetChainId(ctx context.Context) (uint64, error) {
	var out struct {
		Chain struct {
			ConsensusParameters struct {
				ChainId u64 `json:"chainId"`
			} `json:"consensusParameters"`
		} `json:"chain"`
	}
	if err := c.do(ctx, queryChainId, nil, &out); err != nil {
		return 0, fmt.Errorf("failed to get chain id: %w", err)
	}
	return uint64(out.Chain.ConsensusParameters.ChainId), nil
}

func (c *Client) GetBalance(ctx context.Context, owner types.Address, assetId types.AssetId) (uint64, error) {
	var out struct {
		Balance struct {
			Amount u64 `json:"amount"`
		} `json:"balance"`
	}
	vars := map[string]interface{}{
		"owner":   owner.Hex(),
		"assetId": assetId.Hex(),
	}
	if err := c.do(ctx, queryBalance, vars, &out); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return uint64(out.Balance.Amount), nil
}

type coinResponse struct {
	UtxoId       string `json:"utxoId"`
	Owner        string `json:"owner"`
	Amount       u64    `json:"amount"`
	AssetId      string `json:"assetId"`
	BlockCreated u64    `json:"blockCreated"`
	TxCreatedIdx u64    `json:"txCreatedIdx"`
}

// parseUtxoId decodes the 34 byte tx id || output index form
func parseUtxoId(s string) (transaction.UtxoId, error) {
	var id transaction.UtxoId
	b, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("invalid utxo id %q: %w", s, err)
	}
	if len(b) != 34 {
		return id, fmt.Errorf("invalid utxo id length %d", len(b))
	}
	copy(id.TxId[:], b[:32])
	id.OutputIndex = binary.BigEndian.Uint16(b[32:])
	return id, nil
}

func (c *Client) GetCoinsToSpend(ctx context.Context, owner types.Address, quantities map[types.AssetId]uint64) ([]transaction.Coin, error) {
	queryPerAsset := make([]map[string]string, 0, len(quantities))
	for assetId, amount := range quantities {
		queryPerAsset = append(queryPerAsset, map[string]string{
			"assetId": assetId.Hex(),
			"amount":  strconv.FormatUint(amount, 10),
		})
	}

	var out struct {
		CoinsToSpend [][]coinResponse `json:"coinsToSpend"`
	}
	vars := map[string]interface{}{
		"owner":         owner.Hex(),
		"queryPerAsset": queryPerAsset,
	}
	if err := c.do(ctx, queryCoinsToSpend, vars, &out); err != nil {
		return nil, fmt.Errorf("failed to get coins to spend: %w", err)
	}

	var coins []transaction.Coin
	for _, perAsset := range out.CoinsToSpend {
		for _, raw := range perAsset {
			// message resources come back as empty objects
			if raw.UtxoId == "" {
				continue
			}
			utxoId, err := parseUtxoId(raw.UtxoId)
			if err != nil {
				return nil, err
			}
			coinOwner, err := types.HexToAddress(raw.Owner)
			if err != nil {
				return nil, err
			}
			assetId, err := types.HexToAssetId(raw.AssetId)
			if err != nil {
				return nil, err
			}
			coins = append(coins, transaction.Coin{
				UtxoId:  utxoId,
				Owner:   coinOwner,
				Amount:  uint64(raw.Amount),
				AssetId: assetId,
				TxPointer: transaction.TxPointer{
					BlockHeight: uint32(raw.BlockCreated),
					TxIndex:     uint16(raw.TxCreatedIdx),
				},
			})
		}
	}
	return coins, nil
}

// EstimatePredicates has the node run every predicate and copies the gas used
// back into req.
func (c *Client) EstimatePredicates(ctx context.Context, req *transaction.ScriptRequest) error {
	var out struct {
		EstimatePredicates struct {
			RawPayload string `json:"rawPayload"`
		} `json:"estimatePredicates"`
	}
	vars := map[string]interface{}{
		"encodedTransaction": hexutil.Encode(req.Encode()),
	}
	if err := c.do(ctx, mutationEstimatePredicates, vars, &out); err != nil {
		return fmt.Errorf("failed to estimate predicates: %w", err)
	}

	raw, err := hexutil.Decode(out.EstimatePredicates.RawPayload)
	if err != nil {
		return fmt.Errorf("invalid estimated payload: %w", err)
	}
	estimated, err := transaction.Decode(raw)
	if err != nil {
		return fmt.Errorf("invalid estimated payload: %w", err)
	}
	if len(estimated.Inputs) != len(req.Inputs) {
		return fmt.Errorf("estimated payload has %d inputs, expected %d", len(estimated.Inputs), len(req.Inputs))
	}
	for i := range req.Inputs {
		req.Inputs[i].PredicateGasUsed = estimated.Inputs[i].PredicateGasUsed
	}
	return nil
}

type dryRunReceipt struct {
	ReceiptType string `json:"receiptType"`
	Ra          string `json:"ra"`
}

// EstimateTxDependencies dry-runs req, adding a variable output for every
// transfer that failed for lack of one, until the run is clean or the attempt
// budget is spent.
func (c *Client) EstimateTxDependencies(ctx context.Context, req *transaction.ScriptRequest) error {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if hasPredicateInput(req) {
			if err := c.EstimatePredicates(ctx, req); err != nil {
				return err
			}
		}

		var out struct {
			DryRun []struct {
				Id     string `json:"id"`
				Status struct {
					Typename string `json:"__typename"`
					Reason   string `json:"reason"`
				} `json:"status"`
				Receipts []dryRunReceipt `json:"receipts"`
			} `json:"dryRun"`
		}
		vars := map[string]interface{}{
			"encodedTransactions": []string{hexutil.Encode(req.Encode())},
			"utxoValidation":      false,
		}
		if err := c.do(ctx, mutationDryRun, vars, &out); err != nil {
			return fmt.Errorf("dry run failed: %w", err)
		}
		if len(out.DryRun) != 1 {
			return fmt.Errorf("dry run returned %d results, expected 1", len(out.DryRun))
		}

		missing := 0
		for _, r := range out.DryRun[0].Receipts {
			if r.ReceiptType == "REVERT" && strings.EqualFold(r.Ra, failedTransferToAddressSignal) {
				missing++
			}
		}
		if missing == 0 {
			c.logger.Sugar().Debugw("Transaction dependencies estimated",
				"attempts", attempt,
				"status", out.DryRun[0].Status.Typename,
			)
			return nil
		}
		for i := 0; i < missing; i++ {
			req.AddVariableOutput()
		}
	}
	return fmt.Errorf("transaction dependencies not resolved after %d attempts", c.maxAttempts)
}

func hasPredicateInput(req *transaction.ScriptRequest) bool {
	for i := range req.Inputs {
		if req.Inputs[i].IsPredicate() {
			return true
		}
	}
	return false
}

// Submit sends req to the node. Errors reported by the node are returned as
// *types.SubmissionRejectedError with the node's message as the reason.
func (c *Client) Submit(ctx context.Context, req *transaction.ScriptRequest) (types.TxId, error) {
	var out struct {
		Submit struct {
			Id string `json:"id"`
		} `json:"submit"`
	}
	vars := map[string]interface{}{
		"encodedTransaction": hexutil.Encode(req.Encode()),
	}
	if err := c.do(ctx, mutationSubmit, vars, &out); err != nil {
		var gqlErr *GraphQLError
		if errors.As(err, &gqlErr) {
			return types.TxId{}, &types.SubmissionRejectedError{Reason: gqlErr.Error(), Err: gqlErr}
		}
		return types.TxId{}, fmt.Errorf("failed to submit transaction: %w", err)
	}

	id, err := types.HexToTxId(out.Submit.Id)
	if err != nil {
		return types.TxId{}, fmt.Errorf("node returned invalid transaction id: %w", err)
	}
	c.logger.Sugar().Infow("Transaction submitted", "txId", id.Hex())
	return id, nil
}
