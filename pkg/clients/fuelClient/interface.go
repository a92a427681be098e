package fuelClient

import (
	"context"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// ITargetChain is the subset of a target chain node the connector depends on.
// Implementations must be safe for concurrent use.
type ITargetChain interface {
	// URL identifies the node, e.g. its GraphQL endpoint.
	URL() string

	// GetChainId returns the chain id transaction ids and predicate roots are bound to.
	GetChainId(ctx context.Context) (uint64, error)

	// GetBalance returns the spendable amount of assetId owned by owner.
	GetBalance(ctx context.Context, owner types.Address, assetId types.AssetId) (uint64, error)

	// GetCoinsToSpend selects coins owned by owner covering each requested quantity.
	GetCoinsToSpend(ctx context.Context, owner types.Address, quantities map[types.AssetId]uint64) ([]transaction.Coin, error)

	// EstimateTxDependencies completes req in place with whatever the chain needs to
	// execute it (missing outputs, predicate gas).
	EstimateTxDependencies(ctx context.Context, req *transaction.ScriptRequest) error

	// EstimatePredicates sets PredicateGasUsed on every predicate input of req.
	EstimatePredicates(ctx context.Context, req *transaction.ScriptRequest) error

	// Submit sends the encoded transaction. A rejection by the chain is returned as
	// *types.SubmissionRejectedError.
	Submit(ctx context.Context, req *transaction.ScriptRequest) (types.TxId, error)
}

// Compile-time check to ensure Client implements ITargetChain
var _ ITargetChain = (*Client)(nil)
