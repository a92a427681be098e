// Package assembler turns a transaction skeleton spending from a derived predicate
// account into a signed, submitted transaction.
package assembler

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/clients/fuelClient"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/signature"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// SignerFunc asks the external account to personal_sign the raw transaction id and
// returns the 65 byte r || s || v signature. It may block on user interaction.
type SignerFunc func(ctx context.Context, txId types.TxId, account common.Address) ([]byte, error)

// Assembler drives the attach, estimate, sign, submit sequence against a target chain
type Assembler struct {
	chain  fuelClient.ITargetChain
	logger *zap.Logger
}

// NewAssembler creates an assembler submitting to chain
func NewAssembler(chain fuelClient.ITargetChain, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{chain: chain, logger: logger}
}

// AssembleAndSubmit completes skeleton so that every input owned by condition.Address
// is unlocked by the verification predicate, has the external signer sign the
// transaction id, and submits it.
//
// The work happens on a copy. skeleton is replaced with the submitted transaction
// only when the chain accepts it.
func (a *Assembler) AssembleAndSubmit(
	ctx context.Context,
	skeleton *transaction.ScriptRequest,
	condition *predicate.SpendingCondition,
	signer SignerFunc,
) (types.TxId, error) {
	if skeleton == nil || condition == nil || signer == nil {
		return types.TxId{}, fmt.Errorf("%w: skeleton, condition and signer are required", types.ErrInvalidParameter)
	}
	work := skeleton.Clone()

	witnessIndex := len(work.Witnesses)
	predicateData := condition.PredicateData(uint64(witnessIndex))

	if work.AttachPredicate(condition.Address, condition.Bytecode, predicateData) == 0 {
		return types.TxId{}, fmt.Errorf("%w: transaction has no inputs owned by %s",
			types.ErrInvalidAccount, condition.Address.Hex())
	}

	if err := a.chain.EstimateTxDependencies(ctx, work); err != nil {
		return types.TxId{}, fmt.Errorf("%w: %w", types.ErrDependencyEstimationFailed, err)
	}
	// estimation may have added inputs of ours
	work.AttachPredicate(condition.Address, condition.Bytecode, predicateData)

	txId := work.ID(condition.ChainId)
	a.logger.Sugar().Debugw("Requesting external signature",
		"txId", txId.Hex(),
		"signer", condition.Signer.Hex(),
		"witnessIndex", witnessIndex,
	)

	raw, err := signer(ctx, txId, condition.Signer)
	if err != nil {
		return types.TxId{}, fmt.Errorf("external signer failed: %w", err)
	}
	compact, err := signature.ToCompact(raw)
	if err != nil {
		return types.TxId{}, err
	}
	if err := signature.VerifySigner(txId, compact, condition.Signer); err != nil {
		return types.TxId{}, err
	}

	if idx := work.AddWitness(compact.Bytes()); idx != witnessIndex {
		return types.TxId{}, fmt.Errorf("witness landed at index %d, predicate expects %d", idx, witnessIndex)
	}

	if err := a.chain.EstimatePredicates(ctx, work); err != nil {
		return types.TxId{}, fmt.Errorf("%w: %w", types.ErrDependencyEstimationFailed, err)
	}

	submitted, err := a.chain.Submit(ctx, work)
	if err != nil {
		var rejected *types.SubmissionRejectedError
		if errors.As(err, &rejected) {
			return types.TxId{}, err
		}
		return types.TxId{}, &types.SubmissionRejectedError{Reason: err.Error(), Err: err}
	}
	if submitted != txId {
		a.logger.Sugar().Warnw("Chain returned a different transaction id",
			"computed", txId.Hex(),
			"returned", submitted.Hex(),
		)
	}

	*skeleton = *work
	a.logger.Sugar().Infow("Predicate transaction submitted",
		"txId", submitted.Hex(),
		"account", condition.Address.Hex(),
		"signer", condition.Signer.Hex(),
	)
	return submitted, nil
}
