package testutil

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/clients/fuelClient"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/merkle"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/predicate"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/signature"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/transaction"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// DefaultPredicateGas is the gas the devnet charges for running one predicate
const DefaultPredicateGas uint64 = 1_000

// Devnet is an in-memory UTXO ledger implementing fuelClient.ITargetChain.
// Submissions are validated the way the verification predicate would validate them:
// every predicate input must hash to its owner on this chain, and the witness named by
// its predicate data must be a compact signature over the transaction id by the
// signer patched into the bytecode.
type Devnet struct {
	chainId uint64
	program *predicate.Program
	logger  *zap.Logger

	mu           sync.Mutex
	coins        []transaction.Coin
	mints        uint64
	height       uint32
	submitted    []types.TxId
	estimations  int
	failEstimate error
	rejectReason string
}

var _ fuelClient.ITargetChain = (*Devnet)(nil)

// NewDevnet creates an empty ledger for chainId. program is used to read the signer
// out of predicate bytecode.
func NewDevnet(chainId uint64, program *predicate.Program, logger *zap.Logger) *Devnet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Devnet{
		chainId: chainId,
		program: program,
		logger:  logger,
	}
}

// URL implements ITargetChain.URL
func (d *Devnet) URL() string {
	return fmt.Sprintf("devnet://%d", d.chainId)
}

// GetChainId implements ITargetChain.GetChainId
func (d *Devnet) GetChainId(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.chainId, nil
}

// Fund mints a new coin of amount assetId to owner
func (d *Devnet) Fund(owner types.Address, amount uint64, assetId types.AssetId) transaction.Coin {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.mints++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], d.mints)

	coin := transaction.Coin{
		UtxoId:    transaction.UtxoId{TxId: types.TxId(merkle.Sha256([]byte("devnet-mint"), nonce[:]))},
		Owner:     owner,
		Amount:    amount,
		AssetId:   assetId,
		TxPointer: transaction.TxPointer{BlockHeight: d.height},
	}
	d.coins = append(d.coins, coin)

	d.logger.Sugar().Debugw("Devnet minted coin",
		"owner", owner.Hex(),
		"amount", amount,
		"assetId", assetId.Hex(),
	)
	return coin
}

// GetBalance implements ITargetChain.GetBalance
func (d *Devnet) GetBalance(ctx context.Context, owner types.Address, assetId types.AssetId) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var total uint64
	for _, c := range d.coins {
		if c.Owner == owner && c.AssetId == assetId {
			total += c.Amount
		}
	}
	return total, nil
}

// GetCoinsToSpend implements ITargetChain.GetCoinsToSpend. Coins are picked oldest first.
func (d *Devnet) GetCoinsToSpend(ctx context.Context, owner types.Address, quantities map[types.AssetId]uint64) ([]transaction.Coin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []transaction.Coin
	for assetId, want := range quantities {
		var have uint64
		for _, c := range d.coins {
			if have >= want {
				break
			}
			if c.Owner == owner && c.AssetId == assetId {
				out = append(out, c)
				have += c.Amount
			}
		}
		if have < want {
			return nil, fmt.Errorf("not enough coins of asset %s for %s: have %d, need %d",
				assetId.Hex(), owner.Hex(), have, want)
		}
	}
	return out, nil
}

// EstimateTxDependencies implements ITargetChain.EstimateTxDependencies. The devnet
// has no scripts, so the only dependencies are predicate gas and known inputs.
func (d *Devnet) EstimateTxDependencies(ctx context.Context, req *transaction.ScriptRequest) error {
	if err := d.EstimatePredicates(ctx, req); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, in := range req.Inputs {
		if _, ok := d.findCoin(in.UtxoId); !ok {
			return fmt.Errorf("input %s:%d does not exist", in.UtxoId.TxId.Hex(), in.UtxoId.OutputIndex)
		}
	}
	return d.checkBalanced(req)
}

// EstimatePredicates implements ITargetChain.EstimatePredicates
func (d *Devnet) EstimatePredicates(ctx context.Context, req *transaction.ScriptRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.estimations++
	if d.failEstimate != nil {
		return d.failEstimate
	}
	for i := range req.Inputs {
		in := &req.Inputs[i]
		if !in.IsPredicate() {
			continue
		}
		if err := d.checkPredicateOwner(in); err != nil {
			return err
		}
		in.PredicateGasUsed = DefaultPredicateGas
	}
	return nil
}

// Submit implements ITargetChain.Submit
func (d *Devnet) Submit(ctx context.Context, req *transaction.ScriptRequest) (types.TxId, error) {
	if err := ctx.Err(); err != nil {
		return types.TxId{}, err
	}

	// the node only ever sees the encoded form
	decoded, err := transaction.Decode(req.Encode())
	if err != nil {
		return types.TxId{}, reject("invalid transaction encoding: %v", err)
	}
	txId := decoded.ID(d.chainId)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rejectReason != "" {
		reason := d.rejectReason
		d.rejectReason = ""
		return types.TxId{}, &types.SubmissionRejectedError{Reason: reason}
	}

	seen := make(map[transaction.UtxoId]struct{}, len(decoded.Inputs))
	for i := range decoded.Inputs {
		in := &decoded.Inputs[i]
		if _, dup := seen[in.UtxoId]; dup {
			return types.TxId{}, reject("input %d spends %s twice", i, in.UtxoId.TxId.Hex())
		}
		seen[in.UtxoId] = struct{}{}

		coin, ok := d.findCoin(in.UtxoId)
		if !ok {
			return types.TxId{}, reject("input %d: coin %s:%d not found", i, in.UtxoId.TxId.Hex(), in.UtxoId.OutputIndex)
		}
		if coin.Owner != in.Owner || coin.Amount != in.Amount || coin.AssetId != in.AssetId || coin.TxPointer != in.TxPointer {
			return types.TxId{}, reject("input %d does not match coin %s", i, in.UtxoId.TxId.Hex())
		}
		if err := d.verifyPredicateInput(decoded, in, txId); err != nil {
			return types.TxId{}, reject("input %d: %v", i, err)
		}
	}
	if err := d.checkBalanced(decoded); err != nil {
		return types.TxId{}, reject("%v", err)
	}

	d.apply(decoded, txId)
	d.submitted = append(d.submitted, txId)

	d.logger.Sugar().Infow("Devnet accepted transaction",
		"txId", txId.Hex(),
		"inputs", len(decoded.Inputs),
		"outputs", len(decoded.Outputs),
		"height", d.height,
	)
	return txId, nil
}

func reject(format string, args ...interface{}) error {
	return &types.SubmissionRejectedError{Reason: fmt.Sprintf(format, args...)}
}

func (d *Devnet) checkPredicateOwner(in *transaction.InputCoin) error {
	root, err := predicate.PredicateRoot(in.Predicate, d.chainId)
	if err != nil {
		return err
	}
	if types.Address(root) != in.Owner {
		return fmt.Errorf("predicate root %s does not match owner %s", types.Address(root).Hex(), in.Owner.Hex())
	}
	return nil
}

// verifyPredicateInput runs the verification predicate's check for one input
func (d *Devnet) verifyPredicateInput(tx *transaction.ScriptRequest, in *transaction.InputCoin, txId types.TxId) error {
	if !in.IsPredicate() {
		return fmt.Errorf("only predicate-owned coins can be spent on the devnet")
	}
	if in.PredicateGasUsed == 0 {
		return fmt.Errorf("predicate gas was not estimated")
	}
	if err := d.checkPredicateOwner(in); err != nil {
		return err
	}

	signer, err := d.program.SignerFromBytecode(in.Predicate)
	if err != nil {
		return err
	}
	witnessIndex, err := predicate.DecodePredicateData(in.PredicateData)
	if err != nil {
		return err
	}
	if witnessIndex >= uint64(len(tx.Witnesses)) {
		return fmt.Errorf("witness index %d out of range (%d witnesses)", witnessIndex, len(tx.Witnesses))
	}
	compact, err := signature.CompactFromBytes(tx.Witnesses[witnessIndex])
	if err != nil {
		return err
	}
	return signature.VerifySigner(txId, compact, signer)
}

func (d *Devnet) checkBalanced(tx *transaction.ScriptRequest) error {
	available := make(map[types.AssetId]uint64)
	for _, in := range tx.Inputs {
		available[in.AssetId] += in.Amount
	}
	for assetId, spent := range tx.CoinQuantities() {
		if available[assetId] < spent {
			return fmt.Errorf("insufficient inputs for asset %s: have %d, outputs need %d",
				assetId.Hex(), available[assetId], spent)
		}
	}
	return nil
}

// apply spends the inputs and creates coin and change outputs. Leftovers with no
// change output are burned.
func (d *Devnet) apply(tx *transaction.ScriptRequest, txId types.TxId) {
	spent := make(map[transaction.UtxoId]struct{}, len(tx.Inputs))
	remaining := make(map[types.AssetId]uint64)
	for _, in := range tx.Inputs {
		spent[in.UtxoId] = struct{}{}
		remaining[in.AssetId] += in.Amount
	}

	kept := d.coins[:0]
	for _, c := range d.coins {
		if _, ok := spent[c.UtxoId]; !ok {
			kept = append(kept, c)
		}
	}
	d.coins = kept
	pointer := transaction.TxPointer{BlockHeight: d.height + 1, TxIndex: 0}

	for _, out := range tx.Outputs {
		if out.Type == transaction.OutputTypeCoin {
			remaining[out.AssetId] -= out.Amount
		}
	}
	for i, out := range tx.Outputs {
		amount := out.Amount
		switch out.Type {
		case transaction.OutputTypeCoin:
		case transaction.OutputTypeChange:
			amount = remaining[out.AssetId]
			remaining[out.AssetId] = 0
		default:
			continue
		}
		if amount == 0 {
			continue
		}
		d.coins = append(d.coins, transaction.Coin{
			UtxoId:    transaction.UtxoId{TxId: txId, OutputIndex: uint16(i)},
			Owner:     out.To,
			Amount:    amount,
			AssetId:   out.AssetId,
			TxPointer: pointer,
		})
	}
	d.height++
}

func (d *Devnet) findCoin(id transaction.UtxoId) (transaction.Coin, bool) {
	for _, c := range d.coins {
		if c.UtxoId == id {
			return c, true
		}
	}
	return transaction.Coin{}, false
}

// FailEstimation makes every following estimation return err until reset with nil
func (d *Devnet) FailEstimation(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failEstimate = err
}

// RejectNextSubmission makes the next Submit fail with reason
func (d *Devnet) RejectNextSubmission(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rejectReason = reason
}

// Submitted returns the ids of accepted transactions in order
func (d *Devnet) Submitted() []types.TxId {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.TxId(nil), d.submitted...)
}

// EstimationCount returns how many predicate estimations were requested
func (d *Devnet) EstimationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.estimations
}

// Coins returns the unspent coins owned by owner
func (d *Devnet) Coins(owner types.Address) []transaction.Coin {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []transaction.Coin
	for _, c := range d.coins {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	return out
}
