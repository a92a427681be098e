package predicate

import (
	"fmt"
	"time"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/persistence"
	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Deriver derives predicate addresses for one program, memoizing results in an
// IDerivationStore keyed by (program digest, signer, chain id).
type Deriver struct {
	program *Program
	store   persistence.IDerivationStore
	logger  *zap.Logger
}

// NewDeriver creates a Deriver. A nil store disables memoization.
func NewDeriver(program *Program, store persistence.IDerivationStore, logger *zap.Logger) (*Deriver, error) {
	if program == nil {
		return nil, fmt.Errorf("%w: program is required", types.ErrInvalidParameter)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deriver{
		program: program,
		store:   store,
		logger:  logger,
	}, nil
}

// Program returns the program addresses are derived from
func (d *Deriver) Program() *Program {
	return d.program
}

func (d *Deriver) key(signer common.Address, chainId uint64) persistence.DerivationKey {
	return persistence.DerivationKey{
		ProgramDigest: d.program.Digest(),
		Signer:        signer,
		ChainId:       chainId,
	}
}

// Derive returns the predicate address for signer on chainId.
// Store failures are logged and fall through to recomputation.
func (d *Deriver) Derive(signer common.Address, chainId uint64) (types.Address, error) {
	key := d.key(signer, chainId)

	if d.store != nil {
		cached, err := d.store.LoadDerivedAccount(key)
		if err != nil {
			d.logger.Sugar().Warnw("Failed to load cached derivation", "key", key.String(), "error", err)
		} else if cached != nil {
			return cached.Address, nil
		}
	}

	address, err := DeriveAddress(d.program, signer, chainId)
	if err != nil {
		return types.Address{}, err
	}

	d.logger.Sugar().Debugw("Derived predicate address",
		"signer", signer.Hex(),
		"chainId", chainId,
		"address", address.Hex(),
	)

	if d.store != nil {
		err := d.store.SaveDerivedAccount(&persistence.DerivedAccount{
			Key:       key,
			Address:   address,
			DerivedAt: time.Now().Unix(),
		})
		if err != nil {
			d.logger.Sugar().Warnw("Failed to cache derivation", "key", key.String(), "error", err)
		}
	}
	return address, nil
}

// SpendingCondition builds the spending condition for signer on chainId. The
// address always comes from the root of the patched bytecode; a memoized entry
// that disagrees is logged and overwritten.
func (d *Deriver) SpendingCondition(signer common.Address, chainId uint64) (*SpendingCondition, error) {
	condition, err := NewSpendingCondition(d.program, signer, chainId)
	if err != nil {
		return nil, err
	}
	if d.store == nil {
		return condition, nil
	}

	key := d.key(signer, chainId)
	cached, err := d.store.LoadDerivedAccount(key)
	if err != nil {
		d.logger.Sugar().Warnw("Failed to load cached derivation", "key", key.String(), "error", err)
		return condition, nil
	}
	if cached != nil && cached.Address == condition.Address {
		return condition, nil
	}
	if cached != nil {
		d.logger.Sugar().Warnw("Cached derivation does not match predicate root, replacing it",
			"key", key.String(),
			"cached", cached.Address.Hex(),
			"address", condition.Address.Hex(),
		)
	}
	err = d.store.SaveDerivedAccount(&persistence.DerivedAccount{
		Key:       key,
		Address:   condition.Address,
		DerivedAt: time.Now().Unix(),
	})
	if err != nil {
		d.logger.Sugar().Warnw("Failed to cache derivation", "key", key.String(), "error", err)
	}
	return condition, nil
}
