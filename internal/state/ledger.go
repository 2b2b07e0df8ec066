package state

import (
	"context"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/types"
)

type storeLedger struct {
	ctx   context.Context
	store Store
}

// NewLedger exposes the estimator rows of a store as an estimator ledger bound to ctx.
func NewLedger(ctx context.Context, store Store) estimator.Ledger {
	return storeLedger{ctx: ctx, store: store}
}

func (l storeLedger) Load(pool types.Address) (types.EstimatorState, error) {
	return l.store.GetEstimators(l.ctx, pool)
}

func (l storeLedger) Save(pool types.Address, state types.EstimatorState) error {
	return l.store.SaveEstimators(l.ctx, pool, state)
}

// Compile-time checks
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
