package runner

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/interpolation"
	"github.com/elys-network/tfmm/internal/types"
)

// PoolRule returns the registration of a pool.
func (r *Runner) PoolRule(ctx context.Context, pool types.Address) (types.PoolRegistration, error) {
	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return types.PoolRegistration{}, mapNotFound(err, pool)
	}
	return reg, nil
}

// Weights returns the stored weight state: fixed weights, multipliers and freeze time.
func (r *Runner) Weights(ctx context.Context, pool types.Address) (types.WeightState, error) {
	ws, err := r.store.GetWeights(ctx, pool)
	if err != nil {
		return types.WeightState{}, mapNotFound(err, pool)
	}
	return ws, nil
}

// EffectiveWeights evaluates the interpolation of a pool at time t.
func (r *Runner) EffectiveWeights(ctx context.Context, pool types.Address, t int64) ([]sdkmath.LegacyDec, error) {
	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	ws, err := r.store.GetWeights(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	return interpolation.EffectiveWeights(ws, t, reg.AbsoluteGuardRail)
}

// Estimators returns the estimator state of a pool.
func (r *Runner) Estimators(ctx context.Context, pool types.Address) (types.EstimatorState, error) {
	est, err := r.store.GetEstimators(ctx, pool)
	if err != nil {
		return types.EstimatorState{}, mapNotFound(err, pool)
	}
	return est, nil
}

// Pools lists every registered pool.
func (r *Runner) Pools(ctx context.Context) ([]types.Address, error) {
	regs, err := r.store.ListRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Address, len(regs))
	for i, reg := range regs {
		out[i] = reg.Pool
	}
	return out, nil
}

// History returns the most recent update records of a pool, newest first.
func (r *Runner) History(ctx context.Context, pool types.Address, limit int) ([]types.UpdateRecord, error) {
	if _, err := r.store.GetRegistration(ctx, pool); err != nil {
		return nil, mapNotFound(err, pool)
	}
	return r.store.ListUpdates(ctx, pool, limit)
}
