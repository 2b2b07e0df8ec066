package runner

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/interpolation"
	"github.com/elys-network/tfmm/internal/rules"
	"github.com/elys-network/tfmm/internal/state"
	"github.com/elys-network/tfmm/internal/types"
)

// SetWeightsManually overwrites the weight state of a pool as of now. A zero
// lastInterpolationTimePossible asks for the computed freeze time; an explicit value may
// not be earlier than now nor later than the computed one.
func (r *Runner) SetWeightsManually(ctx context.Context, caller, pool types.Address, weights, multipliers []sdkmath.LegacyDec, lastInterpolationTimePossible int64) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	unlock := r.lockPool(pool)
	defer unlock()

	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return mapNotFound(err, pool)
	}
	now := r.clock()
	ws := types.WeightState{
		FixedWeights:   fixedpoint.Copy(weights),
		Multipliers:    fixedpoint.Copy(multipliers),
		LastUpdateTime: now,
	}
	if err := interpolation.ValidateState(ws, reg.NumAssets(), reg.AbsoluteGuardRail); err != nil {
		return err
	}

	limit := interpolation.LastInterpolationTimePossible(ws.FixedWeights, ws.Multipliers, now, reg.AbsoluteGuardRail)
	switch {
	case lastInterpolationTimePossible == 0:
		ws.LastInterpolationTimePossible = limit
	case lastInterpolationTimePossible < now || lastInterpolationTimePossible > limit:
		return fmt.Errorf("%w: last interpolation time %d outside [%d, %d]", ErrInvalidParameters, lastInterpolationTimePossible, now, limit)
	default:
		ws.LastInterpolationTimePossible = lastInterpolationTimePossible
	}

	if err := r.store.SaveWeights(ctx, pool, ws); err != nil {
		return mapNotFound(err, pool)
	}
	runnerLogger.Warn().
		Str("pool", pool.String()).
		Str("caller", caller.String()).
		Int64("last_interpolation_time_possible", ws.LastInterpolationTimePossible).
		Msg("Weights set manually")
	return nil
}

// SetIntermediateValuesManually replaces the estimator history of a pool. numAssets must
// match the registration.
func (r *Runner) SetIntermediateValuesManually(ctx context.Context, caller, pool types.Address, seed EstimatorSeed, numAssets int) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	unlock := r.lockPool(pool)
	defer unlock()

	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return mapNotFound(err, pool)
	}
	if numAssets != reg.NumAssets() {
		return fmt.Errorf("%w: %d assets given, pool has %d", estimator.ErrDimensionMismatch, numAssets, reg.NumAssets())
	}
	if len(seed.MovingAverages) == 0 {
		return fmt.Errorf("%w: moving averages are required", ErrInvalidParameters)
	}
	rule, err := rules.NewRule(reg.Rule)
	if err != nil {
		return err
	}
	est, err := seedEstimators(pool, rule, numAssets, seed)
	if err != nil {
		return err
	}

	staging := estimator.NewStaging(state.NewLedger(ctx, r.store))
	if err := staging.Save(pool, est); err != nil {
		return err
	}
	if err := staging.Flush(); err != nil {
		return mapNotFound(err, pool)
	}
	runnerLogger.Warn().Str("pool", pool.String()).Str("caller", caller.String()).Msg("Estimator state set manually")
	return nil
}

// InitialisePoolLastRunTime sets the last run time of a pool. Times in the future are
// rejected.
func (r *Runner) InitialisePoolLastRunTime(ctx context.Context, caller, pool types.Address, t int64) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	unlock := r.lockPool(pool)
	defer unlock()

	if now := r.clock(); t < 0 || t > now {
		return fmt.Errorf("%w: last run time %d outside [0, %d]", ErrInvalidParameters, t, now)
	}
	if err := r.store.SetLastRunTime(ctx, pool, t); err != nil {
		return mapNotFound(err, pool)
	}
	runnerLogger.Warn().Str("pool", pool.String()).Int64("last_run_time", t).Msg("Pool last run time initialised")
	return nil
}
