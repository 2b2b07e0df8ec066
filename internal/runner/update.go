package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/interpolation"
	"github.com/elys-network/tfmm/internal/metrics"
	"github.com/elys-network/tfmm/internal/rules"
	"github.com/elys-network/tfmm/internal/state"
	"github.com/elys-network/tfmm/internal/types"
	"github.com/elys-network/tfmm/internal/utils"
)

// UpdateResult describes one committed update.
type UpdateResult struct {
	RunID         uuid.UUID           `json:"run_id"`
	Pool          types.Address       `json:"pool"`
	RunTime       int64               `json:"run_time"`
	Prices        []sdkmath.LegacyDec `json:"prices"`
	OracleIndexes []int               `json:"oracle_indexes"`
	RawWeights    []sdkmath.LegacyDec `json:"raw_weights"`
	TargetWeights []sdkmath.LegacyDec `json:"target_weights"`
	State         types.WeightState   `json:"state"`
}

// PerformUpdate runs one weight update of a pool. It is permissionless and gated only by
// the pool's update interval. Either every write is committed or none is.
func (r *Runner) PerformUpdate(ctx context.Context, pool types.Address) (*UpdateResult, error) {
	start := time.Now()
	result, err := r.performUpdate(ctx, pool)

	outcome := metrics.ResultSuccess
	switch {
	case err == nil:
	case errors.Is(err, types.ErrTiming), errors.Is(err, ErrPoolNotRegistered):
		outcome = metrics.ResultRejected
	default:
		outcome = metrics.ResultFailed
	}
	r.metrics.ObserveUpdate(pool.String(), outcome, time.Since(start))
	return result, err
}

func (r *Runner) performUpdate(ctx context.Context, pool types.Address) (*UpdateResult, error) {
	unlock := r.lockPool(pool)
	defer unlock()

	runID := uuid.New()
	log := runnerLogger.With().Str("run_id", runID.String()).Str("pool", pool.String()).Logger()

	// --- 1. Interval gate ---
	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	now := r.clock()
	if elapsed := now - reg.LastRunTime; elapsed < reg.UpdateInterval {
		return nil, fmt.Errorf("%w: %d of %d seconds elapsed", ErrUpdateNotAllowed, elapsed, reg.UpdateInterval)
	}

	// --- 2. Oracle data ---
	data, err := r.fetch(ctx, reg, now)
	if err != nil {
		log.Warn().Err(err).Msg("Oracle fetch failed, update aborted")
		return nil, err
	}

	// --- 3. Previous weights as the pool sees them now ---
	current, err := r.store.GetWeights(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	prev, err := interpolation.EffectiveWeights(current, now, reg.AbsoluteGuardRail)
	if err != nil {
		return nil, err
	}
	if len(prev) != reg.NumAssets() {
		return nil, fmt.Errorf("%w: %d weights for %d assets", ErrInvalidWeightState, len(prev), reg.NumAssets())
	}
	if sum := fixedpoint.Sum(prev); !sum.Equal(fixedpoint.One()) {
		return nil, fmt.Errorf("%w: effective weights sum to %s", ErrInvalidWeightState, sum)
	}

	// --- 4. Rule pipeline on staged estimator state ---
	rule, err := rules.NewRule(reg.Rule)
	if err != nil {
		return nil, err
	}
	staging := estimator.NewStaging(state.NewLedger(ctx, r.store))
	pipeline := rules.Pipeline{Ledger: staging, Mode: r.mode}
	res, err := pipeline.CalculateNewWeights(ctx, rule, reg, prev, data.Prices)
	if err != nil {
		log.Error().Err(err).Str("rule", reg.Rule).Msg("Rule pipeline failed")
		return nil, err
	}

	// --- 5. Multipliers ---
	next, err := interpolation.Derive(prev, res.Guarded, reg.UpdateInterval, now, reg.AbsoluteGuardRail)
	if err != nil {
		return nil, err
	}

	// --- 6. Atomic commit ---
	estimators, ok := staging.Pending(pool)
	if !ok {
		if estimators, err = r.store.GetEstimators(ctx, pool); err != nil {
			return nil, mapNotFound(err, pool)
		}
	}
	record := types.UpdateRecord{
		RunID:                         runID,
		Pool:                          pool,
		RunTime:                       now,
		Prices:                        fixedpoint.Copy(data.Prices),
		OracleIndexes:                 append([]int(nil), data.OracleIndexes...),
		TargetWeights:                 fixedpoint.Copy(res.Guarded),
		FixedWeights:                  fixedpoint.Copy(next.FixedWeights),
		Multipliers:                   fixedpoint.Copy(next.Multipliers),
		LastInterpolationTimePossible: next.LastInterpolationTimePossible,
		CreatedAt:                     time.Unix(now, 0).UTC(),
	}
	err = r.store.CommitUpdate(ctx, state.UpdateCommit{
		Pool:            pool,
		Weights:         next,
		Estimators:      estimators,
		PrevLastRunTime: reg.LastRunTime,
		LastRunTime:     now,
		Record:          record,
	})
	if errors.Is(err, state.ErrConflict) {
		log.Info().Msg("Pool was updated by another runner, commit dropped")
		return nil, fmt.Errorf("%w: pool updated concurrently", ErrUpdateNotAllowed)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to commit update")
		return nil, fmt.Errorf("committing update: %w", err)
	}

	r.publish(pool, data, next)
	log.Info().
		Str("rule", reg.Rule).
		Strs("prices", utils.DecStrings(data.Prices)).
		Strs("target_weights", utils.DecStrings(res.Guarded)).
		Int64("last_interpolation_time_possible", next.LastInterpolationTimePossible).
		Bool("used_fallback", record.UsedFallback()).
		Msg("Pool weights updated")

	return &UpdateResult{
		RunID:         runID,
		Pool:          pool,
		RunTime:       now,
		Prices:        record.Prices,
		OracleIndexes: record.OracleIndexes,
		RawWeights:    fixedpoint.Copy(res.Raw),
		TargetWeights: record.TargetWeights,
		State:         next,
	}, nil
}

func (r *Runner) publish(pool types.Address, data *PoolData, ws types.WeightState) {
	if r.metrics == nil {
		return
	}
	n := len(ws.FixedWeights)
	assets := make([]string, n)
	weights := make([]float64, n)
	multipliers := make([]float64, n)
	for i := 0; i < n; i++ {
		assets[i] = strconv.Itoa(i)
		weights[i], _ = utils.DecToFloat64(ws.FixedWeights[i])
		multipliers[i], _ = utils.DecToFloat64(ws.Multipliers[i])
		if data.OracleIndexes[i] > 0 {
			r.metrics.ObserveFallback(pool.String(), assets[i])
		}
	}
	r.metrics.SetPoolState(pool.String(), assets, weights, multipliers, ws.LastUpdateTime)
}
