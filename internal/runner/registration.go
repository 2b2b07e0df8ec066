package runner

import (
	"context"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/guardrail"
	"github.com/elys-network/tfmm/internal/interpolation"
	"github.com/elys-network/tfmm/internal/rules"
	"github.com/elys-network/tfmm/internal/state"
	"github.com/elys-network/tfmm/internal/types"
)

// EstimatorSeed is the estimator history a pool starts from. Empty fields start without
// history.
type EstimatorSeed struct {
	MovingAverages      []sdkmath.LegacyDec `json:"moving_averages"`
	ShortMovingAverages []sdkmath.LegacyDec `json:"short_moving_averages,omitempty"`
	// Intermediates seeds the gradient or variance accumulator, whichever the rule uses.
	Intermediates []sdkmath.LegacyDec   `json:"intermediates,omitempty"`
	Covariance    [][]sdkmath.LegacyDec `json:"covariance,omitempty"`
}

// RuleSettings is everything a pool supplies when registering its rule.
type RuleSettings struct {
	Rule              string
	Oracles           [][]string
	Lambdas           []sdkmath.LegacyDec
	EpsilonMax        sdkmath.LegacyDec
	AbsoluteGuardRail sdkmath.LegacyDec
	UpdateInterval    int64
	Parameters        types.RuleParameters
	PoolManager       types.Address
	// InitialWeights defaults to equal weights.
	InitialWeights []sdkmath.LegacyDec
	Seed           EstimatorSeed
}

// SetRuleForPool registers the rule of the calling pool. Nothing is written unless every
// check passes.
func (r *Runner) SetRuleForPool(ctx context.Context, pool types.Address, settings RuleSettings) error {
	if pool.IsEmpty() {
		return fmt.Errorf("%w: empty pool address", ErrInvalidParameters)
	}
	unlock := r.lockPool(pool)
	defer unlock()

	// registry changes wait until the registration is stored
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, err := r.store.GetRegistration(ctx, pool); err == nil {
		return fmt.Errorf("%w: %s", ErrRuleAlreadySet, pool)
	} else if !errors.Is(err, state.ErrNotFound) {
		return err
	}

	reg, rule, err := r.buildRegistration(pool, settings)
	if err != nil {
		return err
	}
	n := reg.NumAssets()

	weights := settings.InitialWeights
	if weights == nil {
		weights = equalWeights(n)
	}
	ws := types.WeightState{
		FixedWeights:                  fixedpoint.Copy(weights),
		Multipliers:                   fixedpoint.Filled(n, fixedpoint.Zero()),
		LastUpdateTime:                r.clock(),
		LastInterpolationTimePossible: types.NoFreeze,
	}
	if err := interpolation.ValidateState(ws, n, reg.AbsoluteGuardRail); err != nil {
		return fmt.Errorf("initial weights: %w", err)
	}

	est, err := seedEstimators(pool, rule, n, settings.Seed)
	if err != nil {
		return err
	}

	if err := r.store.CreatePool(ctx, reg, ws, est); err != nil {
		if errors.Is(err, state.ErrDuplicateKey) {
			return fmt.Errorf("%w: %s", ErrRuleAlreadySet, pool)
		}
		return fmt.Errorf("storing registration: %w", err)
	}

	runnerLogger.Info().
		Str("pool", pool.String()).
		Str("rule", reg.Rule).
		Int("assets", n).
		Int64("update_interval", reg.UpdateInterval).
		Msg("Rule registered for pool")
	return nil
}

// buildRegistration validates the settings against the oracle registry and the rule.
// The caller holds the registry read lock.
func (r *Runner) buildRegistration(pool types.Address, s RuleSettings) (types.PoolRegistration, rules.Rule, error) {
	n := len(s.Oracles)
	if n == 0 {
		return types.PoolRegistration{}, nil, fmt.Errorf("%w: no assets", ErrEmptyOracles)
	}
	for i, list := range s.Oracles {
		if len(list) == 0 {
			return types.PoolRegistration{}, nil, fmt.Errorf("%w: asset %d", ErrEmptyOracles, i)
		}
		for _, id := range list {
			if _, ok := r.oracles[id]; !ok {
				return types.PoolRegistration{}, nil, fmt.Errorf("%w: %s (asset %d)", ErrUnapprovedOracle, id, i)
			}
		}
	}
	if n < 2 {
		return types.PoolRegistration{}, nil, fmt.Errorf("%w: a pool needs at least two assets", ErrInvalidParameters)
	}

	rule, err := rules.NewRule(s.Rule)
	if err != nil {
		return types.PoolRegistration{}, nil, err
	}
	if s.UpdateInterval <= 0 {
		return types.PoolRegistration{}, nil, fmt.Errorf("%w: update interval must be positive", ErrInvalidParameters)
	}
	if _, err := estimator.ExpandLambdas(s.Lambdas, n); err != nil {
		return types.PoolRegistration{}, nil, err
	}
	if s.EpsilonMax.IsNil() || s.AbsoluteGuardRail.IsNil() {
		return types.PoolRegistration{}, nil, fmt.Errorf("%w: epsilon max and guard rail are required", ErrInvalidParameters)
	}
	guard := guardrail.Config{EpsilonMax: s.EpsilonMax, AbsoluteGuardRail: s.AbsoluteGuardRail, Mode: r.mode}
	if err := guard.Validate(n); err != nil {
		return types.PoolRegistration{}, nil, err
	}
	if !rule.ValidateParameters(s.Parameters, n) {
		return types.PoolRegistration{}, nil, fmt.Errorf("%w: parameters rejected by rule %s", ErrInvalidParameters, rule.Name())
	}

	reg := types.PoolRegistration{
		Pool:              pool,
		Rule:              rule.Name(),
		LastRunTime:       0,
		UpdateInterval:    s.UpdateInterval,
		Lambdas:           fixedpoint.Copy(s.Lambdas),
		EpsilonMax:        s.EpsilonMax,
		AbsoluteGuardRail: s.AbsoluteGuardRail,
		Parameters:        s.Parameters.Clone(),
		PoolManager:       s.PoolManager,
	}
	reg.Oracles = make([][]string, n)
	for i, list := range s.Oracles {
		reg.Oracles[i] = append([]string(nil), list...)
	}
	return reg, rule, nil
}

// equalWeights splits one unit evenly; truncation dust goes to the first asset.
func equalWeights(n int) []sdkmath.LegacyDec {
	share := fixedpoint.One().QuoInt64(int64(n))
	out := fixedpoint.Filled(n, share)
	out[0] = out[0].Add(fixedpoint.One().Sub(fixedpoint.Sum(out)))
	return out
}

// seedEstimators builds the starting estimator state through the estimator setters on a
// scratch ledger.
func seedEstimators(pool types.Address, rule rules.Rule, n int, seed EstimatorSeed) (types.EstimatorState, error) {
	if err := checkSeed(seed, n); err != nil {
		return types.EstimatorState{}, err
	}
	needs := rule.Needs()
	ledger := estimator.NewMemoryLedger()

	if len(seed.MovingAverages) > 0 {
		if err := (estimator.MovingAverage{Ledger: ledger}).Set(pool, seed.MovingAverages); err != nil {
			return types.EstimatorState{}, err
		}
	}
	if needs.ShortMovingAverage && len(seed.ShortMovingAverages) > 0 {
		if err := (estimator.ShortMovingAverage{Ledger: ledger}).Set(pool, seed.ShortMovingAverages); err != nil {
			return types.EstimatorState{}, err
		}
	}
	if len(seed.Intermediates) > 0 {
		if needs.Gradient {
			if err := (estimator.Gradient{Ledger: ledger}).Set(pool, seed.Intermediates); err != nil {
				return types.EstimatorState{}, err
			}
		}
		if needs.Variance {
			if err := (estimator.Variance{Ledger: ledger}).Set(pool, seed.Intermediates); err != nil {
				return types.EstimatorState{}, err
			}
		}
	}
	if needs.Covariance && len(seed.Covariance) > 0 {
		if err := (estimator.Covariance{Ledger: ledger}).Set(pool, seed.Covariance); err != nil {
			return types.EstimatorState{}, err
		}
	}
	return ledger.Load(pool)
}

func checkSeed(seed EstimatorSeed, n int) error {
	for name, values := range map[string][]sdkmath.LegacyDec{
		"moving averages":       seed.MovingAverages,
		"short moving averages": seed.ShortMovingAverages,
		"intermediates":         seed.Intermediates,
	} {
		if len(values) != 0 && len(values) != n {
			return fmt.Errorf("%w: %s has %d values for %d assets", estimator.ErrDimensionMismatch, name, len(values), n)
		}
		for i, v := range values {
			if v.IsNil() {
				return fmt.Errorf("%w: %s[%d] is unset", ErrInvalidParameters, name, i)
			}
		}
	}
	for i, v := range seed.MovingAverages {
		if !v.IsPositive() {
			return fmt.Errorf("%w: moving average %d must be positive", ErrInvalidParameters, i)
		}
	}
	if len(seed.Covariance) > 0 {
		if err := estimator.CheckSquare(seed.Covariance, n); err != nil {
			return err
		}
	}
	return nil
}

// ClearRuleForPool removes a registration together with its weight, estimator and
// history records.
func (r *Runner) ClearRuleForPool(ctx context.Context, caller, pool types.Address) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	unlock := r.lockPool(pool)
	defer unlock()

	if err := r.store.DeletePool(ctx, pool); err != nil {
		return mapNotFound(err, pool)
	}
	r.metrics.ForgetPool(pool.String())
	runnerLogger.Info().Str("pool", pool.String()).Str("caller", caller.String()).Msg("Rule cleared for pool")
	return nil
}
