/*
This file contains the guard-rail engine applied to every proposed weight vector.

Two stages run in a fixed order:
 1. the per-step epsilon clamp followed by a renormalization inside the step bounds,
 2. the absolute clamp into [g, 1-g] followed by a renormalization.

Bounds are inclusive: a weight exactly equal to g or 1-g is accepted as is.
*/

package guardrail

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

var (
	ErrInvalidConfig      = types.NewClassError(types.ErrConfiguration, "invalid guard rail configuration")
	ErrDimensionMismatch  = types.NewClassError(types.ErrInvariant, "weight vector length mismatch")
	ErrInvariantViolation = types.NewClassError(types.ErrInvariant, "guarded weights violate an invariant")
)

// Mode selects how the epsilon stage limits the per-step change.
type Mode int

const (
	// ModeScalar rescales every delta by the same factor so the largest equals epsilon.
	// Deltas that summed to zero keep summing to zero.
	ModeScalar Mode = iota
	// ModePerAsset clamps each delta to [-epsilon, epsilon] independently.
	ModePerAsset
)

func (m Mode) String() string {
	switch m {
	case ModeScalar:
		return "scalar"
	case ModePerAsset:
		return "per_asset"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration string onto a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "scalar":
		return ModeScalar, nil
	case "per_asset":
		return ModePerAsset, nil
	default:
		return ModeScalar, fmt.Errorf("%w: unknown epsilon mode %q", ErrInvalidConfig, s)
	}
}

// Config holds the guard rails of a pool.
type Config struct {
	EpsilonMax        sdkmath.LegacyDec
	AbsoluteGuardRail sdkmath.LegacyDec
	Mode              Mode
}

// Validate checks the configuration for a pool of n assets.
func (c Config) Validate(n int) error {
	if n < 2 {
		return fmt.Errorf("%w: a pool needs at least 2 assets, got %d", ErrInvalidConfig, n)
	}
	if c.EpsilonMax.IsNil() || !c.EpsilonMax.IsPositive() {
		return fmt.Errorf("%w: epsilon max must be positive", ErrInvalidConfig)
	}
	if c.AbsoluteGuardRail.IsNil() || c.AbsoluteGuardRail.IsNegative() {
		return fmt.Errorf("%w: absolute guard rail must not be negative", ErrInvalidConfig)
	}
	if c.AbsoluteGuardRail.GTE(sdkmath.LegacyMustNewDecFromStr("0.5")) {
		return fmt.Errorf("%w: absolute guard rail %s must be below 0.5", ErrInvalidConfig, c.AbsoluteGuardRail)
	}
	if c.AbsoluteGuardRail.MulInt64(int64(n)).GT(fixedpoint.One()) {
		return fmt.Errorf("%w: %d assets at guard rail %s exceed a total weight of one", ErrInvalidConfig, n, c.AbsoluteGuardRail)
	}
	return nil
}

// Lower is the smallest weight any asset may hold.
func (c Config) Lower() sdkmath.LegacyDec { return c.AbsoluteGuardRail }

// Upper is the largest weight any asset may hold.
func (c Config) Upper() sdkmath.LegacyDec { return fixedpoint.One().Sub(c.AbsoluteGuardRail) }

// Apply guards a proposed weight vector against the previous one. The result sums to
// exactly one, lies within [g, 1-g] and differs from prev by at most epsilon per asset
// whenever that is feasible together with the first two properties.
func Apply(prev, proposed []sdkmath.LegacyDec, cfg Config) ([]sdkmath.LegacyDec, error) {
	n := len(prev)
	if len(proposed) != n {
		return nil, fmt.Errorf("%w: %d previous weights, %d proposed", ErrDimensionMismatch, n, len(proposed))
	}
	if err := cfg.Validate(n); err != nil {
		return nil, err
	}

	// --- 1. Epsilon clamp ---
	weights, clamped := clampSteps(prev, proposed, cfg)
	step := stepBounds(prev, cfg)

	// restore sum-to-one across the unclamped assets, inside the step bounds
	residual := fixedpoint.One().Sub(fixedpoint.Sum(weights))
	residual = redistribute(weights, residual, step, clamped)

	// --- 2. Absolute clamp ---
	raised := make([]bool, n)
	lowered := make([]bool, n)
	for i := range weights {
		if weights[i].LT(cfg.Lower()) {
			weights[i] = cfg.Lower()
			raised[i] = true
		} else if weights[i].GT(cfg.Upper()) {
			weights[i] = cfg.Upper()
			lowered[i] = true
		}
	}
	residual = fixedpoint.One().Sub(fixedpoint.Sum(weights))

	// a clamped asset is only locked against the direction it was clamped in
	locked := make([]bool, n)
	for i := range weights {
		locked[i] = (raised[i] && residual.IsNegative()) || (lowered[i] && residual.IsPositive())
	}

	// first across assets not at a bound while keeping the step limit
	absolute := absoluteBounds(n, cfg)
	residual = redistribute(weights, residual, step, locked)
	residual = assignDust(weights, residual, intersect(step, absolute))

	// then give up the step limit but keep the absolute bounds
	residual = redistribute(weights, residual, absolute, make([]bool, n))

	// deterministic fallback: spread by headroom across every asset
	residual = spreadByHeadroom(weights, residual, absolute)

	// --- 3. Truncation dust ---
	residual = assignDust(weights, residual, absolute)

	if err := verify(weights, cfg); err != nil {
		return nil, err
	}
	if !residual.IsZero() {
		return nil, fmt.Errorf("%w: %s weight left unassigned", ErrInvariantViolation, residual)
	}
	return weights, nil
}

type bounds struct {
	lower []sdkmath.LegacyDec
	upper []sdkmath.LegacyDec
}

// headroom is how far asset i can move in the direction of the residual.
func (b bounds) headroom(w sdkmath.LegacyDec, i int, residual sdkmath.LegacyDec) sdkmath.LegacyDec {
	var room sdkmath.LegacyDec
	if residual.IsPositive() {
		room = b.upper[i].Sub(w)
	} else {
		room = w.Sub(b.lower[i])
	}
	if room.IsNegative() {
		return fixedpoint.Zero()
	}
	return room
}

func stepBounds(prev []sdkmath.LegacyDec, cfg Config) bounds {
	n := len(prev)
	b := bounds{lower: make([]sdkmath.LegacyDec, n), upper: make([]sdkmath.LegacyDec, n)}
	for i, p := range prev {
		lower := sdkmath.LegacyMaxDec(p.Sub(cfg.EpsilonMax), cfg.Lower())
		upper := sdkmath.LegacyMinDec(p.Add(cfg.EpsilonMax), cfg.Upper())
		if lower.GT(upper) {
			// the previous weight sits outside the absolute bounds by more than epsilon
			lower = sdkmath.LegacyMaxDec(p.Sub(cfg.EpsilonMax), fixedpoint.Zero())
			upper = p.Add(cfg.EpsilonMax)
		}
		b.lower[i] = lower
		b.upper[i] = upper
	}
	return b
}

func intersect(a, b bounds) bounds {
	n := len(a.lower)
	out := bounds{lower: make([]sdkmath.LegacyDec, n), upper: make([]sdkmath.LegacyDec, n)}
	for i := 0; i < n; i++ {
		out.lower[i] = sdkmath.LegacyMaxDec(a.lower[i], b.lower[i])
		out.upper[i] = sdkmath.LegacyMinDec(a.upper[i], b.upper[i])
	}
	return out
}

func absoluteBounds(n int, cfg Config) bounds {
	return bounds{lower: fixedpoint.Filled(n, cfg.Lower()), upper: fixedpoint.Filled(n, cfg.Upper())}
}

// clampSteps limits every delta to epsilon and reports which assets were clamped.
func clampSteps(prev, proposed []sdkmath.LegacyDec, cfg Config) ([]sdkmath.LegacyDec, []bool) {
	n := len(prev)
	deltas := make([]sdkmath.LegacyDec, n)
	for i := range prev {
		deltas[i] = proposed[i].Sub(prev[i])
	}

	clamped := make([]bool, n)
	switch cfg.Mode {
	case ModePerAsset:
		for i, d := range deltas {
			if d.GT(cfg.EpsilonMax) {
				deltas[i] = cfg.EpsilonMax
				clamped[i] = true
			} else if d.LT(cfg.EpsilonMax.Neg()) {
				deltas[i] = cfg.EpsilonMax.Neg()
				clamped[i] = true
			}
		}
	default:
		largest := fixedpoint.MaxAbs(deltas)
		if largest.GT(cfg.EpsilonMax) {
			factor := cfg.EpsilonMax.QuoTruncate(largest)
			for i, d := range deltas {
				if d.Abs().Equal(largest) {
					// exact epsilon, no truncation on the binding assets
					deltas[i] = cfg.EpsilonMax
					if d.IsNegative() {
						deltas[i] = cfg.EpsilonMax.Neg()
					}
					clamped[i] = true
					continue
				}
				deltas[i] = fixedpoint.Mul(d, factor)
			}
		}
	}

	weights := make([]sdkmath.LegacyDec, n)
	for i := range prev {
		weights[i] = prev[i].Add(deltas[i])
	}
	return weights, clamped
}

// redistribute spreads the residual over unlocked assets proportionally to their weight,
// locking assets that hit a bound, and returns what could not be placed. It mutates
// weights and locked.
func redistribute(weights []sdkmath.LegacyDec, residual sdkmath.LegacyDec, b bounds, locked []bool) sdkmath.LegacyDec {
	n := len(weights)
	for iteration := 0; iteration <= n && !residual.IsZero(); iteration++ {
		eligible := make([]int, 0, n)
		total := fixedpoint.Zero()
		for i := range weights {
			if locked[i] || !b.headroom(weights[i], i, residual).IsPositive() {
				continue
			}
			eligible = append(eligible, i)
			total = total.Add(weights[i])
		}
		if len(eligible) == 0 {
			break
		}

		distributed := fixedpoint.Zero()
		madeChanges := false
		for _, i := range eligible {
			var share sdkmath.LegacyDec
			if total.IsPositive() {
				share = fixedpoint.Mul(residual, weights[i].QuoTruncate(total))
			} else {
				share = residual.QuoInt64(int64(len(eligible)))
			}

			room := b.headroom(weights[i], i, residual)
			if share.Abs().GTE(room) {
				share = room
				if residual.IsNegative() {
					share = room.Neg()
				}
				locked[i] = true
				madeChanges = true
			}
			weights[i] = weights[i].Add(share)
			distributed = distributed.Add(share)
		}
		residual = residual.Sub(distributed)

		if !madeChanges {
			// only truncation dust remains
			break
		}
	}
	return residual
}

// spreadByHeadroom places the residual proportionally to each asset's headroom. As long as
// the residual does not exceed the total headroom no share can overshoot its bound.
func spreadByHeadroom(weights []sdkmath.LegacyDec, residual sdkmath.LegacyDec, b bounds) sdkmath.LegacyDec {
	if residual.IsZero() {
		return residual
	}
	rooms := make([]sdkmath.LegacyDec, len(weights))
	total := fixedpoint.Zero()
	for i := range weights {
		rooms[i] = b.headroom(weights[i], i, residual)
		total = total.Add(rooms[i])
	}
	if !total.IsPositive() {
		return residual
	}

	amount := residual
	if amount.Abs().GT(total) {
		amount = total
		if residual.IsNegative() {
			amount = total.Neg()
		}
	}
	distributed := fixedpoint.Zero()
	for i := range weights {
		share := fixedpoint.Mul(amount, rooms[i].QuoTruncate(total))
		weights[i] = weights[i].Add(share)
		distributed = distributed.Add(share)
	}
	return residual.Sub(distributed)
}

// assignDust gives the residual to the lowest-index asset that stays within bounds.
func assignDust(weights []sdkmath.LegacyDec, residual sdkmath.LegacyDec, b bounds) sdkmath.LegacyDec {
	if residual.IsZero() {
		return residual
	}
	for i := range weights {
		candidate := weights[i].Add(residual)
		if candidate.GTE(b.lower[i]) && candidate.LTE(b.upper[i]) {
			weights[i] = candidate
			return fixedpoint.Zero()
		}
	}
	return residual
}

func verify(weights []sdkmath.LegacyDec, cfg Config) error {
	if !fixedpoint.Sum(weights).Equal(fixedpoint.One()) {
		return fmt.Errorf("%w: weights sum to %s", ErrInvariantViolation, fixedpoint.Sum(weights))
	}
	for i, w := range weights {
		if w.LT(cfg.Lower()) || w.GT(cfg.Upper()) {
			return fmt.Errorf("%w: weight %d = %s outside [%s, %s]", ErrInvariantViolation, i, w, cfg.Lower(), cfg.Upper())
		}
	}
	return nil
}
