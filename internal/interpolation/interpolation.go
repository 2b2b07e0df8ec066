/*
This file converts a guarded target weight vector into the linear interpolation the pool
reads between updates: the weights as of the update plus a signed per-second multiplier,
and the time after which interpolation must freeze because a guard rail would be crossed.
*/

package interpolation

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

var (
	ErrDimensionMismatch = types.NewClassError(types.ErrInvariant, "weight and multiplier vectors differ in length")
	ErrInvalidInterval   = types.NewClassError(types.ErrConfiguration, "update interval must be positive")
	ErrInvalidState      = types.NewClassError(types.ErrConfiguration, "weight state violates an invariant")
)

// Derive computes the multipliers that move prev to target over interval seconds. The
// last multiplier is the negated sum of the others so multipliers sum to exactly zero.
func Derive(prev, target []sdkmath.LegacyDec, interval, now int64, guardRail sdkmath.LegacyDec) (types.WeightState, error) {
	n := len(prev)
	if n == 0 || len(target) != n {
		return types.WeightState{}, fmt.Errorf("%w: %d previous weights, %d targets", ErrDimensionMismatch, n, len(target))
	}
	if interval <= 0 {
		return types.WeightState{}, fmt.Errorf("%w: %d", ErrInvalidInterval, interval)
	}

	multipliers := make([]sdkmath.LegacyDec, n)
	others := fixedpoint.Zero()
	for i := 0; i < n-1; i++ {
		multipliers[i] = target[i].Sub(prev[i]).QuoInt64(interval)
		others = others.Add(multipliers[i])
	}
	multipliers[n-1] = others.Neg()

	state := types.WeightState{
		FixedWeights:   fixedpoint.Copy(prev),
		Multipliers:    multipliers,
		LastUpdateTime: now,
	}
	state.LastInterpolationTimePossible = LastInterpolationTimePossible(state.FixedWeights, multipliers, now, guardRail)
	return state, nil
}

// LastInterpolationTimePossible returns the earliest time at which some asset's
// interpolated weight would cross its absolute guard rail, or types.NoFreeze when every
// multiplier is zero.
func LastInterpolationTimePossible(weights, multipliers []sdkmath.LegacyDec, now int64, guardRail sdkmath.LegacyDec) int64 {
	earliest := types.NoFreeze
	upper := fixedpoint.One().Sub(guardRail)
	for i, m := range multipliers {
		if m.IsZero() {
			continue
		}
		var distance sdkmath.LegacyDec
		if m.IsPositive() {
			distance = upper.Sub(weights[i])
		} else {
			distance = weights[i].Sub(guardRail)
		}

		var steps int64
		if distance.IsPositive() {
			whole := distance.QuoTruncate(m.Abs()).TruncateInt()
			if whole.IsInt64() {
				steps = whole.Int64()
			} else {
				steps = math.MaxInt64
			}
		}

		t := math.MaxInt64 - steps
		if now <= t {
			t = now + steps
		} else {
			t = math.MaxInt64
		}
		if t < earliest {
			earliest = t
		}
	}
	return earliest
}

// EffectiveWeights evaluates fixed + multiplier * (min(t, freeze) - lastUpdate) and clamps
// the result to the absolute guard rail once more.
func EffectiveWeights(state types.WeightState, t int64, guardRail sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	if len(state.FixedWeights) != len(state.Multipliers) {
		return nil, fmt.Errorf("%w: %d weights, %d multipliers", ErrDimensionMismatch, len(state.FixedWeights), len(state.Multipliers))
	}
	until := t
	if state.LastInterpolationTimePossible < until {
		until = state.LastInterpolationTimePossible
	}
	elapsed := until - state.LastUpdateTime
	if elapsed < 0 {
		elapsed = 0
	}

	lower := guardRail
	upper := fixedpoint.One().Sub(guardRail)
	out := make([]sdkmath.LegacyDec, len(state.FixedWeights))
	for i, w := range state.FixedWeights {
		v := w.Add(state.Multipliers[i].MulInt64(elapsed))
		if v.LT(lower) {
			v = lower
		} else if v.GT(upper) {
			v = upper
		}
		out[i] = v
	}
	return out, nil
}

// ValidateState checks a weight state supplied from outside the pipeline: fixed weights
// sum to one and sit within the guard rail, multipliers sum to zero and every vector has
// n entries.
func ValidateState(state types.WeightState, n int, guardRail sdkmath.LegacyDec) error {
	if len(state.FixedWeights) != n || len(state.Multipliers) != n {
		return fmt.Errorf("%w: want %d weights and multipliers, got %d and %d",
			ErrDimensionMismatch, n, len(state.FixedWeights), len(state.Multipliers))
	}
	for i, w := range state.FixedWeights {
		if w.IsNil() || state.Multipliers[i].IsNil() {
			return fmt.Errorf("%w: asset %d is unset", ErrInvalidState, i)
		}
		if w.LT(guardRail) || w.GT(fixedpoint.One().Sub(guardRail)) {
			return fmt.Errorf("%w: weight %d = %s outside the guard rail", ErrInvalidState, i, w)
		}
	}
	if sum := fixedpoint.Sum(state.FixedWeights); !sum.Equal(fixedpoint.One()) {
		return fmt.Errorf("%w: weights sum to %s", ErrInvalidState, sum)
	}
	if sum := fixedpoint.Sum(state.Multipliers); !sum.IsZero() {
		return fmt.Errorf("%w: multipliers sum to %s", ErrInvalidState, sum)
	}
	return nil
}
