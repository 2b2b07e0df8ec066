/*
This file binds the recurrences to a ledger. Each estimator exposes Update (mutates the
stored state and returns what rules consume), Read (pure view) and Set (operator recovery).

Gradient, Variance and Covariance read the previous moving average, so within one update
they must run before MovingAverage.Update.
*/

package estimator

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

// MovingAverage is the long moving average of a pool.
type MovingAverage struct {
	Ledger Ledger
}

func (e MovingAverage) Update(pool types.Address, prices, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	next, err := NextMovingAverage(state.MovingAverages, prices, lambdas)
	if err != nil {
		return nil, err
	}
	state.MovingAverages = next
	if err := e.Ledger.Save(pool, state); err != nil {
		return nil, err
	}
	return fixedpoint.Copy(next), nil
}

func (e MovingAverage) Read(pool types.Address) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	return state.MovingAverages, nil
}

func (e MovingAverage) Set(pool types.Address, values []sdkmath.LegacyDec) error {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return err
	}
	state.MovingAverages = fixedpoint.Copy(values)
	return e.Ledger.Save(pool, state)
}

// ShortMovingAverage is the second, faster moving average used by difference momentum.
type ShortMovingAverage struct {
	Ledger Ledger
}

func (e ShortMovingAverage) Update(pool types.Address, prices, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	next, err := NextMovingAverage(state.ShortMovingAverages, prices, lambdas)
	if err != nil {
		return nil, err
	}
	state.ShortMovingAverages = next
	if err := e.Ledger.Save(pool, state); err != nil {
		return nil, err
	}
	return fixedpoint.Copy(next), nil
}

func (e ShortMovingAverage) Read(pool types.Address) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	return state.ShortMovingAverages, nil
}

func (e ShortMovingAverage) Set(pool types.Address, values []sdkmath.LegacyDec) error {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return err
	}
	state.ShortMovingAverages = fixedpoint.Copy(values)
	return e.Ledger.Save(pool, state)
}

// Gradient tracks the smoothed rate of change of each price.
type Gradient struct {
	Ledger Ledger
}

func (e Gradient) Update(pool types.Address, prices, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	intermediate, gradient, err := NextGradient(state.GradientIntermediate, state.MovingAverages, prices, lambdas)
	if err != nil {
		return nil, err
	}
	state.GradientIntermediate = intermediate
	if err := e.Ledger.Save(pool, state); err != nil {
		return nil, err
	}
	return gradient, nil
}

// Read returns the stored intermediate. The visible gradient only exists as the output of
// an update.
func (e Gradient) Read(pool types.Address) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	return state.GradientIntermediate, nil
}

func (e Gradient) Set(pool types.Address, intermediate []sdkmath.LegacyDec) error {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return err
	}
	state.GradientIntermediate = fixedpoint.Copy(intermediate)
	return e.Ledger.Save(pool, state)
}

// Variance tracks per-asset variance.
type Variance struct {
	Ledger Ledger
}

func (e Variance) Update(pool types.Address, prices, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	intermediate, variance, err := NextVariance(state.VarianceIntermediate, state.MovingAverages, prices, lambdas)
	if err != nil {
		return nil, err
	}
	state.VarianceIntermediate = intermediate
	if err := e.Ledger.Save(pool, state); err != nil {
		return nil, err
	}
	return variance, nil
}

// Read returns the visible variance (1-lambda) A(t).
func (e Variance) Read(pool types.Address, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	if len(state.VarianceIntermediate) == 0 {
		return nil, nil
	}
	return VisibleVariance(state.VarianceIntermediate, lambdas)
}

func (e Variance) Set(pool types.Address, intermediate []sdkmath.LegacyDec) error {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return err
	}
	state.VarianceIntermediate = fixedpoint.Copy(intermediate)
	return e.Ledger.Save(pool, state)
}

// Covariance tracks the full covariance matrix.
type Covariance struct {
	Ledger Ledger
}

func (e Covariance) Update(pool types.Address, prices, lambdas []sdkmath.LegacyDec) ([][]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	intermediate, covariance, err := NextCovariance(state.CovarianceIntermediate, state.MovingAverages, prices, lambdas)
	if err != nil {
		return nil, err
	}
	state.CovarianceIntermediate = intermediate
	if err := e.Ledger.Save(pool, state); err != nil {
		return nil, err
	}
	return covariance, nil
}

// Read returns the visible covariance (1-lambda) A(t), like Variance.Read.
func (e Covariance) Read(pool types.Address, lambdas []sdkmath.LegacyDec) ([][]sdkmath.LegacyDec, error) {
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return nil, err
	}
	if len(state.CovarianceIntermediate) == 0 {
		return nil, nil
	}
	return VisibleCovariance(state.CovarianceIntermediate, lambdas)
}

func (e Covariance) Set(pool types.Address, intermediate [][]sdkmath.LegacyDec) error {
	if err := CheckSquare(intermediate, len(intermediate)); err != nil {
		return err
	}
	state, err := e.Ledger.Load(pool)
	if err != nil {
		return err
	}
	state.CovarianceIntermediate = fixedpoint.CopyMatrix(intermediate)
	return e.Ledger.Save(pool, state)
}
