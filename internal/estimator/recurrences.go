/*
This file contains the recursive estimators shared by every update rule.

Every estimator keeps constant-size state per pool and is parameterized by a decay factor
lambda in (0, 1). The functions here are pure: they take the previous state and the new
price vector and return the next state. Persistence lives in ledger.go.
*/

package estimator

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

var (
	ErrDimensionMismatch = types.NewClassError(types.ErrConfiguration, "estimator dimension mismatch")
	ErrInvalidLambda     = types.NewClassError(types.ErrConfiguration, "lambda must be strictly between 0 and 1")
	ErrInvalidPrice      = types.NewClassError(types.ErrDataUnavailable, "price must be positive")
)

// ExpandLambdas validates a lambda vector and expands a shared lambda to n entries.
func ExpandLambdas(lambdas []sdkmath.LegacyDec, n int) ([]sdkmath.LegacyDec, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d assets", ErrDimensionMismatch, n)
	}
	if len(lambdas) != 1 && len(lambdas) != n {
		return nil, fmt.Errorf("%w: %d lambdas for %d assets", ErrDimensionMismatch, len(lambdas), n)
	}
	out := make([]sdkmath.LegacyDec, n)
	for i := range out {
		l := lambdas[0]
		if len(lambdas) == n {
			l = lambdas[i]
		}
		if l.IsNil() || !l.IsPositive() || l.GTE(fixedpoint.One()) {
			return nil, fmt.Errorf("%w: lambda[%d] = %v", ErrInvalidLambda, i, l)
		}
		out[i] = l
	}
	return out, nil
}

func checkPrices(prices []sdkmath.LegacyDec) error {
	for i, p := range prices {
		if p.IsNil() || !p.IsPositive() {
			return fmt.Errorf("%w: price[%d] = %v", ErrInvalidPrice, i, p)
		}
	}
	return nil
}

func checkLen(name string, values []sdkmath.LegacyDec, n int) error {
	if len(values) != n {
		return fmt.Errorf("%w: %s has %d entries for %d assets", ErrDimensionMismatch, name, len(values), n)
	}
	return nil
}

// seedOrCheck returns the previous state or a copy of seed when there is no history.
func seedOrCheck(name string, prev, seed []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	if len(prev) == 0 {
		return fixedpoint.Copy(seed), nil
	}
	if err := checkLen(name, prev, len(seed)); err != nil {
		return nil, err
	}
	return prev, nil
}

// NextMovingAverage computes avg(t) = avg(t-1) + (1-lambda)(p(t) - avg(t-1)). An empty
// previous average is seeded with the prices themselves.
func NextMovingAverage(prevAvg, prices, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	n := len(prices)
	if err := checkPrices(prices); err != nil {
		return nil, err
	}
	lam, err := ExpandLambdas(lambdas, n)
	if err != nil {
		return nil, err
	}
	prev, err := seedOrCheck("moving average", prevAvg, prices)
	if err != nil {
		return nil, err
	}

	out := make([]sdkmath.LegacyDec, n)
	for i := 0; i < n; i++ {
		oneMinus := fixedpoint.One().Sub(lam[i])
		out[i] = prev[i].Add(fixedpoint.Mul(oneMinus, prices[i].Sub(prev[i])))
	}
	return out, nil
}

// NextGradient computes the gradient intermediate
// a(t) = lambda a(t-1) + (p(t) - avg(t-1)) / (1-lambda)
// and the visible gradient (1-lambda)^3 / lambda * a(t).
func NextGradient(prevIntermediate, prevAvg, prices, lambdas []sdkmath.LegacyDec) (intermediate, gradient []sdkmath.LegacyDec, err error) {
	n := len(prices)
	if err := checkPrices(prices); err != nil {
		return nil, nil, err
	}
	lam, err := ExpandLambdas(lambdas, n)
	if err != nil {
		return nil, nil, err
	}
	avg, err := seedOrCheck("moving average", prevAvg, prices)
	if err != nil {
		return nil, nil, err
	}
	prevA, err := seedOrCheck("gradient intermediate", prevIntermediate, fixedpoint.Filled(n, fixedpoint.Zero()))
	if err != nil {
		return nil, nil, err
	}

	intermediate = make([]sdkmath.LegacyDec, n)
	gradient = make([]sdkmath.LegacyDec, n)
	for i := 0; i < n; i++ {
		oneMinus := fixedpoint.One().Sub(lam[i])
		step, err := fixedpoint.Quo(prices[i].Sub(avg[i]), oneMinus)
		if err != nil {
			return nil, nil, err
		}
		intermediate[i] = fixedpoint.Mul(lam[i], prevA[i]).Add(step)

		cube := fixedpoint.Mul(fixedpoint.Mul(oneMinus, oneMinus), oneMinus)
		scale, err := fixedpoint.Quo(cube, lam[i])
		if err != nil {
			return nil, nil, err
		}
		gradient[i] = fixedpoint.Mul(scale, intermediate[i])
	}
	return intermediate, gradient, nil
}

// NextVariance computes A(t) = lambda A(t-1) + (p(t)-avg(t-1))(p(t)-avg(t)) and the
// visible variance (1-lambda) A(t). Only the diagonal is tracked.
func NextVariance(prevIntermediate, prevAvg, prices, lambdas []sdkmath.LegacyDec) (intermediate, variance []sdkmath.LegacyDec, err error) {
	n := len(prices)
	lam, err := ExpandLambdas(lambdas, n)
	if err != nil {
		return nil, nil, err
	}
	avg, err := seedOrCheck("moving average", prevAvg, prices)
	if err != nil {
		return nil, nil, err
	}
	newAvg, err := NextMovingAverage(avg, prices, lam)
	if err != nil {
		return nil, nil, err
	}
	prevA, err := seedOrCheck("variance intermediate", prevIntermediate, fixedpoint.Filled(n, fixedpoint.Zero()))
	if err != nil {
		return nil, nil, err
	}

	intermediate = make([]sdkmath.LegacyDec, n)
	variance = make([]sdkmath.LegacyDec, n)
	for i := 0; i < n; i++ {
		cross := fixedpoint.Mul(prices[i].Sub(avg[i]), prices[i].Sub(newAvg[i]))
		intermediate[i] = fixedpoint.Mul(lam[i], prevA[i]).Add(cross)
		variance[i] = fixedpoint.Mul(fixedpoint.One().Sub(lam[i]), intermediate[i])
	}
	return intermediate, variance, nil
}

// NextCovariance runs the variance recursion over the outer product
// (p(t)-avg(t-1)) x (p(t)-avg(t)). Row i decays with lambda i. The stored matrix must be
// exactly n by n.
func NextCovariance(prevIntermediate [][]sdkmath.LegacyDec, prevAvg, prices, lambdas []sdkmath.LegacyDec) (intermediate, covariance [][]sdkmath.LegacyDec, err error) {
	n := len(prices)
	lam, err := ExpandLambdas(lambdas, n)
	if err != nil {
		return nil, nil, err
	}
	avg, err := seedOrCheck("moving average", prevAvg, prices)
	if err != nil {
		return nil, nil, err
	}
	newAvg, err := NextMovingAverage(avg, prices, lam)
	if err != nil {
		return nil, nil, err
	}

	prevA := prevIntermediate
	if len(prevA) == 0 {
		prevA = fixedpoint.ZeroMatrix(n)
	}
	if err := CheckSquare(prevA, n); err != nil {
		return nil, nil, err
	}

	before := make([]sdkmath.LegacyDec, n)
	after := make([]sdkmath.LegacyDec, n)
	for i := 0; i < n; i++ {
		before[i] = prices[i].Sub(avg[i])
		after[i] = prices[i].Sub(newAvg[i])
	}

	intermediate = make([][]sdkmath.LegacyDec, n)
	covariance = make([][]sdkmath.LegacyDec, n)
	for i := 0; i < n; i++ {
		intermediate[i] = make([]sdkmath.LegacyDec, n)
		covariance[i] = make([]sdkmath.LegacyDec, n)
		oneMinus := fixedpoint.One().Sub(lam[i])
		for j := 0; j < n; j++ {
			cross := fixedpoint.Mul(before[i], after[j])
			intermediate[i][j] = fixedpoint.Mul(lam[i], prevA[i][j]).Add(cross)
			covariance[i][j] = fixedpoint.Mul(oneMinus, intermediate[i][j])
		}
	}
	return intermediate, covariance, nil
}

// VisibleVariance converts a stored variance intermediate into variance.
func VisibleVariance(intermediate, lambdas []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	lam, err := ExpandLambdas(lambdas, len(intermediate))
	if err != nil {
		return nil, err
	}
	out := make([]sdkmath.LegacyDec, len(intermediate))
	for i, a := range intermediate {
		out[i] = fixedpoint.Mul(fixedpoint.One().Sub(lam[i]), a)
	}
	return out, nil
}

// VisibleCovariance converts a stored covariance intermediate into covariance, scaling row
// i by (1 - lambda_i).
func VisibleCovariance(intermediate [][]sdkmath.LegacyDec, lambdas []sdkmath.LegacyDec) ([][]sdkmath.LegacyDec, error) {
	if err := CheckSquare(intermediate, len(intermediate)); err != nil {
		return nil, err
	}
	lam, err := ExpandLambdas(lambdas, len(intermediate))
	if err != nil {
		return nil, err
	}
	out := make([][]sdkmath.LegacyDec, len(intermediate))
	for i, row := range intermediate {
		out[i] = make([]sdkmath.LegacyDec, len(row))
		oneMinus := fixedpoint.One().Sub(lam[i])
		for j, a := range row {
			out[i][j] = fixedpoint.Mul(oneMinus, a)
		}
	}
	return out, nil
}

// CheckSquare fails unless m is an n by n matrix.
func CheckSquare(m [][]sdkmath.LegacyDec, n int) error {
	if len(m) != n {
		return fmt.Errorf("%w: covariance has %d rows for %d assets", ErrDimensionMismatch, len(m), n)
	}
	for i, row := range m {
		if len(row) != n {
			return fmt.Errorf("%w: covariance row %d has %d columns for %d assets", ErrDimensionMismatch, i, len(row), n)
		}
	}
	return nil
}
