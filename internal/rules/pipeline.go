package rules

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/guardrail"
	"github.com/elys-network/tfmm/internal/types"
)

// Result is the outcome of one pipeline run.
type Result struct {
	Raw     []sdkmath.LegacyDec
	Guarded []sdkmath.LegacyDec
	Input   ProposalInput
}

// Pipeline runs the fixed update sequence around a rule:
// previous weights, estimator update, raw proposal, guard rails.
type Pipeline struct {
	Ledger estimator.Ledger
	Mode   guardrail.Mode
}

// CalculateNewWeights runs one update of reg's rule. Estimator state is written to the
// ledger, so callers that need atomicity pass a staging ledger.
func (p Pipeline) CalculateNewWeights(ctx context.Context, rule Rule, reg types.PoolRegistration, prevWeights, prices []sdkmath.LegacyDec) (*Result, error) {
	n := reg.NumAssets()

	// --- 1. Previous weights ---
	if len(prevWeights) != n || len(prices) != n {
		return nil, fmt.Errorf("%w: %d assets, %d previous weights, %d prices", ErrDimensionMismatch, n, len(prevWeights), len(prices))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// --- 2. Estimators ---
	input, err := p.updateEstimators(rule, reg, prices)
	if err != nil {
		return nil, fmt.Errorf("updating estimators: %w", err)
	}
	input.PrevWeights = fixedpoint.Copy(prevWeights)
	input.Prices = fixedpoint.Copy(prices)
	input.Parameters = reg.Parameters

	// --- 3. Raw proposal ---
	raw, err := rule.ComputeRawProposal(input)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", rule.Name(), err)
	}

	// --- 4. Guard rails ---
	guarded, err := guardrail.Apply(prevWeights, raw, guardrail.Config{
		EpsilonMax:        reg.EpsilonMax,
		AbsoluteGuardRail: reg.AbsoluteGuardRail,
		Mode:              p.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("guard rails: %w", err)
	}

	return &Result{Raw: raw, Guarded: guarded, Input: input}, nil
}

func (p Pipeline) updateEstimators(rule Rule, reg types.PoolRegistration, prices []sdkmath.LegacyDec) (ProposalInput, error) {
	var input ProposalInput
	needs := rule.Needs()
	pool := reg.Pool

	ma := estimator.MovingAverage{Ledger: p.Ledger}
	prevAvg, err := ma.Read(pool)
	if err != nil {
		return input, err
	}
	if len(prevAvg) == 0 && needs.PrevMovingAverage {
		// a pool without history starts from the current prices rather than failing
		if err := ma.Set(pool, prices); err != nil {
			return input, err
		}
		prevAvg = fixedpoint.Copy(prices)
	}
	input.PrevMovingAverages = prevAvg

	// these read avg(t-1) and must run before the moving average moves
	if needs.Gradient {
		if input.Gradients, err = (estimator.Gradient{Ledger: p.Ledger}).Update(pool, prices, reg.Lambdas); err != nil {
			return input, err
		}
	}
	if needs.Variance {
		if input.Variances, err = (estimator.Variance{Ledger: p.Ledger}).Update(pool, prices, reg.Lambdas); err != nil {
			return input, err
		}
	}
	if needs.Covariance {
		if input.Covariances, err = (estimator.Covariance{Ledger: p.Ledger}).Update(pool, prices, reg.Lambdas); err != nil {
			return input, err
		}
	}
	if needs.ShortMovingAverage {
		shortLambdas, ok := reg.Parameters.Row(ParamShortLambda)
		if !ok {
			return input, fmt.Errorf("%w: %s", types.ErrParameterNotFound, ParamShortLambda)
		}
		if input.ShortMovingAverages, err = (estimator.ShortMovingAverage{Ledger: p.Ledger}).Update(pool, prices, shortLambdas); err != nil {
			return input, err
		}
	}

	if input.MovingAverages, err = ma.Update(pool, prices, reg.Lambdas); err != nil {
		return input, err
	}
	return input, nil
}
