package rules

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

const MinimumVarianceName = "minimum_variance"

// MinimumVariance mixes the previous weights with inverse-variance weights:
// w = mix * prev + (1 - mix) * (1/var_i) / sum(1/var_j).
type MinimumVariance struct{}

func (MinimumVariance) Name() string { return MinimumVarianceName }

func (MinimumVariance) Needs() Needs {
	return Needs{Variance: true, PrevMovingAverage: true}
}

func (MinimumVariance) ValidateParameters(params types.RuleParameters, numAssets int) bool {
	mix, err := params.Scalar(ParamMixingVariance)
	if err != nil {
		return false
	}
	return !mix.IsNil() && !mix.IsNegative() && mix.LT(fixedpoint.One())
}

func (MinimumVariance) ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	if err := checkInput(in, map[string][]sdkmath.LegacyDec{"variances": in.Variances}); err != nil {
		return nil, err
	}
	mix, err := in.Parameters.Scalar(ParamMixingVariance)
	if err != nil {
		return nil, err
	}

	// without a positive variance for every asset there is nothing to weigh by
	inverse := make([]sdkmath.LegacyDec, len(in.Variances))
	for i, v := range in.Variances {
		if !v.IsPositive() {
			return fixedpoint.Copy(in.PrevWeights), nil
		}
		if inverse[i], err = fixedpoint.Quo(fixedpoint.One(), v); err != nil {
			return nil, err
		}
	}
	total := fixedpoint.Sum(inverse)
	if !total.IsPositive() {
		return fixedpoint.Copy(in.PrevWeights), nil
	}

	out := make([]sdkmath.LegacyDec, len(inverse))
	rest := fixedpoint.One().Sub(mix)
	for i := range inverse {
		share, err := fixedpoint.Quo(inverse[i], total)
		if err != nil {
			return nil, err
		}
		out[i] = fixedpoint.Mul(mix, in.PrevWeights[i]).Add(fixedpoint.Mul(rest, share))
	}
	return out, nil
}
