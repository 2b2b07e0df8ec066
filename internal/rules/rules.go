/*
This file contains the rule contract. A rule only supplies the raw proposal of one update;
estimator updates and guard rails are run around it by the Pipeline.

Every momentum-family rule computes a per-asset signal, subtracts a cross-asset
normalization term and adds kappa times the difference to the previous weight, so the
deltas sum to zero before guard-railing.
*/

package rules

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

var (
	ErrUnknownRule       = types.NewClassError(types.ErrConfiguration, "unknown update rule")
	ErrMissingInput      = types.NewClassError(types.ErrInvariant, "rule input missing")
	ErrDimensionMismatch = types.NewClassError(types.ErrInvariant, "rule input dimension mismatch")
)

// Parameter row names.
const (
	ParamKappa          = "kappa"
	ParamUseRawPrice    = "useRawPrice"
	ParamShortLambda    = "shortLambda"
	ParamWidth          = "width"
	ParamAmplitude      = "amplitude"
	ParamExponents      = "exponents"
	ParamPowerQ         = "q"
	ParamMixingVariance = "mixingVariance"
)

// Needs declares the estimator outputs a rule consumes.
type Needs struct {
	Gradient           bool
	Variance           bool
	Covariance         bool
	ShortMovingAverage bool
	// PrevMovingAverage asks the pipeline to seed the moving average from current prices
	// when the pool has no history yet.
	PrevMovingAverage bool
}

// ProposalInput is everything a rule may read when proposing weights.
type ProposalInput struct {
	PrevWeights         []sdkmath.LegacyDec
	Prices              []sdkmath.LegacyDec
	PrevMovingAverages  []sdkmath.LegacyDec
	MovingAverages      []sdkmath.LegacyDec
	ShortMovingAverages []sdkmath.LegacyDec
	Gradients           []sdkmath.LegacyDec
	Variances           []sdkmath.LegacyDec
	Covariances         [][]sdkmath.LegacyDec
	Parameters          types.RuleParameters
}

// NumAssets is the size of the pool the input describes.
func (in ProposalInput) NumAssets() int { return len(in.PrevWeights) }

// Rule is one weight update strategy.
type Rule interface {
	Name() string
	Needs() Needs
	ValidateParameters(params types.RuleParameters, numAssets int) bool
	ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error)
}

var registry = map[string]func() Rule{
	MomentumName:           func() Rule { return Momentum{} },
	AntiMomentumName:       func() Rule { return AntiMomentum{} },
	DifferenceMomentumName: func() Rule { return DifferenceMomentum{} },
	ChannelFollowingName:   func() Rule { return ChannelFollowing{} },
	PowerChannelName:       func() Rule { return PowerChannel{} },
	MinimumVarianceName:    func() Rule { return MinimumVariance{} },
}

// NewRule returns the rule registered under name.
func NewRule(name string) (Rule, error) {
	constructor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return constructor(), nil
}

// Names lists every known rule.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// positiveRow checks that a row exists, has 1 or n entries and every entry is positive.
func positiveRow(params types.RuleParameters, name string, n int) bool {
	values, err := params.Vector(name, n)
	if err != nil {
		return false
	}
	for _, v := range values {
		if v.IsNil() || !v.IsPositive() {
			return false
		}
	}
	return true
}

// maxExponent caps exponent rows so a validated registration cannot raise a signal out of
// the fixed-point range.
var maxExponent = sdkmath.LegacyNewDec(16)

// exponentRow is positiveRow with every entry at most maxExponent.
func exponentRow(params types.RuleParameters, name string, n int) bool {
	if !positiveRow(params, name, n) {
		return false
	}
	values, _ := params.Vector(name, n)
	for _, v := range values {
		if v.GT(maxExponent) {
			return false
		}
	}
	return true
}

func checkInput(in ProposalInput, vectors map[string][]sdkmath.LegacyDec) error {
	n := in.NumAssets()
	if n == 0 {
		return fmt.Errorf("%w: previous weights", ErrMissingInput)
	}
	for name, v := range vectors {
		if v == nil {
			return fmt.Errorf("%w: %s", ErrMissingInput, name)
		}
		if len(v) != n {
			return fmt.Errorf("%w: %s has %d entries for %d assets", ErrDimensionMismatch, name, len(v), n)
		}
	}
	return nil
}

// applySignal returns prev + direction * kappa * (signal - norm). With a scalar kappa norm
// is the mean signal, with a vector kappa it is the kappa-weighted mean.
func applySignal(prev, signal []sdkmath.LegacyDec, params types.RuleParameters, direction int64) ([]sdkmath.LegacyDec, error) {
	n := len(prev)
	kappa, err := params.Vector(ParamKappa, n)
	if err != nil {
		return nil, err
	}

	var norm sdkmath.LegacyDec
	if params.IsScalar(ParamKappa) {
		if norm, err = fixedpoint.Mean(signal); err != nil {
			return nil, err
		}
	} else {
		weighted := fixedpoint.Zero()
		for i := range signal {
			term, err := fixedpoint.MulChecked(kappa[i], signal[i])
			if err != nil {
				return nil, err
			}
			weighted = weighted.Add(term)
		}
		if norm, err = fixedpoint.Quo(weighted, fixedpoint.Sum(kappa)); err != nil {
			return nil, err
		}
	}

	out := make([]sdkmath.LegacyDec, n)
	for i := range prev {
		delta, err := fixedpoint.MulChecked(kappa[i], signal[i].Sub(norm))
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		out[i] = prev[i].Add(delta.MulInt64(direction))
	}
	return out, nil
}

// normalizedGradient divides each gradient by the denominator (moving average or price).
func normalizedGradient(gradients, denominators []sdkmath.LegacyDec) ([]sdkmath.LegacyDec, error) {
	out := make([]sdkmath.LegacyDec, len(gradients))
	for i := range gradients {
		v, err := fixedpoint.Quo(gradients[i], denominators[i])
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// signalDenominators returns the raw prices when the useRawPrice row is set to one and the
// previous moving averages otherwise.
func signalDenominators(in ProposalInput) []sdkmath.LegacyDec {
	if raw, err := in.Parameters.Scalar(ParamUseRawPrice); err == nil && raw.Equal(fixedpoint.One()) {
		return in.Prices
	}
	return in.PrevMovingAverages
}

func validUseRawPrice(params types.RuleParameters) bool {
	if !params.Has(ParamUseRawPrice) {
		return true
	}
	v, err := params.Scalar(ParamUseRawPrice)
	return err == nil && (v.IsZero() || v.Equal(fixedpoint.One()))
}
