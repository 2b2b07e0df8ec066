package rules

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/types"
)

const (
	MomentumName           = "momentum"
	AntiMomentumName       = "anti_momentum"
	DifferenceMomentumName = "difference_momentum"
)

// Momentum moves weight towards assets whose price is rising relative to the rest.
type Momentum struct{}

func (Momentum) Name() string { return MomentumName }

func (Momentum) Needs() Needs {
	return Needs{Gradient: true, PrevMovingAverage: true}
}

func (Momentum) ValidateParameters(params types.RuleParameters, numAssets int) bool {
	return positiveRow(params, ParamKappa, numAssets) && validUseRawPrice(params)
}

func (Momentum) ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	signal, err := momentumSignal(in)
	if err != nil {
		return nil, err
	}
	return applySignal(in.PrevWeights, signal, in.Parameters, 1)
}

// AntiMomentum moves weight away from assets whose price is rising, betting on mean
// reversion.
type AntiMomentum struct{}

func (AntiMomentum) Name() string { return AntiMomentumName }

func (AntiMomentum) Needs() Needs {
	return Needs{Gradient: true, PrevMovingAverage: true}
}

func (AntiMomentum) ValidateParameters(params types.RuleParameters, numAssets int) bool {
	return positiveRow(params, ParamKappa, numAssets) && validUseRawPrice(params)
}

func (AntiMomentum) ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	signal, err := momentumSignal(in)
	if err != nil {
		return nil, err
	}
	return applySignal(in.PrevWeights, signal, in.Parameters, -1)
}

func momentumSignal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	denominators := signalDenominators(in)
	if err := checkInput(in, map[string][]sdkmath.LegacyDec{
		"gradients":    in.Gradients,
		"denominators": denominators,
	}); err != nil {
		return nil, err
	}
	return normalizedGradient(in.Gradients, denominators)
}

// DifferenceMomentum uses the gap between a short and a long moving average as its signal:
// (short - long) / long.
type DifferenceMomentum struct{}

func (DifferenceMomentum) Name() string { return DifferenceMomentumName }

func (DifferenceMomentum) Needs() Needs {
	return Needs{ShortMovingAverage: true, PrevMovingAverage: true}
}

func (DifferenceMomentum) ValidateParameters(params types.RuleParameters, numAssets int) bool {
	if !positiveRow(params, ParamKappa, numAssets) {
		return false
	}
	short, ok := params.Row(ParamShortLambda)
	if !ok {
		return false
	}
	_, err := estimator.ExpandLambdas(short, numAssets)
	return err == nil
}

func (DifferenceMomentum) ComputeRawProposal(in ProposalInput) ([]sdkmath.LegacyDec, error) {
	if err := checkInput(in, map[string][]sdkmath.LegacyDec{
		"moving averages":       in.MovingAverages,
		"short moving averages": in.ShortMovingAverages,
	}); err != nil {
		return nil, err
	}
	signal := make([]sdkmath.LegacyDec, in.NumAssets())
	for i := range signal {
		v, err := fixedpoint.Quo(in.ShortMovingAverages[i].Sub(in.MovingAverages[i]), in.MovingAverages[i])
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", i, err)
		}
		signal[i] = v
	}
	return applySignal(in.PrevWeights, signal, in.Parameters, 1)
}
