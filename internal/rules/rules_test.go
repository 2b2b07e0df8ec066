package rules

import (
	"bytes"
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/tfmm/internal/estimator"
	"github.com/elys-network/tfmm/internal/fixedpoint"
	"github.com/elys-network/tfmm/internal/guardrail"
	"github.com/elys-network/tfmm/internal/types"
)

func dec(s string) sdkmath.LegacyDec { return sdkmath.LegacyMustNewDecFromStr(s) }

func decs(values ...string) []sdkmath.LegacyDec {
	out := make([]sdkmath.LegacyDec, len(values))
	for i, v := range values {
		out[i] = dec(v)
	}
	return out
}

func strs(values []sdkmath.LegacyDec) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func row(name string, values ...string) types.ParameterRow {
	return types.ParameterRow{Name: name, Values: decs(values...)}
}

func registration(t *testing.T, rule string, lambdas []sdkmath.LegacyDec, params ...types.ParameterRow) types.PoolRegistration {
	pool, err := types.NewAddress("elys", bytes.Repeat([]byte{7}, 20))
	require.NoError(t, err)
	return types.PoolRegistration{
		Pool:              pool,
		Rule:              rule,
		Oracles:           [][]string{{"a"}, {"b"}},
		UpdateInterval:    60,
		Lambdas:           lambdas,
		EpsilonMax:        dec("0.1"),
		AbsoluteGuardRail: dec("0.1"),
		Parameters:        params,
	}
}

func runPipeline(t *testing.T, reg types.PoolRegistration, ledger estimator.Ledger, prices []sdkmath.LegacyDec) *Result {
	t.Helper()
	rule, err := NewRule(reg.Rule)
	require.NoError(t, err)
	require.True(t, rule.ValidateParameters(reg.Parameters, reg.NumAssets()))
	result, err := Pipeline{Ledger: ledger, Mode: guardrail.ModeScalar}.
		CalculateNewWeights(context.Background(), rule, reg, decs("0.5", "0.5"), prices)
	require.NoError(t, err)
	return result
}

func TestMomentum(t *testing.T) {
	ledger := estimator.NewMemoryLedger()
	reg := registration(t, MomentumName, decs("0.5"), row(ParamKappa, "0.2"))
	require.NoError(t, ledger.Save(reg.Pool, types.EstimatorState{MovingAverages: decs("1", "1")}))

	result := runPipeline(t, reg, ledger, decs("2", "1"))
	assert.Equal(t, strs(decs("0.5", "0")), strs(result.Input.Gradients))
	assert.Equal(t, strs(decs("0.55", "0.45")), strs(result.Raw))
	assert.Equal(t, strs(decs("0.55", "0.45")), strs(result.Guarded))

	state, err := ledger.Load(reg.Pool)
	require.NoError(t, err)
	assert.Equal(t, strs(decs("1.5", "1")), strs(state.MovingAverages))
	assert.Equal(t, strs(decs("2", "0")), strs(state.GradientIntermediate))
}

func TestMomentumVectorKappa(t *testing.T) {
	ledger := estimator.NewMemoryLedger()
	reg := registration(t, MomentumName, decs("0.5", "0.5"), row(ParamKappa, "0.2", "0.6"))
	require.NoError(t, ledger.Save(reg.Pool, types.EstimatorState{MovingAverages: decs("1", "1")}))

	result := runPipeline(t, reg, ledger, decs("2", "1"))
	assert.Equal(t, strs(decs("0.575", "0.425")), strs(result.Raw))
}

func TestAntiMomentum(t *testing.T) {
	ledger := estimator.NewMemoryLedger()
	reg := registration(t, AntiMomentumName, decs("0.5"), row(ParamKappa, "0.2"))
	require.NoError(t, ledger.Save(reg.Pool, types.EstimatorState{MovingAverages: decs("1", "1")}))

	result := runPipeline(t, reg, ledger, decs("2", "1"))
	assert.Equal(t, strs(decs("0.45", "0.55")), strs(result.Guarded))
}

func TestDifferenceMomentum(t *testing.T) {
	ledger := estimator.NewMemoryLedger()
	reg := registration(t, DifferenceMomentumName, decs("0.8"), row(ParamKappa, "0.2"), row(ParamShortLambda, "0.2"))
	require.NoError(t, ledger.Save(reg.Pool, types.EstimatorState{
		MovingAverages:      decs("1", "1"),
		ShortMovingAverages: decs("1", "1"),
	}))

	result := runPipeline(t, reg, ledger, decs("2", "1"))
	assert.Equal(t, strs(decs("1.2", "1")), strs(result.Input.MovingAverages))
	assert.Equal(t, strs(decs("1.8", "1")), strs(result.Input.ShortMovingAverages))
	assert.Equal(t, strs(decs("0.55", "0.45")), strs(result.Guarded))
}

// A rule that needs the previous moving average must not fail on a pool without history.
func TestPipelineSeedsMissingMovingAverage(t *testing.T) {
	for _, name := range []string{MomentumName, ChannelFollowingName, PowerChannelName} {
		t.Run(name, func(t *testing.T) {
			ledger := estimator.NewMemoryLedger()
			reg := registration(t, name, decs("0.5"),
				row(ParamKappa, "0.2"), row(ParamWidth, "0.1"), row(ParamAmplitude, "1"),
				row(ParamExponents, "1"), row(ParamPowerQ, "2"))

			result := runPipeline(t, reg, ledger, decs("3", "7"))
			assert.Equal(t, strs(decs("3", "7")), strs(result.Input.PrevMovingAverages))
			assert.Equal(t, strs(decs("0.5", "0.5")), strs(result.Guarded))
		})
	}
}

func TestPipelineRejectsBadLambdaWithoutWriting(t *testing.T) {
	ledger := estimator.NewMemoryLedger()
	staging := estimator.NewStaging(ledger)
	reg := registration(t, MomentumName, decs("1.5"), row(ParamKappa, "0.2"))
	rule, err := NewRule(MomentumName)
	require.NoError(t, err)

	_, err = Pipeline{Ledger: staging}.CalculateNewWeights(context.Background(), rule, reg, decs("0.5", "0.5"), decs("1", "1"))
	assert.ErrorIs(t, err, estimator.ErrInvalidLambda)

	state, err := ledger.Load(reg.Pool)
	require.NoError(t, err)
	assert.Empty(t, state.MovingAverages)
}

func TestPipelineDimensionMismatch(t *testing.T) {
	reg := registration(t, MomentumName, decs("0.5"), row(ParamKappa, "0.2"))
	rule, err := NewRule(MomentumName)
	require.NoError(t, err)
	_, err = Pipeline{Ledger: estimator.NewMemoryLedger()}.CalculateNewWeights(context.Background(), rule, reg, decs("0.5", "0.5"), decs("1"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestChannelFollowing(t *testing.T) {
	params := types.RuleParameters{
		row(ParamKappa, "1"), row(ParamWidth, "0.1"), row(ParamAmplitude, "1"), row(ParamExponents, "1"),
	}
	rule := ChannelFollowing{}
	require.True(t, rule.ValidateParameters(params, 2))

	// inside the channel the rule mean-reverts
	small, err := rule.ComputeRawProposal(ProposalInput{
		PrevWeights:        decs("0.5", "0.5"),
		Prices:             decs("1", "1"),
		PrevMovingAverages: decs("1", "1"),
		Gradients:          decs("0.01", "-0.01"),
		Parameters:         params,
	})
	require.NoError(t, err)
	assert.True(t, small[0].LT(dec("0.5")))
	assert.True(t, small[1].GT(dec("0.5")))

	// far outside it the rule follows the trend
	large, err := rule.ComputeRawProposal(ProposalInput{
		PrevWeights:        decs("0.5", "0.5"),
		Prices:             decs("1", "1"),
		PrevMovingAverages: decs("1", "1"),
		Gradients:          decs("0.5", "-0.5"),
		Parameters:         params,
	})
	require.NoError(t, err)
	assert.True(t, large[0].GT(dec("0.5")), "got %s", large[0])
	assert.True(t, fixedpoint.Sum(large).Sub(fixedpoint.One()).Abs().LTE(dec("0.000000000000000010")))
}

func TestPowerChannel(t *testing.T) {
	params := types.RuleParameters{row(ParamKappa, "10"), row(ParamPowerQ, "2")}
	out, err := PowerChannel{}.ComputeRawProposal(ProposalInput{
		PrevWeights:        decs("0.5", "0.5"),
		Prices:             decs("1", "1"),
		PrevMovingAverages: decs("1", "1"),
		Gradients:          decs("0.04", "-0.04"),
		Parameters:         params,
	})
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.516", "0.484")), strs(out))
}

func TestPowerChannelOverflowIsAnError(t *testing.T) {
	assert.False(t, PowerChannel{}.ValidateParameters(types.RuleParameters{row(ParamKappa, "1"), row(ParamPowerQ, "40")}, 2))
	assert.False(t, ChannelFollowing{}.ValidateParameters(types.RuleParameters{
		row(ParamKappa, "1"), row(ParamWidth, "0.1"), row(ParamAmplitude, "1"), row(ParamExponents, "40"),
	}, 2))

	params := types.RuleParameters{row(ParamKappa, "1"), row(ParamPowerQ, "16")}
	require.True(t, PowerChannel{}.ValidateParameters(params, 2))
	_, err := PowerChannel{}.ComputeRawProposal(ProposalInput{
		PrevWeights:        decs("0.5", "0.5"),
		Prices:             decs("1", "1"),
		PrevMovingAverages: decs("0.000001", "0.000001"),
		Gradients:          decs("100000", "-100000"),
		Parameters:         params,
	})
	assert.ErrorIs(t, err, fixedpoint.ErrOverflow)
}

func TestUseRawPrice(t *testing.T) {
	params := types.RuleParameters{row(ParamKappa, "1"), row(ParamUseRawPrice, "1")}
	require.True(t, Momentum{}.ValidateParameters(params, 2))
	out, err := Momentum{}.ComputeRawProposal(ProposalInput{
		PrevWeights:        decs("0.5", "0.5"),
		Prices:             decs("2", "1"),
		PrevMovingAverages: decs("1", "1"),
		Gradients:          decs("0.2", "0"),
		Parameters:         params,
	})
	require.NoError(t, err)
	// signal 0.2 / 2 = 0.1 against the raw price
	assert.Equal(t, strs(decs("0.55", "0.45")), strs(out))

	assert.False(t, Momentum{}.ValidateParameters(types.RuleParameters{row(ParamKappa, "1"), row(ParamUseRawPrice, "2")}, 2))
}

func TestMinimumVariance(t *testing.T) {
	params := types.RuleParameters{row(ParamMixingVariance, "0.5")}
	out, err := MinimumVariance{}.ComputeRawProposal(ProposalInput{
		PrevWeights: decs("0.5", "0.5"),
		Variances:   decs("0.25", "1"),
		Parameters:  params,
	})
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.65", "0.35")), strs(out))

	unchanged, err := MinimumVariance{}.ComputeRawProposal(ProposalInput{
		PrevWeights: decs("0.3", "0.7"),
		Variances:   decs("0", "1"),
		Parameters:  params,
	})
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.3", "0.7")), strs(unchanged))
}

func TestValidateParameters(t *testing.T) {
	cases := []struct {
		name   string
		rule   string
		params types.RuleParameters
		valid  bool
	}{
		{"momentum ok", MomentumName, types.RuleParameters{row(ParamKappa, "0.1")}, true},
		{"momentum missing kappa", MomentumName, nil, false},
		{"momentum negative kappa", MomentumName, types.RuleParameters{row(ParamKappa, "-0.1")}, false},
		{"momentum wrong length", MomentumName, types.RuleParameters{row(ParamKappa, "0.1", "0.1", "0.1")}, false},
		{"difference without short lambda", DifferenceMomentumName, types.RuleParameters{row(ParamKappa, "0.1")}, false},
		{"difference bad short lambda", DifferenceMomentumName, types.RuleParameters{row(ParamKappa, "0.1"), row(ParamShortLambda, "1")}, false},
		{"channel missing width", ChannelFollowingName, types.RuleParameters{row(ParamKappa, "1"), row(ParamAmplitude, "1"), row(ParamExponents, "1")}, false},
		{"power ok", PowerChannelName, types.RuleParameters{row(ParamKappa, "1"), row(ParamPowerQ, "1.5")}, true},
		{"min variance ok", MinimumVarianceName, types.RuleParameters{row(ParamMixingVariance, "0")}, true},
		{"min variance mix one", MinimumVarianceName, types.RuleParameters{row(ParamMixingVariance, "1")}, false},
		{"min variance vector mix", MinimumVarianceName, types.RuleParameters{row(ParamMixingVariance, "0.1", "0.2")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule, err := NewRule(tc.rule)
			require.NoError(t, err)
			assert.Equal(t, tc.valid, rule.ValidateParameters(tc.params, 2))
		})
	}

	_, err := NewRule("martingale")
	assert.ErrorIs(t, err, ErrUnknownRule)
	assert.Len(t, Names(), 6)
}
