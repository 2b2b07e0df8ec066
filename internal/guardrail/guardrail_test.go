package guardrail

import (
	"fmt"
	"math/rand"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/tfmm/internal/fixedpoint"
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

func TestTwoAssetScenarios(t *testing.T) {
	for _, mode := range []Mode{ModeScalar, ModePerAsset} {
		cfg := Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.1"), Mode: mode}
		t.Run(mode.String(), func(t *testing.T) {
			out, err := Apply(decs("0.5", "0.5"), decs("0.7", "0.3"), cfg)
			require.NoError(t, err)
			assert.Equal(t, strs(decs("0.6", "0.4")), strs(out))

			// the epsilon step binds before the absolute rail is reached
			out, err = Apply(decs("0.5", "0.5"), decs("0.95", "0.05"), cfg)
			require.NoError(t, err)
			assert.Equal(t, strs(decs("0.6", "0.4")), strs(out))
		})
	}
}

func TestSmallChangesPassThrough(t *testing.T) {
	cfg := Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.05")}
	out, err := Apply(decs("0.3", "0.3", "0.4"), decs("0.32", "0.29", "0.39"), cfg)
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.32", "0.29", "0.39")), strs(out))
}

func TestScalarModeKeepsDirection(t *testing.T) {
	cfg := Config{EpsilonMax: dec("0.05"), AbsoluteGuardRail: dec("0.01"), Mode: ModeScalar}
	out, err := Apply(decs("0.4", "0.3", "0.3"), decs("0.6", "0.2", "0.2"), cfg)
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.45", "0.275", "0.275")), strs(out))
}

func TestPerAssetModeRenormalizes(t *testing.T) {
	cfg := Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.05"), Mode: ModePerAsset}
	out, err := Apply(decs("0.4", "0.3", "0.3"), decs("0.7", "0.25", "0.05"), cfg)
	require.NoError(t, err)

	assert.True(t, fixedpoint.Sum(out).Equal(fixedpoint.One()))
	prev := decs("0.4", "0.3", "0.3")
	for i := range out {
		assert.True(t, out[i].Sub(prev[i]).Abs().LTE(dec("0.1")), "asset %d moved %s", i, out[i].Sub(prev[i]))
	}
	assert.Equal(t, "0.500000000000000000", out[0].String())
}

func TestAbsoluteClampRedistributes(t *testing.T) {
	// previous weights already sit outside the rail; the step limit cannot be honoured
	cfg := Config{EpsilonMax: dec("0.01"), AbsoluteGuardRail: dec("0.2")}
	out, err := Apply(decs("0.9", "0.05", "0.05"), decs("0.9", "0.05", "0.05"), cfg)
	require.NoError(t, err)
	assert.True(t, fixedpoint.Sum(out).Equal(fixedpoint.One()))
	for _, w := range out {
		assert.True(t, w.GTE(dec("0.2")) && w.LTE(dec("0.8")), "weight %s", w)
	}
	assert.Equal(t, "0.600000000000000000", out[0].String())
}

func TestPerAssetRailClampKeepsStepLimit(t *testing.T) {
	// assets 0 and 1 are raised to the rail and must still absorb the residual, otherwise
	// asset 2 is pushed past epsilon
	cfg := Config{EpsilonMax: dec("0.2803"), AbsoluteGuardRail: dec("0.0665"), Mode: ModePerAsset}
	prev := decs("0.1807", "0.2505", "0.5688")
	out, err := Apply(prev, decs("-0.1685", "-0.1850", "1.3535"), cfg)
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.07545", "0.07545", "0.8491")), strs(out))
	for i := range out {
		assert.True(t, out[i].Sub(prev[i]).Abs().LTE(cfg.EpsilonMax), "asset %d moved %s", i, out[i].Sub(prev[i]))
	}
}

func TestBoundsAreInclusive(t *testing.T) {
	cfg := Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.1")}
	out, err := Apply(decs("0.85", "0.15"), decs("0.9", "0.1"), cfg)
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.9", "0.1")), strs(out))
}

func TestAllPinnedAtRail(t *testing.T) {
	cfg := Config{EpsilonMax: dec("0.5"), AbsoluteGuardRail: dec("0.25")}
	out, err := Apply(decs("0.25", "0.25", "0.25", "0.25"), decs("0.7", "0.1", "0.1", "0.1"), cfg)
	require.NoError(t, err)
	assert.Equal(t, strs(decs("0.25", "0.25", "0.25", "0.25")), strs(out))
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		n    int
	}{
		{"zero epsilon", Config{EpsilonMax: dec("0"), AbsoluteGuardRail: dec("0.1")}, 2},
		{"negative rail", Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("-0.1")}, 2},
		{"rail at half", Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.5")}, 2},
		{"rails exceed one", Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.3")}, 4},
		{"single asset", Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.1")}, 1},
		{"unset", Config{}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate(tc.n)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, types.ErrConfiguration)
		})
	}
	assert.NoError(t, Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.25")}.Validate(4))
}

func TestDimensionMismatch(t *testing.T) {
	cfg := Config{EpsilonMax: dec("0.1"), AbsoluteGuardRail: dec("0.1")}
	_, err := Apply(decs("0.5", "0.5"), decs("0.3", "0.3", "0.4"), cfg)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.ErrorIs(t, err, types.ErrInvariant)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("per_asset")
	require.NoError(t, err)
	assert.Equal(t, ModePerAsset, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeScalar, m)
	_, err = ParseMode("global")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// randomWeights returns n positive weights that sum to exactly one.
func randomWeights(r *rand.Rand, n int) []sdkmath.LegacyDec {
	raw := make([]int64, n)
	var total int64
	for i := range raw {
		raw[i] = r.Int63n(1_000_000) + 1
		total += raw[i]
	}
	out := make([]sdkmath.LegacyDec, n)
	sum := fixedpoint.Zero()
	for i := 0; i < n-1; i++ {
		out[i] = sdkmath.LegacyNewDec(raw[i]).QuoInt64(total)
		sum = sum.Add(out[i])
	}
	out[n-1] = fixedpoint.One().Sub(sum)
	return out
}

func TestGuardedOutputProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iteration := 0; iteration < 500; iteration++ {
		n := 2 + r.Intn(7)
		railPercent := r.Int63n(int64(90/n) + 1)
		cfg := Config{
			EpsilonMax:        sdkmath.LegacyNewDecWithPrec(r.Int63n(50)+1, 2),
			AbsoluteGuardRail: sdkmath.LegacyNewDecWithPrec(railPercent, 2),
			Mode:              Mode(r.Intn(2)),
		}
		prev := randomWeights(r, n)
		proposed := randomWeights(r, n)
		if r.Intn(2) == 0 {
			// rule-shaped proposals: a zero-sum step that may leave [0, 1]
			proposed = addZeroSumStep(r, prev)
		}

		t.Run(fmt.Sprintf("case_%d", iteration), func(t *testing.T) {
			out, err := Apply(prev, proposed, cfg)
			require.NoError(t, err, "prev %v proposed %v cfg %+v", strs(prev), strs(proposed), cfg)
			require.Len(t, out, n)
			assert.True(t, fixedpoint.Sum(out).Equal(fixedpoint.One()))
			for i, w := range out {
				assert.True(t, w.GTE(cfg.Lower()), "asset %d below rail: %s", i, w)
				assert.True(t, w.LTE(cfg.Upper()), "asset %d above rail: %s", i, w)
			}
			if !withinRails(prev, cfg) {
				return
			}
			for i := range out {
				step := out[i].Sub(prev[i]).Abs()
				assert.True(t, step.LTE(cfg.EpsilonMax), "asset %d moved %s, epsilon %s, prev %v proposed %v",
					i, step, cfg.EpsilonMax, strs(prev), strs(proposed))
			}
		})
	}
}

// addZeroSumStep moves prev by random deltas of up to one per asset that sum to zero.
func addZeroSumStep(r *rand.Rand, prev []sdkmath.LegacyDec) []sdkmath.LegacyDec {
	n := len(prev)
	out := make([]sdkmath.LegacyDec, n)
	total := fixedpoint.Zero()
	for i := 0; i < n-1; i++ {
		d := sdkmath.LegacyNewDecWithPrec(r.Int63n(2_000_001)-1_000_000, 6)
		out[i] = prev[i].Add(d)
		total = total.Add(d)
	}
	out[n-1] = prev[n-1].Sub(total)
	return out
}

func withinRails(weights []sdkmath.LegacyDec, cfg Config) bool {
	for _, w := range weights {
		if w.LT(cfg.Lower()) || w.GT(cfg.Upper()) {
			return false
		}
	}
	return true
}
