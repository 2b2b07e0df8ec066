package estimator

import (
	"bytes"
	"fmt"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

// assertDecs compares by value; big.Int internals differ between equal zeros.
func assertDecs(t *testing.T, expected, actual []sdkmath.LegacyDec, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, decStrings(expected), decStrings(actual), msgAndArgs...)
}

func assertMatrix(t *testing.T, expected, actual [][]sdkmath.LegacyDec) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		assertDecs(t, expected[i], actual[i], "row %d", i)
	}
}

func decStrings(values []sdkmath.LegacyDec) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.String()
	}
	return out
}

func testPool(t *testing.T, b byte) types.Address {
	addr, err := types.NewAddress("elys", bytes.Repeat([]byte{b}, 20))
	require.NoError(t, err)
	return addr
}

func TestNextMovingAverage(t *testing.T) {
	next, err := NextMovingAverage(decs("1", "10"), decs("2", "20"), decs("0.5"))
	require.NoError(t, err)
	assertDecs(t, decs("1.5", "15"), next)

	seeded, err := NextMovingAverage(nil, decs("3", "4"), decs("0.9"))
	require.NoError(t, err)
	assertDecs(t, decs("3", "4"), seeded)

	_, err = NextMovingAverage(decs("1", "2", "3"), decs("2", "20"), decs("0.5"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = NextMovingAverage(nil, decs("2", "0"), decs("0.5"))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestExpandLambdas(t *testing.T) {
	for _, bad := range []string{"0", "1", "-0.2", "1.5"} {
		_, err := ExpandLambdas(decs(bad), 2)
		assert.ErrorIs(t, err, ErrInvalidLambda, bad)
		assert.ErrorIs(t, err, types.ErrConfiguration)
	}
	_, err := ExpandLambdas(decs("0.5", "0.5"), 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	out, err := ExpandLambdas(decs("0.7"), 3)
	require.NoError(t, err)
	assertDecs(t, decs("0.7", "0.7", "0.7"), out)
}

func TestNextGradient(t *testing.T) {
	intermediate, gradient, err := NextGradient(decs("0"), decs("1"), decs("2"), decs("0.5"))
	require.NoError(t, err)
	assertDecs(t, decs("2"), intermediate)
	assertDecs(t, decs("0.5"), gradient)

	// second step decays the intermediate
	intermediate, _, err = NextGradient(intermediate, decs("1.5"), decs("1.5"), decs("0.5"))
	require.NoError(t, err)
	assertDecs(t, decs("1"), intermediate)
}

func TestNextVariance(t *testing.T) {
	intermediate, variance, err := NextVariance(nil, decs("1"), decs("2"), decs("0.5"))
	require.NoError(t, err)
	assertDecs(t, decs("0.5"), intermediate)
	assertDecs(t, decs("0.25"), variance)
}

func TestNextCovariance(t *testing.T) {
	intermediate, covariance, err := NextCovariance(nil, decs("1", "1"), decs("2", "3"), decs("0.5"))
	require.NoError(t, err)
	assertMatrix(t, [][]sdkmath.LegacyDec{decs("0.5", "1"), decs("1", "2")}, intermediate)
	assertMatrix(t, [][]sdkmath.LegacyDec{decs("0.25", "0.5"), decs("0.5", "1")}, covariance)

	_, _, err = NextCovariance([][]sdkmath.LegacyDec{decs("0", "0")}, decs("1", "1"), decs("2", "3"), decs("0.5"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	ragged := [][]sdkmath.LegacyDec{decs("0", "0"), decs("0")}
	_, _, err = NextCovariance(ragged, decs("1", "1"), decs("2", "3"), decs("0.5"))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

// Vector lambdas must be applied element-wise for every asset count, odd counts included.
func TestVectorLambdaDimensions(t *testing.T) {
	for n := 2; n <= 9; n++ {
		t.Run(fmt.Sprintf("%d_assets", n), func(t *testing.T) {
			prices := make([]sdkmath.LegacyDec, n)
			avg := make([]sdkmath.LegacyDec, n)
			lambdas := make([]sdkmath.LegacyDec, n)
			for i := 0; i < n; i++ {
				prices[i] = sdkmath.LegacyNewDec(int64(i + 2))
				avg[i] = sdkmath.LegacyNewDec(int64(i + 1))
				lambdas[i] = dec("0.5").Add(sdkmath.LegacyNewDecWithPrec(int64(i), 2))
			}

			gi, g, err := NextGradient(nil, avg, prices, lambdas)
			require.NoError(t, err)
			require.Len(t, gi, n)
			require.Len(t, g, n)

			// the last asset must use its own lambda rather than a neighbour's
			last := lambdas[n-1]
			oneMinus := sdkmath.LegacyOneDec().Sub(last)
			expected := sdkmath.LegacyOneDec().QuoTruncate(oneMinus)
			assert.True(t, expected.Equal(gi[n-1]), "expected %s got %s", expected, gi[n-1])

			vi, v, err := NextVariance(nil, avg, prices, lambdas)
			require.NoError(t, err)
			require.Len(t, vi, n)
			require.Len(t, v, n)

			ci, c, err := NextCovariance(nil, avg, prices, lambdas)
			require.NoError(t, err)
			require.NoError(t, CheckSquare(ci, n))
			require.NoError(t, CheckSquare(c, n))
			for i := 0; i < n; i++ {
				assert.True(t, v[i].Equal(c[i][i]), "diagonal %d", i)
			}
		})
	}
}

func TestEstimatorsOnLedger(t *testing.T) {
	ledger := NewMemoryLedger()
	pool := testPool(t, 1)
	lambdas := decs("0.5")

	ma := MovingAverage{Ledger: ledger}
	grad := Gradient{Ledger: ledger}
	variance := Variance{Ledger: ledger}

	require.NoError(t, ma.Set(pool, decs("1", "1")))

	// gradient and variance see avg(t-1) because they run first
	g, err := grad.Update(pool, decs("2", "1"), lambdas)
	require.NoError(t, err)
	assertDecs(t, decs("0.5", "0"), g)

	v, err := variance.Update(pool, decs("2", "1"), lambdas)
	require.NoError(t, err)
	assertDecs(t, decs("0.25", "0"), v)

	avg, err := ma.Update(pool, decs("2", "1"), lambdas)
	require.NoError(t, err)
	assertDecs(t, decs("1.5", "1"), avg)

	read, err := ma.Read(pool)
	require.NoError(t, err)
	assertDecs(t, avg, read)

	visible, err := variance.Read(pool, lambdas)
	require.NoError(t, err)
	assertDecs(t, v, visible)

	cov := Covariance{Ledger: ledger}
	empty, err := cov.Read(pool, lambdas)
	require.NoError(t, err)
	assert.Nil(t, empty)

	c, err := cov.Update(pool, decs("3", "1"), lambdas)
	require.NoError(t, err)
	visibleCov, err := cov.Read(pool, lambdas)
	require.NoError(t, err)
	assertMatrix(t, c, visibleCov)

	assert.ErrorIs(t, cov.Set(pool, [][]sdkmath.LegacyDec{decs("1", "2")}), ErrDimensionMismatch)
}

func TestStagingDefersWrites(t *testing.T) {
	base := NewMemoryLedger()
	pool := testPool(t, 2)
	require.NoError(t, base.Save(pool, types.EstimatorState{MovingAverages: decs("1")}))

	staging := NewStaging(base)
	_, err := MovingAverage{Ledger: staging}.Update(pool, decs("3"), decs("0.5"))
	require.NoError(t, err)

	stored, err := base.Load(pool)
	require.NoError(t, err)
	assertDecs(t, decs("1"), stored.MovingAverages)

	pending, ok := staging.Pending(pool)
	require.True(t, ok)
	assertDecs(t, decs("2"), pending.MovingAverages)

	require.NoError(t, staging.Flush())
	stored, err = base.Load(pool)
	require.NoError(t, err)
	assertDecs(t, decs("2"), stored.MovingAverages)
}

func TestPackRoundTrip(t *testing.T) {
	values := decs("0", "1", "-1", "0.000000000000000001", "-0.000000000000000001",
		"123456789.123456789123456789", "-98765.4321")
	packed, err := Pack(values)
	require.NoError(t, err)
	assert.Len(t, packed, len(values)*PackedWidth)

	unpacked, err := Unpack(packed)
	require.NoError(t, err)
	assertDecs(t, values, unpacked)

	matrix := [][]sdkmath.LegacyDec{decs("0.25", "-0.5"), decs("-0.5", "1")}
	packedMatrix, err := PackMatrix(matrix)
	require.NoError(t, err)
	unpackedMatrix, err := UnpackMatrix(packedMatrix)
	require.NoError(t, err)
	assertMatrix(t, matrix, unpackedMatrix)
}

func TestPackRejectsOutOfRange(t *testing.T) {
	// 2^127 atto units is just past the int128 range
	tooLarge := dec("170141183460469231731.687303715884105728")
	_, err := Pack([]sdkmath.LegacyDec{tooLarge})
	assert.ErrorIs(t, err, ErrPackOverflow)

	largest := dec("170141183460469231731.687303715884105727")
	packed, err := Pack([]sdkmath.LegacyDec{largest, largest.Neg().Sub(sdkmath.LegacySmallestDec())})
	require.NoError(t, err)
	unpacked, err := Unpack(packed)
	require.NoError(t, err)
	assert.True(t, largest.Equal(unpacked[0]))

	_, err = Unpack(make([]byte, 17))
	assert.ErrorIs(t, err, ErrCorruptPacking)

	_, err = UnpackMatrix(make([]byte, 3*PackedWidth))
	assert.ErrorIs(t, err, ErrCorruptPacking)
}
