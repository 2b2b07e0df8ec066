package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloat64ToSDKInt(t *testing.T) {
	v, err := Float64ToSDKInt(64123.45, 8)
	require.NoError(t, err)
	assert.Equal(t, "6412345000000", v.String())

	_, err = Float64ToSDKInt(-1, 8)
	assert.ErrorIs(t, err, ErrAmountNegative)

	_, err = Float64ToSDKInt(1, 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestParseDecs(t *testing.T) {
	out, err := ParseDecs([]string{"0.5", " 1.25 "})
	require.NoError(t, err)
	assert.Equal(t, []string{"0.500000000000000000", "1.250000000000000000"}, DecStrings(out))

	_, err = ParseDecs([]string{"abc"})
	assert.ErrorIs(t, err, ErrConversionFailed)

	f, err := DecToFloat64(sdkmath.LegacyMustNewDecFromStr("0.25"))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, f, 1e-12)
}
