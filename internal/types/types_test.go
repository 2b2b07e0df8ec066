package types

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("elys1qyqszqgpqyqszqgpqyqszqgpqyqszqgpjnceq7")
	require.NoError(t, err)

	built, err := NewAddress("elys", bytes.Repeat([]byte{1}, 20))
	require.NoError(t, err)
	assert.Equal(t, built, addr)

	_, err = ParseAddress("elys1qyqszqgpqyqszqgpqyqszqgpqyqszqgpjnceq8")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = ParseAddress("  ")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestClassErrors(t *testing.T) {
	wrapped := fmt.Errorf("registering pool: %w", ErrParameterShape)
	assert.True(t, errors.Is(wrapped, ErrParameterShape))
	assert.True(t, errors.Is(wrapped, ErrConfiguration))
	assert.False(t, errors.Is(wrapped, ErrTiming))
}

func TestRuleParameters(t *testing.T) {
	params := RuleParameters{
		{Name: "kappa", Values: []math.LegacyDec{math.LegacyMustNewDecFromStr("0.5")}},
		{Name: "width", Values: []math.LegacyDec{math.LegacyOneDec(), math.LegacyNewDec(2), math.LegacyNewDec(3)}},
	}

	kappa, err := params.Vector("kappa", 3)
	require.NoError(t, err)
	require.Len(t, kappa, 3)
	for _, k := range kappa {
		assert.Equal(t, math.LegacyMustNewDecFromStr("0.5"), k)
	}

	_, err = params.Vector("width", 2)
	assert.ErrorIs(t, err, ErrParameterShape)

	_, err = params.Scalar("width")
	assert.ErrorIs(t, err, ErrParameterShape)

	_, err = params.Scalar("amplitude")
	assert.ErrorIs(t, err, ErrParameterNotFound)

	assert.True(t, params.IsScalar("kappa"))
	assert.False(t, params.IsScalar("width"))

	clone := params.Clone()
	clone[0].Values[0] = math.LegacyOneDec()
	assert.Equal(t, math.LegacyMustNewDecFromStr("0.5"), params[0].Values[0])
}

func TestRegistrationReferences(t *testing.T) {
	reg := PoolRegistration{Oracles: [][]string{{"btc-usd", "btc-usd-backup"}, {"eth-usd"}}}

	referenced, sole := reg.References("btc-usd")
	assert.True(t, referenced)
	assert.False(t, sole)

	referenced, sole = reg.References("eth-usd")
	assert.True(t, referenced)
	assert.True(t, sole)

	referenced, _ = reg.References("sol-usd")
	assert.False(t, referenced)

	assert.Equal(t, []string{"btc-usd", "eth-usd"}, reg.PrimaryOracles())
	assert.Equal(t, 2, reg.NumAssets())

	clone := reg.Clone()
	clone.Oracles[0][0] = "changed"
	assert.Equal(t, "btc-usd", reg.Oracles[0][0])
}
