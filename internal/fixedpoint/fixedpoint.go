/*
This file contains the signed 18-decimal fixed-point helpers used by every stage of the
weight update pipeline.

All multiplication truncates the low 18 decimals and all division rounds toward zero.
The helpers wrap cosmossdk.io/math LegacyDec so that no caller reaches for the rounding
variants (Mul, Quo, Power) by accident.
*/

package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOverflow       = errors.New("fixed-point overflow")
	ErrDomain         = errors.New("argument outside function domain")
)

// Precision is the number of decimals carried by every value.
const Precision = sdkmath.LegacyPrecision

var (
	// ln2 truncated to 18 decimals
	ln2 = sdkmath.LegacyMustNewDecFromStr("0.693147180559945309")

	// exponents above this do not fit comfortably into a LegacyDec
	maxExpArgument = sdkmath.LegacyNewDec(130)
	// e^-42 is below one atto unit
	minExpArgument = sdkmath.LegacyNewDec(-42)

	oneAtto = new(big.Int).Exp(big.NewInt(10), big.NewInt(Precision), nil)
)

// maxAttoBits bounds the atto representation of checked results, well below the bit
// length at which LegacyDec arithmetic panics.
const maxAttoBits = 256

// Zero returns a fresh zero value.
func Zero() sdkmath.LegacyDec { return sdkmath.LegacyZeroDec() }

// One returns a fresh unit value.
func One() sdkmath.LegacyDec { return sdkmath.LegacyOneDec() }

// Mul multiplies and truncates the low 18 decimals.
func Mul(a, b sdkmath.LegacyDec) sdkmath.LegacyDec {
	return a.MulTruncate(b)
}

// MulChecked multiplies like Mul but returns ErrOverflow instead of panicking when the
// product is out of range.
func MulChecked(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	product := new(big.Int).Mul(a.BigInt(), b.BigInt())
	product.Quo(product, oneAtto)
	if product.BitLen() > maxAttoBits {
		return sdkmath.LegacyDec{}, fmt.Errorf("%s * %s: %w", a, b, ErrOverflow)
	}
	return sdkmath.LegacyNewDecFromBigIntWithPrec(product, Precision), nil
}

// Quo divides rounding toward zero.
func Quo(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if b.IsZero() {
		return sdkmath.LegacyDec{}, ErrDivisionByZero
	}
	quotient := new(big.Int).Mul(a.BigInt(), oneAtto)
	quotient.Quo(quotient, b.BigInt())
	if quotient.BitLen() > maxAttoBits {
		return sdkmath.LegacyDec{}, fmt.Errorf("%s / %s: %w", a, b, ErrOverflow)
	}
	return sdkmath.LegacyNewDecFromBigIntWithPrec(quotient, Precision), nil
}

// QuoInt64 divides by an integer rounding toward zero.
func QuoInt64(a sdkmath.LegacyDec, b int64) (sdkmath.LegacyDec, error) {
	if b == 0 {
		return sdkmath.LegacyDec{}, ErrDivisionByZero
	}
	return a.QuoInt64(b), nil
}

// Sign returns -1, 0 or 1.
func Sign(a sdkmath.LegacyDec) int {
	switch {
	case a.IsNegative():
		return -1
	case a.IsZero():
		return 0
	default:
		return 1
	}
}

// Sum adds all values exactly.
func Sum(values []sdkmath.LegacyDec) sdkmath.LegacyDec {
	total := Zero()
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Mean returns the arithmetic mean rounded toward zero.
func Mean(values []sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if len(values) == 0 {
		return sdkmath.LegacyDec{}, fmt.Errorf("mean of empty vector: %w", ErrDivisionByZero)
	}
	return Sum(values).QuoInt64(int64(len(values))), nil
}

// MaxAbs returns the largest absolute value of the vector.
func MaxAbs(values []sdkmath.LegacyDec) sdkmath.LegacyDec {
	max := Zero()
	for _, v := range values {
		if v.Abs().GT(max) {
			max = v.Abs()
		}
	}
	return max
}

// Copy returns a deep copy of a vector.
func Copy(values []sdkmath.LegacyDec) []sdkmath.LegacyDec {
	if values == nil {
		return nil
	}
	out := make([]sdkmath.LegacyDec, len(values))
	for i, v := range values {
		out[i] = v.Add(Zero())
	}
	return out
}

// CopyMatrix returns a deep copy of a matrix.
func CopyMatrix(m [][]sdkmath.LegacyDec) [][]sdkmath.LegacyDec {
	if m == nil {
		return nil
	}
	out := make([][]sdkmath.LegacyDec, len(m))
	for i, row := range m {
		out[i] = Copy(row)
	}
	return out
}

// Filled returns a vector of n copies of v.
func Filled(n int, v sdkmath.LegacyDec) []sdkmath.LegacyDec {
	out := make([]sdkmath.LegacyDec, n)
	for i := range out {
		out[i] = v.Add(Zero())
	}
	return out
}

// ZeroMatrix returns an n by n matrix of zeros.
func ZeroMatrix(n int) [][]sdkmath.LegacyDec {
	out := make([][]sdkmath.LegacyDec, n)
	for i := range out {
		out[i] = Filled(n, Zero())
	}
	return out
}

// Exp computes e^x.
//
// The argument is reduced to x = k*ln2 + r with r in [0, ln2), e^r is evaluated with a
// Taylor series and the result is shifted by 2^k in the atto representation.
func Exp(x sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if x.GT(maxExpArgument) {
		return sdkmath.LegacyDec{}, fmt.Errorf("exp(%s): %w", x, ErrOverflow)
	}
	if x.LT(minExpArgument) {
		return Zero(), nil
	}
	if x.IsZero() {
		return One(), nil
	}

	k := x.QuoTruncate(ln2).TruncateInt64()
	if x.IsNegative() && !x.Sub(ln2.MulInt64(k)).IsZero() {
		k--
	}
	r := x.Sub(ln2.MulInt64(k))

	sum := One()
	term := One()
	for i := int64(1); i < 64; i++ {
		term = term.MulTruncate(r).QuoInt64(i)
		if term.IsZero() {
			break
		}
		sum = sum.Add(term)
	}

	atto := sum.BigInt()
	if k >= 0 {
		atto.Lsh(atto, uint(k))
	} else {
		atto.Rsh(atto, uint(-k))
	}
	return sdkmath.LegacyNewDecFromBigIntWithPrec(atto, Precision), nil
}

// Ln computes the natural logarithm of a strictly positive value.
//
// The value is normalized to m * 2^k with m in [1, 2); ln(m) uses the series
// 2 * sum z^(2n+1) / (2n+1) with z = (m-1)/(m+1).
func Ln(x sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if !x.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("ln(%s): %w", x, ErrDomain)
	}

	m := x.BigInt()
	k := int64(m.BitLen() - oneAtto.BitLen())
	if k > 0 {
		m.Rsh(m, uint(k))
	} else if k < 0 {
		m.Lsh(m, uint(-k))
	}
	two := new(big.Int).Lsh(oneAtto, 1)
	for m.Cmp(oneAtto) < 0 {
		m.Lsh(m, 1)
		k--
	}
	for m.Cmp(two) >= 0 {
		m.Rsh(m, 1)
		k++
	}

	md := sdkmath.LegacyNewDecFromBigIntWithPrec(m, Precision)
	z := md.Sub(One()).QuoTruncate(md.Add(One()))
	z2 := z.MulTruncate(z)

	series := Zero()
	term := z
	for n := int64(0); !term.IsZero() && n < 128; n++ {
		series = series.Add(term.QuoInt64(2*n + 1))
		term = term.MulTruncate(z2)
	}

	return series.MulInt64(2).Add(ln2.MulInt64(k)), nil
}

// Pow computes x^y. Integer exponents use repeated truncating multiplication; any other
// exponent is evaluated as exp(y * ln x) and needs a positive base.
func Pow(x, y sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if y.IsZero() {
		return One(), nil
	}
	if x.IsZero() {
		if y.IsPositive() {
			return Zero(), nil
		}
		return sdkmath.LegacyDec{}, fmt.Errorf("pow(0, %s): %w", y, ErrDomain)
	}

	if y.IsInteger() && y.Abs().LTE(sdkmath.LegacyNewDec(256)) {
		n := y.Abs().TruncateInt64()
		result := One()
		base := x
		var err error
		for n > 0 {
			if n&1 == 1 {
				if result, err = MulChecked(result, base); err != nil {
					return sdkmath.LegacyDec{}, fmt.Errorf("pow(%s, %s): %w", x, y, ErrOverflow)
				}
			}
			n >>= 1
			if n > 0 {
				if base, err = MulChecked(base, base); err != nil {
					return sdkmath.LegacyDec{}, fmt.Errorf("pow(%s, %s): %w", x, y, ErrOverflow)
				}
			}
		}
		if y.IsNegative() {
			return Quo(One(), result)
		}
		return result, nil
	}

	if x.IsNegative() {
		return sdkmath.LegacyDec{}, fmt.Errorf("pow(%s, %s): %w", x, y, ErrDomain)
	}
	lnX, err := Ln(x)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	exponent, err := MulChecked(y, lnX)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return Exp(exponent)
}

// Sqrt computes the square root of a non-negative value.
func Sqrt(x sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if x.IsNegative() {
		return sdkmath.LegacyDec{}, fmt.Errorf("sqrt(%s): %w", x, ErrDomain)
	}
	if x.IsZero() {
		return Zero(), nil
	}
	// sqrt(a * 1e-18) in atto units is sqrt(a * 1e18)
	scaled := new(big.Int).Mul(x.BigInt(), oneAtto)
	return sdkmath.LegacyNewDecFromBigIntWithPrec(scaled.Sqrt(scaled), Precision), nil
}
