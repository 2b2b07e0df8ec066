package estimator

import (
	"errors"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
)

// PackedWidth is the number of bytes used per packed value.
const PackedWidth = 16

var (
	ErrPackOverflow   = errors.New("value does not fit into 128 bits")
	ErrCorruptPacking = errors.New("packed estimator data is corrupt")
)

var (
	two128    = new(big.Int).Lsh(big.NewInt(1), 128)
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Pack encodes each value as its atto integer in 128-bit big-endian two's complement.
func Pack(values []sdkmath.LegacyDec) ([]byte, error) {
	out := make([]byte, 0, len(values)*PackedWidth)
	for i, v := range values {
		atto := v.BigInt()
		if atto.Cmp(maxInt128) > 0 || atto.Cmp(minInt128) < 0 {
			return nil, fmt.Errorf("%w: index %d (%s)", ErrPackOverflow, i, v)
		}
		if atto.Sign() < 0 {
			atto.Add(atto, two128)
		}
		word := make([]byte, PackedWidth)
		atto.FillBytes(word)
		out = append(out, word...)
	}
	return out, nil
}

// Unpack reverses Pack.
func Unpack(data []byte) ([]sdkmath.LegacyDec, error) {
	if len(data)%PackedWidth != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCorruptPacking, len(data), PackedWidth)
	}
	out := make([]sdkmath.LegacyDec, 0, len(data)/PackedWidth)
	for off := 0; off < len(data); off += PackedWidth {
		atto := new(big.Int).SetBytes(data[off : off+PackedWidth])
		if atto.Cmp(maxInt128) > 0 {
			atto.Sub(atto, two128)
		}
		out = append(out, sdkmath.LegacyNewDecFromBigIntWithPrec(atto, fixedpoint.Precision))
	}
	return out, nil
}

// PackMatrix packs a square matrix row by row.
func PackMatrix(m [][]sdkmath.LegacyDec) ([]byte, error) {
	if err := CheckSquare(m, len(m)); err != nil {
		return nil, err
	}
	flat := make([]sdkmath.LegacyDec, 0, len(m)*len(m))
	for _, row := range m {
		flat = append(flat, row...)
	}
	return Pack(flat)
}

// UnpackMatrix reverses PackMatrix. The data must hold a perfect square number of values.
func UnpackMatrix(data []byte) ([][]sdkmath.LegacyDec, error) {
	flat, err := Unpack(data)
	if err != nil {
		return nil, err
	}
	n := 0
	for n*n < len(flat) {
		n++
	}
	if n*n != len(flat) {
		return nil, fmt.Errorf("%w: %d values do not form a square matrix", ErrCorruptPacking, len(flat))
	}
	if n == 0 {
		return nil, nil
	}
	out := make([][]sdkmath.LegacyDec, n)
	for i := range out {
		out[i] = flat[i*n : (i+1)*n]
	}
	return out, nil
}
