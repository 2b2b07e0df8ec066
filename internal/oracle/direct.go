package oracle

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
)

// Direct wraps one upstream feed and normalizes its answer to 18 decimals.
type Direct struct {
	id   string
	feed Feed
}

func NewDirect(id string, feed Feed) *Direct {
	return &Direct{id: id, feed: feed}
}

func (d *Direct) ID() string { return d.id }

func (d *Direct) Fetch(ctx context.Context) (Reading, error) {
	answer, decimals, updatedAt, err := d.feed.Latest(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("oracle %s: %w", d.id, err)
	}
	value, err := Normalize(answer, decimals)
	if err != nil {
		return Reading{}, fmt.Errorf("oracle %s: %w", d.id, err)
	}
	return Reading{Value: value, Timestamp: updatedAt}, nil
}

// Normalize scales a raw answer with the given decimals into an 18-decimal value.
func Normalize(answer sdkmath.Int, decimals uint8) (sdkmath.LegacyDec, error) {
	if answer.IsNil() || !answer.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: answer %v", ErrNoData, answer)
	}
	if decimals <= fixedpoint.Precision {
		return sdkmath.LegacyNewDecFromBigIntWithPrec(answer.BigInt(), int64(decimals)), nil
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)-fixedpoint.Precision), nil)
	atto := new(big.Int).Quo(answer.BigInt(), divisor)
	if atto.Sign() == 0 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: answer below 18-decimal resolution", ErrNoData)
	}
	return sdkmath.LegacyNewDecFromBigIntWithPrec(atto, fixedpoint.Precision), nil
}
