/*
This file contains the oracle contract used by the runner: given one constituent, produce
a normalized 18-decimal reading with a timestamp or fail.

Every variant (direct, multi-hop, composite) satisfies the same Oracle interface. The
staleness contract is enforced by the caller through CheckFreshness so that every variant
is judged the same way.
*/

package oracle

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/logger"
	"github.com/elys-network/tfmm/internal/types"
)

var oracleLogger = logger.GetForComponent("oracle")

var (
	ErrStaleOracle   = types.NewClassError(types.ErrDataUnavailable, "stale oracle")
	ErrNoData        = types.NewClassError(types.ErrDataUnavailable, "oracle has no data")
	ErrNoValidOracle = types.NewClassError(types.ErrDataUnavailable, "no valid oracle for asset")
	ErrInvalidOracle = types.NewClassError(types.ErrConfiguration, "invalid oracle configuration")
)

// Reading is one normalized oracle value.
type Reading struct {
	Value     sdkmath.LegacyDec `json:"value"`
	Timestamp int64             `json:"timestamp"`
}

// Oracle produces a normalized reading or fails.
type Oracle interface {
	ID() string
	Fetch(ctx context.Context) (Reading, error)
}

// Feed is an upstream price source reporting a raw integer answer with its own decimals.
type Feed interface {
	Latest(ctx context.Context) (answer sdkmath.Int, decimals uint8, updatedAt int64, err error)
}

// CheckFreshness rejects readings older than threshold seconds and readings from the future.
func CheckFreshness(r Reading, now, threshold int64) error {
	if r.Value.IsNil() || !r.Value.IsPositive() {
		return fmt.Errorf("%w: non-positive value", ErrNoData)
	}
	if r.Timestamp > now {
		return fmt.Errorf("%w: timestamp %d is ahead of %d", ErrStaleOracle, r.Timestamp, now)
	}
	if now-r.Timestamp > threshold {
		return fmt.Errorf("%w: reading is %d seconds old, threshold %d", ErrStaleOracle, now-r.Timestamp, threshold)
	}
	return nil
}

// FetchFresh fetches one oracle and applies the staleness contract.
func FetchFresh(ctx context.Context, o Oracle, now, threshold int64) (Reading, error) {
	r, err := o.Fetch(ctx)
	if err != nil {
		return Reading{}, err
	}
	if err := CheckFreshness(r, now, threshold); err != nil {
		return Reading{}, err
	}
	return r, nil
}
