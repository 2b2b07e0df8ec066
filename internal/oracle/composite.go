package oracle

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/fixedpoint"
)

// PoolStateReader supplies the live state of a pool whose share is being valued.
type PoolStateReader interface {
	PoolState(ctx context.Context) (balances []sdkmath.LegacyDec, totalSupply sdkmath.LegacyDec, err error)
}

// Composite values one share of a pool from its live balances and constituent prices:
// sum(balance_i * price_i) / totalSupply. The reading is stamped with the current time; the
// constituent prices themselves must be fresh.
type Composite struct {
	id           string
	pool         PoolStateReader
	constituents []Oracle
	staleness    int64
	clock        func() int64
}

func NewComposite(id string, pool PoolStateReader, constituents []Oracle, staleness int64, clock func() int64) (*Composite, error) {
	if pool == nil || len(constituents) == 0 {
		return nil, fmt.Errorf("%w: composite oracle %s needs a pool and constituents", ErrInvalidOracle, id)
	}
	if clock == nil {
		return nil, fmt.Errorf("%w: composite oracle %s needs a clock", ErrInvalidOracle, id)
	}
	return &Composite{id: id, pool: pool, constituents: constituents, staleness: staleness, clock: clock}, nil
}

func (c *Composite) ID() string { return c.id }

func (c *Composite) Fetch(ctx context.Context) (Reading, error) {
	balances, supply, err := c.pool.PoolState(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("oracle %s: pool state: %w", c.id, err)
	}
	if len(balances) != len(c.constituents) {
		return Reading{}, fmt.Errorf("%w: oracle %s has %d constituents, pool reports %d balances",
			ErrInvalidOracle, c.id, len(c.constituents), len(balances))
	}
	if supply.IsNil() || !supply.IsPositive() {
		return Reading{}, fmt.Errorf("oracle %s: %w: empty pool supply", c.id, ErrNoData)
	}

	now := c.clock()
	total := fixedpoint.Zero()
	for i, o := range c.constituents {
		r, err := FetchFresh(ctx, o, now, c.staleness)
		if err != nil {
			return Reading{}, fmt.Errorf("oracle %s constituent %s: %w", c.id, o.ID(), err)
		}
		total = total.Add(fixedpoint.Mul(balances[i], r.Value))
	}

	value, err := fixedpoint.Quo(total, supply)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Value: value, Timestamp: now}, nil
}
