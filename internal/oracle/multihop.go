package oracle

import (
	"context"
	"fmt"

	"github.com/elys-network/tfmm/internal/fixedpoint"
)

// Hop is one leg of a multi-hop route. Invert uses 1/value, e.g. USD/ETH from ETH/USD.
type Hop struct {
	Oracle Oracle
	Invert bool
}

// MultiHop composes two or more readings into one, e.g. A/B and B/C into A/C. The
// timestamp is the oldest of the hops and any failing hop fails the whole read.
type MultiHop struct {
	id   string
	hops []Hop
}

func NewMultiHop(id string, hops []Hop) (*MultiHop, error) {
	if len(hops) < 2 {
		return nil, fmt.Errorf("%w: multi-hop oracle %s needs at least 2 hops, got %d", ErrInvalidOracle, id, len(hops))
	}
	for i, h := range hops {
		if h.Oracle == nil {
			return nil, fmt.Errorf("%w: multi-hop oracle %s has an empty hop %d", ErrInvalidOracle, id, i)
		}
	}
	return &MultiHop{id: id, hops: append([]Hop(nil), hops...)}, nil
}

func (m *MultiHop) ID() string { return m.id }

func (m *MultiHop) Fetch(ctx context.Context) (Reading, error) {
	value := fixedpoint.One()
	var oldest int64
	for i, hop := range m.hops {
		r, err := hop.Oracle.Fetch(ctx)
		if err != nil {
			return Reading{}, fmt.Errorf("oracle %s hop %d (%s): %w", m.id, i, hop.Oracle.ID(), err)
		}
		if !r.Value.IsPositive() {
			return Reading{}, fmt.Errorf("oracle %s hop %d: %w", m.id, i, ErrNoData)
		}
		v := r.Value
		if hop.Invert {
			if v, err = fixedpoint.Quo(fixedpoint.One(), r.Value); err != nil {
				return Reading{}, err
			}
		}
		value = fixedpoint.Mul(value, v)
		if i == 0 || r.Timestamp < oldest {
			oldest = r.Timestamp
		}
	}
	if !value.IsPositive() {
		return Reading{}, fmt.Errorf("oracle %s: %w: composed value truncated to zero", m.id, ErrNoData)
	}
	return Reading{Value: value, Timestamp: oldest}, nil
}
