package oracle

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// StaticFeed reports an operator-set answer.
type StaticFeed struct {
	mu        sync.RWMutex
	answer    sdkmath.Int
	decimals  uint8
	updatedAt int64
	err       error
}

func NewStaticFeed(answer sdkmath.Int, decimals uint8, updatedAt int64) *StaticFeed {
	return &StaticFeed{answer: answer, decimals: decimals, updatedAt: updatedAt}
}

// Set replaces the answer and clears any failure.
func (f *StaticFeed) Set(answer sdkmath.Int, updatedAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = answer
	f.updatedAt = updatedAt
	f.err = nil
}

// Fail makes every following read fail with err until the next Set.
func (f *StaticFeed) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *StaticFeed) Latest(_ context.Context) (sdkmath.Int, uint8, int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return sdkmath.Int{}, 0, 0, f.err
	}
	if f.answer.IsNil() {
		return sdkmath.Int{}, 0, 0, ErrNoData
	}
	return f.answer, f.decimals, f.updatedAt, nil
}

// StaticPoolState is a PoolStateReader over operator-set balances.
type StaticPoolState struct {
	mu       sync.RWMutex
	balances []sdkmath.LegacyDec
	supply   sdkmath.LegacyDec
}

func NewStaticPoolState(balances []sdkmath.LegacyDec, supply sdkmath.LegacyDec) *StaticPoolState {
	return &StaticPoolState{balances: balances, supply: supply}
}

func (s *StaticPoolState) Set(balances []sdkmath.LegacyDec, supply sdkmath.LegacyDec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = balances
	s.supply = supply
}

func (s *StaticPoolState) PoolState(_ context.Context) ([]sdkmath.LegacyDec, sdkmath.LegacyDec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sdkmath.LegacyDec, len(s.balances))
	copy(out, s.balances)
	return out, s.supply, nil
}

// PegFeed reports a constant answer stamped with the current time, for assets held at a
// fixed quote such as a stablecoin against its peg.
type PegFeed struct {
	answer   sdkmath.Int
	decimals uint8
	clock    func() int64
}

func NewPegFeed(answer sdkmath.Int, decimals uint8, clock func() int64) *PegFeed {
	return &PegFeed{answer: answer, decimals: decimals, clock: clock}
}

func (f *PegFeed) Latest(_ context.Context) (sdkmath.Int, uint8, int64, error) {
	if f.answer.IsNil() || !f.answer.IsPositive() {
		return sdkmath.Int{}, 0, 0, ErrNoData
	}
	return f.answer, f.decimals, f.clock(), nil
}
