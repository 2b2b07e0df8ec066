package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/tfmm/internal/oracle"
	"github.com/elys-network/tfmm/internal/types"
)

// AddOracle approves an oracle for use by pool registrations.
func (r *Runner) AddOracle(caller types.Address, o oracle.Oracle) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	if o == nil || o.ID() == "" {
		return fmt.Errorf("%w: oracle without id", ErrInvalidParameters)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.oracles[o.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrOracleAlreadyApproved, o.ID())
	}
	r.oracles[o.ID()] = o
	runnerLogger.Info().Str("oracle", o.ID()).Str("caller", caller.String()).Msg("Oracle approved")
	return nil
}

// RemoveOracle revokes an oracle. An oracle that is the only oracle of some asset of a
// registered pool, or the ETH/USD oracle, cannot be removed. Pools that list it with
// backups skip it from then on.
func (r *Runner) RemoveOracle(ctx context.Context, caller types.Address, id string) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.oracles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrOracleNotApproved, id)
	}
	if id == r.ethUSD {
		return fmt.Errorf("%w: %s is the ETH/USD oracle", ErrOracleInUse, id)
	}

	regs, err := r.store.ListRegistrations(ctx)
	if err != nil {
		return fmt.Errorf("listing registrations: %w", err)
	}
	for _, reg := range regs {
		if _, sole := reg.References(id); sole {
			return fmt.Errorf("%w: %s is the only oracle of an asset of pool %s", ErrOracleInUse, id, reg.Pool)
		}
	}

	delete(r.oracles, id)
	runnerLogger.Info().Str("oracle", id).Str("caller", caller.String()).Msg("Oracle removed")
	return nil
}

// IsApproved reports whether the oracle is in the registry.
func (r *Runner) IsApproved(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.oracles[id]
	return ok
}

// ApprovedOracles lists the registry in id order.
func (r *Runner) ApprovedOracles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.oracles))
	for id := range r.oracles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetETHUSDOracle points the ETH/USD price at an approved oracle.
func (r *Runner) SetETHUSDOracle(caller types.Address, id string) error {
	if err := r.authorize(caller); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.oracles[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUnapprovedOracle, id)
	}
	r.ethUSD = id
	runnerLogger.Info().Str("oracle", id).Msg("ETH/USD oracle set")
	return nil
}

// ETHUSDPrice reads the ETH/USD oracle under the staleness contract.
func (r *Runner) ETHUSDPrice(ctx context.Context) (oracle.Reading, error) {
	r.mu.RLock()
	o, ok := r.oracles[r.ethUSD]
	r.mu.RUnlock()
	if !ok {
		return oracle.Reading{}, ErrNoETHUSDOracle
	}
	return oracle.FetchFresh(ctx, o, r.clock(), r.stale)
}

// PoolData is the outcome of one oracle read of every asset of a pool.
type PoolData struct {
	Prices   []sdkmath.LegacyDec `json:"prices"`
	Readings []oracle.Reading    `json:"readings"`
	// OracleIndexes is the position in each asset's priority list that was used.
	OracleIndexes []int `json:"oracle_indexes"`
}

// resolve snapshots the oracle objects of a registration. Ids that are no longer
// approved resolve to nil and are skipped by fetch.
func (r *Runner) resolve(reg types.PoolRegistration) [][]oracle.Oracle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([][]oracle.Oracle, len(reg.Oracles))
	for i, list := range reg.Oracles {
		out[i] = make([]oracle.Oracle, len(list))
		for j, id := range list {
			out[i][j] = r.oracles[id]
		}
	}
	return out
}

// fetch reads every asset, walking its priority list until a fresh reading is found.
// It fails closed when no oracle of some asset produces one.
func (r *Runner) fetch(ctx context.Context, reg types.PoolRegistration, now int64) (*PoolData, error) {
	chains := r.resolve(reg)
	data := &PoolData{
		Prices:        make([]sdkmath.LegacyDec, len(chains)),
		Readings:      make([]oracle.Reading, len(chains)),
		OracleIndexes: make([]int, len(chains)),
	}

	for asset, chain := range chains {
		var lastErr error
		found := false
		for idx, o := range chain {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id := reg.Oracles[asset][idx]
			if o == nil {
				lastErr = fmt.Errorf("%w: %s", ErrOracleNotApproved, id)
				runnerLogger.Warn().Str("pool", reg.Pool.String()).Str("oracle", id).Int("asset", asset).
					Msg("Skipping oracle that is no longer approved")
				continue
			}
			reading, err := oracle.FetchFresh(ctx, o, now, r.stale)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil, err
				}
				lastErr = err
				runnerLogger.Warn().Err(err).Str("pool", reg.Pool.String()).Str("oracle", id).Int("asset", asset).
					Msg("Oracle read rejected, trying next")
				continue
			}
			data.Prices[asset] = reading.Value
			data.Readings[asset] = reading
			data.OracleIndexes[asset] = idx
			found = true
			break
		}
		if !found {
			if lastErr == nil {
				lastErr = ErrEmptyOracles
			}
			return nil, fmt.Errorf("asset %d of pool %s: %w: %w", asset, reg.Pool, oracle.ErrNoValidOracle, lastErr)
		}
	}
	return data, nil
}

// GetData performs the same oracle read as PerformUpdate without changing any state.
func (r *Runner) GetData(ctx context.Context, pool types.Address) (*PoolData, error) {
	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	return r.fetch(ctx, reg, r.clock())
}

// GetOptimisedPoolOracle returns the primary oracle of every asset.
func (r *Runner) GetOptimisedPoolOracle(ctx context.Context, pool types.Address) ([]string, error) {
	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	return reg.PrimaryOracles(), nil
}

// GetPoolOracleAndBackups returns the full priority list of every asset.
func (r *Runner) GetPoolOracleAndBackups(ctx context.Context, pool types.Address) ([][]string, error) {
	reg, err := r.store.GetRegistration(ctx, pool)
	if err != nil {
		return nil, mapNotFound(err, pool)
	}
	return reg.Oracles, nil
}
