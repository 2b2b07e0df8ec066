package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/elys-network/tfmm/internal/types"
)

type memoryEntry struct {
	registration types.PoolRegistration
	weights      types.WeightState
	estimators   types.EstimatorState
	updates      []types.UpdateRecord
}

// MemoryStore keeps every record in process memory. Values are deep-copied on the way in
// and out so callers never share slices with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	pools map[types.Address]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pools: make(map[types.Address]*memoryEntry)}
}

func (s *MemoryStore) entry(pool types.Address) (*memoryEntry, error) {
	e, ok := s.pools[pool]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", pool, ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) CreatePool(_ context.Context, reg types.PoolRegistration, weights types.WeightState, estimators types.EstimatorState) error {
	if reg.Pool.IsEmpty() {
		return fmt.Errorf("%w: empty pool address", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[reg.Pool]; ok {
		return fmt.Errorf("pool %s: %w", reg.Pool, ErrDuplicateKey)
	}
	s.pools[reg.Pool] = &memoryEntry{
		registration: reg.Clone(),
		weights:      weights.Clone(),
		estimators:   estimators.Clone(),
	}
	return nil
}

func (s *MemoryStore) DeletePool(_ context.Context, pool types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.entry(pool); err != nil {
		return err
	}
	delete(s.pools, pool)
	return nil
}

func (s *MemoryStore) GetRegistration(_ context.Context, pool types.Address) (types.PoolRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.entry(pool)
	if err != nil {
		return types.PoolRegistration{}, err
	}
	return e.registration.Clone(), nil
}

func (s *MemoryStore) ListRegistrations(_ context.Context) ([]types.PoolRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.PoolRegistration, 0, len(s.pools))
	for _, e := range s.pools {
		out = append(out, e.registration.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out, nil
}

func (s *MemoryStore) GetWeights(_ context.Context, pool types.Address) (types.WeightState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.entry(pool)
	if err != nil {
		return types.WeightState{}, err
	}
	return e.weights.Clone(), nil
}

func (s *MemoryStore) GetEstimators(_ context.Context, pool types.Address) (types.EstimatorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.entry(pool)
	if err != nil {
		return types.EstimatorState{}, err
	}
	return e.estimators.Clone(), nil
}

func (s *MemoryStore) CommitUpdate(_ context.Context, commit UpdateCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(commit.Pool)
	if err != nil {
		return err
	}
	if e.registration.LastRunTime != commit.PrevLastRunTime {
		return fmt.Errorf("last run time of pool %s: %w", commit.Pool, ErrConflict)
	}
	e.weights = commit.Weights.Clone()
	e.estimators = commit.Estimators.Clone()
	e.registration.LastRunTime = commit.LastRunTime
	e.updates = append(e.updates, commit.Record)
	return nil
}

func (s *MemoryStore) SaveWeights(_ context.Context, pool types.Address, weights types.WeightState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(pool)
	if err != nil {
		return err
	}
	e.weights = weights.Clone()
	return nil
}

func (s *MemoryStore) SaveEstimators(_ context.Context, pool types.Address, estimators types.EstimatorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(pool)
	if err != nil {
		return err
	}
	e.estimators = estimators.Clone()
	return nil
}

func (s *MemoryStore) SetLastRunTime(_ context.Context, pool types.Address, lastRunTime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entry(pool)
	if err != nil {
		return err
	}
	e.registration.LastRunTime = lastRunTime
	return nil
}

func (s *MemoryStore) ListUpdates(_ context.Context, pool types.Address, limit int) ([]types.UpdateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.entry(pool)
	if err != nil {
		return nil, err
	}
	limit = historyLimit(limit)
	out := make([]types.UpdateRecord, 0, limit)
	for i := len(e.updates) - 1; i >= 0; i-- {
		if len(out) == limit {
			break
		}
		out = append(out, e.updates[i])
	}
	return out, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
