package estimator

import (
	"sync"

	"github.com/elys-network/tfmm/internal/types"
)

// Ledger persists estimator state keyed by pool. Load returns an empty state when the
// pool has no history.
type Ledger interface {
	Load(pool types.Address) (types.EstimatorState, error)
	Save(pool types.Address, state types.EstimatorState) error
}

// MemoryLedger keeps estimator state in process memory.
type MemoryLedger struct {
	mu     sync.RWMutex
	states map[types.Address]types.EstimatorState
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{states: make(map[types.Address]types.EstimatorState)}
}

func (l *MemoryLedger) Load(pool types.Address) (types.EstimatorState, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.states[pool].Clone(), nil
}

func (l *MemoryLedger) Save(pool types.Address, state types.EstimatorState) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states[pool] = state.Clone()
	return nil
}

// Staging buffers writes on top of a base ledger. Nothing reaches the base until the
// caller takes the pending state and commits it itself, so a failed update leaves the
// base untouched.
type Staging struct {
	base    Ledger
	pending map[types.Address]types.EstimatorState
}

func NewStaging(base Ledger) *Staging {
	return &Staging{base: base, pending: make(map[types.Address]types.EstimatorState)}
}

func (s *Staging) Load(pool types.Address) (types.EstimatorState, error) {
	if state, ok := s.pending[pool]; ok {
		return state.Clone(), nil
	}
	return s.base.Load(pool)
}

func (s *Staging) Save(pool types.Address, state types.EstimatorState) error {
	s.pending[pool] = state.Clone()
	return nil
}

// Pending returns the buffered state of a pool.
func (s *Staging) Pending(pool types.Address) (types.EstimatorState, bool) {
	state, ok := s.pending[pool]
	return state.Clone(), ok
}

// Flush writes every buffered state to the base ledger.
func (s *Staging) Flush() error {
	for pool, state := range s.pending {
		if err := s.base.Save(pool, state); err != nil {
			return err
		}
		delete(s.pending, pool)
	}
	return nil
}
