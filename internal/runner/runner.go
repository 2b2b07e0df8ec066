/*
This file contains the update weight runner: the single owner of the oracle registry, the
per-pool rule registrations and the weight and estimator state the pools read.

Mutating calls on one pool are serialized by a per-pool lock, so of several concurrent
PerformUpdate calls inside one interval exactly one passes the interval gate. Registry
changes (oracles, allow-list, ETH/USD pointer) take the registry lock.
*/

package runner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/tfmm/internal/guardrail"
	"github.com/elys-network/tfmm/internal/logger"
	"github.com/elys-network/tfmm/internal/metrics"
	"github.com/elys-network/tfmm/internal/oracle"
	"github.com/elys-network/tfmm/internal/state"
	"github.com/elys-network/tfmm/internal/types"
)

var runnerLogger = logger.GetForComponent("runner")

var (
	ErrPoolNotRegistered     = types.NewClassError(types.ErrConfiguration, "pool has no rule registered")
	ErrUpdateNotAllowed      = types.NewClassError(types.ErrTiming, "update interval has not elapsed")
	ErrRuleAlreadySet        = types.NewClassError(types.ErrConfiguration, "pool already has a rule registered")
	ErrEmptyOracles          = types.NewClassError(types.ErrConfiguration, "every asset needs at least one oracle")
	ErrUnapprovedOracle      = types.NewClassError(types.ErrConfiguration, "oracle is not approved")
	ErrOracleAlreadyApproved = types.NewClassError(types.ErrConfiguration, "oracle is already approved")
	ErrOracleNotApproved     = types.NewClassError(types.ErrConfiguration, "oracle is not in the registry")
	ErrOracleInUse           = types.NewClassError(types.ErrConfiguration, "oracle is the only oracle of a registered asset")
	ErrUnauthorized          = types.NewClassError(types.ErrAuthorization, "caller is not allowed to perform this operation")
	ErrInvalidParameters     = types.NewClassError(types.ErrConfiguration, "invalid parameters")
	ErrNoETHUSDOracle        = types.NewClassError(types.ErrConfiguration, "no ETH/USD oracle configured")
	ErrInvalidWeightState    = types.NewClassError(types.ErrInvariant, "stored weight state is inconsistent")
)

// Config holds the process-wide runner settings.
type Config struct {
	// Admin manages the allow-list and may call every privileged operation.
	Admin types.Address
	// StalenessThreshold is the maximum age in seconds of a usable oracle reading.
	StalenessThreshold int64
	GuardRailMode      guardrail.Mode
	// Clock returns unix seconds. Defaults to the wall clock.
	Clock   func() int64
	Metrics *metrics.Metrics
}

// Runner coordinates oracle reads, the rule pipeline and weight persistence.
type Runner struct {
	store   state.Store
	admin   types.Address
	clock   func() int64
	stale   int64
	mode    guardrail.Mode
	metrics *metrics.Metrics

	mu      sync.RWMutex
	oracles map[string]oracle.Oracle
	ethUSD  string
	allowed map[types.Address]struct{}

	locksMu   sync.Mutex
	poolLocks map[types.Address]*sync.Mutex
}

// New builds a runner over a store.
func New(store state.Store, cfg Config) (*Runner, error) {
	if store == nil {
		return nil, errors.New("runner needs a store")
	}
	if cfg.Admin.IsEmpty() {
		return nil, fmt.Errorf("%w: admin address is required", ErrInvalidParameters)
	}
	if cfg.StalenessThreshold <= 0 {
		return nil, fmt.Errorf("%w: staleness threshold must be positive, got %d", ErrInvalidParameters, cfg.StalenessThreshold)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	return &Runner{
		store:     store,
		admin:     cfg.Admin,
		clock:     clock,
		stale:     cfg.StalenessThreshold,
		mode:      cfg.GuardRailMode,
		metrics:   cfg.Metrics,
		oracles:   make(map[string]oracle.Oracle),
		allowed:   make(map[types.Address]struct{}),
		poolLocks: make(map[types.Address]*sync.Mutex),
	}, nil
}

// Now is the runner clock.
func (r *Runner) Now() int64 { return r.clock() }

func (r *Runner) lockPool(pool types.Address) func() {
	r.locksMu.Lock()
	l, ok := r.poolLocks[pool]
	if !ok {
		l = &sync.Mutex{}
		r.poolLocks[pool] = l
	}
	r.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}

// authorize checks the caller before any state is read.
func (r *Runner) authorize(caller types.Address) error {
	if caller.IsEmpty() {
		return fmt.Errorf("%w: empty caller", ErrUnauthorized)
	}
	if caller == r.admin {
		return nil
	}
	r.mu.RLock()
	_, ok := r.allowed[caller]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	return nil
}

// AddAllowedCaller lets addr call privileged operations. Admin only.
func (r *Runner) AddAllowedCaller(caller, addr types.Address) error {
	if caller != r.admin {
		return fmt.Errorf("%w: only the admin manages the allow-list", ErrUnauthorized)
	}
	if addr.IsEmpty() {
		return fmt.Errorf("%w: empty address", ErrInvalidParameters)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.allowed[addr] = struct{}{}
	runnerLogger.Info().Str("address", addr.String()).Msg("Caller added to allow-list")
	return nil
}

// RemoveAllowedCaller revokes addr. Admin only.
func (r *Runner) RemoveAllowedCaller(caller, addr types.Address) error {
	if caller != r.admin {
		return fmt.Errorf("%w: only the admin manages the allow-list", ErrUnauthorized)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.allowed[addr]; !ok {
		return fmt.Errorf("%w: %s is not on the allow-list", ErrInvalidParameters, addr)
	}
	delete(r.allowed, addr)
	runnerLogger.Info().Str("address", addr.String()).Msg("Caller removed from allow-list")
	return nil
}

// IsAllowed reports whether addr may call privileged operations.
func (r *Runner) IsAllowed(addr types.Address) bool {
	return r.authorize(addr) == nil
}

func mapNotFound(err error, pool types.Address) error {
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrPoolNotRegistered, pool)
	}
	return err
}
