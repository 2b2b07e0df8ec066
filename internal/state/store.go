/*
This file contains the persistence contract of the runner. Every per-pool record is keyed
by the pool address and created at registration.

Two implementations exist: an in-process store used by tests and single-node deployments,
and the PostgreSQL store.
*/

package state

import (
	"context"
	"errors"

	"github.com/elys-network/tfmm/internal/logger"
	"github.com/elys-network/tfmm/internal/types"
)

var stateLogger = logger.GetForComponent("state")

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid store input")
	ErrConflict     = errors.New("record changed concurrently")
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

func historyLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

// UpdateCommit is everything one successful update writes. It is applied atomically and
// only while the stored last run time still equals PrevLastRunTime, otherwise the commit
// fails with ErrConflict.
type UpdateCommit struct {
	Pool            types.Address
	Weights         types.WeightState
	Estimators      types.EstimatorState
	PrevLastRunTime int64
	LastRunTime     int64
	Record          types.UpdateRecord
}

// Store persists registrations, weight state, estimator state and update history.
type Store interface {
	// CreatePool writes the registration together with its initial weight and estimator
	// state. It fails with ErrDuplicateKey when the pool is already registered.
	CreatePool(ctx context.Context, reg types.PoolRegistration, weights types.WeightState, estimators types.EstimatorState) error
	// DeletePool removes the registration and every record keyed by the pool.
	DeletePool(ctx context.Context, pool types.Address) error

	GetRegistration(ctx context.Context, pool types.Address) (types.PoolRegistration, error)
	ListRegistrations(ctx context.Context) ([]types.PoolRegistration, error)
	GetWeights(ctx context.Context, pool types.Address) (types.WeightState, error)
	GetEstimators(ctx context.Context, pool types.Address) (types.EstimatorState, error)

	CommitUpdate(ctx context.Context, commit UpdateCommit) error
	SaveWeights(ctx context.Context, pool types.Address, weights types.WeightState) error
	SaveEstimators(ctx context.Context, pool types.Address, estimators types.EstimatorState) error
	SetLastRunTime(ctx context.Context, pool types.Address, lastRunTime int64) error

	// ListUpdates returns the most recent update records of a pool, newest first. A
	// non-positive limit defaults to DefaultHistoryLimit and the limit is capped at
	// MaxHistoryLimit.
	ListUpdates(ctx context.Context, pool types.Address, limit int) ([]types.UpdateRecord, error)

	Ping(ctx context.Context) error
	Close() error
}
