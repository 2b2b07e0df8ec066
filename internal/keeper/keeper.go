/*
This file contains the keeper: a cron-driven trigger that calls PerformUpdate for every
registered pool. It is one of any number of permissionless triggers; the runner's interval
gate decides whether a call does anything.
*/

package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/tfmm/internal/logger"
	"github.com/elys-network/tfmm/internal/runner"
	"github.com/elys-network/tfmm/internal/types"
)

var keeperLogger = logger.GetForComponent("keeper")

// Updater is the part of the runner the keeper drives.
type Updater interface {
	Pools(ctx context.Context) ([]types.Address, error)
	PerformUpdate(ctx context.Context, pool types.Address) (*runner.UpdateResult, error)
}

// Summary counts the outcome of one pass over every pool.
type Summary struct {
	Updated int
	Skipped int
	Failed  int
}

// Keeper schedules update passes.
type Keeper struct {
	Cron    *cron.Cron
	updater Updater
	ctx     context.Context
	timeout time.Duration
}

// New builds a keeper. timeout bounds the update of one pool.
func New(ctx context.Context, updater Updater, timeout time.Duration) *Keeper {
	cl := cronLogger{log: keeperLogger}
	return &Keeper{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		updater: updater,
		ctx:     ctx,
		timeout: timeout,
	}
}

// Register schedules a pass with a six-field cron expression.
func (k *Keeper) Register(schedule string) error {
	if _, err := k.Cron.AddFunc(schedule, func() { k.RunOnce() }); err != nil {
		return fmt.Errorf("register keeper schedule %q: %w", schedule, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.Cron.Start()
	keeperLogger.Info().Msg("Keeper started")
}

// Stop stops the scheduler and waits for a running pass.
func (k *Keeper) Stop() {
	<-k.Cron.Stop().Done()
	keeperLogger.Info().Msg("Keeper stopped")
}

// RunOnce triggers every registered pool once. A failure on one pool never stops the pass.
func (k *Keeper) RunOnce() Summary {
	var summary Summary
	if err := k.ctx.Err(); err != nil {
		return summary
	}
	pools, err := k.updater.Pools(k.ctx)
	if err != nil {
		keeperLogger.Error().Err(err).Msg("Failed to list pools")
		return summary
	}

	for _, pool := range pools {
		res, err := k.updatePool(pool)

		switch {
		case err == nil:
			summary.Updated++
			keeperLogger.Debug().Str("pool", pool.String()).Str("run_id", res.RunID.String()).Msg("Pool updated")
		case errors.Is(err, types.ErrTiming):
			summary.Skipped++
		default:
			summary.Failed++
			keeperLogger.Error().Err(err).Str("pool", pool.String()).Msg("Pool update failed")
		}
	}

	keeperLogger.Info().
		Int("pools", len(pools)).
		Int("updated", summary.Updated).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Keeper pass finished")
	return summary
}

// updatePool runs one update under its own deadline. A panic fails this pool only.
func (k *Keeper) updatePool(pool types.Address) (res *runner.UpdateResult, err error) {
	ctx, cancel := context.WithTimeout(k.ctx, k.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update of pool %s panicked: %v", pool, r)
		}
	}()
	return k.updater.PerformUpdate(ctx, pool)
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
