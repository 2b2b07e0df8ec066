package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/tfmm/internal/config"
	"github.com/elys-network/tfmm/internal/metrics"
	"github.com/elys-network/tfmm/internal/runner"
	"github.com/elys-network/tfmm/internal/state"
	"github.com/elys-network/tfmm/internal/types"
)

// app is the wired process: store, metrics and runner with its registry loaded.
type app struct {
	store   state.Store
	metrics *metrics.Metrics
	runner  *runner.Runner
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close store")
	}
}

// openStore selects the store backend from the configuration.
func openStore(ctx context.Context) (state.Store, error) {
	switch config.StoreBackend {
	case config.StorePostgres:
		pg, err := state.OpenPostgres(config.Database)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return pg, nil
	default:
		log.Warn().Msg("Using the in-memory store. Weights and history are lost on exit.")
		return state.NewMemoryStore(), nil
	}
}

// newApp opens the store, builds the runner and applies the registry file.
func newApp(ctx context.Context) (*app, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	a, err := wire(store, nil)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg, err := config.LoadRegistry(config.RegistryFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("file", config.RegistryFile).Msg("Registry file not found. Starting without oracles or pools.")
	case err != nil:
		a.Close()
		return nil, err
	default:
		if err := bootstrap(ctx, a.runner, config.AdminAddress, reg, config.OracleOptions{
			Clock:              a.runner.Now,
			StalenessThreshold: config.StalenessThreshold,
			CryptoCompareURL:   config.CryptoCompareURL,
			CryptoCompareKey:   config.CryptoCompareAPIKey,
		}); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func wire(store state.Store, clock func() int64) (*app, error) {
	m := metrics.New()
	r, err := runner.New(store, runner.Config{
		Admin:              config.AdminAddress,
		StalenessThreshold: config.StalenessThreshold,
		GuardRailMode:      config.GuardRailMode,
		Clock:              clock,
		Metrics:            m,
	})
	if err != nil {
		return nil, err
	}
	return &app{store: store, metrics: m, runner: r}, nil
}

// bootstrap approves the declared oracles, sets the ETH/USD oracle and the allow-list, then
// registers every declared pool. Pools already registered in a persistent store keep
// their stored registration.
func bootstrap(ctx context.Context, r *runner.Runner, admin types.Address, reg *config.Registry, opts config.OracleOptions) error {
	oracles, err := reg.BuildOracles(opts)
	if err != nil {
		return err
	}
	for _, o := range oracles {
		if err := r.AddOracle(admin, o); err != nil {
			return fmt.Errorf("approve oracle %s: %w", o.ID(), err)
		}
	}
	if reg.ETHUSDOracle != "" {
		if err := r.SetETHUSDOracle(admin, reg.ETHUSDOracle); err != nil {
			return err
		}
	}

	callers, err := reg.AllowedCallerAddresses()
	if err != nil {
		return err
	}
	for _, c := range callers {
		if err := r.AddAllowedCaller(admin, c); err != nil {
			return err
		}
	}

	registered := 0
	for _, entry := range reg.Pools {
		pool, settings, err := entry.Settings()
		if err != nil {
			return err
		}
		err = r.SetRuleForPool(ctx, pool, settings)
		switch {
		case errors.Is(err, runner.ErrRuleAlreadySet):
			log.Info().Str("pool", pool.String()).Msg("Pool already registered, keeping stored registration")
		case err != nil:
			return fmt.Errorf("register pool %s: %w", pool, err)
		default:
			registered++
		}
	}

	log.Info().
		Int("oracles", len(oracles)).
		Int("allowed_callers", len(callers)).
		Int("pools_registered", registered).
		Msg("Registry bootstrapped")
	return nil
}
