package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/tfmm/internal/config"
	"github.com/elys-network/tfmm/internal/keeper"
	"github.com/elys-network/tfmm/internal/web"
)

var serveNoKeeper bool

// serveCmd runs the API and the keeper until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the keeper schedule",
	Long: `Start the read and trigger API and, unless disabled, the keeper that calls
PerformUpdate for every registered pool on KEEPER_SCHEDULE.

Examples:
  tfmm serve
  tfmm serve --no-keeper`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoKeeper, "no-keeper", false, "Serve the API without the keeper schedule")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	server := web.NewWebServer(a.runner, a.store, web.Options{
		Port:      config.WebPort,
		UpdateRPS: config.APIRateLimitRPS,
		Metrics:   a.metrics.Handler(),
	})
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting tfmm API")
		serverErr <- server.Start()
	}()

	if !serveNoKeeper && config.KeeperSchedule != "" {
		k := keeper.New(ctx, a.runner, config.KeeperTimeout)
		if err := k.Register(config.KeeperSchedule); err != nil {
			return err
		}
		k.Start()
		defer k.Stop()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
