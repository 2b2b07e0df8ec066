package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/tfmm/internal/config"
	"github.com/elys-network/tfmm/internal/logger"
)

// rootCmd is the base command of the weight-update runner
var rootCmd = &cobra.Command{
	Use:   "tfmm",
	Short: "Temporal function market maker weight-update runner",
	Long: `tfmm runs the periodic weight updates of temporal function pools: it reads the
approved oracles, runs each pool's rule through the guard rails and stores the new
weights together with the per-second multipliers the pool interpolates with.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
		}
		if err := config.LoadConfig(); err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		logger.Initialize(config.LogLevel, config.LogFormat)
		if config.LogFile != "" {
			if err := logger.AttachFile(config.LogFile); err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
		}
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
