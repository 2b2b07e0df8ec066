package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/tfmm/internal/config"
	"github.com/elys-network/tfmm/internal/state"
)

var migrateReset bool

// migrateCmd creates the Postgres schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres schema",
	Long: `Create the tfmm tables if they do not exist. With --reset every table is dropped
first, which deletes all registrations, weights and history.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateReset, "reset", false, "Drop and recreate every table")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if config.StoreBackend != config.StorePostgres {
		return errors.New("migrate needs STORE_BACKEND=postgres")
	}
	pg, err := state.OpenPostgres(config.Database)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx := context.Background()
	if migrateReset {
		log.Warn().Str("db", config.Database.DBName).Msg("Dropping and recreating every table")
		return pg.ResetSchema(ctx)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return err
	}
	log.Info().Str("db", config.Database.DBName).Msg("Schema is up to date")
	return nil
}
