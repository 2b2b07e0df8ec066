package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/elys-network/tfmm/internal/types"
)

// updateCmd triggers one update of one pool
var updateCmd = &cobra.Command{
	Use:   "update <pool>",
	Short: "Run one weight update of a pool and print the result",
	Long: `Trigger PerformUpdate once for the given pool. Like every trigger it is subject to
the pool's update interval.

Example:
  tfmm update elys1...`,
	Args: cobra.ExactArgs(1),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	pool, err := types.ParseAddress(args[0])
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.runner.PerformUpdate(ctx, pool)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
