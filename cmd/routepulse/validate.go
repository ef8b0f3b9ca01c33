package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/routepulse/config"
	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage"
)

// validateCmd checks the config and the route store without probing.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and the route store",
	Long: `Validate the routepulse configuration, connect to the route store, and
report the active routes grouped by monitoring interval. No route is probed.

It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid and routes could be read
  1 - Config is invalid or the store is unreachable (details on stderr)

Example:
  routepulse validate -c routepulse.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logging.NewLogger(cmd.ErrOrStderr())

	b, err := openBackend(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	fetched, err := b.source.ActiveRoutes(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read routes: %w", err)
	}

	skipped := 0
	routes := storage.ValidRoutes(fetched, func(r route.Route, err error) {
		skipped++
		logger.Warn("invalid route", "route_id", r.ID, "error", err)
	})

	byInterval := make(map[int]int)
	for _, r := range routes {
		byInterval[r.MonitoringInterval]++
	}
	intervals := make([]int, 0, len(byInterval))
	for iv := range byInterval {
		intervals = append(intervals, iv)
	}
	slices.Sort(intervals)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Database:      %s\n", cfg.Database.Driver)
	fmt.Fprintf(out, "  Route source:  %s\n", cfg.Source.Kind)
	fmt.Fprintf(out, "  Active routes: %d (%d skipped as invalid)\n", len(routes), skipped)
	for _, iv := range intervals {
		fmt.Fprintf(out, "    every %ds: %d\n", iv, byInterval[iv])
	}

	if skipped > 0 {
		logger.Warn("some routes will not be scheduled", slog.Int("skipped", skipped))
	}
	return nil
}
