package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/routepulse"
	"github.com/jpalmerr/routepulse/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runCmd starts the scheduler.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start monitoring routes",
	Long: `Start probing every active route on its monitoring interval.

The process will:
  - Load configuration from the config file and environment
  - Connect to the route store
  - Probe every active route once, then on its interval
  - Re-read the route store every watch period
  - Serve the status API if server.enabled is set

It runs until interrupted (Ctrl+C) or it receives SIGTERM.

Example:
  routepulse run -c routepulse.yaml
  DATABASE_URL=postgres://localhost/uptime routepulse run`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := cfg.Logging.NewLogger(os.Stderr)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	opts := []routepulse.Option{
		routepulse.WithLogger(logger),
		routepulse.WithHTTPTimeout(cfg.Scheduler.HTTPTimeout),
		routepulse.WithRetryBackoff(cfg.Scheduler.RetryBackoff),
		routepulse.WithWatchPeriod(cfg.Scheduler.WatchPeriod),
		routepulse.WithMaxConcurrency(cfg.Scheduler.MaxConcurrency),
	}
	if cfg.Server.Enabled {
		opts = append(opts, routepulse.WithServer(cfg.Server.Port))
	}

	sup, err := routepulse.New(b.schedulerSource(), b.sink, opts...)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	// start supervisor - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- sup.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("supervisor error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("supervisor error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
