package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jpalmerr/routepulse"
	"github.com/jpalmerr/routepulse/config"
	"github.com/jpalmerr/routepulse/internal/storage"
	"github.com/jpalmerr/routepulse/internal/storage/file"
	"github.com/jpalmerr/routepulse/internal/storage/postgres"
	"github.com/jpalmerr/routepulse/internal/storage/sqlite"
)

// backend is the route source and result sink selected by the config.
type backend struct {
	source routepulse.RouteSource
	sink   routepulse.ResultSink
	close  func()

	// store is set when routes come from a file and must be copied into
	// the database before results can reference them.
	store storage.RouteSyncer
}

// schedulerSource is the source the run command polls. File routes are
// mirrored into the database on every fetch.
func (b *backend) schedulerSource() routepulse.RouteSource {
	if b.store == nil {
		return b.source
	}
	return storage.Mirror(b.source, b.store)
}

// openBackend connects to the configured database and, for a file source,
// reads routes from the routes file instead. Results always go to the
// database. The returned source never writes; see schedulerSource.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	var (
		b  backend
		db storage.RouteSyncer
	)

	switch cfg.Database.Driver {
	case config.DriverPostgres:
		st, err := postgres.New(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.Database.Migrate {
			if err := st.Migrate(ctx); err != nil {
				st.Close()
				return nil, err
			}
			logger.Info("database migrated", "driver", cfg.Database.Driver)
		}
		b.source, b.sink, b.close = st, st, st.Close
		db = st

	case config.DriverSQLite:
		st, err := sqlite.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		b.source, b.sink = st, st
		db = st
		b.close = func() {
			if err := st.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	if cfg.Source.Kind == config.SourceFile {
		b.source = file.New(cfg.Source.RoutesFile)
		b.store = db
	}

	logger.Info("route store opened",
		"driver", cfg.Database.Driver,
		"source", cfg.Source.Kind,
	)
	return &b, nil
}
