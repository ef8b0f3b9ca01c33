package routepulse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/routepulse/internal/prober"
	"github.com/jpalmerr/routepulse/internal/scheduler"
	"github.com/jpalmerr/routepulse/internal/server"
	"github.com/jpalmerr/routepulse/internal/storage"
	"github.com/jpalmerr/routepulse/internal/store"
	"github.com/jpalmerr/routepulse/internal/watcher"
)

var (
	// ErrRouteNotFound is returned by [Supervisor.ProbeNow] when no active
	// route has the requested id.
	ErrRouteNotFound = fmt.Errorf("route %w", storage.ErrNotFound)

	// ErrAlreadyRunning is returned by [Supervisor.Start] when called twice.
	ErrAlreadyRunning = errors.New("supervisor already running")
)

// Supervisor wires the route source, the schedulers and the result sink
// together and owns their lifecycle.
//
// The typical lifecycle is:
//
//	sup, err := routepulse.New(src, sink, routepulse.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sup.Start(ctx) // blocks until ctx is cancelled
type Supervisor struct {
	source RouteSource
	cfg    *supConfig
	logger *slog.Logger

	status *store.MemoryStore
	prober *prober.Prober

	mu      sync.Mutex
	running bool
}

// New creates a [Supervisor] that reads routes from source and records
// results to sink. A nil sink keeps results in memory only.
//
// Returns an error if source is nil or any option is invalid.
func New(source RouteSource, sink ResultSink, opts ...Option) (*Supervisor, error) {
	if source == nil {
		return nil, errors.New("route source is required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		source: source,
		cfg:    cfg,
		logger: logger,
		status: store.NewMemoryStore(),
	}

	// callbacks fire after the result is persisted and published
	sinks := []storage.ResultSink{sink, s.status}
	if len(cfg.callbacks) > 0 {
		sinks = append(sinks, storage.SinkFunc(s.runCallbacks))
	}

	s.prober = prober.New(storage.Tee(sinks...),
		prober.WithTimeout(cfg.httpTimeout),
		prober.WithRetryBackoff(cfg.retryBackoff),
		prober.WithLogger(logger),
	)
	return s, nil
}

// Start bootstraps the schedulers from the current route set, probes every
// route once, and then keeps the schedulers in sync with the source until ctx
// is cancelled.
//
// Start blocks. It returns nil on graceful shutdown, or an error if the
// initial fetch fails or the status server cannot bind its port.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if ctx.Err() != nil {
		return nil
	}

	s.logger.Info("routepulse starting",
		"watch_period", s.cfg.watchPeriod.String(),
		"max_concurrency", s.cfg.maxConcurrency,
	)

	probe := func(ctx context.Context, rt Route) {
		s.prober.Run(ctx, rt)
	}

	registry := scheduler.NewRegistry(s.logger)
	group := scheduler.NewGroup(probe,
		scheduler.WithTickUnit(s.cfg.tickUnit),
		scheduler.WithMaxConcurrency(s.cfg.maxConcurrency),
		scheduler.WithLogger(s.logger),
	)
	w := watcher.New(s.source, registry, group.Spawn, probe,
		watcher.WithPeriod(s.cfg.watchPeriod),
		watcher.WithLogger(s.logger),
		watcher.WithRemoveHook(func(ids []string) {
			s.status.Remove(ids...)
		}),
	)

	cleanup := func() {
		w.Stop()
		registry.Close()
		group.Wait()
		s.prober.Close()
	}

	changes, err := w.Reconcile(ctx)
	if err != nil {
		cleanup()
		return fmt.Errorf("bootstrap: %w", err)
	}
	s.logger.Info("bootstrap complete",
		"routes", len(changes.Added),
		"intervals", registry.Intervals(),
	)

	if s.cfg.serverEnabled {
		srv := server.NewServer(s.status, s.cfg.port, s.ProbeNow, s.logger)
		if err := srv.Start(ctx); err != nil {
			cleanup()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	if err := w.Start(ctx); err != nil {
		cleanup()
		return err
	}

	<-ctx.Done()
	cleanup()
	s.logger.Info("routepulse stopped")
	return nil
}

// ProbeNow fetches the active route with the given id and probes it once,
// outside its schedule. The result is recorded like any scheduled probe.
//
// Returns [ErrRouteNotFound] if no active route has that id.
func (s *Supervisor) ProbeNow(ctx context.Context, id string) (ProbeResult, error) {
	routes, err := s.source.ActiveRoutes(ctx)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("fetching active routes: %w", err)
	}
	for _, rt := range routes {
		if rt.ID != id {
			continue
		}
		if err := rt.Validate(); err != nil {
			return ProbeResult{}, err
		}
		return s.prober.Run(ctx, rt), nil
	}
	return ProbeResult{}, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
}

// Statuses returns the latest result and rolling uptime of every probed
// route, ordered by route id.
func (s *Supervisor) Statuses() []RouteStatus {
	return s.status.GetAll()
}

func (s *Supervisor) runCallbacks(_ context.Context, result ProbeResult) error {
	for _, cb := range s.cfg.callbacks {
		invokeCallbackSafe(cb, result, s.logger)
	}
	return nil
}

// invokeCallbackSafe calls a result callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(ProbeResult), result ProbeResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"route_id", result.RouteID,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(result)
}
