// Package watcher keeps the scheduling registry in sync with the route
// source.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/scheduler"
	"github.com/jpalmerr/routepulse/internal/storage"
)

// DefaultPeriod is how often the route source is re-read.
const DefaultPeriod = 30 * time.Second

// ErrAlreadyStarted is returned by Start when the periodic job is running.
var ErrAlreadyStarted = errors.New("watcher already started")

// Watcher periodically fetches the active routes, applies the difference to
// a [scheduler.Registry], and probes newly discovered routes immediately.
type Watcher struct {
	source   storage.RouteSource
	registry *scheduler.Registry
	spawn    scheduler.SpawnFunc
	dispatch scheduler.ProbeFunc
	period   time.Duration
	onRemove func(ids []string)
	logger   *slog.Logger

	mu   sync.Mutex
	cron *gocron.Scheduler

	inflight sync.WaitGroup
}

// Option configures a [Watcher].
type Option func(*Watcher)

// WithPeriod sets the fetch period. Non-positive values are ignored.
func WithPeriod(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.period = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRemoveHook registers fn to be called, outside the registry lock, with
// the ids evicted by each cycle.
func WithRemoveHook(fn func(ids []string)) Option {
	return func(w *Watcher) {
		w.onRemove = fn
	}
}

// New creates a Watcher. spawn starts a scheduler for each interval seen for
// the first time; dispatch runs the one-off probe of each new route.
func New(source storage.RouteSource, registry *scheduler.Registry, spawn scheduler.SpawnFunc, dispatch scheduler.ProbeFunc, opts ...Option) *Watcher {
	w := &Watcher{
		source:   source,
		registry: registry,
		spawn:    spawn,
		dispatch: dispatch,
		period:   DefaultPeriod,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reconcile runs one cycle: fetch, apply the diff, then dispatch an
// immediate probe for every added route. Fetch errors are returned without
// touching the registry.
//
// The dispatched probes run in the background; [Watcher.Stop] waits for them.
func (w *Watcher) Reconcile(ctx context.Context) (scheduler.Changes, error) {
	fetched, err := w.source.ActiveRoutes(ctx)
	if err != nil {
		return scheduler.Changes{}, fmt.Errorf("fetching active routes: %w", err)
	}

	valid := storage.ValidRoutes(fetched, func(r route.Route, err error) {
		w.logger.Warn("skipping invalid route", "route_id", r.ID, "error", err)
	})

	changes := w.registry.Apply(ctx, valid, w.spawn)

	for _, iv := range changes.Spawned {
		w.logger.Info("interval scheduler created", "interval", iv)
	}
	if len(changes.Removed) > 0 {
		w.logger.Info("routes removed", "count", len(changes.Removed), "route_ids", changes.Removed)
		if w.onRemove != nil {
			w.onRemove(changes.Removed)
		}
	}
	if len(changes.Added) > 0 {
		w.logger.Info("routes added", "count", len(changes.Added))
	}

	for _, rt := range changes.Added {
		w.inflight.Add(1)
		go func() {
			defer w.inflight.Done()
			w.safeDispatch(ctx, rt)
		}()
	}

	return changes, nil
}

// Start schedules Reconcile every period, first run one period from now.
// Cycles never overlap; a fetch error is logged and the next cycle retries.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return ErrAlreadyStarted
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	_, err := s.Every(w.period).WaitForSchedule().Do(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.Reconcile(ctx); err != nil {
			w.logger.Error("route reconcile failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling watcher job: %w", err)
	}

	s.StartAsync()
	w.cron = s
	w.logger.Info("watcher started", "period", w.period.String())
	return nil
}

// Stop halts the periodic job and waits for dispatched probes to return.
// It is safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	s := w.cron
	w.cron = nil
	w.mu.Unlock()

	if s != nil {
		s.Stop()
		w.logger.Info("watcher stopped")
	}
	w.inflight.Wait()
}

func (w *Watcher) safeDispatch(ctx context.Context, rt route.Route) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("immediate probe panic",
				"correlation_id", uuid.NewString(),
				"route_id", rt.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	w.dispatch(ctx, rt)
}
