// Package scheduler runs one periodic task per distinct monitoring interval
// and keeps the index of which interval owns which route.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/routepulse/internal/route"
)

// ProbeFunc checks one route. It is called concurrently for every route an
// [IntervalScheduler] owns.
type ProbeFunc func(ctx context.Context, rt route.Route)

// IntervalScheduler periodically probes every route assigned to one
// monitoring interval.
//
// Its route set is private to the goroutine running [IntervalScheduler.Run]
// and changes only through control messages, which are drained once per
// tick. A tick probes all owned routes concurrently and waits for every
// probe to finish; the next tick is timed from that point, so a slow tick
// delays the following one instead of queueing behind it.
type IntervalScheduler struct {
	interval       int
	period         time.Duration
	mailbox        *Mailbox
	probe          ProbeFunc
	maxConcurrency int
	logger         *slog.Logger

	routes map[string]route.Route
}

// NewIntervalScheduler creates a scheduler that receives from mailbox and
// ticks every period. maxConcurrency caps in-flight probes per tick; zero
// or less means no cap.
func NewIntervalScheduler(mailbox *Mailbox, period time.Duration, probe ProbeFunc, maxConcurrency int, logger *slog.Logger) *IntervalScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntervalScheduler{
		interval:       mailbox.Interval(),
		period:         period,
		mailbox:        mailbox,
		probe:          probe,
		maxConcurrency: maxConcurrency,
		logger:         logger.With("interval", mailbox.Interval()),
		routes:         make(map[string]route.Route),
	}
}

// Run blocks until a Shutdown message is drained or ctx is cancelled.
//
// Each iteration waits for the tick, applies all pending control messages,
// then fans out probes for the current route set.
func (s *IntervalScheduler) Run(ctx context.Context) {
	s.logger.Info("interval scheduler started", "period", s.period.String())

	timer := time.NewTimer(s.period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("interval scheduler stopped", "reason", "context cancelled")
			return
		case <-timer.C:
		}

		if stop := s.drain(); stop {
			s.logger.Info("interval scheduler stopped", "reason", "shutdown")
			return
		}

		s.tick(ctx)
		timer.Reset(s.period)
	}
}

// drain applies every pending control message and reports whether a
// Shutdown was among them.
func (s *IntervalScheduler) drain() bool {
	for _, msg := range s.mailbox.Drain() {
		switch msg.Kind {
		case AddRoute:
			s.routes[msg.Route.ID] = msg.Route
			s.logger.Debug("route added", "route_id", msg.Route.ID, "routes", len(s.routes))
		case RemoveRoute:
			delete(s.routes, msg.RouteID)
			s.logger.Debug("route removed", "route_id", msg.RouteID, "routes", len(s.routes))
		case Shutdown:
			return true
		default:
			s.logger.Warn("unknown control message", "kind", msg.Kind.String())
		}
	}
	return false
}

// tick probes every owned route concurrently and returns once all are done.
func (s *IntervalScheduler) tick(ctx context.Context) {
	if len(s.routes) == 0 {
		return
	}

	s.logger.Debug("running checks", "routes", len(s.routes))

	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for _, rt := range s.routes {
		g.Go(func() error {
			s.safeProbe(ctx, rt)
			return nil
		})
	}
	_ = g.Wait()
}

// safeProbe calls the probe function with panic recovery so one misbehaving
// route cannot take down the scheduler.
func (s *IntervalScheduler) safeProbe(ctx context.Context, rt route.Route) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("probe panic",
				"correlation_id", uuid.NewString(),
				"route_id", rt.ID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	s.probe(ctx, rt)
}
