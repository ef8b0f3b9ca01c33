package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Group starts and tracks the interval schedulers of one process.
type Group struct {
	probe          ProbeFunc
	unit           time.Duration
	maxConcurrency int
	logger         *slog.Logger

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[int]struct{}
}

// GroupOption configures a [Group].
type GroupOption func(*Group)

// WithTickUnit sets the duration of one interval unit. Route intervals are
// expressed in seconds, which is the default.
func WithTickUnit(unit time.Duration) GroupOption {
	return func(g *Group) {
		if unit > 0 {
			g.unit = unit
		}
	}
}

// WithMaxConcurrency caps in-flight probes per tick of each scheduler.
func WithMaxConcurrency(n int) GroupOption {
	return func(g *Group) {
		g.maxConcurrency = n
	}
}

// WithLogger sets the logger handed to every scheduler.
func WithLogger(logger *slog.Logger) GroupOption {
	return func(g *Group) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGroup creates an empty [Group].
func NewGroup(probe ProbeFunc, opts ...GroupOption) *Group {
	g := &Group{
		probe:   probe,
		unit:    time.Second,
		logger:  slog.Default(),
		running: make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Spawn starts an [IntervalScheduler] for mailbox in a new goroutine. The
// scheduler runs until ctx is cancelled or it is sent Shutdown. Spawn
// satisfies [SpawnFunc].
func (g *Group) Spawn(ctx context.Context, interval int, mailbox *Mailbox) {
	s := NewIntervalScheduler(mailbox, time.Duration(interval)*g.unit, g.probe, g.maxConcurrency, g.logger)

	g.mu.Lock()
	g.running[interval] = struct{}{}
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			g.mu.Lock()
			delete(g.running, interval)
			g.mu.Unlock()
		}()
		s.Run(ctx)
	}()
}

// Running returns the number of schedulers that have not exited.
func (g *Group) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.running)
}

// Wait blocks until every spawned scheduler has exited.
func (g *Group) Wait() {
	g.wg.Wait()
}
