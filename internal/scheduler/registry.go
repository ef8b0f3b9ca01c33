package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/jpalmerr/routepulse/internal/route"
)

// SpawnFunc starts the scheduler that will receive from mailbox and run until
// ctx is cancelled. It is called with the registry lock held and must not
// block.
type SpawnFunc func(ctx context.Context, interval int, mailbox *Mailbox)

// Changes describes what one [Registry.Apply] did.
type Changes struct {
	// Added holds the routes that were not scheduled before, in fetch order.
	Added []route.Route

	// Removed holds the ids that disappeared from the fetch, sorted.
	Removed []string

	// Spawned holds the intervals for which a new mailbox was created.
	Spawned []int
}

// Registry indexes which interval owns which route, and the mailbox of each
// interval.
//
// The registry is metadata only: the set of routes a scheduler actually
// probes lives inside that scheduler and changes only through its mailbox.
// Every method takes the registry's single lock; none of them are reentrant.
type Registry struct {
	mu        sync.Mutex
	intervals map[int]*Mailbox
	routes    map[string]int
	logger    *slog.Logger
}

// NewRegistry creates an empty [Registry].
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		intervals: make(map[int]*Mailbox),
		routes:    make(map[string]int),
		logger:    logger,
	}
}

// Apply reconciles the registry with a freshly fetched route set, all under
// one lock acquisition.
//
// Routes no longer fetched are evicted and their scheduler is sent
// RemoveRoute. Each new route is sent as AddRoute to the mailbox of its
// interval, creating the mailbox (and calling spawn with ctx) for intervals
// seen for the first time, and is then registered.
func (r *Registry) Apply(ctx context.Context, fetched []route.Route, spawn SpawnFunc) Changes {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changes Changes
	changes.Added, changes.Removed = r.diffLocked(fetched)

	for _, rt := range changes.Added {
		mb, created := r.controlForLocked(rt.MonitoringInterval)
		if created {
			changes.Spawned = append(changes.Spawned, rt.MonitoringInterval)
			if spawn != nil {
				spawn(ctx, rt.MonitoringInterval, mb)
			}
		}
		mb.Send(Message{Kind: AddRoute, Route: rt})
		r.registerLocked(rt)
	}

	return changes
}

// Diff returns the fetched routes that are not registered yet. As a side
// effect, every registered id missing from fetched is evicted and its
// scheduler is sent RemoveRoute.
//
// A registered id fetched with a different interval is evicted from its old
// interval and returned as new.
func (r *Registry) Diff(fetched []route.Route) []route.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	added, _ := r.diffLocked(fetched)
	return added
}

// ControlFor returns the mailbox for interval, creating and registering it
// if needed. created reports whether the caller must start a scheduler.
func (r *Registry) ControlFor(interval int) (mailbox *Mailbox, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controlForLocked(interval)
}

// Register records that rt is scheduled at its interval.
func (r *Registry) Register(rt route.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerLocked(rt)
}

// IntervalOf returns the interval a route id is registered at.
func (r *Registry) IntervalOf(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	iv, ok := r.routes[id]
	return iv, ok
}

// Intervals returns the intervals that have a mailbox, ascending.
func (r *Registry) Intervals() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.intervals))
	for iv := range r.intervals {
		out = append(out, iv)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of registered routes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

// Close sends Shutdown to every mailbox and forgets all state.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, mb := range r.intervals {
		mb.Send(Message{Kind: Shutdown})
	}
	r.intervals = make(map[int]*Mailbox)
	r.routes = make(map[string]int)
}

func (r *Registry) diffLocked(fetched []route.Route) (added []route.Route, removed []string) {
	seen := make(map[string]struct{}, len(fetched))

	for _, rt := range fetched {
		if _, dup := seen[rt.ID]; dup {
			continue
		}
		seen[rt.ID] = struct{}{}

		iv, ok := r.routes[rt.ID]
		switch {
		case !ok:
			added = append(added, rt)
		case iv != rt.MonitoringInterval:
			r.logger.Warn("route interval changed, rescheduling",
				"route_id", rt.ID,
				"old_interval", iv,
				"new_interval", rt.MonitoringInterval,
			)
			r.evictLocked(rt.ID, iv)
			added = append(added, rt)
		}
	}

	for id, iv := range r.routes {
		if _, ok := seen[id]; ok {
			continue
		}
		r.evictLocked(id, iv)
		removed = append(removed, id)
	}
	sort.Strings(removed)

	return added, removed
}

func (r *Registry) evictLocked(id string, interval int) {
	if mb, ok := r.intervals[interval]; ok {
		mb.Send(Message{Kind: RemoveRoute, RouteID: id})
	}
	delete(r.routes, id)
}

func (r *Registry) controlForLocked(interval int) (*Mailbox, bool) {
	if mb, ok := r.intervals[interval]; ok {
		return mb, false
	}
	mb := NewMailbox(interval)
	r.intervals[interval] = mb
	return mb, true
}

func (r *Registry) registerLocked(rt route.Route) {
	r.routes[rt.ID] = rt.MonitoringInterval
}
