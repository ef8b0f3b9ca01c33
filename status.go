package routepulse

import (
	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage"
	"github.com/jpalmerr/routepulse/internal/store"
)

// Route is a snapshot of one monitored endpoint as read from a [RouteSource].
type Route = route.Route

// ProbeResult is the outcome of one probe of a [Route].
type ProbeResult = route.Result

// RouteSource returns the set of currently active routes.
type RouteSource = storage.RouteSource

// ResultSink records probe outcomes. It must be safe for concurrent use.
type ResultSink = storage.ResultSink

// SinkFunc adapts a function to [ResultSink].
type SinkFunc = storage.SinkFunc

// Status is the health state derived from a [ProbeResult].
type Status = route.Status

const (
	// StatusUp indicates the route satisfied its status criterion in time.
	StatusUp = route.StatusUp

	// StatusDown indicates every attempt failed or returned the wrong status.
	StatusDown = route.StatusDown

	// StatusDegraded indicates the status criterion was met but the response
	// time threshold was exceeded.
	StatusDegraded = route.StatusDegraded

	// StatusUnknown is reported for routes that have not been probed yet.
	StatusUnknown = route.StatusUnknown
)

// RouteStatus is the latest result and rolling uptime of one route, as
// returned by [Supervisor.Statuses].
type RouteStatus = store.StatusResult
