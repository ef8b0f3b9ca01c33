package store

import (
	"context"
	"time"

	"github.com/guregu/null/v5"

	"github.com/jpalmerr/routepulse/internal/route"
)

// WindowSize is the number of most recent outcomes uptime is computed over.
const WindowSize = 100

// StatusResult represents the current status of a route in storage.
//
// StatusResult is the storage representation of route status, optimized
// for JSON serialization (used by the REST API and SSE).
type StatusResult struct {
	// RouteID identifies the route. Results are keyed by it.
	RouteID string `json:"route_id"`

	// Name is the route's display name.
	Name string `json:"name"`

	// URL is the target URL that was probed.
	URL string `json:"url"`

	// Method is the HTTP method that was sent.
	Method string `json:"method"`

	// Status is "up", "degraded" or "down".
	Status route.Status `json:"status"`

	// StatusCode is the last HTTP status received, null after a transport error.
	StatusCode null.Int `json:"status_code"`

	// ResponseTimeMs is the probe latency in milliseconds, retries included.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// Attempts is how many HTTP requests the probe made.
	Attempts int `json:"attempts"`

	// CheckedAt is the timestamp of the last probe.
	CheckedAt time.Time `json:"checked_at"`

	// Error contains the last transport error, if any.
	Error null.String `json:"error"`

	// Uptime is the percentage of successful outcomes in the window.
	Uptime float64 `json:"uptime"`

	// Checks is the number of outcomes in the window, at most [WindowSize].
	Checks int `json:"checks"`

	// Removed is set on the final update published for a route that is no
	// longer monitored.
	Removed bool `json:"removed,omitempty"`
}

// Store defines the interface for storing and subscribing to status updates.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// RecordResult folds a probe outcome into the route's status and notifies
	// all subscribers.
	RecordResult(ctx context.Context, result route.Result) error

	// Remove forgets the given routes and notifies subscribers of each one
	// that was known.
	Remove(ids ...string)

	// Get returns the status of one route.
	Get(id string) (StatusResult, bool)

	// GetAll returns all currently stored status results, ordered by route id.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []StatusResult

	// Subscribe returns a channel that receives status updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan StatusResult

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan StatusResult)
}
