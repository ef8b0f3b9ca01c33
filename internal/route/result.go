package route

import (
	"time"

	"github.com/guregu/null/v5"
)

// Status is the health state derived from a [Result].
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
	StatusUnknown  Status = "unknown"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one probe of a route. A probe may span several
// HTTP attempts; the result describes the probe as a whole.
type Result struct {
	// ID is unique per probe, not per route.
	ID      string `json:"id"`
	RouteID string `json:"routeId"`

	// StatusCode is the last status observed across all attempts. It is
	// null when every attempt failed at the transport level.
	StatusCode null.Int `json:"statusCode"`

	// ResponseTimeMs is the elapsed time from the start of the first attempt
	// to the final resolution, retry backoff included.
	ResponseTimeMs int64 `json:"responseTime"`

	IsSuccess bool `json:"isSuccess"`

	// ThresholdExceeded is set when the status criterion was met but the
	// response time threshold turned the probe into a failure.
	ThresholdExceeded bool `json:"thresholdExceeded"`

	Attempts int `json:"attempts"`

	// Error holds the last transport error, if the last attempt had one.
	Error null.String `json:"error"`

	CheckedAt time.Time `json:"checkedAt"`

	// Descriptive fields copied from the route; not persisted.
	RouteName string `json:"routeName"`
	URL       string `json:"url"`
	Method    string `json:"method"`
}

// Status derives the health state of the probe.
func (r Result) Status() Status {
	switch {
	case r.IsSuccess:
		return StatusUp
	case r.ThresholdExceeded:
		return StatusDegraded
	default:
		return StatusDown
	}
}
