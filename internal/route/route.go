// Package route defines the monitored endpoint model and the outcome of a
// single probe of it.
package route

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/guregu/null/v5"
)

// ErrInvalidRoute is returned by [Route.Validate] for a route that cannot be
// scheduled.
var ErrInvalidRoute = errors.New("invalid route")

// Route is a snapshot of a monitored endpoint and its check policy, as
// returned by one fetch from the route source.
//
// A Route is never mutated after it is fetched. In particular its
// MonitoringInterval is fixed for the life of the value; a route whose
// interval changes at the source shows up as a different Route.
type Route struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Method string `json:"method"`

	// RequestHeaders is the decoded header mapping as stored. Values that are
	// not strings are ignored when the request is built.
	RequestHeaders map[string]any `json:"requestHeaders,omitempty"`

	RequestBody           null.String `json:"requestBody"`
	ExpectedStatusCode    null.Int    `json:"expectedStatusCode"`
	ResponseTimeThreshold null.Int    `json:"responseTimeThreshold"`

	// MonitoringInterval is the polling period in seconds and the key used to
	// assign the route to a scheduler.
	MonitoringInterval int `json:"monitoringInterval"`

	// Retries is the number of additional attempts after the first.
	Retries null.Int `json:"retries"`

	AlertEmail null.String `json:"alertEmail"`
	IsActive   bool        `json:"isActive"`
}

// RetryCount returns the number of additional attempts, never negative.
func (r Route) RetryCount() int {
	if !r.Retries.Valid || r.Retries.Int64 < 0 {
		return 0
	}
	return int(r.Retries.Int64)
}

// Period returns the monitoring interval as a duration of the given unit.
func (r Route) Period(unit time.Duration) time.Duration {
	return time.Duration(r.MonitoringInterval) * unit
}

// Validate reports whether the route can be scheduled.
func (r Route) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.URL, validation.Required, validation.By(validateTargetURL)),
		validation.Field(&r.MonitoringInterval, validation.Required, validation.Min(1)),
		validation.Field(&r.Retries, validation.By(nonNegative)),
		validation.Field(&r.ResponseTimeThreshold, validation.By(nonNegative)),
	)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidRoute, r.ID, err)
	}
	return nil
}

func validateTargetURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	return nil
}

func nonNegative(value interface{}) error {
	n, ok := value.(null.Int)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be an optional integer")
	}
	if n.Valid && n.Int64 < 0 {
		return validation.NewError("validation_negative", "must not be negative")
	}
	return nil
}
