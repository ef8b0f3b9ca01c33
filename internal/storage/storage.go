// Package storage defines the two operations the scheduler needs from the
// persistent store: reading the active routes and appending probe results.
package storage

import (
	"context"
	"errors"

	"github.com/jpalmerr/routepulse/internal/route"
)

var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("not found")
)

// RouteSource returns the full set of routes currently considered active.
type RouteSource interface {
	ActiveRoutes(ctx context.Context) ([]route.Route, error)
}

// ResultSink durably records one probe outcome. Implementations must be
// safe for concurrent use; each call is an independent append.
type ResultSink interface {
	RecordResult(ctx context.Context, result route.Result) error
}

// SinkFunc adapts an ordinary function to the [ResultSink] interface.
type SinkFunc func(ctx context.Context, result route.Result) error

// RecordResult calls f(ctx, result).
func (f SinkFunc) RecordResult(ctx context.Context, result route.Result) error {
	return f(ctx, result)
}

// Tee returns a sink that records every result to each of sinks in order.
// All sinks are attempted; their errors are joined.
func Tee(sinks ...ResultSink) ResultSink {
	filtered := make([]ResultSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return teeSink(filtered)
}

type teeSink []ResultSink

func (t teeSink) RecordResult(ctx context.Context, result route.Result) error {
	var errs []error
	for _, s := range t {
		if err := s.RecordResult(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidRoutes drops routes that cannot be scheduled and reports each one
// through skip.
func ValidRoutes(routes []route.Route, skip func(r route.Route, err error)) []route.Route {
	valid := routes[:0:0]
	for _, r := range routes {
		if err := r.Validate(); err != nil {
			if skip != nil {
				skip(r, err)
			}
			continue
		}
		valid = append(valid, r)
	}
	return valid
}
