package routepulse

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/routepulse/internal/prober"
	"github.com/jpalmerr/routepulse/internal/watcher"
)

// supConfig holds mutable state during Supervisor construction.
type supConfig struct {
	logger         *slog.Logger
	httpTimeout    time.Duration
	retryBackoff   time.Duration
	watchPeriod    time.Duration
	maxConcurrency int
	tickUnit       time.Duration
	serverEnabled  bool
	port           int
	callbacks      []func(ProbeResult)
}

func defaultConfig() *supConfig {
	return &supConfig{
		httpTimeout:  prober.DefaultTimeout,
		retryBackoff: prober.DefaultRetryBackoff,
		watchPeriod:  watcher.DefaultPeriod,
		tickUnit:     time.Second,
	}
}

// Option is a function that configures a [Supervisor] during construction.
// Options return an error if validation fails.
type Option func(*supConfig) error

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *supConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPTimeout bounds each HTTP attempt of a probe. Defaults to 30 seconds.
func WithHTTPTimeout(d time.Duration) Option {
	return func(cfg *supConfig) error {
		if d <= 0 {
			return errors.New("http timeout must be positive")
		}
		cfg.httpTimeout = d
		return nil
	}
}

// WithRetryBackoff sets the pause between two attempts of one probe.
// Defaults to 500ms; zero retries immediately.
func WithRetryBackoff(d time.Duration) Option {
	return func(cfg *supConfig) error {
		if d < 0 {
			return errors.New("retry backoff cannot be negative")
		}
		cfg.retryBackoff = d
		return nil
	}
}

// WithWatchPeriod sets how often the route source is re-read. Defaults to 30
// seconds.
func WithWatchPeriod(d time.Duration) Option {
	return func(cfg *supConfig) error {
		if d <= 0 {
			return errors.New("watch period must be positive")
		}
		cfg.watchPeriod = d
		return nil
	}
}

// WithMaxConcurrency caps how many probes one interval runs at the same time
// on each tick. Zero, the default, leaves the fan-out unbounded.
//
// Example:
//
//	sup, err := routepulse.New(src, sink,
//	    routepulse.WithMaxConcurrency(50),
//	)
func WithMaxConcurrency(n int) Option {
	return func(cfg *supConfig) error {
		if n < 0 {
			return errors.New("max concurrency cannot be negative")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithTickUnit sets the duration of one monitoring interval unit. Route
// intervals are in seconds; a smaller unit is useful in tests.
func WithTickUnit(unit time.Duration) Option {
	return func(cfg *supConfig) error {
		if unit <= 0 {
			return errors.New("tick unit must be positive")
		}
		cfg.tickUnit = unit
		return nil
	}
}

// WithServer enables the HTTP status server on port. Port 0 binds a free
// port.
//
// Returns an error if the port is outside 0-65535.
func WithServer(port int) Option {
	return func(cfg *supConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.serverEnabled = true
		cfg.port = port
		return nil
	}
}

// WithResultCallback registers a function to be called with every probe
// result, after the result has been recorded.
//
// Callbacks run on the probing goroutine and must not block. Several
// callbacks may be registered; they execute in registration order. Panics
// are recovered and logged.
//
// Nil callbacks are silently ignored.
func WithResultCallback(cb func(ProbeResult)) Option {
	return func(cfg *supConfig) error {
		if cb == nil {
			return nil
		}
		cfg.callbacks = append(cfg.callbacks, cb)
		return nil
	}
}
