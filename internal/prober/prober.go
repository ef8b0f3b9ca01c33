// Package prober executes a single health check of a route: one or more
// HTTP attempts, evaluated against the route's status and latency criteria.
package prober

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"golang.org/x/net/http/httpguts"

	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage"
)

const (
	// DefaultTimeout bounds each HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultRetryBackoff is the pause between two attempts of one probe.
	DefaultRetryBackoff = 500 * time.Millisecond
)

var knownMethods = map[string]string{
	http.MethodGet:     http.MethodGet,
	http.MethodPost:    http.MethodPost,
	http.MethodPut:     http.MethodPut,
	http.MethodDelete:  http.MethodDelete,
	http.MethodPatch:   http.MethodPatch,
	http.MethodHead:    http.MethodHead,
	http.MethodOptions: http.MethodOptions,
}

// Prober runs checks against routes and hands every outcome to a sink.
//
// A Prober holds no per-route state and is safe for concurrent use.
type Prober struct {
	client  *Client
	sink    storage.ResultSink
	timeout time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

// Option configures a [Prober].
type Option func(*Prober)

// WithTimeout sets the per-attempt HTTP timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRetryBackoff sets the pause between attempts. Negative values are ignored.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Prober) {
		if d >= 0 {
			p.backoff = d
		}
	}
}

// WithLogger sets the logger used for probe outcomes and sink failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClient replaces the default pooled HTTP client.
func WithClient(c *Client) Option {
	return func(p *Prober) {
		if c != nil {
			p.client = c
		}
	}
}

// New creates a [Prober] that records results to sink. A nil sink discards them.
func New(sink storage.ResultSink, opts ...Option) *Prober {
	p := &Prober{
		client:  NewClient(),
		sink:    sink,
		timeout: DefaultTimeout,
		backoff: DefaultRetryBackoff,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases idle connections held by the underlying client.
func (p *Prober) Close() {
	p.client.Close()
}

// Run probes rt and records the result. A failed write is logged and the
// result is still returned.
func (p *Prober) Run(ctx context.Context, rt route.Route) route.Result {
	result := p.Probe(ctx, rt)
	p.logResult(result)

	if p.sink == nil {
		return result
	}

	// the write must outlive a probe cancelled by shutdown
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.sink.RecordResult(writeCtx, result); err != nil {
		p.logger.Error("failed to record probe result",
			"route_id", rt.ID,
			"result_id", result.ID,
			"error", err,
		)
	}
	return result
}

// Probe checks rt and returns the outcome without recording it.
//
// Up to RetryCount()+1 attempts are made; retrying stops at the first
// attempt that satisfies the status criterion. The response time threshold
// is applied once, to the total elapsed time across all attempts.
func (p *Prober) Probe(ctx context.Context, rt route.Route) route.Result {
	req := buildRequest(rt)
	retries := rt.RetryCount()

	result := route.Result{
		ID:        uuid.NewString(),
		RouteID:   rt.ID,
		RouteName: rt.Name,
		URL:       rt.URL,
		Method:    req.Method,
		CheckedAt: time.Now(),
	}

	start := time.Now()
	success := false

	for attempt := 0; attempt <= retries; attempt++ {
		result.Attempts++
		resp := p.client.Fetch(ctx, req, p.timeout)

		if resp.Error != nil {
			success = false
			result.Error = null.StringFrom(resp.Error.Error())
			p.logger.Debug("probe attempt failed",
				"route_id", rt.ID,
				"attempt", attempt+1,
				"error", resp.Error,
			)
		} else {
			result.Error = null.String{}
			result.StatusCode = null.IntFrom(int64(resp.StatusCode))
			success = statusSatisfied(rt, resp.StatusCode)
			p.logger.Debug("probe attempt completed",
				"route_id", rt.ID,
				"attempt", attempt+1,
				"status_code", resp.StatusCode,
				"success", success,
			)
			if success {
				break
			}
		}

		if attempt < retries && !sleep(ctx, p.backoff) {
			break
		}
	}

	elapsed := time.Since(start)
	result.ResponseTimeMs = elapsed.Milliseconds()

	if rt.ResponseTimeThreshold.Valid && result.ResponseTimeMs > rt.ResponseTimeThreshold.Int64 {
		result.ThresholdExceeded = success
		success = false
	}
	result.IsSuccess = success

	return result
}

func (p *Prober) logResult(result route.Result) {
	attrs := []any{
		"route_id", result.RouteID,
		"route", result.RouteName,
		"url", result.URL,
		"status", result.Status().String(),
		"response_time_ms", result.ResponseTimeMs,
		"attempts", result.Attempts,
	}
	if result.StatusCode.Valid {
		attrs = append(attrs, "status_code", result.StatusCode.Int64)
	}
	if result.IsSuccess {
		p.logger.Debug("probe completed", attrs...)
		return
	}
	if result.Error.Valid {
		attrs = append(attrs, "error", result.Error.String)
	}
	p.logger.Warn("probe failed", attrs...)
}

// statusSatisfied applies the status criterion: an exact match when the route
// names an expected code, otherwise any 2xx.
func statusSatisfied(rt route.Route, code int) bool {
	if rt.ExpectedStatusCode.Valid {
		return int64(code) == rt.ExpectedStatusCode.Int64
	}
	return code >= 200 && code < 300
}

func buildRequest(rt route.Route) Request {
	header, host := buildHeader(rt.RequestHeaders)
	return Request{
		Method:  resolveMethod(rt.Method),
		URL:     rt.URL,
		Header:  header,
		Host:    host,
		Body:    rt.RequestBody.String,
		HasBody: rt.RequestBody.Valid,
	}
}

// resolveMethod maps the stored method onto a known HTTP method, falling
// back to GET.
func resolveMethod(m string) string {
	if method, ok := knownMethods[strings.ToUpper(strings.TrimSpace(m))]; ok {
		return method
	}
	return http.MethodGet
}

// buildHeader keeps the string-valued entries that form a valid HTTP header.
// Each bad entry is dropped on its own. A Host entry is returned separately
// because net/http ignores it in the header map.
func buildHeader(raw map[string]any) (http.Header, string) {
	header := make(http.Header, len(raw))
	var host string
	for name, v := range raw {
		value, ok := v.(string)
		if !ok {
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		if strings.EqualFold(name, "Host") {
			host = value
			continue
		}
		header.Set(name, value)
	}
	return header, host
}

// sleep waits for d or until ctx is done, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
