package prober

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// bodies are drained so connections return to the pool, but never past this
const maxDrainSize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when probing many routes
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Request describes one HTTP attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header

	// Host overrides the Host header when non-empty.
	Host string

	// Body is sent verbatim when HasBody is set, regardless of method.
	Body    string
	HasBody bool
}

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the time taken for this attempt.
	Latency time.Duration

	// Error contains any transport error (connection failure, timeout).
	// nil indicates a response was received, whatever its status.
	Error error
}

// Client is an HTTP client wrapper for probing routes.
//
// Client uses per-request timeouts via context rather than a global timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new probing [Client] with a pooled transport.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Fetch performs one HTTP attempt bounded by timeout.
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately.
func (c *Client) Fetch(ctx context.Context, r Request, timeout time.Duration) Response {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.HasBody {
		body = strings.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	for key, values := range r.Header {
		req.Header[key] = values
	}
	if r.Host != "" {
		req.Host = r.Host
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	// the status is all we need; draining lets the connection be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))

	return Response{
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil client. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
