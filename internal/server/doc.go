// Package server provides the optional HTTP status surface.
//
// It handles all HTTP concerns:
//
//   - REST API: JSON snapshot of every route's status at "/api/status"
//   - Server-Sent Events: Real-time updates at "/api/sse"
//   - Liveness: "/healthz"
//   - Manual probe: "POST /api/routes/{id}/probe" runs one out-of-band check
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
