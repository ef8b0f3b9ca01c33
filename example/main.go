// Command example runs the routepulse SDK against a local mock service.
//
//	go run ./example
//
// Then open http://localhost:8080/api/status or stream updates from
// http://localhost:8080/api/sse.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guregu/null/v5"

	"github.com/jpalmerr/routepulse"
)

// staticSource serves a fixed route set.
type staticSource []routepulse.Route

func (s staticSource) ActiveRoutes(context.Context) ([]routepulse.Route, error) {
	return s, nil
}

func main() {
	// start mock server (see mock_server.go)
	go StartMockHealthServer(":9999")
	time.Sleep(100 * time.Millisecond)

	routes := staticSource{
		{ID: "users", Name: "Users API", URL: "http://localhost:9999/users", Method: "GET",
			ResponseTimeThreshold: null.IntFrom(300), MonitoringInterval: 5, IsActive: true},
		{ID: "orders", Name: "Orders API", URL: "http://localhost:9999/orders", Method: "GET",
			ExpectedStatusCode: null.IntFrom(200), Retries: null.IntFrom(1), MonitoringInterval: 5, IsActive: true},
		{ID: "github", Name: "GitHub", URL: "https://api.github.com", Method: "HEAD",
			MonitoringInterval: 30, IsActive: true},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	sup, err := routepulse.New(routes, nil,
		routepulse.WithLogger(logger),
		routepulse.WithServer(8080),
		routepulse.WithResultCallback(func(r routepulse.ProbeResult) {
			if r.Status() != routepulse.StatusUp {
				fmt.Printf("  %-10s %-8s %4dms\n", r.RouteID, r.Status(), r.ResponseTimeMs)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create supervisor", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  routepulse demo")
	fmt.Println("  status:  http://localhost:8080/api/status")
	fmt.Println("  stream:  http://localhost:8080/api/sse")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		slog.Error("routepulse error", "error", err)
		os.Exit(1)
	}
}
