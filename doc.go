// Package routepulse schedules periodic health checks of HTTP routes held in
// a route store and records every outcome.
//
// Routes are grouped by their monitoring interval. Each distinct interval is
// served by one scheduler goroutine that probes all of its routes
// concurrently once per period. A watcher re-reads the route store on a
// fixed period and moves routes between schedulers as they are added,
// removed, or given a new interval.
//
// # Quick Start
//
//	st, _ := sqlite.New(ctx, "routes.db")
//	sup, err := routepulse.New(st, st,
//	    routepulse.WithWatchPeriod(30*time.Second),
//	    routepulse.WithServer(8080),
//	)
//	if err != nil {
//	    slog.Error("failed to create supervisor", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sup.Start(ctx) // blocks until ctx is cancelled
//
// # Probing
//
// A probe issues up to retries+1 HTTP attempts and stops at the first one
// whose status satisfies the route: the expected status code when set,
// otherwise any 2xx. The response time threshold applies to the total time
// across attempts. Each outcome has a derived [Status]:
//
//   - [StatusUp]: the probe succeeded
//   - [StatusDegraded]: the status was satisfied but the threshold was exceeded
//   - [StatusDown]: anything else
//
// Probe failures never stop the scheduler; they are recorded like any other
// result.
//
// # Status Server
//
// [WithServer] enables a small HTTP surface with the latest result and
// rolling uptime of every route (GET /api/status), a Server-Sent Events
// stream of updates (GET /api/sse), a liveness check (GET /healthz), and a
// manual probe trigger (POST /api/routes/{id}/probe).
package routepulse
