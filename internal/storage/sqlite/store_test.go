package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v5"

	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "routepulse.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRoute(id string) route.Route {
	return route.Route{
		ID:                    id,
		Name:                  "health " + id,
		URL:                   "https://example.com/" + id,
		Method:                "POST",
		RequestHeaders:        map[string]any{"Accept": "application/json"},
		RequestBody:           null.StringFrom(`{"ping":true}`),
		ExpectedStatusCode:    null.IntFrom(201),
		ResponseTimeThreshold: null.IntFrom(500),
		MonitoringInterval:    30,
		Retries:               null.IntFrom(2),
		IsActive:              true,
	}
}

func TestStore_UpsertAndActiveRoutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := sampleRoute("a")
	if err := s.UpsertRoute(ctx, want); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}
	bare := route.Route{ID: "b", Name: "bare", URL: "http://example.com", Method: "GET", MonitoringInterval: 5, IsActive: true}
	if err := s.UpsertRoute(ctx, bare); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}

	routes, err := s.ActiveRoutes(ctx)
	if err != nil {
		t.Fatalf("ActiveRoutes() error = %v", err)
	}
	if len(routes) != 2 {
		t.Fatalf("ActiveRoutes() returned %d routes, want 2", len(routes))
	}

	got := routes[0]
	if got.ID != "a" || got.Method != "POST" || got.MonitoringInterval != 30 {
		t.Errorf("route a = %+v", got)
	}
	if got.RequestHeaders["Accept"] != "application/json" {
		t.Errorf("RequestHeaders = %v", got.RequestHeaders)
	}
	if got.RequestBody != want.RequestBody || got.ExpectedStatusCode != want.ExpectedStatusCode {
		t.Errorf("optional fields = %v %v, want %v %v", got.RequestBody, got.ExpectedStatusCode, want.RequestBody, want.ExpectedStatusCode)
	}
	if got.Retries.Int64 != 2 || got.ResponseTimeThreshold.Int64 != 500 {
		t.Errorf("Retries/Threshold = %v/%v", got.Retries, got.ResponseTimeThreshold)
	}
	if got.AlertEmail.Valid {
		t.Errorf("AlertEmail = %v, want null", got.AlertEmail)
	}

	if routes[1].RequestHeaders != nil || routes[1].RequestBody.Valid || routes[1].Retries.Valid {
		t.Errorf("bare route optional fields not null: %+v", routes[1])
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := sampleRoute("a")
	if err := s.UpsertRoute(ctx, r); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}
	r.MonitoringInterval = 120
	r.URL = "https://example.org/moved"
	if err := s.UpsertRoute(ctx, r); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}

	routes, err := s.ActiveRoutes(ctx)
	if err != nil {
		t.Fatalf("ActiveRoutes() error = %v", err)
	}
	if len(routes) != 1 || routes[0].MonitoringInterval != 120 || routes[0].URL != r.URL {
		t.Errorf("ActiveRoutes() = %+v, want the updated route", routes)
	}
}

func TestStore_DeactivateRoute(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := s.UpsertRoute(ctx, sampleRoute(id)); err != nil {
			t.Fatalf("UpsertRoute(%s) error = %v", id, err)
		}
	}
	if err := s.DeactivateRoute(ctx, "a"); err != nil {
		t.Fatalf("DeactivateRoute() error = %v", err)
	}

	routes, err := s.ActiveRoutes(ctx)
	if err != nil {
		t.Fatalf("ActiveRoutes() error = %v", err)
	}
	if len(routes) != 1 || routes[0].ID != "b" {
		t.Errorf("ActiveRoutes() = %+v, want only b", routes)
	}

	if err := s.DeactivateRoute(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeactivateRoute(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_RecordAndListResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRoute(ctx, sampleRoute("a")); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}

	// CheckedAt is the probe start on the client and must not become createdAt
	stale := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Now().UTC().Truncate(time.Millisecond)
	results := []route.Result{
		{ID: uuid.NewString(), RouteID: "a", StatusCode: null.IntFrom(200), ResponseTimeMs: 40, IsSuccess: true, CheckedAt: stale},
		{ID: uuid.NewString(), RouteID: "a", ResponseTimeMs: 30000, IsSuccess: false, CheckedAt: stale},
		{ID: uuid.NewString(), RouteID: "a", StatusCode: null.IntFrom(503), ResponseTimeMs: 12, IsSuccess: false, CheckedAt: stale},
	}
	for _, r := range results {
		if err := s.RecordResult(ctx, r); err != nil {
			t.Fatalf("RecordResult() error = %v", err)
		}
	}
	after := time.Now().UTC().Add(time.Millisecond)

	got, err := s.ListResults(ctx, "a", 2)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListResults() returned %d, want 2", len(got))
	}
	if got[0].ID != results[2].ID || got[1].ID != results[1].ID {
		t.Errorf("ListResults() order = %s, %s; want newest first", got[0].ID, got[1].ID)
	}
	if got[0].StatusCode.Int64 != 503 || got[0].IsSuccess {
		t.Errorf("newest result = %+v", got[0])
	}
	if got[1].StatusCode.Valid {
		t.Errorf("transport failure statusCode = %v, want null", got[1].StatusCode)
	}
	for _, r := range got {
		if r.CheckedAt.Before(before) || r.CheckedAt.After(after) {
			t.Errorf("createdAt = %v, want database time between %v and %v", r.CheckedAt, before, after)
		}
	}
}

func TestStore_HeadersThatAreNotAnObjectAreDropped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.UpsertRoute(ctx, sampleRoute(id)); err != nil {
			t.Fatalf("UpsertRoute(%s) error = %v", id, err)
		}
	}
	// a stringified document, as written by the route editor
	if _, err := s.db.ExecContext(ctx, `UPDATE "Route" SET "requestHeaders" = ? WHERE id = 'b'`, `"{\"Accept\":\"text/plain\"}"`); err != nil {
		t.Fatalf("seeding headers: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE "Route" SET "requestHeaders" = '{not json' WHERE id = 'c'`); err != nil {
		t.Fatalf("seeding headers: %v", err)
	}

	routes, err := s.ActiveRoutes(ctx)
	if err != nil {
		t.Fatalf("ActiveRoutes() error = %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("ActiveRoutes() returned %d routes, want 3", len(routes))
	}
	if routes[0].RequestHeaders["Accept"] != "application/json" {
		t.Errorf("route a headers = %v", routes[0].RequestHeaders)
	}
	if routes[1].RequestHeaders != nil || routes[2].RequestHeaders != nil {
		t.Errorf("bad headers decoded as %v and %v, want none", routes[1].RequestHeaders, routes[2].RequestHeaders)
	}
}

func TestStore_SyncRoutes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRoute(ctx, sampleRoute("stale")); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}
	if err := s.RecordResult(ctx, route.Result{ID: uuid.NewString(), RouteID: "stale", IsSuccess: true}); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}

	fromFile := sampleRoute("api")
	fromFile.IsActive = false
	if err := s.SyncRoutes(ctx, []route.Route{fromFile, sampleRoute("web")}); err != nil {
		t.Fatalf("SyncRoutes() error = %v", err)
	}

	routes, err := s.ActiveRoutes(ctx)
	if err != nil {
		t.Fatalf("ActiveRoutes() error = %v", err)
	}
	if len(routes) != 2 || routes[0].ID != "api" || routes[1].ID != "web" {
		t.Fatalf("ActiveRoutes() = %+v, want api and web", routes)
	}
	if routes[0].RequestHeaders["Accept"] != "application/json" {
		t.Errorf("synced headers = %v", routes[0].RequestHeaders)
	}

	if err := s.RecordResult(ctx, route.Result{ID: uuid.NewString(), RouteID: "api", IsSuccess: true}); err != nil {
		t.Errorf("RecordResult() for a synced route error = %v", err)
	}
	history, err := s.ListResults(ctx, "stale", 10)
	if err != nil || len(history) != 1 {
		t.Errorf("deactivated route history = %d rows, %v; want 1 kept", len(history), err)
	}

	if err := s.SyncRoutes(ctx, nil); err != nil {
		t.Fatalf("SyncRoutes(nil) error = %v", err)
	}
	routes, err = s.ActiveRoutes(ctx)
	if err != nil || len(routes) != 0 {
		t.Errorf("ActiveRoutes() after empty sync = %+v, %v; want none", routes, err)
	}
}

func TestStore_RecordResultForUnknownRouteFails(t *testing.T) {
	s := newTestStore(t)
	err := s.RecordResult(context.Background(), route.Result{ID: uuid.NewString(), RouteID: "ghost", CheckedAt: time.Now()})
	if err == nil {
		t.Error("RecordResult() for unknown route succeeded, want foreign key error")
	}
}

func TestStore_ConcurrentRecordResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertRoute(ctx, sampleRoute("a")); err != nil {
		t.Fatalf("UpsertRoute() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.RecordResult(ctx, route.Result{ID: uuid.NewString(), RouteID: "a", IsSuccess: true, CheckedAt: time.Now()})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("RecordResult() error = %v", err)
		}
	}

	got, err := s.ListResults(ctx, "a", 100)
	if err != nil {
		t.Fatalf("ListResults() error = %v", err)
	}
	if len(got) != 20 {
		t.Errorf("ListResults() returned %d, want 20", len(got))
	}
}
