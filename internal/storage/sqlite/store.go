// Package sqlite is a single-file route source and result sink with the
// same tables as the PostgreSQL backend.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/guregu/null/v5"
	_ "modernc.org/sqlite"

	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS "Route" (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	url                     TEXT NOT NULL,
	method                  TEXT NOT NULL DEFAULT 'GET',
	"requestHeaders"        TEXT,
	"requestBody"           TEXT,
	"expectedStatusCode"    INTEGER,
	"responseTimeThreshold" INTEGER,
	"monitoringInterval"    INTEGER DEFAULT 5,
	retries                 INTEGER,
	"alertEmail"            TEXT,
	"isActive"              INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS "RequestLog" (
	id             TEXT PRIMARY KEY,
	"statusCode"   INTEGER,
	"responseTime" INTEGER,
	"isSuccess"    INTEGER NOT NULL,
	"routeId"      TEXT NOT NULL,
	"createdAt"    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	FOREIGN KEY("routeId") REFERENCES "Route"(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS "RequestLog_routeId_createdAt_idx" ON "RequestLog" ("routeId", "createdAt" DESC);
`

// timeLayout matches the createdAt column default. It is fixed-width so that
// createdAt sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Store implements storage.RouteSource and storage.ResultSink on a SQLite
// database file.
type Store struct {
	db *sql.DB
}

// New opens the database file at path, creating it if needed, and runs the
// migrations.
func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the route and result tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ActiveRoutes returns every route whose isActive flag is set, ordered by id.
func (s *Store) ActiveRoutes(ctx context.Context) ([]route.Route, error) {
	query := `
SELECT id, name, url, method, "requestHeaders", "requestBody", "expectedStatusCode",
       "responseTimeThreshold", COALESCE("monitoringInterval", 0), retries, "alertEmail", "isActive"
FROM "Route"
WHERE "isActive" = 1
ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active routes: %w", err)
	}
	defer rows.Close()

	var routes []route.Route
	for rows.Next() {
		var (
			r       route.Route
			headers null.String
		)
		err := rows.Scan(&r.ID, &r.Name, &r.URL, &r.Method, &headers, &r.RequestBody,
			&r.ExpectedStatusCode, &r.ResponseTimeThreshold, &r.MonitoringInterval,
			&r.Retries, &r.AlertEmail, &r.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}
		r.RequestHeaders = storage.DecodeHeaders([]byte(headers.String))
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// RecordResult appends one row to the request log. createdAt is assigned by
// the database.
func (s *Store) RecordResult(ctx context.Context, result route.Result) error {
	query := `
INSERT INTO "RequestLog" (id, "statusCode", "responseTime", "isSuccess", "routeId")
VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.StatusCode,
		result.ResponseTimeMs,
		result.IsSuccess,
		result.RouteID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

const upsertRouteQuery = `
INSERT INTO "Route" (id, name, url, method, "requestHeaders", "requestBody", "expectedStatusCode",
                     "responseTimeThreshold", "monitoringInterval", retries, "alertEmail", "isActive")
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	url = excluded.url,
	method = excluded.method,
	"requestHeaders" = excluded."requestHeaders",
	"requestBody" = excluded."requestBody",
	"expectedStatusCode" = excluded."expectedStatusCode",
	"responseTimeThreshold" = excluded."responseTimeThreshold",
	"monitoringInterval" = excluded."monitoringInterval",
	retries = excluded.retries,
	"alertEmail" = excluded."alertEmail",
	"isActive" = excluded."isActive"`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertRoute inserts r or replaces the stored route with the same id.
func (s *Store) UpsertRoute(ctx context.Context, r route.Route) error {
	return upsertRoute(ctx, s.db, r)
}

func upsertRoute(ctx context.Context, db execer, r route.Route) error {
	headers, err := storage.EncodeHeaders(r.RequestHeaders)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, upsertRouteQuery,
		r.ID, r.Name, r.URL, r.Method, headers, r.RequestBody, r.ExpectedStatusCode,
		r.ResponseTimeThreshold, r.MonitoringInterval, r.Retries, r.AlertEmail, r.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert route %s: %w", r.ID, err)
	}
	return nil
}

// SyncRoutes makes routes the active route set in one transaction: each is
// upserted as active and every other route is deactivated. Request logs of
// deactivated routes are kept.
func (s *Store) SyncRoutes(ctx context.Context, routes []route.Route) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin route sync: %w", err)
	}
	defer tx.Rollback()

	ids := make([]any, 0, len(routes))
	for _, r := range routes {
		r.IsActive = true
		if err := upsertRoute(ctx, tx, r); err != nil {
			return err
		}
		ids = append(ids, r.ID)
	}

	query := `UPDATE "Route" SET "isActive" = 0 WHERE "isActive" = 1`
	if len(ids) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(", ?", len(ids)-1) + `)`
	}
	if _, err := tx.ExecContext(ctx, query, ids...); err != nil {
		return fmt.Errorf("failed to deactivate missing routes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit route sync: %w", err)
	}
	return nil
}

// DeactivateRoute clears the isActive flag of the route with the given id.
// It returns storage.ErrNotFound if no such route exists.
func (s *Store) DeactivateRoute(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE "Route" SET "isActive" = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate route: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate route: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListResults returns up to limit results for a route, newest first. The
// CheckedAt of each result is the time the row was written.
func (s *Store) ListResults(ctx context.Context, routeID string, limit int) ([]route.Result, error) {
	query := `
SELECT id, "statusCode", "responseTime", "isSuccess", "routeId", "createdAt"
FROM "RequestLog"
WHERE "routeId" = ?
ORDER BY "createdAt" DESC, rowid DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, routeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []route.Result
	for rows.Next() {
		var (
			r            route.Result
			responseTime null.Int
			createdAt    string
		)
		if err := rows.Scan(&r.ID, &r.StatusCode, &responseTime, &r.IsSuccess, &r.RouteID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.ResponseTimeMs = responseTime.Int64
		r.CheckedAt, err = time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse createdAt %q: %w", createdAt, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
