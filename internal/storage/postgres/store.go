// Package postgres reads routes from and writes probe results to PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/guregu/null/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpalmerr/routepulse/internal/route"
	"github.com/jpalmerr/routepulse/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS "Route" (
	id                      TEXT PRIMARY KEY,
	name                    TEXT NOT NULL,
	url                     TEXT NOT NULL,
	method                  TEXT NOT NULL DEFAULT 'GET',
	"requestHeaders"        JSONB,
	"requestBody"           TEXT,
	"expectedStatusCode"    INTEGER,
	"responseTimeThreshold" INTEGER,
	"monitoringInterval"    INTEGER DEFAULT 5,
	retries                 INTEGER,
	"alertEmail"            TEXT,
	"isActive"              BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS "RequestLog" (
	id             TEXT PRIMARY KEY,
	"statusCode"   INTEGER,
	"responseTime" INTEGER,
	"isSuccess"    BOOLEAN NOT NULL,
	"routeId"      TEXT NOT NULL REFERENCES "Route"(id) ON DELETE CASCADE,
	"createdAt"    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS "RequestLog_routeId_createdAt_idx" ON "RequestLog" ("routeId", "createdAt" DESC);
`

const activeRoutesQuery = `
SELECT
	id::text,
	name,
	url,
	method,
	"requestHeaders",
	"requestBody",
	"expectedStatusCode",
	"responseTimeThreshold",
	COALESCE("monitoringInterval", 0),
	retries,
	"alertEmail",
	"isActive"
FROM "Route"
WHERE "isActive" = true
ORDER BY id`

const insertResultQuery = `
INSERT INTO "RequestLog" (id, "statusCode", "responseTime", "isSuccess", "routeId")
VALUES ($1, $2, $3, $4, $5)`

const upsertRouteQuery = `
INSERT INTO "Route" (id, name, url, method, "requestHeaders", "requestBody", "expectedStatusCode",
                     "responseTimeThreshold", "monitoringInterval", retries, "alertEmail", "isActive")
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	url = EXCLUDED.url,
	method = EXCLUDED.method,
	"requestHeaders" = EXCLUDED."requestHeaders",
	"requestBody" = EXCLUDED."requestBody",
	"expectedStatusCode" = EXCLUDED."expectedStatusCode",
	"responseTimeThreshold" = EXCLUDED."responseTimeThreshold",
	"monitoringInterval" = EXCLUDED."monitoringInterval",
	retries = EXCLUDED.retries,
	"alertEmail" = EXCLUDED."alertEmail",
	"isActive" = EXCLUDED."isActive"`

const deactivateMissingQuery = `
UPDATE "Route" SET "isActive" = false
WHERE "isActive" AND NOT (id::text = ANY($1))`

// Store implements storage.RouteSource and storage.ResultSink on a pgx
// connection pool.
type Store struct {
	db *pgxpool.Pool
}

// New connects to PostgreSQL and verifies the connection. maxConns caps the
// pool size; zero keeps the pgx default.
func New(ctx context.Context, connString string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

// Migrate creates the route and result tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// ActiveRoutes returns every route whose isActive flag is set.
func (s *Store) ActiveRoutes(ctx context.Context) ([]route.Route, error) {
	rows, err := s.db.Query(ctx, activeRoutesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query active routes: %w", err)
	}

	routes, err := pgx.CollectRows(rows, scanRoute)
	if err != nil {
		return nil, fmt.Errorf("failed to scan route row: %w", err)
	}
	return routes, nil
}

// RecordResult appends one row to the request log. createdAt is assigned by
// the database.
func (s *Store) RecordResult(ctx context.Context, result route.Result) error {
	_, err := s.db.Exec(ctx, insertResultQuery,
		result.ID,
		result.StatusCode,
		null.IntFrom(result.ResponseTimeMs),
		result.IsSuccess,
		result.RouteID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

// UpsertRoute inserts r or replaces the stored route with the same id.
func (s *Store) UpsertRoute(ctx context.Context, r route.Route) error {
	return upsertRoute(ctx, s.db, r)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertRoute(ctx context.Context, db execer, r route.Route) error {
	headers, err := storage.EncodeHeaders(r.RequestHeaders)
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, upsertRouteQuery,
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
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin route sync: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		r.IsActive = true
		if err := upsertRoute(ctx, tx, r); err != nil {
			return err
		}
		ids = append(ids, r.ID)
	}
	if _, err := tx.Exec(ctx, deactivateMissingQuery, ids); err != nil {
		return fmt.Errorf("failed to deactivate missing routes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit route sync: %w", err)
	}
	return nil
}

func scanRoute(row pgx.CollectableRow) (route.Route, error) {
	var (
		r       route.Route
		headers []byte
	)
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.URL,
		&r.Method,
		&headers,
		&r.RequestBody,
		&r.ExpectedStatusCode,
		&r.ResponseTimeThreshold,
		&r.MonitoringInterval,
		&r.Retries,
		&r.AlertEmail,
		&r.IsActive,
	)
	if err != nil {
		return route.Route{}, err
	}

	r.RequestHeaders = storage.DecodeHeaders(headers)
	return r, nil
}
