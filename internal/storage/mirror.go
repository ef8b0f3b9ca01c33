package storage

import (
	"context"
	"fmt"

	"github.com/jpalmerr/routepulse/internal/route"
)

// RouteSyncer stores a complete route set: every given route is upserted as
// active and every other stored route is deactivated.
type RouteSyncer interface {
	SyncRoutes(ctx context.Context, routes []route.Route) error
}

// Mirror returns a RouteSource that reads from src and writes each fetched
// set to dst before returning it, so results recorded in dst can reference
// routes that live elsewhere. A failed write fails the fetch.
func Mirror(src RouteSource, dst RouteSyncer) RouteSource {
	return mirror{src: src, dst: dst}
}

type mirror struct {
	src RouteSource
	dst RouteSyncer
}

func (m mirror) ActiveRoutes(ctx context.Context) ([]route.Route, error) {
	routes, err := m.src.ActiveRoutes(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.dst.SyncRoutes(ctx, routes); err != nil {
		return nil, fmt.Errorf("mirroring routes: %w", err)
	}
	return routes, nil
}
