package store

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"

	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/editor"
	"github.com/Healthy-Streets-Scorecard-Cycle-Tracks/tracks-core/internal/geom"
)

// Store loads and saves the route dataset for one borough. Saves replace the
// borough's rows wholesale inside a transaction; the dataset in memory is the
// unit of editing, not the row.
type Store struct {
	pool *Pool
	q    *Queries
	log  zerolog.Logger
}

func New(pool *Pool, log zerolog.Logger) *Store {
	return &Store{pool: pool, q: NewQueries(pool.DB()), log: log}
}

// LoadRoutes reads every route for the borough in saved order.
func (s *Store) LoadRoutes(ctx context.Context, borough string) ([]*editor.Route, error) {
	rows, err := s.q.ListRoutesByBorough(ctx, borough)
	if err != nil {
		return nil, fmt.Errorf("list routes for %s: %w", borough, err)
	}
	routes := make([]*editor.Route, 0, len(rows))
	for _, row := range rows {
		r, err := RouteFromRow(row)
		if err != nil {
			// One bad row must not take the whole borough down.
			s.log.Warn().Str("guid", row.GUID).Err(err).Msg("skipping unreadable route row")
			continue
		}
		routes = append(routes, r)
	}
	s.log.Info().Str("borough", borough).Int("routes", len(routes)).Msg("routes loaded")
	return routes, nil
}

// SaveRoutes replaces the borough's persisted routes with the given set.
func (s *Store) SaveRoutes(ctx context.Context, borough string, routes []*editor.Route) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := s.q.WithTx(tx)
	if err := q.DeleteRoutesByBorough(ctx, borough); err != nil {
		return fmt.Errorf("clear routes for %s: %w", borough, err)
	}
	for i, r := range routes {
		row, err := RowFromRoute(r, borough, int32(i))
		if err != nil {
			return err
		}
		if err := q.InsertRoute(ctx, row); err != nil {
			return fmt.Errorf("insert route %s: %w", r.GUID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	s.log.Info().Str("borough", borough).Int("routes", len(routes)).Msg("routes saved")
	return nil
}

// RowFromRoute converts an in-memory route to its persisted form.
func RowFromRoute(r *editor.Route, borough string, position int32) (RouteRow, error) {
	if r == nil || r.GUID == "" {
		return RouteRow{}, fmt.Errorf("route missing guid")
	}
	if len(r.Geometry) == 0 {
		return RouteRow{}, fmt.Errorf("route %s has no geometry", r.GUID)
	}
	return RouteRow{
		GUID:            r.GUID,
		Borough:         borough,
		Position:        position,
		RouteID:         r.ID,
		Name:            r.Name,
		Comment:         r.Comment,
		Geometry:        geom.MarshalEWKT(r.Geometry, geom.StorageSRID),
		Designation:     r.Designation,
		Ownership:       r.Ownership,
		OneWay:          r.OneWay,
		Flow:            r.Flow,
		Protection:      r.Protection,
		YearBuilt:       r.YearBuilt,
		YearBuiltBefore: r.YearBuiltBefore,
		AuditedInPerson: r.AuditedInPerson,
		AuditedOnline:   r.AuditedOnline,
		Rejected:        r.Rejected,
		History:         r.History,
		WhenCreated:     r.WhenCreated,
		LastEdited:      r.LastEdited,
	}, nil
}

// RouteFromRow converts a persisted row back to the in-memory route. Plain
// LineString geometry from older exports is promoted to a single-part multi.
func RouteFromRow(row RouteRow) (*editor.Route, error) {
	g, _, err := geom.UnmarshalEWKT(row.Geometry)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", row.GUID, err)
	}
	var ml orb.MultiLineString
	switch gg := g.(type) {
	case orb.MultiLineString:
		ml = gg
	case orb.LineString:
		ml = orb.MultiLineString{gg}
	default:
		return nil, fmt.Errorf("route %s: unexpected geometry type %T", row.GUID, g)
	}
	return &editor.Route{
		GUID:            row.GUID,
		ID:              row.RouteID,
		Name:            row.Name,
		Comment:         row.Comment,
		Geometry:        ml,
		Designation:     row.Designation,
		Ownership:       row.Ownership,
		OneWay:          row.OneWay,
		Flow:            row.Flow,
		Protection:      row.Protection,
		YearBuilt:       row.YearBuilt,
		YearBuiltBefore: row.YearBuiltBefore,
		AuditedInPerson: row.AuditedInPerson,
		AuditedOnline:   row.AuditedOnline,
		Rejected:        row.Rejected,
		History:         row.History,
		WhenCreated:     row.WhenCreated,
		LastEdited:      row.LastEdited,
	}, nil
}
