// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/transitpulse/internal/geo"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// LoadRoutes implements reference.Source.
func (db *DB) LoadRoutes(ctx context.Context) (routes []models.Route, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''), COALESCE(route_type, 0)
		FROM routes ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var r models.Route
		if err = rows.Scan(&r.RouteID, &r.ShortName, &r.LongName, &r.RouteType); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// LoadTrips implements reference.Source.
func (db *DB) LoadTrips(ctx context.Context) (trips []models.Trip, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT trip_id, route_id, direction_id, COALESCE(service_id, ''), COALESCE(trip_headsign, '')
		FROM trips ORDER BY trip_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var t models.Trip
		if err = rows.Scan(&t.TripID, &t.RouteID, &t.DirectionID, &t.ServiceID, &t.Headsign); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// LoadStops implements reference.Source. Spatial features are derived by
// the catalogue, so only the stored columns are returned.
func (db *DB) LoadStops(ctx context.Context) (stops []models.Stop, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon, region_id
		FROM stops ORDER BY stop_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stops: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			s        models.Stop
			regionID sql.NullString
		)
		if err = rows.Scan(&s.StopID, &s.Name, &s.Lat, &s.Lon, &regionID); err != nil {
			return nil, fmt.Errorf("failed to scan stop: %w", err)
		}
		if regionID.Valid {
			s.RegionID = models.String(regionID.String)
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

// LoadRegions implements reference.Source.
func (db *DB) LoadRegions(ctx context.Context) (regions []models.Region, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT region_id, region_name, COALESCE(region_type, ''), boundary
		FROM regions ORDER BY region_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			r        models.Region
			boundary string
		)
		if err = rows.Scan(&r.RegionID, &r.Name, &r.Type, &boundary); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		if r.Boundary, err = geo.ParseGeoJSON([]byte(boundary)); err != nil {
			return nil, fmt.Errorf("region %s boundary: %w", r.RegionID, err)
		}
		regions = append(regions, r)
	}
	return regions, rows.Err()
}

// UpdateStopRegions implements reference.AssignmentWriter. A nil region
// clears the assignment.
func (db *DB) UpdateStopRegions(ctx context.Context, assignments map[string]*string) (err error) {
	if len(assignments) == 0 {
		return nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("UPDATE", "stops", time.Since(start), err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { rollback(tx, err) }()

	stmt, err := tx.PrepareContext(ctx, `UPDATE stops SET region_id = ? WHERE stop_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare update: %w", err)
	}
	defer closeQuietly(stmt)

	// Stable order keeps the transaction deterministic.
	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var region sql.NullString
		if r := assignments[id]; r != nil {
			region = sql.NullString{String: *r, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, region, id); err != nil {
			return fmt.Errorf("failed to update stop %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ReplaceReference loads a full static dataset, replacing the previous one.
// Stop region assignments are cleared; the catalogue re-derives them.
func (db *DB) ReplaceReference(ctx context.Context, routes []models.Route, trips []models.Trip,
	stops []models.Stop, regions []models.Region) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("REPLACE", "reference", time.Since(start), err) }()

	boundaries := make([]string, len(regions))
	for i := range regions {
		data, mErr := regions[i].Boundary.MarshalGeoJSON()
		if mErr != nil {
			return fmt.Errorf("region %s boundary: %w", regions[i].RegionID, mErr)
		}
		boundaries[i] = string(data)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { rollback(tx, err) }()

	for _, table := range []string{"routes", "trips", "stops", "regions"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err = insertEach(ctx, tx, `INSERT INTO routes VALUES (?, ?, ?, ?)`, len(routes), func(i int) []any {
		r := &routes[i]
		return []any{r.RouteID, r.ShortName, r.LongName, r.RouteType}
	}); err != nil {
		return err
	}
	if err = insertEach(ctx, tx, `INSERT INTO trips VALUES (?, ?, ?, ?, ?)`, len(trips), func(i int) []any {
		t := &trips[i]
		return []any{t.TripID, t.RouteID, t.DirectionID, t.ServiceID, t.Headsign}
	}); err != nil {
		return err
	}
	if err = insertEach(ctx, tx, `INSERT INTO stops VALUES (?, ?, ?, ?, NULL)`, len(stops), func(i int) []any {
		s := &stops[i]
		return []any{s.StopID, s.Name, s.Lat, s.Lon}
	}); err != nil {
		return err
	}
	if err = insertEach(ctx, tx, `INSERT INTO regions VALUES (?, ?, ?, ?)`, len(regions), func(i int) []any {
		r := &regions[i]
		return []any{r.RegionID, r.Name, r.Type, boundaries[i]}
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// insertEach runs query once per row inside tx using a prepared statement.
func insertEach(ctx context.Context, tx *sql.Tx, query string, n int, args func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer closeQuietly(stmt)

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return nil
}
