// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates all required tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getTableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// getTableCreationQueries returns the DDL of the persistent tables. Layer
// tables are versioned and created on publish (see layers.go).
func (db *DB) getTableCreationQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS raw_observations_id_seq START 1`,

		// Raw Observation Log: append-only, one row per poll.
		`CREATE TABLE IF NOT EXISTS raw_observations (
			id BIGINT PRIMARY KEY DEFAULT nextval('raw_observations_id_seq'),
			trip_id TEXT NOT NULL,
			stop_sequence INTEGER NOT NULL,
			service_date TEXT NOT NULL,
			stop_id TEXT NOT NULL,
			route_id TEXT,
			direction_id INTEGER NOT NULL,
			observed_arrival_time TIMESTAMPTZ,
			arrival_delay_seconds INTEGER,
			feed_timestamp TIMESTAMPTZ NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS routes (
			route_id TEXT PRIMARY KEY,
			route_short_name TEXT,
			route_long_name TEXT,
			route_type INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS trips (
			trip_id TEXT PRIMARY KEY,
			route_id TEXT NOT NULL,
			direction_id INTEGER NOT NULL,
			service_id TEXT,
			trip_headsign TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS stops (
			stop_id TEXT PRIMARY KEY,
			stop_name TEXT,
			stop_lat DOUBLE NOT NULL,
			stop_lon DOUBLE NOT NULL,
			region_id TEXT
		)`,

		// boundary holds a GeoJSON Polygon or MultiPolygon geometry.
		`CREATE TABLE IF NOT EXISTS regions (
			region_id TEXT PRIMARY KEY,
			region_name TEXT NOT NULL,
			region_type TEXT,
			boundary TEXT NOT NULL
		)`,

		// Mirror of the Badger ledger for SQL consumers.
		`CREATE TABLE IF NOT EXISTS refresh_ledger (
			layer TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			run_id TEXT,
			started_at TIMESTAMPTZ,
			last_refresh_time TIMESTAMPTZ,
			last_success_time TIMESTAMPTZ,
			duration_ms BIGINT,
			rows_affected BIGINT,
			version BIGINT,
			high_water BIGINT,
			error_message TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS predictions (
			region_id TEXT NOT NULL,
			route_id TEXT NOT NULL,
			direction_id INTEGER NOT NULL,
			stop_id TEXT NOT NULL,
			batch_created_at TIMESTAMPTZ NOT NULL,
			target_time TIMESTAMPTZ NOT NULL,
			horizon_offset INTEGER NOT NULL,
			predicted_delay_seconds DOUBLE NOT NULL,
			model_version TEXT NOT NULL,
			confidence DOUBLE,
			PRIMARY KEY (region_id, route_id, direction_id, stop_id, batch_created_at, horizon_offset)
		)`,

		// Newest batch per series key.
		`CREATE OR REPLACE VIEW latest_predictions AS
		SELECT region_id, route_id, direction_id, stop_id, batch_created_at, target_time,
			horizon_offset, predicted_delay_seconds, model_version, confidence
		FROM (
			SELECT *, MAX(batch_created_at) OVER (
				PARTITION BY region_id, route_id, direction_id, stop_id
			) AS newest_batch
			FROM predictions
		)
		WHERE batch_created_at = newest_batch`,
	}
}

// createIndexes creates secondary indexes
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range db.getIndexQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func (db *DB) getIndexQueries() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_raw_feed_timestamp ON raw_observations(feed_timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_key ON raw_observations(service_date, trip_id, stop_sequence)`,
		`CREATE INDEX IF NOT EXISTS idx_stops_region ON stops(region_id)`,
		`CREATE INDEX IF NOT EXISTS idx_predictions_batch ON predictions(batch_created_at)`,
	}
}
