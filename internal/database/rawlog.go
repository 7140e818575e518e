// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// AppendObservations inserts rows into the raw log in one transaction and
// returns their IDs in input order.
func (db *DB) AppendObservations(ctx context.Context, rows []models.RawObservation) (ids []int64, err error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("INSERT", "raw_observations", time.Since(start), err) }()

	db.appendMu.Lock()
	defer db.appendMu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { rollback(tx, err) }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_observations (
			trip_id, stop_sequence, service_date, stop_id, route_id, direction_id,
			observed_arrival_time, arrival_delay_seconds, feed_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer closeQuietly(stmt)

	ids = make([]int64, len(rows))
	for i := range rows {
		r := &rows[i]
		var observed sql.NullTime
		if !r.ObservedArrivalTime.IsZero() {
			observed = sql.NullTime{Time: r.ObservedArrivalTime.UTC(), Valid: true}
		}
		if err = stmt.QueryRowContext(ctx,
			r.TripID, r.StopSequence, r.ServiceDate, r.StopID, nullString(r.RouteID), r.DirectionID,
			observed, r.ArrivalDelaySeconds, r.FeedTimestamp.UTC(),
		).Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("failed to insert observation %s: %w", r.Key(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit observations: %w", err)
	}
	return ids, nil
}

// ObservationsSince returns raw rows with feed_timestamp >= cutoff ordered by ID.
func (db *DB) ObservationsSince(ctx context.Context, cutoff time.Time) (rows []models.RawObservation, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("SELECT", "raw_observations", time.Since(start), err) }()

	result, err := db.conn.QueryContext(ctx, `
		SELECT id, trip_id, stop_sequence, service_date, stop_id, route_id, direction_id,
			observed_arrival_time, arrival_delay_seconds, feed_timestamp
		FROM raw_observations
		WHERE feed_timestamp >= ?
		ORDER BY id`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer closeQuietly(result)

	for result.Next() {
		var (
			r        models.RawObservation
			routeID  sql.NullString
			observed sql.NullTime
			delay    sql.NullInt64
		)
		if err = result.Scan(&r.ID, &r.TripID, &r.StopSequence, &r.ServiceDate, &r.StopID, &routeID,
			&r.DirectionID, &observed, &delay, &r.FeedTimestamp); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		r.RouteID = routeID.String
		if observed.Valid {
			r.ObservedArrivalTime = observed.Time
		}
		r.ArrivalDelaySeconds = int(delay.Int64)
		rows = append(rows, r)
	}
	if err = result.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}
	return rows, nil
}

// CountObservations returns the raw log size.
func (db *DB) CountObservations(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_observations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return n, nil
}

// ObservationHighWater returns the largest raw log ID, 0 when empty.
func (db *DB) ObservationHighWater(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM raw_observations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to read high-water mark: %w", err)
	}
	return n, nil
}

// CountObservationsUpTo returns the number of raw rows with id <= maxID.
func (db *DB) CountObservationsUpTo(ctx context.Context, maxID int64) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_observations WHERE id <= ?`, maxID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return n, nil
}

// RawLog adapts DB to the rawlog.Log interface.
type RawLog struct {
	db *DB
}

// RawLog returns the DuckDB-backed raw observation log.
func (db *DB) RawLog() *RawLog {
	return &RawLog{db: db}
}

// Append implements rawlog.Log.
func (l *RawLog) Append(ctx context.Context, rows []models.RawObservation) ([]int64, error) {
	return l.db.AppendObservations(ctx, rows)
}

// Since implements rawlog.Log.
func (l *RawLog) Since(ctx context.Context, cutoff time.Time) ([]models.RawObservation, error) {
	return l.db.ObservationsSince(ctx, cutoff)
}

// Count implements rawlog.Log.
func (l *RawLog) Count(ctx context.Context) (int64, error) {
	return l.db.CountObservations(ctx)
}

// HighWater implements rawlog.Log.
func (l *RawLog) HighWater(ctx context.Context) (int64, error) {
	return l.db.ObservationHighWater(ctx)
}

// CountUpTo implements rawlog.Log.
func (l *RawLog) CountUpTo(ctx context.Context, id int64) (int64, error) {
	return l.db.CountObservationsUpTo(ctx, id)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
