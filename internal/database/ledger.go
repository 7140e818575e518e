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

// LedgerChanged implements ledger.Observer by mirroring each transition
// into refresh_ledger.
func (db *DB) LedgerChanged(ctx context.Context, e models.LedgerEntry) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("UPSERT", "refresh_ledger", time.Since(start), err) }()

	_, err = db.conn.ExecContext(ctx, `
		INSERT OR REPLACE INTO refresh_ledger (
			layer, status, run_id, started_at, last_refresh_time, last_success_time,
			duration_ms, rows_affected, version, high_water, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Layer), string(e.Status), nullString(e.RunID),
		nullTime(e.StartedAt), nullTime(e.LastRefreshTime), nullTime(e.LastSuccessTime),
		e.Duration.Milliseconds(), e.RowsAffected, int64(e.Version), e.HighWater, nullString(e.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to mirror ledger entry %s: %w", e.Layer, err)
	}
	return nil
}

// LedgerEntries reads the SQL mirror of the ledger, ordered by layer.
func (db *DB) LedgerEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT layer, status, run_id, started_at, last_refresh_time, last_success_time,
			duration_ms, rows_affected, version, high_water, error_message
		FROM refresh_ledger ORDER BY layer`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer closeQuietly(rows)

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			e                       models.LedgerEntry
			layer, status           string
			runID, msg              sql.NullString
			started, refresh, succ  sql.NullTime
			durationMS, rowsAff, hw sql.NullInt64
			version                 sql.NullInt64
		)
		if err := rows.Scan(&layer, &status, &runID, &started, &refresh, &succ,
			&durationMS, &rowsAff, &version, &hw, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.Layer = models.Layer(layer)
		e.Status = models.LedgerStatus(status)
		e.RunID = runID.String
		e.StartedAt = timePtr(started)
		e.LastRefreshTime = timePtr(refresh)
		e.LastSuccessTime = timePtr(succ)
		e.Duration = time.Duration(durationMS.Int64) * time.Millisecond
		e.RowsAffected = rowsAff.Int64
		e.Version = uint64(version.Int64)
		e.HighWater = hw.Int64
		e.ErrorMessage = msg.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
