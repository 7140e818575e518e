// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/predictions"
)

const predictionColumns = `region_id, route_id, direction_id, stop_id, batch_created_at, target_time,
	horizon_offset, predicted_delay_seconds, model_version, confidence`

// InsertBatch implements predictions.Backend. The duplicate check and the
// insert share one transaction so a rejected batch writes nothing.
func (db *DB) InsertBatch(ctx context.Context, batchCreatedAt time.Time, rows []models.Prediction) (err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("INSERT", "predictions", time.Since(start), err) }()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { rollback(tx, err) }()

	exists, err := tx.PrepareContext(ctx, `
		SELECT COUNT(*) FROM predictions
		WHERE region_id = ? AND route_id = ? AND direction_id = ? AND stop_id = ? AND batch_created_at = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare duplicate check: %w", err)
	}
	defer closeQuietly(exists)

	checked := make(map[models.PredictionKey]struct{})
	for i := range rows {
		key := rows[i].Key()
		if _, ok := checked[key]; ok {
			continue
		}
		checked[key] = struct{}{}

		var n int
		if err = exists.QueryRowContext(ctx, key.RegionID, key.RouteID, key.DirectionID, key.StopID,
			batchCreatedAt).Scan(&n); err != nil {
			return fmt.Errorf("failed to check prediction batch: %w", err)
		}
		if n > 0 {
			err = fmt.Errorf("%w: %s/%s/%d/%s at %s", predictions.ErrDuplicateBatch,
				key.RegionID, key.RouteID, key.DirectionID, key.StopID, batchCreatedAt.Format(time.RFC3339Nano))
			return err
		}
	}

	err = insertEach(ctx, tx, `INSERT INTO predictions (`+predictionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) []any {
			p := &rows[i]
			var confidence sql.NullFloat64
			if p.Confidence != nil {
				confidence = sql.NullFloat64{Float64: *p.Confidence, Valid: true}
			}
			return []any{p.RegionID, p.RouteID, p.DirectionID, p.StopID, batchCreatedAt, p.TargetTime.UTC(),
				p.HorizonOffset, p.PredictedDelaySeconds, p.ModelVersion, confidence}
		})
	if err != nil {
		return err
	}
	return tx.Commit()
}

// LatestPredictions implements predictions.Backend.
func (db *DB) LatestPredictions(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error) {
	var (
		where []string
		args  []any
	)
	if f.RegionID != "" {
		where = append(where, "region_id = ?")
		args = append(args, f.RegionID)
	}
	if f.RouteID != "" {
		where = append(where, "route_id = ?")
		args = append(args, f.RouteID)
	}
	if f.StopID != "" {
		where = append(where, "stop_id = ?")
		args = append(args, f.StopID)
	}
	query := `SELECT ` + predictionColumns + ` FROM latest_predictions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY region_id, route_id, direction_id, stop_id, batch_created_at, target_time, horizon_offset`
	return db.queryPredictions(ctx, "latest_predictions", query, args...)
}

// PredictionHistory implements predictions.Backend.
func (db *DB) PredictionHistory(ctx context.Context, key models.PredictionKey, rng models.HistoryRange) ([]models.Prediction, error) {
	query := `
		SELECT ` + predictionColumns + ` FROM predictions
		WHERE region_id = ? AND route_id = ? AND direction_id = ? AND stop_id = ?`
	args := []any{key.RegionID, key.RouteID, key.DirectionID, key.StopID}
	if !rng.Since.IsZero() {
		query += ` AND batch_created_at >= ?`
		args = append(args, rng.Since.UTC())
	}
	query += `
		ORDER BY batch_created_at, target_time, horizon_offset`
	if rng.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, rng.Limit)
	}
	return db.queryPredictions(ctx, "predictions", query, args...)
}

func (db *DB) queryPredictions(ctx context.Context, table, query string, args ...any) (out []models.Prediction, err error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	defer func() { metrics.RecordDBQuery("SELECT", table, time.Since(start), err) }()

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var (
			p          models.Prediction
			confidence sql.NullFloat64
		)
		if err = rows.Scan(&p.RegionID, &p.RouteID, &p.DirectionID, &p.StopID, &p.BatchCreatedAt, &p.TargetTime,
			&p.HorizonOffset, &p.PredictedDelaySeconds, &p.ModelVersion, &confidence); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.BatchCreatedAt = p.BatchCreatedAt.UTC()
		p.TargetTime = p.TargetTime.UTC()
		if confidence.Valid {
			p.Confidence = models.Float64(confidence.Float64)
		}
		out = append(out, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return out, nil
}
