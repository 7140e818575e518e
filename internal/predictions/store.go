// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package predictions is the append-only Prediction Store.
//
// A forecasting run writes one batch; every row of the batch carries the same
// BatchCreatedAt. Prior batches are never updated or deleted so history stays
// available for backtesting. The latest view returns, per series key
// (region, route, direction, stop), only the rows of that key's newest batch;
// different keys may come from different batches when a run covered only
// some of them.
package predictions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/validation"
)

var (
	// ErrDuplicateBatch is returned when a key already has a batch with the
	// same BatchCreatedAt.
	ErrDuplicateBatch = errors.New("prediction batch already recorded")

	// ErrEmptyBatch is returned for a batch without rows.
	ErrEmptyBatch = errors.New("prediction batch is empty")
)

// History row limits.
const (
	DefaultHistoryLimit = 10000
	MaxHistoryLimit     = 100000
)

// Backend persists prediction rows.
type Backend interface {
	// InsertBatch appends rows that all share batchCreatedAt. It must return
	// ErrDuplicateBatch, writing nothing, when any row's key already holds
	// that batch time.
	InsertBatch(ctx context.Context, batchCreatedAt time.Time, rows []models.Prediction) error

	// LatestPredictions returns the newest batch of every key passing f.
	LatestPredictions(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error)

	// PredictionHistory returns the rows of key with batch_created_at at or
	// after rng.Since, oldest batch first, at most rng.Limit of them.
	PredictionHistory(ctx context.Context, key models.PredictionKey, rng models.HistoryRange) ([]models.Prediction, error)
}

// Store validates and stamps batches before handing them to a Backend.
type Store struct {
	backend Backend
	now     func() time.Time
}

// NewStore returns a Store over backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend, now: time.Now}
}

// AppendBatch validates rows, stamps them with batchCreatedAt (now when
// zero) and appends them as one batch. It returns the stamp used.
func (s *Store) AppendBatch(ctx context.Context, batchCreatedAt time.Time, rows []models.Prediction) (time.Time, error) {
	if len(rows) == 0 {
		metrics.RecordPredictionBatch(0, ErrEmptyBatch)
		return time.Time{}, ErrEmptyBatch
	}
	if batchCreatedAt.IsZero() {
		batchCreatedAt = s.now()
	}
	batchCreatedAt = batchCreatedAt.UTC().Truncate(time.Microsecond)

	stamped := make([]models.Prediction, len(rows))
	for i := range rows {
		stamped[i] = rows[i]
		stamped[i].BatchCreatedAt = batchCreatedAt
		if verr := validation.ValidateStruct(&stamped[i]); verr != nil {
			err := fmt.Errorf("prediction %d: %w", i, verr)
			metrics.RecordPredictionBatch(0, err)
			return time.Time{}, err
		}
	}

	if err := s.backend.InsertBatch(ctx, batchCreatedAt, stamped); err != nil {
		metrics.RecordPredictionBatch(0, err)
		return time.Time{}, err
	}
	metrics.RecordPredictionBatch(len(stamped), nil)
	logging.Ctx(ctx).Info().
		Time("batch_created_at", batchCreatedAt).
		Int("rows", len(stamped)).
		Msg("Prediction batch appended")
	return batchCreatedAt, nil
}

// Latest returns the current prediction set of every key passing f.
func (s *Store) Latest(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error) {
	return s.backend.LatestPredictions(ctx, f)
}

// History returns the batches recorded for key from rng.Since on. A zero
// limit reads DefaultHistoryLimit rows; larger limits are capped at
// MaxHistoryLimit.
func (s *Store) History(ctx context.Context, key models.PredictionKey, rng models.HistoryRange) ([]models.Prediction, error) {
	switch {
	case rng.Limit <= 0:
		rng.Limit = DefaultHistoryLimit
	case rng.Limit > MaxHistoryLimit:
		rng.Limit = MaxHistoryLimit
	}
	if !rng.Since.IsZero() {
		rng.Since = rng.Since.UTC()
	}
	return s.backend.PredictionHistory(ctx, key, rng)
}

// SortPredictions orders rows by key, batch, target time and horizon. Both
// backends return rows in this order.
func SortPredictions(rows []models.Prediction) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		switch {
		case a.RegionID != b.RegionID:
			return a.RegionID < b.RegionID
		case a.RouteID != b.RouteID:
			return a.RouteID < b.RouteID
		case a.DirectionID != b.DirectionID:
			return a.DirectionID < b.DirectionID
		case a.StopID != b.StopID:
			return a.StopID < b.StopID
		case !a.BatchCreatedAt.Equal(b.BatchCreatedAt):
			return a.BatchCreatedAt.Before(b.BatchCreatedAt)
		case !a.TargetTime.Equal(b.TargetTime):
			return a.TargetTime.Before(b.TargetTime)
		default:
			return a.HorizonOffset < b.HorizonOffset
		}
	})
}
