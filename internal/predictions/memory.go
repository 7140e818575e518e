// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package predictions

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
)

// Memory is an in-process Backend.
type Memory struct {
	mu     sync.RWMutex
	rows   []models.Prediction
	newest map[models.PredictionKey]time.Time
	stamps map[models.PredictionKey]map[int64]struct{}
}

// NewMemory returns an empty backend.
func NewMemory() *Memory {
	return &Memory{
		newest: make(map[models.PredictionKey]time.Time),
		stamps: make(map[models.PredictionKey]map[int64]struct{}),
	}
}

// InsertBatch implements Backend.
func (m *Memory) InsertBatch(ctx context.Context, batchCreatedAt time.Time, rows []models.Prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stamp := batchCreatedAt.UnixNano()

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range rows {
		if _, dup := m.stamps[rows[i].Key()][stamp]; dup {
			return ErrDuplicateBatch
		}
	}
	for i := range rows {
		k := rows[i].Key()
		if m.stamps[k] == nil {
			m.stamps[k] = make(map[int64]struct{})
		}
		m.stamps[k][stamp] = struct{}{}
		if batchCreatedAt.After(m.newest[k]) {
			m.newest[k] = batchCreatedAt
		}
		m.rows = append(m.rows, rows[i])
	}
	return nil
}

// LatestPredictions implements Backend.
func (m *Memory) LatestPredictions(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Prediction
	for i := range m.rows {
		p := &m.rows[i]
		if !f.Matches(p) || !p.BatchCreatedAt.Equal(m.newest[p.Key()]) {
			continue
		}
		out = append(out, *p)
	}
	SortPredictions(out)
	return out, nil
}

// PredictionHistory implements Backend.
func (m *Memory) PredictionHistory(ctx context.Context, key models.PredictionKey, rng models.HistoryRange) ([]models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Prediction
	for i := range m.rows {
		if m.rows[i].Key() == key && !m.rows[i].BatchCreatedAt.Before(rng.Since) {
			out = append(out, m.rows[i])
		}
	}
	SortPredictions(out)
	if rng.Limit > 0 && len(out) > rng.Limit {
		out = out[:rng.Limit]
	}
	return out, nil
}
