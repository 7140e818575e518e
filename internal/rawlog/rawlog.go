// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package rawlog defines the append-only Raw Observation Log and an
// in-process implementation of it. The DuckDB implementation lives in the
// database package.
//
// The log never updates or deletes: every poll is a new row with a strictly
// increasing ID. It is the permanent training corpus and the only input of
// the Base layer.
package rawlog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
)

// Log is the Raw Observation Log.
type Log interface {
	// Append stores rows and returns their assigned IDs in input order.
	Append(ctx context.Context, rows []models.RawObservation) ([]int64, error)

	// Since returns rows with feed_timestamp >= cutoff, ordered by ID.
	Since(ctx context.Context, cutoff time.Time) ([]models.RawObservation, error)

	// Count returns the total number of rows.
	Count(ctx context.Context) (int64, error)

	// HighWater returns the largest assigned ID, 0 when empty.
	HighWater(ctx context.Context) (int64, error)

	// CountUpTo returns the number of rows with ID <= id. Unlike Count it is
	// stable under concurrent appends.
	CountUpTo(ctx context.Context, id int64) (int64, error)
}

// Memory is a Log held in process memory. Safe for concurrent use.
type Memory struct {
	mu     sync.RWMutex
	rows   []models.RawObservation
	nextID int64
}

// NewMemory returns an empty log.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

// Append implements Log.
func (m *Memory) Append(ctx context.Context, rows []models.RawObservation) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, len(rows))
	for i := range rows {
		r := rows[i]
		r.ID = m.nextID
		m.nextID++
		m.rows = append(m.rows, r)
		ids[i] = r.ID
	}
	return ids, nil
}

// Since implements Log.
func (m *Memory) Since(ctx context.Context, cutoff time.Time) ([]models.RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RawObservation, 0, len(m.rows))
	for i := range m.rows {
		if !m.rows[i].FeedTimestamp.Before(cutoff) {
			out = append(out, m.rows[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count implements Log.
func (m *Memory) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}

// HighWater implements Log.
func (m *Memory) HighWater(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextID - 1, nil
}

// CountUpTo implements Log.
func (m *Memory) CountUpTo(ctx context.Context, id int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for i := range m.rows {
		if m.rows[i].ID <= id {
			n++
		}
	}
	return n, nil
}
