// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package materialize

import (
	"sort"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
)

// BaseOptions configures BuildBase.
type BaseOptions struct {
	// Recency bounds eligible feed timestamps to [now-Recency, ...).
	Recency time.Duration

	MinDelaySeconds int
	MaxDelaySeconds int
}

// DefaultBaseOptions returns the production defaults.
func DefaultBaseOptions() BaseOptions {
	return BaseOptions{Recency: 24 * time.Hour, MinDelaySeconds: -3600, MaxDelaySeconds: 3600}
}

// BaseStats counts what BuildBase saw and dropped.
type BaseStats struct {
	Input           int
	OutOfWindow     int
	MissingArrival  int
	DelayOutOfRange int
	Output          int
}

// Cutoff returns the earliest feed timestamp BuildBase considers at now.
func (o BaseOptions) Cutoff(now time.Time) time.Time {
	return now.Add(-o.Recency)
}

// BuildBase selects, for every observation key, the valid poll with the
// greatest feed timestamp, breaking ties by the highest raw ID. Invalid polls
// are discarded before selection, so a later invalid poll never hides an
// earlier valid one; a key with no valid poll is absent. Output is ordered by
// key.
func BuildBase(rows []models.RawObservation, now time.Time, opts BaseOptions) ([]models.LatestObservation, BaseStats) {
	st := BaseStats{Input: len(rows)}
	cutoff := opts.Cutoff(now)

	latest := make(map[models.ObservationKey]*models.RawObservation)
	for i := range rows {
		r := &rows[i]
		switch {
		case r.FeedTimestamp.Before(cutoff):
			st.OutOfWindow++
			continue
		case r.ObservedArrivalTime.IsZero():
			st.MissingArrival++
			continue
		case r.ArrivalDelaySeconds < opts.MinDelaySeconds || r.ArrivalDelaySeconds > opts.MaxDelaySeconds:
			st.DelayOutOfRange++
			continue
		}

		k := r.Key()
		cur, ok := latest[k]
		if !ok || newer(r, cur) {
			latest[k] = r
		}
	}

	out := make([]models.LatestObservation, 0, len(latest))
	for _, r := range latest {
		out = append(out, models.LatestObservation{RawObservation: *r, RawID: r.ID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	st.Output = len(out)
	return out, st
}

func newer(a, b *models.RawObservation) bool {
	if !a.FeedTimestamp.Equal(b.FeedTimestamp) {
		return a.FeedTimestamp.After(b.FeedTimestamp)
	}
	return a.ID > b.ID
}
