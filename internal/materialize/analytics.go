// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package materialize

import (
	"sort"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/stats"
)

// AnalyticsOptions configures BuildAnalytics.
type AnalyticsOptions struct {
	// MinGroupSamples gates the (route, direction, hour) mean.
	MinGroupSamples int

	// Travel times outside [MinTravelSeconds, MaxTravelSeconds] become nil.
	MinTravelSeconds float64
	MaxTravelSeconds float64
}

// DefaultAnalyticsOptions returns the production defaults.
func DefaultAnalyticsOptions() AnalyticsOptions {
	return AnalyticsOptions{MinGroupSamples: 5, MinTravelSeconds: 10, MaxTravelSeconds: 3600}
}

// AnalyticsStats counts feature coverage.
type AnalyticsStats struct {
	Input           int
	Groups          int
	QualifiedGroups int
	WithMean        int
	TravelTimes     int
	TravelRejected  int
}

type routeHourKey struct {
	routeID     string
	directionID int
	hour        int
}

type tripDayKey struct {
	tripID      string
	serviceDate string
}

// BuildAnalytics adds statistical features to enriched rows. Output is
// ordered by observation key.
func BuildAnalytics(enriched []models.EnrichedRecord, opts AnalyticsOptions) ([]models.AnalyticsRecord, AnalyticsStats) {
	st := AnalyticsStats{Input: len(enriched)}

	agg := stats.NewAggregator[routeHourKey](opts.MinGroupSamples)
	for i := range enriched {
		e := &enriched[i]
		agg.Add(routeHourKey{e.RouteID, e.DirectionID, e.HourOfDay}, float64(e.ArrivalDelaySeconds))
	}
	st.Groups = agg.Len()
	st.QualifiedGroups = agg.Qualified()

	out := make([]models.AnalyticsRecord, len(enriched))
	for i := range enriched {
		e := &enriched[i]
		k := routeHourKey{e.RouteID, e.DirectionID, e.HourOfDay}
		out[i] = models.AnalyticsRecord{
			EnrichedRecord:       *e,
			RouteHourMeanDelay:   agg.Mean(k),
			RouteHourSampleCount: agg.Count(k),
		}
		if m := out[i].RouteHourMeanDelay; m != nil {
			dev := float64(e.ArrivalDelaySeconds) - *m
			out[i].DelayDeviation = &dev
			st.WithMean++
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })

	// After sorting, rows of one (trip, service date) are contiguous and in
	// stop-sequence order.
	for i := 1; i < len(out); i++ {
		prev, cur := &out[i-1], &out[i]
		if prev.TripID != cur.TripID || prev.ServiceDate != cur.ServiceDate {
			continue
		}
		secs := cur.ObservedArrivalTime.Sub(prev.ObservedArrivalTime).Seconds()
		if secs < opts.MinTravelSeconds || secs > opts.MaxTravelSeconds {
			st.TravelRejected++
			continue
		}
		cur.TravelTimeSeconds = &secs
		st.TravelTimes++
	}
	return out, st
}

// MergeAnalytics folds fresh into previous: fresh rows replace previous rows
// with the same observation key, other previous rows are carried forward, and
// any row whose time bucket is before keepFrom is dropped. Output is ordered
// by observation key.
func MergeAnalytics(previous, fresh []models.AnalyticsRecord, keepFrom time.Time) []models.AnalyticsRecord {
	replaced := make(map[models.ObservationKey]struct{}, len(fresh))
	for i := range fresh {
		replaced[fresh[i].Key()] = struct{}{}
	}

	out := make([]models.AnalyticsRecord, 0, len(previous)+len(fresh))
	for i := range previous {
		if _, ok := replaced[previous[i].Key()]; ok {
			continue
		}
		if previous[i].TimeBucket.Before(keepFrom) {
			continue
		}
		out = append(out, previous[i])
	}
	for i := range fresh {
		if fresh[i].TimeBucket.Before(keepFrom) {
			continue
		}
		out = append(out, fresh[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// TrimAnalytics returns the rows whose time bucket is at or after keepFrom.
// The input is not modified.
func TrimAnalytics(rows []models.AnalyticsRecord, keepFrom time.Time) []models.AnalyticsRecord {
	out := make([]models.AnalyticsRecord, 0, len(rows))
	for i := range rows {
		if !rows[i].TimeBucket.Before(keepFrom) {
			out = append(out, rows[i])
		}
	}
	return out
}
