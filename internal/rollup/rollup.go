// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package rollup

import (
	"sort"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/stats"
)

// Options configures the rollups.
type Options struct {
	HistoryWindow time.Duration
	RecentWindow  time.Duration
	RankingWindow time.Duration

	// Location is used for daily buckets; nil means UTC.
	Location *time.Location
}

// DefaultOptions returns the production windows.
func DefaultOptions() Options {
	return Options{
		HistoryWindow: 90 * 24 * time.Hour,
		RecentWindow:  24 * time.Hour,
		RankingWindow: 7 * 24 * time.Hour,
	}
}

type bucketKey struct {
	regionID string
	bucket   int64 // unix seconds of the bucket start
}

func lessBucket(a, b bucketKey) bool {
	if a.regionID != b.regionID {
		return a.regionID < b.regionID
	}
	return a.bucket < b.bucket
}

func observedAt(r *models.AnalyticsRecord) time.Time {
	return r.ObservedArrivalTime
}

func regionOf(r *models.AnalyticsRecord) (string, bool) {
	if r.RegionID == nil || *r.RegionID == "" {
		return "", false
	}
	return *r.RegionID, true
}

// Hourly aggregates rows per region and hour bucket.
func Hourly(rows []models.AnalyticsRecord, window stats.Window) []models.RegionalRollup {
	return bucketed(rows, window, models.GranularityHour, func(r *models.AnalyticsRecord) time.Time {
		return r.TimeBucket
	})
}

// Daily aggregates rows per region and local calendar day in loc.
func Daily(rows []models.AnalyticsRecord, window stats.Window, loc *time.Location) []models.RegionalRollup {
	if loc == nil {
		loc = time.UTC
	}
	return bucketed(rows, window, models.GranularityDay, func(r *models.AnalyticsRecord) time.Time {
		t := r.TimeBucket.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	})
}

func bucketed(rows []models.AnalyticsRecord, window stats.Window, g models.Granularity,
	bucketOf func(*models.AnalyticsRecord) time.Time,
) []models.RegionalRollup {
	starts := make(map[int64]time.Time)
	w := stats.Windowed[models.AnalyticsRecord, bucketKey]{
		Window: window,
		Time:   observedAt,
		Key: func(r *models.AnalyticsRecord) (bucketKey, bool) {
			id, ok := regionOf(r)
			if !ok {
				return bucketKey{}, false
			}
			start := bucketOf(r)
			starts[start.Unix()] = start
			return bucketKey{regionID: id, bucket: start.Unix()}, true
		},
	}
	keys, groups := w.Group(rows, lessBucket)

	out := make([]models.RegionalRollup, 0, len(keys))
	for _, k := range keys {
		s := summarize(groups[k])
		out = append(out, models.RegionalRollup{
			RegionID:             k.regionID,
			Granularity:          g,
			BucketStart:          starts[k.bucket],
			ObservationCount:     s.delays.Count(),
			TripCount:            len(s.trips),
			RouteCount:           len(s.routes),
			StopCount:            len(s.stops),
			AvgDelaySeconds:      s.delays.Mean(),
			MedianDelaySeconds:   stats.Median(s.values),
			P90DelaySeconds:      stats.Percentile(s.values, 0.9),
			StddevDelaySeconds:   s.delays.Stddev(),
			MinDelaySeconds:      int(s.delays.Min()),
			MaxDelaySeconds:      int(s.delays.Max()),
			EarlyCount:           s.bands[BandEarly],
			OnTimeCount:          s.bands[BandOnTime],
			Late1to5Count:        s.bands[BandLate1to5],
			Late5to10Count:       s.bands[BandLate5to10],
			LateOver10Count:      s.bands[BandLateOver10],
			OnTimeRate:           s.onTimeRate(),
			AvgTravelTimeSeconds: s.avgTravel(),
		})
	}
	return out
}

// Recent reports the status of every region over window. Regions without
// rows are included with StatusNoData.
func Recent(rows []models.AnalyticsRecord, regions []models.Region, window stats.Window) []models.RecentRegionStatus {
	w := stats.Windowed[models.AnalyticsRecord, string]{Window: window, Time: observedAt, Key: regionOf}
	_, groups := w.Group(rows, func(a, b string) bool { return a < b })

	out := make([]models.RecentRegionStatus, 0, len(regions))
	for _, region := range sortedRegions(regions) {
		st := models.RecentRegionStatus{RegionID: region.RegionID, RegionName: region.Name, Status: models.StatusNoData}
		if members, ok := groups[region.RegionID]; ok {
			s := summarize(members)
			last := s.lastObserved
			st.ObservationCount = s.delays.Count()
			st.TripCount = len(s.trips)
			st.AvgDelayMinutes = s.delays.Mean() / 60
			st.OnTimeRate = s.onTimeRate()
			st.Status = StatusFor(st.AvgDelayMinutes)
			st.LastUpdated = &last
		}
		out = append(out, st)
	}
	return out
}

// Rank scores every region with rows in window. RankByDelay orders by
// ascending mean delay with ties broken by region ID, so it is a strict total
// order. RankByOnTime orders by descending on-time rate, then ascending mean
// delay, then region ID.
func Rank(rows []models.AnalyticsRecord, regions []models.Region, window stats.Window) []models.RegionalRanking {
	w := stats.Windowed[models.AnalyticsRecord, string]{Window: window, Time: observedAt, Key: regionOf}
	keys, groups := w.Group(rows, func(a, b string) bool { return a < b })

	meta := make(map[string]models.Region, len(regions))
	for _, r := range regions {
		meta[r.RegionID] = r
	}

	out := make([]models.RegionalRanking, 0, len(keys))
	for _, id := range keys {
		s := summarize(groups[id])
		avg := s.delays.Mean() / 60
		out = append(out, models.RegionalRanking{
			RegionID:           id,
			RegionName:         meta[id].Name,
			RegionType:         meta[id].Type,
			ObservationCount:   s.delays.Count(),
			AvgDelayMinutes:    avg,
			MedianDelayMinutes: stats.Median(s.values) / 60,
			OnTimeRate:         s.onTimeRate(),
			PerformanceGrade:   GradeFor(avg),
			ActiveRoutes:       len(s.routes),
			ActiveStops:        len(s.stops),
			TotalTrips:         len(s.trips),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgDelayMinutes != out[j].AvgDelayMinutes {
			return out[i].AvgDelayMinutes < out[j].AvgDelayMinutes
		}
		return out[i].RegionID < out[j].RegionID
	})
	for i := range out {
		out[i].RankByDelay = i + 1
	}

	byOnTime := make([]int, len(out))
	for i := range byOnTime {
		byOnTime[i] = i
	}
	sort.SliceStable(byOnTime, func(a, b int) bool {
		x, y := &out[byOnTime[a]], &out[byOnTime[b]]
		if x.OnTimeRate != y.OnTimeRate {
			return x.OnTimeRate > y.OnTimeRate
		}
		if x.AvgDelayMinutes != y.AvgDelayMinutes {
			return x.AvgDelayMinutes < y.AvgDelayMinutes
		}
		return x.RegionID < y.RegionID
	})
	for rank, idx := range byOnTime {
		out[idx].RankByOnTime = rank + 1
	}
	return out
}

func sortedRegions(regions []models.Region) []models.Region {
	out := make([]models.Region, len(regions))
	copy(out, regions)
	sort.Slice(out, func(i, j int) bool { return out[i].RegionID < out[j].RegionID })
	return out
}

type tripDay struct {
	tripID      string
	serviceDate string
}

type summary struct {
	delays       stats.Welford
	travel       stats.Welford
	values       []float64
	bands        [5]int
	trips        map[tripDay]struct{}
	routes       map[string]struct{}
	stops        map[string]struct{}
	lastObserved time.Time
}

func summarize(rows []*models.AnalyticsRecord) *summary {
	s := &summary{
		values: make([]float64, 0, len(rows)),
		trips:  make(map[tripDay]struct{}),
		routes: make(map[string]struct{}),
		stops:  make(map[string]struct{}),
	}
	for _, r := range rows {
		d := float64(r.ArrivalDelaySeconds)
		s.delays.Add(d)
		s.values = append(s.values, d)
		s.bands[DelayBand(r.ArrivalDelaySeconds)]++
		s.trips[tripDay{r.TripID, r.ServiceDate}] = struct{}{}
		s.routes[r.RouteID] = struct{}{}
		s.stops[r.StopID] = struct{}{}
		if r.TravelTimeSeconds != nil {
			s.travel.Add(*r.TravelTimeSeconds)
		}
		if r.ObservedArrivalTime.After(s.lastObserved) {
			s.lastObserved = r.ObservedArrivalTime
		}
	}
	return s
}

func (s *summary) onTimeRate() float64 {
	n := s.delays.Count()
	if n == 0 {
		return 0
	}
	return float64(s.bands[BandOnTime]) / float64(n)
}

func (s *summary) avgTravel() *float64 {
	if s.travel.Count() == 0 {
		return nil
	}
	m := s.travel.Mean()
	return &m
}
