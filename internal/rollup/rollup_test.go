// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package rollup

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/stats"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func row(region string, trip string, delay int, at time.Time) models.AnalyticsRecord {
	var r models.AnalyticsRecord
	if region != "" {
		r.RegionID = models.String(region)
	}
	r.TripID = trip
	r.ServiceDate = at.Format(models.ServiceDateLayout)
	r.StopID = "S-" + trip
	r.RouteID = "R-" + region
	r.ArrivalDelaySeconds = delay
	r.ObservedArrivalTime = at
	r.TimeBucket = at.Truncate(time.Hour)
	return r
}

func TestDelayBand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delay int
		want  Band
	}{
		{-61, BandEarly},
		{-60, BandOnTime},
		{0, BandOnTime},
		{60, BandOnTime},
		{61, BandLate1to5},
		{300, BandLate1to5},
		{301, BandLate5to10},
		{600, BandLate5to10},
		{601, BandLateOver10},
	}
	for _, tt := range tests {
		if got := DelayBand(tt.delay); got != tt.want {
			t.Errorf("DelayBand(%d) = %s, want %s", tt.delay, got, tt.want)
		}
	}
}

func TestThresholds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		minutes float64
		status  models.RegionStatus
		grade   string
	}{
		{-2, models.StatusExcellent, "A"},
		{0.99, models.StatusExcellent, "A"},
		{1, models.StatusGood, "B"},
		{3, models.StatusModerate, "C"},
		{4.99, models.StatusModerate, "C"},
		{5, models.StatusPoor, "D"},
		{10, models.StatusSevere, "F"},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.minutes); got != tt.status {
			t.Errorf("StatusFor(%v) = %s, want %s", tt.minutes, got, tt.status)
		}
		if got := GradeFor(tt.minutes); got != tt.grade {
			t.Errorf("GradeFor(%v) = %s, want %s", tt.minutes, got, tt.grade)
		}
	}
}

func TestHourly(t *testing.T) {
	t.Parallel()

	h := now.Add(-3 * time.Hour).Truncate(time.Hour)
	tt := func(d time.Duration) *float64 {
		v := d.Seconds()
		return &v
	}

	rows := []models.AnalyticsRecord{
		row("A", "T1", -120, h.Add(5*time.Minute)),
		row("A", "T1", 0, h.Add(10*time.Minute)),
		row("A", "T2", 200, h.Add(20*time.Minute)),
		row("A", "T3", 400, h.Add(30*time.Minute)),
		row("A", "T4", 900, h.Add(40*time.Minute)),
		row("A", "T5", 30, h.Add(70*time.Minute)), // next hour
		row("", "T6", 50, h.Add(time.Minute)),     // no region
		row("A", "T7", 0, now.Add(-100*24*time.Hour)),
	}
	rows[1].TravelTimeSeconds = tt(2 * time.Minute)
	rows[2].TravelTimeSeconds = tt(4 * time.Minute)

	out := Hourly(rows, stats.Trailing(now, 90*24*time.Hour))
	if len(out) != 2 {
		t.Fatalf("rollups = %d, want 2: %+v", len(out), out)
	}
	first := out[0]
	if !first.BucketStart.Equal(h) || first.RegionID != "A" || first.Granularity != models.GranularityHour {
		t.Fatalf("first rollup key = %s %v %s", first.RegionID, first.BucketStart, first.Granularity)
	}
	if first.ObservationCount != 5 || first.TripCount != 4 {
		t.Errorf("counts = %d obs / %d trips, want 5 / 4", first.ObservationCount, first.TripCount)
	}
	if first.EarlyCount != 1 || first.OnTimeCount != 1 || first.Late1to5Count != 1 ||
		first.Late5to10Count != 1 || first.LateOver10Count != 1 {
		t.Errorf("bands = %+v", first)
	}
	if math.Abs(first.AvgDelaySeconds-276) > 1e-9 {
		t.Errorf("avg = %v, want 276", first.AvgDelaySeconds)
	}
	if first.MedianDelaySeconds != 200 || first.MinDelaySeconds != -120 || first.MaxDelaySeconds != 900 {
		t.Errorf("median/min/max = %v/%d/%d", first.MedianDelaySeconds, first.MinDelaySeconds, first.MaxDelaySeconds)
	}
	if math.Abs(first.OnTimeRate-0.2) > 1e-9 {
		t.Errorf("on-time rate = %v, want 0.2", first.OnTimeRate)
	}
	if first.AvgTravelTimeSeconds == nil || *first.AvgTravelTimeSeconds != 180 {
		t.Errorf("avg travel = %v, want 180", first.AvgTravelTimeSeconds)
	}
	if out[1].AvgTravelTimeSeconds != nil {
		t.Errorf("second bucket travel = %v, want nil", *out[1].AvgTravelTimeSeconds)
	}
}

func TestDailyUsesLocalDays(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Vancouver")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 23:30 and 00:30 local fall on different days even though they share a UTC day.
	late := time.Date(2026, 3, 8, 23, 30, 0, 0, loc)
	early := late.Add(time.Hour)
	rows := []models.AnalyticsRecord{row("A", "T1", 0, late), row("A", "T2", 0, early)}

	out := Daily(rows, stats.Window{Start: late.Add(-time.Hour)}, loc)
	if len(out) != 2 {
		t.Fatalf("daily rollups = %d, want 2", len(out))
	}
	if out[0].BucketStart.In(loc).Day() != 8 || out[1].BucketStart.In(loc).Day() != 9 {
		t.Errorf("buckets = %v, %v", out[0].BucketStart, out[1].BucketStart)
	}
}

func TestRecent(t *testing.T) {
	t.Parallel()

	regions := []models.Region{{RegionID: "B", Name: "Burnaby"}, {RegionID: "A", Name: "Vancouver"}, {RegionID: "C"}}
	rows := []models.AnalyticsRecord{
		row("A", "T1", 30, now.Add(-time.Hour)),
		row("A", "T2", 80, now.Add(-2*time.Hour)),
		row("B", "T3", 700, now.Add(-time.Hour)),
		row("C", "T4", 0, now.Add(-48*time.Hour)),
	}

	out := Recent(rows, regions, stats.Trailing(now, 24*time.Hour))
	if len(out) != 3 {
		t.Fatalf("statuses = %d, want 3", len(out))
	}
	byID := make(map[string]models.RecentRegionStatus)
	for _, s := range out {
		byID[s.RegionID] = s
	}
	if s := byID["A"]; s.Status != models.StatusExcellent || s.ObservationCount != 2 || s.OnTimeRate != 0.5 {
		t.Errorf("A = %+v", s)
	}
	if s := byID["A"]; s.LastUpdated == nil || !s.LastUpdated.Equal(now.Add(-time.Hour)) {
		t.Errorf("A last updated = %v", s.LastUpdated)
	}
	if s := byID["B"]; s.Status != models.StatusSevere {
		t.Errorf("B status = %s, want severe", s.Status)
	}
	if s := byID["C"]; s.Status != models.StatusNoData || s.LastUpdated != nil {
		t.Errorf("C = %+v, want no_data", s)
	}
	if out[0].RegionID != "A" || out[2].RegionID != "C" {
		t.Errorf("order = %s,%s,%s", out[0].RegionID, out[1].RegionID, out[2].RegionID)
	}
}

func TestRankStrictOrder(t *testing.T) {
	t.Parallel()

	var regions []models.Region
	var rows []models.AnalyticsRecord
	// pairs of regions share a mean delay so ties are exercised
	delays := []int{120, 30, 120, 400, 30, 0}
	for i, d := range delays {
		id := fmt.Sprintf("R%02d", i)
		regions = append(regions, models.Region{RegionID: id, Name: id})
		rows = append(rows,
			row(id, id+"-a", d, now.Add(-time.Hour)),
			row(id, id+"-b", d, now.Add(-2*time.Hour)),
		)
	}
	rows = append(rows, row("R05", "old", 5000, now.Add(-8*24*time.Hour)))

	out := Rank(rows, regions, stats.Trailing(now, 7*24*time.Hour))
	if len(out) != len(delays) {
		t.Fatalf("rankings = %d, want %d", len(out), len(delays))
	}

	seen := make(map[int]bool)
	for i, r := range out {
		if seen[r.RankByDelay] {
			t.Errorf("duplicate rank %d", r.RankByDelay)
		}
		seen[r.RankByDelay] = true
		if i > 0 {
			prev := out[i-1]
			if prev.AvgDelayMinutes > r.AvgDelayMinutes {
				t.Errorf("rank %d avg %v above rank %d avg %v", prev.RankByDelay, prev.AvgDelayMinutes, r.RankByDelay, r.AvgDelayMinutes)
			}
			if prev.AvgDelayMinutes == r.AvgDelayMinutes && prev.RegionID > r.RegionID {
				t.Errorf("tie not broken by region id: %s before %s", prev.RegionID, r.RegionID)
			}
		}
	}

	want := []string{"R05", "R01", "R04", "R00", "R02", "R03"}
	for i, id := range want {
		if out[i].RegionID != id || out[i].RankByDelay != i+1 {
			t.Errorf("rank %d = %s, want %s", i+1, out[i].RegionID, id)
		}
	}
	if out[0].PerformanceGrade != "A" || out[5].PerformanceGrade != "D" {
		t.Errorf("grades = %s..%s", out[0].PerformanceGrade, out[5].PerformanceGrade)
	}

	onTime := make(map[string]int)
	for _, r := range out {
		onTime[r.RegionID] = r.RankByOnTime
	}
	// R05, R01, R04 are fully on time; R00, R02, R03 are never on time.
	if onTime["R05"] != 1 || onTime["R01"] != 2 || onTime["R04"] != 3 || onTime["R03"] != 6 {
		t.Errorf("on-time ranks = %v", onTime)
	}
}
