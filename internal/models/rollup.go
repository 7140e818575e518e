// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import "time"

// Granularity is the bucket size of a RegionalRollup.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// RegionalRollup aggregates analytics rows for one region and time bucket.
type RegionalRollup struct {
	RegionID    string      `json:"region_id"`
	Granularity Granularity `json:"granularity"`
	BucketStart time.Time   `json:"bucket_start"`

	ObservationCount int `json:"observation_count"`
	TripCount        int `json:"trip_count"`
	RouteCount       int `json:"route_count"`
	StopCount        int `json:"stop_count"`

	AvgDelaySeconds    float64 `json:"avg_delay_seconds"`
	MedianDelaySeconds float64 `json:"median_delay_seconds"`
	P90DelaySeconds    float64 `json:"p90_delay_seconds"`
	StddevDelaySeconds float64 `json:"stddev_delay_seconds"`
	MinDelaySeconds    int     `json:"min_delay_seconds"`
	MaxDelaySeconds    int     `json:"max_delay_seconds"`

	EarlyCount      int     `json:"early_count"`
	OnTimeCount     int     `json:"on_time_count"`
	Late1to5Count   int     `json:"late_1_5_count"`
	Late5to10Count  int     `json:"late_5_10_count"`
	LateOver10Count int     `json:"late_over_10_count"`
	OnTimeRate      float64 `json:"on_time_rate"`

	AvgTravelTimeSeconds *float64 `json:"avg_travel_time_seconds,omitempty"`
}

// RegionStatus is the qualitative label of recent regional performance.
type RegionStatus string

const (
	StatusExcellent RegionStatus = "excellent"
	StatusGood      RegionStatus = "good"
	StatusModerate  RegionStatus = "moderate"
	StatusPoor      RegionStatus = "poor"
	StatusSevere    RegionStatus = "severe"
	StatusNoData    RegionStatus = "no_data"
)

// RecentRegionStatus summarises a region over the recent window.
type RecentRegionStatus struct {
	RegionID         string       `json:"region_id"`
	RegionName       string       `json:"region_name"`
	ObservationCount int          `json:"observation_count"`
	TripCount        int          `json:"trip_count"`
	AvgDelayMinutes  float64      `json:"avg_delay_minutes"`
	OnTimeRate       float64      `json:"on_time_rate"`
	Status           RegionStatus `json:"status"`
	LastUpdated      *time.Time   `json:"last_updated,omitempty"`
}

// RegionalRanking orders regions over the ranking window.
type RegionalRanking struct {
	RegionID           string  `json:"region_id"`
	RegionName         string  `json:"region_name"`
	RegionType         string  `json:"region_type"`
	ObservationCount   int     `json:"observation_count"`
	AvgDelayMinutes    float64 `json:"avg_delay_minutes"`
	MedianDelayMinutes float64 `json:"median_delay_minutes"`
	OnTimeRate         float64 `json:"on_time_rate"`
	RankByDelay        int     `json:"rank_by_delay"`
	RankByOnTime       int     `json:"rank_by_on_time"`
	PerformanceGrade   string  `json:"performance_grade"`
	ActiveRoutes       int     `json:"active_routes"`
	ActiveStops        int     `json:"active_stops"`
	TotalTrips         int     `json:"total_trips"`
}
