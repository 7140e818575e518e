// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import "time"

// EnrichedRecord is a Base row joined with reference data and calendar features.
type EnrichedRecord struct {
	LatestObservation

	RouteShortName string `json:"route_short_name"`
	RouteLongName  string `json:"route_long_name"`
	RouteType      int    `json:"route_type"`
	TripHeadsign   string `json:"trip_headsign"`
	ServiceID      string `json:"service_id"`

	StopName             string  `json:"stop_name"`
	StopLat              float64 `json:"stop_lat"`
	StopLon              float64 `json:"stop_lon"`
	DistanceFromCenterKm float64 `json:"distance_from_center_km"`
	LatSin               float64 `json:"lat_sin"`
	LatCos               float64 `json:"lat_cos"`
	LonSin               float64 `json:"lon_sin"`
	LonCos               float64 `json:"lon_cos"`
	RegionID             *string `json:"region_id,omitempty"`

	ScheduledArrivalTime time.Time `json:"scheduled_arrival_time"`
	HourOfDay            int       `json:"hour_of_day"`
	DayOfWeek            int       `json:"day_of_week"` // Monday = 0
	HourSin              float64   `json:"hour_sin"`
	HourCos              float64   `json:"hour_cos"`
	DaySin               float64   `json:"day_sin"`
	DayCos               float64   `json:"day_cos"`
	IsPeakHour           bool      `json:"is_peak_hour"`
	IsWeekend            bool      `json:"is_weekend"`
	TimeBucket           time.Time `json:"time_bucket"`
}

// AnalyticsRecord adds statistical features to an EnrichedRecord.
type AnalyticsRecord struct {
	EnrichedRecord

	// RouteHourMeanDelay is nil when the (route, direction, hour) group has
	// fewer rows than the sample gate.
	RouteHourMeanDelay   *float64 `json:"delay_mean_by_route_hour,omitempty"`
	RouteHourSampleCount int      `json:"route_hour_sample_count"`
	DelayDeviation       *float64 `json:"delay_deviation,omitempty"`

	// TravelTimeSeconds is the gap since the previous stop of the same trip;
	// nil at the first stop or when outside the plausibility bounds.
	TravelTimeSeconds *float64 `json:"travel_time_seconds,omitempty"`
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}
