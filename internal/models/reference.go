// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import "github.com/tomtom215/transitpulse/internal/geo"

// Route is a static GTFS route.
type Route struct {
	RouteID   string `json:"route_id"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	RouteType int    `json:"route_type"`
}

// Trip is a static GTFS trip.
type Trip struct {
	TripID      string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	DirectionID int    `json:"direction_id"`
	ServiceID   string `json:"service_id"`
	Headsign    string `json:"trip_headsign"`
}

// Stop is a static GTFS stop with precomputed spatial features.
// RegionID is nil when no region contains the stop.
type Stop struct {
	StopID               string  `json:"stop_id"`
	Name                 string  `json:"stop_name"`
	Lat                  float64 `json:"stop_lat"`
	Lon                  float64 `json:"stop_lon"`
	DistanceFromCenterKm float64 `json:"distance_from_center_km"`
	LatSin               float64 `json:"lat_sin"`
	LatCos               float64 `json:"lat_cos"`
	LonSin               float64 `json:"lon_sin"`
	LonCos               float64 `json:"lon_cos"`
	RegionID             *string `json:"region_id,omitempty"`
}

// Region is an administrative area used for rollups.
type Region struct {
	RegionID  string           `json:"region_id"`
	Name      string           `json:"region_name"`
	Type      string           `json:"region_type"`
	Boundary  geo.MultiPolygon `json:"-"`
	CenterLat float64          `json:"center_lat"`
	CenterLon float64          `json:"center_lon"`
	AreaKm2   float64          `json:"area_km2"`
}
