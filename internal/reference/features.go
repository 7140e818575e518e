// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package reference

import (
	"math"

	"github.com/tomtom215/transitpulse/internal/geo"
	"github.com/tomtom215/transitpulse/internal/models"
)

// ComputeStopFeatures fills the distance-from-centre and cyclical coordinate
// encodings of stop.
func ComputeStopFeatures(stop *models.Stop, centerLat, centerLon float64) {
	stop.DistanceFromCenterKm = geo.HaversineKm(centerLat, centerLon, stop.Lat, stop.Lon)
	latRad := stop.Lat * math.Pi / 180
	lonRad := stop.Lon * math.Pi / 180
	stop.LatSin, stop.LatCos = math.Sin(latRad), math.Cos(latRad)
	stop.LonSin, stop.LonCos = math.Sin(lonRad), math.Cos(lonRad)
}

// completeRegion derives centre and area when the source left them empty.
func completeRegion(r *models.Region) {
	if len(r.Boundary) == 0 {
		return
	}
	if r.CenterLat == 0 && r.CenterLon == 0 {
		r.CenterLat, r.CenterLon = r.Boundary.Centroid()
	}
	if r.AreaKm2 == 0 {
		r.AreaKm2 = r.Boundary.AreaKm2()
	}
}
