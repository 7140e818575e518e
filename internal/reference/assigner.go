// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package reference

import (
	"github.com/tomtom215/transitpulse/internal/geo"
	"github.com/tomtom215/transitpulse/internal/models"
)

// AssignStats summarises one assignment pass.
type AssignStats struct {
	Matched   int
	Unmatched int
	Changed   int
}

// Assigner maps stop coordinates to regions through a spatial index. A stop
// inside several overlapping regions goes to the smallest region_id; a stop
// inside none gets a nil RegionID.
type Assigner struct {
	index *geo.RegionIndex
}

// NewAssigner indexes regions with grid cells of roughly cellSizeKm.
func NewAssigner(cellSizeKm float64, regions []models.Region) *Assigner {
	shapes := make([]geo.Shape, 0, len(regions))
	for i := range regions {
		shapes = append(shapes, geo.Shape{ID: regions[i].RegionID, Boundary: regions[i].Boundary})
	}
	return &Assigner{index: geo.NewRegionIndex(cellSizeKm, shapes)}
}

// Locate returns the region for a coordinate, or nil.
func (a *Assigner) Locate(lat, lon float64) *string {
	if id, ok := a.index.Locate(lat, lon); ok {
		return &id
	}
	return nil
}

// Assign sets stop.RegionID and reports whether it changed.
func (a *Assigner) Assign(stop *models.Stop) bool {
	next := a.Locate(stop.Lat, stop.Lon)
	changed := !sameRegion(stop.RegionID, next)
	stop.RegionID = next
	return changed
}

// AssignAll assigns every stop in place.
func (a *Assigner) AssignAll(stops []models.Stop) AssignStats {
	var st AssignStats
	for i := range stops {
		if a.Assign(&stops[i]) {
			st.Changed++
		}
		if stops[i].RegionID != nil {
			st.Matched++
		} else {
			st.Unmatched++
		}
	}
	return st
}

// Regions returns the number of indexed regions.
func (a *Assigner) Regions() int {
	return a.index.Len()
}

func sameRegion(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
