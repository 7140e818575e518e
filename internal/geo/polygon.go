// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package geo

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidGeometry is returned when a boundary cannot be decoded or is degenerate.
var ErrInvalidGeometry = errors.New("invalid geometry")

// MultiPolygon is a region boundary. Each polygon is an outer ring followed
// by its holes.
type MultiPolygon orb.MultiPolygon

// Orb returns m as the orb type.
func (m MultiPolygon) Orb() orb.MultiPolygon {
	return orb.MultiPolygon(m)
}

// Bounds returns the bounding box of m.
func (m MultiPolygon) Bounds() orb.Bound {
	return m.Orb().Bound()
}

// Contains reports whether (lat, lon) lies inside any polygon. Points on an
// outer edge count as inside; points on a hole's edge belong to the hole.
func (m MultiPolygon) Contains(lat, lon float64) bool {
	return planar.MultiPolygonContains(m.Orb(), orb.Point{lon, lat})
}

// Equal reports whether both boundaries have the same rings in the same order.
func (m MultiPolygon) Equal(other MultiPolygon) bool {
	return m.Orb().Equal(other.Orb())
}

// AreaKm2 returns the spherical area with holes subtracted.
func (m MultiPolygon) AreaKm2() float64 {
	return orbgeo.Area(m.Orb()) / 1e6
}

// Centroid returns the area-weighted planar centroid.
func (m MultiPolygon) Centroid() (lat, lon float64) {
	if len(m) == 0 {
		return 0, 0
	}
	c, _ := planar.CentroidArea(m.Orb())
	return c.Lat(), c.Lon()
}

// ParseGeoJSON decodes a GeoJSON Polygon or MultiPolygon geometry.
func ParseGeoJSON(data []byte) (MultiPolygon, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	var out MultiPolygon
	switch v := g.Geometry().(type) {
	case orb.Polygon:
		out = MultiPolygon{v}
	case orb.MultiPolygon:
		out = MultiPolygon(v)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidGeometry, g.Type)
	}
	for _, p := range out {
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: polygon without rings", ErrInvalidGeometry)
		}
		for _, r := range p {
			if len(r) < 3 {
				return nil, fmt.Errorf("%w: ring needs at least 3 points", ErrInvalidGeometry)
			}
		}
	}
	return out, nil
}

// MarshalGeoJSON encodes m as a GeoJSON MultiPolygon geometry.
func (m MultiPolygon) MarshalGeoJSON() ([]byte, error) {
	return geojson.NewGeometry(m.Orb()).MarshalJSON()
}

// Rect builds a single rectangular polygon, mostly useful in tests and fixtures.
func Rect(minLat, minLon, maxLat, maxLon float64) MultiPolygon {
	b := orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
	return MultiPolygon{b.ToPolygon()}
}
