// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package geo assigns coordinates to region boundaries. Geometry is
// github.com/paulmach/orb: GeoJSON decoding via orb/geojson, containment via
// orb/planar and great-circle distance and area via orb/geo. RegionIndex
// adds a grid spatial hash over region bounding boxes, with an R-tree for
// shapes too large for the grid.
//
// Coordinates are WGS84 degrees stored in orb order ([lon, lat]); the public
// API takes (lat, lon) like the rest of the codebase.
package geo
