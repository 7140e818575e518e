// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package geo

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// maxCellsPerShape caps how many grid cells one shape is filed under. Shapes
// whose bounding box would cover more go into an R-tree instead.
const maxCellsPerShape = 1 << 16

// CellKey is a grid cell coordinate.
type CellKey struct {
	X, Y int
}

// Shape is a region boundary to be indexed.
type Shape struct {
	ID       string
	Boundary MultiPolygon
}

type indexedShape struct {
	id       string
	boundary MultiPolygon
	bbox     orb.Bound
}

// RegionIndex is an immutable grid spatial hash over region bounding boxes,
// with an R-tree for shapes too large for the grid. A point lookup only runs
// the exact polygon test against shapes whose boxes touch the point's cell or
// contain the point.
//
// Overlapping shapes resolve deterministically: Locate returns the matching
// shape with the smallest ID.
type RegionIndex struct {
	cellSize float64 // degrees
	shapes   []indexedShape
	cells    map[CellKey][]int
	oversize rtree.RTreeG[int]
}

// NewRegionIndex builds an index with cells of roughly cellSizeKm.
func NewRegionIndex(cellSizeKm float64, shapes []Shape) *RegionIndex {
	if cellSizeKm <= 0 {
		cellSizeKm = 2
	}
	ix := &RegionIndex{
		cellSize: cellSizeKm / kmPerDegree,
		cells:    make(map[CellKey][]int),
	}

	sorted := make([]Shape, len(shapes))
	copy(sorted, shapes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, s := range sorted {
		if len(s.Boundary) == 0 {
			continue
		}
		idx := len(ix.shapes)
		bbox := s.Boundary.Bounds()
		ix.shapes = append(ix.shapes, indexedShape{id: s.ID, boundary: s.Boundary, bbox: bbox})

		lo := ix.cellKey(bbox.Min.Lat(), bbox.Min.Lon())
		hi := ix.cellKey(bbox.Max.Lat(), bbox.Max.Lon())
		if (hi.X-lo.X+1)*(hi.Y-lo.Y+1) > maxCellsPerShape || hi.X < lo.X {
			ix.oversize.Insert(bbox.Min, bbox.Max, idx)
			continue
		}
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				k := CellKey{X: x, Y: y}
				ix.cells[k] = append(ix.cells[k], idx)
			}
		}
	}
	return ix
}

func (ix *RegionIndex) cellKey(lat, lon float64) CellKey {
	for lon > 180 {
		lon -= 360
	}
	for lon < -180 {
		lon += 360
	}
	return CellKey{
		X: int(math.Floor(lon / ix.cellSize)),
		Y: int(math.Floor(lat / ix.cellSize)),
	}
}

// Locate returns the ID of the region containing (lat, lon).
func (ix *RegionIndex) Locate(lat, lon float64) (string, bool) {
	if ix == nil || len(ix.shapes) == 0 {
		return "", false
	}
	pt := orb.Point{lon, lat}
	best := -1
	consider := func(idx int) {
		if best != -1 && idx >= best {
			return
		}
		s := &ix.shapes[idx]
		if s.bbox.Contains(pt) && s.boundary.Contains(lat, lon) {
			best = idx
		}
	}
	// Cell lists are in ascending ID order, so the first hit is the best one
	// from the grid; oversize shapes may still beat it.
	for _, idx := range ix.cells[ix.cellKey(lat, lon)] {
		consider(idx)
		if best != -1 {
			break
		}
	}
	ix.oversize.Search(pt, pt, func(_, _ [2]float64, idx int) bool {
		consider(idx)
		return true
	})
	if best == -1 {
		return "", false
	}
	return ix.shapes[best].id, true
}

// Len returns the number of indexed shapes.
func (ix *RegionIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.shapes)
}

// OversizeCount returns the number of shapes held in the R-tree.
func (ix *RegionIndex) OversizeCount() int {
	if ix == nil {
		return 0
	}
	return ix.oversize.Len()
}

// CellCount returns the number of populated grid cells.
func (ix *RegionIndex) CellCount() int {
	if ix == nil {
		return 0
	}
	return len(ix.cells)
}
