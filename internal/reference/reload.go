// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package reference

import (
	"context"
	"slices"
	"strings"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// Reload modes.
const (
	ReloadFull      = "full"
	ReloadStops     = "stops"
	ReloadRegions   = "regions"
	ReloadUnchanged = "unchanged"
)

// ReloadResult describes what a Reload published.
type ReloadResult struct {
	Mode         string `json:"mode"`
	Version      uint64 `json:"version"`
	StopsChanged int    `json:"stops_changed"`
	Reassigned   int    `json:"stops_reassigned"`
	Unassigned   int    `json:"stops_unassigned"`
}

// Reload re-reads src and publishes only what changed. A region-only change
// goes through ReplaceRegions and a stop-only change (no removals) goes
// through UpsertStops with just the changed stops; anything else, or an empty
// catalogue, falls back to a full load. When nothing changed the current
// snapshot stays published.
func (c *Catalogue) Reload(ctx context.Context, src Source) (*ReloadResult, error) {
	col, err := fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	prev := c.current.Load()
	if prev == nil {
		return c.reloadFull(ctx, col, len(col.stops))
	}

	staticChanged := !sameRoutes(prev.routeList, col.routes) || !sameTrips(prev.tripList, col.trips)
	changedStops, removed := diffStops(prev, col.stops)
	regionsChanged := !sameRegions(prev.regionList, col.regions)

	var (
		res = &ReloadResult{StopsChanged: len(changedStops)}
		st  AssignStats
	)
	switch {
	case staticChanged || removed || (regionsChanged && len(changedStops) > 0):
		return c.reloadFull(ctx, col, len(changedStops))
	case regionsChanged:
		res.Mode = ReloadRegions
		_, st, err = c.replaceRegionsLocked(ctx, col.regions)
	case len(changedStops) > 0:
		res.Mode = ReloadStops
		_, st, err = c.upsertStopsLocked(ctx, changedStops)
	default:
		res.Mode = ReloadUnchanged
		res.Version = prev.Version
		logging.Ctx(ctx).Debug().Uint64("version", prev.Version).Msg("Reference catalogue unchanged")
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	snap := c.current.Load()
	routes, trips, stops, regions := snap.Counts()
	unassigned := 0
	for i := range snap.stopList {
		if snap.stopList[i].RegionID == nil {
			unassigned++
		}
	}
	metrics.RecordReferenceLoad(routes, trips, stops, regions, unassigned)

	res.Version = snap.Version
	res.Reassigned = st.Changed
	res.Unassigned = unassigned
	return res, nil
}

func (c *Catalogue) reloadFull(ctx context.Context, col *collections, changed int) (*ReloadResult, error) {
	snap, st, err := c.loadLocked(ctx, col)
	if err != nil {
		return nil, err
	}
	return &ReloadResult{
		Mode:         ReloadFull,
		Version:      snap.Version,
		StopsChanged: changed,
		Reassigned:   st.Changed,
		Unassigned:   st.Unmatched,
	}, nil
}

func sameRoutes(prev, next []models.Route) bool {
	next = slices.Clone(next)
	slices.SortFunc(next, func(a, b models.Route) int { return strings.Compare(a.RouteID, b.RouteID) })
	prev = slices.Clone(prev)
	slices.SortFunc(prev, func(a, b models.Route) int { return strings.Compare(a.RouteID, b.RouteID) })
	return slices.Equal(prev, next)
}

func sameTrips(prev, next []models.Trip) bool {
	next = slices.Clone(next)
	slices.SortFunc(next, func(a, b models.Trip) int { return strings.Compare(a.TripID, b.TripID) })
	prev = slices.Clone(prev)
	slices.SortFunc(prev, func(a, b models.Trip) int { return strings.Compare(a.TripID, b.TripID) })
	return slices.Equal(prev, next)
}

// diffStops returns the stops in next that are new or moved or renamed, and
// whether any stop in prev is missing from next.
func diffStops(prev *Snapshot, next []models.Stop) (changed []models.Stop, removed bool) {
	seen := make(map[string]struct{}, len(next))
	for _, s := range next {
		seen[s.StopID] = struct{}{}
		old, ok := prev.stops[s.StopID]
		if !ok || old.Name != s.Name || old.Lat != s.Lat || old.Lon != s.Lon {
			changed = append(changed, s)
		}
	}
	for id := range prev.stops {
		if _, ok := seen[id]; !ok {
			return changed, true
		}
	}
	return changed, false
}

// sameRegions compares regions by ID, metadata and boundary. Derived centre
// and area are filled on a copy first so a source that leaves them empty
// compares equal to the completed snapshot.
func sameRegions(prev, next []models.Region) bool {
	if len(prev) != len(next) {
		return false
	}
	byID := make(map[string]*models.Region, len(prev))
	for i := range prev {
		byID[prev[i].RegionID] = &prev[i]
	}
	for _, r := range next {
		completeRegion(&r)
		old, ok := byID[r.RegionID]
		if !ok || old.Name != r.Name || old.Type != r.Type ||
			old.CenterLat != r.CenterLat || old.CenterLon != r.CenterLon ||
			old.AreaKm2 != r.AreaKm2 || !old.Boundary.Equal(r.Boundary) {
			return false
		}
	}
	return true
}
