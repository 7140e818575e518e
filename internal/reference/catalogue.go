// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package reference

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// ErrNotLoaded is returned by operations that need a loaded catalogue.
var ErrNotLoaded = errors.New("reference catalogue not loaded")

// Source reads the static reference collections.
type Source interface {
	LoadRoutes(ctx context.Context) ([]models.Route, error)
	LoadTrips(ctx context.Context) ([]models.Trip, error)
	LoadStops(ctx context.Context) ([]models.Stop, error)
	LoadRegions(ctx context.Context) ([]models.Region, error)
}

// AssignmentWriter persists stop-to-region assignments. Implementations
// receive only the stops whose assignment changed.
type AssignmentWriter interface {
	UpdateStopRegions(ctx context.Context, assignments map[string]*string) error
}

// Options configures a Catalogue.
type Options struct {
	CityCenterLat float64
	CityCenterLon float64
	GridCellKm    float64

	// Writer, when set, receives changed stop assignments after each load.
	Writer AssignmentWriter

	// Now defaults to time.Now.
	Now func() time.Time
}

// Catalogue owns the current reference snapshot.
type Catalogue struct {
	opts    Options
	writeMu sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewCatalogue returns an empty catalogue.
func NewCatalogue(opts Options) *Catalogue {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Catalogue{opts: opts}
}

// Current returns the latest snapshot, or nil before the first Load.
func (c *Catalogue) Current() *Snapshot {
	return c.current.Load()
}

// collections is one read of a Source.
type collections struct {
	routes  []models.Route
	trips   []models.Trip
	stops   []models.Stop
	regions []models.Region
}

func fetch(ctx context.Context, src Source) (*collections, error) {
	var (
		col collections
		err error
	)
	if col.routes, err = src.LoadRoutes(ctx); err != nil {
		return nil, fmt.Errorf("load routes: %w", err)
	}
	if col.trips, err = src.LoadTrips(ctx); err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	if col.stops, err = src.LoadStops(ctx); err != nil {
		return nil, fmt.Errorf("load stops: %w", err)
	}
	if col.regions, err = src.LoadRegions(ctx); err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	return &col, nil
}

// Load reads every collection from src, computes stop features and region
// assignment, and publishes the result as a new snapshot.
func (c *Catalogue) Load(ctx context.Context, src Source) (*Snapshot, error) {
	col, err := fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	snap, _, err := c.loadLocked(ctx, col)
	return snap, err
}

func (c *Catalogue) loadLocked(ctx context.Context, col *collections) (*Snapshot, AssignStats, error) {
	routes, trips, stops, regions := col.routes, col.trips, col.stops, col.regions
	for i := range regions {
		completeRegion(&regions[i])
	}
	assigner := NewAssigner(c.opts.GridCellKm, regions)

	stored := regionsByStop(stops)
	for i := range stops {
		ComputeStopFeatures(&stops[i], c.opts.CityCenterLat, c.opts.CityCenterLon)
	}
	st := assigner.AssignAll(stops)
	if err := c.persistChanges(ctx, stored, stops); err != nil {
		return nil, st, err
	}
	snap := newSnapshot(c.nextVersion(), c.opts.Now(), routes, trips, stops, regions, assigner)
	c.current.Store(snap)

	metrics.RecordReferenceLoad(len(routes), len(trips), len(stops), len(regions), st.Unmatched)
	logging.Ctx(ctx).Info().
		Uint64("version", snap.Version).
		Int("routes", len(routes)).
		Int("trips", len(trips)).
		Int("stops", len(stops)).
		Int("regions", len(regions)).
		Int("stops_unassigned", st.Unmatched).
		Msg("Reference catalogue loaded")
	return snap, st, nil
}

// UpsertStops replaces or adds the given stops and re-assigns only them.
func (c *Catalogue) UpsertStops(ctx context.Context, changed []models.Stop) (*Snapshot, AssignStats, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.upsertStopsLocked(ctx, changed)
}

func (c *Catalogue) upsertStopsLocked(ctx context.Context, changed []models.Stop) (*Snapshot, AssignStats, error) {
	prev := c.current.Load()
	if prev == nil {
		return nil, AssignStats{}, ErrNotLoaded
	}

	updates := make([]models.Stop, len(changed))
	copy(updates, changed)
	before := make(map[string]*string, len(updates))
	for i := range updates {
		if old, ok := prev.stops[updates[i].StopID]; ok {
			before[updates[i].StopID] = old.RegionID
		} else {
			before[updates[i].StopID] = updates[i].RegionID
		}
	}
	for i := range updates {
		ComputeStopFeatures(&updates[i], c.opts.CityCenterLat, c.opts.CityCenterLon)
	}
	st := prev.assigner.AssignAll(updates)

	byID := make(map[string]models.Stop, len(prev.stopList)+len(updates))
	for _, s := range prev.stopList {
		byID[s.StopID] = s
	}
	for _, s := range updates {
		byID[s.StopID] = s
	}
	stops := make([]models.Stop, 0, len(byID))
	for _, s := range byID {
		stops = append(stops, s)
	}

	if err := c.persistChanges(ctx, before, updates); err != nil {
		return nil, st, err
	}
	snap := newSnapshot(c.nextVersion(), c.opts.Now(), prev.routeList, prev.tripList, stops, prev.regionList, prev.assigner)
	c.current.Store(snap)

	logging.Ctx(ctx).Info().
		Uint64("version", snap.Version).
		Int("stops_updated", len(updates)).
		Int("stops_unassigned", st.Unmatched).
		Msg("Stops re-assigned")
	return snap, st, nil
}

// ReplaceRegions swaps the region set, rebuilds the spatial index and
// re-assigns every stop.
func (c *Catalogue) ReplaceRegions(ctx context.Context, regions []models.Region) (*Snapshot, AssignStats, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.replaceRegionsLocked(ctx, regions)
}

func (c *Catalogue) replaceRegionsLocked(ctx context.Context, regions []models.Region) (*Snapshot, AssignStats, error) {
	prev := c.current.Load()
	if prev == nil {
		return nil, AssignStats{}, ErrNotLoaded
	}

	regs := make([]models.Region, len(regions))
	copy(regs, regions)
	for i := range regs {
		completeRegion(&regs[i])
	}
	assigner := NewAssigner(c.opts.GridCellKm, regs)

	stops := make([]models.Stop, len(prev.stopList))
	copy(stops, prev.stopList)
	st := assigner.AssignAll(stops)
	if err := c.persistChanges(ctx, regionsByStop(prev.stopList), stops); err != nil {
		return nil, st, err
	}
	snap := newSnapshot(c.nextVersion(), c.opts.Now(), prev.routeList, prev.tripList, stops, regs, assigner)
	c.current.Store(snap)

	logging.Ctx(ctx).Info().
		Uint64("version", snap.Version).
		Int("regions", len(regs)).
		Int("stops_reassigned", st.Changed).
		Int("stops_unassigned", st.Unmatched).
		Msg("Regions replaced")
	return snap, st, nil
}

func (c *Catalogue) nextVersion() uint64 {
	if cur := c.current.Load(); cur != nil {
		return cur.Version + 1
	}
	return 1
}

// persistChanges writes the assignments in stops that differ from before.
func (c *Catalogue) persistChanges(ctx context.Context, before map[string]*string, stops []models.Stop) error {
	if c.opts.Writer == nil {
		return nil
	}
	changes := make(map[string]*string)
	for i := range stops {
		if !sameRegion(before[stops[i].StopID], stops[i].RegionID) {
			changes[stops[i].StopID] = stops[i].RegionID
		}
	}
	if len(changes) == 0 {
		return nil
	}
	if err := c.opts.Writer.UpdateStopRegions(ctx, changes); err != nil {
		return fmt.Errorf("persist stop regions: %w", err)
	}
	return nil
}

func regionsByStop(stops []models.Stop) map[string]*string {
	m := make(map[string]*string, len(stops))
	for i := range stops {
		m[stops[i].StopID] = stops[i].RegionID
	}
	return m
}

// Snapshot is an immutable view of the reference data.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time

	routes  map[string]*models.Route
	trips   map[string]*models.Trip
	stops   map[string]*models.Stop
	regions map[string]*models.Region

	routeList  []models.Route
	tripList   []models.Trip
	stopList   []models.Stop
	regionList []models.Region
	assigner   *Assigner
}

func newSnapshot(version uint64, at time.Time, routes []models.Route, trips []models.Trip,
	stops []models.Stop, regions []models.Region, assigner *Assigner,
) *Snapshot {
	sort.Slice(stops, func(i, j int) bool { return stops[i].StopID < stops[j].StopID })
	sort.Slice(regions, func(i, j int) bool { return regions[i].RegionID < regions[j].RegionID })

	s := &Snapshot{
		Version:    version,
		LoadedAt:   at,
		routes:     make(map[string]*models.Route, len(routes)),
		trips:      make(map[string]*models.Trip, len(trips)),
		stops:      make(map[string]*models.Stop, len(stops)),
		regions:    make(map[string]*models.Region, len(regions)),
		routeList:  routes,
		tripList:   trips,
		stopList:   stops,
		regionList: regions,
		assigner:   assigner,
	}
	for i := range routes {
		s.routes[routes[i].RouteID] = &routes[i]
	}
	for i := range trips {
		s.trips[trips[i].TripID] = &trips[i]
	}
	for i := range stops {
		s.stops[stops[i].StopID] = &stops[i]
	}
	for i := range regions {
		s.regions[regions[i].RegionID] = &regions[i]
	}
	return s
}

// Route looks up a route by ID.
func (s *Snapshot) Route(id string) (*models.Route, bool) {
	r, ok := s.routes[id]
	return r, ok
}

// Trip looks up a trip by ID.
func (s *Snapshot) Trip(id string) (*models.Trip, bool) {
	t, ok := s.trips[id]
	return t, ok
}

// Stop looks up a stop by ID.
func (s *Snapshot) Stop(id string) (*models.Stop, bool) {
	st, ok := s.stops[id]
	return st, ok
}

// Region looks up a region by ID.
func (s *Snapshot) Region(id string) (*models.Region, bool) {
	r, ok := s.regions[id]
	return r, ok
}

// Regions returns all regions ordered by ID.
func (s *Snapshot) Regions() []models.Region {
	return s.regionList
}

// Stops returns all stops ordered by ID.
func (s *Snapshot) Stops() []models.Stop {
	return s.stopList
}

// Counts returns the collection sizes.
func (s *Snapshot) Counts() (routes, trips, stops, regions int) {
	return len(s.routeList), len(s.tripList), len(s.stopList), len(s.regionList)
}

// Locate maps a coordinate to a region with the snapshot's index.
func (s *Snapshot) Locate(lat, lon float64) *string {
	return s.assigner.Locate(lat, lon)
}
