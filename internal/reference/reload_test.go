// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/tomtom215/transitpulse/internal/geo"
	"github.com/tomtom215/transitpulse/internal/models"
)

func TestCatalogueReload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	w := &recordingWriter{}
	c := newTestCatalogue(w)
	src := testSource()

	res, err := c.Reload(ctx, src)
	if err != nil {
		t.Fatalf("first Reload: %v", err)
	}
	if res.Mode != ReloadFull || res.Version != 1 {
		t.Fatalf("first Reload = %+v, want a full load at version 1", res)
	}

	res, err = c.Reload(ctx, src)
	if err != nil {
		t.Fatalf("unchanged Reload: %v", err)
	}
	if res.Mode != ReloadUnchanged || res.Version != 1 || c.Current().Version != 1 {
		t.Errorf("unchanged Reload = %+v, current version %d", res, c.Current().Version)
	}

	// Burnaby grows west over downtown; the stops stay put.
	src.regions = []models.Region{
		{RegionID: "vancouver", Name: "Vancouver", Boundary: geo.Rect(49.19, -123.27, 49.32, -123.02)},
		{RegionID: "burnaby", Name: "Burnaby", Boundary: geo.Rect(49.18, -123.20, 49.30, -122.89)},
	}
	res, err = c.Reload(ctx, src)
	if err != nil {
		t.Fatalf("region Reload: %v", err)
	}
	if res.Mode != ReloadRegions || res.Version != 2 || res.Reassigned != 1 {
		t.Errorf("region Reload = %+v, want regions mode, version 2, one stop reassigned", res)
	}
	down, _ := c.Current().Stop("s-downtown")
	if down.RegionID == nil || *down.RegionID != "burnaby" {
		t.Errorf("downtown region after region reload = %v, want burnaby", down.RegionID)
	}

	// Move the sea stop onshore; regions unchanged.
	src.stops = []models.Stop{
		{StopID: "s-downtown", Lat: 49.2827, Lon: -123.1207},
		{StopID: "s-burnaby", Lat: 49.2259, Lon: -123.0004},
		{StopID: "s-sea", Lat: 49.25, Lon: -122.95},
	}
	calls := len(w.calls)
	res, err = c.Reload(ctx, src)
	if err != nil {
		t.Fatalf("stop Reload: %v", err)
	}
	if res.Mode != ReloadStops || res.StopsChanged != 1 || res.Version != 3 {
		t.Errorf("stop Reload = %+v, want stops mode with one changed stop at version 3", res)
	}
	if len(w.calls) != calls+1 {
		t.Fatalf("writer calls = %d, want %d", len(w.calls), calls+1)
	}
	if last := w.calls[len(w.calls)-1]; len(last) != 1 || last["s-sea"] == nil {
		t.Errorf("only the moved stop should be persisted, got %v", last)
	}

	// Dropping a stop needs a full load.
	src.stops = src.stops[:2]
	res, err = c.Reload(ctx, src)
	if err != nil {
		t.Fatalf("removal Reload: %v", err)
	}
	if res.Mode != ReloadFull || res.Version != 4 {
		t.Errorf("removal Reload = %+v, want a full load at version 4", res)
	}
	if _, ok := c.Current().Stop("s-sea"); ok {
		t.Error("removed stop is still in the catalogue")
	}
}

func TestCatalogueReloadRouteChangeIsFull(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCatalogue(nil)
	src := testSource()
	if _, err := c.Load(ctx, src); err != nil {
		t.Fatalf("Load: %v", err)
	}
	src.routes = append(src.routes, models.Route{RouteID: "R4", ShortName: "R4"})
	res, err := c.Reload(ctx, src)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if res.Mode != ReloadFull {
		t.Errorf("Mode = %s, want %s", res.Mode, ReloadFull)
	}
	if _, ok := c.Current().Route("R4"); !ok {
		t.Error("new route missing after reload")
	}
}

func TestCatalogueReloadSourceError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCatalogue(nil)
	src := testSource()
	if _, err := c.Load(ctx, src); err != nil {
		t.Fatalf("Load: %v", err)
	}
	src.err = errors.New("db down")
	if _, err := c.Reload(ctx, src); err == nil {
		t.Fatal("expected error")
	}
	if c.Current().Version != 1 {
		t.Errorf("failed reload replaced the snapshot: version %d", c.Current().Version)
	}
}
