// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/predictions"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/refresh"
)

type fakeRefresher struct {
	mu     sync.Mutex
	err    error
	calls  []string
	layers []models.Layer
}

func (f *fakeRefresher) record(call string) (*models.RefreshResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	res := &models.RefreshResult{Mode: call}
	if errors.Is(f.err, refresh.ErrNothingToDo) {
		res.Skipped = true
	}
	return res, f.err
}

func (f *fakeRefresher) RefreshAll(context.Context) (*models.RefreshResult, error) {
	return f.record(refresh.ModeFull)
}

func (f *fakeRefresher) RefreshIncremental(context.Context) (*models.RefreshResult, error) {
	return f.record(refresh.ModeIncremental)
}

func (f *fakeRefresher) RefreshLayer(_ context.Context, layer models.Layer) (*models.RefreshResult, error) {
	f.mu.Lock()
	f.layers = append(f.layers, layer)
	f.mu.Unlock()
	return f.record(refresh.ModeStaged)
}

func (f *fakeRefresher) RefreshBaseConcurrent(context.Context) (*models.RefreshResult, error) {
	return f.record(refresh.ModeConcurrentBase)
}

func (f *fakeRefresher) LedgerSnapshot(context.Context) (map[models.Layer]models.LedgerEntry, error) {
	return map[models.Layer]models.LedgerEntry{
		models.LayerArchive:   {Layer: models.LayerArchive, Status: models.StatusIdle},
		models.LayerAnalytics: {Layer: models.LayerAnalytics, Status: models.StatusSuccess, Version: 3},
		models.LayerBase:      {Layer: models.LayerBase, Status: models.StatusSuccess, Version: 3},
	}, nil
}

func (f *fakeRefresher) callsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeArchiver struct{ err error }

func (a fakeArchiver) Archive(context.Context) (*models.ArchiveResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &models.ArchiveResult{AnalyticsRowsBefore: 4, AnalyticsRowsAfter: 2, Version: 2}, nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func (p fakePinger) Healthy() error { return p.err }

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

type testServer struct {
	handler   http.Handler
	refresher *fakeRefresher
	layers    *refresh.Layers
}

func newTestServer(t *testing.T, mutate func(*Dependencies, *ChiMiddlewareConfig)) *testServer {
	t.Helper()
	ts := &testServer{
		refresher: &fakeRefresher{},
		layers:    refresh.NewLayers(),
	}
	deps := Dependencies{
		Refresher:   ts.refresher,
		Layers:      ts.layers,
		Archiver:    fakeArchiver{},
		Predictions: predictions.NewStore(predictions.NewMemory()),
		Database:    fakePinger{},
		Ledger:      fakePinger{},
		RunTimeout:  time.Minute,
	}
	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.RateLimitDisabled = true
	if mutate != nil {
		mutate(&deps, mwCfg)
	}
	ts.handler = NewChiRouter(NewHandler(deps), NewChiMiddleware(mwCfg)).Setup()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestHealthLive(t *testing.T) {
	ts := newTestServer(t, nil)
	code, env := ts.do(t, http.MethodGet, "/api/v1/health/live", nil)
	if code != http.StatusOK || env.Status != "success" {
		t.Fatalf("live = %d %s", code, env.Status)
	}
}

func TestHealthReady(t *testing.T) {
	ts := newTestServer(t, nil)
	code, env := ts.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	if code != http.StatusOK {
		t.Fatalf("ready = %d, want 200", code)
	}
	var h HealthStatus
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatal(err)
	}
	if h.Checks["database"] != "ok" || h.Checks["ledger"] != "ok" {
		t.Errorf("checks = %v", h.Checks)
	}

	ts = newTestServer(t, func(d *Dependencies, _ *ChiMiddlewareConfig) {
		d.Database = fakePinger{err: errors.New("database is closed")}
	})
	code, env = ts.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("ready with failing database = %d, want 503", code)
	}
	if err := json.Unmarshal(env.Data, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "not_ready" || h.Checks["database"] != "database is closed" {
		t.Errorf("health = %+v", h)
	}
}

func TestRefreshErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"in progress", fmt.Errorf("refresh base: %w", ledger.ErrRefreshInProgress), http.StatusConflict, "REFRESH_IN_PROGRESS"},
		{"superseded", fmt.Errorf("refresh base: %w", refresh.ErrSuperseded), http.StatusConflict, "SUPERSEDED"},
		{"unknown layer", fmt.Errorf("%w: bogus", ledger.ErrUnknownLayer), http.StatusNotFound, "UNKNOWN_LAYER"},
		{"stale upstream", refresh.ErrUpstreamStale, http.StatusPreconditionFailed, "UPSTREAM_STALE"},
		{"timeout", fmt.Errorf("refresh analytics: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "TIMEOUT"},
		{"internal", errors.New("duckdb: disk full"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			ts.refresher.err = tt.err

			code, env := ts.do(t, http.MethodPost, "/api/v1/refresh", nil)
			if code != tt.status {
				t.Fatalf("status = %d, want %d", code, tt.status)
			}
			if env.Status != "error" || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.code)
			}
			if tt.code == "INTERNAL_ERROR" && env.Error.Message != "internal server error" {
				t.Errorf("internal error leaked %q", env.Error.Message)
			}
		})
	}
}

func TestRefreshIncrementalSkipped(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.refresher.err = refresh.ErrNothingToDo

	code, env := ts.do(t, http.MethodPost, "/api/v1/refresh/incremental", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	var res models.RefreshResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || res.Mode != refresh.ModeIncremental {
		t.Errorf("result = %+v, want skipped incremental", res)
	}
	if len(res.Ledger) != 3 {
		t.Errorf("ledger entries = %d, want 3", len(res.Ledger))
	}
}

func TestRefreshRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, path := range []string{
		"/api/v1/refresh",
		"/api/v1/refresh/incremental",
		"/api/v1/refresh/base/concurrent",
		"/api/v1/refresh/rollup_daily",
	} {
		if code, _ := ts.do(t, http.MethodPost, path, nil); code != http.StatusOK {
			t.Fatalf("POST %s = %d", path, code)
		}
	}

	want := []string{refresh.ModeFull, refresh.ModeIncremental, refresh.ModeConcurrentBase, refresh.ModeStaged}
	got := ts.refresher.callsSnapshot()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if len(ts.refresher.layers) != 1 || ts.refresher.layers[0] != models.LayerRollupDaily {
		t.Errorf("staged layers = %v", ts.refresher.layers)
	}

	if code, _ := ts.do(t, http.MethodGet, "/api/v1/refresh", nil); code != http.StatusMethodNotAllowed {
		t.Errorf("GET /refresh = %d, want 405", code)
	}
}

func TestLedgerDependencyOrder(t *testing.T) {
	ts := newTestServer(t, nil)
	code, env := ts.do(t, http.MethodGet, "/api/v1/ledger", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var entries []models.LedgerEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		t.Fatal(err)
	}
	var order []models.Layer
	for _, e := range entries {
		order = append(order, e.Layer)
	}
	want := []models.Layer{models.LayerBase, models.LayerAnalytics, models.LayerArchive}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestArchive(t *testing.T) {
	ts := newTestServer(t, nil)
	code, env := ts.do(t, http.MethodPost, "/api/v1/archive", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var res models.ArchiveResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatal(err)
	}
	if res.AnalyticsRowsAfter != 2 || res.Version != 2 {
		t.Errorf("result = %+v", res)
	}

	ts = newTestServer(t, func(d *Dependencies, _ *ChiMiddlewareConfig) { d.Archiver = nil })
	if code, env := ts.do(t, http.MethodPost, "/api/v1/archive", nil); code != http.StatusServiceUnavailable || env.Error.Code != "DISABLED" {
		t.Errorf("disabled archive = %d %+v", code, env.Error)
	}
}

type stopSource struct {
	mu    sync.Mutex
	stops []models.Stop
}

func (s *stopSource) LoadRoutes(context.Context) ([]models.Route, error)   { return nil, nil }
func (s *stopSource) LoadTrips(context.Context) ([]models.Trip, error)     { return nil, nil }
func (s *stopSource) LoadRegions(context.Context) ([]models.Region, error) { return nil, nil }

func (s *stopSource) LoadStops(context.Context) ([]models.Stop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Stop(nil), s.stops...), nil
}

func TestReloadReference(t *testing.T) {
	cat := reference.NewCatalogue(reference.Options{GridCellKm: 2})
	src := &stopSource{stops: []models.Stop{{StopID: "s1", Lat: 49.28, Lon: -123.12}}}
	ts := newTestServer(t, func(d *Dependencies, _ *ChiMiddlewareConfig) {
		d.Catalogue = cat
		d.Reloader = cat
		d.ReferenceSource = src
	})

	reload := func() reference.ReloadResult {
		t.Helper()
		code, env := ts.do(t, http.MethodPost, "/api/v1/reference/reload", nil)
		if code != http.StatusOK {
			t.Fatalf("reload = %d %+v", code, env.Error)
		}
		var res reference.ReloadResult
		if err := json.Unmarshal(env.Data, &res); err != nil {
			t.Fatal(err)
		}
		return res
	}

	if res := reload(); res.Mode != reference.ReloadFull || res.Version != 1 {
		t.Errorf("first reload = %+v, want full at version 1", res)
	}
	if res := reload(); res.Mode != reference.ReloadUnchanged || res.Version != 1 {
		t.Errorf("repeat reload = %+v, want unchanged", res)
	}

	src.mu.Lock()
	src.stops = append(src.stops, models.Stop{StopID: "s2", Lat: 49.25, Lon: -123.0})
	src.mu.Unlock()
	if res := reload(); res.Mode != reference.ReloadStops || res.StopsChanged != 1 || res.Version != 2 {
		t.Errorf("reload after a new stop = %+v, want stops mode at version 2", res)
	}
	if _, ok := cat.Current().Stop("s2"); !ok {
		t.Error("new stop missing from the published catalogue")
	}

	ts = newTestServer(t, nil)
	if code, env := ts.do(t, http.MethodPost, "/api/v1/reference/reload", nil); code != http.StatusServiceUnavailable || env.Error.Code != "DISABLED" {
		t.Errorf("reload without a source = %d %+v", code, env.Error)
	}
}

func TestLayerStatuses(t *testing.T) {
	ts := newTestServer(t, nil)
	built := time.Date(2026, 3, 3, 1, 0, 0, 0, time.UTC)
	ts.layers.Recent.Publish([]models.RecentRegionStatus{{RegionID: "burnaby"}, {RegionID: "vancouver"}}, built)

	_, env := ts.do(t, http.MethodGet, "/api/v1/layers", nil)
	var statuses []LayerStatus
	if err := json.Unmarshal(env.Data, &statuses); err != nil {
		t.Fatal(err)
	}
	if len(statuses) != len(models.MaterializedLayers) {
		t.Fatalf("statuses = %d, want %d", len(statuses), len(models.MaterializedLayers))
	}
	for _, s := range statuses {
		switch s.Layer {
		case models.LayerRollupRecent:
			if s.Version != 1 || s.Rows != 2 || s.BuiltAt == nil {
				t.Errorf("recent = %+v", s)
			}
		default:
			if s.Version != 0 || s.BuiltAt != nil {
				t.Errorf("%s = %+v, want unpublished", s.Layer, s)
			}
		}
	}
}

func TestRegionsRollupsFilters(t *testing.T) {
	ts := newTestServer(t, nil)
	h0 := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	ts.layers.Hourly.Publish([]models.RegionalRollup{
		{RegionID: "burnaby", Granularity: models.GranularityHour, BucketStart: h0},
		{RegionID: "burnaby", Granularity: models.GranularityHour, BucketStart: h0.Add(time.Hour)},
		{RegionID: "vancouver", Granularity: models.GranularityHour, BucketStart: h0.Add(time.Hour)},
	}, h0)
	ts.layers.Daily.Publish([]models.RegionalRollup{
		{RegionID: "vancouver", Granularity: models.GranularityDay, BucketStart: h0.Truncate(24 * time.Hour)},
	}, h0)

	decode := func(env envelope) []models.RegionalRollup {
		var rows []models.RegionalRollup
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			t.Fatal(err)
		}
		return rows
	}

	_, env := ts.do(t, http.MethodGet, "/api/v1/regions/rollups?region_id=burnaby", nil)
	if rows := decode(env); len(rows) != 2 {
		t.Errorf("burnaby hourly = %d rows, want 2", len(rows))
	}

	_, env = ts.do(t, http.MethodGet, "/api/v1/regions/rollups?since=2026-03-02T18:00:00Z", nil)
	if rows := decode(env); len(rows) != 2 {
		t.Errorf("hourly since 18:00 = %d rows, want 2", len(rows))
	}

	_, env = ts.do(t, http.MethodGet, "/api/v1/regions/rollups?granularity=day", nil)
	if rows := decode(env); len(rows) != 1 || rows[0].Granularity != models.GranularityDay {
		t.Errorf("daily = %+v", rows)
	}

	code, env := ts.do(t, http.MethodGet, "/api/v1/regions/rollups?granularity=week", nil)
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("bad granularity = %d %+v", code, env.Error)
	}
}

func TestRegionsBeforeFirstRefresh(t *testing.T) {
	ts := newTestServer(t, nil)
	for _, path := range []string{"/api/v1/regions/recent", "/api/v1/regions/ranking"} {
		code, env := ts.do(t, http.MethodGet, path, nil)
		if code != http.StatusOK || string(env.Data) != "[]" {
			t.Errorf("GET %s = %d %s, want empty list", path, code, env.Data)
		}
	}
}

func predictionBody(t *testing.T, stamp time.Time, horizon int) []byte {
	t.Helper()
	target := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	batch := models.PredictionBatch{
		BatchCreatedAt: stamp,
		Predictions: []models.Prediction{
			{RegionID: "vancouver", RouteID: "99", StopID: "s-broadway", TargetTime: target, HorizonOffset: horizon, PredictedDelaySeconds: 95, ModelVersion: "gbm-3"},
			{RegionID: "vancouver", RouteID: "99", StopID: "s-downtown", TargetTime: target, HorizonOffset: horizon, PredictedDelaySeconds: 40, ModelVersion: "gbm-3"},
		},
	}
	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestPredictionsAppendAndLatest(t *testing.T) {
	ts := newTestServer(t, nil)
	stamp := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	code, env := ts.do(t, http.MethodPost, "/api/v1/predictions", predictionBody(t, stamp, 1))
	if code != http.StatusCreated {
		t.Fatalf("append = %d %+v", code, env.Error)
	}
	var ack AppendResult
	if err := json.Unmarshal(env.Data, &ack); err != nil {
		t.Fatal(err)
	}
	if ack.Rows != 2 || !ack.BatchCreatedAt.Equal(stamp) {
		t.Errorf("ack = %+v", ack)
	}

	code, env = ts.do(t, http.MethodPost, "/api/v1/predictions", predictionBody(t, stamp, 1))
	if code != http.StatusConflict || env.Error.Code != "DUPLICATE_BATCH" {
		t.Fatalf("duplicate = %d %+v", code, env.Error)
	}

	_, env = ts.do(t, http.MethodGet, "/api/v1/predictions/latest?stop_id=s-broadway", nil)
	var rows []models.Prediction
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].PredictedDelaySeconds != 95 {
		t.Errorf("latest = %+v", rows)
	}

	_, env = ts.do(t, http.MethodGet, "/api/v1/predictions/history?region_id=vancouver&route_id=99&direction_id=0&stop_id=s-downtown", nil)
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].StopID != "s-downtown" {
		t.Errorf("history = %+v", rows)
	}

	later := stamp.Add(time.Hour)
	if code, env := ts.do(t, http.MethodPost, "/api/v1/predictions", predictionBody(t, later, 1)); code != http.StatusCreated {
		t.Fatalf("second append = %d %+v", code, env.Error)
	}
	series := "/api/v1/predictions/history?region_id=vancouver&route_id=99&direction_id=0&stop_id=s-downtown"
	_, env = ts.do(t, http.MethodGet, series+"&since="+later.Format(time.RFC3339), nil)
	rows = nil
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].BatchCreatedAt.Equal(later) {
		t.Errorf("history since %v = %+v", later, rows)
	}
	_, env = ts.do(t, http.MethodGet, series+"&limit=1", nil)
	rows = nil
	if err := json.Unmarshal(env.Data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || !rows[0].BatchCreatedAt.Equal(stamp) {
		t.Errorf("history limit 1 = %+v, want the oldest batch", rows)
	}
}

func TestPredictionsValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(t, http.MethodPost, "/api/v1/predictions", predictionBody(t, time.Time{}, 4))
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("horizon 4 = %d %+v", code, env.Error)
	}

	code, env = ts.do(t, http.MethodPost, "/api/v1/predictions", []byte("{not json"))
	if code != http.StatusBadRequest || env.Error.Code != "INVALID_JSON" {
		t.Errorf("garbage = %d %+v", code, env.Error)
	}

	code, env = ts.do(t, http.MethodGet, "/api/v1/predictions/history?route_id=99", nil)
	if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("history without stop = %d %+v", code, env.Error)
	}

	for _, q := range []string{"since=yesterday", "limit=ten", "limit=-1", "limit=100001"} {
		code, env = ts.do(t, http.MethodGet, "/api/v1/predictions/history?route_id=99&stop_id=s1&"+q, nil)
		if code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("history %s = %d %+v", q, code, env.Error)
		}
	}
}

func TestRateLimitOnRuns(t *testing.T) {
	ts := newTestServer(t, func(_ *Dependencies, c *ChiMiddlewareConfig) {
		c.RateLimitDisabled = false
		c.RateLimitRequests = 1
		c.RateLimitWindow = time.Minute
	})

	if code, _ := ts.do(t, http.MethodPost, "/api/v1/refresh", nil); code != http.StatusOK {
		t.Fatalf("first refresh = %d", code)
	}
	code, env := ts.do(t, http.MethodPost, "/api/v1/refresh", nil)
	if code != http.StatusTooManyRequests || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("second refresh = %d %+v", code, env.Error)
	}
	if code, _ := ts.do(t, http.MethodGet, "/api/v1/ledger", nil); code != http.StatusOK {
		t.Errorf("reads must not be limited, got %d", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	code, env := ts.do(t, http.MethodGet, "/api/v1/nope", nil)
	if code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown route = %d %+v", code, env.Error)
	}
}

func TestLedgerEntry(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.do(t, http.MethodGet, "/api/v1/ledger/base", nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var e models.LedgerEntry
	if err := json.Unmarshal(env.Data, &e); err != nil {
		t.Fatal(err)
	}
	if e.Status != models.StatusSuccess || e.Version != 3 {
		t.Errorf("base entry = %+v", e)
	}

	_, env = ts.do(t, http.MethodGet, "/api/v1/ledger/rollup_recent", nil)
	if err := json.Unmarshal(env.Data, &e); err != nil {
		t.Fatal(err)
	}
	if e.Layer != models.LayerRollupRecent || e.Status != models.StatusIdle {
		t.Errorf("untracked entry = %+v, want idle", e)
	}

	code, env = ts.do(t, http.MethodGet, "/api/v1/ledger/bogus", nil)
	if code != http.StatusNotFound || env.Error.Code != "UNKNOWN_LAYER" {
		t.Errorf("bogus layer = %d %+v", code, env.Error)
	}
}
