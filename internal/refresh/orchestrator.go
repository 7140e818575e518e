// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package refresh

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/materialize"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/rawlog"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/rollup"
	"github.com/tomtom215/transitpulse/internal/snapshot"
	"github.com/tomtom215/transitpulse/internal/stats"
)

var (
	// ErrUpstreamStale is returned by a staged refresh whose upstream layer
	// has not succeeded recently enough.
	ErrUpstreamStale = errors.New("upstream layer is stale")

	// ErrNothingToDo is returned by RefreshIncremental when the raw log has
	// not grown since the last Base success.
	ErrNothingToDo = errors.New("no new observations since last refresh")

	// ErrSuperseded is returned when another run swapped the layer while
	// this one was building.
	ErrSuperseded = errors.New("layer superseded by a concurrent refresh")
)

// Run modes reported in models.RefreshResult.
const (
	ModeFull           = "full"
	ModeIncremental    = "incremental"
	ModeStaged         = "staged"
	ModeConcurrentBase = "concurrent_base"
)

// Ledger is the refresh state store.
type Ledger interface {
	Begin(ctx context.Context, layer models.Layer) (string, error)
	Succeed(ctx context.Context, layer models.Layer, runID string, out ledger.Outcome) error
	Fail(ctx context.Context, layer models.Layer, runID string, cause error) error
	Get(ctx context.Context, layer models.Layer) (models.LedgerEntry, error)
	All(ctx context.Context) ([]models.LedgerEntry, error)
}

// Catalogue supplies the current reference snapshot.
type Catalogue interface {
	Current() *reference.Snapshot
}

// Layers holds the in-memory snapshot of every materialized layer.
type Layers struct {
	Base      *snapshot.Store[models.LatestObservation]
	Enriched  *snapshot.Store[models.EnrichedRecord]
	Analytics *snapshot.Store[models.AnalyticsRecord]
	Hourly    *snapshot.Store[models.RegionalRollup]
	Daily     *snapshot.Store[models.RegionalRollup]
	Recent    *snapshot.Store[models.RecentRegionStatus]
	Ranking   *snapshot.Store[models.RegionalRanking]
}

// NewLayers returns empty stores.
func NewLayers() *Layers {
	return &Layers{
		Base:      snapshot.NewStore[models.LatestObservation](string(models.LayerBase)),
		Enriched:  snapshot.NewStore[models.EnrichedRecord](string(models.LayerEnriched)),
		Analytics: snapshot.NewStore[models.AnalyticsRecord](string(models.LayerAnalytics)),
		Hourly:    snapshot.NewStore[models.RegionalRollup](string(models.LayerRollupHourly)),
		Daily:     snapshot.NewStore[models.RegionalRollup](string(models.LayerRollupDaily)),
		Recent:    snapshot.NewStore[models.RecentRegionStatus](string(models.LayerRollupRecent)),
		Ranking:   snapshot.NewStore[models.RegionalRanking](string(models.LayerRollupRanking)),
	}
}

// advance continues version numbering of layer from a persisted version.
func (l *Layers) advance(layer models.Layer, version uint64) {
	switch layer {
	case models.LayerBase:
		l.Base.AdvanceTo(version)
	case models.LayerEnriched:
		l.Enriched.AdvanceTo(version)
	case models.LayerAnalytics:
		l.Analytics.AdvanceTo(version)
	case models.LayerRollupHourly:
		l.Hourly.AdvanceTo(version)
	case models.LayerRollupDaily:
		l.Daily.AdvanceTo(version)
	case models.LayerRollupRecent:
		l.Recent.AdvanceTo(version)
	case models.LayerRollupRanking:
		l.Ranking.AdvanceTo(version)
	}
}

// Options configures the orchestrator.
type Options struct {
	Base      materialize.BaseOptions
	Enrich    materialize.EnrichOptions
	Analytics materialize.AnalyticsOptions
	Rollup    rollup.Options

	// StalenessGuard rejects staged refreshes whose upstream last succeeded
	// more than MaxUpstreamAge ago.
	StalenessGuard bool
	MaxUpstreamAge time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Base:           materialize.DefaultBaseOptions(),
		Enrich:         materialize.EnrichOptions{Location: time.UTC, PeakWindows: materialize.DefaultPeakWindows()},
		Analytics:      materialize.DefaultAnalyticsOptions(),
		Rollup:         rollup.DefaultOptions(),
		StalenessGuard: true,
		MaxUpstreamAge: 30 * time.Minute,
		Now:            time.Now,
	}
}

// OptionsFromConfig maps the materialize, rollup and refresh sections.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	loc, err := cfg.Materialize.Location()
	if err != nil {
		return Options{}, err
	}
	peaks, err := config.ParsePeakWindows(cfg.Materialize.PeakWindows)
	if err != nil {
		return Options{}, err
	}
	m := cfg.Materialize
	return Options{
		Base: materialize.BaseOptions{
			Recency:         m.BaseRecency,
			MinDelaySeconds: m.MinDelaySeconds,
			MaxDelaySeconds: m.MaxDelaySeconds,
		},
		Enrich: materialize.EnrichOptions{Location: loc, PeakWindows: peaks},
		Analytics: materialize.AnalyticsOptions{
			MinGroupSamples:  m.MinGroupSamples,
			MinTravelSeconds: m.MinTravelSeconds,
			MaxTravelSeconds: m.MaxTravelSeconds,
		},
		Rollup: rollup.Options{
			HistoryWindow: cfg.Rollup.HistoryWindow,
			RecentWindow:  cfg.Rollup.RecentWindow,
			RankingWindow: cfg.Rollup.RankingWindow,
			Location:      loc,
		},
		StalenessGuard: cfg.Refresh.StalenessGuard,
		MaxUpstreamAge: cfg.Refresh.MaxUpstreamAge,
		Now:            time.Now,
	}, nil
}

// Orchestrator runs layer refreshes in dependency order and records each
// one in the ledger.
type Orchestrator struct {
	raw    rawlog.Log
	ref    Catalogue
	ledger Ledger
	sink   LayerSink
	layers *Layers
	opts   Options

	// runMu serializes full and staged runs. Concurrent Base runs skip it
	// and rely on the ledger alone.
	runMu sync.Mutex
}

// New returns an orchestrator. sink may be nil, in which case layers live
// in memory only.
func New(raw rawlog.Log, ref Catalogue, l Ledger, sink LayerSink, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Enrich.Location == nil {
		opts.Enrich.Location = time.UTC
	}
	if opts.Rollup.Location == nil {
		opts.Rollup.Location = opts.Enrich.Location
	}
	return &Orchestrator{raw: raw, ref: ref, ledger: l, sink: sink, layers: NewLayers(), opts: opts}
}

// Layers returns the snapshot stores readers query.
func (o *Orchestrator) Layers() *Layers {
	return o.layers
}

// Ledger returns the ledger the orchestrator records into.
func (o *Orchestrator) Ledger() Ledger {
	return o.ledger
}

// RefreshAll rebuilds every layer in dependency order. The first failure
// stops the run; downstream layers keep their previous snapshot.
func (o *Orchestrator) RefreshAll(ctx context.Context) (*models.RefreshResult, error) {
	return o.refreshAll(ctx, ModeFull)
}

// RefreshIncremental runs a full refresh unless the raw log has not grown
// since the last successful Base build and every layer's last run
// succeeded. A layer left failed by the previous run is retried on the next
// tick, not at the next full refresh.
func (o *Orchestrator) RefreshIncremental(ctx context.Context) (*models.RefreshResult, error) {
	hw, err := o.raw.HighWater(ctx)
	if err != nil {
		return nil, fmt.Errorf("read raw log high-water mark: %w", err)
	}
	entries, err := o.LedgerSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	base := entries[models.LayerBase]
	if base.LastSuccessTime != nil && hw <= base.HighWater && allSucceeded(entries) {
		metrics.RecordRefresh("all", "skipped", 0, 0)
		logging.Ctx(ctx).Debug().Int64("high_water", hw).Msg("Incremental refresh skipped")
		return &models.RefreshResult{Mode: ModeIncremental, Skipped: true}, ErrNothingToDo
	}
	return o.refreshAll(ctx, ModeIncremental)
}

func allSucceeded(entries map[models.Layer]models.LedgerEntry) bool {
	for _, layer := range models.MaterializedLayers {
		if entries[layer].Status != models.StatusSuccess {
			return false
		}
	}
	return true
}

func (o *Orchestrator) refreshAll(ctx context.Context, mode string) (*models.RefreshResult, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	ctx = logging.ContextWithRunID(ctx, uuid.New().String())
	start := time.Now()
	res := &models.RefreshResult{Mode: mode}

	for _, layer := range []models.Layer{models.LayerBase, models.LayerEnriched, models.LayerAnalytics} {
		lr, err := o.runLayer(ctx, layer)
		if err != nil {
			res.Duration = time.Since(start)
			return res, fmt.Errorf("refresh %s: %w", layer, err)
		}
		res.Layers = append(res.Layers, lr)
	}

	rollups, err := o.runRollups(ctx)
	res.Layers = append(res.Layers, rollups...)
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	logging.Ctx(ctx).Info().
		Str("mode", mode).
		Int("layers", len(res.Layers)).
		Dur("duration", res.Duration).
		Msg("Refresh completed")
	return res, nil
}

// runRollups rebuilds the four rollups concurrently. They read the same
// Analytics snapshot and do not depend on each other, so one failing does
// not stop the others.
func (o *Orchestrator) runRollups(ctx context.Context) ([]models.LayerRefreshResult, error) {
	p := pool.NewWithResults[models.LayerRefreshResult]().WithErrors().WithContext(ctx)
	for _, layer := range models.RollupLayers {
		p.Go(func(ctx context.Context) (models.LayerRefreshResult, error) {
			lr, err := o.runLayer(ctx, layer)
			if err != nil {
				return lr, fmt.Errorf("refresh %s: %w", layer, err)
			}
			return lr, nil
		})
	}
	results, err := p.Wait()

	order := make(map[models.Layer]int, len(models.MaterializedLayers))
	for i, l := range models.MaterializedLayers {
		order[l] = i
	}
	sort.Slice(results, func(i, j int) bool { return order[results[i].Layer] < order[results[j].Layer] })
	return results, err
}

// RefreshLayer rebuilds exactly one layer from its upstream's current
// snapshot.
func (o *Orchestrator) RefreshLayer(ctx context.Context, layer models.Layer) (*models.RefreshResult, error) {
	if !layer.Valid() || layer == models.LayerArchive {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownLayer, layer)
	}
	o.runMu.Lock()
	defer o.runMu.Unlock()

	ctx = logging.ContextWithRunID(ctx, uuid.New().String())
	start := time.Now()
	res := &models.RefreshResult{Mode: ModeStaged}

	if err := o.checkUpstream(ctx, layer); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}
	lr, err := o.runLayer(ctx, layer)
	res.Duration = time.Since(start)
	if err != nil {
		return res, fmt.Errorf("refresh %s: %w", layer, err)
	}
	res.Layers = []models.LayerRefreshResult{lr}
	return res, nil
}

// RefreshBaseConcurrent rebuilds Base without taking the run lock. Readers
// keep the previous snapshot until the swap.
func (o *Orchestrator) RefreshBaseConcurrent(ctx context.Context) (*models.RefreshResult, error) {
	ctx = logging.ContextWithRunID(ctx, uuid.New().String())
	start := time.Now()
	lr, err := o.runLayer(ctx, models.LayerBase)
	res := &models.RefreshResult{Mode: ModeConcurrentBase, Duration: time.Since(start)}
	if err != nil {
		return res, fmt.Errorf("refresh %s: %w", models.LayerBase, err)
	}
	res.Layers = []models.LayerRefreshResult{lr}
	return res, nil
}

// checkUpstream records a failed run and returns ErrUpstreamStale when the
// guard is on and layer's upstream has not succeeded recently.
func (o *Orchestrator) checkUpstream(ctx context.Context, layer models.Layer) error {
	up := layer.Upstream()
	if !o.opts.StalenessGuard || up == "" {
		return nil
	}
	entry, err := o.ledger.Get(ctx, up)
	if err != nil {
		return err
	}
	now := o.opts.Now()
	if entry.LastSuccessTime != nil && now.Sub(*entry.LastSuccessTime) <= o.opts.MaxUpstreamAge {
		return nil
	}

	cause := fmt.Errorf("%w: %s last succeeded %s", ErrUpstreamStale, up, describeAge(entry.LastSuccessTime, now))
	runID, err := o.ledger.Begin(ctx, layer)
	if err != nil {
		return err
	}
	if err := o.ledger.Fail(ctx, layer, runID, cause); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("layer", string(layer)).Msg("Failed to record stale upstream")
	}
	metrics.RecordRefresh(string(layer), "failed", 0, 0)
	logging.Ctx(ctx).Warn().Err(cause).Str("layer", string(layer)).Msg("Refresh rejected")
	return cause
}

func describeAge(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return now.Sub(*t).Round(time.Second).String() + " ago"
}

// runLayer executes one ledger-tracked layer build.
func (o *Orchestrator) runLayer(ctx context.Context, layer models.Layer) (models.LayerRefreshResult, error) {
	switch layer {
	case models.LayerBase:
		return run(ctx, o, layer, o.layers.Base, o.buildBase)
	case models.LayerEnriched:
		return run(ctx, o, layer, o.layers.Enriched, o.buildEnriched)
	case models.LayerAnalytics:
		return run(ctx, o, layer, o.layers.Analytics, o.buildAnalytics)
	case models.LayerRollupHourly:
		return run(ctx, o, layer, o.layers.Hourly, o.buildHourly)
	case models.LayerRollupDaily:
		return run(ctx, o, layer, o.layers.Daily, o.buildDaily)
	case models.LayerRollupRecent:
		return run(ctx, o, layer, o.layers.Recent, o.buildRecent)
	case models.LayerRollupRanking:
		return run(ctx, o, layer, o.layers.Ranking, o.buildRanking)
	default:
		return models.LayerRefreshResult{Layer: layer}, fmt.Errorf("%w: %s", ledger.ErrUnknownLayer, layer)
	}
}

// builder produces a layer's rows and, for Base, the raw-log high-water
// mark the rows were read at. prev holds the layer's own rows as of the
// start of the run; only the swap of exactly that version may replace them.
type builder[T any] func(ctx context.Context, now time.Time, prev []T) (rows []T, highWater int64, err error)

func run[T any](ctx context.Context, o *Orchestrator, layer models.Layer, store *snapshot.Store[T], build builder[T]) (models.LayerRefreshResult, error) {
	lr := models.LayerRefreshResult{Layer: layer}
	runID, err := o.ledger.Begin(ctx, layer)
	if err != nil {
		return lr, err
	}
	start := time.Now()
	log := logging.Ctx(ctx).With().Str("layer", string(layer)).Str("layer_run_id", runID).Logger()
	log.Debug().Msg("Layer refresh started")

	fail := func(err error) (models.LayerRefreshResult, error) {
		lr.Duration = time.Since(start)
		// The ledger write must not be lost to a cancelled run context.
		if lerr := o.ledger.Fail(context.WithoutCancel(ctx), layer, runID, err); lerr != nil {
			log.Error().Err(lerr).Msg("Failed to record refresh failure")
		}
		metrics.RecordRefresh(string(layer), "failed", lr.Duration, 0)
		log.Error().Err(err).Dur("duration", lr.Duration).Msg("Layer refresh failed")
		return lr, err
	}

	// The version is captured before building so that a swap made while
	// building (archival trimming Analytics, a concurrent Base run) makes
	// this run fail instead of publishing over it.
	var expected uint64
	var prev []T
	if cur := store.Current(); cur != nil {
		expected = cur.Version
		prev = cur.Rows
	}

	now := o.opts.Now()
	rows, hw, err := build(ctx, now, prev)
	if err != nil {
		return fail(err)
	}

	if cur := store.Current(); cur != nil && cur.Version != expected {
		return fail(fmt.Errorf("%w: expected v%d, found v%d", ErrSuperseded, expected, cur.Version))
	}
	version := store.NextVersion()
	if o.sink != nil {
		if err := o.sink.PublishLayer(ctx, layer, version, rows); err != nil {
			return fail(fmt.Errorf("publish %s v%d: %w", layer, version, err))
		}
	}
	snap, ok := store.PublishIf(expected, rows, now)
	if !ok {
		return fail(fmt.Errorf("%w: expected v%d, found v%d", ErrSuperseded, expected, snap.Version))
	}

	lr.Rows = int64(len(rows))
	lr.Version = snap.Version
	lr.Duration = time.Since(start)
	if err := o.ledger.Succeed(context.WithoutCancel(ctx), layer, runID, ledger.Outcome{
		Rows:      lr.Rows,
		Version:   lr.Version,
		HighWater: hw,
	}); err != nil {
		return lr, fmt.Errorf("record success: %w", err)
	}
	metrics.RecordRefresh(string(layer), "success", lr.Duration, len(rows))
	metrics.SetLayerVersion(string(layer), lr.Version, len(rows))
	log.Info().
		Int64("rows", lr.Rows).
		Uint64("version", lr.Version).
		Dur("duration", lr.Duration).
		Msg("Layer refreshed")
	return lr, nil
}

func (o *Orchestrator) buildBase(ctx context.Context, now time.Time, _ []models.LatestObservation) ([]models.LatestObservation, int64, error) {
	hw, err := o.raw.HighWater(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("read high-water mark: %w", err)
	}
	raw, err := o.raw.Since(ctx, o.opts.Base.Cutoff(now))
	if err != nil {
		return nil, 0, fmt.Errorf("read raw log: %w", err)
	}
	rows, st := materialize.BuildBase(raw, now, o.opts.Base)

	metrics.RecordDropped(string(models.LayerBase), "out_of_window", st.OutOfWindow)
	metrics.RecordDropped(string(models.LayerBase), "missing_arrival", st.MissingArrival)
	metrics.RecordDropped(string(models.LayerBase), "delay_out_of_range", st.DelayOutOfRange)
	logging.Ctx(ctx).Debug().
		Int("input", st.Input).
		Int("missing_arrival", st.MissingArrival).
		Int("delay_out_of_range", st.DelayOutOfRange).
		Int("output", st.Output).
		Msg("Base built")
	return rows, hw, nil
}

func (o *Orchestrator) buildEnriched(ctx context.Context, _ time.Time, _ []models.EnrichedRecord) ([]models.EnrichedRecord, int64, error) {
	ref := o.ref.Current()
	if ref == nil {
		return nil, 0, reference.ErrNotLoaded
	}
	rows, st := materialize.Enrich(o.layers.Base.Rows(), ref, o.opts.Enrich)

	metrics.RecordDropped(string(models.LayerEnriched), "missing_trip", st.MissingTrip)
	metrics.RecordDropped(string(models.LayerEnriched), "missing_route", st.MissingRoute)
	metrics.RecordDropped(string(models.LayerEnriched), "missing_stop", st.MissingStop)
	logging.Ctx(ctx).Debug().
		Int("input", st.Input).
		Int("missing_trip", st.MissingTrip).
		Int("missing_route", st.MissingRoute).
		Int("missing_stop", st.MissingStop).
		Int("output", st.Output).
		Uint64("reference_version", ref.Version).
		Msg("Enriched built")
	return rows, 0, nil
}

// buildAnalytics computes features for the current Enriched rows and folds
// them into prev, the Analytics history this run started from.
func (o *Orchestrator) buildAnalytics(ctx context.Context, now time.Time, prev []models.AnalyticsRecord) ([]models.AnalyticsRecord, int64, error) {
	fresh, st := materialize.BuildAnalytics(o.layers.Enriched.Rows(), o.opts.Analytics)
	rows := materialize.MergeAnalytics(prev, fresh, now.Add(-o.opts.Rollup.HistoryWindow))

	metrics.RecordDropped(string(models.LayerAnalytics), "travel_time_out_of_range", st.TravelRejected)
	logging.Ctx(ctx).Debug().
		Int("fresh", len(fresh)).
		Int("groups", st.Groups).
		Int("qualified_groups", st.QualifiedGroups).
		Int("travel_times", st.TravelTimes).
		Int("retained", len(rows)).
		Msg("Analytics built")
	return rows, 0, nil
}

func (o *Orchestrator) buildHourly(_ context.Context, now time.Time, _ []models.RegionalRollup) ([]models.RegionalRollup, int64, error) {
	return rollup.Hourly(o.layers.Analytics.Rows(), stats.Trailing(now, o.opts.Rollup.HistoryWindow)), 0, nil
}

func (o *Orchestrator) buildDaily(_ context.Context, now time.Time, _ []models.RegionalRollup) ([]models.RegionalRollup, int64, error) {
	w := stats.Trailing(now, o.opts.Rollup.HistoryWindow)
	return rollup.Daily(o.layers.Analytics.Rows(), w, o.opts.Rollup.Location), 0, nil
}

func (o *Orchestrator) buildRecent(_ context.Context, now time.Time, _ []models.RecentRegionStatus) ([]models.RecentRegionStatus, int64, error) {
	ref := o.ref.Current()
	if ref == nil {
		return nil, 0, reference.ErrNotLoaded
	}
	w := stats.Trailing(now, o.opts.Rollup.RecentWindow)
	return rollup.Recent(o.layers.Analytics.Rows(), ref.Regions(), w), 0, nil
}

func (o *Orchestrator) buildRanking(_ context.Context, now time.Time, _ []models.RegionalRanking) ([]models.RegionalRanking, int64, error) {
	ref := o.ref.Current()
	if ref == nil {
		return nil, 0, reference.ErrNotLoaded
	}
	w := stats.Trailing(now, o.opts.Rollup.RankingWindow)
	return rollup.Rank(o.layers.Analytics.Rows(), ref.Regions(), w), 0, nil
}

// LedgerSnapshot returns every ledger entry keyed by layer.
func (o *Orchestrator) LedgerSnapshot(ctx context.Context) (map[models.Layer]models.LedgerEntry, error) {
	entries, err := o.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[models.Layer]models.LedgerEntry, len(entries))
	for _, e := range entries {
		out[e.Layer] = e
	}
	return out, nil
}
