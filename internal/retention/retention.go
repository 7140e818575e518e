// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/materialize"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/rawlog"
	"github.com/tomtom215/transitpulse/internal/refresh"
	"github.com/tomtom215/transitpulse/internal/snapshot"
)

// ErrRawLogMutated is returned when the raw log row count below the
// archival high-water mark changed during an archival run.
var ErrRawLogMutated = errors.New("raw observation log changed during archival")

// DefaultWindow is the Analytics retention window.
const DefaultWindow = 90 * 24 * time.Hour

// Options configures a Manager.
type Options struct {
	// Window is how far back Analytics rows are kept, by time bucket.
	Window time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the retention section.
func OptionsFromConfig(cfg *config.RetentionConfig) Options {
	return Options{Window: cfg.Window, Now: time.Now}
}

// Manager narrows the Analytics layer to the trailing window. The raw log
// is only ever read.
type Manager struct {
	raw       rawlog.Log
	analytics *snapshot.Store[models.AnalyticsRecord]
	ledger    refresh.Ledger
	sink      refresh.LayerSink
	opts      Options
}

// NewManager returns a Manager. sink may be nil.
func NewManager(raw rawlog.Log, analytics *snapshot.Store[models.AnalyticsRecord], l refresh.Ledger,
	sink refresh.LayerSink, opts Options,
) *Manager {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{raw: raw, analytics: analytics, ledger: l, sink: sink, opts: opts}
}

// Window returns the configured retention window.
func (m *Manager) Window() time.Duration {
	return m.opts.Window
}

// Archive drops Analytics rows whose time bucket is before now minus the
// window and publishes the result as a new Analytics version. The run is
// recorded in the ledger under the archive layer.
func (m *Manager) Archive(ctx context.Context) (*models.ArchiveResult, error) {
	runID, err := m.ledger.Begin(ctx, models.LayerArchive)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log := logging.Ctx(ctx).With().Str("layer", string(models.LayerArchive)).Str("layer_run_id", runID).Logger()

	res, err := m.archive(ctx)
	res.Duration = time.Since(start)
	if err != nil {
		if lerr := m.ledger.Fail(context.WithoutCancel(ctx), models.LayerArchive, runID, err); lerr != nil {
			log.Error().Err(lerr).Msg("Failed to record archival failure")
		}
		metrics.RecordRefresh(string(models.LayerArchive), "failed", res.Duration, 0)
		log.Error().Err(err).Msg("Archival failed")
		return res, err
	}

	if err := m.ledger.Succeed(context.WithoutCancel(ctx), models.LayerArchive, runID, ledger.Outcome{
		Rows:    int64(res.AnalyticsRowsAfter),
		Version: res.Version,
	}); err != nil {
		return res, fmt.Errorf("record success: %w", err)
	}

	removed := res.AnalyticsRowsBefore - res.AnalyticsRowsAfter
	metrics.RecordArchive(removed, m.opts.Now())
	metrics.RecordRefresh(string(models.LayerArchive), "success", res.Duration, res.AnalyticsRowsAfter)
	log.Info().
		Time("cutoff", res.Cutoff).
		Int("rows_before", res.AnalyticsRowsBefore).
		Int("rows_after", res.AnalyticsRowsAfter).
		Int64("raw_rows", res.RawRowsAfter).
		Uint64("version", res.Version).
		Dur("duration", res.Duration).
		Msg("Analytics archived")
	return res, nil
}

func (m *Manager) archive(ctx context.Context) (*models.ArchiveResult, error) {
	now := m.opts.Now()
	res := &models.ArchiveResult{Cutoff: now.Add(-m.opts.Window)}

	// Counting up to a fixed high-water mark keeps the check meaningful
	// while ingest keeps appending.
	hw, err := m.raw.HighWater(ctx)
	if err != nil {
		return res, fmt.Errorf("read raw log high-water mark: %w", err)
	}
	if res.RawRowsBefore, err = m.raw.CountUpTo(ctx, hw); err != nil {
		return res, fmt.Errorf("count raw log: %w", err)
	}

	cur := m.analytics.Current()
	if cur != nil {
		res.AnalyticsRowsBefore = len(cur.Rows)
		kept := materialize.TrimAnalytics(cur.Rows, res.Cutoff)
		res.AnalyticsRowsAfter = len(kept)

		version := m.analytics.NextVersion()
		if m.sink != nil {
			if err := m.sink.PublishLayer(ctx, models.LayerAnalytics, version, kept); err != nil {
				return res, fmt.Errorf("publish %s v%d: %w", models.LayerAnalytics, version, err)
			}
		}
		snap, ok := m.analytics.PublishIf(cur.Version, kept, now)
		if !ok {
			return res, fmt.Errorf("%w: expected v%d, found v%d", refresh.ErrSuperseded, cur.Version, snap.Version)
		}
		res.Version = snap.Version
		metrics.SetLayerVersion(string(models.LayerAnalytics), snap.Version, len(kept))
	}

	if res.RawRowsAfter, err = m.raw.CountUpTo(ctx, hw); err != nil {
		return res, fmt.Errorf("count raw log: %w", err)
	}
	if res.RawRowsAfter != res.RawRowsBefore {
		logging.Ctx(ctx).Error().
			Int64("before", res.RawRowsBefore).
			Int64("after", res.RawRowsAfter).
			Int64("high_water", hw).
			Msg("Raw observation count changed during archival")
		return res, fmt.Errorf("%w: %d rows before, %d after", ErrRawLogMutated, res.RawRowsBefore, res.RawRowsAfter)
	}
	return res, nil
}
