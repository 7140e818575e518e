// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/refresh"
)

// Refresher is the part of the orchestrator the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context) (*models.RefreshResult, error)
	RefreshIncremental(ctx context.Context) (*models.RefreshResult, error)
}

// Archiver runs one retention pass.
type Archiver interface {
	Archive(ctx context.Context) (*models.ArchiveResult, error)
}

// ReferenceReloader re-reads the reference catalogue from a source.
type ReferenceReloader interface {
	Reload(ctx context.Context, src reference.Source) (*reference.ReloadResult, error)
}

// SchedulerConfig controls a periodic job.
type SchedulerConfig struct {
	Interval     time.Duration
	RunOnStartup bool

	// FullEvery forces a full refresh every N ticks. 0 keeps every tick
	// incremental. Ignored by the retention scheduler.
	FullEvery int

	// RunTimeout bounds a single run. 0 means no bound.
	RunTimeout time.Duration
}

// ticker runs job on startup (optionally) and every interval until ctx is
// done. Job errors are the job's concern; the loop never exits on them.
func ticker(ctx context.Context, cfg SchedulerConfig, job func(ctx context.Context, tick int)) error {
	tick := 0
	run := func() {
		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.RunTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		}
		defer cancel()
		job(runCtx, tick)
		tick++
	}

	if cfg.RunOnStartup {
		run()
	}

	t := time.NewTicker(cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			run()
		}
	}
}

// RefreshSchedulerService refreshes the feature layers on a fixed interval.
type RefreshSchedulerService struct {
	refresher Refresher
	cfg       SchedulerConfig
	name      string
}

// NewRefreshSchedulerService creates the refresh scheduler. A non-positive
// interval falls back to five minutes.
func NewRefreshSchedulerService(r Refresher, cfg SchedulerConfig) *RefreshSchedulerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &RefreshSchedulerService{refresher: r, cfg: cfg, name: "refresh-scheduler"}
}

// Serve implements suture.Service.
func (s *RefreshSchedulerService) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.cfg.Interval).
		Int("full_every", s.cfg.FullEvery).
		Bool("run_on_startup", s.cfg.RunOnStartup).
		Msg("Refresh scheduler started")
	return ticker(ctx, s.cfg, s.runOnce)
}

// runOnce picks the refresh mode for tick. The startup run and every
// FullEvery-th tick are full refreshes.
func (s *RefreshSchedulerService) runOnce(ctx context.Context, tick int) {
	full := tick == 0 && s.cfg.RunOnStartup
	if s.cfg.FullEvery > 0 && tick%s.cfg.FullEvery == 0 {
		full = true
	}

	var (
		res *models.RefreshResult
		err error
	)
	if full {
		res, err = s.refresher.RefreshAll(ctx)
	} else {
		res, err = s.refresher.RefreshIncremental(ctx)
	}

	switch {
	case err == nil:
		logging.Ctx(ctx).Debug().Str("mode", res.Mode).Dur("duration", res.Duration).Msg("Scheduled refresh finished")
	case errors.Is(err, refresh.ErrNothingToDo):
		logging.Ctx(ctx).Debug().Msg("Scheduled refresh skipped, no new observations")
	case errors.Is(err, ledger.ErrRefreshInProgress):
		logging.Ctx(ctx).Warn().Err(err).Msg("Scheduled refresh skipped, another run is active")
	default:
		logging.Ctx(ctx).Error().Err(err).Bool("full", full).Msg("Scheduled refresh failed")
	}
}

// String identifies the service in suture log events.
func (s *RefreshSchedulerService) String() string {
	return s.name
}

// RetentionSchedulerService runs archival on a fixed interval.
type RetentionSchedulerService struct {
	archiver Archiver
	cfg      SchedulerConfig
	name     string
}

// NewRetentionSchedulerService creates the retention scheduler. A
// non-positive interval falls back to 24 hours.
func NewRetentionSchedulerService(a Archiver, cfg SchedulerConfig) *RetentionSchedulerService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &RetentionSchedulerService{archiver: a, cfg: cfg, name: "retention-scheduler"}
}

// Serve implements suture.Service.
func (s *RetentionSchedulerService) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.cfg.Interval).Msg("Retention scheduler started")
	return ticker(ctx, s.cfg, func(ctx context.Context, _ int) {
		res, err := s.archiver.Archive(ctx)
		if err != nil {
			if errors.Is(err, ledger.ErrRefreshInProgress) {
				logging.Ctx(ctx).Warn().Err(err).Msg("Scheduled archival skipped, another run is active")
				return
			}
			logging.Ctx(ctx).Error().Err(err).Msg("Scheduled archival failed")
			return
		}
		logging.Ctx(ctx).Debug().
			Int("analytics_rows_removed", res.AnalyticsRowsBefore-res.AnalyticsRowsAfter).
			Msg("Scheduled archival finished")
	})
}

// String identifies the service in suture log events.
func (s *RetentionSchedulerService) String() string {
	return s.name
}

// ReferenceReloadService re-reads the reference catalogue on a fixed
// interval so stop and region edits reach region assignment without a
// restart.
type ReferenceReloadService struct {
	reloader ReferenceReloader
	src      reference.Source
	cfg      SchedulerConfig
	name     string
}

// NewReferenceReloadService creates the reload scheduler. A non-positive
// interval falls back to one hour. The startup load happens before the tree
// starts, so RunOnStartup is normally false.
func NewReferenceReloadService(r ReferenceReloader, src reference.Source, cfg SchedulerConfig) *ReferenceReloadService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &ReferenceReloadService{reloader: r, src: src, cfg: cfg, name: "reference-reload"}
}

// Serve implements suture.Service.
func (s *ReferenceReloadService) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.cfg.Interval).Msg("Reference reload scheduler started")
	return ticker(ctx, s.cfg, func(ctx context.Context, _ int) {
		res, err := s.reloader.Reload(ctx, s.src)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Scheduled reference reload failed")
			return
		}
		logging.Ctx(ctx).Debug().
			Str("mode", res.Mode).
			Uint64("version", res.Version).
			Int("stops_reassigned", res.Reassigned).
			Msg("Scheduled reference reload finished")
	})
}

// String identifies the service in suture log events.
func (s *ReferenceReloadService) String() string {
	return s.name
}
