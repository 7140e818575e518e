// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"context"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/refresh"
)

// Refresher runs layer refreshes.
type Refresher interface {
	RefreshAll(ctx context.Context) (*models.RefreshResult, error)
	RefreshIncremental(ctx context.Context) (*models.RefreshResult, error)
	RefreshLayer(ctx context.Context, layer models.Layer) (*models.RefreshResult, error)
	RefreshBaseConcurrent(ctx context.Context) (*models.RefreshResult, error)
	LedgerSnapshot(ctx context.Context) (map[models.Layer]models.LedgerEntry, error)
}

// Archiver runs the retention job.
type Archiver interface {
	Archive(ctx context.Context) (*models.ArchiveResult, error)
}

// PredictionStore is the prediction batch store.
type PredictionStore interface {
	AppendBatch(ctx context.Context, batchCreatedAt time.Time, rows []models.Prediction) (time.Time, error)
	Latest(ctx context.Context, f models.PredictionFilter) ([]models.Prediction, error)
	History(ctx context.Context, key models.PredictionKey, rng models.HistoryRange) ([]models.Prediction, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports store health without a context.
type HealthChecker interface {
	Healthy() error
}

// Catalogue exposes the loaded reference snapshot.
type Catalogue interface {
	Current() *reference.Snapshot
}

// ReferenceReloader re-reads the reference catalogue from a source.
type ReferenceReloader interface {
	Reload(ctx context.Context, src reference.Source) (*reference.ReloadResult, error)
}

// Dependencies collects what the handlers need. Nil optional fields
// disable their endpoints with 503.
type Dependencies struct {
	Refresher   Refresher
	Layers      *refresh.Layers
	Archiver    Archiver
	Predictions PredictionStore
	Catalogue   Catalogue
	Database    Pinger
	Ledger      HealthChecker

	// Reloader and ReferenceSource enable POST /reference/reload.
	Reloader        ReferenceReloader
	ReferenceSource reference.Source

	// RunTimeout bounds refresh and archive runs. 0 means no bound.
	RunTimeout time.Duration
}

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers_health.go: liveness and readiness
//   - handlers_refresh.go: refresh, archive, ledger and layer status
//   - handlers_regions.go: published rollup snapshots
//   - handlers_predictions.go: prediction batches
//   - handlers_reference.go: reference catalogue reload
type Handler struct {
	deps      Dependencies
	startTime time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{deps: deps, startTime: time.Now()}
}

// runContext detaches a run from the request so client disconnects do not
// cancel it midway.
func (h *Handler) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if h.deps.RunTimeout > 0 {
		return context.WithTimeout(ctx, h.deps.RunTimeout)
	}
	return context.WithCancel(ctx)
}
