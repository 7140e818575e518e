// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/refresh"
	"github.com/tomtom215/transitpulse/internal/snapshot"
)

// LayerStatus describes the published snapshot of one layer.
type LayerStatus struct {
	Layer   models.Layer `json:"layer"`
	Version uint64       `json:"version"`
	Rows    int          `json:"rows"`
	BuiltAt *time.Time   `json:"built_at,omitempty"`
}

// Ledger returns every ledger entry in dependency order.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := h.deps.Refresher.LedgerSnapshot(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, ledgerEntries(snap), start)
}

// LedgerEntry returns the ledger entry of the layer named in the path.
func (h *Handler) LedgerEntry(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	layer := models.Layer(chi.URLParam(r, "layer"))
	if !layer.Valid() {
		respondErr(w, r, fmt.Errorf("%w: %s", ledger.ErrUnknownLayer, layer))
		return
	}
	snap, err := h.deps.Refresher.LedgerSnapshot(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	entry, ok := snap[layer]
	if !ok {
		entry = models.LedgerEntry{Layer: layer, Status: models.StatusIdle}
	}
	respondSuccess(w, http.StatusOK, entry, start)
}

func ledgerEntries(snap map[models.Layer]models.LedgerEntry) []models.LedgerEntry {
	order := make(map[models.Layer]int, len(models.MaterializedLayers)+1)
	for i, l := range models.MaterializedLayers {
		order[l] = i
	}
	order[models.LayerArchive] = len(models.MaterializedLayers)

	out := make([]models.LedgerEntry, 0, len(snap))
	for _, e := range snap {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Layer] < order[out[j].Layer] })
	return out
}

// LayerStatuses reports the published version of every materialized layer.
func (h *Handler) LayerStatuses(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	l := h.deps.Layers
	out := []LayerStatus{
		layerStatus(models.LayerBase, l.Base.Current()),
		layerStatus(models.LayerEnriched, l.Enriched.Current()),
		layerStatus(models.LayerAnalytics, l.Analytics.Current()),
		layerStatus(models.LayerRollupHourly, l.Hourly.Current()),
		layerStatus(models.LayerRollupDaily, l.Daily.Current()),
		layerStatus(models.LayerRollupRecent, l.Recent.Current()),
		layerStatus(models.LayerRollupRanking, l.Ranking.Current()),
	}
	respondSuccess(w, http.StatusOK, out, start)
}

func layerStatus[T any](layer models.Layer, s *snapshot.Snapshot[T]) LayerStatus {
	st := LayerStatus{Layer: layer}
	if s != nil {
		built := s.BuiltAt
		st.Version = s.Version
		st.Rows = len(s.Rows)
		st.BuiltAt = &built
	}
	return st
}

// RefreshAll triggers a full refresh.
func (h *Handler) RefreshAll(w http.ResponseWriter, r *http.Request) {
	h.runRefresh(w, r, h.deps.Refresher.RefreshAll)
}

// RefreshIncremental refreshes only when new observations arrived.
func (h *Handler) RefreshIncremental(w http.ResponseWriter, r *http.Request) {
	h.runRefresh(w, r, h.deps.Refresher.RefreshIncremental)
}

// RefreshBaseConcurrent rebuilds Base while readers keep the old snapshot.
func (h *Handler) RefreshBaseConcurrent(w http.ResponseWriter, r *http.Request) {
	h.runRefresh(w, r, h.deps.Refresher.RefreshBaseConcurrent)
}

// RefreshLayer runs a staged refresh of the layer named in the path.
func (h *Handler) RefreshLayer(w http.ResponseWriter, r *http.Request) {
	layer := models.Layer(chi.URLParam(r, "layer"))
	h.runRefresh(w, r, func(ctx context.Context) (*models.RefreshResult, error) {
		return h.deps.Refresher.RefreshLayer(ctx, layer)
	})
}

func (h *Handler) runRefresh(w http.ResponseWriter, r *http.Request, run func(context.Context) (*models.RefreshResult, error)) {
	start := time.Now()
	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	res, err := run(ctx)
	if err != nil && !errors.Is(err, refresh.ErrNothingToDo) {
		respondErr(w, r, err)
		return
	}
	if res == nil {
		res = &models.RefreshResult{}
	}
	if snap, lerr := h.deps.Refresher.LedgerSnapshot(ctx); lerr == nil {
		res.Ledger = snap
	}
	respondSuccess(w, http.StatusOK, res, start)
}

// Archive runs one retention pass.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Archiver == nil {
		respondError(w, r, http.StatusServiceUnavailable, "DISABLED", "archival is disabled", nil)
		return
	}
	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	res, err := h.deps.Archiver.Archive(ctx)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, res, start)
}
