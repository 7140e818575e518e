// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/transitpulse/internal/models"
)

// RollupQuery filters the rollup listing.
type RollupQuery struct {
	Granularity string     `validate:"omitempty,oneof=hour day"`
	RegionID    string     `validate:"omitempty,max=64"`
	Since       *time.Time
}

// RegionsRecent serves the recent-status rollup, one row per region.
func (h *Handler) RegionsRecent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows := h.deps.Layers.Recent.Rows()
	if rows == nil {
		rows = []models.RecentRegionStatus{}
	}
	respondSuccess(w, http.StatusOK, rows, start)
}

// RegionsRanking serves the ranking rollup ordered by rank_by_delay.
func (h *Handler) RegionsRanking(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rows := h.deps.Layers.Ranking.Rows()
	if rows == nil {
		rows = []models.RegionalRanking{}
	}
	respondSuccess(w, http.StatusOK, rows, start)
}

// RegionsRollups serves the hourly or daily rollup.
func (h *Handler) RegionsRollups(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := RollupQuery{
		Granularity: r.URL.Query().Get("granularity"),
		RegionID:    r.URL.Query().Get("region_id"),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "since must be an RFC 3339 timestamp", nil)
			return
		}
		q.Since = &since
	}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	rows := h.deps.Layers.Hourly.Rows()
	if q.Granularity == string(models.GranularityDay) {
		rows = h.deps.Layers.Daily.Rows()
	}

	out := make([]models.RegionalRollup, 0, len(rows))
	for i := range rows {
		if q.RegionID != "" && rows[i].RegionID != q.RegionID {
			continue
		}
		if q.Since != nil && rows[i].BucketStart.Before(*q.Since) {
			continue
		}
		out = append(out, rows[i])
	}
	respondSuccess(w, http.StatusOK, out, start)
}
