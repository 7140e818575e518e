// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/transitpulse/internal/models"
)

// maxPredictionBody bounds POST /predictions payloads.
const maxPredictionBody = 64 << 20

// AppendResult acknowledges a stored prediction batch.
type AppendResult struct {
	BatchCreatedAt time.Time `json:"batch_created_at"`
	Rows           int       `json:"rows"`
}

// HistoryQuery identifies one prediction series and the page to read.
type HistoryQuery struct {
	RegionID    string `validate:"omitempty,max=64"`
	RouteID     string `validate:"required,max=64"`
	DirectionID int    `validate:"oneof=0 1"`
	StopID      string `validate:"required,max=64"`
	Since       time.Time
	Limit       int `validate:"gte=0,lte=100000"`
}

// AppendPredictions stores one forecasting batch.
func (h *Handler) AppendPredictions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Predictions == nil {
		respondError(w, r, http.StatusServiceUnavailable, "DISABLED", "prediction store is disabled", nil)
		return
	}

	var batch models.PredictionBatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictionBody))
	if err := dec.Decode(&batch); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_JSON", "request body is not a prediction batch", err)
		return
	}
	if apiErr := validateRequest(&batch); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	stamp, err := h.deps.Predictions.AppendBatch(r.Context(), batch.BatchCreatedAt, batch.Predictions)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, AppendResult{BatchCreatedAt: stamp, Rows: len(batch.Predictions)}, start)
}

// LatestPredictions serves the newest batch of every matching series.
func (h *Handler) LatestPredictions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Predictions == nil {
		respondError(w, r, http.StatusServiceUnavailable, "DISABLED", "prediction store is disabled", nil)
		return
	}
	f := models.PredictionFilter{
		RegionID: r.URL.Query().Get("region_id"),
		RouteID:  r.URL.Query().Get("route_id"),
		StopID:   r.URL.Query().Get("stop_id"),
	}
	rows, err := h.deps.Predictions.Latest(r.Context(), f)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Prediction{}
	}
	respondSuccess(w, http.StatusOK, rows, start)
}

// PredictionHistory serves the batches of one series, oldest first. since
// (RFC 3339) and limit page through long series.
func (h *Handler) PredictionHistory(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Predictions == nil {
		respondError(w, r, http.StatusServiceUnavailable, "DISABLED", "prediction store is disabled", nil)
		return
	}
	q := HistoryQuery{
		RegionID: r.URL.Query().Get("region_id"),
		RouteID:  r.URL.Query().Get("route_id"),
		StopID:   r.URL.Query().Get("stop_id"),
	}
	if raw := r.URL.Query().Get("direction_id"); raw != "" {
		dir, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "direction_id must be 0 or 1", nil)
			return
		}
		q.DirectionID = dir
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "since must be an RFC 3339 timestamp", nil)
			return
		}
		q.Since = since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = limit
	}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	rows, err := h.deps.Predictions.History(r.Context(), models.PredictionKey{
		RegionID:    q.RegionID,
		RouteID:     q.RouteID,
		DirectionID: q.DirectionID,
		StopID:      q.StopID,
	}, models.HistoryRange{Since: q.Since, Limit: q.Limit})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Prediction{}
	}
	respondSuccess(w, http.StatusOK, rows, start)
}
