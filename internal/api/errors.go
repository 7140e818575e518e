// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/predictions"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/refresh"
	"github.com/tomtom215/transitpulse/internal/retention"
	"github.com/tomtom215/transitpulse/internal/validation"
)

// errorMapping binds a sentinel error to its HTTP status and code.
type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{ledger.ErrRefreshInProgress, http.StatusConflict, "REFRESH_IN_PROGRESS"},
	{ledger.ErrRunMismatch, http.StatusConflict, "REFRESH_IN_PROGRESS"},
	{refresh.ErrSuperseded, http.StatusConflict, "SUPERSEDED"},
	{retention.ErrRawLogMutated, http.StatusConflict, "RAW_LOG_MUTATED"},
	{predictions.ErrDuplicateBatch, http.StatusConflict, "DUPLICATE_BATCH"},
	{predictions.ErrEmptyBatch, http.StatusBadRequest, "VALIDATION_ERROR"},
	{ledger.ErrUnknownLayer, http.StatusNotFound, "UNKNOWN_LAYER"},
	{refresh.ErrUpstreamStale, http.StatusPreconditionFailed, "UPSTREAM_STALE"},
	{reference.ErrNotLoaded, http.StatusServiceUnavailable, "NOT_READY"},
	{gobreaker.ErrOpenState, http.StatusServiceUnavailable, "SINK_UNAVAILABLE"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "TIMEOUT"},
}

// classify maps err to a status and API error. Unknown errors are 500s whose
// message does not leak internals.
func classify(err error) (int, *models.APIError) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.ToAPIError()
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, &models.APIError{Code: m.code, Message: err.Error()}
		}
	}
	return http.StatusInternalServerError, &models.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "internal server error",
	}
}

// respondErr classifies err and writes the error envelope.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := classify(err)
	respondAPIError(w, r, status, apiErr, err)
}
