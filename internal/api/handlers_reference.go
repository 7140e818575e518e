// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"net/http"
	"time"
)

// ReloadReference re-reads routes, trips, stops and regions and republishes
// the catalogue. Region-only and stop-only edits re-assign just what changed.
func (h *Handler) ReloadReference(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Reloader == nil || h.deps.ReferenceSource == nil {
		respondError(w, r, http.StatusServiceUnavailable, "DISABLED", "reference reload is disabled", nil)
		return
	}
	ctx, cancel := h.runContext(r.Context())
	defer cancel()

	res, err := h.deps.Reloader.Reload(ctx, h.deps.ReferenceSource)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, res, start)
}
