// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/transitpulse/internal/reference"
)

// HealthStatus is the readiness report.
type HealthStatus struct {
	Status           string            `json:"status"`
	Checks           map[string]string `json:"checks"`
	CatalogueVersion uint64            `json:"catalogue_version,omitempty"`
	Uptime           float64           `json:"uptime_seconds"`
}

const readyTimeout = 2 * time.Second

// Live always succeeds while the process serves requests.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, HealthStatus{
		Status: "alive",
		Uptime: time.Since(h.startTime).Seconds(),
	}, start)
}

// Ready reports whether the database, ledger and reference catalogue are
// usable. Any failing check returns 503 with the same body.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	health := HealthStatus{
		Status: "ready",
		Checks: make(map[string]string, 3),
		Uptime: time.Since(h.startTime).Seconds(),
	}
	check := func(name string, err error) {
		if err != nil {
			health.Checks[name] = err.Error()
			health.Status = "not_ready"
			return
		}
		health.Checks[name] = "ok"
	}

	if h.deps.Database != nil {
		check("database", h.deps.Database.Ping(ctx))
	}
	if h.deps.Ledger != nil {
		check("ledger", h.deps.Ledger.Healthy())
	}
	if h.deps.Catalogue != nil {
		snap := h.deps.Catalogue.Current()
		if snap == nil {
			check("reference", reference.ErrNotLoaded)
		} else {
			check("reference", nil)
			health.CatalogueVersion = snap.Version
		}
	}

	status := http.StatusOK
	if health.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	respondSuccess(w, status, health, start)
}
