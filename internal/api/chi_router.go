// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/transitpulse/internal/middleware"
)

// ChiRouter wires handlers to routes.
type ChiRouter struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewChiRouter creates a router over handler.
func NewChiRouter(handler *Handler, mw *ChiMiddleware) *ChiRouter {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &ChiRouter{handler: handler, chiMiddleware: mw}
}

// Setup builds the route tree.
func (router *ChiRouter) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.PrometheusMetrics)

		r.Get("/health/live", router.handler.Live)
		r.Get("/health/ready", router.handler.Ready)

		// Reads
		r.Get("/ledger", router.handler.Ledger)
		r.Get("/ledger/{layer}", router.handler.LedgerEntry)
		r.Get("/layers", router.handler.LayerStatuses)
		r.Route("/regions", func(r chi.Router) {
			r.Get("/recent", router.handler.RegionsRecent)
			r.Get("/ranking", router.handler.RegionsRanking)
			r.Get("/rollups", router.handler.RegionsRollups)
		})
		r.Get("/predictions/latest", router.handler.LatestPredictions)
		r.Get("/predictions/history", router.handler.PredictionHistory)

		// Runs and writes
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Post("/refresh", router.handler.RefreshAll)
			r.Post("/refresh/incremental", router.handler.RefreshIncremental)
			r.Post("/refresh/base/concurrent", router.handler.RefreshBaseConcurrent)
			r.Post("/refresh/{layer}", router.handler.RefreshLayer)
			r.Post("/archive", router.handler.Archive)
			r.Post("/reference/reload", router.handler.ReloadReference)
			r.Post("/predictions", router.handler.AppendPredictions)
		})
	})

	return r
}
