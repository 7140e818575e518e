// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package middleware provides HTTP middleware for the ops API.

  - RequestID: UUID request tracking, propagated into the logging context
  - PrometheusMetrics: request count and latency per route pattern

Both follow the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)

Metrics are labelled with the chi route pattern (for example
/api/v1/refresh/{layer}) rather than the raw path, so layer names and
other URL parameters do not create new series.
*/
package middleware
