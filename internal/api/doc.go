// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package api provides the operational HTTP surface of TransitPulse.

The API is deliberately small. It triggers refreshes and archival, exposes
the refresh ledger, serves the published rollup snapshots and accepts
prediction batches from the forecasting job.

Endpoints:

	GET  /api/v1/health/live
	GET  /api/v1/health/ready
	GET  /api/v1/ledger
	GET  /api/v1/ledger/{layer}
	GET  /api/v1/layers
	POST /api/v1/refresh                  full refresh
	POST /api/v1/refresh/incremental      skipped when the raw log has not grown
	POST /api/v1/refresh/base/concurrent  Base rebuild without the run lock
	POST /api/v1/refresh/{layer}          staged single-layer refresh
	POST /api/v1/archive
	POST /api/v1/reference/reload         re-read the reference catalogue
	GET  /api/v1/regions/recent
	GET  /api/v1/regions/ranking
	GET  /api/v1/regions/rollups?granularity=hour|day&region_id=
	POST /api/v1/predictions
	GET  /api/v1/predictions/latest?region_id=&route_id=&stop_id=
	GET  /api/v1/predictions/history?route_id=&stop_id=&direction_id=&region_id=&since=&limit=
	GET  /metrics

Every JSON response uses the models.APIResponse envelope. Errors carry a
stable machine-readable code:

	REFRESH_IN_PROGRESS  409  another run owns the layer
	SUPERSEDED           409  a concurrent run swapped the layer first
	RAW_LOG_MUTATED      409  raw rows changed during archival
	DUPLICATE_BATCH      409  prediction batch time already recorded
	UNKNOWN_LAYER        404
	UPSTREAM_STALE       412  staging guard rejected the refresh
	VALIDATION_ERROR     400
	NOT_READY            503  reference catalogue not loaded yet
	TIMEOUT              504

Refreshes and archival run detached from the request context, bounded by
the configured run timeout, so a disconnecting client cannot abandon a run
halfway through its ledger transitions.
*/
package api
