// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package metrics provides Prometheus metrics for the layer engine.

Collectors are package-level and registered with promauto on import. Callers
use the Record and Set helpers rather than touching collectors directly.

# Metrics Endpoint

Metrics are exposed at /metrics in Prometheus text format:

	curl http://localhost:8089/metrics

# Available Metrics

Refresh:
  - layer_refresh_duration_seconds (histogram, layer)
  - layer_refresh_total (counter, layer, status)
  - layer_rows, layer_snapshot_version (gauge, layer)
  - refresh_ledger_status, refresh_ledger_last_success_timestamp_seconds (gauge, layer)
  - layer_rows_dropped_total (counter, layer, reason)
  - layer_sink_retries_total (counter, layer)

Reference:
  - reference_rows (gauge, collection)
  - reference_stops_unassigned (gauge)
  - reference_loads_total (counter)

Ingest:
  - ingest_messages_total (counter, result)
  - ingest_observations_total (counter)
  - ingest_flush_duration_seconds, ingest_batch_size (histogram)

Predictions and archival:
  - prediction_batches_total (counter, result), prediction_rows_total (counter)
  - archive_analytics_rows_removed_total (counter)
  - archive_last_run_timestamp_seconds (gauge)

Infrastructure:
  - duckdb_query_duration_seconds (histogram, operation, table)
  - duckdb_query_errors_total (counter, operation, table, error_type)
  - circuit_breaker_state (gauge, name)
  - circuit_breaker_state_transitions_total (counter, name, from_state, to_state)
  - api_requests_total, api_request_duration_seconds

# Staleness Alerting

Age since last success is the primary health signal for the layers:

	time() - refresh_ledger_last_success_timestamp_seconds{layer="base"} > 1800
*/
package metrics
