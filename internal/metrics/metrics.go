// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// Refresh Metrics
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "layer_refresh_duration_seconds",
			Help:    "Duration of layer refreshes in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"layer"},
	)

	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_refresh_total",
			Help: "Total number of layer refreshes by outcome",
		},
		[]string{"layer", "status"}, // status: success, failed, skipped
	)

	LayerRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layer_rows",
			Help: "Rows in the currently published version of each layer",
		},
		[]string{"layer"},
	)

	LayerVersion = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "layer_snapshot_version",
			Help: "Version of the currently published snapshot of each layer",
		},
		[]string{"layer"},
	)

	// Ledger Metrics
	LedgerStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refresh_ledger_status",
			Help: "Ledger status per layer (0=idle, 1=in_progress, 2=success, 3=failed)",
		},
		[]string{"layer"},
	)

	LedgerLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "refresh_ledger_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh per layer",
		},
		[]string{"layer"},
	)

	// Data Quality Metrics
	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_rows_dropped_total",
			Help: "Rows filtered out of a layer by reason",
		},
		[]string{"layer", "reason"}, // reason: out_of_window, missing_arrival, delay_out_of_range, missing_trip, ...
	)

	// Reference Catalogue Metrics
	ReferenceRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reference_rows",
			Help: "Rows in the current reference catalogue snapshot",
		},
		[]string{"collection"},
	)

	StopsUnassigned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reference_stops_unassigned",
			Help: "Stops not contained in any region",
		},
	)

	ReferenceLoads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reference_loads_total",
			Help: "Total number of reference catalogue loads",
		},
	)

	// Ingest Metrics
	IngestMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Raw observation messages consumed by outcome",
		},
		[]string{"result"}, // result: appended, invalid, failed
	)

	IngestObservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_observations_total",
			Help: "Raw observations appended to the log",
		},
	)

	IngestFlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_flush_duration_seconds",
			Help:    "Duration of raw log batch appends",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size",
			Help:    "Number of observations per raw log append",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	// Prediction Metrics
	PredictionBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_batches_total",
			Help: "Prediction batches appended by outcome",
		},
		[]string{"result"},
	)

	PredictionRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prediction_rows_total",
			Help: "Prediction rows appended",
		},
	)

	// Archival Metrics
	ArchiveRowsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_analytics_rows_removed_total",
			Help: "Analytics rows removed by retention rebuilds",
		},
	)

	ArchiveLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "archive_last_run_timestamp_seconds",
			Help: "Unix time of the last retention rebuild",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	SinkRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_sink_retries_total",
			Help: "Retried layer sink publishes",
		},
		[]string{"layer"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		errorType := err.Error()
		if len(errorType) > 50 {
			errorType = errorType[:50]
		}
		DBQueryErrors.WithLabelValues(operation, table, errorType).Inc()
	}
}

// RecordRefresh records the outcome of one layer refresh.
func RecordRefresh(layer, status string, duration time.Duration, rows int) {
	RefreshTotal.WithLabelValues(layer, status).Inc()
	if status == "skipped" {
		return
	}
	RefreshDuration.WithLabelValues(layer).Observe(duration.Seconds())
	if status == "success" {
		LayerRows.WithLabelValues(layer).Set(float64(rows))
	}
}

// SetLayerVersion records the published snapshot of a layer.
func SetLayerVersion(layer string, version uint64, rows int) {
	LayerVersion.WithLabelValues(layer).Set(float64(version))
	LayerRows.WithLabelValues(layer).Set(float64(rows))
}

// SetLedgerStatus mirrors a ledger transition.
func SetLedgerStatus(layer, status string, lastSuccess *time.Time) {
	var v float64
	switch status {
	case "in_progress":
		v = 1
	case "success":
		v = 2
	case "failed":
		v = 3
	}
	LedgerStatus.WithLabelValues(layer).Set(v)
	if lastSuccess != nil {
		LedgerLastSuccess.WithLabelValues(layer).Set(float64(lastSuccess.Unix()))
	}
}

// RecordDropped counts rows a layer filtered out. Zero counts are ignored.
func RecordDropped(layer, reason string, n int) {
	if n <= 0 {
		return
	}
	RowsDropped.WithLabelValues(layer, reason).Add(float64(n))
}

// RecordReferenceLoad records the sizes of a freshly published catalogue.
func RecordReferenceLoad(routes, trips, stops, regions, unassigned int) {
	ReferenceLoads.Inc()
	ReferenceRows.WithLabelValues("routes").Set(float64(routes))
	ReferenceRows.WithLabelValues("trips").Set(float64(trips))
	ReferenceRows.WithLabelValues("stops").Set(float64(stops))
	ReferenceRows.WithLabelValues("regions").Set(float64(regions))
	StopsUnassigned.Set(float64(unassigned))
}

// RecordIngest records one consumed message.
func RecordIngest(result string, observations int) {
	IngestMessages.WithLabelValues(result).Inc()
	if result == "appended" {
		IngestObservations.Add(float64(observations))
	}
}

// RecordIngestFlush records a raw log append.
func RecordIngestFlush(duration time.Duration, batchSize int) {
	IngestFlushDuration.Observe(duration.Seconds())
	IngestBatchSize.Observe(float64(batchSize))
}

// RecordPredictionBatch records an append attempt.
func RecordPredictionBatch(rows int, err error) {
	if err != nil {
		PredictionBatches.WithLabelValues("rejected").Inc()
		return
	}
	PredictionBatches.WithLabelValues("appended").Inc()
	PredictionRows.Add(float64(rows))
}

// RecordArchive records a retention rebuild.
func RecordArchive(removed int, at time.Time) {
	if removed > 0 {
		ArchiveRowsRemoved.Add(float64(removed))
	}
	ArchiveLastRun.Set(float64(at.Unix()))
}

// SetCircuitBreakerState records a breaker transition.
func SetCircuitBreakerState(name, from, to string) {
	var v float64
	switch to {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}

// RecordSinkRetry counts a retried sink publish.
func RecordSinkRetry(layer string) {
	SinkRetries.WithLabelValues(layer).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
