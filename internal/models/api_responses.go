// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import "time"

// APIResponse wraps every ops API response.
//
//	{"status":"success","data":{...},"metadata":{"timestamp":"..."}}
//	{"status":"error","error":{"code":"REFRESH_IN_PROGRESS","message":"..."},"metadata":{...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is the machine-readable error body.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RefreshResult reports the outcome of an ops-triggered refresh.
type RefreshResult struct {
	Mode     string                `json:"mode"`
	Skipped  bool                  `json:"skipped,omitempty"`
	Layers   []LayerRefreshResult  `json:"layers,omitempty"`
	Duration time.Duration         `json:"duration_ns"`
	Ledger   map[Layer]LedgerEntry `json:"ledger,omitempty"`
}

// LayerRefreshResult is the per-layer part of a RefreshResult.
type LayerRefreshResult struct {
	Layer    Layer         `json:"layer"`
	Rows     int64         `json:"rows"`
	Version  uint64        `json:"version"`
	Duration time.Duration `json:"duration_ns"`
}

// ArchiveResult reports what an archival run did.
type ArchiveResult struct {
	AnalyticsRowsBefore int           `json:"analytics_rows_before"`
	AnalyticsRowsAfter  int           `json:"analytics_rows_after"`
	RawRowsBefore       int64         `json:"raw_rows_before"`
	RawRowsAfter        int64         `json:"raw_rows_after"`
	Cutoff              time.Time     `json:"cutoff"`
	Version             uint64        `json:"version"`
	Duration            time.Duration `json:"duration_ns"`
}
