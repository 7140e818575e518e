// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import "time"

// Layer names a refreshable derived dataset.
type Layer string

const (
	LayerBase          Layer = "base"
	LayerEnriched      Layer = "enriched"
	LayerAnalytics     Layer = "analytics"
	LayerRollupHourly  Layer = "rollup_hourly"
	LayerRollupDaily   Layer = "rollup_daily"
	LayerRollupRecent  Layer = "rollup_recent"
	LayerRollupRanking Layer = "rollup_ranking"
	LayerArchive       Layer = "archive"
)

// MaterializedLayers lists the derived layers in dependency order.
var MaterializedLayers = []Layer{
	LayerBase,
	LayerEnriched,
	LayerAnalytics,
	LayerRollupHourly,
	LayerRollupDaily,
	LayerRollupRecent,
	LayerRollupRanking,
}

// RollupLayers are the independent children of the Analytics layer.
var RollupLayers = []Layer{LayerRollupHourly, LayerRollupDaily, LayerRollupRecent, LayerRollupRanking}

// Upstream returns the layer l is built from, or "" for the Base layer.
func (l Layer) Upstream() Layer {
	switch l {
	case LayerEnriched:
		return LayerBase
	case LayerAnalytics:
		return LayerEnriched
	case LayerRollupHourly, LayerRollupDaily, LayerRollupRecent, LayerRollupRanking, LayerArchive:
		return LayerAnalytics
	default:
		return ""
	}
}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	for _, known := range MaterializedLayers {
		if l == known {
			return true
		}
	}
	return l == LayerArchive
}

// LedgerStatus is the refresh state of a layer.
type LedgerStatus string

const (
	StatusIdle       LedgerStatus = "idle"
	StatusInProgress LedgerStatus = "in_progress"
	StatusSuccess    LedgerStatus = "success"
	StatusFailed     LedgerStatus = "failed"
)

// LedgerEntry is the single, continuously overwritten ledger row of a layer.
type LedgerEntry struct {
	Layer           Layer         `json:"layer"`
	Status          LedgerStatus  `json:"status"`
	RunID           string        `json:"run_id,omitempty"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	LastRefreshTime *time.Time    `json:"last_refresh_time,omitempty"`
	LastSuccessTime *time.Time    `json:"last_success_time,omitempty"`
	Duration        time.Duration `json:"duration_ns"`
	RowsAffected    int64         `json:"rows_affected"`
	Version         uint64        `json:"version"`
	ErrorMessage    string        `json:"error_message,omitempty"`

	// HighWater is the raw-log ID high-water mark a Base build consumed.
	HighWater int64 `json:"high_water,omitempty"`
}
