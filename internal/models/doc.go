// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package models defines the data shared between TransitPulse layers.

Layer lineage:

	RawObservation  ->  LatestObservation  ->  EnrichedRecord  ->  AnalyticsRecord
	(append-only)       (Base)                 (Enriched)          (Analytics)
	                                                               |
	                         RegionalRollup, RecentRegionStatus, RegionalRanking

Reference data (Route, Trip, Stop, Region) is slowly changing and joined in by
the Enriched layer. Prediction rows are produced by an external model and
stored append-only. LedgerEntry records the refresh state of each layer.

Optional numeric features are pointers: nil means "unknown", never zero.
*/
package models
