// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package refresh orchestrates layer rebuilds.
//
// Layers form a fixed dependency chain:
//
//	raw log -> base -> enriched -> analytics -> rollup_hourly
//	                                         -> rollup_daily
//	                                         -> rollup_recent
//	                                         -> rollup_ranking
//
// Every layer build is bracketed by ledger Begin and Succeed/Fail calls, so
// at most one run owns a layer at a time and the ledger always says how
// fresh each layer is. A built layer is written to the LayerSink first and
// only then swapped into its snapshot.Store; readers either see the old
// version or the new one.
//
// Run modes:
//
//   - RefreshAll rebuilds everything in order and stops at the first failed
//     feature layer. The four rollups run concurrently.
//   - RefreshIncremental does the same, but only when the raw log grew since
//     the last Base success.
//   - RefreshLayer rebuilds one layer from its upstream's current snapshot,
//     rejecting the run when the upstream is older than MaxUpstreamAge.
//   - RefreshBaseConcurrent rebuilds Base alongside other runs.
//
// ResilientSink wraps a LayerSink with retries and a circuit breaker.
package refresh
