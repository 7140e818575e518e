// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package materialize builds the three feature layers as pure functions over
// their upstream rows:
//
//   - BuildBase deduplicates raw polls to the latest valid observation per
//     (trip, stop sequence, service date) inside the recency window.
//   - Enrich joins Base rows to trips, routes and stops and derives calendar
//     features in the transit agency's timezone.
//   - BuildAnalytics adds the gated route/direction/hour mean delay and the
//     stop-to-stop travel time. MergeAnalytics folds a fresh build into the
//     accumulated history so downstream rollups keep their long windows.
//
// Nothing here touches storage; the refresh orchestrator owns publication.
// Data-quality problems are filtered or nulled and counted in the returned
// stats, never returned as errors.
package materialize
