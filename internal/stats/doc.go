// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package stats holds the aggregation primitives shared by the Analytics layer
// and the regional rollups: an online mean/variance accumulator, a grouped
// aggregator with a minimum-sample gate, exact percentiles and a windowed
// grouping helper that every rollup is expressed through.
package stats
