// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package rollup re-aggregates the Analytics layer by region.

Four independent rollups are provided, each a pure function of the analytics
rows and a trailing window:

  - Hourly and Daily: per region and time bucket statistics over the history
    window (default 90 days).
  - Recent: a per-region status over the last 24 hours.
  - Rank: a per-region scorecard over the last 7 days with two rank orders
    and a letter grade.

Rows without a region are skipped. Every rollup goes through
stats.Windowed so window membership and grouping are expressed once.

# Delay Bands

	early        delay <  -60s
	on time      -60s <= delay <= 60s
	late 1-5m    60s  <  delay <= 300s
	late 5-10m   300s <  delay <= 600s
	late >10m    delay >  600s

# Thresholds

Status and grade use the mean delay in minutes:

	< 1   excellent  A
	< 3   good       B
	< 5   moderate   C
	< 10  poor       D
	else  severe     F
*/
package rollup
