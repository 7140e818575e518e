// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package reference holds the slowly changing static catalogue (routes, trips,
// stops and regions) that the Enriched layer joins against, and the Region
// Assigner that maps stops to regions.
//
// The catalogue is published as an immutable snapshot behind an atomic
// pointer. Loading computes per-stop spatial features and region assignment
// once, so the per-observation join is a map lookup. When only stops change,
// only those stops are re-assigned; when regions change the spatial index is
// rebuilt and every stop is re-assigned.
package reference
