// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package database is the DuckDB persistence layer of TransitPulse.
//
// # Overview
//
// DuckDB holds the durable copy of every dataset: the append-only raw
// observation log, the static reference tables, the prediction store and
// one table per published layer version. In-memory snapshots (see package
// snapshot) serve reads; DuckDB serves SQL consumers and restarts.
//
// # Files
//
//   - database.go: connection lifecycle, pool settings, checkpointing
//   - schema.go: persistent tables, the latest_predictions view, indexes
//   - rawlog.go: raw observation log (implements rawlog.Log via RawLog)
//   - reference.go: routes, trips, stops and regions (implements
//     reference.Source and reference.AssignmentWriter)
//   - ledger.go: SQL mirror of the refresh ledger (implements ledger.Observer)
//   - predictions.go: prediction batches (implements predictions.Backend)
//   - layers.go: versioned layer tables and the view swap
//
// # Versioned Layers
//
// Each publish of layer L at version N creates table L_vN, fills it, and
// runs CREATE OR REPLACE VIEW L inside the same transaction:
//
//	base_v41  base_v42  base_v43   <- tables
//	                      ^
//	base (view) ----------+
//
// Readers of the view never observe a half-written version. Older tables
// beyond the configured keep count are dropped after the commit.
//
// # Thread Safety
//
// DB is safe for concurrent use. Raw log appends and layer publishes are
// each serialized by a mutex; reads go straight to the connection pool.
package database
