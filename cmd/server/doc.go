// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package main is the TransitPulse daemon.
//
// TransitPulse turns polled real-time transit arrivals into layered feature
// snapshots (Base, Enriched, Analytics) and regional rollups, and keeps an
// append-only store of delay predictions.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, .env and environment (Koanf v2)
//  2. DuckDB: raw observation log, reference tables, versioned layer tables
//  3. Ledger: BadgerDB refresh state, mirrored into DuckDB
//  4. Reference catalogue: routes, trips, stops and regions, with stop-to-region
//     assignment written back to DuckDB
//  5. Orchestrator: layer versions and the Analytics history restored from
//     the last published DuckDB tables
//  6. Ingest (NATS_ENABLED): embedded JetStream server, consumer and appender
//  7. Supervisor tree: refresh, retention and reference reload schedulers
//     and the ops HTTP server
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the root context. The supervisor stops the HTTP
// server, schedulers and consumer; buffered observations are flushed, then
// DuckDB is checkpointed and closed.
//
// # Example
//
//	export MATERIALIZE_TIMEZONE=America/Vancouver
//	export NATS_ENABLED=true
//	export REFRESH_INTERVAL=5m
//	./transitpulse
package main
