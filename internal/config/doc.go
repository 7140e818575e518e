// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package config loads and validates TransitPulse configuration.

Configuration is layered with Koanf v2, later layers overriding earlier ones:

 1. Built-in defaults (defaultConfig)
 2. YAML file from CONFIG_PATH, ./config.yaml or /etc/transitpulse/config.yaml
 3. A .env file (DOTENV_PATH or ./.env), folded into the process environment
 4. Environment variables, mapped explicitly by envTransformFunc

Only mapped environment variables are read. Duration values accept Go syntax
("90s", "2160h"); slice values accept comma-separated lists.

# Sections

  - database: DuckDB file, memory limit, superseded layer tables kept
  - ledger: BadgerDB path for the refresh ledger and the stuck-run timeout
  - nats, ingest: observation transport and raw-log batching
  - materialize: timezone, recency window, delay and travel-time bounds,
    group sample gate, peak windows, city centre
  - rollup: history (90d), recent (24h) and ranking (7d) windows
  - refresh, retention: scheduler intervals, staleness guard, sink resilience
  - regions: spatial index cell size
  - server, logging, supervisor: ops HTTP, zerolog and suture settings

Example:

	cfg, err := config.Load()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
*/
package config
