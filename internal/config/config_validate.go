// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateDatabase,
		c.validateLedger,
		c.validateNATS,
		c.validateIngest,
		c.validateMaterialize,
		c.validateRollup,
		c.validateRefresh,
		c.validateRetention,
		c.validateRegions,
		c.validateReference,
		c.validateServer,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("DUCKDB_PATH is required")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	if c.Database.KeepVersions < 0 {
		return fmt.Errorf("DUCKDB_KEEP_VERSIONS must not be negative")
	}
	return nil
}

func (c *Config) validateLedger() error {
	if !c.Ledger.InMemory && c.Ledger.Path == "" {
		return fmt.Errorf("LEDGER_PATH is required unless LEDGER_IN_MEMORY=true")
	}
	if c.Ledger.StuckAfter < time.Minute {
		return fmt.Errorf("LEDGER_STUCK_AFTER must be at least 1m")
	}
	return nil
}

const (
	natsMinMemory      = 16 << 20
	natsMinStore       = 64 << 20
	natsMaxSubscribers = 32
)

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS_ENABLED=true")
	}
	if c.NATS.SubscribersCount < 1 || c.NATS.SubscribersCount > natsMaxSubscribers {
		return fmt.Errorf("NATS_SUBSCRIBERS must be between 1 and %d", natsMaxSubscribers)
	}
	if c.NATS.EmbeddedServer {
		if c.NATS.MaxMemory < natsMinMemory {
			return fmt.Errorf("NATS_MAX_MEMORY must be at least 16MB")
		}
		if c.NATS.MaxStore < natsMinStore {
			return fmt.Errorf("NATS_MAX_STORE must be at least 64MB")
		}
	}
	return nil
}

func validateNATSURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	switch parsed.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if c.Ingest.BatchSize < 1 || c.Ingest.BatchSize > 100000 {
		return fmt.Errorf("INGEST_BATCH_SIZE must be between 1 and 100000")
	}
	if c.Ingest.FlushInterval < 100*time.Millisecond {
		return fmt.Errorf("INGEST_FLUSH_INTERVAL must be at least 100ms")
	}
	if c.Ingest.MaxFlushesPerSecond < 0 {
		return fmt.Errorf("INGEST_MAX_FLUSHES_PER_SECOND must not be negative")
	}
	if c.Ingest.BreakerThreshold == 0 {
		return fmt.Errorf("INGEST_BREAKER_THRESHOLD must be at least 1")
	}
	return nil
}

func (c *Config) validateMaterialize() error {
	m := c.Materialize
	if _, err := m.Location(); err != nil {
		return fmt.Errorf("TRANSIT_TIMEZONE is invalid: %w", err)
	}
	if m.BaseRecency <= 0 {
		return fmt.Errorf("BASE_RECENCY must be positive")
	}
	if m.MinDelaySeconds >= m.MaxDelaySeconds {
		return fmt.Errorf("MIN_DELAY_SECONDS must be less than MAX_DELAY_SECONDS")
	}
	if m.MinGroupSamples < 1 {
		return fmt.Errorf("MIN_GROUP_SAMPLES must be at least 1")
	}
	if m.MinTravelSeconds < 0 || m.MinTravelSeconds >= m.MaxTravelSeconds {
		return fmt.Errorf("travel time bounds must satisfy 0 <= MIN_TRAVEL_SECONDS < MAX_TRAVEL_SECONDS")
	}
	if _, err := ParsePeakWindows(m.PeakWindows); err != nil {
		return fmt.Errorf("PEAK_WINDOWS is invalid: %w", err)
	}
	if m.CityCenterLat < -90 || m.CityCenterLat > 90 || m.CityCenterLon < -180 || m.CityCenterLon > 180 {
		return fmt.Errorf("city centre coordinates are out of range")
	}
	return nil
}

func (c *Config) validateRollup() error {
	r := c.Rollup
	if r.HistoryWindow < time.Hour || r.RecentWindow < time.Minute || r.RankingWindow < time.Hour {
		return fmt.Errorf("rollup windows are too small (history >= 1h, recent >= 1m, ranking >= 1h)")
	}
	return nil
}

func (c *Config) validateRefresh() error {
	r := c.Refresh
	if r.Enabled && r.Interval < 10*time.Second {
		return fmt.Errorf("REFRESH_INTERVAL must be at least 10s")
	}
	if r.FullEvery < 0 {
		return fmt.Errorf("REFRESH_FULL_EVERY must not be negative")
	}
	if r.RunTimeout <= 0 {
		return fmt.Errorf("REFRESH_RUN_TIMEOUT must be positive")
	}
	if r.StalenessGuard && r.MaxUpstreamAge <= 0 {
		return fmt.Errorf("REFRESH_MAX_UPSTREAM_AGE must be positive when the staleness guard is on")
	}
	if r.SinkBreakerThreshold == 0 {
		return fmt.Errorf("REFRESH_SINK_BREAKER_THRESHOLD must be at least 1")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.Window < 24*time.Hour {
		return fmt.Errorf("RETENTION_WINDOW must be at least 24h")
	}
	if c.Retention.Enabled && c.Retention.Interval < time.Minute {
		return fmt.Errorf("RETENTION_INTERVAL must be at least 1m")
	}
	return nil
}

func (c *Config) validateRegions() error {
	if c.Regions.GridCellKm <= 0 || c.Regions.GridCellKm > 500 {
		return fmt.Errorf("REGION_GRID_CELL_KM must be in (0, 500]")
	}
	return nil
}

func (c *Config) validateReference() error {
	if c.Reference.ReloadInterval != 0 && c.Reference.ReloadInterval < time.Minute {
		return fmt.Errorf("REFERENCE_RELOAD_INTERVAL must be 0 or at least 1m")
	}
	return nil
}

func (c *Config) validateServer() error {
	if !c.Server.Enabled {
		return nil
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQS must be at least 1")
	}
	return nil
}

var validLogFormats = map[string]bool{"json": true, "console": true}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got: %s", c.Logging.Level)
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("LOG_FORMAT must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}
