// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database    DatabaseConfig    `koanf:"database"`
	Ledger      LedgerConfig      `koanf:"ledger"`
	NATS        NATSConfig        `koanf:"nats"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Materialize MaterializeConfig `koanf:"materialize"`
	Rollup      RollupConfig      `koanf:"rollup"`
	Refresh     RefreshConfig     `koanf:"refresh"`
	Retention   RetentionConfig   `koanf:"retention"`
	Regions     RegionsConfig     `koanf:"regions"`
	Reference   ReferenceConfig   `koanf:"reference"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path                   string `koanf:"path"` // ":memory:" for an ephemeral database
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`

	// KeepVersions is how many superseded layer tables are retained per layer
	// after a view swap. 0 drops the old table immediately.
	KeepVersions int `koanf:"keep_versions"`
}

// LedgerConfig holds refresh ledger (BadgerDB) settings.
type LedgerConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// StuckAfter is the age after which an in_progress entry is treated as
	// abandoned and may be taken over by a new run.
	StuckAfter time.Duration `koanf:"stuck_after"`
}

// NATSConfig holds settings for the observation transport.
//
// Environment Variables:
//   - NATS_ENABLED: consume observations from NATS (default: false)
//   - NATS_URL: server URL (default: nats://127.0.0.1:4222)
//   - NATS_EMBEDDED: run an embedded JetStream server (default: true)
//   - NATS_SUBJECT: subject carrying observation batches
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	EmbeddedServer   bool          `koanf:"embedded_server"`
	StoreDir         string        `koanf:"store_dir"`
	MaxMemory        int64         `koanf:"max_memory"`
	MaxStore         int64         `koanf:"max_store"`
	Subject          string        `koanf:"subject"`
	SubscribersCount int           `koanf:"subscribers_count"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
}

// IngestConfig controls how consumed observations are batched into the raw log.
type IngestConfig struct {
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`

	// MaxFlushesPerSecond throttles raw-log writes. 0 disables throttling.
	MaxFlushesPerSecond float64 `koanf:"max_flushes_per_second"`

	// BreakerThreshold is the number of consecutive failed flushes that opens
	// the ingest circuit breaker.
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// MaterializeConfig holds feature-layer parameters.
type MaterializeConfig struct {
	// Timezone is the IANA zone used for hour-of-day, day-of-week and buckets.
	Timezone string `koanf:"timezone"`

	// BaseRecency bounds which feed timestamps the Base layer considers.
	BaseRecency time.Duration `koanf:"base_recency"`

	MinDelaySeconds int `koanf:"min_delay_seconds"`
	MaxDelaySeconds int `koanf:"max_delay_seconds"`

	// MinGroupSamples gates the route/direction/hour mean.
	MinGroupSamples int `koanf:"min_group_samples"`

	MinTravelSeconds float64 `koanf:"min_travel_seconds"`
	MaxTravelSeconds float64 `koanf:"max_travel_seconds"`

	// PeakWindows are inclusive hour ranges such as "5-7".
	PeakWindows []string `koanf:"peak_windows"`

	CityCenterLat float64 `koanf:"city_center_lat"`
	CityCenterLon float64 `koanf:"city_center_lon"`
}

// RollupConfig holds regional rollup windows.
type RollupConfig struct {
	HistoryWindow time.Duration `koanf:"history_window"`
	RecentWindow  time.Duration `koanf:"recent_window"`
	RankingWindow time.Duration `koanf:"ranking_window"`
}

// RefreshConfig controls the refresh scheduler and orchestrator.
type RefreshConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Interval     time.Duration `koanf:"interval"`
	RunOnStartup bool          `koanf:"run_on_startup"`

	// FullEvery forces a full refresh every N scheduler ticks; other ticks are
	// incremental. 0 means every tick is incremental.
	FullEvery int `koanf:"full_every"`

	RunTimeout time.Duration `koanf:"run_timeout"`

	StalenessGuard bool          `koanf:"staleness_guard"`
	MaxUpstreamAge time.Duration `koanf:"max_upstream_age"`

	SinkMaxElapsed       time.Duration `koanf:"sink_max_elapsed"`
	SinkBreakerThreshold uint32        `koanf:"sink_breaker_threshold"`
	SinkBreakerTimeout   time.Duration `koanf:"sink_breaker_timeout"`
}

// RetentionConfig controls the archival job.
type RetentionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Window   time.Duration `koanf:"window"`
	Interval time.Duration `koanf:"interval"`
}

// RegionsConfig controls the stop-to-region spatial index.
type RegionsConfig struct {
	GridCellKm float64 `koanf:"grid_cell_km"`
}

// ReferenceConfig controls reloading of the static reference catalogue.
//
// Environment Variables:
//   - REFERENCE_RELOAD_INTERVAL: how often to re-read routes, trips, stops
//     and regions from the database (default: 1h, 0 disables)
type ReferenceConfig struct {
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// ServerConfig holds the ops HTTP server settings.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Timeout         time.Duration `koanf:"timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig mirrors the suture failure policy.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// HourRange is an inclusive range of local hours.
type HourRange struct {
	From int
	To   int
}

// Contains reports whether hour falls in the range.
func (r HourRange) Contains(hour int) bool {
	return hour >= r.From && hour <= r.To
}

// ParsePeakWindows parses entries such as "5-7" or "16".
func ParsePeakWindows(windows []string) ([]HourRange, error) {
	out := make([]HourRange, 0, len(windows))
	for _, w := range windows {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		fromStr, toStr, found := strings.Cut(w, "-")
		if !found {
			toStr = fromStr
		}
		from, err := strconv.Atoi(strings.TrimSpace(fromStr))
		if err != nil {
			return nil, fmt.Errorf("peak window %q: %w", w, err)
		}
		to, err := strconv.Atoi(strings.TrimSpace(toStr))
		if err != nil {
			return nil, fmt.Errorf("peak window %q: %w", w, err)
		}
		if from < 0 || to > 23 || from > to {
			return nil, fmt.Errorf("peak window %q must satisfy 0 <= from <= to <= 23", w)
		}
		out = append(out, HourRange{From: from, To: to})
	}
	return out, nil
}

// Location resolves Materialize.Timezone.
func (m MaterializeConfig) Location() (*time.Location, error) {
	if m.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(m.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", m.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from defaults, an optional YAML file, an optional
// .env file and environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
