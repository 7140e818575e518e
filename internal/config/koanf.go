// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/transitpulse/config.yaml",
	"/etc/transitpulse/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotEnvPathEnvVar overrides the .env file path.
const DotEnvPathEnvVar = "DOTENV_PATH"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/transitpulse.duckdb",
			MaxMemory:              "2GB",
			Threads:                0,
			PreserveInsertionOrder: true,
			KeepVersions:           1,
		},
		Ledger: LedgerConfig{
			Path:       "/data/ledger",
			InMemory:   false,
			StuckAfter: time.Hour,
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   true,
			StoreDir:         "/data/nats/jetstream",
			MaxMemory:        256 << 20,
			MaxStore:         4 << 30,
			Subject:          "transit.observations",
			SubscribersCount: 2,
			DurableName:      "transitpulse-rawlog",
			QueueGroup:       "rawlog-writers",
			AckWaitTimeout:   30 * time.Second,
		},
		Ingest: IngestConfig{
			BatchSize:           500,
			FlushInterval:       5 * time.Second,
			MaxFlushesPerSecond: 10,
			BreakerThreshold:    5,
			BreakerTimeout:      30 * time.Second,
		},
		Materialize: MaterializeConfig{
			Timezone:         "America/Vancouver",
			BaseRecency:      24 * time.Hour,
			MinDelaySeconds:  -3600,
			MaxDelaySeconds:  3600,
			MinGroupSamples:  5,
			MinTravelSeconds: 10,
			MaxTravelSeconds: 3600,
			PeakWindows:      []string{"5-7", "16-18"},
			CityCenterLat:    49.2827,
			CityCenterLon:    -123.1207,
		},
		Rollup: RollupConfig{
			HistoryWindow: 90 * 24 * time.Hour,
			RecentWindow:  24 * time.Hour,
			RankingWindow: 7 * 24 * time.Hour,
		},
		Refresh: RefreshConfig{
			Enabled:              true,
			Interval:             5 * time.Minute,
			RunOnStartup:         true,
			FullEvery:            12,
			RunTimeout:           10 * time.Minute,
			StalenessGuard:       true,
			MaxUpstreamAge:       30 * time.Minute,
			SinkMaxElapsed:       time.Minute,
			SinkBreakerThreshold: 3,
			SinkBreakerTimeout:   time.Minute,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Window:   90 * 24 * time.Hour,
			Interval: 24 * time.Hour,
		},
		Regions: RegionsConfig{
			GridCellKm: 2,
		},
		Reference: ReferenceConfig{
			ReloadInterval: time.Hour,
		},
		Server: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8089,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   30,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration in layers:
//  1. built-in defaults
//  2. optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. optional .env file, folded into the process environment
//  4. environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadDotEnv folds a .env file into the environment. Variables already set in
// the process win over the file. A missing file is not an error.
func loadDotEnv() error {
	path := ".env"
	explicit := false
	if p := os.Getenv(DotEnvPathEnvVar); p != "" {
		path = p
		explicit = true
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"materialize.peak_windows",
	"server.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
// Values that came from YAML are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"duckdb_path":                     "database.path",
	"duckdb_max_memory":               "database.max_memory",
	"duckdb_threads":                  "database.threads",
	"duckdb_preserve_insertion_order": "database.preserve_insertion_order",
	"duckdb_keep_versions":            "database.keep_versions",

	"ledger_path":        "ledger.path",
	"ledger_in_memory":   "ledger.in_memory",
	"ledger_stuck_after": "ledger.stuck_after",

	"nats_enabled":          "nats.enabled",
	"nats_url":              "nats.url",
	"nats_embedded":         "nats.embedded_server",
	"nats_store_dir":        "nats.store_dir",
	"nats_max_memory":       "nats.max_memory",
	"nats_max_store":        "nats.max_store",
	"nats_subject":          "nats.subject",
	"nats_subscribers":      "nats.subscribers_count",
	"nats_durable_name":     "nats.durable_name",
	"nats_queue_group":      "nats.queue_group",
	"nats_ack_wait_timeout": "nats.ack_wait_timeout",

	"ingest_batch_size":             "ingest.batch_size",
	"ingest_flush_interval":         "ingest.flush_interval",
	"ingest_max_flushes_per_second": "ingest.max_flushes_per_second",
	"ingest_breaker_threshold":      "ingest.breaker_threshold",
	"ingest_breaker_timeout":        "ingest.breaker_timeout",

	"transit_timezone":   "materialize.timezone",
	"base_recency":       "materialize.base_recency",
	"min_delay_seconds":  "materialize.min_delay_seconds",
	"max_delay_seconds":  "materialize.max_delay_seconds",
	"min_group_samples":  "materialize.min_group_samples",
	"min_travel_seconds": "materialize.min_travel_seconds",
	"max_travel_seconds": "materialize.max_travel_seconds",
	"peak_windows":       "materialize.peak_windows",
	"city_center_lat":    "materialize.city_center_lat",
	"city_center_lon":    "materialize.city_center_lon",

	"rollup_history_window": "rollup.history_window",
	"rollup_recent_window":  "rollup.recent_window",
	"rollup_ranking_window": "rollup.ranking_window",

	"refresh_enabled":                "refresh.enabled",
	"refresh_interval":               "refresh.interval",
	"refresh_on_startup":             "refresh.run_on_startup",
	"refresh_full_every":             "refresh.full_every",
	"refresh_run_timeout":            "refresh.run_timeout",
	"refresh_staleness_guard":        "refresh.staleness_guard",
	"refresh_max_upstream_age":       "refresh.max_upstream_age",
	"refresh_sink_max_elapsed":       "refresh.sink_max_elapsed",
	"refresh_sink_breaker_threshold": "refresh.sink_breaker_threshold",
	"refresh_sink_breaker_timeout":   "refresh.sink_breaker_timeout",

	"retention_enabled":  "retention.enabled",
	"retention_window":   "retention.window",
	"retention_interval": "retention.interval",

	"region_grid_cell_km": "regions.grid_cell_km",

	"reference_reload_interval": "reference.reload_interval",

	"http_enabled":      "server.enabled",
	"http_host":         "server.host",
	"http_port":         "server.port",
	"http_timeout":      "server.timeout",
	"cors_origins":      "server.cors_origins",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"supervisor_failure_threshold": "supervisor.failure_threshold",
	"supervisor_failure_decay":     "supervisor.failure_decay",
	"supervisor_failure_backoff":   "supervisor.failure_backoff",
	"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are skipped, so unrelated environment
// does not leak into the configuration.
//
//	DUCKDB_PATH      -> database.path
//	REFRESH_INTERVAL -> refresh.interval
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
