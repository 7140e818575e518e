// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolateEnv points config discovery at an empty directory so a developer's
// config.yaml or .env does not leak into tests.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	t.Setenv(DotEnvPathEnvVar, "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Materialize.MinGroupSamples != 5 {
		t.Errorf("MinGroupSamples = %d, want 5", cfg.Materialize.MinGroupSamples)
	}
	if cfg.Rollup.HistoryWindow != 90*24*time.Hour {
		t.Errorf("HistoryWindow = %v, want 90 days", cfg.Rollup.HistoryWindow)
	}
	if !cfg.Refresh.StalenessGuard {
		t.Error("staleness guard should default to on")
	}
}

func TestLoadWithKoanfEnvOverrides(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DUCKDB_PATH", ":memory:")
	t.Setenv("REFRESH_INTERVAL", "90s")
	t.Setenv("PEAK_WINDOWS", "6-9, 15-18")
	t.Setenv("MIN_GROUP_SAMPLES", "7")
	t.Setenv("REFERENCE_RELOAD_INTERVAL", "15m")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Database.Path != ":memory:" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Refresh.Interval != 90*time.Second {
		t.Errorf("Refresh.Interval = %v, want 90s", cfg.Refresh.Interval)
	}
	if got := strings.Join(cfg.Materialize.PeakWindows, "|"); got != "6-9|15-18" {
		t.Errorf("PeakWindows = %q", got)
	}
	if cfg.Materialize.MinGroupSamples != 7 {
		t.Errorf("MinGroupSamples = %d, want 7", cfg.Materialize.MinGroupSamples)
	}
	if cfg.Reference.ReloadInterval != 15*time.Minute {
		t.Errorf("Reference.ReloadInterval = %v, want 15m", cfg.Reference.ReloadInterval)
	}
}

func TestLoadWithKoanfYAMLThenEnv(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
database:
  path: /tmp/tp.duckdb
materialize:
  timezone: UTC
  peak_windows: ["7-8"]
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Database.Path != "/tmp/tp.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Materialize.Timezone != "UTC" {
		t.Errorf("Timezone = %q", cfg.Materialize.Timezone)
	}
	if len(cfg.Materialize.PeakWindows) != 1 || cfg.Materialize.PeakWindows[0] != "7-8" {
		t.Errorf("PeakWindows = %v", cfg.Materialize.PeakWindows)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env should override yaml, Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoadWithKoanfDotEnv(t *testing.T) {
	dir := isolateEnv(t)
	envPath := filepath.Join(dir, "custom.env")
	if err := os.WriteFile(envPath, []byte("HTTP_PORT=9911\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(DotEnvPathEnvVar, envPath)
	t.Cleanup(func() { _ = os.Unsetenv("HTTP_PORT") })

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf: %v", err)
	}
	if cfg.Server.Port != 9911 {
		t.Errorf("Server.Port = %d, want 9911", cfg.Server.Port)
	}
}

func TestLoadWithKoanfMissingExplicitDotEnv(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv(DotEnvPathEnvVar, filepath.Join(dir, "nope.env"))

	if _, err := LoadWithKoanf(); err == nil {
		t.Fatal("expected error for explicit missing env file")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty db path", func(c *Config) { c.Database.Path = "" }, "DUCKDB_PATH"},
		{"bad timezone", func(c *Config) { c.Materialize.Timezone = "Mars/Olympus" }, "TRANSIT_TIMEZONE"},
		{"inverted delay bounds", func(c *Config) { c.Materialize.MinDelaySeconds = 10; c.Materialize.MaxDelaySeconds = 0 }, "MIN_DELAY_SECONDS"},
		{"zero group samples", func(c *Config) { c.Materialize.MinGroupSamples = 0 }, "MIN_GROUP_SAMPLES"},
		{"bad peak window", func(c *Config) { c.Materialize.PeakWindows = []string{"18-16"} }, "PEAK_WINDOWS"},
		{"nats bad scheme", func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "http://x:1" }, "NATS_URL"},
		{"short retention", func(c *Config) { c.Retention.Window = time.Hour }, "RETENTION_WINDOW"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"ledger path missing", func(c *Config) { c.Ledger.Path = "" }, "LEDGER_PATH"},
		{"zero cell size", func(c *Config) { c.Regions.GridCellKm = 0 }, "REGION_GRID_CELL_KM"},
		{"hot reference reload", func(c *Config) { c.Reference.ReloadInterval = time.Second }, "REFERENCE_RELOAD_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %s", err, tt.wantErr)
			}
		})
	}
}

func TestParsePeakWindows(t *testing.T) {
	t.Parallel()

	got, err := ParsePeakWindows([]string{"5-7", " 16 - 18 ", "12", ""})
	if err != nil {
		t.Fatalf("ParsePeakWindows: %v", err)
	}
	want := []HourRange{{5, 7}, {16, 18}, {12, 12}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("window %d = %v, want %v", i, got[i], want[i])
		}
	}
	if !got[0].Contains(7) || got[0].Contains(8) {
		t.Error("HourRange.Contains should be inclusive on both ends")
	}

	for _, bad := range []string{"a-b", "7-x", "-1-3", "20-24"} {
		if _, err := ParsePeakWindows([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestServerAddr(t *testing.T) {
	t.Parallel()

	s := ServerConfig{Host: "127.0.0.1", Port: 8089}
	if s.Addr() != "127.0.0.1:8089" {
		t.Errorf("Addr() = %q", s.Addr())
	}
}
