// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package main

import (
	"testing"
	"time"

	"github.com/tomtom215/transitpulse/internal/config"
)

func TestSchedulerConfigs(t *testing.T) {
	cfg := &config.Config{
		Refresh: config.RefreshConfig{
			Interval:     5 * time.Minute,
			RunOnStartup: true,
			FullEvery:    12,
			RunTimeout:   10 * time.Minute,
		},
		Retention: config.RetentionConfig{Interval: 24 * time.Hour},
		Reference: config.ReferenceConfig{ReloadInterval: time.Hour},
	}

	s := schedulerConfigs(cfg)
	if s.refresh.Interval != 5*time.Minute || !s.refresh.RunOnStartup || s.refresh.FullEvery != 12 {
		t.Errorf("refresh schedule = %+v", s.refresh)
	}
	if s.retention.Interval != 24*time.Hour || s.retention.RunOnStartup {
		t.Errorf("retention schedule = %+v", s.retention)
	}
	if s.reference.Interval != time.Hour || s.reference.RunOnStartup {
		t.Errorf("reference schedule = %+v", s.reference)
	}
	if got := writeTimeout(cfg); got != 10*time.Minute+30*time.Second {
		t.Errorf("write timeout = %v", got)
	}
	cfg.Refresh.RunTimeout = 0
	if got := writeTimeout(cfg); got != 0 {
		t.Errorf("unbounded runs should not set a write timeout, got %v", got)
	}
}
