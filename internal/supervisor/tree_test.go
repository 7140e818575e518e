// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/tomtom215/transitpulse/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSupervisorTreeConstruction(t *testing.T) {
	t.Run("applies default values for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("failed to create tree: %v", err)
		}
		if tree.Root() == nil {
			t.Fatal("root supervisor should not be nil")
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want defaults", tree.config)
		}
	})

	t.Run("maps application config", func(t *testing.T) {
		cfg := TreeConfigFromConfig(&config.SupervisorConfig{
			FailureThreshold: 3,
			FailureDecay:     10,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  2 * time.Second,
		})
		if cfg.FailureThreshold != 3 || cfg.FailureBackoff != time.Second || cfg.ShutdownTimeout != 2*time.Second {
			t.Errorf("config = %+v", cfg)
		}
		if TreeConfigFromConfig(nil) != DefaultTreeConfig() {
			t.Error("nil config should map to defaults")
		}
	})
}

func TestSupervisorTreeStartsEveryLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	dataSvc := newStubService("ingest", 0)
	jobSvc := newStubService("refresh-scheduler", 0)
	apiSvc := newStubService("http-server", 0)
	tree.AddDataService(dataSvc)
	tree.AddJobService(jobSvc)
	tree.AddAPIService(apiSvc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	waitFor(t, func() bool {
		return dataSvc.starts.Load() > 0 && jobSvc.starts.Load() > 0 && apiSvc.starts.Load() > 0
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}
	if apiSvc.stops.Load() != 1 {
		t.Errorf("api service stopped %d times, want 1", apiSvc.stops.Load())
	}
}

func TestSupervisorTreeRestartsFailingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newStubService("failing-consumer", 2)
	stable := newStubService("stable-api", 0)
	tree.AddDataService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	waitFor(t, func() bool { return failing.starts.Load() >= 3 })
	if stable.starts.Load() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.starts.Load())
	}
}
