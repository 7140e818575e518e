// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/refresh"
)

type countingRefresher struct {
	mu    sync.Mutex
	modes []string
	err   error
}

func (r *countingRefresher) record(mode string) (*models.RefreshResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	return &models.RefreshResult{Mode: mode}, r.err
}

func (r *countingRefresher) RefreshAll(context.Context) (*models.RefreshResult, error) {
	return r.record(refresh.ModeFull)
}

func (r *countingRefresher) RefreshIncremental(context.Context) (*models.RefreshResult, error) {
	return r.record(refresh.ModeIncremental)
}

func (r *countingRefresher) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.modes...)
}

func TestRefreshSchedulerModeSelection(t *testing.T) {
	tests := []struct {
		name string
		cfg  SchedulerConfig
		want []string
	}{
		{
			name: "startup full then incremental",
			cfg:  SchedulerConfig{RunOnStartup: true},
			want: []string{"full", "incremental", "incremental", "incremental"},
		},
		{
			name: "full every third tick",
			cfg:  SchedulerConfig{FullEvery: 3},
			want: []string{"full", "incremental", "incremental", "full"},
		},
		{
			name: "incremental only",
			cfg:  SchedulerConfig{},
			want: []string{"incremental", "incremental", "incremental", "incremental"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &countingRefresher{}
			svc := NewRefreshSchedulerService(r, tt.cfg)
			for tick := range len(tt.want) {
				svc.runOnce(context.Background(), tick)
			}
			if got := r.snapshot(); fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("modes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRefreshSchedulerSurvivesErrors(t *testing.T) {
	for _, err := range []error{
		refresh.ErrNothingToDo,
		fmt.Errorf("refresh base: %w", ledger.ErrRefreshInProgress),
		errors.New("duckdb: disk full"),
	} {
		r := &countingRefresher{err: err}
		svc := NewRefreshSchedulerService(r, SchedulerConfig{
			Interval:     5 * time.Millisecond,
			RunOnStartup: true,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		serveErr := svc.Serve(ctx)
		cancel()

		if !errors.Is(serveErr, context.DeadlineExceeded) {
			t.Errorf("%v: Serve returned %v, want deadline exceeded", err, serveErr)
		}
		if n := len(r.snapshot()); n < 2 {
			t.Errorf("%v: scheduler stopped after %d runs", err, n)
		}
	}
}

func TestSchedulerDefaults(t *testing.T) {
	if got := NewRefreshSchedulerService(&countingRefresher{}, SchedulerConfig{}).cfg.Interval; got != 5*time.Minute {
		t.Errorf("refresh interval default = %v", got)
	}
	if got := NewRetentionSchedulerService(nil, SchedulerConfig{}).cfg.Interval; got != 24*time.Hour {
		t.Errorf("retention interval default = %v", got)
	}
	if got := NewReferenceReloadService(nil, nil, SchedulerConfig{}).cfg.Interval; got != time.Hour {
		t.Errorf("reference reload interval default = %v", got)
	}
}

type countingArchiver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *countingArchiver) Archive(context.Context) (*models.ArchiveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return &models.ArchiveResult{AnalyticsRowsBefore: 10, AnalyticsRowsAfter: 7}, nil
}

func (a *countingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestRetentionScheduler(t *testing.T) {
	for _, err := range []error{nil, ledger.ErrRefreshInProgress, errors.New("raw log mutated")} {
		a := &countingArchiver{err: err}
		svc := NewRetentionSchedulerService(a, SchedulerConfig{Interval: 5 * time.Millisecond, RunOnStartup: true})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		serveErr := svc.Serve(ctx)
		cancel()

		if !errors.Is(serveErr, context.DeadlineExceeded) {
			t.Errorf("%v: Serve returned %v", err, serveErr)
		}
		if a.count() < 2 {
			t.Errorf("%v: archive ran %d times, want at least 2", err, a.count())
		}
	}
}

func TestSchedulerRunTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	cfg := SchedulerConfig{Interval: time.Hour, RunOnStartup: true, RunTimeout: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ticker(ctx, cfg, func(runCtx context.Context, _ int) {
			deadline, ok = runCtx.Deadline()
			cancel()
		})
	}()
	<-done

	if !ok || time.Until(deadline) > time.Minute {
		t.Errorf("run deadline = %v (set=%v), want within a minute", deadline, ok)
	}
}

type emptySource struct{}

func (emptySource) LoadRoutes(context.Context) ([]models.Route, error)   { return nil, nil }
func (emptySource) LoadTrips(context.Context) ([]models.Trip, error)     { return nil, nil }
func (emptySource) LoadStops(context.Context) ([]models.Stop, error)     { return nil, nil }
func (emptySource) LoadRegions(context.Context) ([]models.Region, error) { return nil, nil }

type failingSource struct{ emptySource }

func (failingSource) LoadRoutes(context.Context) ([]models.Route, error) {
	return nil, errors.New("db down")
}

func TestReferenceReloadService(t *testing.T) {
	cat := reference.NewCatalogue(reference.Options{GridCellKm: 2})
	svc := NewReferenceReloadService(cat, emptySource{}, SchedulerConfig{Interval: 5 * time.Millisecond, RunOnStartup: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve returned %v", err)
	}
	// The first tick loads; later ticks see no change and keep version 1.
	if snap := cat.Current(); snap == nil || snap.Version != 1 {
		t.Errorf("catalogue after scheduled reloads = %+v, want version 1", snap)
	}
}

func TestReferenceReloadServiceSurvivesSourceErrors(t *testing.T) {
	cat := reference.NewCatalogue(reference.Options{GridCellKm: 2})
	svc := NewReferenceReloadService(cat, failingSource{}, SchedulerConfig{Interval: 5 * time.Millisecond, RunOnStartup: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve returned %v", err)
	}
	if cat.Current() != nil {
		t.Error("failed reloads must not publish a snapshot")
	}
}
