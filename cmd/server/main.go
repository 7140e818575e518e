// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"github.com/tomtom215/transitpulse/internal/api"
	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/database"
	"github.com/tomtom215/transitpulse/internal/ledger"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/predictions"
	"github.com/tomtom215/transitpulse/internal/reference"
	"github.com/tomtom215/transitpulse/internal/refresh"
	"github.com/tomtom215/transitpulse/internal/retention"
	"github.com/tomtom215/transitpulse/internal/supervisor"
	"github.com/tomtom215/transitpulse/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("TransitPulse stopped with an error")
	}
	logging.Info().Msg("TransitPulse stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("ledger_path", cfg.Ledger.Path).
		Str("timezone", cfg.Materialize.Timezone).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting TransitPulse")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		checkpointCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := db.Checkpoint(checkpointCtx); err != nil {
			logging.Warn().Err(err).Msg("Final checkpoint failed")
		}
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	l, err := ledger.Open(ledger.Options{
		Path:       cfg.Ledger.Path,
		InMemory:   cfg.Ledger.InMemory,
		StuckAfter: cfg.Ledger.StuckAfter,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing ledger")
		}
	}()
	l.AddObserver(db)

	catalogue := reference.NewCatalogue(reference.Options{
		CityCenterLat: cfg.Materialize.CityCenterLat,
		CityCenterLon: cfg.Materialize.CityCenterLon,
		GridCellKm:    cfg.Regions.GridCellKm,
		Writer:        db,
	})
	if _, err := catalogue.Load(ctx, db); err != nil {
		return err
	}

	opts, err := refresh.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	sink := refresh.NewResilientSink(db, refresh.SinkOptionsFromConfig(&cfg.Refresh))
	orch := refresh.New(db.RawLog(), catalogue, l, sink, opts)
	if err := orch.Restore(ctx, db); err != nil {
		return err
	}

	archiver := retention.NewManager(db.RawLog(), orch.Layers().Analytics, l, sink,
		retention.OptionsFromConfig(&cfg.Retention))
	preds := predictions.NewStore(db)

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(),
		supervisor.TreeConfigFromConfig(&cfg.Supervisor))
	if err != nil {
		return err
	}

	if cfg.NATS.Enabled {
		cleanup, err := wireIngest(ctx, cfg, db, tree)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	sched := schedulerConfigs(cfg)
	if cfg.Refresh.Enabled {
		tree.AddJobService(services.NewRefreshSchedulerService(orch, sched.refresh))
	}
	if cfg.Retention.Enabled {
		tree.AddJobService(services.NewRetentionSchedulerService(archiver, sched.retention))
	}
	if cfg.Reference.ReloadInterval > 0 {
		tree.AddJobService(services.NewReferenceReloadService(catalogue, db, sched.reference))
	}

	if cfg.Server.Enabled {
		handler := api.NewHandler(api.Dependencies{
			Refresher:   orch,
			Layers:      orch.Layers(),
			Archiver:    archiver,
			Predictions: preds,
			Catalogue:   catalogue,
			Database:    db,
			Ledger:      l,
			RunTimeout:  cfg.Refresh.RunTimeout,

			Reloader:        catalogue,
			ReferenceSource: db,
		})
		router := api.NewChiRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(&cfg.Server)))
		server := services.NewHTTPServer(cfg.Server.Addr(), router.Setup(), writeTimeout(cfg))
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Server.Addr()).Msg("Ops API enabled")
	}

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type schedules struct {
	refresh   services.SchedulerConfig
	retention services.SchedulerConfig
	reference services.SchedulerConfig
}

func schedulerConfigs(cfg *config.Config) schedules {
	return schedules{
		refresh: services.SchedulerConfig{
			Interval:     cfg.Refresh.Interval,
			RunOnStartup: cfg.Refresh.RunOnStartup,
			FullEvery:    cfg.Refresh.FullEvery,
			RunTimeout:   cfg.Refresh.RunTimeout,
		},
		retention: services.SchedulerConfig{
			Interval:   cfg.Retention.Interval,
			RunTimeout: cfg.Refresh.RunTimeout,
		},
		reference: services.SchedulerConfig{
			Interval:   cfg.Reference.ReloadInterval,
			RunTimeout: cfg.Refresh.RunTimeout,
		},
	}
}

// writeTimeout lets a synchronous refresh request outlive its run timeout
// long enough to write the response.
func writeTimeout(cfg *config.Config) time.Duration {
	if cfg.Refresh.RunTimeout <= 0 {
		return 0
	}
	return cfg.Refresh.RunTimeout + 30*time.Second
}
