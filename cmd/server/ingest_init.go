// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/database"
	"github.com/tomtom215/transitpulse/internal/ingest"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/supervisor"
	"github.com/tomtom215/transitpulse/internal/supervisor/services"
)

// wireIngest starts the embedded broker when configured and adds the
// observation consumer to the data layer. The returned cleanup closes the
// subscriber and flushes the appender.
func wireIngest(ctx context.Context, cfg *config.Config, db *database.DB, tree *supervisor.SupervisorTree) (func(), error) {
	natsCfg := cfg.NATS
	if natsCfg.EmbeddedServer {
		srv, err := ingest.NewEmbeddedServer(&natsCfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS: %w", err)
		}
		natsCfg.URL = srv.ClientURL()
		tree.AddDataService(services.NewEmbeddedNATSService(srv, cfg.Supervisor.ShutdownTimeout))
		logging.Info().Str("url", natsCfg.URL).Msg("Embedded NATS JetStream started")
	}

	loc, err := cfg.Materialize.Location()
	if err != nil {
		return nil, err
	}

	sub, err := ingest.NewSubscriber(&natsCfg, ingest.NewLogger())
	if err != nil {
		return nil, err
	}
	appender, err := ingest.NewAppender(db.RawLog(), ingest.AppenderConfigFromConfig(&cfg.Ingest))
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	// The flush loop follows the process, not a single consumer run, so it
	// survives consumer restarts.
	if err := appender.Start(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	tree.AddDataService(ingest.NewConsumer(sub, natsCfg.Subject, appender, loc))
	logging.Info().Str("subject", natsCfg.Subject).Msg("Observation ingest enabled")

	return func() {
		if err := sub.Close(); err != nil {
			logging.Warn().Err(err).Msg("Error closing NATS subscriber")
		}
		if err := appender.Close(); err != nil {
			logging.Error().Err(err).Msg("Final ingest flush failed")
		}
	}, nil
}
