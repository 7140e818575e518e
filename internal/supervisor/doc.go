// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package supervisor provides process supervision for TransitPulse using suture v4.

The supervisor tree organizes long-running services into three layers:

	RootSupervisor ("transitpulse")
	├── DataSupervisor ("data-layer")
	│   ├── EmbeddedNATSService (if NATS_EMBEDDED)
	│   └── ingest.Consumer (if NATS_ENABLED)
	├── JobsSupervisor ("jobs-layer")
	│   ├── RefreshSchedulerService (if REFRESH_ENABLED)
	│   └── RetentionSchedulerService (if RETENTION_ENABLED)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if SERVER_ENABLED)

Crashed services restart with suture's decaying failure counter and
backoff. Supervisor events are logged through sutureslog into the same
zerolog pipeline as the rest of the application.

Usage:

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.TreeConfigFromConfig(&cfg.Supervisor))
	tree.AddDataService(consumer)
	tree.AddJobService(services.NewRefreshSchedulerService(orch, schedCfg))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
