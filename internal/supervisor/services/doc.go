// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

/*
Package services provides suture.Service wrappers for TransitPulse components.

Each wrapper translates a component lifecycle into suture's context-aware
Serve pattern and implements fmt.Stringer so supervisor events name it.

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - http.ErrServerClosed is treated as a clean exit

Refresh Scheduler (RefreshSchedulerService):
  - Runs an incremental refresh every interval
  - Forces a full refresh every N ticks and optionally on startup
  - Contention and empty increments are logged, not returned, so they
    never trigger a supervisor restart

Retention Scheduler (RetentionSchedulerService):
  - Runs one archival pass every interval

Embedded NATS (EmbeddedNATSService):
  - Owns the in-process JetStream server and shuts it down with the tree
  - Returns an error when the server stops on its own

The ingest consumer implements suture.Service directly and needs no wrapper.
*/
package services
