// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package ingest moves polled observations from NATS JetStream into the raw
// observation log.
//
// An external poller publishes either serialized GTFS-Realtime FeedMessages
// (content_type application/x-protobuf) or JSON ObservationBatch documents
// to the observation subject:
//
//	poller -> JetStream -> Consumer -> Appender -> rawlog.Log
//
// Consumer decodes and validates each message; undecodable messages are
// acked and dropped. Appender batches rows, throttles writes with a token
// bucket and guards the store with a circuit breaker. Rows of a failed
// flush stay buffered, so a database outage delays ingestion instead of
// losing observations.
//
// EmbeddedServer runs JetStream in-process for single-node deployments.
package ingest
