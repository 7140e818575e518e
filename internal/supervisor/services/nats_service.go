// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package services

import (
	"context"
	"errors"
	"time"
)

// EmbeddedServer is the lifecycle of an in-process NATS server.
//
// Satisfied by *ingest.EmbeddedServer.
type EmbeddedServer interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
}

// ErrServerStopped is returned when the embedded server stops on its own.
var ErrServerStopped = errors.New("embedded NATS server stopped unexpectedly")

// EmbeddedNATSService supervises an already started embedded server. The
// server starts before the tree so the consumer can connect to it.
type EmbeddedNATSService struct {
	server          EmbeddedServer
	shutdownTimeout time.Duration
	checkInterval   time.Duration
	name            string
}

// NewEmbeddedNATSService creates the wrapper.
func NewEmbeddedNATSService(server EmbeddedServer, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedNATSService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		checkInterval:   5 * time.Second,
		name:            "nats-embedded",
	}
}

// Serve watches the server until ctx is canceled, then shuts it down.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	t := time.NewTicker(s.checkInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return ctx.Err()
		case <-t.C:
			if !s.server.IsRunning() {
				return ErrServerStopped
			}
		}
	}
}

// String identifies the service in suture log events.
func (s *EmbeddedNATSService) String() string {
	return s.name
}
