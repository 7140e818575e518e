// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// LayerSink persists a built layer version. The orchestrator publishes to
// the sink before swapping the in-memory snapshot, so a version readers can
// see is always durable.
type LayerSink interface {
	PublishLayer(ctx context.Context, layer models.Layer, version uint64, rows any) error
}

// SinkOptions configures a ResilientSink.
type SinkOptions struct {
	Name string

	// InitialInterval and MaxElapsed bound the exponential retry schedule.
	InitialInterval time.Duration
	MaxElapsed      time.Duration

	// BreakerThreshold consecutive failures open the breaker for BreakerTimeout.
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// DefaultSinkOptions returns production settings.
func DefaultSinkOptions() SinkOptions {
	return SinkOptions{
		Name:             "layer-sink",
		InitialInterval:  500 * time.Millisecond,
		MaxElapsed:       30 * time.Second,
		BreakerThreshold: 5,
		BreakerTimeout:   time.Minute,
	}
}

// SinkOptionsFromConfig applies the refresh section over the defaults.
func SinkOptionsFromConfig(cfg *config.RefreshConfig) SinkOptions {
	opts := DefaultSinkOptions()
	if cfg.SinkMaxElapsed > 0 {
		opts.MaxElapsed = cfg.SinkMaxElapsed
	}
	if cfg.SinkBreakerThreshold > 0 {
		opts.BreakerThreshold = cfg.SinkBreakerThreshold
	}
	if cfg.SinkBreakerTimeout > 0 {
		opts.BreakerTimeout = cfg.SinkBreakerTimeout
	}
	return opts
}

// ResilientSink retries a LayerSink with exponential backoff behind a
// circuit breaker. An open breaker fails the publish immediately.
type ResilientSink struct {
	next LayerSink
	cb   *gobreaker.CircuitBreaker[struct{}]
	opts SinkOptions
}

// NewResilientSink wraps next.
func NewResilientSink(next LayerSink, opts SinkOptions) *ResilientSink {
	def := DefaultSinkOptions()
	if opts.Name == "" {
		opts.Name = def.Name
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = def.InitialInterval
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = def.MaxElapsed
	}
	if opts.BreakerThreshold == 0 {
		opts.BreakerThreshold = def.BreakerThreshold
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = def.BreakerTimeout
	}

	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, from.String(), to.String())
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	}
	return &ResilientSink{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
		opts: opts,
	}
}

// PublishLayer implements LayerSink.
func (s *ResilientSink) PublishLayer(ctx context.Context, layer models.Layer, version uint64, rows any) error {
	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			metrics.RecordSinkRetry(string(layer))
		}
		_, err := s.cb.Execute(func() (struct{}, error) {
			return struct{}{}, s.next.PublishLayer(ctx, layer, version, rows)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxElapsedTime = s.opts.MaxElapsed

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		logging.Ctx(ctx).Warn().Err(err).
			Str("layer", string(layer)).
			Uint64("version", version).
			Dur("retry_in", wait).
			Msg("Layer sink publish failed, retrying")
	})
}

// State returns the breaker state name.
func (s *ResilientSink) State() string {
	return s.cb.State().String()
}
