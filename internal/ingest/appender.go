// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

// flushTimeout bounds one flush; flushes run on a detached context so a
// cancelled message context cannot abort a half-written batch.
const flushTimeout = 30 * time.Second

// Store persists raw observations. rawlog.Log satisfies it.
type Store interface {
	Append(ctx context.Context, rows []models.RawObservation) ([]int64, error)
}

// AppenderConfig configures an Appender.
type AppenderConfig struct {
	BatchSize     int
	FlushInterval time.Duration

	// MaxFlushesPerSecond throttles store writes; 0 disables throttling.
	MaxFlushesPerSecond float64

	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

// AppenderConfigFromConfig maps the ingest section.
func AppenderConfigFromConfig(cfg *config.IngestConfig) AppenderConfig {
	return AppenderConfig{
		BatchSize:           cfg.BatchSize,
		FlushInterval:       cfg.FlushInterval,
		MaxFlushesPerSecond: cfg.MaxFlushesPerSecond,
		BreakerThreshold:    cfg.BreakerThreshold,
		BreakerTimeout:      cfg.BreakerTimeout,
	}
}

// AppenderStats holds runtime statistics.
type AppenderStats struct {
	Received      int64
	Flushed       int64
	FlushCount    int64
	ErrorCount    int64
	LastFlushTime time.Time
	LastError     string
	BufferSize    int
	BreakerState  string
}

// Appender buffers observations and writes them to the store in batches,
// when the batch size is reached or the flush interval elapses. Rows of a
// failed flush stay buffered for the next attempt. Flushes are serialized,
// so raw log IDs follow arrival order.
type Appender struct {
	store   Store
	config  AppenderConfig
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[[]int64]

	mu     sync.Mutex
	buffer []models.RawObservation

	flushMu sync.Mutex

	closed   atomic.Bool
	started  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}
	flushWg  sync.WaitGroup

	received   atomic.Int64
	flushed    atomic.Int64
	flushCount atomic.Int64
	errorCount atomic.Int64
	lastFlush  atomic.Value // time.Time
	lastError  atomic.Value // string
}

// NewAppender returns an Appender writing to store.
func NewAppender(store Store, cfg AppenderConfig) (*Appender, error) {
	if store == nil {
		return nil, errors.New("store required")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch size must be positive")
	}
	if cfg.FlushInterval <= 0 {
		return nil, errors.New("flush interval must be positive")
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	limit := rate.Inf
	if cfg.MaxFlushesPerSecond > 0 {
		limit = rate.Limit(cfg.MaxFlushesPerSecond)
	}

	a := &Appender{
		store:    store,
		config:   cfg,
		limiter:  rate.NewLimiter(limit, 1),
		buffer:   make([]models.RawObservation, 0, cfg.BatchSize),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	a.cb = gobreaker.NewCircuitBreaker[[]int64](gobreaker.Settings{
		Name:        "raw-log-append",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, from.String(), to.String())
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	a.lastFlush.Store(time.Time{})
	a.lastError.Store("")
	return a, nil
}

// Start begins interval flushing. Safe to call more than once.
func (a *Appender) Start(ctx context.Context) error {
	if a.closed.Load() {
		return errors.New("appender is closed")
	}
	if a.started.Swap(true) {
		return nil
	}
	go a.flushLoop(ctx)
	return nil
}

// Append buffers rows and triggers an asynchronous flush once the batch
// size is reached.
func (a *Appender) Append(_ context.Context, rows ...models.RawObservation) error {
	if a.closed.Load() {
		return errors.New("appender is closed")
	}
	if len(rows) == 0 {
		return nil
	}

	a.mu.Lock()
	a.buffer = append(a.buffer, rows...)
	needsFlush := len(a.buffer) >= a.config.BatchSize
	a.mu.Unlock()
	a.received.Add(int64(len(rows)))

	if needsFlush {
		a.flushWg.Add(1)
		go func() {
			defer a.flushWg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			a.flushAsync(ctx)
		}()
	}
	return nil
}

// Flush writes every buffered row, after waiting for in-flight flushes.
func (a *Appender) Flush(ctx context.Context) error {
	a.flushWg.Wait()
	return a.flush(ctx)
}

// Close stops interval flushing and writes what is left. Safe to call more
// than once.
func (a *Appender) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.started.Load() {
		close(a.stopChan)
		<-a.doneChan
	}
	a.flushWg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return a.flush(ctx)
}

// Stats returns runtime statistics.
func (a *Appender) Stats() AppenderStats {
	a.mu.Lock()
	size := len(a.buffer)
	a.mu.Unlock()

	last, _ := a.lastFlush.Load().(time.Time)
	lastErr, _ := a.lastError.Load().(string)
	return AppenderStats{
		Received:      a.received.Load(),
		Flushed:       a.flushed.Load(),
		FlushCount:    a.flushCount.Load(),
		ErrorCount:    a.errorCount.Load(),
		LastFlushTime: last,
		LastError:     lastErr,
		BufferSize:    size,
		BreakerState:  a.cb.State().String(),
	}
}

func (a *Appender) flushLoop(ctx context.Context) {
	defer close(a.doneChan)

	ticker := time.NewTicker(a.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopChan:
			return
		case <-ticker.C:
			flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			a.flushAsync(flushCtx)
			cancel()
		}
	}
}

func (a *Appender) flushAsync(ctx context.Context) {
	if err := a.flush(ctx); err != nil {
		logging.Debug().Err(err).Msg("Async ingest flush failed")
	}
}

// flush writes the buffer in BatchSize chunks. On failure the unwritten
// rows are put back at the front of the buffer.
func (a *Appender) flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if len(a.buffer) == 0 {
		a.mu.Unlock()
		return nil
	}
	rows := a.buffer
	a.buffer = make([]models.RawObservation, 0, a.config.BatchSize)
	a.mu.Unlock()

	written := 0
	for start := 0; start < len(rows); start += a.config.BatchSize {
		end := min(start+a.config.BatchSize, len(rows))
		chunk := rows[start:end]

		err := a.limiter.Wait(ctx)
		if err == nil {
			chunkStart := time.Now()
			_, err = a.cb.Execute(func() ([]int64, error) {
				return a.store.Append(ctx, chunk)
			})
			if err == nil {
				metrics.RecordIngestFlush(time.Since(chunkStart), len(chunk))
			}
		}
		if err != nil {
			a.mu.Lock()
			a.buffer = append(rows[start:len(rows):len(rows)], a.buffer...)
			a.mu.Unlock()

			a.flushed.Add(int64(written))
			a.errorCount.Add(1)
			a.lastError.Store(err.Error())
			return fmt.Errorf("flush observations (chunk %d-%d): %w", start, end, err)
		}
		written += len(chunk)
	}

	a.flushed.Add(int64(written))
	a.flushCount.Add(1)
	a.lastFlush.Store(time.Now())
	a.lastError.Store("")
	logging.Debug().Int("count", written).Msg("Observations flushed to raw log")
	return nil
}
