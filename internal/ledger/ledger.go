// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
)

const keyPrefix = "ledger:"

// maxConflictRetries bounds retries of a transaction that lost a write race.
const maxConflictRetries = 3

var (
	// ErrRefreshInProgress is returned by Begin while another run owns the layer.
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrRunMismatch is returned when a run tries to finish an entry it does
	// not own.
	ErrRunMismatch = errors.New("ledger entry owned by another run")

	// ErrUnknownLayer is returned for layer names the ledger does not track.
	ErrUnknownLayer = errors.New("unknown layer")
)

// Observer receives every committed ledger transition.
type Observer interface {
	LedgerChanged(ctx context.Context, entry models.LedgerEntry) error
}

// Outcome describes a successful run.
type Outcome struct {
	Rows      int64
	Version   uint64
	HighWater int64
}

// Options configures a Ledger.
type Options struct {
	// Path is the Badger directory; ignored when InMemory is set.
	Path     string
	InMemory bool

	// StuckAfter is the age after which an in_progress entry is treated as
	// abandoned and may be taken over.
	StuckAfter time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Ledger is the per-layer refresh state machine backed by BadgerDB.
type Ledger struct {
	db    *badger.DB
	owned bool
	opts  Options

	mu        sync.RWMutex
	observers []Observer
}

// Open opens (or creates) the Badger store described by opts.
func Open(opts Options) (*Ledger, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}
	l := New(db, opts)
	l.owned = true
	return l, nil
}

// New wraps an already open Badger database. The caller keeps ownership.
func New(db *badger.DB, opts Options) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = time.Hour
	}
	return &Ledger{db: db, opts: opts}
}

// Close closes the store when the ledger opened it.
func (l *Ledger) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

// Healthy reports whether the store accepts reads.
func (l *Ledger) Healthy() error {
	if l.db.IsClosed() {
		return errors.New("ledger store closed")
	}
	return l.db.View(func(*badger.Txn) error { return nil })
}

// AddObserver registers o for every subsequent transition.
func (l *Ledger) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Begin moves layer to in_progress and returns the new run ID.
func (l *Ledger) Begin(ctx context.Context, layer models.Layer) (string, error) {
	if !layer.Valid() {
		return "", fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}
	runID := uuid.New().String()
	now := l.opts.Now()

	entry, err := l.update(layer, func(e *models.LedgerEntry) error {
		if e.Status == models.StatusInProgress {
			if e.StartedAt != nil && now.Sub(*e.StartedAt) < l.opts.StuckAfter {
				return fmt.Errorf("%w: layer %s run %s", ErrRefreshInProgress, layer, e.RunID)
			}
			logging.Ctx(ctx).Warn().
				Str("layer", string(layer)).
				Str("abandoned_run_id", e.RunID).
				Msg("Taking over abandoned refresh")
		}
		e.Status = models.StatusInProgress
		e.RunID = runID
		e.StartedAt = &now
		e.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return "", err
	}
	l.notify(ctx, entry)
	return runID, nil
}

// Succeed closes runID's entry as success.
func (l *Ledger) Succeed(ctx context.Context, layer models.Layer, runID string, out Outcome) error {
	now := l.opts.Now()
	entry, err := l.update(layer, func(e *models.LedgerEntry) error {
		if err := owns(e, runID); err != nil {
			return err
		}
		e.Status = models.StatusSuccess
		e.LastRefreshTime = &now
		e.LastSuccessTime = &now
		e.Duration = since(e.StartedAt, now)
		e.RowsAffected = out.Rows
		e.Version = out.Version
		e.HighWater = out.HighWater
		e.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return err
	}
	l.notify(ctx, entry)
	return nil
}

// Fail closes runID's entry as failed and preserves cause's message.
func (l *Ledger) Fail(ctx context.Context, layer models.Layer, runID string, cause error) error {
	now := l.opts.Now()
	entry, err := l.update(layer, func(e *models.LedgerEntry) error {
		if err := owns(e, runID); err != nil {
			return err
		}
		e.Status = models.StatusFailed
		e.LastRefreshTime = &now
		e.Duration = since(e.StartedAt, now)
		e.RowsAffected = 0
		if cause != nil {
			e.ErrorMessage = cause.Error()
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.notify(ctx, entry)
	return nil
}

// Get returns the entry of layer; a layer never refreshed is idle.
func (l *Ledger) Get(_ context.Context, layer models.Layer) (models.LedgerEntry, error) {
	if !layer.Valid() {
		return models.LedgerEntry{}, fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}
	var entry models.LedgerEntry
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = read(txn, layer)
		return err
	})
	return entry, err
}

// All returns every tracked layer in dependency order, archive last.
func (l *Ledger) All(ctx context.Context) ([]models.LedgerEntry, error) {
	layers := append(append([]models.Layer{}, models.MaterializedLayers...), models.LayerArchive)
	out := make([]models.LedgerEntry, 0, len(layers))
	err := l.db.View(func(txn *badger.Txn) error {
		for _, layer := range layers {
			e, err := read(txn, layer)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LastSuccess returns the last success time of layer, nil if never.
func (l *Ledger) LastSuccess(ctx context.Context, layer models.Layer) (*time.Time, error) {
	e, err := l.Get(ctx, layer)
	if err != nil {
		return nil, err
	}
	return e.LastSuccessTime, nil
}

// update runs a read-modify-write of one entry inside a single transaction,
// retrying when a concurrent writer wins the commit.
func (l *Ledger) update(layer models.Layer, fn func(*models.LedgerEntry) error) (models.LedgerEntry, error) {
	var entry models.LedgerEntry
	op := func() error {
		err := l.db.Update(func(txn *badger.Txn) error {
			e, err := read(txn, layer)
			if err != nil {
				return err
			}
			if err := fn(&e); err != nil {
				return err
			}
			data, err := json.Marshal(&e)
			if err != nil {
				return fmt.Errorf("marshal ledger entry: %w", err)
			}
			if err := txn.Set(key(layer), data); err != nil {
				return fmt.Errorf("write ledger entry: %w", err)
			}
			entry = e
			return nil
		})
		if err != nil && !errors.Is(err, badger.ErrConflict) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	err := backoff.Retry(op, backoff.WithMaxRetries(b, maxConflictRetries))
	return entry, err
}

func (l *Ledger) notify(ctx context.Context, entry models.LedgerEntry) {
	metrics.SetLedgerStatus(string(entry.Layer), string(entry.Status), entry.LastSuccessTime)

	l.mu.RLock()
	observers := l.observers
	l.mu.RUnlock()
	for _, o := range observers {
		if err := o.LedgerChanged(ctx, entry); err != nil {
			logging.Ctx(ctx).Warn().Err(err).
				Str("layer", string(entry.Layer)).
				Msg("Ledger observer failed")
		}
	}
}

func read(txn *badger.Txn, layer models.Layer) (models.LedgerEntry, error) {
	entry := models.LedgerEntry{Layer: layer, Status: models.StatusIdle}
	item, err := txn.Get(key(layer))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return entry, nil
	}
	if err != nil {
		return entry, fmt.Errorf("get ledger entry: %w", err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return entry, fmt.Errorf("decode ledger entry: %w", err)
	}
	return entry, nil
}

func key(layer models.Layer) []byte {
	return []byte(keyPrefix + string(layer))
}

func owns(e *models.LedgerEntry, runID string) error {
	if e.Status != models.StatusInProgress || e.RunID != runID {
		return fmt.Errorf("%w: layer %s is %s by run %q", ErrRunMismatch, e.Layer, e.Status, e.RunID)
	}
	return nil
}

func since(start *time.Time, now time.Time) time.Duration {
	if start == nil {
		return 0
	}
	return now.Sub(*start)
}
