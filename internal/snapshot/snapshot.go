// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

// Package snapshot publishes immutable, versioned datasets behind an atomic
// pointer. Writers build a complete new dataset off to the side and swap it in
// with Publish; readers call Current and keep using whatever they got for as
// long as they like. A reader never sees a partially built dataset.
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is one published version of a dataset. Rows must not be mutated
// after publication.
type Snapshot[T any] struct {
	Version uint64
	BuiltAt time.Time
	Rows    []T
}

// Len returns the row count, 0 for a nil snapshot.
func (s *Snapshot[T]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// Store holds the current snapshot of one dataset.
type Store[T any] struct {
	name    string
	current atomic.Pointer[Snapshot[T]]

	// publishMu orders version assignment; readers never take it.
	publishMu sync.Mutex
	version   uint64
}

// NewStore returns an empty store.
func NewStore[T any](name string) *Store[T] {
	return &Store[T]{name: name}
}

// Name returns the dataset name.
func (s *Store[T]) Name() string {
	return s.name
}

// Current returns the latest snapshot, or nil before the first Publish.
func (s *Store[T]) Current() *Snapshot[T] {
	return s.current.Load()
}

// Rows returns the latest rows, or nil before the first Publish.
func (s *Store[T]) Rows() []T {
	if snap := s.current.Load(); snap != nil {
		return snap.Rows
	}
	return nil
}

// NextVersion returns the version the next Publish will assign.
func (s *Store[T]) NextVersion() uint64 {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	return s.version + 1
}

// Publish swaps in rows as the next version and returns the new snapshot.
func (s *Store[T]) Publish(rows []T, builtAt time.Time) *Snapshot[T] {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.version++
	snap := &Snapshot[T]{Version: s.version, BuiltAt: builtAt, Rows: rows}
	s.current.Store(snap)
	return snap
}

// PublishIf swaps in rows only when the current version still equals
// expected. Callers pass the version they read before building, so a
// rebuild cannot replace a version it never saw. It reports whether the
// swap happened.
func (s *Store[T]) PublishIf(expected uint64, rows []T, builtAt time.Time) (*Snapshot[T], bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	cur := s.current.Load()
	var curVersion uint64
	if cur != nil {
		curVersion = cur.Version
	}
	if curVersion != expected {
		return cur, false
	}
	s.version++
	snap := &Snapshot[T]{Version: s.version, BuiltAt: builtAt, Rows: rows}
	s.current.Store(snap)
	return snap, true
}

// Restore installs a snapshot with an explicit version, used when reloading
// persisted layers at startup. Later publishes continue from that version.
func (s *Store[T]) Restore(version uint64, rows []T, builtAt time.Time) *Snapshot[T] {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if version > s.version {
		s.version = version
	}
	snap := &Snapshot[T]{Version: version, BuiltAt: builtAt, Rows: rows}
	s.current.Store(snap)
	return snap
}

// AdvanceTo makes the next Publish assign a version above version without
// touching the current snapshot. Used to continue numbering from versions
// persisted by a previous process.
func (s *Store[T]) AdvanceTo(version uint64) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if version > s.version {
		s.version = version
	}
}
