// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package stats

import (
	"sort"
	"time"
)

// Window is a closed time interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Trailing returns the window of length d ending at now.
func Trailing(now time.Time, d time.Duration) Window {
	return Window{Start: now.Add(-d), End: now}
}

// Contains reports whether t lies in the window. A zero End leaves the window
// open-ended.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return w.End.IsZero() || !t.After(w.End)
}

// Windowed describes one windowed aggregation: which rows fall in the window
// (by Time) and which group each row belongs to (by Key). Rows for which Key
// reports false are skipped.
type Windowed[T any, K comparable] struct {
	Window Window
	Time   func(*T) time.Time
	Key    func(*T) (K, bool)
}

// Group partitions the in-window rows of input by key. The returned key
// slice is sorted with less so callers produce deterministic output.
func (w Windowed[T, K]) Group(input []T, less func(a, b K) bool) ([]K, map[K][]*T) {
	groups := make(map[K][]*T)
	for i := range input {
		row := &input[i]
		if !w.Window.Contains(w.Time(row)) {
			continue
		}
		k, ok := w.Key(row)
		if !ok {
			continue
		}
		groups[k] = append(groups[k], row)
	}
	keys := make([]K, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys, groups
}
