// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package stats

// Aggregator accumulates values per group key. Results for groups with fewer
// than MinSamples values are withheld so callers never mistake a thin group's
// mean for a real statistic.
type Aggregator[K comparable] struct {
	minSamples int
	groups     map[K]*Welford
}

// NewAggregator returns an aggregator gated at minSamples (values below 1 are
// treated as 1).
func NewAggregator[K comparable](minSamples int) *Aggregator[K] {
	if minSamples < 1 {
		minSamples = 1
	}
	return &Aggregator[K]{minSamples: minSamples, groups: make(map[K]*Welford)}
}

// Add folds v into group k.
func (a *Aggregator[K]) Add(k K, v float64) {
	w, ok := a.groups[k]
	if !ok {
		w = &Welford{}
		a.groups[k] = w
	}
	w.Add(v)
}

// Count returns how many values group k has seen, gated or not.
func (a *Aggregator[K]) Count(k K) int {
	if w, ok := a.groups[k]; ok {
		return w.Count()
	}
	return 0
}

// Result returns group k's summary when it meets the sample gate.
func (a *Aggregator[K]) Result(k K) (Summary, bool) {
	w, ok := a.groups[k]
	if !ok || w.Count() < a.minSamples {
		return Summary{}, false
	}
	return w.Summary(), true
}

// Mean returns group k's mean, or nil when the group is absent or gated.
func (a *Aggregator[K]) Mean(k K) *float64 {
	s, ok := a.Result(k)
	if !ok {
		return nil
	}
	m := s.Mean
	return &m
}

// Len returns the number of groups seen.
func (a *Aggregator[K]) Len() int {
	return len(a.groups)
}

// Qualified returns the number of groups that meet the sample gate.
func (a *Aggregator[K]) Qualified() int {
	n := 0
	for _, w := range a.groups {
		if w.Count() >= a.minSamples {
			n++
		}
	}
	return n
}
