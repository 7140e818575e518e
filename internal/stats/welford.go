// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package stats

import "math"

// Welford accumulates count, mean, variance, min and max in one pass using
// Welford's online algorithm. The zero value is ready to use.
type Welford struct {
	n    int
	mean float64
	m2   float64
	min  float64
	max  float64
}

// Add folds v into the accumulator.
func (w *Welford) Add(v float64) {
	w.n++
	if w.n == 1 {
		w.min, w.max = v, v
	} else {
		w.min = math.Min(w.min, v)
		w.max = math.Max(w.max, v)
	}
	delta := v - w.mean
	w.mean += delta / float64(w.n)
	w.m2 += delta * (v - w.mean)
}

// Merge folds another accumulator into w (Chan et al. parallel update).
func (w *Welford) Merge(o *Welford) {
	if o == nil || o.n == 0 {
		return
	}
	if w.n == 0 {
		*w = *o
		return
	}
	n := w.n + o.n
	delta := o.mean - w.mean
	w.m2 += o.m2 + delta*delta*float64(w.n)*float64(o.n)/float64(n)
	w.mean += delta * float64(o.n) / float64(n)
	w.min = math.Min(w.min, o.min)
	w.max = math.Max(w.max, o.max)
	w.n = n
}

// Count returns the number of values added.
func (w *Welford) Count() int { return w.n }

// Mean returns the running mean, 0 when empty.
func (w *Welford) Mean() float64 { return w.mean }

// Min returns the smallest value, 0 when empty.
func (w *Welford) Min() float64 { return w.min }

// Max returns the largest value, 0 when empty.
func (w *Welford) Max() float64 { return w.max }

// Stddev returns the sample standard deviation (n-1 denominator), matching
// SQL STDDEV. Fewer than two values yield 0.
func (w *Welford) Stddev() float64 {
	if w.n < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.n-1))
}

// Summary is a point-in-time copy of an accumulator.
type Summary struct {
	Count  int
	Mean   float64
	Stddev float64
	Min    float64
	Max    float64
}

// Summary snapshots w.
func (w *Welford) Summary() Summary {
	return Summary{Count: w.n, Mean: w.mean, Stddev: w.Stddev(), Min: w.min, Max: w.max}
}
