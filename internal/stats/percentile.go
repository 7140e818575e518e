// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package stats

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0..1) of values using linear
// interpolation between closest ranks, the same definition as SQL
// PERCENTILE_CONT. values is sorted in place. Empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if !sort.Float64sAreSorted(values) {
		sort.Float64s(values)
	}
	p = math.Max(0, math.Min(1, p))
	pos := p * float64(len(values)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return values[lo]
	}
	frac := pos - float64(lo)
	return values[lo] + (values[hi]-values[lo])*frac
}

// Median is Percentile(values, 0.5).
func Median(values []float64) float64 {
	return Percentile(values, 0.5)
}
