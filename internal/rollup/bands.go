// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package rollup

import "github.com/tomtom215/transitpulse/internal/models"

// Band is a delay classification.
type Band int

const (
	BandEarly Band = iota
	BandOnTime
	BandLate1to5
	BandLate5to10
	BandLateOver10
)

// String returns the band label used in logs and metrics.
func (b Band) String() string {
	switch b {
	case BandEarly:
		return "early"
	case BandOnTime:
		return "on_time"
	case BandLate1to5:
		return "late_1_5"
	case BandLate5to10:
		return "late_5_10"
	default:
		return "late_over_10"
	}
}

// DelayBand classifies a delay in seconds.
func DelayBand(delaySeconds int) Band {
	switch {
	case delaySeconds < -60:
		return BandEarly
	case delaySeconds <= 60:
		return BandOnTime
	case delaySeconds <= 300:
		return BandLate1to5
	case delaySeconds <= 600:
		return BandLate5to10
	default:
		return BandLateOver10
	}
}

// StatusFor maps a mean delay in minutes to a region status.
func StatusFor(avgMinutes float64) models.RegionStatus {
	switch {
	case avgMinutes < 1:
		return models.StatusExcellent
	case avgMinutes < 3:
		return models.StatusGood
	case avgMinutes < 5:
		return models.StatusModerate
	case avgMinutes < 10:
		return models.StatusPoor
	default:
		return models.StatusSevere
	}
}

// GradeFor maps a mean delay in minutes to a letter grade.
func GradeFor(avgMinutes float64) string {
	switch {
	case avgMinutes < 1:
		return "A"
	case avgMinutes < 3:
		return "B"
	case avgMinutes < 5:
		return "C"
	case avgMinutes < 10:
		return "D"
	default:
		return "F"
	}
}
