// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package materialize

import (
	"math"
	"time"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/models"
)

// ReferenceView is the subset of the reference catalogue the join needs.
type ReferenceView interface {
	Route(id string) (*models.Route, bool)
	Trip(id string) (*models.Trip, bool)
	Stop(id string) (*models.Stop, bool)
}

// EnrichOptions configures Enrich.
type EnrichOptions struct {
	// Location is the agency timezone; nil means UTC.
	Location *time.Location

	// PeakWindows are inclusive local-hour ranges flagged as peak.
	PeakWindows []config.HourRange
}

// DefaultPeakWindows are the morning and evening peaks.
func DefaultPeakWindows() []config.HourRange {
	return []config.HourRange{{From: 5, To: 7}, {From: 16, To: 18}}
}

// EnrichStats counts join misses.
type EnrichStats struct {
	Input        int
	MissingTrip  int
	MissingRoute int
	MissingStop  int
	Output       int
}

// Enrich inner-joins Base rows to trip, route and stop. Rows missing any of
// the three are dropped and counted. Output keeps the input order.
func Enrich(base []models.LatestObservation, ref ReferenceView, opts EnrichOptions) ([]models.EnrichedRecord, EnrichStats) {
	st := EnrichStats{Input: len(base)}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	out := make([]models.EnrichedRecord, 0, len(base))
	for i := range base {
		obs := &base[i]

		trip, ok := ref.Trip(obs.TripID)
		if !ok {
			st.MissingTrip++
			continue
		}
		routeID := trip.RouteID
		if routeID == "" {
			routeID = obs.RouteID
		}
		route, ok := ref.Route(routeID)
		if !ok {
			st.MissingRoute++
			continue
		}
		stop, ok := ref.Stop(obs.StopID)
		if !ok {
			st.MissingStop++
			continue
		}

		rec := models.EnrichedRecord{
			LatestObservation:    *obs,
			RouteShortName:       route.ShortName,
			RouteLongName:        route.LongName,
			RouteType:            route.RouteType,
			TripHeadsign:         trip.Headsign,
			ServiceID:            trip.ServiceID,
			StopName:             stop.Name,
			StopLat:              stop.Lat,
			StopLon:              stop.Lon,
			DistanceFromCenterKm: stop.DistanceFromCenterKm,
			LatSin:               stop.LatSin,
			LatCos:               stop.LatCos,
			LonSin:               stop.LonSin,
			LonCos:               stop.LonCos,
			RegionID:             stop.RegionID,
		}
		rec.RouteID = route.RouteID
		applyCalendar(&rec, loc, opts.PeakWindows)
		out = append(out, rec)
	}
	st.Output = len(out)
	return out, st
}

// applyCalendar derives the time features from the observed arrival.
func applyCalendar(rec *models.EnrichedRecord, loc *time.Location, peaks []config.HourRange) {
	observed := rec.ObservedArrivalTime.In(loc)
	rec.ScheduledArrivalTime = rec.ObservedArrivalTime.Add(-time.Duration(rec.ArrivalDelaySeconds) * time.Second)

	hour := observed.Hour()
	dow := (int(observed.Weekday()) + 6) % 7 // Monday = 0
	rec.HourOfDay = hour
	rec.DayOfWeek = dow
	rec.HourSin = math.Sin(2 * math.Pi * float64(hour) / 24)
	rec.HourCos = math.Cos(2 * math.Pi * float64(hour) / 24)
	rec.DaySin = math.Sin(2 * math.Pi * float64(dow) / 7)
	rec.DayCos = math.Cos(2 * math.Pi * float64(dow) / 7)
	rec.IsWeekend = dow >= 5
	rec.IsPeakHour = false
	for _, w := range peaks {
		if w.Contains(hour) {
			rec.IsPeakHour = true
			break
		}
	}
	rec.TimeBucket = truncateLocalHour(observed)
}

// truncateLocalHour drops minutes and below in t's own location. Subtracting
// the wall-clock remainder keeps the result correct across DST transitions
// and for zones with non-hour offsets.
func truncateLocalHour(t time.Time) time.Time {
	rem := time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return t.Add(-rem)
}
