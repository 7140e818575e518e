// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package models

import (
	"fmt"
	"time"
)

// ServiceDateLayout is the GTFS service date format.
const ServiceDateLayout = "20060102"

// RawObservation is one stop-time update as polled from the realtime feed.
// ID is assigned by the raw log on append and increases strictly.
type RawObservation struct {
	ID                  int64     `json:"id"`
	TripID              string    `json:"trip_id" validate:"required"`
	StopSequence        int       `json:"stop_sequence" validate:"gte=0"`
	ServiceDate         string    `json:"service_date" validate:"required,service_date"`
	StopID              string    `json:"stop_id" validate:"required"`
	RouteID             string    `json:"route_id"`
	DirectionID         int       `json:"direction_id" validate:"oneof=0 1"`
	ObservedArrivalTime time.Time `json:"observed_arrival_time"`
	ArrivalDelaySeconds int       `json:"arrival_delay_seconds"`
	FeedTimestamp       time.Time `json:"feed_timestamp" validate:"required"`
}

// Key returns the natural key shared by repeated polls of the same stop event.
func (o *RawObservation) Key() ObservationKey {
	return ObservationKey{TripID: o.TripID, StopSequence: o.StopSequence, ServiceDate: o.ServiceDate}
}

// ObservationKey identifies one scheduled stop event.
type ObservationKey struct {
	TripID       string `json:"trip_id"`
	StopSequence int    `json:"stop_sequence"`
	ServiceDate  string `json:"service_date"`
}

// String renders the key for logs.
func (k ObservationKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.ServiceDate, k.TripID, k.StopSequence)
}

// Less orders keys by service date, trip, then stop sequence.
func (k ObservationKey) Less(o ObservationKey) bool {
	if k.ServiceDate != o.ServiceDate {
		return k.ServiceDate < o.ServiceDate
	}
	if k.TripID != o.TripID {
		return k.TripID < o.TripID
	}
	return k.StopSequence < o.StopSequence
}

// LatestObservation is the Base layer row: the newest valid poll for a key.
// RawID points back at the selected raw row.
type LatestObservation struct {
	RawObservation
	RawID int64 `json:"raw_id"`
}

// ObservationBatch is the transport envelope for raw observations.
type ObservationBatch struct {
	Source       string           `json:"source" validate:"required"`
	Observations []RawObservation `json:"observations" validate:"required,min=1,dive"`
}
