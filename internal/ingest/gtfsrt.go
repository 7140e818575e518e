// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ingest

import (
	"fmt"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/tomtom215/transitpulse/internal/models"
)

// ContentTypeProtobuf marks a message payload as a serialized GTFS-Realtime
// FeedMessage. Any other content type is decoded as an ObservationBatch.
const ContentTypeProtobuf = "application/x-protobuf"

// ConvertStats counts what Convert skipped.
type ConvertStats struct {
	Entities        int
	TripUpdates     int
	MissingTripID   int
	CanceledTrips   int
	MissingSequence int
	MissingStopID   int
	SkippedStops    int
	MissingDelay    int
	Observations    int
}

// DecodeFeed parses a serialized GTFS-Realtime FeedMessage.
func DecodeFeed(data []byte) (*gtfs.FeedMessage, error) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return nil, fmt.Errorf("unmarshal GTFS-RT feed: %w", err)
	}
	return feed, nil
}

// Convert turns the stop-time updates of feed into raw observations.
//
// One row is produced per stop-time update that carries a stop sequence, a
// stop ID and an arrival delay. The observed arrival is the arrival event
// time and stays zero when the feed gives only a delay; the Base layer drops
// such rows. The feed timestamp is the trip update's own timestamp, falling
// back to the header's. The service date is the trip's start date, falling
// back to the feed timestamp's local date in loc. Canceled trips and skipped
// or no-data stops are ignored.
func Convert(feed *gtfs.FeedMessage, loc *time.Location) ([]models.RawObservation, ConvertStats) {
	var st ConvertStats
	if loc == nil {
		loc = time.UTC
	}
	headerTS := feed.GetHeader().GetTimestamp()

	var out []models.RawObservation
	for _, entity := range feed.GetEntity() {
		st.Entities++
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		st.TripUpdates++

		trip := tu.GetTrip()
		if trip.GetTripId() == "" {
			st.MissingTripID++
			continue
		}
		if trip.GetScheduleRelationship() == gtfs.TripDescriptor_CANCELED {
			st.CanceledTrips++
			continue
		}

		ts := tu.GetTimestamp()
		if ts == 0 {
			ts = headerTS
		}
		feedTS := time.Unix(int64(ts), 0).UTC()
		serviceDate := trip.GetStartDate()
		if serviceDate == "" {
			serviceDate = feedTS.In(loc).Format(models.ServiceDateLayout)
		}

		for _, stu := range tu.GetStopTimeUpdate() {
			switch stu.GetScheduleRelationship() {
			case gtfs.TripUpdate_StopTimeUpdate_SKIPPED, gtfs.TripUpdate_StopTimeUpdate_NO_DATA:
				st.SkippedStops++
				continue
			}
			if stu.StopSequence == nil {
				st.MissingSequence++
				continue
			}
			if stu.GetStopId() == "" {
				st.MissingStopID++
				continue
			}
			arrival := stu.GetArrival()
			if arrival == nil || arrival.Delay == nil {
				st.MissingDelay++
				continue
			}

			obs := models.RawObservation{
				TripID:              trip.GetTripId(),
				StopSequence:        int(stu.GetStopSequence()),
				ServiceDate:         serviceDate,
				StopID:              stu.GetStopId(),
				RouteID:             trip.GetRouteId(),
				DirectionID:         int(trip.GetDirectionId()),
				ArrivalDelaySeconds: int(arrival.GetDelay()),
				FeedTimestamp:       feedTS,
			}
			if arrival.Time != nil {
				obs.ObservedArrivalTime = time.Unix(arrival.GetTime(), 0).UTC()
			}
			out = append(out, obs)
		}
	}
	st.Observations = len(out)
	return out, st
}
