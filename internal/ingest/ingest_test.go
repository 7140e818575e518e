// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"google.golang.org/protobuf/proto"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/rawlog"
)

const testTopic = "transit.observations"

var feedTime = time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)

func testFeed() *gtfs.FeedMessage {
	header := uint64(feedTime.Unix())
	own := uint64(feedTime.Add(-20 * time.Second).Unix())
	arrival := feedTime.Add(-time.Minute).Unix()

	return &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(header),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("1"),
				TripUpdate: &gtfs.TripUpdate{
					Trip: &gtfs.TripDescriptor{
						TripId:      proto.String("T1"),
						RouteId:     proto.String("99"),
						DirectionId: proto.Uint32(1),
						StartDate:   proto.String("20260302"),
					},
					Timestamp: proto.Uint64(own),
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{
						{
							StopSequence: proto.Uint32(4),
							StopId:       proto.String("s-4"),
							Arrival:      &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(120), Time: proto.Int64(arrival)},
						},
						{
							StopSequence: proto.Uint32(5),
							StopId:       proto.String("s-5"),
							Arrival:      &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(150)},
						},
						{
							StopSequence: proto.Uint32(6),
							StopId:       proto.String("s-6"),
							Departure:    &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(90)},
						},
						{
							StopSequence:         proto.Uint32(7),
							StopId:               proto.String("s-7"),
							ScheduleRelationship: gtfs.TripUpdate_StopTimeUpdate_SKIPPED.Enum(),
						},
						{
							StopId:  proto.String("s-8"),
							Arrival: &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(10)},
						},
					},
				},
			},
			{
				Id: proto.String("2"),
				TripUpdate: &gtfs.TripUpdate{
					Trip: &gtfs.TripDescriptor{TripId: proto.String("T2")},
					StopTimeUpdate: []*gtfs.TripUpdate_StopTimeUpdate{{
						StopSequence: proto.Uint32(1),
						StopId:       proto.String("s-1"),
						Arrival:      &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(-30), Time: proto.Int64(arrival)},
					}},
				},
			},
			{
				Id: proto.String("3"),
				TripUpdate: &gtfs.TripUpdate{
					Trip: &gtfs.TripDescriptor{
						TripId:               proto.String("T3"),
						ScheduleRelationship: gtfs.TripDescriptor_CANCELED.Enum(),
					},
				},
			},
			{
				Id:      proto.String("4"),
				Vehicle: &gtfs.VehiclePosition{},
			},
		},
	}
}

func TestConvert(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/Vancouver")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	rows, st := Convert(testFeed(), loc)

	if st.Entities != 4 || st.TripUpdates != 3 || st.CanceledTrips != 1 {
		t.Errorf("entity stats = %+v", st)
	}
	if st.MissingDelay != 1 || st.SkippedStops != 1 || st.MissingSequence != 1 {
		t.Errorf("stop stats = %+v", st)
	}
	if len(rows) != 3 || st.Observations != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}

	first := rows[0]
	if first.TripID != "T1" || first.StopSequence != 4 || first.StopID != "s-4" || first.RouteID != "99" {
		t.Errorf("first row = %+v", first)
	}
	if first.DirectionID != 1 || first.ArrivalDelaySeconds != 120 || first.ServiceDate != "20260302" {
		t.Errorf("first row = %+v", first)
	}
	if !first.FeedTimestamp.Equal(feedTime.Add(-20 * time.Second)) {
		t.Errorf("FeedTimestamp = %v, want the trip update timestamp", first.FeedTimestamp)
	}
	if !first.ObservedArrivalTime.Equal(feedTime.Add(-time.Minute)) {
		t.Errorf("ObservedArrivalTime = %v", first.ObservedArrivalTime)
	}

	if !rows[1].ObservedArrivalTime.IsZero() {
		t.Error("delay-only update should leave the observed arrival unset")
	}

	// T2 has no start date or own timestamp: 17:30 UTC is 09:30 in Vancouver.
	second := rows[2]
	if second.ServiceDate != "20260302" || !second.FeedTimestamp.Equal(feedTime) {
		t.Errorf("fallback row = %+v", second)
	}
}

func TestDecodeFeed(t *testing.T) {
	t.Parallel()

	data, err := proto.Marshal(testFeed())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	feed, err := DecodeFeed(data)
	if err != nil {
		t.Fatalf("DecodeFeed() error = %v", err)
	}
	if len(feed.GetEntity()) != 4 {
		t.Errorf("entities = %d", len(feed.GetEntity()))
	}
	if _, err := DecodeFeed([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("DecodeFeed accepted garbage")
	}
}

func validBatch() *models.ObservationBatch {
	return &models.ObservationBatch{
		Source: "test",
		Observations: []models.RawObservation{{
			TripID:              "T1",
			StopSequence:        1,
			ServiceDate:         "20260302",
			StopID:              "s-1",
			ObservedArrivalTime: feedTime,
			ArrivalDelaySeconds: 45,
			FeedTimestamp:       feedTime,
		}},
	}
}

func TestBatchRoundTripValidation(t *testing.T) {
	t.Parallel()

	data, err := EncodeBatch(validBatch())
	if err != nil {
		t.Fatalf("EncodeBatch() error = %v", err)
	}
	rows, err := DecodeBatch(data)
	if err != nil {
		t.Fatalf("DecodeBatch() error = %v", err)
	}
	if len(rows) != 1 || rows[0].ArrivalDelaySeconds != 45 {
		t.Errorf("rows = %+v", rows)
	}

	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"empty batch", `{"source":"x","observations":[]}`},
		{"missing trip", `{"source":"x","observations":[{"stop_sequence":1,"service_date":"20260302","stop_id":"s","feed_timestamp":"2026-03-02T17:30:00Z"}]}`},
		{"bad service date", `{"source":"x","observations":[{"trip_id":"T","stop_sequence":1,"service_date":"2026-03-02","stop_id":"s","feed_timestamp":"2026-03-02T17:30:00Z"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeBatch([]byte(tt.data)); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("DecodeBatch() error = %v, want %v", err, ErrInvalidPayload)
			}
		})
	}
}

type flakyStore struct {
	mu     sync.Mutex
	fail   bool
	rows   []models.RawObservation
	calls  int
	nextID int64
}

func (s *flakyStore) Append(_ context.Context, rows []models.RawObservation) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, errors.New("database is locked")
	}
	ids := make([]int64, len(rows))
	for i := range rows {
		s.nextID++
		ids[i] = s.nextID
	}
	s.rows = append(s.rows, rows...)
	return ids, nil
}

func (s *flakyStore) snapshot() []models.RawObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RawObservation(nil), s.rows...)
}

func row(seq int) models.RawObservation {
	return models.RawObservation{TripID: "T", StopSequence: seq, ServiceDate: "20260302", StopID: "s", FeedTimestamp: feedTime}
}

func TestNewAppenderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewAppender(nil, AppenderConfig{BatchSize: 1, FlushInterval: time.Second}); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := NewAppender(&flakyStore{}, AppenderConfig{FlushInterval: time.Second}); err == nil {
		t.Error("zero batch size accepted")
	}
	if _, err := NewAppender(&flakyStore{}, AppenderConfig{BatchSize: 1}); err == nil {
		t.Error("zero flush interval accepted")
	}
}

func TestAppenderFlushesInOrderAndChunks(t *testing.T) {
	t.Parallel()

	store := &flakyStore{}
	a, err := NewAppender(store, AppenderConfig{BatchSize: 100, FlushInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}
	ctx := context.Background()
	for i := range 5 {
		if err := a.Append(ctx, row(i)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	got := store.snapshot()
	if len(got) != 5 {
		t.Fatalf("store has %d rows, want 5", len(got))
	}
	for i, r := range got {
		if r.StopSequence != i {
			t.Errorf("row %d has sequence %d", i, r.StopSequence)
		}
	}
	st := a.Stats()
	if st.Received != 5 || st.Flushed != 5 || st.BufferSize != 0 || st.FlushCount != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if err := a.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := a.Append(ctx, row(9)); err == nil {
		t.Error("Append after Close succeeded")
	}
}

func TestAppenderRetainsRowsOnFailure(t *testing.T) {
	t.Parallel()

	store := &flakyStore{fail: true}
	a, err := NewAppender(store, AppenderConfig{BatchSize: 2, FlushInterval: time.Hour, BreakerThreshold: 10})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}
	ctx := context.Background()
	a.mu.Lock()
	a.buffer = append(a.buffer, row(1), row(2), row(3))
	a.mu.Unlock()

	if err := a.Flush(ctx); err == nil {
		t.Fatal("Flush() succeeded against a failing store")
	}
	st := a.Stats()
	if st.BufferSize != 3 || st.ErrorCount != 1 || st.LastError == "" {
		t.Errorf("Stats() after failure = %+v", st)
	}

	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("Flush() after recovery error = %v", err)
	}
	got := store.snapshot()
	if len(got) != 3 || got[0].StopSequence != 1 || got[2].StopSequence != 3 {
		t.Errorf("store rows = %+v", got)
	}
}

func TestAppenderBreakerOpens(t *testing.T) {
	t.Parallel()

	store := &flakyStore{fail: true}
	a, err := NewAppender(store, AppenderConfig{BatchSize: 10, FlushInterval: time.Hour, BreakerThreshold: 2, BreakerTimeout: time.Hour})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}
	ctx := context.Background()
	if err := a.Append(ctx, row(1)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	for range 4 {
		_ = a.Flush(ctx)
	}
	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	if calls != 2 {
		t.Errorf("store calls = %d, want 2 before the breaker opened", calls)
	}
	if st := a.Stats(); st.BreakerState != "open" || st.BufferSize != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestConsumerAppendsToRawLog(t *testing.T) {
	t.Parallel()

	logger := watermill.NopLogger{}
	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, logger)
	t.Cleanup(func() { _ = pubsub.Close() })

	raw := rawlog.NewMemory()
	a, err := NewAppender(raw, AppenderConfig{BatchSize: 100, FlushInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewAppender() error = %v", err)
	}
	c := NewConsumer(pubsub, testTopic, a, time.UTC)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx) }()

	if err := PublishBatch(pubsub, testTopic, validBatch()); err != nil {
		t.Fatalf("PublishBatch() error = %v", err)
	}
	data, err := proto.Marshal(testFeed())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := PublishFeed(pubsub, testTopic, data); err != nil {
		t.Fatalf("PublishFeed() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, _ := raw.Count(context.Background())
		if n == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("raw log has %d rows, want 4", n)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestPublishFeedRejectsGarbage(t *testing.T) {
	t.Parallel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubsub.Close() })
	if err := PublishFeed(pubsub, testTopic, []byte{0xff, 0xff}); err == nil {
		t.Error("PublishFeed accepted an undecodable payload")
	}
}

func TestListenAddr(t *testing.T) {
	t.Parallel()

	host, port, err := listenAddr("nats://127.0.0.1:4222")
	if err != nil || host != "127.0.0.1" || port != 4222 {
		t.Errorf("listenAddr() = %q, %d, %v", host, port, err)
	}
	if _, _, err := listenAddr("nats://localhost"); err == nil {
		t.Error("URL without a port accepted")
	}
}

func TestEmbeddedServer(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a NATS server")
	}
	t.Parallel()

	s, err := NewEmbeddedServer(&config.NATSConfig{URL: "nats://127.0.0.1:-1", StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error = %v", err)
	}
	if !s.IsRunning() || s.ClientURL() == "" {
		t.Errorf("server not running at %q", s.ClientURL())
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
