// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/transitpulse/internal/logging"
	"github.com/tomtom215/transitpulse/internal/metrics"
	"github.com/tomtom215/transitpulse/internal/models"
	"github.com/tomtom215/transitpulse/internal/validation"
)

// MetadataContentType is the message metadata key naming the payload format.
const MetadataContentType = "content_type"

// ErrInvalidPayload marks messages that can never be processed. They are
// acked and dropped instead of redelivered.
var ErrInvalidPayload = errors.New("invalid observation payload")

// Consumer reads observation messages from a subscriber and buffers them in
// an Appender.
type Consumer struct {
	sub      message.Subscriber
	topic    string
	appender *Appender
	loc      *time.Location
}

// NewConsumer returns a Consumer for topic. loc resolves service dates of
// GTFS-RT trips without a start date.
func NewConsumer(sub message.Subscriber, topic string, appender *Appender, loc *time.Location) *Consumer {
	if loc == nil {
		loc = time.UTC
	}
	return &Consumer{sub: sub, topic: topic, appender: appender, loc: loc}
}

// Serve consumes until ctx is done, then flushes the appender. It
// implements suture.Service.
func (c *Consumer) Serve(ctx context.Context) error {
	if err := c.appender.Start(ctx); err != nil {
		return err
	}
	messages, err := c.sub.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}
	logging.Info().Str("topic", c.topic).Msg("Ingest consumer started")

	for {
		select {
		case <-ctx.Done():
			return c.stop(ctx)
		case msg, ok := <-messages:
			if !ok {
				return c.stop(ctx)
			}
			c.process(ctx, msg)
		}
	}
}

// String identifies the consumer in supervisor events.
func (c *Consumer) String() string {
	return "ingest-consumer"
}

// stop flushes what is buffered. The subscriber closes its channel on
// cancellation, so either select branch may observe shutdown first.
func (c *Consumer) stop(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := c.appender.Flush(flushCtx); err != nil {
		logging.Error().Err(err).Msg("Final ingest flush failed")
	}
	return ctx.Err()
}

func (c *Consumer) process(ctx context.Context, msg *message.Message) {
	rows, err := c.decode(msg)
	if err != nil {
		metrics.RecordIngest("invalid", 0)
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping observation message")
		msg.Ack()
		return
	}
	if err := c.appender.Append(ctx, rows...); err != nil {
		metrics.RecordIngest("failed", 0)
		logging.Error().Err(err).Str("message_uuid", msg.UUID).Msg("Failed to buffer observations")
		msg.Nack()
		return
	}
	metrics.RecordIngest("appended", len(rows))
	msg.Ack()
}

// decode accepts a GTFS-RT FeedMessage or a JSON ObservationBatch.
func (c *Consumer) decode(msg *message.Message) ([]models.RawObservation, error) {
	if msg.Metadata.Get(MetadataContentType) == ContentTypeProtobuf {
		feed, err := DecodeFeed(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		rows, st := Convert(feed, c.loc)
		logging.Debug().
			Int("trip_updates", st.TripUpdates).
			Int("missing_delay", st.MissingDelay).
			Int("skipped_stops", st.SkippedStops).
			Int("observations", st.Observations).
			Msg("GTFS-RT feed converted")
		return rows, nil
	}
	return DecodeBatch(msg.Payload)
}

// DecodeBatch parses and validates a JSON ObservationBatch.
func DecodeBatch(data []byte) ([]models.RawObservation, error) {
	var batch models.ObservationBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if verr := validation.ValidateStruct(&batch); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, verr)
	}
	return batch.Observations, nil
}

// EncodeBatch serializes an ObservationBatch for publishing.
func EncodeBatch(batch *models.ObservationBatch) ([]byte, error) {
	if verr := validation.ValidateStruct(batch); verr != nil {
		return nil, verr
	}
	return json.Marshal(batch)
}
