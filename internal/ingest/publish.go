// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/transitpulse/internal/models"
)

// PublishFeed publishes a serialized GTFS-Realtime FeedMessage. The payload
// is decoded first so malformed feeds never reach the stream.
func PublishFeed(pub message.Publisher, topic string, data []byte) error {
	if _, err := DecodeFeed(data); err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataContentType, ContentTypeProtobuf)
	if err := pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish feed: %w", err)
	}
	return nil
}

// PublishBatch publishes a validated JSON ObservationBatch.
func PublishBatch(pub message.Publisher, topic string, batch *models.ObservationBatch) error {
	data, err := EncodeBatch(batch)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(MetadataContentType, "application/json")
	if err := pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}
