// TransitPulse - Transit Delay Feature Layers and Regional Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/transitpulse

package ingest

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/transitpulse/internal/config"
	"github.com/tomtom215/transitpulse/internal/logging"
)

const (
	maxReconnects = -1
	reconnectWait = 2 * time.Second
	closeTimeout  = 30 * time.Second
	maxDeliver    = 5
	maxAckPending = 1000
)

// NewLogger returns a watermill logger backed by the global zerolog logger.
func NewLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLoggerWithComponent("ingest"))
}

func connectionOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// NewSubscriber returns a durable JetStream subscriber for the observation
// subject. Instances sharing QueueGroup split the stream between them.
func NewSubscriber(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = NewLogger()
	}
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(maxDeliver),
		natsgo.MaxAckPending(maxAckPending),
		natsgo.AckWait(cfg.AckWaitTimeout),
		natsgo.DeliverAll(),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     closeTimeout,
		NatsOptions:      connectionOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    true,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// NewPublisher returns a JetStream publisher for the observation subject.
// Message UUIDs are sent as Nats-Msg-Id so redelivered publishes are
// deduplicated by the stream.
func NewPublisher(cfg *config.NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if logger == nil {
		logger = NewLogger()
	}
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: connectionOptions(logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return pub, nil
}
