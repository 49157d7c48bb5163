// Vigil - Multi-User Web Change Monitor
// Copyright 2026 Vigil contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigil-watch/vigil

// Package events is the in-process event bus. Scan results publish here and
// fan out to subscribers (the websocket hub pushes them to connected
// dashboards).
package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/vigil-watch/vigil/internal/logging"
	"github.com/vigil-watch/vigil/internal/monitor"
)

// TopicScanCompleted carries one message per finished scan.
const TopicScanCompleted = "scan.completed"

// ScanCompleted is the payload published after every scan.
type ScanCompleted struct {
	Username string           `json:"username"`
	Snapshot monitor.Snapshot `json:"snapshot"`
	At       time.Time        `json:"at"`
}

// Bus wraps a watermill gochannel Pub/Sub.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the bus with a buffered in-memory channel per subscriber.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(),
		),
	}
}

// PublishScanCompleted emits a scan result to all subscribers.
func (b *Bus) PublishScanCompleted(ev ScanCompleted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(TopicScanCompleted, msg)
}

// SubscribeScanCompleted returns a channel of decoded scan events. Messages
// that fail to decode are acked and dropped with a log line. The channel
// closes when ctx is canceled.
func (b *Bus) SubscribeScanCompleted(ctx context.Context) (<-chan ScanCompleted, error) {
	messages, err := b.pubsub.Subscribe(ctx, TopicScanCompleted)
	if err != nil {
		return nil, err
	}
	out := make(chan ScanCompleted, 64)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev ScanCompleted
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable scan event")
				msg.Ack()
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				msg.Nack()
				return
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
