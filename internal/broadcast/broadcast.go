// Package broadcast provides the pub/sub fan-out used for live UI updates.
// Delivery is fire-and-forget: no guarantee, no backpressure, and a slow or
// absent subscriber never blocks a publisher.
package broadcast

import (
	"context"
)

// Broadcaster publishes message payloads to a topic per conversation and lets
// stream handlers subscribe for live delivery.
type Broadcaster interface {
	Publish(ctx context.Context, conversationID string, payload []byte) error
	Subscribe(ctx context.Context, conversationID string) (Subscription, error)
	Healthy() bool
	Close()
}

// Subscription is a live feed of payloads for one conversation. The channel is
// closed when the subscription ends.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}
