// Package bus defines the job queue transport used between publishers and
// report consumers.
package bus

import (
	"context"
	"time"
)

type JobState string

const (
	StateAccepted JobState = "accepted"
	StateClaimed  JobState = "claimed"
	StateDone     JobState = "done"
	StateFailed   JobState = "failed"
)

// Delivery is one claimed message. Payload is passed to the handler untouched.
type Delivery struct {
	ID          string
	Queue       string
	Payload     []byte
	PublishedAt time.Time
}

type PublishResult struct {
	DeliveryID string
	Queue      string
}

// JobBus moves job payloads from publishers to consumers. Claimed deliveries
// are settled exactly once with Ack or Nack; both are terminal.
type JobBus interface {
	Publish(ctx context.Context, queue string, payload []byte) (PublishResult, error)
	Claim(ctx context.Context, queue string, consumerID string, limit int) ([]Delivery, error)
	Ack(ctx context.Context, deliveryID string) error
	Nack(ctx context.Context, deliveryID string, reason string) error
	Ping(ctx context.Context) error
	Close() error
}
