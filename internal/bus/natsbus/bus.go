// Package natsbus carries report jobs over core NATS. Each queue name is a
// subject and consumers share it through a queue group, so every message is
// handed to one consumer at most once. Ack and Nack have nothing to settle.
package natsbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/reportq/reportq/internal/bus"
)

const (
	headerDeliveryID  = "Reportq-Delivery-Id"
	headerPublishedAt = "Reportq-Published-At"

	defaultQueueGroup = "reportq-consumers"
	defaultClaimWait  = time.Second
)

type Subscription interface {
	NextMsgWithContext(ctx context.Context) (*nats.Msg, error)
	Unsubscribe() error
}

type Client interface {
	PublishMsg(msg *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	SubscribeGroup(subject, group string) (Subscription, error)
	Close()
}

type Options struct {
	URL        string
	Name       string
	QueueGroup string
	// ClaimWait bounds how long Claim blocks for the first message.
	ClaimWait time.Duration
}

type JobBus struct {
	client    Client
	group     string
	claimWait time.Duration
	clock     func() time.Time
	newID     func() string

	mu   sync.Mutex
	subs map[string]Subscription
}

func Connect(opts Options) (*JobBus, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	name := opts.Name
	if name == "" {
		name = "reportq"
	}
	conn, err := nats.Connect(opts.URL,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %q: %w", opts.URL, err)
	}
	return NewWithClient(&connClient{Conn: conn}, opts), nil
}

func NewWithClient(client Client, opts Options) *JobBus {
	group := strings.TrimSpace(opts.QueueGroup)
	if group == "" {
		group = defaultQueueGroup
	}
	wait := opts.ClaimWait
	if wait <= 0 {
		wait = defaultClaimWait
	}
	return &JobBus{
		client:    client,
		group:     group,
		claimWait: wait,
		clock:     time.Now,
		newID:     uuid.NewString,
		subs:      map[string]Subscription{},
	}
}

func (b *JobBus) Publish(ctx context.Context, queue string, payload []byte) (bus.PublishResult, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return bus.PublishResult{}, fmt.Errorf("queue name is required")
	}
	if len(payload) == 0 {
		return bus.PublishResult{}, fmt.Errorf("payload is required")
	}

	deliveryID := b.newID()
	msg := nats.NewMsg(queue)
	msg.Data = payload
	msg.Header.Set(headerDeliveryID, deliveryID)
	msg.Header.Set(headerPublishedAt, b.clock().UTC().Format(time.RFC3339Nano))

	if err := b.client.PublishMsg(msg); err != nil {
		return bus.PublishResult{}, fmt.Errorf("publish job to %q: %w", queue, err)
	}
	if err := b.client.FlushWithContext(ctx); err != nil {
		return bus.PublishResult{}, fmt.Errorf("flush publish to %q: %w", queue, err)
	}
	return bus.PublishResult{DeliveryID: deliveryID, Queue: queue}, nil
}

// Claim waits up to ClaimWait for the first message and then takes whatever
// else is already buffered, up to limit. A quiet queue yields no deliveries
// and no error.
func (b *JobBus) Claim(ctx context.Context, queue string, _ string, limit int) ([]bus.Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	sub, err := b.subscription(queue)
	if err != nil {
		return nil, err
	}

	deliveries := make([]bus.Delivery, 0, limit)
	wait := b.claimWait
	for len(deliveries) < limit {
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		msg, err := sub.NextMsgWithContext(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return deliveries, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				return deliveries, nil
			}
			return deliveries, fmt.Errorf("receive from %q: %w", queue, err)
		}
		deliveries = append(deliveries, b.delivery(queue, msg))
		wait = time.Millisecond
	}
	return deliveries, nil
}

func (b *JobBus) delivery(queue string, msg *nats.Msg) bus.Delivery {
	out := bus.Delivery{Queue: queue, Payload: msg.Data}
	if msg.Header != nil {
		out.ID = msg.Header.Get(headerDeliveryID)
		if raw := msg.Header.Get(headerPublishedAt); raw != "" {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				out.PublishedAt = ts
			}
		}
	}
	if out.ID == "" {
		out.ID = b.newID()
	}
	if out.PublishedAt.IsZero() {
		out.PublishedAt = b.clock().UTC()
	}
	return out
}

func (b *JobBus) subscription(queue string) (Subscription, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[queue]; ok {
		return sub, nil
	}
	sub, err := b.client.SubscribeGroup(queue, b.group)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", queue, err)
	}
	b.subs[queue] = sub
	return sub, nil
}

func (b *JobBus) Ack(context.Context, string) error { return nil }

func (b *JobBus) Nack(context.Context, string, string) error { return nil }

func (b *JobBus) Ping(ctx context.Context) error {
	return b.client.FlushWithContext(ctx)
}

func (b *JobBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for queue, sub := range b.subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %q: %w", queue, err))
		}
		delete(b.subs, queue)
	}
	b.client.Close()
	return errors.Join(errs...)
}

type connClient struct {
	*nats.Conn
}

func (c *connClient) SubscribeGroup(subject, group string) (Subscription, error) {
	return c.Conn.QueueSubscribeSync(subject, group)
}

var _ bus.JobBus = (*JobBus)(nil)
