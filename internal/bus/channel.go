// Package bus carries the quote pipeline's events between its stages: the
// API publishes computed quotes and catalog reloads, the submission worker
// consumes quotes and publishes receipts.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/openpricing/kestrel/internal/domain"
)

// subKey scopes a subscriber list to one tenant's topic.
type subKey struct {
	tenantID string
	topic    string
}

// ChannelBus is the Community tier bus: in-process delivery over buffered
// channels. Publish never blocks; when a subscriber's buffer is full the
// event is dropped for that subscriber and counted.
type ChannelBus struct {
	mu     sync.RWMutex
	buffer int
	subs   map[subKey][]*channelSubscription
	closed bool

	delivered atomic.Int64
	dropped   atomic.Int64
}

type channelSubscription struct {
	key     subKey
	handler domain.EventHandler
	events  chan *domain.Event
	cancel  context.CancelFunc
}

// NewChannelBus creates an in-process bus with the given per-subscriber
// buffer size.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		buffer: bufferSize,
		subs:   make(map[subKey][]*channelSubscription),
	}
}

// Publish delivers an event to every subscriber of its tenant and topic.
func (b *ChannelBus) Publish(ctx context.Context, evt *domain.Event) error {
	if err := validateEvent(evt); err != nil {
		return err
	}
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := b.subs[subKey{evt.TenantID, evt.Topic}]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- evt:
			b.delivered.Add(1)
		default:
			b.dropped.Add(1)
			slog.Warn("event dropped, subscriber buffer full",
				"topic", evt.Topic,
				"tenant_id", evt.TenantID,
				"event_id", evt.ID,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for one tenant's topic. Each subscriber
// drains its own buffer on a dedicated goroutine, so a slow handler never
// stalls publishers or other subscribers.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.EventHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		key:     subKey{tenantID, topic},
		handler: handler,
		events:  make(chan *domain.Event, b.buffer),
		cancel:  cancel,
	}

	go sub.drain(subCtx)

	b.subs[sub.key] = append(b.subs[sub.key], sub)
	return sub, nil
}

// drain dispatches buffered events to the handler until the subscription is
// cancelled. Handler errors are the handler's problem; delivery continues.
func (s *channelSubscription) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.events:
			if evt != nil {
				_ = s.handler(ctx, evt)
			}
		}
	}
}

// Ping reports bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close cancels every subscription and rejects further operations.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.cancel()
			close(sub.events)
		}
	}
	b.subs = make(map[subKey][]*channelSubscription)
	return nil
}

// Stats reports delivery counters since start.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns delivery counters.
func (b *ChannelBus) Stats() Stats {
	return Stats{
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Unsubscribe stops receiving events.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.key.topic
}

// validateEvent checks the envelope an implementation is about to carry:
// tenant and topic are required, and a pipeline topic must carry its
// matching payload.
func validateEvent(evt *domain.Event) error {
	if evt == nil {
		return fmt.Errorf("event is required")
	}
	if evt.TenantID == "" {
		return fmt.Errorf("event tenantID is required")
	}
	if evt.Topic == "" {
		return fmt.Errorf("event topic is required")
	}
	switch evt.Topic {
	case domain.TopicQuoteComputed:
		if evt.Quote == nil {
			return fmt.Errorf("%s event requires a quote payload", evt.Topic)
		}
	case domain.TopicQuoteSubmitted:
		if evt.Receipt == nil {
			return fmt.Errorf("%s event requires a receipt payload", evt.Topic)
		}
	case domain.TopicCatalogReloaded:
		if evt.Catalog == nil {
			return fmt.Errorf("%s event requires a catalog payload", evt.Topic)
		}
	}
	return nil
}
