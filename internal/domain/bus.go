package domain

import (
	"context"
	"time"
)

// Topic names for the quote pipeline.
const (
	// TopicQuoteComputed carries every quote the composer produces.
	TopicQuoteComputed = "quote.computed"

	// TopicQuoteSubmitted carries the receipt of each webhook delivery
	// attempt, successful or not.
	TopicQuoteSubmitted = "quote.submitted"

	// TopicCatalogReloaded announces a hot-reload of the rule or service
	// catalog, so remote caches can drop quotes computed against the old
	// catalog.
	TopicCatalogReloaded = "catalog.reloaded"
)

// Event is the typed envelope carried on the bus. Exactly one payload field
// is set, matching the topic. Transports assign ID on publish.
type Event struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`

	Quote   *Quote             `json:"quote,omitempty"`
	Receipt *SubmissionReceipt `json:"receipt,omitempty"`
	Catalog *CatalogChange     `json:"catalog,omitempty"`
}

// SubmissionReceipt records the outcome of forwarding one quote to the
// submission webhook.
type SubmissionReceipt struct {
	QuoteID     string    `json:"quoteId"`
	TenantID    string    `json:"tenantId"`
	Submitted   bool      `json:"submitted"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// CatalogChange describes one catalog hot-reload.
type CatalogChange struct {
	// Catalog is "rules" or "services".
	Catalog string `json:"catalog"`
	Count   int    `json:"count"`
}

// NewQuoteComputedEvent wraps a freshly composed quote for publication.
func NewQuoteComputedEvent(tenantID string, quote *Quote) *Event {
	return &Event{
		TenantID:  tenantID,
		Topic:     TopicQuoteComputed,
		Timestamp: time.Now().UTC(),
		Quote:     quote,
	}
}

// NewQuoteSubmittedEvent wraps a submission receipt for publication.
func NewQuoteSubmittedEvent(tenantID string, receipt *SubmissionReceipt) *Event {
	return &Event{
		TenantID:  tenantID,
		Topic:     TopicQuoteSubmitted,
		Timestamp: time.Now().UTC(),
		Receipt:   receipt,
	}
}

// NewCatalogReloadedEvent announces a catalog hot-reload.
func NewCatalogReloadedEvent(tenantID, catalog string, count int) *Event {
	return &Event{
		TenantID:  tenantID,
		Topic:     TopicCatalogReloaded,
		Timestamp: time.Now().UTC(),
		Catalog:   &CatalogChange{Catalog: catalog, Count: count},
	}
}

// EventHandler processes one delivered event.
type EventHandler func(ctx context.Context, evt *Event) error

// EventBus defines the interface for event-driven communication between the
// quote pipeline stages. Supports Go channels (Community) or NATS (Pro).
// Delivery is scoped by the event's tenant: subscribers only see events for
// the tenant and topic they subscribed to.
type EventBus interface {
	// Publish sends an event. The event must carry TenantID and Topic.
	Publish(ctx context.Context, evt *Event) error

	// Subscribe registers a handler for a tenant's topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, tenantID string, topic string, handler EventHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving events.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}
