package submit

import (
	"context"
	"log/slog"
	"time"

	"github.com/openpricing/kestrel/internal/domain"
)

// Worker consumes computed quotes from the EventBus and forwards them to
// the submission webhook, publishing a receipt per quote.
type Worker struct {
	bus       domain.EventBus
	submitter *Submitter
	enabled   bool

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process.
	TenantIDs []string
}

// NewWorker creates a submission worker.
func NewWorker(bus domain.EventBus, cfg domain.SubmissionConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		submitter: NewSubmitter(cfg),
		enabled:   cfg.Enabled,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the quote.computed topic for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start submission worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("submission workers started",
		"tenant_count", len(cfg.TenantIDs),
		"enabled", w.enabled,
	)

	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicQuoteComputed, func(ctx context.Context, evt *domain.Event) error {
		return w.processQuote(ctx, tenantID, evt)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("submission worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicQuoteComputed,
	)

	return nil
}

// processQuote submits one computed quote and publishes the receipt.
func (w *Worker) processQuote(ctx context.Context, tenantID string, evt *domain.Event) error {
	q := evt.Quote
	if q == nil {
		slog.Error("quote.computed event without quote payload", "event_id", evt.ID)
		return nil
	}

	if q.TenantID != "" {
		tenantID = q.TenantID
	}

	receipt := &domain.SubmissionReceipt{
		QuoteID:     q.ID,
		TenantID:    tenantID,
		SubmittedAt: time.Now().UTC(),
	}

	if w.enabled {
		if err := w.submitter.Submit(ctx, q); err != nil {
			slog.Error("quote submission failed",
				"quote_id", q.ID,
				"tenant_id", tenantID,
				"error", err,
			)
			receipt.Error = err.Error()
		} else {
			receipt.Submitted = true
			slog.Info("quote submitted",
				"quote_id", q.ID,
				"tenant_id", tenantID,
				"grand_total", q.GrandTotal,
			)
		}
	}

	if err := w.bus.Publish(ctx, domain.NewQuoteSubmittedEvent(tenantID, receipt)); err != nil {
		slog.Error("failed to publish submission receipt",
			"quote_id", q.ID,
			"error", err,
		)
	}

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("submission workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
