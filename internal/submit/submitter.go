// Package submit forwards computed quotes to an external webhook and
// publishes submission receipts for downstream consumers.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpricing/kestrel/internal/domain"
)

// Submitter delivers quotes to the configured webhook with retries.
type Submitter struct {
	client *http.Client
	cfg    domain.SubmissionConfig
}

// NewSubmitter creates a webhook submitter from submission config.
func NewSubmitter(cfg domain.SubmissionConfig) *Submitter {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Submitter{
		client: &http.Client{Timeout: timeout},
		cfg:    cfg,
	}
}

// Submit POSTs the quote as JSON to the webhook. Transient failures are
// retried with linear backoff up to MaxRetries; a non-2xx response counts
// as a failure.
func (s *Submitter) Submit(ctx context.Context, quote *domain.Quote) error {
	if s.cfg.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not configured")
	}

	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}

	attempts := s.cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = s.post(ctx, payload, quote)
		if lastErr == nil {
			return nil
		}

		slog.Warn("quote submission attempt failed",
			"quote_id", quote.ID,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr,
		)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return fmt.Errorf("submission failed after %d attempts: %w", attempts, lastErr)
}

func (s *Submitter) post(ctx context.Context, payload []byte, quote *domain.Quote) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", quote.TenantID)
	req.Header.Set("X-Quote-ID", quote.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
