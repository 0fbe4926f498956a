// Package quote composes final quotes from rule evaluation passes. It reads
// each service endpoint's aggregated total and derives the top-level
// recurring figures, producing the breakdown the submission and presentation
// collaborators consume.
package quote

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openpricing/kestrel/internal/domain"
	"github.com/openpricing/kestrel/internal/pricing"
)

var tracer = otel.Tracer("kestrel/quote")

// EngineVersion tags quotes with the engine revision that produced them.
const EngineVersion = "kestrel-1.0"

// Composer turns an evaluation pass into a Quote.
type Composer struct {
	engine *pricing.Engine
}

// NewComposer creates a composer over the shared engine.
func NewComposer(engine *pricing.Engine) *Composer {
	return &Composer{engine: engine}
}

// Input carries one recompute request.
type Input struct {
	TenantID  string
	TraceID   string
	Answers   domain.AnswerSet
	StartTime time.Time
}

// Compose runs one evaluation pass and assembles the quote breakdown.
// The computation is synchronous and side-effect-free over the snapshot:
// identical answers and catalogs always produce identical totals.
func (c *Composer) Compose(ctx context.Context, input *Input) *domain.Quote {
	_, span := tracer.Start(ctx, "quote.compose",
		trace.WithAttributes(attribute.String("kestrel.tenant_id", input.TenantID)),
	)
	defer span.End()

	evalStart := time.Now()

	result := c.engine.EvaluateAll(input.Answers)
	evalMs := time.Since(evalStart).Milliseconds()

	q := &domain.Quote{
		ID:        uuid.New().String(),
		TenantID:  input.TenantID,
		Totals:    make(map[string]float64, len(result.Endpoints)),
		Prices:    result.Store.Entries(),
		Trace:     result.Trace.Events(),
		Timestamp: time.Now().UTC(),
	}

	for _, ep := range result.Endpoints {
		total := pricing.Aggregate(result.Store, ep.ServiceID, ep.Filter())
		total = pricing.RoundMoney(total)

		q.Lines = append(q.Lines, domain.QuoteLine{
			ServiceID:        ep.ServiceID,
			Name:             ep.Name,
			TotalVariable:    ep.TotalVariable,
			BillingFrequency: ep.BillingFrequency,
			Total:            total,
		})
		q.Totals[ep.TotalVariable] = total

		switch ep.BillingFrequency {
		case domain.FrequencyMonthly:
			q.MonthlyTotal += total
		case domain.FrequencyOneTime:
			q.OneTimeTotal += total
		case domain.FrequencyAnnual:
			q.AnnualTotal += total
		}
		q.GrandTotal += total
	}

	q.MonthlyTotal = pricing.RoundMoney(q.MonthlyTotal)
	q.OneTimeTotal = pricing.RoundMoney(q.OneTimeTotal)
	q.AnnualTotal = pricing.RoundMoney(q.AnnualTotal)
	q.GrandTotal = pricing.RoundMoney(q.GrandTotal)

	startTime := input.StartTime
	if startTime.IsZero() {
		startTime = evalStart
	}

	q.Metadata = domain.QuoteMetadata{
		TraceID:            input.TraceID,
		RulesEvaluated:     result.Store.Len(),
		ServicesAggregated: len(result.Endpoints),
		Warnings:           result.Trace.Warnings(),
		EvalMs:             evalMs,
		TotalMs:            time.Since(startTime).Milliseconds(),
		EngineVersion:      EngineVersion,
	}

	span.SetAttributes(
		attribute.String("kestrel.quote_id", q.ID),
		attribute.Int("kestrel.rules_evaluated", q.Metadata.RulesEvaluated),
		attribute.Int("kestrel.warnings", q.Metadata.Warnings),
		attribute.Float64("kestrel.grand_total", q.GrandTotal),
	)

	return q
}
