package domain

import (
	"time"
)

// Quote is the final output of one evaluation pass: per-service totals plus
// derived top-level figures and the diagnostic trace.
type Quote struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Lines holds one entry per service endpoint, in catalog order.
	Lines []QuoteLine `json:"lines"`

	// Totals maps each endpoint's total variable name to its value.
	Totals map[string]float64 `json:"totals"`

	// Derived top-level figures.
	MonthlyTotal float64 `json:"monthlyTotal"`
	OneTimeTotal float64 `json:"oneTimeTotal"`
	AnnualTotal  float64 `json:"annualTotal"`
	GrandTotal   float64 `json:"grandTotal"`

	// Prices holds every computed rule output from the pass.
	Prices []ComputedPrice `json:"prices,omitempty"`

	// Trace records resolution and evaluation diagnostics from the pass.
	Trace []TraceEvent `json:"trace,omitempty"`

	Timestamp time.Time `json:"timestamp"`

	Metadata QuoteMetadata `json:"metadata"`
}

// QuoteLine is one service endpoint's aggregated total.
type QuoteLine struct {
	ServiceID        string  `json:"serviceId"`
	Name             string  `json:"name,omitempty"`
	TotalVariable    string  `json:"totalVariable"`
	BillingFrequency string  `json:"billingFrequency,omitempty"`
	Total            float64 `json:"total"`
}

// QuoteMetadata carries processing information for the pass.
type QuoteMetadata struct {
	TraceID            string `json:"traceId,omitempty"`
	RulesEvaluated     int    `json:"rulesEvaluated"`
	ServicesAggregated int    `json:"servicesAggregated"`
	Warnings           int    `json:"warnings"`
	EvalMs             int64  `json:"evalMs"`
	TotalMs            int64  `json:"totalMs"`
	EngineVersion      string `json:"engineVersion"`
}

// Empty reports whether the quote carries no non-zero total. Callers use this
// to decide whether to present a "pricing unavailable" state; the engine
// itself never surfaces a user-facing error.
func (q *Quote) Empty() bool {
	for _, line := range q.Lines {
		if line.Total != 0 {
			return false
		}
	}
	return true
}

// TraceEvent is one diagnostic record from an evaluation pass. The engine
// returns these alongside the quote instead of logging from inside the core.
type TraceEvent struct {
	Kind     string  `json:"kind"`
	RuleID   string  `json:"ruleId,omitempty"`
	Variable string  `json:"variable,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// Trace event kinds. All are non-fatal: each degrades to a zero contribution.
const (
	TraceUnresolvedVariable = "unresolved_variable"
	TraceForwardReference   = "forward_reference"
	TraceInvalidExpression  = "invalid_expression"
	TraceEvaluationError    = "evaluation_error"
	TraceEmptyExpression    = "empty_expression"
)
