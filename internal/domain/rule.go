package domain

// PricingRule defines one pricing formula in the catalog.
// Rules are stored and evaluated in catalog order: a rule may reference the
// computed value of a rule that appears before it, never one after.
type PricingRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is the pricing formula. It may contain {{variableName}}
	// placeholders plus arithmetic, comparison and ternary syntax.
	Expression string `json:"expression"`

	// Optional clamp bounds applied to the evaluated value.
	MinimumValue *float64 `json:"minimumValue,omitempty"`
	MaximumValue *float64 `json:"maximumValue,omitempty"`

	// Aggregation metadata, supplied by the catalog row.
	ServiceID        string `json:"serviceId"`
	PricingType      string `json:"pricingType"`
	BillingFrequency string `json:"billingFrequency"`

	// Position is the rule's index in the catalog order.
	Position int `json:"position"`

	Enabled bool `json:"enabled"`
}

// ComputedPrice is the output of evaluating one PricingRule, enriched with
// the metadata the aggregation engine filters on.
type ComputedPrice struct {
	RuleID           string  `json:"ruleId"`
	Value            float64 `json:"value"`
	ServiceID        string  `json:"serviceId"`
	PricingType      string  `json:"pricingType"`
	BillingFrequency string  `json:"billingFrequency"`
}

// HasMetadata reports whether the entry carries any aggregation metadata.
func (p ComputedPrice) HasMetadata() bool {
	return p.ServiceID != "" || p.PricingType != "" || p.BillingFrequency != ""
}

// Pricing types recognized by the default aggregation filter.
const (
	PricingTypeBaseService = "Base Service"
	PricingTypeAddOn       = "Add-on"
	PricingTypeDiscount    = "Discount"
)

// Billing frequencies recognized by the default aggregation filter.
const (
	FrequencyMonthly = "Monthly"
	FrequencyOneTime = "One-Time Fee"
	FrequencyAnnual  = "Annual"
)

// RuleRefPrefix addresses another rule's computed value from an expression,
// e.g. {{pricingRule.bookkeeping-base}}.
const RuleRefPrefix = "pricingRule."

// RecurringRateVariable is the reserved variable name for the aggregate
// current recurring bookkeeping rate.
const RecurringRateVariable = "currentRecurringRate"

// DefaultRecurringRate is returned for RecurringRateVariable when no
// bookkeeping price has been computed yet.
const DefaultRecurringRate = 105
