package domain

import "time"

// ServiceEndpoint names one aggregate total a pricing formula can reference.
// Each endpoint is a single catalog row: the total variable resolves to the
// aggregated sum of computed prices selected by the endpoint's FilterSpec.
type ServiceEndpoint struct {
	ServiceID   string `json:"serviceId"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// TotalVariable is the variable name formulas use to reference this
	// endpoint's aggregated total, e.g. "bookkeepingTotal".
	TotalVariable string `json:"totalVariable"`

	// BillingFrequency classifies the endpoint's total for the quote's
	// derived recurring figures.
	BillingFrequency string `json:"billingFrequency,omitempty"`

	// Aggregation selects which computed prices contribute to the total.
	// Nil means DefaultFilterSpec.
	Aggregation *FilterSpec `json:"aggregationRules,omitempty"`

	// Position is the endpoint's index in the catalog order.
	Position int `json:"position"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Filter returns the endpoint's aggregation filter, falling back to the
// defaults when none is configured. A partially configured filter keeps the
// default include sets for any field it leaves unspecified, so setting only
// a minimumFee still matches the standard pricing types and frequencies.
func (s *ServiceEndpoint) Filter() FilterSpec {
	if s.Aggregation == nil {
		return DefaultFilterSpec()
	}
	f := *s.Aggregation
	def := DefaultFilterSpec()
	if len(f.IncludeTypes) == 0 {
		f.IncludeTypes = def.IncludeTypes
	}
	if len(f.IncludeFrequencies) == 0 {
		f.IncludeFrequencies = def.IncludeFrequencies
	}
	return f
}

// FilterSpec is the declarative include/exclude predicate the aggregation
// engine applies when summing computed prices into a service total.
type FilterSpec struct {
	IncludeTypes       []string `json:"includeTypes,omitempty"`
	ExcludeTypes       []string `json:"excludeTypes,omitempty"`
	IncludeFrequencies []string `json:"includeBillingFrequencies,omitempty"`
	ExcludeFrequencies []string `json:"excludeBillingFrequencies,omitempty"`

	// MinimumFee raises the aggregated total to this floor when positive.
	MinimumFee float64 `json:"minimumFee,omitempty"`
}

// DefaultFilterSpec returns the filter applied when an endpoint configures
// none: base services and add-ons across all standard billing frequencies,
// no floor.
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		IncludeTypes:       []string{PricingTypeBaseService, PricingTypeAddOn},
		IncludeFrequencies: []string{FrequencyMonthly, FrequencyOneTime, FrequencyAnnual},
	}
}

// Matches reports whether a computed price passes the filter.
func (f FilterSpec) Matches(p ComputedPrice) bool {
	if !contains(f.IncludeTypes, p.PricingType) {
		return false
	}
	if contains(f.ExcludeTypes, p.PricingType) {
		return false
	}
	if !contains(f.IncludeFrequencies, p.BillingFrequency) {
		return false
	}
	if contains(f.ExcludeFrequencies, p.BillingFrequency) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
