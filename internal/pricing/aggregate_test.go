package pricing

import (
	"encoding/json"
	"testing"

	"github.com/openpricing/kestrel/internal/domain"
)

func seedStore() *PriceStore {
	store := NewPriceStore()
	store.Append(domain.ComputedPrice{
		RuleID: "A", Value: 50, ServiceID: "S",
		PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyMonthly,
	})
	store.Append(domain.ComputedPrice{
		RuleID: "B", Value: 20, ServiceID: "S",
		PricingType: domain.PricingTypeAddOn, BillingFrequency: domain.FrequencyMonthly,
	})
	store.Append(domain.ComputedPrice{
		RuleID: "C", Value: 10, ServiceID: "S",
		PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyAnnual,
	})
	return store
}

func TestAggregateDefaultFilter(t *testing.T) {
	// Annual is in the default include set, so all three entries contribute.
	got := Aggregate(seedStore(), "S", domain.DefaultFilterSpec())
	if got != 80 {
		t.Errorf("Aggregate(S, default) = %v, want 80", got)
	}
}

func TestAggregateExcludesOtherServices(t *testing.T) {
	store := seedStore()
	store.Append(domain.ComputedPrice{
		RuleID: "D", Value: 500, ServiceID: "T",
		PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyMonthly,
	})

	if got := Aggregate(store, "S", domain.DefaultFilterSpec()); got != 80 {
		t.Errorf("Aggregate(S, default) = %v, want 80", got)
	}
}

func TestAggregateExcludeFilters(t *testing.T) {
	filter := domain.DefaultFilterSpec()
	filter.ExcludeFrequencies = []string{domain.FrequencyAnnual}

	if got := Aggregate(seedStore(), "S", filter); got != 70 {
		t.Errorf("Aggregate with Annual excluded = %v, want 70", got)
	}

	filter = domain.DefaultFilterSpec()
	filter.ExcludeTypes = []string{domain.PricingTypeAddOn}

	if got := Aggregate(seedStore(), "S", filter); got != 60 {
		t.Errorf("Aggregate with Add-on excluded = %v, want 60", got)
	}
}

func TestAggregateIncludeFilterIsAuthoritative(t *testing.T) {
	filter := domain.FilterSpec{
		IncludeTypes:       []string{domain.PricingTypeBaseService},
		IncludeFrequencies: []string{domain.FrequencyMonthly},
	}

	if got := Aggregate(seedStore(), "S", filter); got != 50 {
		t.Errorf("Aggregate(base+monthly only) = %v, want 50", got)
	}
}

func TestAggregateMinimumFeeFloor(t *testing.T) {
	filter := domain.DefaultFilterSpec()
	filter.MinimumFee = 100

	if got := Aggregate(seedStore(), "S", filter); got != 100 {
		t.Errorf("Aggregate with floor 100 = %v, want 100", got)
	}

	// The floor only raises; a total above it is untouched.
	filter.MinimumFee = 75
	if got := Aggregate(seedStore(), "S", filter); got != 80 {
		t.Errorf("Aggregate with floor 75 = %v, want 80", got)
	}
}

func TestAggregatePartialFilterKeepsDefaults(t *testing.T) {
	// An endpoint configured with only a minimumFee must keep the default
	// include sets: an empty include set would match nothing and collapse
	// every total to the floor.
	var partial domain.FilterSpec
	if err := json.Unmarshal([]byte(`{"minimumFee": 100}`), &partial); err != nil {
		t.Fatalf("failed to decode filter: %v", err)
	}

	ep := &domain.ServiceEndpoint{ServiceID: "S", Aggregation: &partial}

	store := NewPriceStore()
	store.Append(domain.ComputedPrice{
		RuleID: "A", Value: 150, ServiceID: "S",
		PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyMonthly,
	})

	if got := Aggregate(store, "S", ep.Filter()); got != 150 {
		t.Errorf("Aggregate with minimumFee-only filter = %v, want 150", got)
	}

	// The floor still raises a total below it.
	store2 := NewPriceStore()
	store2.Append(domain.ComputedPrice{
		RuleID: "A", Value: 40, ServiceID: "S",
		PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyMonthly,
	})
	if got := Aggregate(store2, "S", ep.Filter()); got != 100 {
		t.Errorf("Aggregate below floor = %v, want 100", got)
	}

	// An explicit include set narrows matching without reviving the other
	// defaults' absence: only the unspecified fields take defaults.
	narrowed := &domain.ServiceEndpoint{ServiceID: "S", Aggregation: &domain.FilterSpec{
		IncludeTypes: []string{domain.PricingTypeAddOn},
	}}
	if got := Aggregate(seedStore(), "S", narrowed.Filter()); got != 20 {
		t.Errorf("Aggregate with add-on-only filter = %v, want 20", got)
	}
}

func TestAggregatePrefixFallback(t *testing.T) {
	// A store with no metadata at all falls back to rule-id prefix
	// matching, ignoring type/frequency filters.
	store := NewPriceStore()
	store.Append(domain.ComputedPrice{RuleID: "bookkeeping-base", Value: 120})
	store.Append(domain.ComputedPrice{RuleID: "bookkeeping-addon", Value: 30})
	store.Append(domain.ComputedPrice{RuleID: "payroll-base", Value: 75})

	if got := Aggregate(store, "bookkeeping", domain.DefaultFilterSpec()); got != 150 {
		t.Errorf("prefix fallback = %v, want 150", got)
	}
}

func TestAggregatePrefixFallbackNotUsedWithMetadata(t *testing.T) {
	// One entry with metadata disables the fallback for the whole store:
	// metadata is strictly more precise.
	store := NewPriceStore()
	store.Append(domain.ComputedPrice{RuleID: "bookkeeping-legacy", Value: 40})
	store.Append(domain.ComputedPrice{
		RuleID: "bk-1", Value: 60, ServiceID: "bookkeeping",
		PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyMonthly,
	})

	if got := Aggregate(store, "bookkeeping", domain.DefaultFilterSpec()); got != 60 {
		t.Errorf("metadata-present aggregate = %v, want 60", got)
	}
}

func TestAggregateEmptyStore(t *testing.T) {
	if got := Aggregate(NewPriceStore(), "S", domain.DefaultFilterSpec()); got != 0 {
		t.Errorf("empty store aggregate = %v, want 0", got)
	}

	filter := domain.DefaultFilterSpec()
	filter.MinimumFee = 25
	if got := Aggregate(NewPriceStore(), "S", filter); got != 25 {
		t.Errorf("empty store with floor = %v, want 25", got)
	}
}
