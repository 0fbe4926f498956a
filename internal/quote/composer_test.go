package quote

import (
	"context"
	"reflect"
	"testing"

	"github.com/openpricing/kestrel/internal/domain"
	"github.com/openpricing/kestrel/internal/pricing"
)

func testEngine() *pricing.Engine {
	engine := pricing.NewEngine()

	engine.LoadRules([]*domain.PricingRule{
		{
			ID: "bookkeeping-base", Expression: "{{income}} * 0.1",
			ServiceID: "bookkeeping", PricingType: domain.PricingTypeBaseService,
			BillingFrequency: domain.FrequencyMonthly, Position: 0, Enabled: true,
		},
		{
			ID: "bookkeeping-cleanup", Expression: "250",
			ServiceID: "bookkeeping", PricingType: domain.PricingTypeAddOn,
			BillingFrequency: domain.FrequencyOneTime, Position: 1, Enabled: true,
		},
		{
			ID: "payroll-base", Expression: "{{employees}} * 6 + 39",
			ServiceID: "payroll", PricingType: domain.PricingTypeBaseService,
			BillingFrequency: domain.FrequencyMonthly, Position: 2, Enabled: true,
		},
	})

	engine.LoadEndpoints([]*domain.ServiceEndpoint{
		{
			ServiceID: "bookkeeping", TotalVariable: "bookkeepingTotal",
			BillingFrequency: domain.FrequencyMonthly, Position: 0, Enabled: true,
			Aggregation: &domain.FilterSpec{
				IncludeTypes:       []string{domain.PricingTypeBaseService, domain.PricingTypeAddOn},
				IncludeFrequencies: []string{domain.FrequencyMonthly},
			},
		},
		{
			ServiceID: "payroll", TotalVariable: "payrollTotal",
			BillingFrequency: domain.FrequencyMonthly, Position: 1, Enabled: true,
		},
		{
			ServiceID: "bookkeeping", Name: "Cleanup", TotalVariable: "cleanupTotal",
			BillingFrequency: domain.FrequencyOneTime, Position: 2, Enabled: true,
			Aggregation: &domain.FilterSpec{
				IncludeTypes:       []string{domain.PricingTypeAddOn},
				IncludeFrequencies: []string{domain.FrequencyOneTime},
			},
		},
	})

	return engine
}

func testAnswers() domain.AnswerSet {
	return domain.AnswerSet{
		"income":    2000.0,
		"employees": 10,
	}
}

func TestComposeBreakdown(t *testing.T) {
	composer := NewComposer(testEngine())

	q := composer.Compose(context.Background(), &Input{
		TenantID: "tenant-1",
		Answers:  testAnswers(),
	})

	if len(q.Lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(q.Lines))
	}

	// bookkeeping-base: 2000*0.1 = 200 (Monthly); cleanup 250 (One-Time).
	if q.Totals["bookkeepingTotal"] != 200 {
		t.Errorf("bookkeepingTotal = %v, want 200", q.Totals["bookkeepingTotal"])
	}
	if q.Totals["payrollTotal"] != 99 {
		t.Errorf("payrollTotal = %v, want 99", q.Totals["payrollTotal"])
	}
	if q.Totals["cleanupTotal"] != 250 {
		t.Errorf("cleanupTotal = %v, want 250", q.Totals["cleanupTotal"])
	}

	if q.MonthlyTotal != 299 {
		t.Errorf("MonthlyTotal = %v, want 299", q.MonthlyTotal)
	}
	if q.OneTimeTotal != 250 {
		t.Errorf("OneTimeTotal = %v, want 250", q.OneTimeTotal)
	}
	if q.GrandTotal != 549 {
		t.Errorf("GrandTotal = %v, want 549", q.GrandTotal)
	}

	if q.Metadata.RulesEvaluated != 3 {
		t.Errorf("RulesEvaluated = %d, want 3", q.Metadata.RulesEvaluated)
	}
	if q.Metadata.ServicesAggregated != 3 {
		t.Errorf("ServicesAggregated = %d, want 3", q.Metadata.ServicesAggregated)
	}
	if q.Metadata.EngineVersion != EngineVersion {
		t.Errorf("EngineVersion = %q", q.Metadata.EngineVersion)
	}
}

func TestComposeLinesFollowCatalogOrder(t *testing.T) {
	composer := NewComposer(testEngine())

	q := composer.Compose(context.Background(), &Input{TenantID: "t", Answers: testAnswers()})

	order := []string{"bookkeepingTotal", "payrollTotal", "cleanupTotal"}
	for i, want := range order {
		if q.Lines[i].TotalVariable != want {
			t.Errorf("line %d = %q, want %q", i, q.Lines[i].TotalVariable, want)
		}
	}
}

func TestComposeDeterministic(t *testing.T) {
	composer := NewComposer(testEngine())
	answers := testAnswers()

	first := composer.Compose(context.Background(), &Input{TenantID: "t", Answers: answers})

	for i := 0; i < 10; i++ {
		again := composer.Compose(context.Background(), &Input{TenantID: "t", Answers: answers})
		if !reflect.DeepEqual(first.Totals, again.Totals) {
			t.Fatalf("totals differ on pass %d: %v != %v", i, again.Totals, first.Totals)
		}
		if !reflect.DeepEqual(first.Lines, again.Lines) {
			t.Fatalf("lines differ on pass %d", i)
		}
		if first.GrandTotal != again.GrandTotal {
			t.Fatalf("grand total differs: %v != %v", again.GrandTotal, first.GrandTotal)
		}
	}
}

func TestComposeEmptyCatalog(t *testing.T) {
	composer := NewComposer(pricing.NewEngine())

	q := composer.Compose(context.Background(), &Input{TenantID: "t", Answers: domain.AnswerSet{}})

	if !q.Empty() {
		t.Error("quote over empty catalog should be empty")
	}
	if q.GrandTotal != 0 {
		t.Errorf("GrandTotal = %v, want 0", q.GrandTotal)
	}
}

func TestComposeAllZeroIsEmpty(t *testing.T) {
	engine := pricing.NewEngine()
	engine.LoadRules([]*domain.PricingRule{
		{ID: "r", Expression: "{{missing}}", ServiceID: "s",
			PricingType: domain.PricingTypeBaseService, BillingFrequency: domain.FrequencyMonthly, Enabled: true},
	})
	engine.LoadEndpoints([]*domain.ServiceEndpoint{
		{ServiceID: "s", TotalVariable: "sTotal", BillingFrequency: domain.FrequencyMonthly, Enabled: true},
	})

	q := NewComposer(engine).Compose(context.Background(), &Input{TenantID: "t", Answers: domain.AnswerSet{}})

	if !q.Empty() {
		t.Error("all-zero quote should report Empty")
	}
	if q.Metadata.Warnings == 0 {
		t.Error("expected unresolved-variable warning in metadata")
	}
}
