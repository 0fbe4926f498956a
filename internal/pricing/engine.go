package pricing

import (
	"errors"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openpricing/kestrel/internal/domain"
	"github.com/openpricing/kestrel/internal/expr"
)

// placeholderPattern matches one {{variableName}} token, capturing the
// trimmed name.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Engine drives the per-pass rule evaluation. It holds the loaded catalogs
// behind a read lock so passes can run while the catalogs are hot-reloaded;
// each pass snapshots the catalog slices and produces its own store, so
// concurrent passes never share mutable state.
type Engine struct {
	mu        sync.RWMutex
	rules     []*domain.PricingRule
	endpoints []*domain.ServiceEndpoint
}

// NewEngine creates an engine with empty catalogs.
func NewEngine() *Engine {
	return &Engine{}
}

// LoadRules replaces the pricing rule catalog. Disabled rules are skipped
// and the remainder ordered by catalog position; evaluation order equals
// this order.
func (e *Engine) LoadRules(rules []*domain.PricingRule) {
	ordered := make([]*domain.PricingRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	e.mu.Lock()
	e.rules = ordered
	e.mu.Unlock()
}

// LoadEndpoints replaces the service endpoint catalog.
func (e *Engine) LoadEndpoints(endpoints []*domain.ServiceEndpoint) {
	ordered := make([]*domain.ServiceEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Enabled {
			ordered = append(ordered, ep)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	e.mu.Lock()
	e.endpoints = ordered
	e.mu.Unlock()
}

// ReloadRules is LoadRules; it exists for symmetry with hot-reload callers.
func (e *Engine) ReloadRules(rules []*domain.PricingRule) {
	e.LoadRules(rules)
}

// ReloadEndpoints is LoadEndpoints for hot-reload callers.
func (e *Engine) ReloadEndpoints(endpoints []*domain.ServiceEndpoint) {
	e.LoadEndpoints(endpoints)
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// EndpointsCount returns the number of loaded service endpoints.
func (e *Engine) EndpointsCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.endpoints)
}

// Rules returns the loaded rule catalog in evaluation order.
func (e *Engine) Rules() []*domain.PricingRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.PricingRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Endpoints returns the loaded service endpoint catalog in order.
func (e *Engine) Endpoints() []*domain.ServiceEndpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.ServiceEndpoint, len(e.endpoints))
	copy(out, e.endpoints)
	return out
}

// PassResult is the output of one evaluation pass.
type PassResult struct {
	Store     *PriceStore
	Endpoints []*domain.ServiceEndpoint
	Trace     *Trace
}

// EvaluateAll runs one single-pass, forward-only evaluation of the rule
// catalog over an answer snapshot. Each rule either evaluates or records 0;
// no rule failure aborts the batch.
func (e *Engine) EvaluateAll(answers domain.AnswerSet) *PassResult {
	e.mu.RLock()
	rules := e.rules
	endpoints := e.endpoints
	e.mu.RUnlock()

	store := NewPriceStore()
	trace := &Trace{}
	resolver := NewResolver(answers, store, endpoints, trace)

	for _, rule := range rules {
		value := e.evaluateRule(rule, resolver, trace)
		store.Append(domain.ComputedPrice{
			RuleID:           rule.ID,
			Value:            value,
			ServiceID:        rule.ServiceID,
			PricingType:      rule.PricingType,
			BillingFrequency: rule.BillingFrequency,
		})
	}

	return &PassResult{
		Store:     store,
		Endpoints: endpoints,
		Trace:     trace,
	}
}

// evaluateRule substitutes, evaluates, clamps and rounds one rule. Every
// failure path records 0 for the rule and a trace event.
func (e *Engine) evaluateRule(rule *domain.PricingRule, resolver *Resolver, trace *Trace) float64 {
	if rule.Expression == "" {
		trace.add(domain.TraceEvent{
			Kind:   domain.TraceEmptyExpression,
			RuleID: rule.ID,
		})
		return 0
	}

	substituted := substitute(rule.Expression, resolver)

	value, err := expr.Evaluate(substituted)
	if err != nil {
		kind := domain.TraceEvaluationError
		if errors.Is(err, expr.ErrInvalidExpression) {
			kind = domain.TraceInvalidExpression
		}
		trace.add(domain.TraceEvent{
			Kind:   kind,
			RuleID: rule.ID,
			Detail: err.Error(),
		})
		return 0
	}

	value = clamp(value, rule.MinimumValue, rule.MaximumValue)

	return RoundMoney(value)
}

// substitute replaces every {{name}} placeholder with its resolved value as
// a decimal literal. Distinct names resolve once per rule; repeated
// placeholders share the resolved value.
func substitute(expression string, resolver *Resolver) string {
	resolved := make(map[string]string)

	return placeholderPattern.ReplaceAllStringFunc(expression, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if lit, ok := resolved[name]; ok {
			return lit
		}
		lit := formatValue(resolver.Resolve(name))
		resolved[name] = lit
		return lit
	})
}

// formatValue renders a resolved value as a literal the expression grammar
// accepts. Negative values are parenthesized so substitution composes with
// any surrounding operator.
func formatValue(v float64) string {
	lit := strconv.FormatFloat(v, 'f', -1, 64)
	if v < 0 {
		return "(" + lit + ")"
	}
	return lit
}

// clamp applies value = max(min, min(max, value)) for whichever bounds are
// defined. Re-clamping an already clamped value is a no-op.
func clamp(value float64, minimum, maximum *float64) float64 {
	if maximum != nil && value > *maximum {
		value = *maximum
	}
	if minimum != nil && value < *minimum {
		value = *minimum
	}
	return value
}

// RoundMoney rounds to 2 decimal places, half up.
func RoundMoney(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
