package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/openpricing/kestrel/internal/domain"
)

// Resolver turns a variable name into a number by inspecting the answer
// snapshot, the computed-price store, or the service endpoint catalog.
// Resolution never fails: every miss degrades to 0 with a trace event.
type Resolver struct {
	answers   domain.AnswerSet
	store     *PriceStore
	endpoints []*domain.ServiceEndpoint
	trace     *Trace
}

// NewResolver creates a resolver over one pass's snapshot.
func NewResolver(answers domain.AnswerSet, store *PriceStore, endpoints []*domain.ServiceEndpoint, trace *Trace) *Resolver {
	return &Resolver{
		answers:   answers,
		store:     store,
		endpoints: endpoints,
		trace:     trace,
	}
}

// Resolve maps a placeholder name to its numeric value. Resolution order,
// first match wins:
//
//  1. pricingRule.<id>: the computed value of an earlier rule
//  2. currentRecurringRate: aggregate bookkeeping rate
//  3. a service endpoint's total variable: filtered aggregation
//  4. a dotted path into the answer set
//  5. a root-level answer field
//  6. otherwise 0, recorded as an unresolved variable
func (r *Resolver) Resolve(name string) float64 {
	if id, ok := strings.CutPrefix(name, domain.RuleRefPrefix); ok {
		return r.resolveRuleRef(id)
	}

	if name == domain.RecurringRateVariable {
		return r.recurringRate()
	}

	for _, ep := range r.endpoints {
		if ep.TotalVariable == name {
			return Aggregate(r.store, ep.ServiceID, ep.Filter())
		}
	}

	if strings.Contains(name, ".") {
		v, _ := r.answers.Lookup(name)
		return Coerce(v)
	}

	if v, ok := r.answers[name]; ok {
		return Coerce(v)
	}

	r.trace.add(domain.TraceEvent{
		Kind:     domain.TraceUnresolvedVariable,
		Variable: name,
		Detail:   "variable matched no resolution rule",
	})
	return 0
}

// resolveRuleRef looks up an earlier rule's computed value. A reference to a
// rule not yet evaluated in this pass yields 0, never an error.
func (r *Resolver) resolveRuleRef(ruleID string) float64 {
	price, ok := r.store.Get(ruleID)
	if !ok {
		r.trace.add(domain.TraceEvent{
			Kind:     domain.TraceForwardReference,
			RuleID:   ruleID,
			Variable: domain.RuleRefPrefix + ruleID,
			Detail:   "rule not yet evaluated in this pass",
		})
		return 0
	}
	return price.Value
}

// recurringRate sums every computed bookkeeping price with a positive value.
// When none has been computed yet the fixed fallback rate applies.
func (r *Resolver) recurringRate() float64 {
	var sum float64
	found := false
	for _, e := range r.store.Entries() {
		if e.Value > 0 && strings.Contains(strings.ToLower(e.RuleID), "bookkeeping") {
			sum += e.Value
			found = true
		}
	}
	if !found {
		return domain.DefaultRecurringRate
	}
	return sum
}

// Coerce applies permissive numeric coercion: numbers pass through, numeric
// strings parse, booleans map to 1/0, and everything else (nil, NaN,
// non-numeric strings) coerces to 0. A missing or malformed answer is a
// zero contribution, never an error.
func Coerce(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case float32:
		return Coerce(float64(x))
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" {
			return 0
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	default:
		return 0
	}
}
