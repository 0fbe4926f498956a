// Package pricing provides the rule evaluation engine: variable resolution,
// expression substitution, and aggregation of computed prices into service
// totals.
package pricing

import "github.com/openpricing/kestrel/internal/domain"

// PriceStore holds the computed prices of one evaluation pass. It is
// append-only within the pass and is the sole channel through which later
// rules see earlier results. The store keeps insertion order and an index by
// rule id, so referencing an unknown id is a typed miss rather than a
// dynamic lookup.
type PriceStore struct {
	entries []domain.ComputedPrice
	index   map[string]int
}

// NewPriceStore creates an empty store for a fresh pass.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		index: make(map[string]int),
	}
}

// Append records one computed price. A rule id appended twice keeps the
// latest value in the index; catalog ids are unique so this does not occur
// in practice.
func (s *PriceStore) Append(p domain.ComputedPrice) {
	s.index[p.RuleID] = len(s.entries)
	s.entries = append(s.entries, p)
}

// Get returns the computed price for a rule id, if already evaluated.
func (s *PriceStore) Get(ruleID string) (domain.ComputedPrice, bool) {
	i, ok := s.index[ruleID]
	if !ok {
		return domain.ComputedPrice{}, false
	}
	return s.entries[i], true
}

// Entries returns the computed prices in evaluation order.
func (s *PriceStore) Entries() []domain.ComputedPrice {
	return s.entries
}

// Len returns the number of computed prices in the store.
func (s *PriceStore) Len() int {
	return len(s.entries)
}

// HasMetadata reports whether any entry carries aggregation metadata. When
// the whole store is bare the aggregation engine falls back to rule-id
// prefix matching.
func (s *PriceStore) HasMetadata() bool {
	for _, e := range s.entries {
		if e.HasMetadata() {
			return true
		}
	}
	return false
}
