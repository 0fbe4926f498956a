package pricing

import (
	"strings"

	"github.com/openpricing/kestrel/internal/domain"
)

// Aggregate sums the computed prices contributing to one service's total.
//
// With metadata present the filter is authoritative: an entry contributes
// when its service id matches and its pricing type and billing frequency
// pass the include/exclude sets. When the whole store carries no metadata
// (a degraded catalog), entries whose rule id starts with the service id
// contribute instead; rule ids are namespaced by service by convention, so
// the prefix is a safe substitute, but it is never used when metadata
// exists. The minimum-fee floor applies last.
func Aggregate(store *PriceStore, serviceID string, filter domain.FilterSpec) float64 {
	var total float64

	if store.HasMetadata() {
		for _, e := range store.Entries() {
			if e.ServiceID != serviceID {
				continue
			}
			if !filter.Matches(e) {
				continue
			}
			total += e.Value
		}
	} else {
		for _, e := range store.Entries() {
			if strings.HasPrefix(e.RuleID, serviceID) {
				total += e.Value
			}
		}
	}

	if filter.MinimumFee > 0 && total < filter.MinimumFee {
		total = filter.MinimumFee
	}

	return total
}
