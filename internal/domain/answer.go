package domain

import "strings"

// AnswerSet is the snapshot of user-entered answers a quote is computed from.
// Values may be nested maps; nested fields are addressed with dotted paths.
// An AnswerSet is read-only for the duration of an evaluation pass.
type AnswerSet map[string]any

// Lookup walks a dotted path ("a.b.c") through nested maps.
// A missing key at any depth returns (nil, false).
func (a AnswerSet) Lookup(path string) (any, bool) {
	if a == nil {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current any = map[string]any(a)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			// Support nested AnswerSet values as well
			if as, isSet := current.(AnswerSet); isSet {
				m = map[string]any(as)
			} else {
				return nil, false
			}
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
