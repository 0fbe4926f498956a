package pricing

import "github.com/openpricing/kestrel/internal/domain"

// Trace collects diagnostic events during a pass. The engine returns the
// collected events with the result instead of logging from inside the core,
// so callers decide what to surface.
type Trace struct {
	events []domain.TraceEvent
}

func (t *Trace) add(event domain.TraceEvent) {
	if t == nil {
		return
	}
	t.events = append(t.events, event)
}

// Events returns the collected events in order of occurrence.
func (t *Trace) Events() []domain.TraceEvent {
	if t == nil {
		return nil
	}
	return t.events
}

// Warnings returns the number of collected events. Every event is a
// degraded-to-zero diagnostic, never a fatal error.
func (t *Trace) Warnings() int {
	if t == nil {
		return 0
	}
	return len(t.events)
}
