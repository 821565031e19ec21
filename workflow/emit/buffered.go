package emit

import "sync"

// BufferedEmitter implements Emitter by capturing events in memory, organized
// by run ID, with query support.
//
// Use cases:
//   - Tests asserting on the exact event sequence of a run
//   - Post-execution analysis and debugging
//   - Feeding dashboards without an external backend
//
// Events are held in memory for the emitter's lifetime; call Clear to release
// finished runs in long-lived processes.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // runID -> events in emission order
}

// HistoryFilter selects a subset of a run's captured events. Zero-valued
// fields are not applied; set fields combine with AND.
type HistoryFilter struct {
	// ExecutorID filters by executor (empty = any).
	ExecutorID string

	// Kind filters by event kind (empty = any).
	Kind string

	// MinStep and MaxStep bound the superstep range (nil = unbounded).
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit appends the event to its run's history. Safe for concurrent use.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns all captured events for a run in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]Event(nil), b.events[runID]...)
}

// HistoryWithFilter returns the run's events matching the filter, in
// emission order.
func (b *BufferedEmitter) HistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events[runID] {
		if filter.ExecutorID != "" && ev.ExecutorID != filter.ExecutorID {
			continue
		}
		if filter.Kind != "" && ev.Kind != filter.Kind {
			continue
		}
		if filter.MinStep != nil && ev.Step < *filter.MinStep {
			continue
		}
		if filter.MaxStep != nil && ev.Step > *filter.MaxStep {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear drops the captured history for one run.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.events, runID)
}

// ClearAll drops every captured event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = make(map[string][]Event)
}
