// Package emit provides pluggable observability sinks for FlowGraph-Go runs.
package emit

// Event is the observability mirror of a run lifecycle event.
//
// The engine converts every event it puts on a run's event stream into an
// emit.Event and hands it to the configured Emitter, so logging, tracing, and
// buffering backends see the same lifecycle the driver does:
//   - executor_invoked / executor_completed / executor_failed
//   - superstep_completed (with checkpoint info in Meta)
//   - request_info, workflow_output, workflow_error
//   - workflow_halted, workflow_completed
type Event struct {
	// Kind classifies the event (e.g. "executor_invoked", "superstep_completed").
	Kind string

	// RunID identifies the run that emitted this event.
	RunID string

	// Step is the superstep ordinal (0 for pre-run events).
	Step int

	// ExecutorID names the executor involved; empty for run-level events.
	ExecutorID string

	// Msg is a human-readable description.
	Msg string

	// Meta contains additional structured data. Common keys:
	//   - "checkpoint_id": checkpoint committed at a superstep boundary
	//   - "duration_ms": dispatch duration
	//   - "error": failure details
	//   - "request_id", "port_id": external-input request identity
	Meta map[string]any
}
