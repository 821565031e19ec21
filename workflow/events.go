package workflow

// EventKind classifies a run lifecycle event.
type EventKind string

const (
	// EventExecutorInvoked fires when a message dispatch to an executor begins.
	EventExecutorInvoked EventKind = "executor_invoked"

	// EventExecutorCompleted fires when a dispatch finishes without error.
	EventExecutorCompleted EventKind = "executor_completed"

	// EventExecutorFailed fires when a dispatch returns an error. The run
	// transitions to Failed after the current round's dispatches finish.
	EventExecutorFailed EventKind = "executor_failed"

	// EventExecutorEvent carries a custom event added by an executor via
	// ExecContext.AddEvent.
	EventExecutorEvent EventKind = "executor_event"

	// EventSuperstepCompleted fires at every superstep barrier, after state
	// and queue commits. CheckpointID carries the checkpoint committed for
	// the boundary (empty when checkpointing is disabled).
	EventSuperstepCompleted EventKind = "superstep_completed"

	// EventRequestInfo fires when the run suspends awaiting an external
	// response. Request describes the outstanding request.
	EventRequestInfo EventKind = "request_info"

	// EventWorkflowOutput carries a value yielded by an executor as workflow
	// output.
	EventWorkflowOutput EventKind = "workflow_output"

	// EventWorkflowError fires when the run transitions to Failed. Err holds
	// the terminal error.
	EventWorkflowError EventKind = "workflow_error"

	// EventWorkflowHalted fires when an executor's halt request is honored.
	EventWorkflowHalted EventKind = "workflow_halted"

	// EventWorkflowCompleted fires when the run reaches quiescence: no
	// pending messages and no outstanding request.
	EventWorkflowCompleted EventKind = "workflow_completed"
)

// Event is one entry in a run's lifecycle event stream.
//
// All errors raised during a run surface as events on this stream rather
// than being thrown across the driver boundary, so a long-running caller can
// observe and react without unwinding. Only build-time configuration errors
// are reported synchronously.
type Event struct {
	// Kind classifies the event.
	Kind EventKind

	// RunID identifies the run that produced the event.
	RunID string

	// Step is the superstep ordinal (0 for pre-run events).
	Step int

	// ExecutorID names the executor involved, when applicable.
	ExecutorID string

	// CheckpointID is set on superstep_completed events when a checkpoint
	// was committed for the boundary.
	CheckpointID string

	// Output holds the yielded value for workflow_output events.
	Output any

	// Request describes the outstanding external request for request_info
	// events.
	Request *InfoRequest

	// Err holds the failure for executor_failed and workflow_error events.
	Err error

	// Msg is a short human-readable description.
	Msg string

	// Meta carries additional structured data (custom executor events,
	// durations, checkpoint info).
	Meta map[string]any
}
