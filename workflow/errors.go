package workflow

import "errors"

// ErrInfoMismatch is returned when a checkpoint's recorded WorkflowInfo does
// not structurally match the graph it is being resumed against. Resumption
// fails fast rather than silently running against an incompatible topology.
var ErrInfoMismatch = errors.New("workflow info mismatch: checkpoint is not resumable against this graph")

// ErrRunNotYielded is returned by Run.Respond when the run has no outstanding
// external-input request.
var ErrRunNotYielded = errors.New("run is not yielded: no outstanding external request")

// ErrUnknownRequest is returned by Run.Respond when the response's request ID
// does not reference the outstanding request. The run remains Yielded.
var ErrUnknownRequest = errors.New("response does not match the outstanding request")

// ErrMaxSuperstepsExceeded indicates the run hit its superstep limit without
// reaching quiescence. Prevents runaway cyclic graphs.
var ErrMaxSuperstepsExceeded = errors.New("run exceeded maximum supersteps limit")

// ErrRunFinished is returned when an operation requires a live run but the
// run has already reached a terminal state.
var ErrRunFinished = errors.New("run already reached a terminal state")

// ConfigError reports a graph configuration problem detected eagerly at
// build or resume time: duplicate executor IDs, edges referencing unknown
// executors, type-incompatible connections, malformed ports. Configuration
// errors are reported synchronously to the builder call, never as run events.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "workflow config: " + e.Message
}

// ExecutorError reports a failure raised by (or on behalf of) one executor
// during a run. The containing run transitions to Failed; already-committed
// checkpoints remain valid and resumable from an earlier point.
type ExecutorError struct {
	// ExecutorID identifies the failing executor.
	ExecutorID string

	// Step is the superstep during which the failure occurred.
	Step int

	// Message describes the failure.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *ExecutorError) Error() string {
	msg := "executor " + e.ExecutorID + ": " + e.Message
	if e.Cause != nil {
		if e.Message == "" {
			return "executor " + e.ExecutorID + ": " + e.Cause.Error()
		}
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ExecutorError) Unwrap() error {
	return e.Cause
}
