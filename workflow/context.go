package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// ExecContext is the surface through which a handler interacts with the run:
// emitting messages, yielding workflow outputs, raising custom events,
// requesting external input, requesting a halt, and reading or writing the
// executor's scoped state.
//
// One ExecContext serves one executor for one superstep. All of its effects
// are buffered: messages join the next superstep's input, state writes become
// visible to other executors at the superstep barrier, outputs and events
// are flushed when the round completes. The context is confined to the
// executor's dispatch goroutine, so no locking is needed.
type ExecContext struct {
	runID      string
	executorID string
	step       int
	graph      *Graph
	executor   *Executor
	state      *executorState

	sends   []Envelope
	outputs []any
	events  []Event
	halt    bool
	request *InfoRequest
	reqErr  error
}

// RunID returns the identifier of the run being executed.
func (c *ExecContext) RunID() string { return c.runID }

// ExecutorID returns the identifier of the executor being dispatched.
func (c *ExecContext) ExecutorID() string { return c.executorID }

// Step returns the current superstep ordinal.
func (c *ExecContext) Step() int { return c.step }

// SendMessage emits a payload onto the executor's outgoing edges. The
// message is routed at the superstep barrier and delivered next round.
func (c *ExecContext) SendMessage(payload any) {
	c.sends = append(c.sends, Envelope{Payload: payload, SourceID: c.executorID})
}

// SendMessageTo emits a payload restricted to a single recipient. Edges
// whose legal recipients do not include targetID drop the message.
func (c *ExecContext) SendMessageTo(payload any, targetID string) {
	c.sends = append(c.sends, Envelope{Payload: payload, SourceID: c.executorID, TargetID: targetID})
}

// YieldOutput emits a workflow output value. The value's type must be among
// the executor's declared output types (declared via Outputs at registration).
func (c *ExecContext) YieldOutput(v any) error {
	t := reflect.TypeOf(v)
	if t == nil || !c.executor.canOutput(t) {
		return &ExecutorError{
			ExecutorID: c.executorID,
			Step:       c.step,
			Message:    fmt.Sprintf("output type %v not declared via Outputs", t),
		}
	}
	c.outputs = append(c.outputs, v)
	return nil
}

// AddEvent raises a custom event onto the run's event stream, flushed with
// the superstep's other events at the barrier.
func (c *ExecContext) AddEvent(msg string, meta map[string]any) {
	c.events = append(c.events, Event{
		Kind:       EventExecutorEvent,
		RunID:      c.runID,
		Step:       c.step,
		ExecutorID: c.executorID,
		Msg:        msg,
		Meta:       meta,
	})
}

// RequestHalt asks the run to stop once the current round's dispatches
// finish. The round's effects are still committed and checkpointed.
func (c *ExecContext) RequestHalt() {
	c.halt = true
}

// RequestInfo issues an external-input request through the named port and
// returns the request ID. Once the current round completes, the run suspends
// in the Yielded state until a matching InfoResponse arrives; the response
// payload is then delivered to this executor as an ordinary message.
//
// At most one request may be outstanding per run; a second request in the
// same round is an error.
func (c *ExecContext) RequestInfo(portID string, data any) (string, error) {
	port, ok := c.graph.ports[portID]
	if !ok {
		err := &ExecutorError{
			ExecutorID: c.executorID,
			Step:       c.step,
			Message:    fmt.Sprintf("unknown request port %q", portID),
		}
		c.reqErr = err
		return "", err
	}
	if got := reflect.TypeOf(data); got != port.requestType {
		err := &ExecutorError{
			ExecutorID: c.executorID,
			Step:       c.step,
			Message: fmt.Sprintf("port %q expects request type %s, got %v",
				portID, kindOf(port.requestType), got),
		}
		c.reqErr = err
		return "", err
	}
	if !c.executor.accepts(port.responseType) {
		err := &ExecutorError{
			ExecutorID: c.executorID,
			Step:       c.step,
			Message: fmt.Sprintf("executor has no handler for port %q response type %s",
				portID, kindOf(port.responseType)),
		}
		c.reqErr = err
		return "", err
	}
	if c.request != nil {
		err := &ExecutorError{
			ExecutorID: c.executorID,
			Step:       c.step,
			Message:    "a request is already outstanding for this run",
		}
		c.reqErr = err
		return "", err
	}

	c.request = &InfoRequest{
		RequestID: uuid.NewString(),
		PortID:    portID,
		SourceID:  c.executorID,
		Data:      data,
	}
	return c.request.RequestID, nil
}

// Read returns the raw JSON value stored under (key, scope) in the
// executor's state, honoring writes buffered earlier in this superstep.
// Use ReadState for typed access.
func (c *ExecContext) Read(key, scope string) (json.RawMessage, bool) {
	return c.state.read(key, scope)
}

// QueueUpdate buffers a state write. The value is JSON-encoded now; the
// write becomes visible to other executors at the superstep barrier and to
// this executor's subsequent reads immediately.
func (c *ExecContext) QueueUpdate(key string, value any, scope string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("queue update %s/%s: %w", scope, key, err)
	}
	c.state.queueUpdate(key, data, scope)
	return nil
}

// ClearScope buffers removal of every key in the scope.
func (c *ExecContext) ClearScope(scope string) {
	c.state.clearScope(scope)
}
