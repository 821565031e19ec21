package workflow

import (
	"context"
	"reflect"
	"sort"
)

// HandlerFunc processes one delivered payload. The concrete payload type is
// recovered by the typed registration helpers (OnMessage); handlers never see
// a payload type they did not register for.
type HandlerFunc func(ctx context.Context, payload any, ec *ExecContext) error

// Executor is a named node in the workflow graph. It processes typed messages
// and may emit messages, events, workflow outputs, external-input requests,
// and halt requests through the ExecContext passed to its handlers.
//
// An Executor is instantiated once per graph build. Its scoped state lives in
// the Run, not on the Executor, so one graph instance can serve many runs.
type Executor struct {
	id       string
	kind     string
	handlers map[reflect.Type]HandlerFunc
	order    []reflect.Type // registration order, for deterministic reporting
	emits    map[reflect.Type]bool
	outputs  map[reflect.Type]bool
}

// ID returns the executor's unique identifier within its graph.
func (e *Executor) ID() string { return e.id }

// Kind returns the executor's declared type name, recorded in WorkflowInfo
// and compared structurally when a checkpoint is resumed against a freshly
// built graph.
func (e *Executor) Kind() string { return e.kind }

// accepts reports whether the executor has a handler for the given payload type.
func (e *Executor) accepts(t reflect.Type) bool {
	_, ok := e.handlers[t]
	return ok
}

// messageTypes returns the accepted payload types in registration order.
func (e *Executor) messageTypes() []reflect.Type {
	return append([]reflect.Type(nil), e.order...)
}

// messageKinds returns the sorted kind strings of accepted payload types.
func (e *Executor) messageKinds() []string {
	kinds := make([]string, 0, len(e.handlers))
	for t := range e.handlers {
		kinds = append(kinds, kindOf(t))
	}
	sort.Strings(kinds)
	return kinds
}

// outputKinds returns the sorted kind strings of declared workflow output types.
func (e *Executor) outputKinds() []string {
	kinds := make([]string, 0, len(e.outputs))
	for t := range e.outputs {
		kinds = append(kinds, kindOf(t))
	}
	sort.Strings(kinds)
	return kinds
}

// canOutput reports whether t was declared via Outputs at registration time.
func (e *Executor) canOutput(t reflect.Type) bool {
	return e.outputs[t]
}

// dispatch routes one payload to its registered handler.
//
// A missing handler here is a bug in graph-build validation rather than a
// legal runtime condition; it is still surfaced as an ExecutorError so the
// run fails loudly instead of dropping the message.
func (e *Executor) dispatch(ctx context.Context, payload any, ec *ExecContext) error {
	t := reflect.TypeOf(payload)
	h, ok := e.handlers[t]
	if !ok {
		return &ExecutorError{
			ExecutorID: e.id,
			Message:    "no handler registered for message type " + kindOf(t),
		}
	}
	return h(ctx, payload, ec)
}

// ExecutorBuilder assembles an Executor. Registration errors (duplicate
// handlers, nil handlers) are collected and surfaced by Build, so call
// chains stay fluent.
//
// Example:
//
//	judge := workflow.NewExecutor("judge").Kind("GuessJudge")
//	workflow.OnMessage(judge, func(ctx context.Context, guess int, ec *workflow.ExecContext) error {
//	    ...
//	})
//	workflow.Outputs[string](judge)
type ExecutorBuilder struct {
	id       string
	kind     string
	handlers map[reflect.Type]HandlerFunc
	order    []reflect.Type
	emits    map[reflect.Type]bool
	outputs  map[reflect.Type]bool
	errs     []error
}

// NewExecutor starts building an executor with the given ID.
// IDs must be unique within a graph; uniqueness is enforced at graph build.
func NewExecutor(id string) *ExecutorBuilder {
	b := &ExecutorBuilder{
		id:       id,
		handlers: make(map[reflect.Type]HandlerFunc),
		emits:    make(map[reflect.Type]bool),
		outputs:  make(map[reflect.Type]bool),
	}
	if id == "" {
		b.errs = append(b.errs, &ConfigError{Message: "executor ID cannot be empty"})
	}
	return b
}

// Kind sets the executor's declared type name for the WorkflowInfo
// fingerprint. Defaults to the executor ID when unset.
func (b *ExecutorBuilder) Kind(kind string) *ExecutorBuilder {
	b.kind = kind
	return b
}

// OnMessage registers a typed message handler on the builder.
//
// Dispatch is by the runtime type of the incoming payload; registering two
// handlers for the same type is a configuration error reported by Build.
func OnMessage[T any](b *ExecutorBuilder, fn func(ctx context.Context, msg T, ec *ExecContext) error) *ExecutorBuilder {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if fn == nil {
		b.errs = append(b.errs, &ConfigError{
			Message: "executor " + b.id + ": nil handler for message type " + kindOf(t),
		})
		return b
	}
	if _, exists := b.handlers[t]; exists {
		b.errs = append(b.errs, &ConfigError{
			Message: "executor " + b.id + ": duplicate handler for message type " + kindOf(t),
		})
		return b
	}
	b.handlers[t] = func(ctx context.Context, payload any, ec *ExecContext) error {
		return fn(ctx, payload.(T), ec)
	}
	b.order = append(b.order, t)
	return b
}

// Emits declares a message type the executor may send. Emit declarations are
// optional; when present they let graph build verify that every edge from
// this executor reaches a target able to handle at least one emitted type.
//
// The check is any-of, not all-of: a source declaring several emit types
// may route each type to a different target through predicate or assigner
// edges, so no single target is required to handle the full set. A delivery
// whose concrete type has no handler on its resolved target still fails
// the run at routing time.
func Emits[T any](b *ExecutorBuilder) *ExecutorBuilder {
	b.emits[reflect.TypeOf((*T)(nil)).Elem()] = true
	return b
}

// Outputs declares a type the executor may yield as workflow output.
// YieldOutput rejects types not declared here; the declaration is validated
// once at registration so the dispatch hot path only does a map lookup.
func Outputs[T any](b *ExecutorBuilder) *ExecutorBuilder {
	b.outputs[reflect.TypeOf((*T)(nil)).Elem()] = true
	return b
}

// Build finalizes the executor. It fails if any registration call recorded an
// error or if no handlers were registered.
func (b *ExecutorBuilder) Build() (*Executor, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.handlers) == 0 {
		return nil, &ConfigError{Message: "executor " + b.id + ": no message handlers registered"}
	}

	kind := b.kind
	if kind == "" {
		kind = b.id
	}
	return &Executor{
		id:       b.id,
		kind:     kind,
		handlers: b.handlers,
		order:    b.order,
		emits:    b.emits,
		outputs:  b.outputs,
	}, nil
}
