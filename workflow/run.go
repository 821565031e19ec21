package workflow

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/westey-m/flowgraph-go/workflow/emit"
)

// RunStatus is the lifecycle state of a run.
type RunStatus int

const (
	// StatusCreated is the state before the first superstep.
	StatusCreated RunStatus = iota

	// StatusRunning means supersteps are executing.
	StatusRunning

	// StatusYielded means the run is suspended awaiting exactly one external
	// response. No superstep processing proceeds while yielded.
	StatusYielded

	// StatusCompleted means the run reached quiescence: no pending messages
	// and no outstanding request.
	StatusCompleted

	// StatusHalted means an executor's halt request was honored.
	StatusHalted

	// StatusFailed means an unrecoverable error ended the run.
	StatusFailed
)

// String returns the stable lowercase name of the status, used in
// checkpoint documents and metrics labels.
func (s RunStatus) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusRunning:
		return "running"
	case StatusYielded:
		return "yielded"
	case StatusCompleted:
		return "completed"
	case StatusHalted:
		return "halted"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status is one of the three end states.
func (s RunStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusHalted || s == StatusFailed
}

// Run ties a graph instance to a run ID, a checkpoint store, and the live
// superstep loop. Obtain one from Start or Resume.
//
// The driver consumes the run through its event stream:
//
//	run, _ := workflow.Start(ctx, g, 50)
//	for ev := range run.Events() {
//	    switch ev.Kind {
//	    case workflow.EventWorkflowOutput:
//	        fmt.Println(ev.Output)
//	    case workflow.EventRequestInfo:
//	        _ = run.Respond(ctx, workflow.InfoResponse{RequestID: ev.Request.RequestID, Data: answer})
//	    }
//	}
//	err := run.Err()
//
// The run loop blocks once the event buffer fills, so the stream must be
// drained; Run.Wait does so when events aren't needed individually.
type Run struct {
	id    string
	graph *Graph
	cfg   runConfig

	state  *runState // owned by the loop goroutine
	events chan Event
	resp   chan InfoResponse

	mu             sync.Mutex
	status         RunStatus
	err            error
	lastCheckpoint string
	responded      bool // a valid response was accepted, loop not yet resumed
}

func newRun(g *Graph, cfg runConfig, rs *runState) *Run {
	return &Run{
		id:     cfg.runID,
		graph:  g,
		cfg:    cfg,
		state:  rs,
		events: make(chan Event, cfg.eventBuffer),
		resp:   make(chan InfoResponse, 1),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Status returns the run's current lifecycle state.
func (r *Run) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Err returns the terminal error for a Failed run, nil otherwise.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// LastCheckpointID returns the most recently committed checkpoint ID for
// this run, or empty when none has been committed yet.
func (r *Run) LastCheckpointID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCheckpoint
}

// Events returns the run's lifecycle event stream. The channel closes when
// the run reaches a terminal state.
func (r *Run) Events() <-chan Event { return r.events }

// Wait drains the event stream until the run reaches a terminal state and
// returns the terminal error, if any.
func (r *Run) Wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-r.events:
			if !ok {
				return r.Err()
			}
		}
	}
}

// Respond supplies the answer to the outstanding external-input request of a
// Yielded run. The response must reference the outstanding request's ID and
// carry a payload of the port's declared response type; otherwise the
// response is rejected and the run remains Yielded. A duplicate response for
// an already-answered request is likewise rejected.
func (r *Run) Respond(ctx context.Context, resp InfoResponse) error {
	r.mu.Lock()
	if r.status.Terminal() {
		r.mu.Unlock()
		return ErrRunFinished
	}
	if r.status != StatusYielded || r.state.pending == nil {
		r.mu.Unlock()
		return ErrRunNotYielded
	}
	if r.responded {
		r.mu.Unlock()
		return fmt.Errorf("%w: request %s already answered", ErrUnknownRequest, resp.RequestID)
	}
	pending := r.state.pending
	if resp.RequestID != pending.RequestID {
		r.mu.Unlock()
		return fmt.Errorf("%w: got %q, outstanding is %q", ErrUnknownRequest, resp.RequestID, pending.RequestID)
	}
	port := r.graph.ports[pending.PortID]
	if got := reflect.TypeOf(resp.Data); got != port.responseType {
		r.mu.Unlock()
		return &ConfigError{Message: fmt.Sprintf(
			"port %q expects response type %s, got %v", port.id, kindOf(port.responseType), got)}
	}
	r.responded = true
	r.mu.Unlock()

	select {
	case r.resp <- resp:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		r.responded = false
		r.mu.Unlock()
		return ctx.Err()
	}
}

func (r *Run) setStatus(s RunStatus) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

// emit publishes an event to the run's stream and mirrors it to the
// configured emitter. Safe to call from concurrent dispatch goroutines.
func (r *Run) emit(ev Event) {
	ev.RunID = r.id
	if r.cfg.emitter != nil {
		r.cfg.emitter.Emit(toEmitEvent(ev))
	}
	r.events <- ev
}

func toEmitEvent(ev Event) emit.Event {
	out := emit.Event{
		Kind:       string(ev.Kind),
		RunID:      ev.RunID,
		Step:       ev.Step,
		ExecutorID: ev.ExecutorID,
		Msg:        ev.Msg,
	}
	meta := make(map[string]any, len(ev.Meta)+3)
	for k, v := range ev.Meta {
		meta[k] = v
	}
	if ev.CheckpointID != "" {
		meta["checkpoint_id"] = ev.CheckpointID
	}
	if ev.Err != nil {
		meta["error"] = ev.Err.Error()
	}
	if ev.Request != nil {
		meta["request_id"] = ev.Request.RequestID
		meta["port_id"] = ev.Request.PortID
	}
	if len(meta) > 0 {
		out.Meta = meta
	}
	return out
}

// loop is the run driver: it executes supersteps until quiescence, a halt,
// a failure, or a yield, enforcing the hard barrier between rounds.
func (r *Run) loop(ctx context.Context) {
	defer close(r.events)

	for {
		if ctx.Err() != nil {
			r.fail(ctx.Err())
			return
		}

		if r.state.pending != nil {
			if !r.yieldForResponse(ctx) {
				return
			}
			continue
		}

		if r.state.pendingCount() == 0 {
			r.setStatus(StatusCompleted)
			r.cfg.metrics.runFinished(StatusCompleted)
			r.emit(Event{Kind: EventWorkflowCompleted, Step: r.state.step, Msg: "run reached quiescence"})
			return
		}

		if r.cfg.maxSupersteps > 0 && r.state.step >= r.cfg.maxSupersteps {
			r.fail(fmt.Errorf("%w (%d)", ErrMaxSuperstepsExceeded, r.cfg.maxSupersteps))
			return
		}

		r.setStatus(StatusRunning)

		halt, err := r.superstep(ctx)
		if err != nil {
			r.fail(err)
			return
		}
		if halt {
			r.setStatus(StatusHalted)
			r.cfg.metrics.runFinished(StatusHalted)
			r.emit(Event{Kind: EventWorkflowHalted, Step: r.state.step, Msg: "halt requested"})
			return
		}
	}
}

// fail transitions the run to Failed. No checkpoint is committed: partial
// state of the failed round is abandoned and already-committed checkpoints
// remain valid resume points.
func (r *Run) fail(err error) {
	r.mu.Lock()
	r.status = StatusFailed
	r.err = err
	r.mu.Unlock()

	r.cfg.metrics.runFinished(StatusFailed)
	r.emit(Event{Kind: EventWorkflowError, Step: r.state.step, Err: err, Msg: "run failed"})
}

// yieldForResponse suspends the run until the outstanding request is
// answered or the context is cancelled. Returns false when the run ended.
func (r *Run) yieldForResponse(ctx context.Context) bool {
	r.setStatus(StatusYielded)
	r.cfg.metrics.runYielded()
	pending := r.state.pending
	r.emit(Event{
		Kind:       EventRequestInfo,
		Step:       r.state.step,
		ExecutorID: pending.SourceID,
		Request:    pending,
		Msg:        "awaiting external response on port " + pending.PortID,
	})

	select {
	case <-ctx.Done():
		r.fail(ctx.Err())
		return false
	case resp := <-r.resp:
		// Deliver the response payload to the requesting executor as next
		// round's input, attributed to the port.
		r.state.queues[pending.SourceID] = append(r.state.queues[pending.SourceID], Envelope{
			Payload:  resp.Data,
			SourceID: pending.PortID,
			TargetID: pending.SourceID,
		})
		r.mu.Lock()
		r.state.pending = nil
		r.responded = false
		r.status = StatusRunning
		r.mu.Unlock()
		return true
	}
}

// dispatchUnit is one executor's work for a superstep: its delivered
// envelopes and the ExecContext that buffers its effects. Dispatches to the
// same executor run sequentially inside one goroutine; distinct units run
// concurrently.
type dispatchUnit struct {
	executor *Executor
	envs     []Envelope
	ec       *ExecContext
}

// superstep executes one synchronized round: dispatch all queued deliveries
// concurrently, wait for the barrier, then commit state writes, route newly
// emitted messages, flush outputs and events, and commit a checkpoint for
// the boundary.
func (r *Run) superstep(ctx context.Context) (halt bool, err error) {
	step := r.state.step
	inbox := r.state.queues
	r.state.queues = make(map[string][]Envelope)

	// Deterministic unit order: executor declaration order.
	var units []*dispatchUnit
	for _, id := range r.graph.order {
		envs := inbox[id]
		if len(envs) == 0 {
			continue
		}
		exec := r.graph.executors[id]
		units = append(units, &dispatchUnit{
			executor: exec,
			envs:     envs,
			ec: &ExecContext{
				runID:      r.id,
				executorID: id,
				step:       step,
				graph:      r.graph,
				executor:   exec,
				state:      r.state.states[id],
			},
		})
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.maxConcurrency)
	for _, u := range units {
		eg.Go(func() error {
			return r.dispatchAll(gctx, u)
		})
	}
	if err := eg.Wait(); err != nil {
		return false, err
	}

	// Barrier passed: commit effects in deterministic unit order.
	for _, u := range units {
		u.ec.state.commit()
	}

	var request *InfoRequest
	for _, u := range units {
		for _, ev := range u.ec.events {
			r.emit(ev)
		}
		for _, out := range u.ec.outputs {
			r.emit(Event{
				Kind:       EventWorkflowOutput,
				Step:       step,
				ExecutorID: u.ec.executorID,
				Output:     out,
			})
		}
		if u.ec.halt {
			halt = true
		}
		if u.ec.request != nil {
			if request != nil {
				return false, &ExecutorError{
					ExecutorID: u.ec.executorID,
					Step:       step,
					Message:    "multiple external requests in one superstep; only one may be outstanding",
				}
			}
			request = u.ec.request
		}
	}
	if halt && request != nil {
		return false, &ExecutorError{
			ExecutorID: request.SourceID,
			Step:       step,
			Message:    "halt and external request raised in the same superstep",
		}
	}

	if err := r.routeSends(units); err != nil {
		return false, err
	}
	r.state.pending = request
	r.state.step = step + 1

	r.cfg.metrics.superstepCompleted(r.state.pendingCount())

	cpID, err := r.commitCheckpoint(ctx, halt, request)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	if cpID != "" {
		r.lastCheckpoint = cpID
	}
	r.mu.Unlock()

	r.emit(Event{
		Kind:         EventSuperstepCompleted,
		Step:         step,
		CheckpointID: cpID,
		Meta: map[string]any{
			"queued_messages": r.state.pendingCount(),
		},
	})
	return halt, nil
}

// dispatchAll runs one unit's deliveries in order, observing cancellation
// between dispatches and (through the context) during them.
func (r *Run) dispatchAll(ctx context.Context, u *dispatchUnit) error {
	for _, env := range u.envs {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.emit(Event{
			Kind:       EventExecutorInvoked,
			Step:       u.ec.step,
			ExecutorID: u.ec.executorID,
			Msg:        "handling " + kindOf(reflect.TypeOf(env.Payload)),
		})

		dctx := ctx
		cancel := context.CancelFunc(nil)
		if r.cfg.dispatchBudget > 0 {
			dctx, cancel = context.WithTimeout(ctx, r.cfg.dispatchBudget)
		}

		r.cfg.metrics.dispatchStarted()
		start := time.Now()
		err := u.executor.dispatch(dctx, env.Payload, u.ec)
		elapsed := time.Since(start)
		if err == nil && u.ec.reqErr != nil {
			// A malformed RequestInfo fails the round even when the
			// handler discards the returned error.
			err = u.ec.reqErr
		}
		r.cfg.metrics.dispatchFinished(u.ec.executorID, elapsed, err)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			ee, ok := err.(*ExecutorError)
			if !ok {
				ee = &ExecutorError{
					ExecutorID: u.ec.executorID,
					Step:       u.ec.step,
					Cause:      err,
				}
			}
			r.emit(Event{
				Kind:       EventExecutorFailed,
				Step:       u.ec.step,
				ExecutorID: u.ec.executorID,
				Err:        ee,
			})
			return ee
		}

		r.emit(Event{
			Kind:       EventExecutorCompleted,
			Step:       u.ec.step,
			ExecutorID: u.ec.executorID,
			Meta:       map[string]any{"duration_ms": elapsed.Milliseconds()},
		})
	}
	return nil
}

// routeSends routes every message emitted during the round through the
// graph's edges, appending resolved deliveries to next round's queues.
// Delivery order within a recipient is deterministic: edges in declaration
// order, then senders in unit order, then each sender's messages in emission
// order.
func (r *Run) routeSends(units []*dispatchUnit) error {
	var sends []Envelope
	for _, u := range units {
		sends = append(sends, u.ec.sends...)
	}

	for _, edge := range r.graph.edges {
		for _, env := range sends {
			if !edge.hasSource(env.SourceID) {
				continue
			}
			dm := edge.route(env, r.state.edges[edge.id])
			if dm == nil {
				continue
			}
			for _, target := range edge.targets {
				payloads, ok := dm[target]
				if !ok {
					continue
				}
				tgt := r.graph.executors[target]
				for _, p := range payloads {
					if !tgt.accepts(reflect.TypeOf(p)) {
						return &ExecutorError{
							ExecutorID: target,
							Step:       r.state.step,
							Message: fmt.Sprintf("no handler for delivered message type %s (from %q via edge %s)",
								kindOf(reflect.TypeOf(p)), env.SourceID, edge.id),
						}
					}
					r.state.queues[target] = append(r.state.queues[target], Envelope{
						Payload:  p,
						SourceID: env.SourceID,
						TargetID: target,
					})
				}
			}
		}
	}
	return nil
}

// commitCheckpoint cuts and commits a snapshot for the just-finished
// boundary. Returns the committed checkpoint ID, or empty when
// checkpointing is disabled.
func (r *Run) commitCheckpoint(ctx context.Context, halt bool, request *InfoRequest) (string, error) {
	if !r.cfg.checkpointing || r.cfg.store == nil {
		return "", nil
	}

	status := StatusRunning
	switch {
	case request != nil:
		status = StatusYielded
	case halt:
		status = StatusHalted
	}

	snap, err := r.state.capture(r.graph, r.id, status)
	if err != nil {
		return "", fmt.Errorf("capture checkpoint: %w", err)
	}

	start := time.Now()
	cpID, err := r.cfg.store.Commit(ctx, r.id, snap)
	if err != nil {
		return "", fmt.Errorf("commit checkpoint: %w", err)
	}
	r.cfg.metrics.checkpointCommitted(time.Since(start))
	return cpID, nil
}
