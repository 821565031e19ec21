package workflow

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/westey-m/flowgraph-go/workflow/emit"
	"github.com/westey-m/flowgraph-go/workflow/store"
)

// Start begins a new run of the graph with the given input. The input must
// be of the type inferred or declared at build time; it is delivered to the
// start executor as the sole message of the first superstep.
//
// Start returns as soon as the run loop has been launched; progress is
// observed through the returned Run's event stream. The context governs the
// whole run: cancelling it fails the run without committing a checkpoint
// for the interrupted round.
//
// By default each run gets a fresh UUID run ID, an in-memory checkpoint
// store, and no event emitter; use WithRunID, WithStore, and WithEmitter
// to override.
func Start(ctx context.Context, g *Graph, input any, opts ...Option) (*Run, error) {
	if g == nil {
		return nil, &ConfigError{Message: "graph is nil"}
	}
	cfg, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	got := reflect.TypeOf(input)
	if got != g.inputType {
		return nil, &ConfigError{Message: fmt.Sprintf(
			"input type %s does not match workflow input type %s",
			typeName(got), kindOf(g.inputType))}
	}

	rs := newRunState(g)
	rs.queues[g.startID] = []Envelope{{Payload: input, TargetID: g.startID}}

	run := newRun(g, cfg, rs)
	go run.loop(ctx)
	return run, nil
}

// Resume restores a run from a committed checkpoint and continues it on the
// given graph, which may be a freshly built instance. The graph's structure
// must match the checkpoint's recorded WorkflowInfo; a mismatch fails with
// ErrInfoMismatch before any superstep executes.
//
// checkpointID selects the snapshot to restore; empty means the run's
// latest checkpoint. The restored run keeps srcRunID as its identity unless
// WithRunID assigns a new one, in which case subsequent checkpoints commit
// under the new ID and the source run's history is left untouched.
func Resume(ctx context.Context, g *Graph, srcRunID, checkpointID string, opts ...Option) (*Run, error) {
	if g == nil {
		return nil, &ConfigError{Message: "graph is nil"}
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.store == nil {
		return nil, &ConfigError{Message: "resume requires a checkpoint store"}
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NewNullEmitter()
	}
	if cfg.runID == "" {
		cfg.runID = srcRunID
	}

	if checkpointID == "" {
		latest, err := cfg.store.Latest(ctx, srcRunID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("run %q has no checkpoints: %w", srcRunID, err)
			}
			return nil, err
		}
		checkpointID = latest
	}

	snap, err := cfg.store.Lookup(ctx, srcRunID, checkpointID)
	if err != nil {
		return nil, err
	}

	rs, err := restoreRunState(g, snap)
	if err != nil {
		return nil, err
	}

	run := newRun(g, cfg, rs)
	go run.loop(ctx)
	return run, nil
}

func buildConfig(opts []Option) (runConfig, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return runConfig{}, err
		}
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	if cfg.store == nil {
		cfg.store = store.NewMemStore()
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NewNullEmitter()
	}
	return cfg, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return kindOf(t)
}
