package workflow

import (
	"time"

	"github.com/westey-m/flowgraph-go/workflow/emit"
	"github.com/westey-m/flowgraph-go/workflow/store"
)

// Option is a functional option for configuring a run.
//
// Example:
//
//	run, err := workflow.Start(ctx, g, 50,
//	    workflow.WithStore(fileStore),
//	    workflow.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	    workflow.WithMaxConcurrency(16),
//	)
type Option func(*runConfig) error

type runConfig struct {
	runID          string
	store          store.Store
	emitter        emit.Emitter
	metrics        *Metrics
	maxConcurrency int
	maxSupersteps  int
	eventBuffer    int
	checkpointing  bool
	dispatchBudget time.Duration
}

func defaultConfig() runConfig {
	return runConfig{
		maxConcurrency: 8,
		maxSupersteps:  1000,
		eventBuffer:    64,
		checkpointing:  true,
	}
}

// WithRunID sets the run identifier. Defaults to a fresh UUID. On Resume this
// overrides the run ID recorded in the checkpoint, so the resumed execution
// continues under a new identity without touching the source run's history.
func WithRunID(id string) Option {
	return func(cfg *runConfig) error {
		if id == "" {
			return &ConfigError{Message: "run ID cannot be empty"}
		}
		cfg.runID = id
		return nil
	}
}

// WithStore sets the checkpoint store. Defaults to a process-lifetime
// in-memory store; use a durable store (FileStore, SQLiteStore, MySQLStore)
// for runs that must survive a restart.
func WithStore(st store.Store) Option {
	return func(cfg *runConfig) error {
		if st == nil {
			return &ConfigError{Message: "store cannot be nil"}
		}
		cfg.store = st
		return nil
	}
}

// WithEmitter sets the observability emitter. Defaults to a NullEmitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *runConfig) error {
		if e == nil {
			return &ConfigError{Message: "emitter cannot be nil"}
		}
		cfg.emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection for the run.
func WithMetrics(m *Metrics) Option {
	return func(cfg *runConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithMaxConcurrency bounds how many executor dispatches run in parallel
// within one superstep. Default: 8.
//
// Dispatches to the same executor are always serialized so its scoped state
// has a single writer; the bound applies across distinct executors.
func WithMaxConcurrency(n int) Option {
	return func(cfg *runConfig) error {
		if n < 1 {
			return &ConfigError{Message: "max concurrency must be at least 1"}
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithMaxSupersteps limits the number of supersteps before the run fails
// with ErrMaxSuperstepsExceeded. Default: 1000. Set 0 to disable (use with
// caution on cyclic graphs).
func WithMaxSupersteps(n int) Option {
	return func(cfg *runConfig) error {
		if n < 0 {
			return &ConfigError{Message: "max supersteps cannot be negative"}
		}
		cfg.maxSupersteps = n
		return nil
	}
}

// WithEventBuffer sets the run event channel capacity. Default: 64.
// The run loop blocks once the buffer fills, so consumers must drain the
// stream (or use Run.Wait).
func WithEventBuffer(n int) Option {
	return func(cfg *runConfig) error {
		if n < 1 {
			return &ConfigError{Message: "event buffer must be at least 1"}
		}
		cfg.eventBuffer = n
		return nil
	}
}

// WithCheckpointing toggles per-superstep checkpoint commits. Default: on.
// Disabling trades resumability for throughput; Resume is impossible for
// runs executed with checkpointing off.
func WithCheckpointing(enabled bool) Option {
	return func(cfg *runConfig) error {
		cfg.checkpointing = enabled
		return nil
	}
}

// WithDispatchBudget sets a per-dispatch wall-clock budget. When a handler
// exceeds it, its context is cancelled and the dispatch fails with
// context.DeadlineExceeded. Default: 0 (no budget).
func WithDispatchBudget(d time.Duration) Option {
	return func(cfg *runConfig) error {
		if d < 0 {
			return &ConfigError{Message: "dispatch budget cannot be negative"}
		}
		cfg.dispatchBudget = d
		return nil
	}
}
