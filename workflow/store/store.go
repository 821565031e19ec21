// Package store provides checkpoint persistence backends for FlowGraph-Go.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID or checkpoint ID does not exist.
var ErrNotFound = errors.New("not found")

// Snapshot is a complete, self-describing snapshot of run state at a
// superstep boundary: enough to resume execution exactly at that boundary on
// a freshly constructed process.
//
// Payloads inside the snapshot are stored as (kind, JSON) pairs rather than
// live Go values, so any Store can persist a Snapshot as a single JSON
// document without knowing the graph's message types.
type Snapshot struct {
	// RunID identifies the run this snapshot belongs to.
	RunID string `json:"run_id"`

	// Step is the superstep ordinal at the boundary the snapshot was cut.
	Step int `json:"step"`

	// Status is the run status at the boundary (running, yielded, halted).
	Status string `json:"status"`

	// Info is the JSON-encoded WorkflowInfo fingerprint of the graph the
	// snapshot was taken against. Resume verifies it structurally matches
	// the target graph before restoring anything.
	Info json.RawMessage `json:"workflow_info"`

	// Executors holds every executor's committed scoped state:
	// executor ID -> scope -> key -> JSON value.
	Executors map[string]map[string]map[string]json.RawMessage `json:"executors"`

	// Queues holds the pending message queues keyed by target executor ID.
	Queues map[string][]QueuedMessage `json:"queues,omitempty"`

	// Edges holds per-edge routing state (fan-in partial buffers) keyed by
	// edge ID.
	Edges map[string]EdgeState `json:"edges,omitempty"`

	// Request is the outstanding external-input request when the run
	// yielded, nil otherwise.
	Request *PendingRequest `json:"pending_request,omitempty"`

	// Timestamp records when the snapshot was committed.
	Timestamp time.Time `json:"timestamp"`
}

// QueuedMessage is one pending envelope in wire form.
type QueuedMessage struct {
	SourceID string          `json:"source_id"`
	TargetID string          `json:"target_id,omitempty"`
	Kind     string          `json:"kind"`
	Data     json.RawMessage `json:"data"`
}

// EdgeState is one fan-in edge's buffer state in wire form.
type EdgeState struct {
	// Seq is the edge's arrival counter.
	Seq int64 `json:"seq"`

	// Buffers maps source executor ID to its ordered buffered payloads.
	Buffers map[string][]BufferedMessage `json:"buffers"`
}

// BufferedMessage is one buffered fan-in payload, tagged with its global
// arrival sequence.
type BufferedMessage struct {
	Seq  int64           `json:"seq"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// PendingRequest is an outstanding external-input request in wire form.
type PendingRequest struct {
	RequestID string          `json:"request_id"`
	PortID    string          `json:"port_id"`
	SourceID  string          `json:"source_id"`
	Kind      string          `json:"kind"`
	Data      json.RawMessage `json:"data"`
}

// CheckpointRef identifies one committed checkpoint of a run.
type CheckpointRef struct {
	// ID is the checkpoint identifier, unique within the run.
	ID string `json:"id"`

	// Step is the superstep boundary the checkpoint was cut at.
	Step int `json:"step"`

	// Timestamp records when the checkpoint was committed.
	Timestamp time.Time `json:"timestamp"`
}

// Store persists run checkpoints keyed by (run ID, checkpoint ID).
//
// Implementations must provide exactly-once commit semantics per checkpoint
// ID: Commit generates a fresh ID for every call and retries transparently on
// the (practically unreachable) ID collision, never overwriting an existing
// checkpoint. Lookups may run concurrently with commits.
//
// Two in-tree durable implementations (FileStore, SQLiteStore, MySQLStore)
// and one process-lifetime implementation (MemStore) satisfy this contract;
// all pass the same conformance tests.
type Store interface {
	// Commit persists a snapshot under a freshly generated checkpoint ID and
	// returns that ID. Commits for a run never overwrite an existing
	// checkpoint; ID collisions are retried internally with a new ID.
	Commit(ctx context.Context, runID string, snap Snapshot) (string, error)

	// Lookup returns the snapshot committed under (runID, checkpointID), or
	// ErrNotFound.
	Lookup(ctx context.Context, runID, checkpointID string) (Snapshot, error)

	// Latest returns the most recently committed checkpoint ID for the run,
	// or ErrNotFound when the run has no checkpoints.
	Latest(ctx context.Context, runID string) (string, error)

	// List enumerates the run's checkpoints in commit order.
	List(ctx context.Context, runID string) ([]CheckpointRef, error)

	// Close releases any resources held by the store.
	Close() error
}

// cloneSnapshot deep-copies a snapshot so stored data is isolated from
// caller mutations. JSON round-trip keeps the copy faithful to what a
// durable backend would persist.
func cloneSnapshot(snap Snapshot) (Snapshot, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, err
	}
	var out Snapshot
	if err := json.Unmarshal(data, &out); err != nil {
		return Snapshot{}, err
	}
	return out, nil
}
