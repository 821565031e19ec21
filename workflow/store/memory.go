package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemStore is an in-memory implementation of Store.
//
// Designed for:
//   - Testing and development
//   - Single-process runs where durability isn't required
//
// MemStore is thread-safe and supports concurrent access. Data is lost when
// the process terminates; use FileStore or SQLiteStore for runs that must
// survive a restart.
type MemStore struct {
	mu     sync.RWMutex
	byRun  map[string]map[string]Snapshot // runID -> checkpointID -> snapshot
	order  map[string][]CheckpointRef     // runID -> commit order
	newID  func() string
	closed bool
}

// NewMemStore creates a new in-memory checkpoint store.
func NewMemStore() *MemStore {
	return &MemStore{
		byRun: make(map[string]map[string]Snapshot),
		order: make(map[string][]CheckpointRef),
		newID: uuid.NewString,
	}
}

// Commit stores a snapshot under a fresh checkpoint ID, retrying the ID
// generation on collision so an existing checkpoint is never overwritten.
func (m *MemStore) Commit(_ context.Context, runID string, snap Snapshot) (string, error) {
	copied, err := cloneSnapshot(snap)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.byRun[runID]
	if !ok {
		run = make(map[string]Snapshot)
		m.byRun[runID] = run
	}

	var cpID string
	for {
		cpID = m.newID()
		if _, exists := run[cpID]; !exists {
			break
		}
	}

	run[cpID] = copied
	m.order[runID] = append(m.order[runID], CheckpointRef{
		ID:        cpID,
		Step:      copied.Step,
		Timestamp: copied.Timestamp,
	})
	return cpID, nil
}

// Lookup returns the snapshot committed under (runID, checkpointID).
func (m *MemStore) Lookup(_ context.Context, runID, checkpointID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.byRun[runID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	snap, ok := run[checkpointID]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return cloneSnapshot(snap)
}

// Latest returns the most recently committed checkpoint ID for the run.
func (m *MemStore) Latest(_ context.Context, runID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := m.order[runID]
	if len(refs) == 0 {
		return "", ErrNotFound
	}
	return refs[len(refs)-1].ID, nil
}

// List enumerates the run's checkpoints in commit order.
func (m *MemStore) List(_ context.Context, runID string) ([]CheckpointRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]CheckpointRef(nil), m.order[runID]...), nil
}

// Close releases the store's data.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.byRun = make(map[string]map[string]Snapshot)
	m.order = make(map[string][]CheckpointRef)
	m.closed = true
	return nil
}
