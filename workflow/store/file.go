package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FileStore is a durable, file-backed implementation of Store.
//
// Each checkpoint is one JSON document at:
//
//	<root>/<runID>/<seq>-<checkpointID>.json
//
// The 8-digit zero-padded sequence prefix makes the directory listing
// self-ordering, so "list checkpoints for a run" and "latest checkpoint" are
// computable by enumeration alone, with no separate index to keep in sync.
//
// Writes go through a temp file and atomic rename, so a crash mid-commit
// never leaves a partial checkpoint visible.
//
// Designed for:
//   - Local durable runs that must survive a process restart
//   - Resuming a run on a freshly constructed graph instance
//   - Simple operational inspection (checkpoints are plain JSON files)
type FileStore struct {
	root  string
	mu    sync.Mutex
	newID func() string
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("file store root cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &FileStore{root: dir, newID: uuid.NewString}, nil
}

// runDir returns the per-run namespace directory, rejecting run IDs that
// would escape the root.
func (f *FileStore) runDir(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("invalid run ID %q", runID)
	}
	return filepath.Join(f.root, runID), nil
}

// entry is one parsed checkpoint filename.
type entry struct {
	seq  int
	id   string
	name string
}

// parseEntry decodes "<seq>-<checkpointID>.json"; non-matching names are skipped.
func parseEntry(name string) (entry, bool) {
	if !strings.HasSuffix(name, ".json") {
		return entry{}, false
	}
	base := strings.TrimSuffix(name, ".json")
	seqStr, id, ok := strings.Cut(base, "-")
	if !ok || len(seqStr) != 8 {
		return entry{}, false
	}
	seq, err := strconv.Atoi(seqStr)
	if err != nil {
		return entry{}, false
	}
	return entry{seq: seq, id: id, name: name}, true
}

// listEntries enumerates a run's checkpoint files in sequence order.
func (f *FileStore) listEntries(runID string) ([]entry, error) {
	dir, err := f.runDir(runID)
	if err != nil {
		return nil, err
	}
	names, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for run %q: %w", runID, err)
	}

	var entries []entry
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		if e, ok := parseEntry(de.Name()); ok {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].seq != entries[j].seq {
			return entries[i].seq < entries[j].seq
		}
		return entries[i].id < entries[j].id
	})
	return entries, nil
}

// Commit writes the snapshot as a new JSON document under the run's
// namespace. A fresh checkpoint ID is generated per attempt; an existing
// file is never overwritten.
func (f *FileStore) Commit(_ context.Context, runID string, snap Snapshot) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir, err := f.runDir(runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run namespace: %w", err)
	}

	entries, err := f.listEntries(runID)
	if err != nil {
		return "", err
	}
	seq := 1
	if len(entries) > 0 {
		seq = entries[len(entries)-1].seq + 1
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	for {
		cpID := f.newID()
		final := filepath.Join(dir, fmt.Sprintf("%08d-%s.json", seq, cpID))
		if _, err := os.Stat(final); err == nil {
			// Checkpoint ID collision: retry with a fresh ID.
			continue
		}

		tmp, err := os.CreateTemp(dir, ".commit-*")
		if err != nil {
			return "", fmt.Errorf("create temp checkpoint: %w", err)
		}
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return "", fmt.Errorf("write checkpoint: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return "", fmt.Errorf("close checkpoint: %w", err)
		}
		if err := os.Rename(tmp.Name(), final); err != nil {
			os.Remove(tmp.Name())
			return "", fmt.Errorf("publish checkpoint: %w", err)
		}
		return cpID, nil
	}
}

// Lookup loads the snapshot stored under (runID, checkpointID).
func (f *FileStore) Lookup(_ context.Context, runID, checkpointID string) (Snapshot, error) {
	f.mu.Lock()
	entries, err := f.listEntries(runID)
	f.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	for _, e := range entries {
		if e.id != checkpointID {
			continue
		}
		dir, err := f.runDir(runID)
		if err != nil {
			return Snapshot{}, err
		}
		data, err := os.ReadFile(filepath.Join(dir, e.name))
		if err != nil {
			return Snapshot{}, fmt.Errorf("read checkpoint %q: %w", checkpointID, err)
		}
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return Snapshot{}, fmt.Errorf("decode checkpoint %q: %w", checkpointID, err)
		}
		return snap, nil
	}
	return Snapshot{}, ErrNotFound
}

// Latest returns the checkpoint ID with the highest sequence for the run.
func (f *FileStore) Latest(_ context.Context, runID string) (string, error) {
	f.mu.Lock()
	entries, err := f.listEntries(runID)
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNotFound
	}
	return entries[len(entries)-1].id, nil
}

// List enumerates the run's checkpoints in commit (sequence) order.
func (f *FileStore) List(ctx context.Context, runID string) ([]CheckpointRef, error) {
	f.mu.Lock()
	entries, err := f.listEntries(runID)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	refs := make([]CheckpointRef, 0, len(entries))
	for _, e := range entries {
		snap, err := f.Lookup(ctx, runID, e.id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, CheckpointRef{ID: e.id, Step: snap.Step, Timestamp: snap.Timestamp})
	}
	return refs, nil
}

// Close is a no-op for FileStore; files require no teardown.
func (f *FileStore) Close() error {
	return nil
}
