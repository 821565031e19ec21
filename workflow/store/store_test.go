package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func testSnapshot(step int) Snapshot {
	return Snapshot{
		RunID:  "run-1",
		Step:   step,
		Status: "running",
		Info:   json.RawMessage(`{"start_id":"a"}`),
		Executors: map[string]map[string]map[string]json.RawMessage{
			"a": {"default": {"count": json.RawMessage(fmt.Sprintf("%d", step))}},
		},
		Queues: map[string][]QueuedMessage{
			"b": {{SourceID: "a", Kind: "int", Data: json.RawMessage(`7`)}},
		},
		Edges: map[string]EdgeState{
			"fan_in:a+b=>c#0": {
				Seq: 2,
				Buffers: map[string][]BufferedMessage{
					"a": {{Seq: 1, Kind: "int", Data: json.RawMessage(`1`)}},
				},
			},
		},
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// conformance runs the behavioral contract shared by every Store backend.
func conformance(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("commit then lookup round trips", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		want := testSnapshot(1)
		cpID, err := s.Commit(ctx, "run-1", want)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if cpID == "" {
			t.Fatal("Commit returned empty checkpoint ID")
		}

		got, err := s.Lookup(ctx, "run-1", cpID)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if got.Step != want.Step || got.Status != want.Status {
			t.Errorf("header mismatch: got step=%d status=%q", got.Step, got.Status)
		}
		if string(got.Executors["a"]["default"]["count"]) != "1" {
			t.Errorf("executor state lost: %v", got.Executors)
		}
		if len(got.Queues["b"]) != 1 || got.Queues["b"][0].Kind != "int" {
			t.Errorf("queues lost: %v", got.Queues)
		}
		if got.Edges["fan_in:a+b=>c#0"].Seq != 2 {
			t.Errorf("edge state lost: %v", got.Edges)
		}
	})

	t.Run("every commit gets a distinct ID", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		seen := make(map[string]bool)
		for i := 0; i < 5; i++ {
			cpID, err := s.Commit(ctx, "run-1", testSnapshot(i))
			if err != nil {
				t.Fatalf("Commit %d: %v", i, err)
			}
			if seen[cpID] {
				t.Fatalf("duplicate checkpoint ID %q", cpID)
			}
			seen[cpID] = true
		}
	})

	t.Run("latest tracks commit order", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		var last string
		for i := 0; i < 3; i++ {
			cpID, err := s.Commit(ctx, "run-1", testSnapshot(i))
			if err != nil {
				t.Fatal(err)
			}
			last = cpID
		}
		got, err := s.Latest(ctx, "run-1")
		if err != nil {
			t.Fatalf("Latest: %v", err)
		}
		if got != last {
			t.Errorf("Latest = %q, want %q", got, last)
		}
	})

	t.Run("list enumerates in commit order", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		var ids []string
		for i := 0; i < 3; i++ {
			cpID, err := s.Commit(ctx, "run-1", testSnapshot(i))
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, cpID)
		}
		refs, err := s.List(ctx, "run-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(refs) != 3 {
			t.Fatalf("expected 3 refs, got %d", len(refs))
		}
		for i, ref := range refs {
			if ref.ID != ids[i] {
				t.Errorf("ref %d: ID %q, want %q", i, ref.ID, ids[i])
			}
			if ref.Step != i {
				t.Errorf("ref %d: Step %d, want %d", i, ref.Step, i)
			}
		}
	})

	t.Run("runs are isolated", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		cpA, err := s.Commit(ctx, "run-a", testSnapshot(1))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.Commit(ctx, "run-b", testSnapshot(2)); err != nil {
			t.Fatal(err)
		}

		if _, err := s.Lookup(ctx, "run-b", cpA); !errors.Is(err, ErrNotFound) {
			t.Errorf("cross-run lookup should be ErrNotFound, got %v", err)
		}
		refs, err := s.List(ctx, "run-a")
		if err != nil {
			t.Fatal(err)
		}
		if len(refs) != 1 {
			t.Errorf("run-a should have 1 checkpoint, got %d", len(refs))
		}
	})

	t.Run("missing run and checkpoint are not found", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if _, err := s.Lookup(ctx, "ghost", "cp"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Lookup: expected ErrNotFound, got %v", err)
		}
		if _, err := s.Latest(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Latest: expected ErrNotFound, got %v", err)
		}
		refs, err := s.List(ctx, "ghost")
		if err != nil {
			t.Errorf("List of unknown run should be empty, not an error: %v", err)
		}
		if len(refs) != 0 {
			t.Errorf("expected no refs, got %v", refs)
		}
	})

	t.Run("pending request survives the round trip", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		snap := testSnapshot(4)
		snap.Status = "yielded"
		snap.Request = &PendingRequest{
			RequestID: "req-9",
			PortID:    "human",
			SourceID:  "asker",
			Kind:      "string",
			Data:      json.RawMessage(`"pick a number"`),
		}
		cpID, err := s.Commit(ctx, "run-1", snap)
		if err != nil {
			t.Fatal(err)
		}
		got, err := s.Lookup(ctx, "run-1", cpID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Request == nil || got.Request.RequestID != "req-9" || got.Request.PortID != "human" {
			t.Errorf("pending request lost: %+v", got.Request)
		}
	})

	t.Run("stored snapshots are immune to caller mutation", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		snap := testSnapshot(1)
		cpID, err := s.Commit(ctx, "run-1", snap)
		if err != nil {
			t.Fatal(err)
		}
		snap.Executors["a"]["default"]["count"] = json.RawMessage(`999`)

		got, err := s.Lookup(ctx, "run-1", cpID)
		if err != nil {
			t.Fatal(err)
		}
		if string(got.Executors["a"]["default"]["count"]) != "1" {
			t.Error("committed snapshot changed after caller mutation")
		}
	})
}

func TestMemStore(t *testing.T) {
	conformance(t, func(t *testing.T) Store { return NewMemStore() })
}

func TestFileStore(t *testing.T) {
	conformance(t, func(t *testing.T) Store {
		fs, err := NewFileStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return fs
	})
}

func TestSQLiteStore(t *testing.T) {
	conformance(t, func(t *testing.T) Store {
		s, err := NewSQLiteStore(t.TempDir() + "/checkpoints.db")
		if err != nil {
			t.Fatalf("NewSQLiteStore: %v", err)
		}
		return s
	})
}

func TestMemStore_CollisionRetry(t *testing.T) {
	s := NewMemStore()
	ids := []string{"dup", "dup", "fresh"}
	s.newID = func() string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	cp1, err := s.Commit(context.Background(), "r", testSnapshot(1))
	if err != nil || cp1 != "dup" {
		t.Fatalf("first commit: %q %v", cp1, err)
	}
	cp2, err := s.Commit(context.Background(), "r", testSnapshot(2))
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if cp2 != "fresh" {
		t.Errorf("expected collision retry to land on fresh ID, got %q", cp2)
	}
}
