package store

import (
	"context"
	"errors"
	"testing"
)

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/checkpoints.db"
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	cpID, err := s.Commit(ctx, "run-x", testSnapshot(5))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Lookup(ctx, "run-x", cpID)
	if err != nil {
		t.Fatalf("Lookup after reopen: %v", err)
	}
	if got.Step != 5 {
		t.Errorf("step = %d", got.Step)
	}
}

func TestSQLiteStore_CollisionRetry(t *testing.T) {
	s, err := NewSQLiteStore(t.TempDir() + "/checkpoints.db")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ids := []string{"dup", "dup", "fresh"}
	s.newID = func() string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	ctx := context.Background()
	cp1, err := s.Commit(ctx, "r", testSnapshot(1))
	if err != nil || cp1 != "dup" {
		t.Fatalf("first commit: %q %v", cp1, err)
	}
	cp2, err := s.Commit(ctx, "r", testSnapshot(2))
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if cp2 != "fresh" {
		t.Errorf("expected retry to land on fresh ID, got %q", cp2)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("constraint failed: UNIQUE constraint failed: run_checkpoints.run_id, run_checkpoints.checkpoint_id"), true},
		{errors.New("Error 1062 (23000): Duplicate entry 'r-dup' for key 'uniq_run_checkpoint'"), true},
		{errors.New("no such table: run_checkpoints"), false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := isUniqueViolation(tc.err); got != tc.want {
			t.Errorf("isUniqueViolation(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
