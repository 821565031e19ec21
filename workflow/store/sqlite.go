package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of Store.
//
// It persists checkpoints in a single-file database. Designed for:
//   - Development and local durable runs with zero setup
//   - Single-process deployments that outlive restarts
//   - Prototyping before migrating to a server-backed store
//
// The store uses WAL mode so concurrent lookups don't block commits, and
// auto-migrates its schema on first use.
//
// Schema:
//   - run_checkpoints: one row per (run_id, checkpoint_id) with the snapshot
//     as a JSON document; the autoincrement rowid provides commit order.
type SQLiteStore struct {
	db    *sql.DB
	newID func() string
}

// NewSQLiteStore creates a SQLite-backed store at the given path.
//
// The path can be a file ("./checkpoints.db"), an absolute path, or
// ":memory:" for an in-memory database (data lost on close).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports one writer; keep a single connection to avoid
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, newID: uuid.NewString}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			snapshot TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (run_id, checkpoint_id)
		);
		CREATE INDEX IF NOT EXISTS idx_run_checkpoints_run
			ON run_checkpoints (run_id, id);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Commit inserts the snapshot under a freshly generated checkpoint ID.
// The UNIQUE (run_id, checkpoint_id) constraint makes the insert an
// optimistic, lock-free reservation: a collision fails the insert and the
// commit retries with a new ID.
func (s *SQLiteStore) Commit(ctx context.Context, runID string, snap Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	for {
		cpID := s.newID()
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO run_checkpoints (run_id, checkpoint_id, step, snapshot, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			runID, cpID, snap.Step, string(data), ts)
		if err == nil {
			return cpID, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return "", fmt.Errorf("commit checkpoint: %w", err)
	}
}

// Lookup returns the snapshot stored under (runID, checkpointID).
func (s *SQLiteStore) Lookup(ctx context.Context, runID, checkpointID string) (Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM run_checkpoints WHERE run_id = ? AND checkpoint_id = ?`,
		runID, checkpointID).Scan(&data)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("lookup checkpoint: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode checkpoint %q: %w", checkpointID, err)
	}
	return snap, nil
}

// Latest returns the most recently committed checkpoint ID for the run.
func (s *SQLiteStore) Latest(ctx context.Context, runID string) (string, error) {
	var cpID string
	err := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id FROM run_checkpoints WHERE run_id = ? ORDER BY id DESC LIMIT 1`,
		runID).Scan(&cpID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest checkpoint: %w", err)
	}
	return cpID, nil
}

// List enumerates the run's checkpoints in commit order.
func (s *SQLiteStore) List(ctx context.Context, runID string) ([]CheckpointRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id, step, created_at FROM run_checkpoints
		 WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var refs []CheckpointRef
	for rows.Next() {
		var ref CheckpointRef
		if err := rows.Scan(&ref.ID, &ref.Step, &ref.Timestamp); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a unique-constraint failure from
// either SQL backend.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "Duplicate entry") // mysql 1062
}
