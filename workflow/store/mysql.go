package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore is a MySQL/MariaDB-backed implementation of Store.
//
// Designed for:
//   - Production runs requiring server-backed persistence
//   - Resuming runs on different hosts than the one that committed them
//   - Audit trails over long-running workflows
//
// The DSN format follows go-sql-driver/mysql:
//
//	user:password@tcp(localhost:3306)/flowgraph?parseTime=true
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("FLOWGRAPH_MYSQL_DSN")
//	st, err := store.NewMySQLStore(dsn)
//
// The store auto-migrates its schema and configures connection pooling.
// parseTime=true is required so checkpoint timestamps scan into time.Time.
type MySQLStore struct {
	db    *sql.DB
	newID func() string
}

// NewMySQLStore creates a MySQL-backed store for the given DSN.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db, newID: uuid.NewString}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS run_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			checkpoint_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			snapshot LONGTEXT NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			UNIQUE KEY uq_run_checkpoint (run_id, checkpoint_id),
			KEY idx_run (run_id, id)
		)`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Commit inserts the snapshot under a freshly generated checkpoint ID,
// retrying on the unique-key collision so existing checkpoints are never
// overwritten.
func (s *MySQLStore) Commit(ctx context.Context, runID string, snap Snapshot) (string, error) {
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
func (s *MySQLStore) Lookup(ctx context.Context, runID, checkpointID string) (Snapshot, error) {
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
func (s *MySQLStore) Latest(ctx context.Context, runID string) (string, error) {
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
func (s *MySQLStore) List(ctx context.Context, runID string) ([]CheckpointRef, error) {
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

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
