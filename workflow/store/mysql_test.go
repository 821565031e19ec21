package store

import (
	"context"
	"os"
	"testing"
)

// TestMySQLStore runs the store conformance suite against a real MySQL
// server. Set FLOWGRAPH_MYSQL_DSN to enable, e.g.:
//
//	FLOWGRAPH_MYSQL_DSN="user:pass@tcp(localhost:3306)/flowgraph_test" go test ./...
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("FLOWGRAPH_MYSQL_DSN")
	if dsn == "" {
		t.Skip("FLOWGRAPH_MYSQL_DSN not set; skipping MySQL integration test")
	}

	conformance(t, func(t *testing.T) Store {
		s, err := NewMySQLStore(dsn)
		if err != nil {
			t.Fatalf("NewMySQLStore: %v", err)
		}
		// Isolate test cases: each starts from a clean table.
		if _, err := s.db.ExecContext(context.Background(), "DELETE FROM run_checkpoints"); err != nil {
			t.Fatalf("clean table: %v", err)
		}
		return s
	})
}
