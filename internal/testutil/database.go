package testutil

import (
	"database/sql"
	"testing"

	"gbtim/internal/database"

	_ "github.com/mattn/go-sqlite3"
)

// NewTestDatabase creates an in-memory SQLite index with the full schema
// applied, deterministic IDs and a fixed clock. The connection is closed
// when the test finishes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if _, err := conn.Exec(database.Schema); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}

	db := database.NewSQLiteDatabaseFromDB(conn, &SequenceIDGenerator{}, NewFixedClock())
	t.Cleanup(func() { db.Close() })
	return db
}
