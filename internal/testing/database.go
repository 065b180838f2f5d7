package testing

import (
	"database/sql"
	"testing"

	"github.com/teranos/ablation/db"
)

// CreateTestDB creates an in-memory SQLite database with all migrations applied.
// Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenWithMigrations(db.MemoryPath, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database
}
