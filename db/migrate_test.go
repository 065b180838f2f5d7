package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMigrations(t *testing.T) {
	list, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, "000", list[0].Version, "schema_migrations must be created first")

	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].File, list[i].File)
	}
}

func TestMigrate(t *testing.T) {
	t.Run("creates harness tables", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		applied, err := Migrate(db, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		assert.Contains(t, applied, "000")

		for _, table := range []string{"schema_migrations", "collections", "documents", "truth_records"} {
			var count int
			err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s should exist", table)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = Migrate(db, nil)
		require.NoError(t, err)

		applied, err := Migrate(db, nil)
		require.NoError(t, err, "running migrations multiple times should be safe")
		assert.Empty(t, applied)
	})

	t.Run("truth records reject non-array keys", func(t *testing.T) {
		db, err := OpenWithMigrations(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec("INSERT INTO truth_records (query_id, collection, entity_keys) VALUES ('q', 'c', '{}')")
		assert.Error(t, err)

		_, err = db.Exec("INSERT INTO truth_records (query_id, collection, entity_keys) VALUES ('q', 'c', '[]')")
		assert.NoError(t, err)
	})

	t.Run("closed database fails with stack trace", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		_, err = Migrate(db, nil)
		require.Error(t, err)
		assert.True(t, IsUnreachable(err))
		assert.Contains(t, fmt.Sprintf("%+v", err), "migrate.go")
	})
}
