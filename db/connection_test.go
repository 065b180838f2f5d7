package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/ablation/errors"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, zaptest.NewLogger(t).Sugar())
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode").Scan(&journalMode)
		require.NoError(t, err)
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		err = db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys)
		require.NoError(t, err)
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		err = db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout)
		require.NoError(t, err)
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}

		require.Error(t, err)
		assert.NotNil(t, errors.GetStack(err), "error should have stack trace from errors.Wrap")
	})

	t.Run("creates database file if it doesn't exist", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "new.db")

		_, err := os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err))

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("in-memory database keeps state across statements", func(t *testing.T) {
		db, err := OpenWithMigrations(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec("INSERT INTO collections (name) VALUES ('MusicActivity')")
		require.NoError(t, err)

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM collections").Scan(&count))
		assert.Equal(t, 1, count)
	})
}

func TestIsUnreachable(t *testing.T) {
	assert.False(t, IsUnreachable(nil))
	assert.True(t, IsUnreachable(ErrDatabaseClosed))
	assert.True(t, IsUnreachable(errors.New("sql: database is closed")))
	assert.True(t, IsUnreachable(errors.New("unable to open database file: no such file or directory")))
	assert.False(t, IsUnreachable(errors.New("UNIQUE constraint failed: documents.collection, documents.key")))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil, "noop"))

	err := Classify(ErrDatabaseClosed, "read %s", "MusicActivity")
	assert.True(t, errors.IsConnectivity(err))
	assert.Contains(t, err.Error(), "read MusicActivity")

	err = Classify(errors.New("no such column: nope"), "query")
	assert.False(t, errors.IsConnectivity(err))
	assert.True(t, errors.IsFatal(err))
}
