package truth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/ablation/datastore"
	"github.com/teranos/ablation/errors"
	testdb "github.com/teranos/ablation/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	database := testdb.CreateTestDB(t)
	docs := datastore.NewSQLiteStore(database, nil)

	fixture := &datastore.Fixture{Collections: map[string][]datastore.Document{
		"MusicActivity": {
			{"_key": "A", "artist": "Drake"},
			{"_key": "B", "artist": "Beyoncé"},
			{"_key": "C", "artist": "Ed Sheeran"},
		},
		"LocationActivity": {
			{"_key": "L1", "location_name": "Home"},
		},
	}}
	require.NoError(t, fixture.Seed(ctx, docs))

	return NewStore(database, docs, zaptest.NewLogger(t).Sugar())
}

func TestStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	set, found, err := store.Lookup(ctx, "q1", "MusicActivity")
	require.NoError(t, err)
	assert.False(t, found, "no record yet")
	assert.Equal(t, 0, set.Len())

	require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"B", "A", "A"}))

	set, found, err = store.Lookup(ctx, "q1", "MusicActivity")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"A", "B"}, set.Sorted())

	got, err := store.Get(ctx, "q1", "LocationActivity")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len(), "unknown pair reads as empty")
}

func TestEmptyTruthIsDistinctFromAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Store(ctx, "q1", "LocationActivity", nil))

	set, found, err := store.Lookup(ctx, "q1", "LocationActivity")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, set.Len())
}

func TestConflictRule(t *testing.T) {
	ctx := context.Background()

	t.Run("different non-empty sets conflict", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"A"}))

		err := store.Store(ctx, "q1", "MusicActivity", []string{"B"})
		require.Error(t, err)
		assert.True(t, errors.IsIntegrity(err))
		assert.Contains(t, err.Error(), "q1")
		assert.Contains(t, err.Error(), "MusicActivity")
		assert.Contains(t, errors.FlattenDetails(err), "existing keys: A; offered keys: B")

		set, err := store.Get(ctx, "q1", "MusicActivity")
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, set.Sorted(), "original truth is untouched")
	})

	t.Run("identical overwrite succeeds", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"A", "B"}))
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"B", "A"}))
	})

	t.Run("empty then non-empty keeps non-empty", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{}))
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"A"}))

		set, err := store.Get(ctx, "q1", "MusicActivity")
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, set.Sorted())
	})

	t.Run("non-empty then empty keeps non-empty", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"A"}))
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{}))

		set, err := store.Get(ctx, "q1", "MusicActivity")
		require.NoError(t, err)
		assert.Equal(t, []string{"A"}, set.Sorted())
	})
}

func TestValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown collection", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Store(ctx, "q1", "TaskActivity", []string{"t1"}, SkipEntityValidation())
		require.Error(t, err)
		assert.True(t, errors.IsIntegrity(err))
		assert.Contains(t, err.Error(), "TaskActivity does not exist")
	})

	t.Run("missing entity", func(t *testing.T) {
		store := newTestStore(t)
		err := store.Store(ctx, "q1", "MusicActivity", []string{"A", "Z"})
		require.Error(t, err)
		assert.True(t, errors.IsIntegrity(err))
		assert.Contains(t, errors.FlattenDetails(err), "missing keys: Z")

		_, found, err := store.Lookup(ctx, "q1", "MusicActivity")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("skip validation per call", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"Z"}, SkipEntityValidation()))
	})

	t.Run("skip validation store-wide", func(t *testing.T) {
		store := newTestStore(t).WithEntityValidation(false)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"Z"}))
	})

	t.Run("synthetic keys are never validated", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity",
			[]string{"A", "synthetic_music_1", "control_synthetic_music_2"}))
	})

	t.Run("empty ids", func(t *testing.T) {
		store := newTestStore(t)
		assert.True(t, errors.IsIntegrity(store.Store(ctx, "", "MusicActivity", []string{"A"})))
		assert.True(t, errors.IsIntegrity(store.Store(ctx, "q1", "", []string{"A"})))
		assert.True(t, errors.IsIntegrity(store.Store(ctx, "q1", "MusicActivity", []string{""})))
	})
}

func TestStoreUnified(t *testing.T) {
	ctx := context.Background()

	t.Run("stores every collection", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.StoreUnified(ctx, "q1", map[string][]string{
			"MusicActivity":    {"A", "C"},
			"LocationActivity": {},
		}))

		sets, found, err := store.GetUnified(ctx, "q1")
		require.NoError(t, err)
		require.True(t, found)
		require.Len(t, sets, 2)
		assert.Equal(t, []string{"A", "C"}, sets["MusicActivity"].Sorted())
		assert.Equal(t, 0, sets["LocationActivity"].Len())

		ids, err := store.QueryIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"q1"}, ids)
	})

	t.Run("conflict in one collection stores nothing", func(t *testing.T) {
		store := newTestStore(t)
		require.NoError(t, store.Store(ctx, "q1", "MusicActivity", []string{"A"}))

		err := store.StoreUnified(ctx, "q1", map[string][]string{
			"LocationActivity": {"L1"},
			"MusicActivity":    {"B"},
		})
		require.Error(t, err)
		assert.True(t, errors.IsIntegrity(err))

		_, found, err := store.Lookup(ctx, "q1", "LocationActivity")
		require.NoError(t, err)
		assert.False(t, found, "transaction rolled back")
	})

	t.Run("unknown query", func(t *testing.T) {
		store := newTestStore(t)
		sets, found, err := store.GetUnified(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, sets)
	})
}

func TestKeySet(t *testing.T) {
	a := NewKeySet("t1", "t2", "t3")
	b := NewKeySet("t1", "o1")

	assert.Equal(t, 1, a.Intersection(b))
	assert.Equal(t, 1, b.Intersection(a))
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(NewKeySet("t3", "t2", "t1")))

	data, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["t1","t2","t3"]`, string(data))

	var decoded KeySet
	require.NoError(t, decoded.UnmarshalJSON([]byte(`["x","x","y"]`)))
	assert.Equal(t, []string{"x", "y"}, decoded.Sorted())

	empty, err := KeySet(nil).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
