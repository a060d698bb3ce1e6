package storage

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (r *record) GetID() string { return r.ID }

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "rec")

	t.Run("Create", func(t *testing.T) {
		require.NoError(t, store.Create(&record{ID: "a", Value: "1"}))
		err := store.Create(&record{ID: "a", Value: "1"})
		assert.ErrorIs(t, err, ErrExists)

		assert.Error(t, store.Create(&record{}))
	})

	t.Run("Get", func(t *testing.T) {
		var r record
		require.NoError(t, store.Get("a", &r))
		assert.Equal(t, "1", r.Value)

		assert.ErrorIs(t, store.Get("missing", &r), ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		require.NoError(t, store.Update(&record{ID: "a", Value: "2"}))
		var r record
		require.NoError(t, store.Get("a", &r))
		assert.Equal(t, "2", r.Value)

		assert.ErrorIs(t, store.Update(&record{ID: "nope"}), ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Create(&record{ID: "b"}))
		require.NoError(t, store.Delete("b"))
		assert.ErrorIs(t, store.Delete("b"), ErrNotFound)
	})

	t.Run("List and Scan stay inside the prefix", func(t *testing.T) {
		other := NewBadgerStore(db, "rec2")
		require.NoError(t, other.Create(&record{ID: "x"}))
		require.NoError(t, store.Create(&record{ID: "dir/one"}))
		require.NoError(t, store.Create(&record{ID: "dir/two"}))

		var all []record
		require.NoError(t, store.List(&all))
		assert.Len(t, all, 3)

		var ids []string
		require.NoError(t, store.Scan("dir/", func(id string, _ []byte) error {
			ids = append(ids, id)
			return nil
		}))
		assert.Equal(t, []string{"dir/one", "dir/two"}, ids)
	})
}

func TestTxCommitsAcrossPrefixes(t *testing.T) {
	db := setupTestDB(t)
	left := NewBadgerStore(db, "left")
	right := NewBadgerStore(db, "right")

	err := db.Update(func(txn *badger.Txn) error {
		if err := left.With(txn).Put(&record{ID: "1"}); err != nil {
			return err
		}
		// failing second write discards the first
		return right.With(txn).Update(&record{ID: "missing"})
	})
	assert.ErrorIs(t, err, ErrNotFound)

	var r record
	assert.ErrorIs(t, left.Get("1", &r), ErrNotFound)
}

func TestOpenDB(t *testing.T) {
	db, err := OpenDB(MemoryPath)
	require.NoError(t, err)
	defer db.Close()
	assert.True(t, db.Opts().InMemory)

	dir := t.TempDir() + "/nested/db"
	disk, err := OpenDB(dir)
	require.NoError(t, err)
	require.NoError(t, disk.Close())
	assert.DirExists(t, dir)
}
