package badger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arakoodev/gutty/ann"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
	"github.com/arakoodev/gutty/storage/storagetest"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorStore_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorIndex {
		idx, err := NewMemoryVectorIndex()
		require.NoError(t, err)
		return idx
	})
}

func TestVectorStore_SmallLists(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorIndex {
		idx, err := NewMemoryVectorIndex(WithProbes(1), WithIndexOptions(ann.Options{Lists: 4}))
		require.NoError(t, err)
		return idx
	})
}

func TestVectorStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	idx, err := NewVectorIndex(dir)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "segments",
		storagetest.Record("a", "ramen", "food101", 1, 0),
		storagetest.Record("b", "pizza", "food101", 0, 1),
	))
	require.NoError(t, idx.CreateIndex(ctx, "segments", storage.DefaultColumn))
	require.NoError(t, idx.Close())

	reopened, err := NewVectorIndex(dir)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(ctx, "segments", "", []float32{0.1, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].Record.ID)
	assert.Equal(t, "pizza", results[0].Record.Label)
}

func TestVectorStore_CorruptIndexFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	store := NewVectorStore(backend)
	defer backend.Close()

	require.NoError(t, store.Upsert(ctx, "t", storagetest.Record("a", "x", "s", 1, 0)))
	require.NoError(t, store.CreateIndex(ctx, "t", ""))

	err = backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeIndexKey("t", storage.DefaultColumn), []byte{0xff}); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)
	store.forgetIndex("t")

	results, err := store.Search(ctx, "t", "", []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Record.ID)
}

func TestVectorStore_ClosedBackend(t *testing.T) {
	idx, err := NewMemoryVectorIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	err = idx.Upsert(context.Background(), "t", storagetest.Record("a", "x", "s", 1))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestVectorStore_CanceledContext(t *testing.T) {
	idx, err := NewMemoryVectorIndex()
	require.NoError(t, err)
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = idx.Upsert(ctx, "t", &core.EmbeddingRecord{ID: "a", Vector: []float32{1}})
	assert.ErrorIs(t, err, context.Canceled)
}
