package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/arakoodev/gutty/ann"
	"github.com/arakoodev/gutty/storage"
	"github.com/arakoodev/gutty/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorIndex {
		idx, err := NewVectorIndex(context.Background(), ":memory:")
		require.NoError(t, err)
		return idx
	})
}

func TestStore_SuiteOnDisk(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorIndex {
		path := filepath.Join(t.TempDir(), "vectors.db")
		idx, err := NewVectorIndex(context.Background(), path, WithProbes(1), WithIndexOptions(ann.Options{Lists: 3}))
		require.NoError(t, err)
		return idx
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "vectors.db")

	idx, err := NewVectorIndex(ctx, path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, "recipes",
		storagetest.Record("r1", "curry", "recipes", 1, 0, 0),
		storagetest.Record("r2", "salad", "recipes", 0, 1, 0),
	))
	require.NoError(t, idx.CreateIndex(ctx, "recipes", ""))
	require.NoError(t, idx.Close())

	reopened, err := NewVectorIndex(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	tables, err := reopened.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.True(t, tables[0].IndexFresh)
	assert.Equal(t, 3, tables[0].Dimension)

	results, err := reopened.Search(ctx, "recipes", "", []float32{0, 1, 0.1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "r2", results[0].Record.ID)
}

func TestStore_Closed(t *testing.T) {
	idx, err := NewVectorIndex(context.Background(), "")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Count(context.Background(), "t")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestEmbeddingEncoding(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	blob := encodeEmbedding(vec)
	assert.Len(t, blob, 12)

	got, err := decodeEmbedding(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}
