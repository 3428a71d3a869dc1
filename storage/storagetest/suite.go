// Copyright 2025 The gutty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storagetest holds behaviour tests shared by every
// storage.VectorIndex backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty index. The suite closes it.
type Factory func(t *testing.T) storage.VectorIndex

// Record builds a record for tests.
func Record(id, label, source string, vector ...float32) *core.EmbeddingRecord {
	return &core.EmbeddingRecord{
		ID:                 id,
		Label:              label,
		SourceCollection:   source,
		RepresentativePath: "/data/" + source + "/" + label + "/" + id + ".jpg",
		Vector:             vector,
	}
}

func ids(candidates []*core.Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Record.ID
	}
	return out
}

// Run runs the suite against the backend produced by factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, idx storage.VectorIndex)
	}{
		{"UpsertCreatesTable", testUpsertCreatesTable},
		{"UpsertOverwritesByID", testUpsertOverwritesByID},
		{"UpsertKeepsCallerTimestamp", testUpsertKeepsCallerTimestamp},
		{"UpsertRejectsDimensionMismatch", testUpsertRejectsDimensionMismatch},
		{"UpsertRejectsInvalidRecord", testUpsertRejectsInvalidRecord},
		{"MissingTable", testMissingTable},
		{"SearchOrdersByDistance", testSearchOrdersByDistance},
		{"SearchFilter", testSearchFilter},
		{"SearchValidation", testSearchValidation},
		{"IndexedSearchMatchesExact", testIndexedSearchMatchesExact},
		{"UpsertAfterIndexIsVisible", testUpsertAfterIndexIsVisible},
		{"DropTable", testDropTable},
		{"InvalidTableName", testInvalidTableName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := factory(t)
			defer idx.Close()
			tt.fn(t, idx)
		})
	}
}

func testUpsertCreatesTable(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "segments", Record("a", "ramen", "food101", 1, 0, 0)))

	count, err := idx.Count(ctx, "segments")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	tables, err := idx.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "segments", tables[0].Name)
	assert.Equal(t, storage.DefaultColumn, tables[0].Column)
	assert.Equal(t, 3, tables[0].Dimension)
	assert.False(t, tables[0].IndexFresh)

	got, err := idx.Get(ctx, "segments", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ramen", got.Label)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)
	assert.False(t, got.UpdatedAt.IsZero())

	missing, err := idx.Get(ctx, "segments", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testUpsertOverwritesByID(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t", Record("a", "old", "s", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, "t", Record("a", "new", "s", 0, 1)))

	count, err := idx.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := idx.Get(ctx, "t", "a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Label)
	assert.Equal(t, []float32{0, 1}, got.Vector)
}

func testUpsertKeepsCallerTimestamp(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	at := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	stamped := Record("a", "pho", "s", 1, 0)
	stamped.UpdatedAt = at
	unstamped := Record("b", "pho", "s", 0, 1)
	require.NoError(t, idx.Upsert(ctx, "t", stamped, unstamped))

	assert.True(t, at.Equal(stamped.UpdatedAt), "caller record is not modified")
	assert.True(t, unstamped.UpdatedAt.IsZero(), "caller record is not modified")

	got, err := idx.Get(ctx, "t", "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, at.Equal(got.UpdatedAt), "stored %v, want %v", got.UpdatedAt, at)

	got, err = idx.Get(ctx, "t", "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.UpdatedAt.IsZero())
}

func testUpsertRejectsDimensionMismatch(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t", Record("a", "x", "s", 1, 0)))

	err := idx.Upsert(ctx, "t", Record("b", "x", "s", 1, 0, 0))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	err = idx.Upsert(ctx, "fresh", Record("c", "x", "s", 1, 0), Record("d", "x", "s", 1))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	count, err := idx.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "rejected batch writes nothing")

	count, err = idx.Count(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func testUpsertRejectsInvalidRecord(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	err := idx.Upsert(ctx, "t", &core.EmbeddingRecord{ID: "a"})
	assert.ErrorIs(t, err, core.ErrInvalidRecord)

	err = idx.Upsert(ctx, "t", &core.EmbeddingRecord{Vector: []float32{1}})
	assert.ErrorIs(t, err, core.ErrInvalidRecord)
}

func testMissingTable(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()

	_, err := idx.Search(ctx, "missing", "", []float32{1}, 5, nil)
	assert.ErrorIs(t, err, storage.ErrTableNotFound)

	err = idx.CreateIndex(ctx, "missing", storage.DefaultColumn)
	assert.ErrorIs(t, err, storage.ErrTableNotFound)

	count, err := idx.Count(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func testSearchOrdersByDistance(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t",
		Record("far", "x", "s", 0, 1),
		Record("near", "x", "s", 1, 0),
		Record("mid", "x", "s", 0.8, 0.6),
		Record("opposite", "x", "s", -1, 0),
	))

	results, err := idx.Search(ctx, "t", storage.DefaultColumn, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid", "far", "opposite"}, ids(results))
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
	assert.InDelta(t, 0.2, results[1].Distance, 1e-6)
	assert.InDelta(t, 1, results[2].Distance, 1e-6)
	assert.InDelta(t, 2, results[3].Distance, 1e-6)

	top2, err := idx.Search(ctx, "t", "", []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid"}, ids(top2))
}

func testSearchFilter(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t",
		Record("a", "ramen", "food101", 1, 0),
		Record("b", "pizza", "food101", 1, 0.1),
		Record("c", "ramen", "uecfood", 1, 0.2),
	))

	results, err := idx.Search(ctx, "t", "", []float32{1, 0}, 10, &core.Filter{Label: "ramen"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(results))

	results, err = idx.Search(ctx, "t", "", []float32{1, 0}, 10, &core.Filter{SourceCollection: "food101", Label: "pizza"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(results))
}

func testSearchValidation(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t", Record("a", "x", "s", 1, 0)))

	_, err := idx.Search(ctx, "t", "", []float32{1, 0, 0}, 1, nil)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = idx.Search(ctx, "t", "", []float32{1, 0}, 0, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = idx.Search(ctx, "t", "emb_fine", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, storage.ErrUnknownColumn)

	err = idx.CreateIndex(ctx, "t", "emb_fine")
	assert.ErrorIs(t, err, storage.ErrUnknownColumn)
}

func testIndexedSearchMatchesExact(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	var records []*core.EmbeddingRecord
	for i := 0; i < 40; i++ {
		x := float32(i%7) - 3
		y := float32(i%5) - 2
		records = append(records, Record(fmt.Sprintf("r%02d", i), "x", "s", x, y, float32(i)/40+0.01))
	}
	require.NoError(t, idx.Upsert(ctx, "t", records...))

	query := []float32{1, -1, 0.5}
	exact, err := idx.Search(ctx, "t", "", query, 40, nil)
	require.NoError(t, err)

	require.NoError(t, idx.CreateIndex(ctx, "t", storage.DefaultColumn))
	tables, err := idx.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.True(t, tables[0].IndexFresh)

	indexed, err := idx.Search(ctx, "t", "", query, 40, nil)
	require.NoError(t, err)
	require.Len(t, indexed, 40, "asking for every record probes every list")
	assert.ElementsMatch(t, ids(exact), ids(indexed))
	assert.Equal(t, exact[0].Record.ID, indexed[0].Record.ID)
}

func testUpsertAfterIndexIsVisible(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t", Record("a", "x", "s", 0, 1), Record("b", "x", "s", 0.1, 1)))
	require.NoError(t, idx.CreateIndex(ctx, "t", ""))

	require.NoError(t, idx.Upsert(ctx, "t", Record("new", "x", "s", 1, 0)))
	tables, err := idx.Tables(ctx)
	require.NoError(t, err)
	assert.False(t, tables[0].IndexFresh, "writes mark the index stale")

	results, err := idx.Search(ctx, "t", "", []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids(results))
}

func testDropTable(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, "t", Record("a", "x", "s", 1, 0)))
	require.NoError(t, idx.Upsert(ctx, "other", Record("a", "x", "s", 1, 0)))
	require.NoError(t, idx.CreateIndex(ctx, "t", ""))

	require.NoError(t, idx.DropTable(ctx, "t"))

	_, err := idx.Search(ctx, "t", "", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, storage.ErrTableNotFound)

	count, err := idx.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = idx.Count(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "other tables are untouched")

	// the table can be recreated with a new dimension
	require.NoError(t, idx.Upsert(ctx, "t", Record("b", "x", "s", 1, 0, 0)))
}

func testInvalidTableName(t *testing.T, idx storage.VectorIndex) {
	ctx := context.Background()
	err := idx.Upsert(ctx, "", Record("a", "x", "s", 1))
	assert.ErrorIs(t, err, storage.ErrInvalidTableName)

	err = idx.Upsert(ctx, "a:b", Record("a", "x", "s", 1))
	assert.ErrorIs(t, err, storage.ErrInvalidTableName)
}
