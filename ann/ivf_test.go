package ann

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/arakoodev/gutty/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, seed uint64) ([]string, [][]float32) {
	r := rand.New(rand.NewPCG(seed, seed))
	ids := make([]string, n)
	vecs := make([][]float32, n)
	for i := range vecs {
		ids[i] = fmt.Sprintf("item-%03d", i)
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return ids, vecs
}

func exactTopK(ids []string, vecs [][]float32, q []float32, k int) []string {
	type scored struct {
		id string
		d  float32
	}
	all := make([]scored, len(ids))
	for i := range ids {
		d, _ := core.CosineDistance(q, vecs[i])
		all[i] = scored{ids[i], d}
	}
	sort.Slice(all, func(a, b int) bool { return all[a].d < all[b].d })
	out := make([]string, k)
	for i := range out {
		out[i] = all[i].id
	}
	return out
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil, nil, Options{})
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Build([]string{"a"}, nil, Options{})
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Build([]string{"a", "b"}, [][]float32{{1, 0}, {1, 0, 0}}, Options{})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestBuild_DefaultLists(t *testing.T) {
	ids, vecs := randomVectors(100, 8, 1)
	idx, err := Build(ids, vecs, Options{})
	require.NoError(t, err)
	assert.Equal(t, 10, idx.Lists())
	assert.Equal(t, 100, idx.Len())
	assert.Equal(t, 8, idx.Dimension())
}

func TestSearch_FullProbeMatchesExact(t *testing.T) {
	ids, vecs := randomVectors(200, 16, 7)
	idx, err := Build(ids, vecs, Options{})
	require.NoError(t, err)

	q := vecs[42]
	hits, err := idx.Search(q, 10, idx.Lists(), nil)
	require.NoError(t, err)
	require.Len(t, hits, 10)

	got := make([]string, len(hits))
	for i, h := range hits {
		got[i] = h.ID
	}
	assert.Equal(t, exactTopK(ids, vecs, q, 10), got)
	assert.Equal(t, "item-042", hits[0].ID)
	assert.InDelta(t, 0, hits[0].Distance, 1e-5)
}

func TestSearch_FindsSelfWithFewProbes(t *testing.T) {
	ids, vecs := randomVectors(300, 16, 3)
	idx, err := Build(ids, vecs, Options{})
	require.NoError(t, err)

	for _, i := range []int{0, 57, 299} {
		hits, err := idx.Search(vecs[i], 1, 2, nil)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, ids[i], hits[0].ID)
	}
}

func TestSearch_OrderingAndTies(t *testing.T) {
	ids := []string{"b", "a", "c"}
	vecs := [][]float32{{1, 0}, {1, 0}, {0, 1}}
	idx, err := Build(ids, vecs, Options{Lists: 1})
	require.NoError(t, err)

	hits, err := idx.Search([]float32{1, 0}, 3, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].ID, "equal distances break ties by id")
	assert.Equal(t, "b", hits[1].ID)
	assert.Equal(t, "c", hits[2].ID)
	assert.InDelta(t, 1, hits[2].Distance, 1e-6)
}

func TestSearch_AcceptFilterProbesFurther(t *testing.T) {
	ids, vecs := randomVectors(100, 8, 11)
	idx, err := Build(ids, vecs, Options{})
	require.NoError(t, err)

	accept := func(id string) bool { return id == "item-099" || id == "item-000" }
	hits, err := idx.Search(vecs[5], 2, 1, accept)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.True(t, accept(h.ID))
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	idx, err := Build([]string{"a"}, [][]float32{{1, 0}}, Options{})
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 0, 0}, 1, 1, nil)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestMarshalBinary(t *testing.T) {
	ids, vecs := randomVectors(50, 4, 5)
	idx, err := Build(ids, vecs, Options{})
	require.NoError(t, err)

	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	restored, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), restored.Len())
	assert.Equal(t, idx.Lists(), restored.Lists())

	want, err := idx.Search(vecs[3], 5, 2, nil)
	require.NoError(t, err)
	got, err := restored.Search(vecs[3], 5, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUnmarshal_Corrupt(t *testing.T) {
	ids, vecs := randomVectors(10, 4, 9)
	idx, err := Build(ids, vecs, Options{})
	require.NoError(t, err)
	data, err := idx.MarshalBinary()
	require.NoError(t, err)

	_, err = Unmarshal(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Unmarshal([]byte{9})
	assert.ErrorIs(t, err, ErrCorrupt)
}
