package search

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arakoodev/gutty/ai/mock"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noWait = retry.Policy{Attempts: 2}

func candidate(id, path string, distance float32) *core.Candidate {
	return &core.Candidate{
		Record:   &core.EmbeddingRecord{ID: id, Label: "dish", RepresentativePath: path},
		Distance: distance,
	}
}

// vectorsByRef returns an embed func that looks vectors up by payload reference.
func vectorsByRef(vectors map[string][]float32) mock.EmbedFunc {
	return func(ctx context.Context, p core.Payload) ([]float32, error) {
		if v, ok := vectors[p.Ref()]; ok {
			return v, nil
		}
		return nil, errors.New("no such image")
	}
}

func rankedIDs(ranked []*core.RankedCandidate) []string {
	ids := make([]string, len(ranked))
	for i, rc := range ranked {
		ids[i] = rc.Record.ID
	}
	return ids
}

func TestRerank_OrthogonalVectors(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedFunc(vectorsByRef(map[string][]float32{
		"q.jpg": {1, 0},
		"a.jpg": {1, 0},
		"b.jpg": {0, 1},
	}))
	r, err := NewReranker(embedder, WithRerankerPolicy(noWait))
	require.NoError(t, err)

	ranked, err := r.Rerank(context.Background(), core.ImageRef("q.jpg"), []*core.Candidate{
		candidate("B", "b.jpg", 0.1),
		candidate("A", "a.jpg", 0.2),
	})
	require.NoError(t, err)

	require.Equal(t, []string{"A", "B"}, rankedIDs(ranked))
	assert.InDelta(t, 1.0, ranked[0].RerankScore, 1e-9)
	assert.InDelta(t, 0.0, ranked[1].RerankScore, 1e-9)
	assert.Equal(t, 1, ranked[0].CoarseRank)
	assert.Equal(t, float32(0.2), ranked[0].Distance)
}

func TestRerank_TiesKeepCoarseOrder(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedFunc(vectorsByRef(map[string][]float32{
		"q.jpg": {1, 1},
		"x.jpg": {2, 2},
		"y.jpg": {2, 2},
		"z.jpg": {1, 0},
	}))
	r, err := NewReranker(embedder, WithRerankerPolicy(noWait), WithParallelism(3))
	require.NoError(t, err)

	ranked, err := r.Rerank(context.Background(), core.ImageRef("q.jpg"), []*core.Candidate{
		candidate("z", "z.jpg", 0),
		candidate("y", "y.jpg", 0),
		candidate("x", "x.jpg", 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x", "z"}, rankedIDs(ranked))
}

func TestRerank_ExcludesFailingCandidates(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedFunc(vectorsByRef(map[string][]float32{
		"q.jpg":    {1, 0},
		"a.jpg":    {1, 0},
		"wide.jpg": {1, 0, 0},
	}))
	r, err := NewReranker(embedder, WithRerankerPolicy(noWait))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	ranked, err := r.rerank(context.Background(), core.ImageRef("q.jpg"), []*core.Candidate{
		candidate("missing", "gone.jpg", 0),
		candidate("a", "a.jpg", 0),
		candidate("wide", "wide.jpg", 0),
		{Record: nil},
	}, monitor)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, rankedIDs(ranked))
	assert.Len(t, monitor.excluded, 3)
	assert.Equal(t, 2, embedder.CallsFor(core.ImageRef("gone.jpg")), "failing candidate is retried")
}

func TestRerank_QueryFailureAborts(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedFunc(vectorsByRef(map[string][]float32{"a.jpg": {1}}))
	r, err := NewReranker(embedder, WithRerankerPolicy(noWait))
	require.NoError(t, err)

	_, err = r.Rerank(context.Background(), core.ImageRef("q.jpg"), []*core.Candidate{candidate("a", "a.jpg", 0)})
	assert.Error(t, err)
}

func TestRerank_TopNAndEmpty(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	r, err := NewReranker(embedder, WithTopN(2))
	require.NoError(t, err)

	ranked, err := r.Rerank(context.Background(), core.TextRef("pho"), nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.Zero(t, embedder.CallCount(), "no candidates means no embedding calls")

	ranked, err = r.Rerank(context.Background(), core.TextRef("pho"), []*core.Candidate{
		candidate("1", "1.jpg", 0), candidate("2", "2.jpg", 0), candidate("3", "3.jpg", 0),
	})
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestRerank_CachesCandidateEmbeddings(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	r, err := NewReranker(embedder)
	require.NoError(t, err)

	cands := []*core.Candidate{candidate("1", "1.jpg", 0), candidate("2", "2.jpg", 0)}
	for i := 0; i < 3; i++ {
		_, err := r.Rerank(context.Background(), core.TextRef("pho"), cands)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, embedder.CallsFor(core.ImageRef("1.jpg")))
	assert.Equal(t, 3, embedder.CallsFor(core.TextRef("pho")))

	r.Purge()
	_, err = r.Rerank(context.Background(), core.TextRef("pho"), cands)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.CallsFor(core.ImageRef("1.jpg")))
}

func TestRerank_BoundedParallelism(t *testing.T) {
	var inFlight, peak atomic.Int32
	embedder := mock.NewMockEmbedder().WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return []float32{1, 0}, nil
	})
	r, err := NewReranker(embedder, WithParallelism(2))
	require.NoError(t, err)

	cands := make([]*core.Candidate, 8)
	for i := range cands {
		cands[i] = candidate(string(rune('a'+i)), string(rune('a'+i))+".jpg", 0)
	}
	ranked, err := r.Rerank(context.Background(), core.TextRef("q"), cands)
	require.NoError(t, err)
	assert.Len(t, ranked, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNewReranker_Validation(t *testing.T) {
	_, err := NewReranker(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewReranker(mock.NewMockEmbedder(), WithCacheSize(0))
	assert.Error(t, err)
}
