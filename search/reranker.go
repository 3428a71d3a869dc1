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

package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/ratelimit"
	"github.com/arakoodev/gutty/retry"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panjf2000/ants/v2"
)

const (
	defaultParallelism = 4
	defaultCacheSize   = 1024
)

// Reranker rescores coarse candidates against a fine embedding of the query.
type Reranker struct {
	embedder    ai.Embedder
	limiter     *ratelimit.Limiter
	policy      retry.Policy
	parallelism int
	topN        int
	cache       *lru.Cache[string, []float32]
	logger      *slog.Logger
}

// RerankerOption configures a Reranker.
type RerankerOption func(*Reranker) error

// WithParallelism bounds concurrent candidate embeddings. Default is 4.
func WithParallelism(n int) RerankerOption {
	return func(r *Reranker) error {
		if n < 1 {
			n = 1
		}
		r.parallelism = n
		return nil
	}
}

// WithTopN truncates the ranking. Zero keeps every candidate.
func WithTopN(n int) RerankerOption {
	return func(r *Reranker) error {
		r.topN = n
		return nil
	}
}

// WithCacheSize sets how many fine embeddings are kept between queries.
func WithCacheSize(size int) RerankerOption {
	return func(r *Reranker) error {
		cache, err := lru.New[string, []float32](size)
		if err != nil {
			return err
		}
		r.cache = cache
		return nil
	}
}

// WithRerankerLimiter paces every fine embedding call.
func WithRerankerLimiter(limiter *ratelimit.Limiter) RerankerOption {
	return func(r *Reranker) error {
		r.limiter = limiter
		return nil
	}
}

// WithRerankerPolicy sets the retry policy for each fine embedding call.
func WithRerankerPolicy(policy retry.Policy) RerankerOption {
	return func(r *Reranker) error {
		r.policy = policy
		return nil
	}
}

// WithRerankerLogger sets a custom logger.
func WithRerankerLogger(logger *slog.Logger) RerankerOption {
	return func(r *Reranker) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// NewReranker creates a reranker using the fine embedder.
func NewReranker(embedder ai.Embedder, opts ...RerankerOption) (*Reranker, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	cache, err := lru.New[string, []float32](defaultCacheSize)
	if err != nil {
		return nil, err
	}

	r := &Reranker{
		embedder:    embedder,
		policy:      retry.DefaultPolicy(),
		parallelism: defaultParallelism,
		cache:       cache,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reranker", "embedder", embedder.Name())
	return r, nil
}

// Rerank orders candidates by cosine similarity between the fine embedding
// of query and of each candidate's representative item, highest first. Ties
// keep coarse order. Candidates whose embedding fails or whose dimension
// differs from the query's are left out. Failing to embed the query fails
// the call.
func (r *Reranker) Rerank(ctx context.Context, query core.Payload, candidates []*core.Candidate) ([]*core.RankedCandidate, error) {
	return r.rerank(ctx, query, candidates, &noopMonitor{})
}

// scored is the per-candidate result slot filled by a worker.
type scored struct {
	ranked *core.RankedCandidate
	err    error
}

func (r *Reranker) rerank(ctx context.Context, query core.Payload, candidates []*core.Candidate, monitor SearchMonitor) ([]*core.RankedCandidate, error) {
	if len(candidates) == 0 {
		return []*core.RankedCandidate{}, nil
	}

	queryVec, err := embedPaced(ctx, r.embedder, r.limiter, r.policy, query)
	if err != nil {
		r.logger.Error("error generating fine embedding for query", "query", query.Ref(), "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	pool, err := ants.NewPool(r.parallelism)
	if err != nil {
		return nil, fmt.Errorf("create rerank pool: %w", err)
	}
	defer pool.Release()

	slots := make([]scored, len(candidates))
	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			slots[i] = r.score(ctx, queryVec, c, i)
		}); err != nil {
			wg.Done()
			slots[i] = scored{err: err}
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := make([]*core.RankedCandidate, 0, len(candidates))
	for i, s := range slots {
		if s.err != nil {
			r.logger.Warn("excluding candidate", "rank", i, "err", s.err)
			monitor.CandidateExcluded(candidates[i], s.err)
			continue
		}
		ranked = append(ranked, s.ranked)
	}

	slices.SortStableFunc(ranked, func(a, b *core.RankedCandidate) int {
		return cmp.Compare(b.RerankScore, a.RerankScore)
	})
	if r.topN > 0 && len(ranked) > r.topN {
		ranked = ranked[:r.topN]
	}

	r.logger.Debug("reranked candidates", "candidates", len(candidates), "ranked", len(ranked))
	return ranked, nil
}

// score embeds one candidate and compares it with the query.
func (r *Reranker) score(ctx context.Context, queryVec []float32, c *core.Candidate, rank int) scored {
	if c == nil || c.Record == nil {
		return scored{err: fmt.Errorf("%w: candidate has no record", core.ErrInvalidRecord)}
	}

	vec, err := r.fineVector(ctx, c.Record.Representative())
	if err != nil {
		return scored{err: fmt.Errorf("embed candidate %s: %w", c.Record.ID, err)}
	}

	sim, err := core.CosineSimilarity(queryVec, vec)
	if err != nil {
		return scored{err: fmt.Errorf("candidate %s: %w", c.Record.ID, err)}
	}

	return scored{ranked: &core.RankedCandidate{
		Candidate:   *c,
		CoarseRank:  rank,
		RerankScore: sim,
	}}
}

// fineVector returns the cached fine embedding for payload or computes it.
func (r *Reranker) fineVector(ctx context.Context, payload core.Payload) ([]float32, error) {
	key := payload.Key()
	if vec, ok := r.cache.Get(key); ok {
		return vec, nil
	}

	if err := core.ValidatePayload(payload); err != nil {
		return nil, err
	}

	vec, err := embedPaced(ctx, r.embedder, r.limiter, r.policy, payload)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, vec)
	return vec, nil
}

// Purge drops every cached fine embedding.
func (r *Reranker) Purge() {
	r.cache.Purge()
}
