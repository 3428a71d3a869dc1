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
	"context"
	"fmt"
	"log/slog"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/ratelimit"
	"github.com/arakoodev/gutty/retry"
	"github.com/arakoodev/gutty/storage"
)

// Retriever issues coarse nearest-neighbour queries against one table.
type Retriever struct {
	index    storage.VectorIndex
	embedder ai.Embedder
	table    string
	column   string
	filter   *core.Filter
	limiter  *ratelimit.Limiter
	policy   retry.Policy
	logger   *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithColumn selects the embedding column. By default the table's own
// column is searched.
func WithColumn(column string) RetrieverOption {
	return func(r *Retriever) {
		r.column = column
	}
}

// WithFilter restricts results to matching metadata.
func WithFilter(filter *core.Filter) RetrieverOption {
	return func(r *Retriever) {
		r.filter = filter
	}
}

// WithRetrieverLimiter paces query embedding calls.
func WithRetrieverLimiter(limiter *ratelimit.Limiter) RetrieverOption {
	return func(r *Retriever) {
		r.limiter = limiter
	}
}

// WithRetrieverPolicy sets the retry policy for query embedding.
func WithRetrieverPolicy(policy retry.Policy) RetrieverOption {
	return func(r *Retriever) {
		r.policy = policy
	}
}

// WithRetrieverLogger sets a custom logger.
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRetriever creates a retriever over table. The embedder must be the model
// the table was indexed with; it may be nil when only Retrieve is used.
func NewRetriever(index storage.VectorIndex, embedder ai.Embedder, table string, opts ...RetrieverOption) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if table == "" {
		return nil, core.MissingSetting("Table")
	}

	r := &Retriever{
		index:    index,
		embedder: embedder,
		table:    table,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "retriever", "table", table)
	return r, nil
}

// Retrieve returns up to k candidates nearest to vector, closest first.
func (r *Retriever) Retrieve(ctx context.Context, vector []float32, k int) ([]*core.Candidate, error) {
	if k <= 0 {
		return nil, ErrInvalidTopK
	}

	candidates, err := r.index.Search(ctx, r.table, r.column, vector, k, r.filter)
	if err != nil {
		r.logger.Error("vector search failed", "k", k, "err", err)
		return nil, err
	}

	r.logger.Debug("retrieved candidates", "k", k, "count", len(candidates))
	return candidates, nil
}

// RetrieveFor embeds the query payload and retrieves its nearest candidates.
func (r *Retriever) RetrieveFor(ctx context.Context, query core.Payload, k int) ([]*core.Candidate, error) {
	if r.embedder == nil {
		return nil, ErrEmbedderRequired
	}

	vector, err := embedPaced(ctx, r.embedder, r.limiter, r.policy, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query.Ref(), "err", err)
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return r.Retrieve(ctx, vector, k)
}

// embedPaced makes one rate-limited, retried embedding call.
func embedPaced(ctx context.Context, embedder ai.Embedder, limiter *ratelimit.Limiter, policy retry.Policy, payload core.Payload) ([]float32, error) {
	var vec []float32
	err := policy.Do(ctx, func() error {
		if err := limiter.WaitIfNeeded(ctx); err != nil {
			return err
		}
		v, err := embedder.Embed(ctx, payload)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return core.ErrEmptyVector
		}
		vec = v
		return nil
	})
	return vec, err
}
