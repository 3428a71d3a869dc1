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
	"log/slog"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
)

// Searcher chains coarse retrieval and fine reranking.
type Searcher struct {
	retriever *Retriever
	reranker  *Reranker
	logger    *slog.Logger
}

// NewSearcher wires a retriever on the provider's coarse embedder and a
// reranker on its fine embedder.
func NewSearcher(index storage.VectorIndex, provider ai.Provider, table string, retrieverOpts []RetrieverOption, rerankerOpts ...RerankerOption) (*Searcher, error) {
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	retriever, err := NewRetriever(index, provider.Embedder(), table, retrieverOpts...)
	if err != nil {
		return nil, err
	}
	reranker, err := NewReranker(provider.FineEmbedder(), rerankerOpts...)
	if err != nil {
		return nil, err
	}

	return &Searcher{
		retriever: retriever,
		reranker:  reranker,
		logger:    retriever.logger.With("component", "searcher"),
	}, nil
}

// Retriever returns the first stage.
func (s *Searcher) Retriever() *Retriever {
	return s.retriever
}

// Reranker returns the second stage.
func (s *Searcher) Reranker() *Reranker {
	return s.reranker
}

// Search retrieves k coarse candidates for query and returns them reranked.
func (s *Searcher) Search(ctx context.Context, query core.Payload, k int) ([]*core.RankedCandidate, error) {
	return s.SearchWithMonitor(ctx, query, k, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query core.Payload, k int, monitor SearchMonitor) ([]*core.RankedCandidate, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	candidates, err := s.retriever.RetrieveFor(ctx, query, k)
	if err != nil {
		return nil, err
	}
	monitor.AfterRetrieve(candidates)

	ranked, err := s.reranker.rerank(ctx, query, candidates, monitor)
	if err != nil {
		s.logger.Error("rerank failed", "candidates", len(candidates), "err", err)
		return nil, err
	}
	monitor.Finish(ranked)
	return ranked, nil
}
