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

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arakoodev/gutty/core"
)

// ErrNoEmbedders is returned by a FallbackEmbedder with an empty chain.
var ErrNoEmbedders = errors.New("ai: no embedders configured")

// ProviderError records the failure of one embedder in a fallback chain.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// FallbackEmbedder tries each embedder in order and returns the first success.
// All embedders in a chain must produce vectors of the same dimension.
type FallbackEmbedder struct {
	embedders []Embedder
	logger    *slog.Logger
}

// NewFallbackEmbedder chains the given embedders.
func NewFallbackEmbedder(embedders ...Embedder) *FallbackEmbedder {
	return &FallbackEmbedder{
		embedders: embedders,
		logger:    slog.Default().With("component", "fallback-embedder"),
	}
}

// Name joins the names of the chained embedders.
func (f *FallbackEmbedder) Name() string {
	names := make([]string, len(f.embedders))
	for i, e := range f.embedders {
		names[i] = e.Name()
	}
	return strings.Join(names, ",")
}

// Embed returns the first successful embedding. When every embedder fails the
// error joins one *ProviderError per embedder.
func (f *FallbackEmbedder) Embed(ctx context.Context, payload core.Payload) ([]float32, error) {
	if len(f.embedders) == 0 {
		return nil, ErrNoEmbedders
	}

	var errs []error
	for _, e := range f.embedders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := e.Embed(ctx, payload)
		if err == nil {
			return vec, nil
		}
		f.logger.Debug("embedder failed, trying next", "provider", e.Name(), "err", err)
		errs = append(errs, &ProviderError{Provider: e.Name(), Err: err})
	}
	return nil, errors.Join(errs...)
}
