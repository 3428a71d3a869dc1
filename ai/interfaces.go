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
	"encoding/json"

	"github.com/arakoodev/gutty/core"
)

// Embedder turns an image or text payload into a vector.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// Embed returns the embedding for one payload. Every call against the
	// same model returns vectors of the same dimension.
	Embed(ctx context.Context, payload core.Payload) ([]float32, error)

	// Name identifies the model or provider in logs and errors.
	Name() string
}

// Generator asks a model for a JSON document describing an optional image
// together with arbitrary JSON-serializable input.
type Generator interface {
	// GenerateStructured returns a syntactically valid JSON value.
	GenerateStructured(ctx context.Context, prompt string, image *core.Payload, input any) (json.RawMessage, error)
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
type Provider interface {
	// Embedder returns the coarse embedding model used for indexing and retrieval.
	Embedder() Embedder

	// FineEmbedder returns the higher fidelity model used for reranking.
	FineEmbedder() Embedder

	// Generator returns the structured generator, or nil when none is configured.
	Generator() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}
