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

// Package mock provides test double implementations of AI service interfaces.
//
// The mocks allow indexing and search tests to run without a model server
// and give deterministic vectors for identical payloads.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().Embed(ctx, core.TextRef("test"))
//
//	// Custom behavior injection
//	embedder := mock.NewMockEmbedder().
//	    WithEmbedFunc(func(ctx context.Context, p core.Payload) ([]float32, error) {
//	        return []float32{0.1, 0.2, 0.3}, nil
//	    })
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: deterministic unit vectors seeded by the payload key
//   - MockGenerator: echoes the prompt and input as JSON
//   - MockProvider: aggregates the mocks
package mock
