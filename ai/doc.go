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

// Package ai defines the model boundaries used by gutty.
//
// Indexing and retrieval depend only on the Embedder interface, which turns a
// core.Payload (an image reference or a text span) into a vector. Analysis
// depends on Generator, which returns structured JSON. A Provider groups the
// coarse embedder, the fine embedder used for reranking and the generator.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible HTTP APIs through langchaingo
//   - ai/mock: deterministic test doubles
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behaviour and assert on call counts.
//
//	provider, err := openai.NewProvider(ai.NewConfig(ai.WithAPIKey(key)))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().Embed(ctx, core.ImageRef("dish.jpg"))
//
// Several embedders can be chained with NewFallbackEmbedder. The chain tries
// each in order and reports every failure as a *ProviderError.
package ai
