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

package mock

import "github.com/arakoodev/gutty/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	coarse    *MockEmbedder
	fine      *MockEmbedder
	generator *MockGenerator
}

// NewMockProvider creates a new mock provider with default mock services.
// The coarse and fine embedders are distinct instances.
//
// Returns ai.Provider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockFineEmbedder() to access concrete types.
func NewMockProvider() ai.Provider {
	return &MockProvider{
		coarse:    NewMockEmbedder().WithName("mock-coarse"),
		fine:      NewMockEmbedder().WithName("mock-fine"),
		generator: NewMockGenerator(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
func NewMockProviderWithServices(coarse, fine *MockEmbedder, generator *MockGenerator) ai.Provider {
	return &MockProvider{
		coarse:    coarse,
		fine:      fine,
		generator: generator,
	}
}

// Embedder returns the coarse mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.coarse
}

// FineEmbedder returns the fine mock embedder.
func (p *MockProvider) FineEmbedder() ai.Embedder {
	return p.fine
}

// Generator returns the mock generator, or nil when none was supplied.
func (p *MockProvider) Generator() ai.Generator {
	if p.generator == nil {
		return nil
	}
	return p.generator
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying coarse embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.coarse
}

// GetMockFineEmbedder returns the underlying fine embedder for test assertions.
func (p *MockProvider) GetMockFineEmbedder() *MockEmbedder {
	return p.fine
}

// GetMockGenerator returns the underlying generator for test assertions.
func (p *MockProvider) GetMockGenerator() *MockGenerator {
	return p.generator
}
