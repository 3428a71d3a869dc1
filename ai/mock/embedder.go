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

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/arakoodev/gutty/core"
)

// DefaultDimension is the vector length produced by the default behavior.
const DefaultDimension = 32

// EmbedFunc replaces the default embedding behavior.
type EmbedFunc func(ctx context.Context, payload core.Payload) ([]float32, error)

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields and is safe for
// concurrent use.
type MockEmbedder struct {
	// EmbedFunc is called by Embed if set.
	// If nil, uses default deterministic behavior.
	EmbedFunc EmbedFunc

	name      string
	dim       int
	mu        sync.Mutex
	callCount int
	calls     map[string]int
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		name:  "mock",
		dim:   DefaultDimension,
		calls: make(map[string]int),
	}
}

// WithEmbedFunc sets custom behavior and returns the embedder for chaining.
func (m *MockEmbedder) WithEmbedFunc(fn EmbedFunc) *MockEmbedder {
	m.EmbedFunc = fn
	return m
}

// WithDimension changes the length of default vectors.
func (m *MockEmbedder) WithDimension(dim int) *MockEmbedder {
	m.dim = dim
	return m
}

// WithName changes the reported model name.
func (m *MockEmbedder) WithName(name string) *MockEmbedder {
	m.name = name
	return m
}

// Name returns the mock model name.
func (m *MockEmbedder) Name() string {
	return m.name
}

// Embed records the call and returns either EmbedFunc's result or a
// deterministic vector derived from the payload key.
func (m *MockEmbedder) Embed(ctx context.Context, payload core.Payload) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.calls[payload.Key()]++
	fn := m.EmbedFunc
	dim := m.dim
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, payload)
	}
	return DeterministicVector(payload.Key(), dim), nil
}

// CallCount returns the number of times Embed was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CallsFor returns how often a payload with the given key was embedded.
func (m *MockEmbedder) CallsFor(payload core.Payload) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[payload.Key()]
}

// Reset clears the call counts and custom behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.calls = make(map[string]int)
	m.EmbedFunc = nil
}

// DeterministicVector creates a unit vector from a seed string.
// It uses FNV hash to ensure the same seed always produces the same vector.
func DeterministicVector(seed string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(seed))
	state := h.Sum32()

	vector := make([]float32, dim)
	var sumSquares float64
	for i := range vector {
		state = state*1664525 + 1013904223 // LCG constants
		vector[i] = float32(state%1000)/1000.0 - 0.5
		sumSquares += float64(vector[i]) * float64(vector[i])
	}

	if sumSquares > 0 {
		norm := float32(1 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
