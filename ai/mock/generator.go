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
	"encoding/json"
	"sync"

	"github.com/arakoodev/gutty/core"
)

// GenerateFunc replaces the default generator behavior.
type GenerateFunc func(ctx context.Context, prompt string, image *core.Payload, input any) (json.RawMessage, error)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by GenerateStructured if set.
	GenerateFunc GenerateFunc

	mu        sync.Mutex
	callCount int
	lastInput any
}

// NewMockGenerator creates a mock generator that echoes its arguments.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// GenerateStructured returns GenerateFunc's result or
// {"prompt": ..., "image": ..., "input": ...}.
func (m *MockGenerator) GenerateStructured(ctx context.Context, prompt string, image *core.Payload, input any) (json.RawMessage, error) {
	m.mu.Lock()
	m.callCount++
	m.lastInput = input
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, image, input)
	}

	echo := map[string]any{"prompt": prompt, "input": input}
	if image != nil {
		echo["image"] = image.Ref()
	}
	return json.Marshal(echo)
}

// CallCount returns the number of GenerateStructured calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastInput returns the input passed to the most recent call.
func (m *MockGenerator) LastInput() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastInput
}
