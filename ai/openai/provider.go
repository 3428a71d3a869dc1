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

package openai

import (
	"log/slog"

	"github.com/arakoodev/gutty/ai"
)

// Provider implements ai.Provider using OpenAI-compatible services.
type Provider struct {
	config    *ai.Config
	coarse    *Embedder
	fine      *Embedder
	generator *Generator
	logger    *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use. The generator is only
// created when its settings validate; Generator returns nil otherwise.
//
// Returns ai.Provider interface (not *Provider) to enforce abstraction.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "openai-provider")

	coarse, err := newEmbedder(config, config.CoarseModel)
	if err != nil {
		return nil, err
	}

	fine := coarse
	if config.FineModel != config.CoarseModel {
		if fine, err = newEmbedder(config, config.FineModel); err != nil {
			return nil, err
		}
	}

	var generator *Generator
	if err := config.ValidateGenerator(); err == nil {
		if generator, err = newGenerator(config); err != nil {
			return nil, err
		}
	} else {
		logger.Debug("generator disabled", "err", err)
	}

	return &Provider{
		config:    config,
		coarse:    coarse,
		fine:      fine,
		generator: generator,
		logger:    logger,
	}, nil
}

// Embedder returns the coarse embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.coarse
}

// FineEmbedder returns the reranking embedding service.
func (p *Provider) FineEmbedder() ai.Embedder {
	return p.fine
}

// Generator returns the structured generator or nil.
func (p *Provider) Generator() ai.Generator {
	if p.generator == nil {
		return nil
	}
	return p.generator
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
