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
	"fmt"
	"net/url"
	"strings"

	"github.com/arakoodev/gutty/core"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// GeneratorHost is the base URL for the structured generation API.
	GeneratorHost string

	// APIKey authenticates against remote hosts. Local hosts accept any token.
	APIKey string

	// CoarseModel embeds items for the first-stage index.
	// Example: "clip-vit-b-32", "text-embedding-3-small"
	CoarseModel string

	// FineModel re-embeds candidates during reranking. It defaults to the
	// coarse model when unset.
	FineModel string

	// GeneratorModel produces the JSON analysis of ranked candidates.
	GeneratorModel string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGeneratorHost sets the generator service host URL.
func WithGeneratorHost(host string) ConfigOption {
	return func(c *Config) {
		c.GeneratorHost = host
	}
}

// WithHost sets both embedding and generator hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GeneratorHost = host
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithCoarseModel sets the coarse embedding model.
func WithCoarseModel(model string) ConfigOption {
	return func(c *Config) {
		c.CoarseModel = model
	}
}

// WithFineModel sets the fine embedding model.
func WithFineModel(model string) ConfigOption {
	return func(c *Config) {
		c.FineModel = model
	}
}

// WithGeneratorModel sets the generator model.
func WithGeneratorModel(model string) ConfigOption {
	return func(c *Config) {
		c.GeneratorModel = model
	}
}

// DefaultConfig returns a Config for a local OpenAI-compatible server.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:  defaultHost,
		GeneratorHost:  defaultHost,
		CoarseModel:    "clip-vit-b-32",
		FineModel:      "clip-vit-l-14",
		GeneratorModel: "qwen2.5vl:7b",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("https://api.example.com"),
//	    WithAPIKey(os.Getenv("GUTTY_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// Hosts get a /v1 suffix and an empty fine model falls back to the coarse one.
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.GeneratorHost = normalizeHost(c.GeneratorHost)
	if c.FineModel == "" {
		c.FineModel = c.CoarseModel
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
// Errors wrap core.ErrConfiguration and name the missing setting.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return fmt.Errorf("ai config: %w", core.MissingSetting("EmbeddingHost"))
	}
	if c.CoarseModel == "" {
		return fmt.Errorf("ai config: %w", core.MissingSetting("CoarseModel"))
	}
	if _, err := url.Parse(c.EmbeddingHost); err != nil {
		return fmt.Errorf("ai config: %w", &core.ConfigurationError{Setting: "EmbeddingHost", Reason: "is not a valid URL"})
	}
	if c.APIKey == "" && !IsLocalHost(c.EmbeddingHost) {
		return fmt.Errorf("ai config: %w", core.MissingSetting("APIKey"))
	}
	return nil
}

// ValidateGenerator checks the settings needed by the structured generator.
// Indexing and retrieval never need them, so Validate does not.
func (c *Config) ValidateGenerator() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GeneratorHost == "" {
		return fmt.Errorf("ai config: %w", core.MissingSetting("GeneratorHost"))
	}
	if c.GeneratorModel == "" {
		return fmt.Errorf("ai config: %w", core.MissingSetting("GeneratorModel"))
	}
	if c.APIKey == "" && !IsLocalHost(c.GeneratorHost) {
		return fmt.Errorf("ai config: %w", core.MissingSetting("APIKey"))
	}
	return nil
}

// Token returns the bearer token to send. Local servers get a placeholder.
func (c *Config) Token() string {
	if c.APIKey == "" {
		return "none"
	}
	return c.APIKey
}

// IsLocalHost reports whether the URL points at the loopback interface.
func IsLocalHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
