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

// Package config loads gutty settings from an optional YAML file and GUTTY_*
// environment variables. Command-line flags are applied on top by the CLI.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/indexer"
	"github.com/arakoodev/gutty/retry"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the top-level structure of a gutty YAML config file.
type Config struct {
	AI      AIConfig      `yaml:"ai"`
	Storage StorageConfig `yaml:"storage"`
	Indexer IndexerConfig `yaml:"indexer"`
	Search  SearchConfig  `yaml:"search"`
}

// AIConfig describes the model endpoints.
type AIConfig struct {
	EmbeddingHost  string  `yaml:"embedding_host,omitempty"`
	GeneratorHost  string  `yaml:"generator_host,omitempty"`
	APIKey         string  `yaml:"api_key,omitempty"` // literal or ${ENV_VAR}
	CoarseModel    string  `yaml:"coarse_model,omitempty"`
	FineModel      string  `yaml:"fine_model,omitempty"`
	GeneratorModel string  `yaml:"generator_model,omitempty"`
	CallsPerSecond float64 `yaml:"calls_per_second,omitempty"` // 0 disables pacing
}

// StorageConfig describes the vector index.
type StorageConfig struct {
	Backend string `yaml:"backend,omitempty"` // badger, sqlite, memory (default: badger)
	Path    string `yaml:"path,omitempty"`    // directory for badger, file for sqlite
	Probes  int    `yaml:"probes,omitempty"`  // IVF lists scanned per query, 0 picks a default
}

// RetryConfig is the YAML form of retry.Policy.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts,omitempty"`
	Delay     time.Duration `yaml:"delay,omitempty"`
	Backoff   bool          `yaml:"backoff,omitempty"`
	BaseDelay time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay  time.Duration `yaml:"max_delay,omitempty"`
}

// Policy converts the settings to a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Attempts:  r.Attempts,
		Delay:     r.Delay,
		Backoff:   r.Backoff,
		BaseDelay: r.BaseDelay,
		MaxDelay:  r.MaxDelay,
	}
}

// IndexerConfig holds batch indexing settings.
type IndexerConfig struct {
	ProgressDir      string      `yaml:"progress_dir,omitempty"`
	ProgressFile     string      `yaml:"progress_file,omitempty"` // overrides ProgressDir for every table
	CheckpointEvery  int         `yaml:"checkpoint_every,omitempty"`
	Workers          int         `yaml:"workers,omitempty"`
	MaxImagesPerItem int         `yaml:"max_images_per_item,omitempty"`
	EmbedRetry       RetryConfig `yaml:"embed_retry,omitempty"`
	UpsertRetry      RetryConfig `yaml:"upsert_retry,omitempty"`
}

// SearchConfig holds retrieval and reranking settings.
type SearchConfig struct {
	TopK        int         `yaml:"top_k,omitempty"`
	TopN        int         `yaml:"top_n,omitempty"`
	Parallelism int         `yaml:"parallelism,omitempty"`
	CacheSize   int         `yaml:"cache_size,omitempty"`
	AnalyzeTopN int         `yaml:"analyze_top_n,omitempty"`
	Retry       RetryConfig `yaml:"retry,omitempty"`
	// AnalyzeRetry uses exponential backoff by default.
	AnalyzeRetry RetryConfig `yaml:"analyze_retry,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	fixed := RetryConfig{Attempts: 3, Delay: 500 * time.Millisecond}
	backoff := retry.BackoffPolicy()

	return &Config{
		AI: AIConfig{
			EmbeddingHost:  aiDefaults.EmbeddingHost,
			GeneratorHost:  aiDefaults.GeneratorHost,
			CoarseModel:    aiDefaults.CoarseModel,
			FineModel:      aiDefaults.FineModel,
			GeneratorModel: aiDefaults.GeneratorModel,
			CallsPerSecond: 2,
		},
		Storage: StorageConfig{
			Backend: BackendBadger,
			Path:    filepath.Join("data", "index"),
		},
		Indexer: IndexerConfig{
			ProgressDir:      filepath.Join("data", "progress"),
			CheckpointEvery:  10,
			Workers:          1,
			MaxImagesPerItem: 5,
			EmbedRetry:       fixed,
			UpsertRetry:      fixed,
		},
		Search: SearchConfig{
			TopK:        50,
			TopN:        10,
			Parallelism: 4,
			CacheSize:   1024,
			AnalyzeTopN: 10,
			Retry:       fixed,
			AnalyzeRetry: RetryConfig{
				Attempts:  backoff.Attempts,
				Backoff:   true,
				BaseDelay: backoff.BaseDelay,
				MaxDelay:  backoff.MaxDelay,
			},
		},
	}
}

// Load reads defaults, then the YAML file at path when it is not empty, then
// the environment. A missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, &core.ConfigurationError{Setting: "config file", Reason: fmt.Sprintf("%s does not exist", path)}
			}
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.AI.APIKey = os.ExpandEnv(cfg.AI.APIKey)
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from GUTTY_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"GUTTY_EMBEDDING_HOST":  &c.AI.EmbeddingHost,
		"GUTTY_GENERATOR_HOST":  &c.AI.GeneratorHost,
		"GUTTY_API_KEY":         &c.AI.APIKey,
		"GUTTY_COARSE_MODEL":    &c.AI.CoarseModel,
		"GUTTY_FINE_MODEL":      &c.AI.FineModel,
		"GUTTY_GENERATOR_MODEL": &c.AI.GeneratorModel,
		"GUTTY_BACKEND":         &c.Storage.Backend,
		"GUTTY_DB":              &c.Storage.Path,
		"GUTTY_PROGRESS_DIR":    &c.Indexer.ProgressDir,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("GUTTY_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &core.ConfigurationError{Setting: "GUTTY_WORKERS", Reason: "must be an integer"}
		}
		c.Indexer.Workers = n
	}
	if v, ok := lookup("GUTTY_CALLS_PER_SECOND"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &core.ConfigurationError{Setting: "GUTTY_CALLS_PER_SECOND", Reason: "must be a number"}
		}
		c.AI.CallsPerSecond = f
	}
	return nil
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case BackendBadger, BackendSQLite:
		if c.Storage.Path == "" {
			return core.MissingSetting("storage.path (GUTTY_DB)")
		}
	case BackendMemory:
	default:
		return &core.ConfigurationError{
			Setting: "storage.backend",
			Reason:  fmt.Sprintf("%q is unknown (supported: badger, sqlite, memory)", c.Storage.Backend),
		}
	}

	if c.AI.CallsPerSecond < 0 {
		return &core.ConfigurationError{Setting: "ai.calls_per_second", Reason: "must not be negative"}
	}
	if c.Indexer.Workers < 1 || c.Indexer.Workers > indexer.MaxWorkers {
		return &core.ConfigurationError{Setting: "indexer.workers", Reason: fmt.Sprintf("must be between 1 and %d", indexer.MaxWorkers)}
	}

	positive := map[string]int{
		"indexer.checkpoint_every": c.Indexer.CheckpointEvery,
		"search.top_k":             c.Search.TopK,
		"search.parallelism":       c.Search.Parallelism,
		"search.cache_size":        c.Search.CacheSize,
	}
	for name, v := range positive {
		if v < 1 {
			return &core.ConfigurationError{Setting: name, Reason: "must be at least 1"}
		}
	}

	retries := map[string]RetryConfig{
		"indexer.embed_retry":  c.Indexer.EmbedRetry,
		"indexer.upsert_retry": c.Indexer.UpsertRetry,
		"search.retry":         c.Search.Retry,
		"search.analyze_retry": c.Search.AnalyzeRetry,
	}
	for name, r := range retries {
		if r.Attempts < 1 {
			return &core.ConfigurationError{Setting: name + ".attempts", Reason: "must be at least 1"}
		}
	}

	return c.AIConfig().Validate()
}

// AIConfig converts the model settings for the ai package.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGeneratorHost(c.AI.GeneratorHost),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithCoarseModel(c.AI.CoarseModel),
		ai.WithFineModel(c.AI.FineModel),
		ai.WithGeneratorModel(c.AI.GeneratorModel),
	)
}

// ProgressPath returns the progress file for a table.
func (c *Config) ProgressPath(table string) string {
	if c.Indexer.ProgressFile != "" {
		return c.Indexer.ProgressFile
	}
	return filepath.Join(c.Indexer.ProgressDir, table+".json")
}
