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

package gutty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/ai/openai"
	"github.com/arakoodev/gutty/config"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/indexer"
	"github.com/arakoodev/gutty/progress"
	"github.com/arakoodev/gutty/ratelimit"
	"github.com/arakoodev/gutty/search"
	"github.com/arakoodev/gutty/storage"
	"github.com/arakoodev/gutty/storage/badger"
	"github.com/arakoodev/gutty/storage/sqlite"
)

// Database ties a vector index and an AI provider together and hands out
// indexers and searchers configured from one Config. Every component it
// creates paces embedding calls through the same limiter.
type Database struct {
	index    storage.VectorIndex
	provider ai.Provider
	config   *config.Config
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	index    storage.VectorIndex
	provider ai.Provider
	logger   *slog.Logger
}

// WithVectorIndex uses an already open index instead of the configured backend.
// The Database takes ownership and closes it.
func WithVectorIndex(index storage.VectorIndex) DatabaseOption {
	return func(o *databaseOptions) {
		o.index = index
	}
}

// WithProvider uses the given provider instead of building one from the AI config.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// Open validates cfg, opens the configured vector index and creates the
// AI provider. Configuration problems are reported before anything is opened.
func Open(ctx context.Context, cfg *config.Config, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	index := options.index
	if index == nil {
		var err error
		index, err = openIndex(ctx, cfg.Storage, options.logger)
		if err != nil {
			return nil, err
		}
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			index.Close()
			return nil, err
		}
	}

	return &Database{
		index:    index,
		provider: provider,
		config:   cfg,
		limiter:  ratelimit.New(cfg.AI.CallsPerSecond),
		logger:   options.logger.With("component", "database"),
	}, nil
}

func openIndex(ctx context.Context, sc config.StorageConfig, logger *slog.Logger) (storage.VectorIndex, error) {
	switch strings.ToLower(sc.Backend) {
	case config.BackendBadger, "":
		opts := []badger.Option{badger.WithLogger(logger)}
		if sc.Probes > 0 {
			opts = append(opts, badger.WithProbes(sc.Probes))
		}
		return badger.NewVectorIndex(sc.Path, opts...)
	case config.BackendSQLite:
		opts := []sqlite.Option{sqlite.WithLogger(logger)}
		if sc.Probes > 0 {
			opts = append(opts, sqlite.WithProbes(sc.Probes))
		}
		return sqlite.NewVectorIndex(ctx, sc.Path, opts...)
	case config.BackendMemory:
		return badger.NewMemoryVectorIndex(badger.WithLogger(logger))
	default:
		return nil, &core.ConfigurationError{Setting: "storage.backend", Reason: fmt.Sprintf("%q is unknown", sc.Backend)}
	}
}

// Close releases the provider and the index.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := db.index.Close(); err != nil {
		db.logger.Error("error closing vector index", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (db *Database) Index() storage.VectorIndex {
	return db.index
}

func (db *Database) Provider() ai.Provider {
	return db.provider
}

func (db *Database) Config() *config.Config {
	return db.config
}

// Limiter is the limiter shared by every embedding call the database issues.
func (db *Database) Limiter() *ratelimit.Limiter {
	return db.limiter
}

// Progress loads the progress store kept for table.
func (db *Database) Progress(table string) (*progress.Store, error) {
	return progress.Load(db.config.ProgressPath(table), progress.WithLogger(db.logger))
}

// NewIndexer returns an indexer for table that resumes from the table's
// progress file. Extra options are applied after the configured ones.
func (db *Database) NewIndexer(table string, opts ...indexer.Option) (*indexer.Indexer, error) {
	store, err := db.Progress(table)
	if err != nil {
		return nil, err
	}

	ic := indexer.DefaultConfig()
	ic.Table = table
	ic.CheckpointEvery = db.config.Indexer.CheckpointEvery
	ic.Workers = db.config.Indexer.Workers
	ic.MaxImagesPerItem = db.config.Indexer.MaxImagesPerItem

	base := []indexer.Option{
		indexer.WithLimiter(db.limiter),
		indexer.WithEmbedPolicy(db.config.Indexer.EmbedRetry.Policy()),
		indexer.WithUpsertPolicy(db.config.Indexer.UpsertRetry.Policy()),
		indexer.WithLogger(db.logger),
	}
	return indexer.New(db.index, db.provider.Embedder(), store, ic, append(base, opts...)...)
}

// NewSearcher returns a retrieve-then-rerank searcher over table. filter may be nil.
func (db *Database) NewSearcher(table string, filter *core.Filter) (*search.Searcher, error) {
	sc := db.config.Search
	policy := sc.Retry.Policy()

	retrieverOpts := []search.RetrieverOption{
		search.WithFilter(filter),
		search.WithRetrieverLimiter(db.limiter),
		search.WithRetrieverPolicy(policy),
		search.WithRetrieverLogger(db.logger),
	}
	return search.NewSearcher(db.index, db.provider, table, retrieverOpts,
		search.WithParallelism(sc.Parallelism),
		search.WithTopN(sc.TopN),
		search.WithCacheSize(sc.CacheSize),
		search.WithRerankerLimiter(db.limiter),
		search.WithRerankerPolicy(policy),
		search.WithRerankerLogger(db.logger),
	)
}

// NewAnalyzer returns an analyzer on the provider's generator.
func (db *Database) NewAnalyzer() (*search.Analyzer, error) {
	generator := db.provider.Generator()
	if generator == nil {
		return nil, search.ErrGeneratorRequired
	}
	return search.NewAnalyzer(generator,
		search.WithAnalyzerPolicy(db.config.Search.AnalyzeRetry.Policy()),
		search.WithAnalyzerTopN(db.config.Search.AnalyzeTopN),
		search.WithAnalyzerLogger(db.logger),
	)
}

// TableStatus summarises a table and its indexing progress.
type TableStatus struct {
	Table      string `json:"table"`
	Exists     bool   `json:"exists"`
	Records    int    `json:"records"`
	Dimension  int    `json:"dimension,omitempty"`
	IndexFresh bool   `json:"index_fresh"`
	Done       int    `json:"done"`
	Progress   string `json:"progress_file"`
}

// Status reports the record count and progress of table.
func (db *Database) Status(ctx context.Context, table string) (*TableStatus, error) {
	store, err := db.Progress(table)
	if err != nil {
		return nil, err
	}
	status := &TableStatus{Table: table, Done: store.Len(), Progress: store.Path()}

	tables, err := db.index.Tables(ctx)
	if err != nil {
		return nil, err
	}
	for _, meta := range tables {
		if meta.Name != table {
			continue
		}
		status.Exists = true
		status.Dimension = meta.Dimension
		status.IndexFresh = meta.IndexFresh
	}
	if status.Exists {
		if status.Records, err = db.index.Count(ctx, table); err != nil {
			return nil, err
		}
	}
	return status, nil
}

// Reset clears the progress of table and, when dropTable is set, removes
// its records and index too.
func (db *Database) Reset(ctx context.Context, table string, dropTable bool) error {
	store, err := db.Progress(table)
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	if !dropTable {
		return nil
	}
	if err := db.index.DropTable(ctx, table); err != nil && !errors.Is(err, storage.ErrTableNotFound) {
		return err
	}
	db.logger.Info("table reset", "table", table)
	return nil
}
