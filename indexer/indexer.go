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

package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/progress"
	"github.com/arakoodev/gutty/ratelimit"
	"github.com/arakoodev/gutty/retry"
	"github.com/arakoodev/gutty/storage"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Indexer runs resumable batch indexing into one table.
type Indexer struct {
	index        storage.VectorIndex
	embedder     ai.Embedder
	progress     *progress.Store
	limiter      *ratelimit.Limiter
	embedPolicy  retry.Policy
	upsertPolicy retry.Policy
	config       *Config
	output       io.Writer
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLimiter shares a rate limiter across every embedding call.
// Default is no limit.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(ix *Indexer) {
		ix.limiter = limiter
	}
}

// WithEmbedPolicy sets the retry policy around each embedding call.
func WithEmbedPolicy(policy retry.Policy) Option {
	return func(ix *Indexer) {
		ix.embedPolicy = policy
	}
}

// WithUpsertPolicy sets the retry policy around each upsert.
func WithUpsertPolicy(policy retry.Policy) Option {
	return func(ix *Indexer) {
		ix.upsertPolicy = policy
	}
}

// WithOutput sets where progress lines are written. Default is io.Discard.
func WithOutput(w io.Writer) Option {
	return func(ix *Indexer) {
		ix.output = w
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) {
		ix.now = now
	}
}

// New creates an indexer. A nil config uses DefaultConfig, which still needs
// a Table. Configuration errors are returned before any work begins.
func New(index storage.VectorIndex, embedder ai.Embedder, store *progress.Store, config *Config, opts ...Option) (*Indexer, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrProgressRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	ix := &Indexer{
		index:        index,
		embedder:     embedder,
		progress:     store,
		embedPolicy:  retry.DefaultPolicy(),
		upsertPolicy: retry.DefaultPolicy(),
		config:       config,
		output:       io.Discard,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.logger = ix.logger.With("component", "indexer", "table", config.Table)
	return ix, nil
}

// outcome of one work item.
type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeCanceled
)

// run holds the mutable state of one Run call.
type run struct {
	result          *core.BatchResult
	mu              sync.Mutex
	sinceCheckpoint int
	tracker         *progress.Tracker
	logger          *slog.Logger
}

// record updates the counters and reports whether a checkpoint is due.
func (r *run) record(o outcome, every int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o {
	case outcomeProcessed:
		r.result.Processed++
		r.sinceCheckpoint++
	case outcomeSkipped:
		r.result.Skipped++
	case outcomeFailed:
		r.result.Failed++
	case outcomeCanceled:
		return false
	}
	r.tracker.Increment(1)

	if r.sinceCheckpoint >= every {
		r.sinceCheckpoint = 0
		return true
	}
	return false
}

// Run indexes every item not yet marked done and returns the counts.
//
// Per-item failures are logged and counted, never returned. The returned
// error is ctx.Err() when the run was canceled, or the final progress flush
// failure. Progress is flushed before Run returns in every case.
func (ix *Indexer) Run(ctx context.Context, items []core.WorkItem) (result *core.BatchResult, err error) {
	r := &run{
		result: &core.BatchResult{Total: len(items)},
		logger: ix.logger.With("run", uuid.NewString()),
	}
	result = r.result

	pending := make([]*core.WorkItem, 0, len(items))
	for i := range items {
		if ix.progress.IsDone(items[i].ID) {
			result.AlreadyDone++
			continue
		}
		pending = append(pending, &items[i])
	}

	if len(pending) == 0 {
		r.logger.Info("nothing to do", "total", result.Total, "already_done", result.AlreadyDone)
		return result, nil
	}

	r.logger.Info("starting indexing run",
		"total", result.Total,
		"pending", len(pending),
		"workers", ix.config.Workers,
		"embedder", ix.embedder.Name())

	r.tracker = progress.NewTracker(ix.output, len(pending), ix.config.ReportInterval)
	r.tracker.Start()

	defer func() {
		r.tracker.Finish()
		if flushErr := ix.progress.Flush(); flushErr != nil {
			r.logger.Error("final progress flush failed", "path", ix.progress.Path(), "err", flushErr)
			if err == nil {
				err = fmt.Errorf("flush progress: %w", flushErr)
			}
		}
		r.logger.Info("indexing run finished", "result", result.String(), "elapsed", r.tracker.Elapsed().Round(time.Millisecond))
	}()

	if ix.config.Workers <= 1 {
		for _, item := range pending {
			if ctx.Err() != nil {
				break
			}
			ix.handle(ctx, r, item)
		}
	} else if err := ix.runPool(ctx, r, pending); err != nil {
		return result, err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		r.logger.Warn("indexing run canceled", "result", result.String())
		return result, ctxErr
	}

	if ix.config.BuildIndex && result.Processed > 0 {
		ix.buildIndex(ctx, r)
	}
	return result, nil
}

// runPool processes items on an ants pool sized to the configured workers.
func (ix *Indexer) runPool(ctx context.Context, r *run, pending []*core.WorkItem) error {
	pool, err := ants.NewPool(ix.config.Workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			ix.handle(ctx, r, item)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return fmt.Errorf("submit work item: %w", err)
		}
	}
	wg.Wait()
	return nil
}

// handle processes one item, records the outcome and checkpoints when due.
func (ix *Indexer) handle(ctx context.Context, r *run, item *core.WorkItem) {
	o := ix.process(ctx, r.logger, item)
	if r.record(o, ix.config.CheckpointEvery) {
		if err := ix.progress.Flush(); err != nil {
			r.logger.Warn("checkpoint failed", "path", ix.progress.Path(), "err", err)
		}
	}
}

// process embeds and upserts one item. Only a processed item is marked done.
func (ix *Indexer) process(ctx context.Context, logger *slog.Logger, item *core.WorkItem) outcome {
	logger = logger.With("item", item.ID)

	if err := core.ValidateWorkItem(item); err != nil {
		if errors.Is(err, core.ErrEmptyPayload) && len(item.Payloads) == 0 {
			logger.Warn("item has nothing to embed, skipping")
			return outcomeSkipped
		}
		logger.Warn("invalid work item", "err", err)
		return outcomeFailed
	}

	vector, err := ix.embedItem(ctx, logger, item)
	switch {
	case ctx.Err() != nil:
		return outcomeCanceled
	case errors.Is(err, ErrNoImages):
		logger.Warn("no image embedded, skipping", "images", len(item.Payloads))
		return outcomeSkipped
	case err != nil:
		logger.Warn("embedding failed after retries", "err", err)
		return outcomeFailed
	}

	record := ix.buildRecord(item, vector)
	if err := ix.upsert(ctx, record); err != nil {
		if ctx.Err() != nil {
			return outcomeCanceled
		}
		logger.Warn("upsert failed after retries", "err", err)
		return outcomeFailed
	}

	ix.progress.MarkDone(item.ID)
	logger.Debug("item indexed", "dimension", len(vector))
	return outcomeProcessed
}

func (ix *Indexer) buildRecord(item *core.WorkItem, vector []float32) *core.EmbeddingRecord {
	record := &core.EmbeddingRecord{
		ID:               item.ID,
		Label:            item.Label,
		SourceCollection: item.Source,
		Text:             item.Text,
		Vector:           vector,
		UpdatedAt:        ix.now().UTC(),
	}
	rep := item.Representative()
	switch rep.Kind {
	case core.PayloadImage:
		record.RepresentativePath = rep.Ref()
	case core.PayloadText:
		if record.Text == "" {
			record.Text = rep.Text
		}
	}
	return record
}

// upsert writes one record. Data integrity failures are not retried.
func (ix *Indexer) upsert(ctx context.Context, record *core.EmbeddingRecord) error {
	var permanent error
	err := ix.upsertPolicy.Do(ctx, func() error {
		err := ix.index.Upsert(ctx, ix.config.Table, record)
		if errors.Is(err, core.ErrDataIntegrity) {
			permanent = err
			return nil
		}
		return err
	})
	if permanent != nil {
		return permanent
	}
	return err
}

// buildIndex rebuilds the ANN index. Failure only degrades search speed.
func (ix *Indexer) buildIndex(ctx context.Context, r *run) {
	start := time.Now()
	// an empty column selects the one the table was created with
	if err := ix.index.CreateIndex(ctx, ix.config.Table, ""); err != nil {
		r.logger.Warn("index build failed, search will scan", "err", err)
		return
	}
	r.result.IndexBuilt = true
	r.logger.Info("index built", "elapsed", time.Since(start).Round(time.Millisecond))
}
