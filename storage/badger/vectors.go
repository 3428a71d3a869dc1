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

package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arakoodev/gutty/ann"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
	"github.com/dgraph-io/badger/v4"
)

// VectorStore implements storage.VectorIndex on BadgerDB.
type VectorStore struct {
	backend    *Backend
	ownBackend bool
	baseLogger *slog.Logger
	logger     *slog.Logger
	probes     int
	ivfOpts    ann.Options

	mu      sync.Mutex
	indexes map[string]cachedIndex
}

// cachedIndex is a decoded index and the table version it was built at.
type cachedIndex struct {
	idx     *ann.IVF
	builtAt time.Time
}

var _ storage.VectorIndex = (*VectorStore)(nil)

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *VectorStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProbes sets how many IVF lists a search scans. 0 picks a default
// from the list count.
func WithProbes(n int) Option {
	return func(s *VectorStore) {
		s.probes = n
	}
}

// WithIndexOptions sets the IVF build options.
func WithIndexOptions(opts ann.Options) Option {
	return func(s *VectorStore) {
		s.ivfOpts = opts
	}
}

// NewVectorIndex opens (or creates) a BadgerDB vector index at path.
// Closing the index closes the database.
func NewVectorIndex(path string, opts ...Option) (storage.VectorIndex, error) {
	return openStore(path, false, opts...)
}

func openStore(path string, inMemory bool, opts ...Option) (*VectorStore, error) {
	s := newVectorStore(nil, opts...)
	backend, err := OpenBackend(path, inMemory, WithBackendLogger(s.baseLogger))
	if err != nil {
		return nil, err
	}
	s.backend = backend
	s.ownBackend = true
	return s, nil
}

// NewVectorStore returns a vector store sharing an already open backend.
func NewVectorStore(backend *Backend, opts ...Option) *VectorStore {
	return newVectorStore(backend, opts...)
}

func newVectorStore(backend *Backend, opts ...Option) *VectorStore {
	s := &VectorStore{
		backend: backend,
		logger:  slog.Default(),
		indexes: make(map[string]cachedIndex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseLogger = s.logger
	s.logger = s.logger.With("component", "vector-store", "backend", "badger")
	return s
}

// Close closes the backend if the store opened it.
func (s *VectorStore) Close() error {
	if s.ownBackend {
		return s.backend.Close()
	}
	return nil
}

// Upsert writes records, creating the table on first use.
func (s *VectorStore) Upsert(ctx context.Context, table string, records ...*core.EmbeddingRecord) error {
	if err := s.check(ctx, table); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := loadMeta(tx, table)
		if err != nil {
			return err
		}
		created := meta == nil
		if created {
			meta = &core.TableMeta{Name: table, Column: storage.DefaultColumn}
		}

		dim, err := storage.CheckBatch(meta.Dimension, records)
		if err != nil {
			return err
		}
		meta.Dimension = dim

		now := time.Now().UTC().Truncate(time.Microsecond)
		for _, record := range records {
			if err := tx.Set(makeRecordKey(table, record.ID), storage.MarshalRecord(storage.Stamped(record, now))); err != nil {
				return err
			}
		}

		meta.IndexFresh = false
		meta.UpdatedAt = now
		if err := tx.Set(makeTableKey(table), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		if created {
			s.logger.Info("created table", "table", table, "column", meta.Column, "dimension", dim)
		}
		return nil
	}, true)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}

	s.forgetIndex(table)
	return nil
}

// CreateIndex builds an IVF index over every record in the table.
func (s *VectorStore) CreateIndex(ctx context.Context, table, column string) error {
	if err := s.check(ctx, table); err != nil {
		return err
	}

	var built *ann.IVF
	var builtAt time.Time
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := loadMeta(tx, table)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %s", storage.ErrTableNotFound, table)
		}
		column, err = storage.ResolveColumn(meta, column)
		if err != nil {
			return err
		}

		var ids []string
		var vectors [][]float32
		err = scanRecords(tx, table, func(r *core.EmbeddingRecord) error {
			ids = append(ids, r.ID)
			vectors = append(vectors, r.Vector)
			return ctx.Err()
		})
		if err != nil {
			return err
		}

		built, err = ann.Build(ids, vectors, s.ivfOpts)
		if err != nil {
			return err
		}
		data, err := built.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Set(makeIndexKey(table, column), data); err != nil {
			return err
		}

		meta.IndexFresh = true
		meta.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		builtAt = meta.UpdatedAt
		if err := tx.Set(makeTableKey(table), storage.MarshalTableMeta(meta)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return fmt.Errorf("create index on %s: %w", table, err)
	}

	s.mu.Lock()
	s.indexes[table] = cachedIndex{idx: built, builtAt: builtAt}
	s.mu.Unlock()
	s.logger.Info("built index", "table", table, "records", built.Len(), "lists", built.Lists())
	return nil
}

// Search returns the k nearest records. A fresh IVF index is used when one
// exists; otherwise every record is scanned.
func (s *VectorStore) Search(ctx context.Context, table, column string, vector []float32, k int, filter *core.Filter) ([]*core.Candidate, error) {
	if err := s.check(ctx, table); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}

	var results []*core.Candidate
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		meta, err := loadMeta(tx, table)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %s", storage.ErrTableNotFound, table)
		}
		if column, err = storage.ResolveColumn(meta, column); err != nil {
			return err
		}
		if len(vector) != meta.Dimension {
			return core.DimensionError(meta.Dimension, len(vector))
		}

		if meta.IndexFresh {
			idx, err := s.loadIndex(tx, meta, column)
			if err != nil {
				return err
			}
			if idx != nil {
				results, err = searchIndexed(tx, table, idx, vector, k, s.probes, filter)
				return err
			}
		}

		results, err = searchExact(ctx, tx, table, vector, k, filter)
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns a record by ID, or nil when absent.
func (s *VectorStore) Get(ctx context.Context, table, id string) (*core.EmbeddingRecord, error) {
	if err := s.check(ctx, table); err != nil {
		return nil, err
	}
	var record *core.EmbeddingRecord
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		record, err = getRecord(tx, table, id)
		return err
	}, false)
	return record, err
}

// Count returns the number of records in the table.
func (s *VectorStore) Count(ctx context.Context, table string) (int, error) {
	if err := s.check(ctx, table); err != nil {
		return 0, err
	}
	count := 0
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeRecordPrefix(table)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Tables lists all tables.
func (s *VectorStore) Tables(ctx context.Context) ([]core.TableMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var tables []core.TableMeta
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tablePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				meta, err := storage.UnmarshalTableMeta(val)
				if err != nil {
					return err
				}
				tables = append(tables, *meta)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return tables, err
}

// DropTable deletes a table's records, index and metadata.
func (s *VectorStore) DropTable(ctx context.Context, table string) error {
	if err := s.check(ctx, table); err != nil {
		return err
	}
	if err := s.backend.DropPrefix(makeRecordPrefix(table)); err != nil {
		return err
	}
	if err := s.backend.DropPrefix(makeIndexPrefix(table)); err != nil {
		return err
	}
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeTableKey(table)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}
	s.forgetIndex(table)
	s.logger.Info("dropped table", "table", table)
	return nil
}

func (s *VectorStore) check(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return storage.ValidateTableName(table)
}

func (s *VectorStore) forgetIndex(table string) {
	s.mu.Lock()
	delete(s.indexes, table)
	s.mu.Unlock()
}

// loadIndex returns the cached index for the table version in meta, decoding
// the stored one on a miss. Returns nil when no index has been stored.
func (s *VectorStore) loadIndex(tx *badger.Txn, meta *core.TableMeta, column string) (*ann.IVF, error) {
	table := meta.Name
	s.mu.Lock()
	cached, ok := s.indexes[table]
	s.mu.Unlock()
	if ok && cached.builtAt.Equal(meta.UpdatedAt) {
		return cached.idx, nil
	}

	var idx *ann.IVF

	item, err := tx.Get(makeIndexKey(table, column))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	err = item.Value(func(val []byte) error {
		idx, err = ann.Unmarshal(val)
		return err
	})
	if err != nil {
		s.logger.Warn("stored index unreadable, scanning instead", "table", table, "error", err)
		return nil, nil
	}

	s.mu.Lock()
	s.indexes[table] = cachedIndex{idx: idx, builtAt: meta.UpdatedAt}
	s.mu.Unlock()
	return idx, nil
}
