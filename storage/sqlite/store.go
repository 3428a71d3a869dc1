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

// Package sqlite implements storage.VectorIndex on SQLite using the pure-Go
// modernc.org/sqlite driver. Embeddings are stored as float32 BLOBs and the
// IVF index built by CreateIndex is stored alongside them.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/arakoodev/gutty/ann"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"

	_ "modernc.org/sqlite"
)

// Store implements storage.VectorIndex on SQLite.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	probes  int
	ivfOpts ann.Options

	mu      sync.Mutex
	indexes map[string]cachedIndex
	closed  bool
}

type cachedIndex struct {
	idx     *ann.IVF
	builtAt int64
}

var _ storage.VectorIndex = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProbes sets how many IVF lists a search scans.
func WithProbes(n int) Option {
	return func(s *Store) { s.probes = n }
}

// WithIndexOptions sets the IVF build options.
func WithIndexOptions(opts ann.Options) Option {
	return func(s *Store) { s.ivfOpts = opts }
}

// NewVectorIndex opens the SQLite database at path, creating it and its
// parent directory if needed. An empty path or ":memory:" opens an
// in-memory database.
func NewVectorIndex(ctx context.Context, path string, opts ...Option) (storage.VectorIndex, error) {
	return open(ctx, path, opts...)
}

func open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection serializes writers and keeps :memory: a single database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		logger:  slog.Default(),
		indexes: make(map[string]cachedIndex),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "vector-store", "backend", "sqlite")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

// Upsert writes records, creating the table on first use.
func (s *Store) Upsert(ctx context.Context, table string, records ...*core.EmbeddingRecord) error {
	if err := s.check(ctx, table); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		meta, err := loadMeta(ctx, tx, table)
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

		now := time.Now().UTC().Truncate(time.Microsecond)
		for _, r := range records {
			updated := storage.Stamped(r, now).UpdatedAt
			_, err := tx.ExecContext(ctx, `INSERT INTO vector_records(tbl,id,label,source,path,text,dim,embedding,updated_at)
                VALUES(?,?,?,?,?,?,?,?,?)
                ON CONFLICT(tbl,id) DO UPDATE SET
                    label=excluded.label, source=excluded.source, path=excluded.path, text=excluded.text,
                    dim=excluded.dim, embedding=excluded.embedding, updated_at=excluded.updated_at`,
				table, r.ID, r.Label, r.SourceCollection, r.RepresentativePath, r.Text,
				len(r.Vector), encodeEmbedding(r.Vector), updated.UnixMicro())
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO vector_tables(name,col,dim,index_fresh,updated_at) VALUES(?,?,?,0,?)
            ON CONFLICT(name) DO UPDATE SET index_fresh=0, updated_at=excluded.updated_at`,
			table, meta.Column, dim, now.UnixMicro())
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("created table", "table", table, "column", meta.Column, "dimension", dim)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

// CreateIndex builds an IVF index over every record in the table.
func (s *Store) CreateIndex(ctx context.Context, table, column string) error {
	if err := s.check(ctx, table); err != nil {
		return err
	}

	var built *ann.IVF
	var builtAt int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		meta, err := loadMeta(ctx, tx, table)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %s", storage.ErrTableNotFound, table)
		}
		if column, err = storage.ResolveColumn(meta, column); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT id, embedding FROM vector_records WHERE tbl=? ORDER BY id`, table)
		if err != nil {
			return err
		}
		var ids []string
		var vectors [][]float32
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				rows.Close()
				return err
			}
			vec, err := decodeEmbedding(blob)
			if err != nil {
				rows.Close()
				return fmt.Errorf("record %s: %w", id, err)
			}
			ids = append(ids, id)
			vectors = append(vectors, vec)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
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

		builtAt = time.Now().UTC().UnixMicro()
		_, err = tx.ExecContext(ctx, `INSERT INTO vector_indexes(tbl,col,data,built_at) VALUES(?,?,?,?)
            ON CONFLICT(tbl,col) DO UPDATE SET data=excluded.data, built_at=excluded.built_at`,
			table, column, data, builtAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE vector_tables SET index_fresh=1, updated_at=? WHERE name=?`, builtAt, table)
		return err
	})
	if err != nil {
		return fmt.Errorf("create index on %s: %w", table, err)
	}

	s.mu.Lock()
	s.indexes[table] = cachedIndex{idx: built, builtAt: builtAt}
	s.mu.Unlock()
	s.logger.Info("built index", "table", table, "records", built.Len(), "lists", built.Lists())
	return nil
}

// Search returns the k nearest records, using the IVF index when fresh.
func (s *Store) Search(ctx context.Context, table, column string, vector []float32, k int, filter *core.Filter) ([]*core.Candidate, error) {
	if err := s.check(ctx, table); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}

	var results []*core.Candidate
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		meta, err := loadMeta(ctx, tx, table)
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
			idx, err := s.loadIndex(ctx, tx, table, column)
			if err != nil {
				return err
			}
			if idx != nil {
				results, err = s.searchIndexed(ctx, tx, table, idx, vector, k, filter)
				return err
			}
		}
		results, err = searchExact(ctx, tx, table, vector, k, filter)
		return err
	})
	return results, err
}

// Get returns a record by ID, or nil when absent.
func (s *Store) Get(ctx context.Context, table, id string) (*core.EmbeddingRecord, error) {
	if err := s.check(ctx, table); err != nil {
		return nil, err
	}
	return getRecord(ctx, s.db, table, id)
}

// Count returns the number of records in the table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if err := s.check(ctx, table); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM vector_records WHERE tbl=?`, table).Scan(&n)
	return n, err
}

// Tables lists all tables.
func (s *Store) Tables(ctx context.Context) ([]core.TableMeta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, col, dim, index_fresh, updated_at FROM vector_tables ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []core.TableMeta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, *meta)
	}
	return tables, rows.Err()
}

// DropTable deletes a table's records, index and metadata.
func (s *Store) DropTable(ctx context.Context, table string) error {
	if err := s.check(ctx, table); err != nil {
		return err
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM vector_records WHERE tbl=?`,
			`DELETE FROM vector_indexes WHERE tbl=?`,
			`DELETE FROM vector_tables WHERE name=?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.indexes, table)
	s.mu.Unlock()
	s.logger.Info("dropped table", "table", table)
	return nil
}

func (s *Store) check(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return storage.ErrStorageClosed
	}
	return storage.ValidateTableName(table)
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) loadIndex(ctx context.Context, tx *sql.Tx, table, column string) (*ann.IVF, error) {
	var data []byte
	var builtAt int64
	err := tx.QueryRowContext(ctx, `SELECT data, built_at FROM vector_indexes WHERE tbl=? AND col=?`, table, column).Scan(&data, &builtAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cached, ok := s.indexes[table]
	s.mu.Unlock()
	if ok && cached.builtAt == builtAt {
		return cached.idx, nil
	}

	idx, err := ann.Unmarshal(data)
	if err != nil {
		s.logger.Warn("stored index unreadable, scanning instead", "table", table, "error", err)
		return nil, nil
	}
	s.mu.Lock()
	s.indexes[table] = cachedIndex{idx: idx, builtAt: builtAt}
	s.mu.Unlock()
	return idx, nil
}

func (s *Store) searchIndexed(ctx context.Context, tx *sql.Tx, table string, idx *ann.IVF, vector []float32, k int, filter *core.Filter) ([]*core.Candidate, error) {
	probes := s.probes
	if probes <= 0 {
		probes = ann.DefaultProbes(idx.Lists())
	}

	loaded := make(map[string]*core.EmbeddingRecord)
	var loadErr error
	accept := func(id string) bool {
		if loadErr != nil {
			return false
		}
		r, err := getRecord(ctx, tx, table, id)
		if err != nil {
			loadErr = err
			return false
		}
		if r == nil || !filter.Matches(r) {
			return false
		}
		loaded[id] = r
		return true
	}

	hits, err := idx.Search(vector, k, probes, accept)
	if err != nil {
		return nil, err
	}
	if loadErr != nil {
		return nil, loadErr
	}

	candidates := make([]*core.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, &core.Candidate{Record: loaded[h.ID], Distance: h.Distance})
	}
	return candidates, nil
}
