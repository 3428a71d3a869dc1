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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const recordColumns = `id, label, source, path, text, embedding, updated_at`

func loadMeta(ctx context.Context, q queryer, table string) (*core.TableMeta, error) {
	row := q.QueryRowContext(ctx, `SELECT name, col, dim, index_fresh, updated_at FROM vector_tables WHERE name=?`, table)
	meta, err := scanMeta(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return meta, err
}

func scanMeta(row scanner) (*core.TableMeta, error) {
	var meta core.TableMeta
	var fresh int
	var updated int64
	if err := row.Scan(&meta.Name, &meta.Column, &meta.Dimension, &fresh, &updated); err != nil {
		return nil, err
	}
	meta.IndexFresh = fresh != 0
	meta.UpdatedAt = time.UnixMicro(updated).UTC()
	return &meta, nil
}

func scanRecord(row scanner) (*core.EmbeddingRecord, error) {
	var r core.EmbeddingRecord
	var blob []byte
	var updated int64
	if err := row.Scan(&r.ID, &r.Label, &r.SourceCollection, &r.RepresentativePath, &r.Text, &blob, &updated); err != nil {
		return nil, err
	}
	vec, err := decodeEmbedding(blob)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w: %w", r.ID, storage.ErrSerializationFailed, err)
	}
	r.Vector = vec
	r.UpdatedAt = time.UnixMicro(updated).UTC()
	return &r, nil
}

func getRecord(ctx context.Context, q queryer, table, id string) (*core.EmbeddingRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM vector_records WHERE tbl=? AND id=?`, table, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// searchExact scores every matching record. Filters are applied in SQL.
func searchExact(ctx context.Context, q queryer, table string, vector []float32, k int, filter *core.Filter) ([]*core.Candidate, error) {
	var source, label string
	if filter != nil {
		source, label = filter.SourceCollection, filter.Label
	}

	rows, err := q.QueryContext(ctx, `SELECT `+recordColumns+` FROM vector_records
        WHERE tbl=? AND (?='' OR source=?) AND (?='' OR label=?)`,
		table, source, source, label, label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*core.Candidate
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		d, err := core.CosineDistance(vector, r.Vector)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		candidates = append(candidates, &core.Candidate{Record: r, Distance: d})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return storage.TopK(candidates, k), nil
}
