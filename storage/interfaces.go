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

package storage

import (
	"context"

	"github.com/arakoodev/gutty/core"
)

// DefaultColumn is the embedding column name used when none is given.
const DefaultColumn = "emb_coarse"

// VectorIndex stores embedding records in named tables and answers nearest
// neighbour queries over them.
type VectorIndex interface {
	// Upsert writes records into table, overwriting any with the same ID.
	// The table is created on first upsert using the first record's
	// dimension. Records are validated with core.ValidateRecord.
	Upsert(ctx context.Context, table string, records ...*core.EmbeddingRecord) error

	// CreateIndex (re)builds the ANN index for the table's embedding column.
	// Returns ErrTableNotFound if the table has never been written.
	CreateIndex(ctx context.Context, table, column string) error

	// Search returns up to k candidates nearest to vector by cosine distance,
	// ascending, ties broken by record ID. Filter may be nil.
	// Returns ErrTableNotFound if the table has never been written.
	Search(ctx context.Context, table, column string, vector []float32, k int, filter *core.Filter) ([]*core.Candidate, error)

	// Get returns a record by ID, or nil when absent.
	Get(ctx context.Context, table, id string) (*core.EmbeddingRecord, error)

	// Count returns the number of records in table, 0 if it doesn't exist.
	Count(ctx context.Context, table string) (int, error)

	// Tables lists the metadata of every table.
	Tables(ctx context.Context) ([]core.TableMeta, error)

	// DropTable removes a table with its records and index.
	DropTable(ctx context.Context, table string) error

	// Close closes the storage backend and releases resources.
	Close() error
}
