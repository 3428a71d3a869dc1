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
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS vector_tables (
            name TEXT PRIMARY KEY,
            col TEXT NOT NULL,
            dim INTEGER NOT NULL,
            index_fresh INTEGER NOT NULL DEFAULT 0,
            updated_at INTEGER NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS vector_records (
            tbl TEXT NOT NULL,
            id TEXT NOT NULL,
            label TEXT NOT NULL DEFAULT '',
            source TEXT NOT NULL DEFAULT '',
            path TEXT NOT NULL DEFAULT '',
            text TEXT NOT NULL DEFAULT '',
            dim INTEGER NOT NULL,
            embedding BLOB NOT NULL,
            updated_at INTEGER NOT NULL,
            PRIMARY KEY (tbl, id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_vector_records_filter ON vector_records(tbl, source, label);`,
	`CREATE TABLE IF NOT EXISTS vector_indexes (
            tbl TEXT NOT NULL,
            col TEXT NOT NULL,
            data BLOB NOT NULL,
            built_at INTEGER NOT NULL,
            PRIMARY KEY (tbl, col)
        );`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}
