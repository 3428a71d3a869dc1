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
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arakoodev/gutty/core"
)

// ValidateTableName rejects names that cannot be used as key prefixes.
func ValidateTableName(table string) error {
	if table == "" || strings.ContainsAny(table, ":\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTableName, table)
	}
	return nil
}

// ResolveColumn returns the column a request refers to, defaulting to the
// table's embedding column.
func ResolveColumn(meta *core.TableMeta, column string) (string, error) {
	if column == "" {
		return meta.Column, nil
	}
	if column != meta.Column {
		return "", fmt.Errorf("%w: %s (table %s uses %s)", ErrUnknownColumn, column, meta.Name, meta.Column)
	}
	return column, nil
}

// CheckBatch validates records for a table whose dimension is dim (0 when
// the table does not exist yet) and returns the dimension they share.
func CheckBatch(dim int, records []*core.EmbeddingRecord) (int, error) {
	for _, r := range records {
		if err := core.ValidateRecord(r); err != nil {
			return 0, err
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return 0, fmt.Errorf("record %s: %w", r.ID, core.DimensionError(dim, len(r.Vector)))
		}
	}
	return dim, nil
}

// Stamped returns a copy of record carrying its own UpdatedAt, or now when
// it has none. The caller's record is left untouched.
func Stamped(record *core.EmbeddingRecord, now time.Time) *core.EmbeddingRecord {
	stamped := *record
	if stamped.UpdatedAt.IsZero() {
		stamped.UpdatedAt = now
	} else {
		stamped.UpdatedAt = stamped.UpdatedAt.UTC().Truncate(time.Microsecond)
	}
	return &stamped
}

// SortCandidates orders by ascending distance, ties by record ID.
func SortCandidates(candidates []*core.Candidate) {
	slices.SortStableFunc(candidates, func(a, b *core.Candidate) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return strings.Compare(a.Record.ID, b.Record.ID)
		}
	})
}

// TopK sorts candidates and keeps the first k.
func TopK(candidates []*core.Candidate, k int) []*core.Candidate {
	SortCandidates(candidates)
	if k >= 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}
