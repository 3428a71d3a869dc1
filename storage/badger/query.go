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

	"github.com/arakoodev/gutty/ann"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
	"github.com/dgraph-io/badger/v4"
)

// loadMeta returns the table's metadata, or nil if the table doesn't exist.
func loadMeta(tx *badger.Txn, table string) (*core.TableMeta, error) {
	item, err := tx.Get(makeTableKey(table))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var meta *core.TableMeta
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		meta, unmarshalErr = storage.UnmarshalTableMeta(val)
		return unmarshalErr
	})
	return meta, err
}

func getRecord(tx *badger.Txn, table, id string) (*core.EmbeddingRecord, error) {
	item, err := tx.Get(makeRecordKey(table, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.EmbeddingRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}

// scanRecords calls fn for every record in the table, in key order.
func scanRecords(tx *badger.Txn, table string, fn func(*core.EmbeddingRecord) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeRecordPrefix(table)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var record *core.EmbeddingRecord
		err := iter.Item().Value(func(val []byte) error {
			var err error
			record, err = storage.UnmarshalRecord(val)
			return err
		})
		if err != nil {
			return fmt.Errorf("key %s: %w", iter.Item().Key(), err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// searchExact scores every record in the table.
func searchExact(ctx context.Context, tx *badger.Txn, table string, vector []float32, k int, filter *core.Filter) ([]*core.Candidate, error) {
	var candidates []*core.Candidate
	err := scanRecords(tx, table, func(r *core.EmbeddingRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !filter.Matches(r) {
			return nil
		}
		d, err := core.CosineDistance(vector, r.Vector)
		if err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		candidates = append(candidates, &core.Candidate{Record: r, Distance: d})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.TopK(candidates, k), nil
}

// searchIndexed probes the IVF index and loads the matching records.
func searchIndexed(tx *badger.Txn, table string, idx *ann.IVF, vector []float32, k, probes int, filter *core.Filter) ([]*core.Candidate, error) {
	if probes <= 0 {
		probes = ann.DefaultProbes(idx.Lists())
	}

	loaded := make(map[string]*core.EmbeddingRecord)
	var loadErr error
	accept := func(id string) bool {
		if loadErr != nil {
			return false
		}
		r, err := getRecord(tx, table, id)
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
