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

// Package storage defines the vector index boundary used by the indexing and
// retrieval pipelines.
//
// A VectorIndex holds named tables of EmbeddingRecords. A table is created by
// its first upsert, which fixes the embedding column name and the vector
// dimension; later upserts with a different dimension are rejected with
// core.ErrDimensionMismatch.
//
// # Constructor Return Type Pattern
//
// Public constructors in backend packages return the VectorIndex interface:
//
//	index, err := badger.NewVectorIndex(path)  // returns storage.VectorIndex
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Backends
//
//   - storage/badger: BadgerDB key-value store (default)
//   - storage/sqlite: SQLite via the pure-Go modernc driver
//
// Both persist an IVF index built by CreateIndex and fall back to an exact
// scan while the index is missing or stale.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
