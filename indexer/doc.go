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

// Package indexer embeds discovered work items and writes them to a vector
// index, resuming from a progress file.
//
// A run skips items already recorded as done, paces every embedding call
// through a shared rate limiter, retries embed and upsert calls, and upserts
// each record as soon as it is embedded. Progress is flushed every few
// completions and always once more when the run ends, including on
// cancellation. One failing item never aborts the batch; it is counted and
// left for a future run.
//
// Work items come from DiscoverImages (a tree of category directories) or
// LoadRows (a JSON-lines row set with several images per row).
package indexer
