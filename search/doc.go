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

// Package search finds and ranks stored embeddings for an image or text query.
//
// Search runs in two stages. The Retriever embeds the query with the coarse
// model and asks the vector index for the nearest candidates. The Reranker
// re-embeds the query and each candidate's representative image with the
// fine model and orders candidates by cosine similarity. A candidate that
// cannot be re-embedded is dropped from the ranking instead of failing the
// query.
//
// The Analyzer hands the top ranked candidates to a structured generator and
// returns its JSON verdict. Searcher chains retrieval and reranking and
// reports each stage to a SearchMonitor.
package search
