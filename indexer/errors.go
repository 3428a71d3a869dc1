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

package indexer

import "errors"

var (
	// ErrEmbedderRequired is returned when New is called without an embedder.
	ErrEmbedderRequired = errors.New("indexer: embedder is required")

	// ErrIndexRequired is returned when New is called without a vector index.
	ErrIndexRequired = errors.New("indexer: vector index is required")

	// ErrProgressRequired is returned when New is called without a progress store.
	ErrProgressRequired = errors.New("indexer: progress store is required")

	// ErrNoImages is returned when an item yields no usable embedding.
	ErrNoImages = errors.New("no image could be embedded")

	// ErrInvalidDataset is returned for a malformed --dataset value.
	ErrInvalidDataset = errors.New("invalid dataset, want source=dir")
)
