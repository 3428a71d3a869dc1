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

import (
	"context"
	"log/slog"

	"github.com/arakoodev/gutty/core"
)

// embedItem returns the vector for an item. A lone payload of an item that
// is not averaged is embedded directly and its failure fails the item.
// Otherwise images are embedded one by one, failures are dropped and the
// successful vectors are averaged; ErrNoImages means none succeeded.
func (ix *Indexer) embedItem(ctx context.Context, logger *slog.Logger, item *core.WorkItem) ([]float32, error) {
	payloads := item.Payloads
	if len(payloads) == 1 && !item.Averaged {
		return ix.embed(ctx, payloads[0])
	}

	if len(payloads) > ix.config.MaxImagesPerItem {
		logger.Debug("image cap reached", "images", len(payloads), "cap", ix.config.MaxImagesPerItem)
		payloads = payloads[:ix.config.MaxImagesPerItem]
	}

	vectors := make([][]float32, 0, len(payloads))
	for _, p := range payloads {
		vec, err := ix.embed(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("image embedding failed, ignoring", "ref", p.Ref(), "err", err)
			continue
		}
		if len(vectors) > 0 && len(vec) != len(vectors[0]) {
			return nil, core.DimensionError(len(vectors[0]), len(vec))
		}
		vectors = append(vectors, vec)
	}

	if len(vectors) == 0 {
		return nil, ErrNoImages
	}
	return core.MeanVector(vectors)
}

// embed makes one paced, retried embedding call.
func (ix *Indexer) embed(ctx context.Context, payload core.Payload) ([]float32, error) {
	var vec []float32
	err := ix.embedPolicy.Do(ctx, func() error {
		if err := ix.limiter.WaitIfNeeded(ctx); err != nil {
			return err
		}
		v, err := ix.embedder.Embed(ctx, payload)
		if err != nil {
			return err
		}
		if len(v) == 0 {
			return core.ErrEmptyVector
		}
		vec = v
		return nil
	})
	return vec, err
}
