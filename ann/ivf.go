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

// Package ann implements an inverted-file (IVF-flat) approximate nearest
// neighbour index over cosine similarity.
//
// Vectors are unit-normalized and partitioned into lists around k-means
// centroids. A query ranks the centroids and scans the members of the
// closest lists exactly.
package ann

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/arakoodev/gutty/core"
)

var (
	// ErrEmpty is returned when building an index from no vectors.
	ErrEmpty = errors.New("ann: no vectors to index")

	// ErrLengthMismatch is returned when ids and vectors differ in length.
	ErrLengthMismatch = errors.New("ann: ids and vectors length mismatch")
)

const (
	defaultIterations = 10
)

// Options tunes index construction.
type Options struct {
	Lists      int // number of partitions, default ceil(sqrt(n))
	Iterations int // k-means rounds, default 10
}

// Hit is one search result.
type Hit struct {
	ID       string
	Distance float32 // cosine distance, 1 - similarity
}

// IVF is a built index. It is immutable and safe for concurrent searches.
type IVF struct {
	dim       int
	centroids [][]float32
	lists     [][]int32
	ids       []string
	vectors   [][]float32
}

// Build partitions the vectors into lists. Vectors must share one dimension
// and ids must be unique.
func Build(ids []string, vectors [][]float32, opts Options) (*IVF, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil, ErrEmpty
	}

	dim := len(vectors[0])
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, core.DimensionError(dim, len(v))
		}
		normalized[i] = core.NormalizeVector(v)
	}

	n := len(ids)
	lists := opts.Lists
	if lists <= 0 {
		lists = int(math.Ceil(math.Sqrt(float64(n))))
	}
	if lists > n {
		lists = n
	}
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = defaultIterations
	}

	// evenly spaced seeds keep builds deterministic
	centroids := make([][]float32, lists)
	for c := range centroids {
		centroids[c] = append([]float32(nil), normalized[c*n/lists]...)
	}

	assign := make([]int, n)
	for iter := 0; iter < iterations; iter++ {
		changed := iter == 0
		for i, v := range normalized {
			if best := nearestCentroid(centroids, v); best != assign[i] {
				assign[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		recomputeCentroids(centroids, normalized, assign)
	}

	members := make([][]int32, lists)
	for i, v := range normalized {
		c := nearestCentroid(centroids, v)
		members[c] = append(members[c], int32(i))
	}

	return &IVF{
		dim:       dim,
		centroids: centroids,
		lists:     members,
		ids:       append([]string(nil), ids...),
		vectors:   normalized,
	}, nil
}

// Dimension returns the vector length the index was built with.
func (x *IVF) Dimension() int { return x.dim }

// Len returns the number of indexed vectors.
func (x *IVF) Len() int { return len(x.ids) }

// Lists returns the number of partitions.
func (x *IVF) Lists() int { return len(x.centroids) }

// Search returns up to k hits ordered by ascending distance, ties by ID.
// nprobe lists are scanned; when they hold fewer than k accepted members,
// further lists are probed in centroid order until k are found or the index
// is exhausted. accept may be nil.
func (x *IVF) Search(query []float32, k, nprobe int, accept func(id string) bool) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, core.DimensionError(x.dim, len(query))
	}
	if k <= 0 {
		return nil, nil
	}
	if nprobe <= 0 {
		nprobe = 1
	}

	q := core.NormalizeVector(query)

	order := make([]int, len(x.centroids))
	scores := make([]float64, len(x.centroids))
	for c, centroid := range x.centroids {
		order[c] = c
		scores[c] = dot(q, centroid)
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	var hits []Hit
	for probed, c := range order {
		if probed >= nprobe && len(hits) >= k {
			break
		}
		for _, idx := range x.lists[c] {
			id := x.ids[idx]
			if accept != nil && !accept(id) {
				continue
			}
			hits = append(hits, Hit{ID: id, Distance: distance(q, x.vectors[idx])})
		}
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Distance != hits[b].Distance {
			return hits[a].Distance < hits[b].Distance
		}
		return hits[a].ID < hits[b].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for c, centroid := range centroids {
		if s := dot(v, centroid); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

func recomputeCentroids(centroids, vectors [][]float32, assign []int) {
	dim := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, v := range vectors {
		c := assign[i]
		counts[c]++
		for j, val := range v {
			sums[c][j] += float64(val)
		}
	}
	for c := range centroids {
		// empty lists keep their previous centroid
		if counts[c] == 0 {
			continue
		}
		mean := make([]float32, dim)
		for j := range mean {
			mean[j] = float32(sums[c][j] / float64(counts[c]))
		}
		centroids[c] = core.NormalizeVector(mean)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// distance assumes both vectors are unit length or zero.
func distance(a, b []float32) float32 {
	d := 1 - dot(a, b)
	if d < 0 {
		d = 0
	}
	if d > 2 {
		d = 2
	}
	return float32(d)
}

// DefaultProbes returns the number of lists to scan when the caller has no
// preference: a quarter of the lists, at least one.
func DefaultProbes(lists int) int {
	if p := (lists + 3) / 4; p > 1 {
		return p
	}
	return 1
}
