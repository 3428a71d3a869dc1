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

package ann

import (
	"errors"
	"fmt"

	"github.com/arakoodev/gutty/core"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// ErrCorrupt is returned when an encoded index cannot be decoded.
var ErrCorrupt = errors.New("ann: corrupt index data")

const codecVersion = 1

// MarshalBinary encodes the index: version, dimension, centroids, then each
// member as id, list number and vector.
func (x *IVF) MarshalBinary() ([]byte, error) {
	assign := make([]int, len(x.ids))
	for c, members := range x.lists {
		for _, idx := range members {
			assign[idx] = c
		}
	}

	size := varint.Uint64.Size(codecVersion)
	size += varint.Uint64.Size(uint64(x.dim))
	size += varint.Uint64.Size(uint64(len(x.centroids)))
	for _, c := range x.centroids {
		size += core.VectorMUS.Size(c)
	}
	size += varint.Uint64.Size(uint64(len(x.ids)))
	for i, id := range x.ids {
		size += ord.String.Size(id)
		size += varint.Uint64.Size(uint64(assign[i]))
		size += core.VectorMUS.Size(x.vectors[i])
	}

	bs := make([]byte, size)
	n := varint.Uint64.Marshal(codecVersion, bs)
	n += varint.Uint64.Marshal(uint64(x.dim), bs[n:])
	n += varint.Uint64.Marshal(uint64(len(x.centroids)), bs[n:])
	for _, c := range x.centroids {
		n += core.VectorMUS.Marshal(c, bs[n:])
	}
	n += varint.Uint64.Marshal(uint64(len(x.ids)), bs[n:])
	for i, id := range x.ids {
		n += ord.String.Marshal(id, bs[n:])
		n += varint.Uint64.Marshal(uint64(assign[i]), bs[n:])
		n += core.VectorMUS.Marshal(x.vectors[i], bs[n:])
	}
	return bs[:n], nil
}

// Unmarshal decodes an index produced by MarshalBinary.
func Unmarshal(bs []byte) (*IVF, error) {
	d := decoder{bs: bs}

	if v := d.uint(); d.err == nil && v != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	x := &IVF{dim: int(d.uint())}

	lists := d.count()
	x.centroids = make([][]float32, 0, lists)
	for i := 0; i < lists && d.err == nil; i++ {
		x.centroids = append(x.centroids, d.vector(x.dim))
	}
	x.lists = make([][]int32, len(x.centroids))

	n := d.count()
	x.ids = make([]string, 0, n)
	x.vectors = make([][]float32, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		id := d.string()
		list := int(d.uint())
		vec := d.vector(x.dim)
		if d.err != nil {
			break
		}
		if list >= len(x.lists) {
			return nil, fmt.Errorf("%w: list %d out of range", ErrCorrupt, list)
		}
		x.lists[list] = append(x.lists[list], int32(len(x.ids)))
		x.ids = append(x.ids, id)
		x.vectors = append(x.vectors, vec)
	}

	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, d.err)
	}
	return x, nil
}

// decoder carries the first error through a sequence of reads.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) uint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

// count reads a length and rejects values larger than the remaining input.
func (d *decoder) count() int {
	v := d.uint()
	if d.err == nil && v > uint64(len(d.bs)-d.n) {
		d.err = core.ErrTooLarge
		return 0
	}
	return int(v)
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) vector(dim int) []float32 {
	if d.err != nil {
		return nil
	}
	v, n, err := core.VectorMUS.Unmarshal(d.bs[d.n:])
	d.n += n
	if err != nil {
		d.err = err
		return nil
	}
	if len(v) != dim {
		d.err = core.DimensionError(dim, len(v))
	}
	return v
}
