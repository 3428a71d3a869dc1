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

package core

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a content-derived identifier for work items that carry no natural key.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// String renders the ID as fixed-width hex so it sorts and compares as text.
func (id ID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// PayloadKind identifies what a Payload points at.
type PayloadKind int

const (
	// PayloadImage is an image referenced by local path or URL.
	PayloadImage PayloadKind = iota + 1
	// PayloadText is a short text span.
	PayloadText
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadImage:
		return "image"
	case PayloadText:
		return "text"
	default:
		return fmt.Sprintf("PayloadKind(%d)", int(k))
	}
}

// Payload is the input handed to an embedding model.
type Payload struct {
	Kind PayloadKind
	Path string // local image path
	URL  string // remote image URL
	Text string
}

// ImageRef returns an image payload for a local file.
func ImageRef(path string) Payload {
	return Payload{Kind: PayloadImage, Path: path}
}

// ImageURL returns an image payload for a remote image.
func ImageURL(url string) Payload {
	return Payload{Kind: PayloadImage, URL: url}
}

// TextRef returns a text payload.
func TextRef(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

// Key identifies the payload content. Equal keys embed to equal vectors.
func (p Payload) Key() string {
	switch {
	case p.Kind == PayloadText:
		return "text:" + p.Text
	case p.URL != "":
		return "url:" + p.URL
	default:
		return "path:" + p.Path
	}
}

// Ref returns the path, URL or text that the payload stands for.
func (p Payload) Ref() string {
	switch {
	case p.Kind == PayloadText:
		return p.Text
	case p.URL != "":
		return p.URL
	default:
		return p.Path
	}
}

// WorkItem is one unit of indexing work. Items are immutable once discovered.
type WorkItem struct {
	ID       string    // stable key, never derived from position
	Source   string    // collection the item was discovered in
	Label    string    // category, e.g. the parent directory name
	Text     string    // optional descriptive text stored with the record
	Payloads []Payload // one or more images, or a single text span

	// Averaged marks an item whose images are averaged into one vector,
	// such as a row with an image list. Such an item is skipped rather than
	// failed when none of its images embed, however many it has.
	Averaged bool
}

// Representative returns the payload used for re-ranking, the first one.
func (w *WorkItem) Representative() Payload {
	if len(w.Payloads) == 0 {
		return Payload{}
	}
	return w.Payloads[0]
}

// EmbeddingRecord is a stored embedding plus the metadata needed to rank and display it.
type EmbeddingRecord struct {
	ID                 string
	Label              string
	SourceCollection   string
	RepresentativePath string
	Text               string
	Vector             []float32
	UpdatedAt          time.Time
}

// Representative returns the payload to re-embed with the fine model.
// Records without an image fall back to their text.
func (r *EmbeddingRecord) Representative() Payload {
	switch {
	case strings.HasPrefix(r.RepresentativePath, "http://"), strings.HasPrefix(r.RepresentativePath, "https://"):
		return ImageURL(r.RepresentativePath)
	case r.RepresentativePath != "":
		return ImageRef(r.RepresentativePath)
	default:
		return TextRef(r.Text)
	}
}

// Dimension returns the vector length.
func (r *EmbeddingRecord) Dimension() int {
	return len(r.Vector)
}

// Candidate is a coarse ANN hit. Distance is cosine distance in [0,2].
type Candidate struct {
	Record   *EmbeddingRecord
	Distance float32
}

// RankedCandidate is a candidate rescored against the fine embedding.
type RankedCandidate struct {
	Candidate
	CoarseRank  int     // position in the coarse result list
	RerankScore float64 // cosine similarity in [-1,1]
}

// Filter restricts a search to matching metadata. Empty fields match anything.
type Filter struct {
	SourceCollection string
	Label            string
}

// Matches reports whether the record satisfies the filter.
func (f *Filter) Matches(r *EmbeddingRecord) bool {
	if f == nil {
		return true
	}
	if f.SourceCollection != "" && r.SourceCollection != f.SourceCollection {
		return false
	}
	if f.Label != "" && r.Label != f.Label {
		return false
	}
	return true
}

// BatchResult accumulates the outcome of one indexing run.
type BatchResult struct {
	Total       int // items discovered
	AlreadyDone int // skipped because progress marked them done
	Processed   int // embedded and upserted
	Skipped     int // nothing embeddable, left for a future run
	Failed      int // failed after retries
	IndexBuilt  bool
}

// Pending returns the number of items that were eligible for work this run.
func (r *BatchResult) Pending() int {
	return r.Total - r.AlreadyDone
}

// ExitCode is 0 when there was nothing to do or at least one item was
// processed, and 1 when eligible items existed but none succeeded.
func (r *BatchResult) ExitCode() int {
	if r.Pending() > 0 && r.Processed == 0 {
		return 1
	}
	return 0
}

func (r *BatchResult) String() string {
	return fmt.Sprintf("total=%d already_done=%d processed=%d skipped=%d failed=%d",
		r.Total, r.AlreadyDone, r.Processed, r.Skipped, r.Failed)
}

// TableMeta describes a vector table. It is written on the first upsert.
type TableMeta struct {
	Name       string
	Column     string
	Dimension  int
	IndexFresh bool // false once records change after the last index build
	UpdatedAt  time.Time
}
