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

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/search"
)

// candidateJSON is the file format shared by retrieve and rerank.
type candidateJSON struct {
	Rank       int      `json:"rank"`
	ID         string   `json:"id"`
	Label      string   `json:"label,omitempty"`
	Source     string   `json:"source,omitempty"`
	Image      string   `json:"image,omitempty"`
	Text       string   `json:"text,omitempty"`
	Distance   float32  `json:"distance"`
	CoarseRank int      `json:"coarse_rank,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

func newCandidateJSON(rank int, c *core.Candidate) candidateJSON {
	return candidateJSON{
		Rank:     rank,
		ID:       c.Record.ID,
		Label:    c.Record.Label,
		Source:   c.Record.SourceCollection,
		Image:    c.Record.RepresentativePath,
		Text:     c.Record.Text,
		Distance: c.Distance,
	}
}

func candidatesJSON(candidates []*core.Candidate) []candidateJSON {
	out := make([]candidateJSON, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, newCandidateJSON(i+1, c))
	}
	return out
}

func rankedJSON(ranked []*core.RankedCandidate) []candidateJSON {
	out := make([]candidateJSON, 0, len(ranked))
	for i, rc := range ranked {
		cj := newCandidateJSON(i+1, &rc.Candidate)
		cj.CoarseRank = rc.CoarseRank + 1
		score := rc.RerankScore
		cj.Score = &score
		out = append(out, cj)
	}
	return out
}

// toCandidate rebuilds the record fields rerank needs. Vectors are not
// stored in the file and are not needed.
func (cj candidateJSON) toCandidate() *core.Candidate {
	return &core.Candidate{
		Record: &core.EmbeddingRecord{
			ID:                 cj.ID,
			Label:              cj.Label,
			SourceCollection:   cj.Source,
			RepresentativePath: cj.Image,
			Text:               cj.Text,
		},
		Distance: cj.Distance,
	}
}

func readCandidates(path string) ([]*core.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}
	var file []candidateJSON
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	candidates := make([]*core.Candidate, 0, len(file))
	for _, cj := range file {
		if cj.ID == "" {
			return nil, fmt.Errorf("parse %s: %w: candidate %d has no id", path, core.ErrInvalidRecord, cj.Rank)
		}
		candidates = append(candidates, cj.toCandidate())
	}
	return candidates, nil
}

type batchJSON struct {
	Table       string `json:"table"`
	Total       int    `json:"total"`
	AlreadyDone int    `json:"already_done"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	IndexBuilt  bool   `json:"index_built"`
}

func newBatchJSON(table string, r *core.BatchResult) batchJSON {
	return batchJSON{
		Table:       table,
		Total:       r.Total,
		AlreadyDone: r.AlreadyDone,
		Processed:   r.Processed,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
		IndexBuilt:  r.IndexBuilt,
	}
}

type analysisJSON struct {
	Query      string                     `json:"query"`
	Candidates []search.AnalysisCandidate `json:"candidates"`
	Analysis   json.RawMessage            `json:"analysis"`
}
