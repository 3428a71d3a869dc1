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

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/retry"
)

// DefaultAnalysisPrompt asks for a dish identification grounded in the candidates.
const DefaultAnalysisPrompt = `Identify the dish in the image. The candidates are the closest matches from a reference collection, best first, with their similarity scores.
Reply with JSON: {"label": string, "confidence": number between 0 and 1, "matches": [candidate ids that support the answer], "notes": string}.`

// AnalysisCandidate is one ranked candidate as shown to the generator.
type AnalysisCandidate struct {
	Rank   int     `json:"rank"`
	ID     string  `json:"id"`
	Label  string  `json:"label,omitempty"`
	Source string  `json:"source,omitempty"`
	Image  string  `json:"image,omitempty"`
	Text   string  `json:"text,omitempty"`
	Score  float64 `json:"score"`
}

// Analyzer asks a structured generator to interpret a ranking.
type Analyzer struct {
	generator ai.Generator
	policy    retry.Policy
	topN      int
	logger    *slog.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerPolicy sets the retry policy around the generator call.
// Default is retry.BackoffPolicy.
func WithAnalyzerPolicy(policy retry.Policy) AnalyzerOption {
	return func(a *Analyzer) {
		a.policy = policy
	}
}

// WithAnalyzerTopN sets how many ranked candidates are sent. Default is 10.
func WithAnalyzerTopN(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithAnalyzerLogger sets a custom logger.
func WithAnalyzerLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(generator ai.Generator, opts ...AnalyzerOption) (*Analyzer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	a := &Analyzer{
		generator: generator,
		policy:    retry.BackoffPolicy(),
		topN:      10,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "analyzer")
	return a, nil
}

// Analyze sends the query image, the prompt and the top ranked candidates to
// the generator and returns its JSON reply. An empty prompt uses
// DefaultAnalysisPrompt.
func (a *Analyzer) Analyze(ctx context.Context, query core.Payload, ranked []*core.RankedCandidate, prompt string) (json.RawMessage, error) {
	if prompt == "" {
		prompt = DefaultAnalysisPrompt
	}

	input := AnalysisInput(ranked, a.topN)

	var image *core.Payload
	if query.Kind == core.PayloadImage {
		image = &query
	} else if query.Text != "" {
		prompt = prompt + "\nQuery: " + query.Text
	}

	var out json.RawMessage
	err := a.policy.Do(ctx, func() error {
		raw, err := a.generator.GenerateStructured(ctx, prompt, image, map[string]any{"candidates": input})
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	if err != nil {
		a.logger.Error("analysis failed", "candidates", len(input), "err", err)
		return nil, fmt.Errorf("analyze: %w", err)
	}

	a.logger.Debug("analysis complete", "candidates", len(input), "bytes", len(out))
	return out, nil
}

// AnalysisInput flattens the first topN ranked candidates.
func AnalysisInput(ranked []*core.RankedCandidate, topN int) []AnalysisCandidate {
	if topN > 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	out := make([]AnalysisCandidate, 0, len(ranked))
	for i, rc := range ranked {
		if rc == nil || rc.Record == nil {
			continue
		}
		out = append(out, AnalysisCandidate{
			Rank:   i + 1,
			ID:     rc.Record.ID,
			Label:  rc.Record.Label,
			Source: rc.Record.SourceCollection,
			Image:  rc.Record.RepresentativePath,
			Text:   rc.Record.Text,
			Score:  rc.RerankScore,
		})
	}
	return out
}
