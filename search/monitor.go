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
	"log/slog"

	"github.com/arakoodev/gutty/core"
)

// SearchMonitor observes a search as it runs. Calls are made from the
// goroutine that called Search, never concurrently.
type SearchMonitor interface {
	Start(query core.Payload)
	AfterRetrieve(candidates []*core.Candidate)
	CandidateExcluded(candidate *core.Candidate, err error)
	Finish(results []*core.RankedCandidate)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ core.Payload)                        {}
func (n *noopMonitor) AfterRetrieve(_ []*core.Candidate)           {}
func (n *noopMonitor) CandidateExcluded(_ *core.Candidate, _ error) {}
func (n *noopMonitor) Finish(_ []*core.RankedCandidate)            {}

// LogMonitor reports every stage at debug level and exclusions as warnings.
type LogMonitor struct {
	Logger *slog.Logger
}

var _ SearchMonitor = (*LogMonitor)(nil)

func (m *LogMonitor) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m *LogMonitor) Start(query core.Payload) {
	m.logger().Debug("search started", "kind", query.Kind, "query", query.Ref())
}

func (m *LogMonitor) AfterRetrieve(candidates []*core.Candidate) {
	m.logger().Debug("coarse candidates retrieved", "count", len(candidates))
}

func (m *LogMonitor) CandidateExcluded(candidate *core.Candidate, err error) {
	id := ""
	if candidate != nil && candidate.Record != nil {
		id = candidate.Record.ID
	}
	m.logger().Warn("candidate excluded from ranking", "id", id, "err", err)
}

func (m *LogMonitor) Finish(results []*core.RankedCandidate) {
	best := 0.0
	if len(results) > 0 {
		best = results[0].RerankScore
	}
	m.logger().Debug("search finished", "results", len(results), "best", best)
}
