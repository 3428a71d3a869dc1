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
	"fmt"

	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/storage"
)

// MaxWorkers caps concurrent items per run.
const MaxWorkers = 4

// Config holds configuration for an indexing run.
type Config struct {
	// Table receives the records.
	Table string

	// CheckpointEvery flushes progress after this many processed items.
	CheckpointEvery int

	// Workers is the number of items embedded concurrently, 1 to MaxWorkers.
	Workers int

	// MaxImagesPerItem caps how many images of one item are averaged.
	MaxImagesPerItem int

	// BuildIndex rebuilds the ANN index when the run processed anything.
	BuildIndex bool

	// ReportInterval is how often to report progress (number of items).
	ReportInterval int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		CheckpointEvery:  10,
		Workers:          1,
		MaxImagesPerItem: 5,
		BuildIndex:       true,
		ReportInterval:   10,
	}
}

// Validate fills zero values with defaults and checks the rest.
func (c *Config) Validate() error {
	if c.Table == "" {
		return core.MissingSetting("Table")
	}
	if err := storage.ValidateTableName(c.Table); err != nil {
		return &core.ConfigurationError{Setting: "Table", Reason: err.Error()}
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 10
	}
	if c.MaxImagesPerItem <= 0 {
		c.MaxImagesPerItem = 5
	}
	if c.ReportInterval <= 0 {
		c.ReportInterval = c.CheckpointEvery
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Workers > MaxWorkers {
		return &core.ConfigurationError{Setting: "Workers", Reason: fmt.Sprintf("must be between 1 and %d", MaxWorkers)}
	}
	return nil
}
