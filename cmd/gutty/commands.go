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
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/arakoodev/gutty"
	"github.com/arakoodev/gutty/config"
	"github.com/arakoodev/gutty/core"
	"github.com/arakoodev/gutty/indexer"
	"github.com/arakoodev/gutty/search"
)

// loadConfig reads the config file and environment, then applies the flags
// the user actually set.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}

	strs := map[string]*string{
		"db":              &cfg.Storage.Path,
		"backend":         &cfg.Storage.Backend,
		"progress":        &cfg.Indexer.ProgressFile,
		"embedding-host":  &cfg.AI.EmbeddingHost,
		"generator-host":  &cfg.AI.GeneratorHost,
		"coarse-model":    &cfg.AI.CoarseModel,
		"fine-model":      &cfg.AI.FineModel,
		"generator-model": &cfg.AI.GeneratorModel,
	}
	for flag, dst := range strs {
		if c.IsSet(flag) {
			*dst = c.String(flag)
		}
	}
	ints := map[string]*int{
		"workers":          &cfg.Indexer.Workers,
		"checkpoint-every": &cfg.Indexer.CheckpointEvery,
		"topk":             &cfg.Search.TopK,
		"topn":             &cfg.Search.TopN,
	}
	for flag, dst := range ints {
		if c.IsSet(flag) {
			*dst = c.Int(flag)
		}
	}
	if c.IsSet("calls-per-second") {
		cfg.AI.CallsPerSecond = c.Float64("calls-per-second")
	}
	if c.IsSet("topn") {
		cfg.Search.AnalyzeTopN = c.Int("topn")
	}
	return cfg, nil
}

func openDatabase(c *cli.Context) (*gutty.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	db, err := gutty.Open(c.Context, cfg, gutty.WithLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func indexImagesCommand(c *cli.Context) error {
	var datasets []indexer.Dataset
	for _, s := range c.StringSlice("dataset") {
		d, err := indexer.ParseDataset(s)
		if err != nil {
			return err
		}
		datasets = append(datasets, d)
	}

	items, err := indexer.DiscoverImages(datasets, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to discover images: %w", err)
	}
	return runIndexer(c, items)
}

func indexRowsCommand(c *cli.Context) error {
	items, err := indexer.LoadRows(c.String("rows"), slog.Default())
	if err != nil {
		return fmt.Errorf("failed to load rows: %w", err)
	}
	return runIndexer(c, items)
}

func runIndexer(c *cli.Context, items []core.WorkItem) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	table := c.String("table")
	ix, err := db.NewIndexer(table, indexer.WithOutput(c.App.ErrWriter))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Table: %s\n", table)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", db.Provider().Embedder().Name())
	fmt.Fprintf(c.App.ErrWriter, "Items: %d\n", len(items))
	fmt.Fprintln(c.App.ErrWriter)

	result, err := ix.Run(c.Context, items)
	if result != nil {
		if werr := writeJSON(c, newBatchJSON(table, result)); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	if code := result.ExitCode(); code != 0 {
		return cli.Exit(fmt.Sprintf("no items were indexed (%s)", result), code)
	}
	return nil
}

func buildIndexCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	table := c.String("table")
	if err := db.Index().CreateIndex(c.Context, table, c.String("column")); err != nil {
		return fmt.Errorf("failed to build index for %s: %w", table, err)
	}
	status, err := db.Status(c.Context, table)
	if err != nil {
		return err
	}
	return writeJSON(c, status)
}

func retrieveCommand(c *cli.Context) error {
	query, err := queryPayload(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(c.String("table"), queryFilter(c))
	if err != nil {
		return err
	}
	candidates, err := searcher.Retriever().RetrieveFor(c.Context, query, db.Config().Search.TopK)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}
	return writeJSON(c, candidatesJSON(candidates))
}

func rerankCommand(c *cli.Context) error {
	query, err := queryPayload(c)
	if err != nil {
		return err
	}
	candidates, err := readCandidates(c.String("candidates"))
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(c.String("table"), nil)
	if err != nil {
		return err
	}
	ranked, err := searcher.Reranker().Rerank(c.Context, query, candidates)
	if err != nil {
		return fmt.Errorf("rerank failed: %w", err)
	}
	return writeJSON(c, rankedJSON(ranked))
}

func analyzeCommand(c *cli.Context) error {
	query, err := queryPayload(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(c.String("table"), queryFilter(c))
	if err != nil {
		return err
	}
	analyzer, err := db.NewAnalyzer()
	if err != nil {
		return err
	}

	ranked, err := searcher.SearchWithMonitor(c.Context, query, db.Config().Search.TopK, &search.LogMonitor{Logger: slog.Default()})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	analysis, err := analyzer.Analyze(c.Context, query, ranked, c.String("prompt"))
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	return writeJSON(c, analysisJSON{
		Query:      query.Ref(),
		Candidates: search.AnalysisInput(ranked, db.Config().Search.AnalyzeTopN),
		Analysis:   analysis,
	})
}

func statusCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	status, err := db.Status(c.Context, c.String("table"))
	if err != nil {
		return err
	}
	return writeJSON(c, status)
}

func resetCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	table := c.String("table")
	if err := db.Reset(c.Context, table, c.Bool("drop")); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Reset %s\n", table)
	return nil
}

// queryPayload turns --image or --text into a payload. Exactly one is required.
func queryPayload(c *cli.Context) (core.Payload, error) {
	image, text := c.String("image"), c.String("text")
	switch {
	case image != "" && text != "":
		return core.Payload{}, fmt.Errorf("use either --image or --text, not both")
	case image == "" && text == "":
		return core.Payload{}, fmt.Errorf("a query is required: set --image or --text")
	case text != "":
		return core.TextRef(text), nil
	case strings.HasPrefix(image, "http://"), strings.HasPrefix(image, "https://"):
		return core.ImageURL(image), nil
	default:
		return core.ImageRef(image), nil
	}
}

func queryFilter(c *cli.Context) *core.Filter {
	if c.String("label") == "" && c.String("source") == "" {
		return nil
	}
	return &core.Filter{Label: c.String("label"), SourceCollection: c.String("source")}
}

// writeJSON writes v to --out when set, otherwise to the app's stdout.
func writeJSON(c *cli.Context, v any) error {
	w := c.App.Writer
	if out := c.String("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
