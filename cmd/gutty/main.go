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
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "gutty",
		Usage:     "Resumable image and text embedding indexer with two-stage search",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"GUTTY_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "index-images",
				Usage:  "Embed every image under one or more dataset directories",
				Action: indexImagesCommand,
				Flags: withFlags(storageFlags("segments"), aiFlags(), indexFlags(),
					&cli.StringSliceFlag{
						Name:     "dataset",
						Usage:    "Dataset as source=dir, repeatable",
						Required: true,
					},
				),
			},
			{
				Name:   "index-rows",
				Usage:  "Embed the rows of a JSONL file",
				Action: indexRowsCommand,
				Flags: withFlags(storageFlags("recipes"), aiFlags(), indexFlags(),
					&cli.StringFlag{
						Name:     "rows",
						Usage:    "JSONL file with one row per line",
						Required: true,
					},
				),
			},
			{
				Name:   "build-index",
				Usage:  "Rebuild the ANN index of a table",
				Action: buildIndexCommand,
				Flags: withFlags(storageFlags("segments"),
					&cli.StringFlag{
						Name:  "column",
						Usage: "Embedding column (defaults to the table's column)",
					},
				),
			},
			{
				Name:   "retrieve",
				Usage:  "Return the nearest candidates for an image or text query",
				Action: retrieveCommand,
				Flags: withFlags(storageFlags("segments"), aiFlags(), queryFlags(),
					&cli.IntFlag{Name: "topk", Usage: "Number of candidates to retrieve"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write JSON here instead of stdout"},
				),
			},
			{
				Name:   "rerank",
				Usage:  "Rescore retrieved candidates with the fine embedding model",
				Action: rerankCommand,
				Flags: withFlags(storageFlags("segments"), aiFlags(), queryFlags(),
					&cli.StringFlag{
						Name:     "candidates",
						Usage:    "JSON file written by retrieve",
						Required: true,
					},
					&cli.IntFlag{Name: "topn", Usage: "Number of ranked candidates to keep"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write JSON here instead of stdout"},
				),
			},
			{
				Name:   "analyze",
				Usage:  "Retrieve, rerank and ask the generator model about the best matches",
				Action: analyzeCommand,
				Flags: withFlags(storageFlags("segments"), aiFlags(), queryFlags(),
					&cli.IntFlag{Name: "topk", Usage: "Number of candidates to retrieve"},
					&cli.IntFlag{Name: "topn", Usage: "Number of ranked candidates to keep"},
					&cli.StringFlag{Name: "prompt", Usage: "Instruction sent with the candidates"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Write JSON here instead of stdout"},
				),
			},
			{
				Name:   "status",
				Usage:  "Show record count and progress of a table",
				Action: statusCommand,
				Flags:  storageFlags("segments"),
			},
			{
				Name:   "reset",
				Usage:  "Forget indexing progress of a table",
				Action: resetCommand,
				Flags: withFlags(storageFlags("segments"),
					&cli.BoolFlag{
						Name:  "drop",
						Usage: "Also remove the table's records and index",
					},
				),
			},
		},
	}
}

func storageFlags(table string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the vector index (directory for badger, file for sqlite)",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend (badger, sqlite, memory)",
		},
		&cli.StringFlag{
			Name:    "table",
			Aliases: []string{"t"},
			Usage:   "Table name",
			Value:   table,
		},
		&cli.StringFlag{
			Name:  "progress",
			Usage: "Progress file (defaults to <progress_dir>/<table>.json)",
		},
	}
}

func aiFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "embedding-host", Usage: "Embedding service host URL"},
		&cli.StringFlag{Name: "generator-host", Usage: "Generator service host URL"},
		&cli.StringFlag{Name: "coarse-model", Usage: "Embedding model used for indexing and retrieval"},
		&cli.StringFlag{Name: "fine-model", Usage: "Embedding model used for reranking"},
		&cli.StringFlag{Name: "generator-model", Usage: "Multimodal model used by analyze"},
		&cli.Float64Flag{Name: "calls-per-second", Usage: "Maximum embedding calls per second (0 disables pacing)"},
	}
}

func indexFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "workers", Usage: "Items embedded concurrently (1-4)"},
		&cli.IntFlag{Name: "checkpoint-every", Usage: "Flush progress every N items"},
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "image", Usage: "Query image path or URL"},
		&cli.StringFlag{Name: "text", Usage: "Query text"},
		&cli.StringFlag{Name: "label", Usage: "Only match records with this label"},
		&cli.StringFlag{Name: "source", Usage: "Only match records from this source collection"},
	}
}

func withFlags(groups ...any) []cli.Flag {
	var flags []cli.Flag
	for _, g := range groups {
		switch v := g.(type) {
		case []cli.Flag:
			flags = append(flags, v...)
		case cli.Flag:
			flags = append(flags, v)
		}
	}
	return flags
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
