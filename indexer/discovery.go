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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/arakoodev/gutty/core"
)

// imageExtensions are matched case-insensitively.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// maxRowBytes bounds one JSON-lines row.
const maxRowBytes = 4 << 20

// Dataset is one image tree. Source tags every item found under Dir.
type Dataset struct {
	Source string
	Dir    string
}

// ParseDataset parses "source=dir". A bare dir uses its base name as source.
func ParseDataset(s string) (Dataset, error) {
	source, dir, found := strings.Cut(s, "=")
	if !found {
		dir = s
		source = filepath.Base(filepath.Clean(s))
	}
	source, dir = strings.TrimSpace(source), strings.TrimSpace(dir)
	if source == "" || dir == "" || source == "." || source == string(filepath.Separator) {
		return Dataset{}, fmt.Errorf("%w: %q", ErrInvalidDataset, s)
	}
	return Dataset{Source: source, Dir: dir}, nil
}

// DiscoverImages walks each dataset for .jpg, .jpeg and .png files in lexical
// order. The item ID is "<source>-<basename>" and the label is the name of the
// directory holding the file. Duplicate IDs keep the first occurrence.
func DiscoverImages(datasets []Dataset, logger *slog.Logger) ([]core.WorkItem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "discovery")

	var items []core.WorkItem
	seen := make(map[string]string)

	for _, ds := range datasets {
		err := filepath.WalkDir(ds.Dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			id := ds.Source + "-" + filepath.Base(path)
			if first, dup := seen[id]; dup {
				logger.Warn("duplicate item id, keeping first", "id", id, "first", first, "duplicate", path)
				return nil
			}
			seen[id] = path

			items = append(items, core.WorkItem{
				ID:       id,
				Source:   ds.Source,
				Label:    filepath.Base(filepath.Dir(path)),
				Payloads: []core.Payload{core.ImageRef(path)},
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk dataset %s: %w", ds.Source, err)
		}
	}

	logger.Debug("discovered images", "datasets", len(datasets), "items", len(items))
	return items, nil
}

// row is one line of a JSON-lines row set.
type row struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Source     string   `json:"source"`
	ImagePaths []string `json:"image_paths"`
	Text       string   `json:"text"`
}

// LoadRows reads a JSON-lines row set from path.
func LoadRows(path string, logger *slog.Logger) ([]core.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f, logger)
}

// ReadRows parses JSON-lines rows. Rows without an id get one derived from
// their content. Image paths may be local files or http(s) URLs; rows without
// images embed their text. Blank lines are ignored and a malformed line is an
// error naming the line number.
func ReadRows(r io.Reader, logger *slog.Logger) ([]core.WorkItem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "discovery")

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRowBytes)

	var items []core.WorkItem
	seen := make(map[string]int)
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rw row
		if err := json.Unmarshal([]byte(text), &rw); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", core.ErrInvalidRecord, line, err)
		}

		item := rowItem(rw)
		if first, dup := seen[item.ID]; dup {
			logger.Warn("duplicate row id, keeping first", "id", item.ID, "first_line", first, "line", line)
			continue
		}
		seen[item.ID] = line
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	logger.Debug("loaded rows", "items", len(items))
	return items, nil
}

func rowItem(rw row) core.WorkItem {
	item := core.WorkItem{
		ID:     rw.ID,
		Source: rw.Source,
		Label:  rw.Label,
		Text:   rw.Text,
	}
	for _, p := range rw.ImagePaths {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			continue
		case strings.HasPrefix(p, "http://"), strings.HasPrefix(p, "https://"):
			item.Payloads = append(item.Payloads, core.ImageURL(p))
		default:
			item.Payloads = append(item.Payloads, core.ImageRef(p))
		}
		item.Averaged = true
	}
	if len(item.Payloads) == 0 && rw.Text != "" {
		item.Payloads = []core.Payload{core.TextRef(rw.Text)}
	}
	if item.ID == "" {
		item.ID = core.IDFromContent(rw.Source + "\x00" + rw.Label + "\x00" + rw.Text + "\x00" + strings.Join(rw.ImagePaths, "\x00")).String()
	}
	return item
}
