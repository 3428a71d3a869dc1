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

package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	model    string
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config, model string) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.Token()),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}

	// base64 payloads carry no newlines, so stripping only affects text
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		model:    model,
		embedder: embedder,
		logger:   slog.Default().With("component", "openai-embedder", "model", model),
	}, nil
}

// NewEmbedder creates an embedder for the coarse model of the configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config, config.CoarseModel)
}

// Name returns the model identifier.
func (e *Embedder) Name() string {
	return e.model
}

// Embed generates a vector embedding for an image or text payload.
// Remote failures wrap core.ErrTransient.
func (e *Embedder) Embed(ctx context.Context, payload core.Payload) ([]float32, error) {
	if err := core.ValidatePayload(payload); err != nil {
		return nil, err
	}

	input, err := embeddingInput(payload)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("generating embedding", "kind", payload.Kind, "ref", payload.Ref())

	vec, err := e.embedder.EmbedQuery(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Error("failed to generate embedding", "ref", payload.Ref(), "err", err)
		return nil, fmt.Errorf("%w: %s: %w", core.ErrTransient, e.model, err)
	}

	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned no vector", core.ErrTransient, e.model)
	}

	return vec, nil
}

// embeddingInput renders a payload as the string sent to the embeddings endpoint.
func embeddingInput(payload core.Payload) (string, error) {
	switch {
	case payload.Kind == core.PayloadText:
		return payload.Text, nil
	case payload.URL != "":
		return payload.URL, nil
	default:
		data, err := os.ReadFile(payload.Path)
		if err != nil {
			return "", fmt.Errorf("read image %s: %w", payload.Path, err)
		}
		return dataURI(payload.Path, data), nil
	}
}

// dataURI encodes image bytes as a base64 data URI.
func dataURI(path string, data []byte) string {
	return "data:" + imageMIME(path, data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// imageMIME picks a MIME type from the file extension, falling back to sniffing.
func imageMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return http.DetectContentType(data)
}
