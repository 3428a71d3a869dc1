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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/arakoodev/gutty/ai"
	"github.com/arakoodev/gutty/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrInvalidJSON is returned when the model never produced parseable JSON.
var ErrInvalidJSON = errors.New("generator returned invalid JSON")

const systemPrompt = "You are a precise visual analyst. Answer with a single JSON object and nothing else."

// parseAttempts bounds how often a malformed reply is regenerated.
const parseAttempts = 3

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
type Generator struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

// newGenerator is an internal constructor that returns the concrete type.
func newGenerator(config *ai.Config) (*Generator, error) {
	if err := config.ValidateGenerator(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GeneratorHost),
		openai.WithToken(config.Token()),
		openai.WithModel(config.GeneratorModel),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		client: client,
		model:  config.GeneratorModel,
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a structured generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// GenerateStructured sends the prompt, the optional image and the JSON encoded
// input to the model in JSON mode and returns the parsed reply.
func (g *Generator) GenerateStructured(ctx context.Context, prompt string, image *core.Payload, input any) (json.RawMessage, error) {
	parts := []llms.ContentPart{llms.TextPart(prompt)}

	if input != nil {
		encoded, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode generator input: %w", err)
		}
		parts = append(parts, llms.TextPart("Context:\n"+string(encoded)))
	}

	if image != nil {
		part, err := imagePart(*image)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: parts,
		},
	}

	var lastErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		response, err := g.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			g.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, fmt.Errorf("%w: %s: %w", core.ErrTransient, g.model, err)
		}

		if len(response.Choices) < 1 {
			lastErr = fmt.Errorf("%w: no choices returned", ErrInvalidJSON)
			continue
		}

		raw, err := parseReply(response.Choices[0].Content)
		if err != nil {
			lastErr = err
			g.logger.Warn("error parsing generator response", "attempt", attempt+1, "err", err)
			continue
		}
		return raw, nil
	}

	g.logger.Error("failed to parse generator response after retries", "err", lastErr)
	return nil, lastErr
}

// parseReply strips markdown fences, repairs unquoted keys and validates the JSON.
func parseReply(reply string) (json.RawMessage, error) {
	text := strings.TrimSpace(reply)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if !json.Valid([]byte(text)) {
		text = repairJSON(text)
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJSON, truncate(text, 200))
	}
	return json.RawMessage(text), nil
}

func imagePart(p core.Payload) (llms.ContentPart, error) {
	if p.Kind != core.PayloadImage {
		return llms.TextPart(p.Text), nil
	}
	if p.URL != "" {
		return llms.ImageURLPart(p.URL), nil
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", p.Path, err)
	}
	return llms.BinaryPart(imageMIME(p.Path, data), data), nil
}
