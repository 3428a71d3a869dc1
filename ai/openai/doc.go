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

// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// This package implements the ai.Provider interface using the langchaingo
// library. Text payloads are sent as plain embedding input. Image payloads are
// sent as a data URI (local files) or as their URL, which multimodal
// OpenAI-compatible servers such as CLIP deployments accept on the embeddings
// endpoint.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:8000"),  // /v1 added automatically
//	    ai.WithCoarseModel("clip-vit-b-32"),
//	    ai.WithFineModel("clip-vit-l-14"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().Embed(ctx, core.ImageRef("images/pho/001.jpg"))
package openai
