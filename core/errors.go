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

package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the indexing and retrieval paths.
var (
	// ErrTransient marks network, timeout and quota failures from a remote service.
	ErrTransient = errors.New("transient remote error")

	// ErrAuth marks credential failures. It is a subset of ErrTransient.
	ErrAuth = fmt.Errorf("%w: authentication failed", ErrTransient)

	// ErrDataIntegrity marks data that can never succeed on retry.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrDimensionMismatch indicates vectors of different lengths were mixed.
	ErrDimensionMismatch = fmt.Errorf("%w: vector dimension mismatch", ErrDataIntegrity)

	// ErrCorruptProgress indicates a progress file could not be decoded.
	ErrCorruptProgress = fmt.Errorf("%w: corrupt progress file", ErrDataIntegrity)

	// ErrConfiguration marks missing or invalid settings detected at startup.
	ErrConfiguration = errors.New("configuration error")
)

// Domain validation errors
var (
	// ErrInvalidRecord indicates an EmbeddingRecord failed validation.
	ErrInvalidRecord = fmt.Errorf("%w: invalid embedding record", ErrDataIntegrity)

	// ErrInvalidWorkItem indicates a WorkItem failed validation.
	ErrInvalidWorkItem = errors.New("invalid work item")

	// ErrEmptyID indicates the ID field is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyVector indicates a record carries no embedding.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrNonFiniteVector indicates a vector contains NaN or Inf.
	ErrNonFiniteVector = errors.New("vector contains non-finite values")

	// ErrEmptyPayload indicates a payload references nothing to embed.
	ErrEmptyPayload = errors.New("payload cannot be empty")

	// ErrInvalidPayloadKind indicates an unknown PayloadKind value.
	ErrInvalidPayloadKind = errors.New("invalid payload kind")
)

// ConfigurationError names the setting that stopped a run before any work began.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %s is required", e.Setting)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Setting, e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// MissingSetting returns a ConfigurationError for a required setting that is unset.
func MissingSetting(setting string) error {
	return &ConfigurationError{Setting: setting}
}

// DimensionError reports the expected and actual vector lengths.
func DimensionError(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, got)
}
