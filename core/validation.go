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
	"fmt"
	"math"
)

// ValidateRecord validates an EmbeddingRecord before it is written.
//
// Validation rules:
//   - ID must not be empty
//   - Vector must not be empty
//   - Vector values must be finite
//
// Dimension consistency is checked by the store, which knows the table's dimension.
func ValidateRecord(record *EmbeddingRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}

	if len(record.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyVector)
	}

	for _, v := range record.Vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrNonFiniteVector)
		}
	}

	return nil
}

// ValidateWorkItem validates a discovered WorkItem.
func ValidateWorkItem(item *WorkItem) error {
	if item == nil {
		return fmt.Errorf("%w: item is nil", ErrInvalidWorkItem)
	}

	if item.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidWorkItem, ErrEmptyID)
	}

	if len(item.Payloads) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidWorkItem, ErrEmptyPayload)
	}

	for _, p := range item.Payloads {
		if err := ValidatePayload(p); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidWorkItem, err)
		}
	}

	return nil
}

// ValidatePayload validates that a Payload has a known kind and a reference.
func ValidatePayload(p Payload) error {
	switch p.Kind {
	case PayloadImage:
		if p.Path == "" && p.URL == "" {
			return ErrEmptyPayload
		}
	case PayloadText:
		if p.Text == "" {
			return ErrEmptyPayload
		}
	default:
		return fmt.Errorf("%w: value %d", ErrInvalidPayloadKind, p.Kind)
	}
	return nil
}
