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

package retry

import (
	"context"
	"time"
)

// Policy selects a retry variant for one call site.
type Policy struct {
	Attempts  int
	Delay     time.Duration // fixed interval between attempts
	Backoff   bool          // use exponential backoff instead of Delay
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy retries three times, 500ms apart.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Delay:    500 * time.Millisecond,
	}
}

// BackoffPolicy retries five times with delays from 2s up to 60s.
func BackoffPolicy() Policy {
	return Policy{
		Attempts:  5,
		Backoff:   true,
		BaseDelay: 2 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// Do runs operation under the policy.
func (p Policy) Do(ctx context.Context, operation func() error) error {
	if p.Backoff {
		return WithExponentialBackoff(ctx, operation, p.Attempts, p.BaseDelay, p.MaxDelay)
	}
	return WithRetry(ctx, operation, p.Attempts, p.Delay)
}
