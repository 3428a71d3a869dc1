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
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/arakoodev/gutty/core"
)

// ErrInvalidAttempts is returned when the attempt count is <= 0.
var ErrInvalidAttempts = errors.New("attempts must be greater than 0")

// authMarkers are lower-case substrings that identify credential failures
// in provider error messages.
var authMarkers = []string{
	"auth",
	"credential",
	"unauthorized",
	"unauthenticated",
	"permission denied",
	"forbidden",
	"api key",
	"401",
	"403",
}

// jitter returns a random fraction in [0, 1). Replaced in tests.
var jitter = rand.Float64

// WithRetry calls operation up to attempts times, sleeping delay between
// failures. Every error is retried. Returns the error from the last attempt
// unchanged if all attempts fail.
func WithRetry(ctx context.Context, operation func() error, attempts int, delay time.Duration) error {
	return run(ctx, operation, attempts, func(int, error) time.Duration {
		return delay
	})
}

// WithExponentialBackoff retries operation with exponential backoff.
// The delay after failed attempt i (0-indexed) is min(baseDelay*2^i, maxDelay)
// plus up to 10% jitter. Credential failures double the delay.
func WithExponentialBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay, maxDelay time.Duration) error {
	return run(ctx, operation, maxAttempts, func(attempt int, err error) time.Duration {
		return BackoffDelay(attempt, baseDelay, maxDelay, err)
	})
}

// BackoffDelay computes the sleep before the attempt following a failed
// attempt (0-indexed).
func BackoffDelay(attempt int, baseDelay, maxDelay time.Duration, err error) time.Duration {
	delay := baseDelay
	for i := 0; i < attempt && (maxDelay <= 0 || delay < maxDelay); i++ {
		delay *= 2
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	delay += time.Duration(float64(delay) * 0.1 * jitter())
	if IsAuthError(err) {
		delay *= 2
	}
	return delay
}

// IsAuthError reports whether err looks like an authentication or
// credential failure. Matching is by substring on the message.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrAuth) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func run(ctx context.Context, operation func() error, attempts int, delayFor func(int, error) time.Duration) error {
	if attempts <= 0 {
		return ErrInvalidAttempts
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 0 {
				slog.Debug("operation succeeded after retry", "attempt", attempt+1)
			}
			return nil
		}

		slog.Debug("operation failed, will retry", "attempt", attempt+1, "maxAttempts", attempts, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == attempts-1 {
			break
		}

		if err := sleep(ctx, delayFor(attempt, lastErr)); err != nil {
			return err
		}
	}

	return lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
