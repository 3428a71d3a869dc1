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

// Package ratelimit spaces calls to a shared remote resource so that no two
// calls start closer together than a fixed minimum interval.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter is a leaky bucket of one: no bursting, every call waits until
// minInterval has passed since the previous call. One Limiter is shared by
// every caller of the same remote resource.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
	now         func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter allowing callsPerSecond calls per second.
// A non-positive rate disables limiting.
func New(callsPerSecond float64, opts ...Option) *Limiter {
	l := &Limiter{now: time.Now}
	if callsPerSecond > 0 {
		l.minInterval = time.Duration(float64(time.Second) / callsPerSecond)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// MinInterval returns the enforced spacing between calls.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// WaitIfNeeded blocks until minInterval has elapsed since the previous call,
// then records the current time as the last call. Concurrent callers are
// serialized. The wait has no side effects if ctx is canceled.
func (l *Limiter) WaitIfNeeded(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.minInterval > 0 && !l.lastCall.IsZero() {
		elapsed := l.now().Sub(l.lastCall)
		if wait := l.minInterval - elapsed; wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("rate limit wait: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}

	l.lastCall = l.now()
	return nil
}
