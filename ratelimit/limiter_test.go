package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MinInterval(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, New(2).MinInterval())
	assert.Equal(t, time.Second, New(1).MinInterval())
	assert.Equal(t, time.Duration(0), New(0).MinInterval())
	assert.Equal(t, time.Duration(0), New(-3).MinInterval())
}

func TestWaitIfNeeded_SpacesCalls(t *testing.T) {
	l := New(2)
	const n = 4

	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, l.WaitIfNeeded(context.Background()))
	}

	assert.GreaterOrEqual(t, time.Since(start), (n-1)*500*time.Millisecond)
}

func TestWaitIfNeeded_FirstCallImmediate(t *testing.T) {
	l := New(0.5)
	start := time.Now()
	require.NoError(t, l.WaitIfNeeded(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitIfNeeded_Unlimited(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.WaitIfNeeded(context.Background()))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitIfNeeded_NoWaitAfterIdle(t *testing.T) {
	l := New(20) // 50ms
	require.NoError(t, l.WaitIfNeeded(context.Background()))
	time.Sleep(60 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.WaitIfNeeded(context.Background()))
	assert.Less(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitIfNeeded_ConcurrentCallersSerialized(t *testing.T) {
	l := New(10) // 100ms
	const workers = 4

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.WaitIfNeeded(context.Background()))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), (workers-1)*100*time.Millisecond)
}

func TestWaitIfNeeded_ContextCanceled(t *testing.T) {
	l := New(0.1) // 10s
	require.NoError(t, l.WaitIfNeeded(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.WaitIfNeeded(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitIfNeeded_UsesClock(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, WithClock(func() time.Time { return fixed }))
	require.NoError(t, l.WaitIfNeeded(context.Background()))
	assert.Equal(t, fixed, l.lastCall)
}

func TestWaitIfNeeded_NilLimiter(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.WaitIfNeeded(context.Background()))
}
