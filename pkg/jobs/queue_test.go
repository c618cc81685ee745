package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesAndDrains(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	q := New("test", func(ctx context.Context, n int) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, n)
		return nil
	}, Config{Workers: 2, BufferSize: 10})

	assert.False(t, q.TryEnqueue(0), "not started")
	q.Start(context.Background())
	for i := 1; i <= 5; i++ {
		require.True(t, q.TryEnqueue(i))
	}
	require.NoError(t, q.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5}, seen)
	assert.False(t, q.TryEnqueue(6), "closed")
}

func TestQueueRetries(t *testing.T) {
	var calls int32
	q := New("retry", func(ctx context.Context, _ string) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, Config{MaxRetries: 2, RetryDelay: time.Millisecond})

	q.Start(context.Background())
	require.True(t, q.TryEnqueue("x"))
	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueFullBuffer(t *testing.T) {
	release := make(chan struct{})
	q := New("full", func(ctx context.Context, _ int) error {
		<-release
		return nil
	}, Config{Workers: 1, BufferSize: 1})
	q.Start(context.Background())

	accepted := 0
	for i := 0; i < 5; i++ {
		if q.TryEnqueue(i) {
			accepted++
		}
	}
	assert.LessOrEqual(t, accepted, 2)
	close(release)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueStopWithoutStart(t *testing.T) {
	q := New("idle", func(ctx context.Context, _ int) error { return nil }, Config{})
	assert.ErrorIs(t, q.Stop(context.Background()), ErrQueueClosed)
}
