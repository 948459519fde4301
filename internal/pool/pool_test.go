package pool

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

func TestPool_RunsTasks(t *testing.T) {
	p := New(Config{MaxWorkers: 4})

	var count atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			count.Add(1)
			return nil
		}))
	}
	p.Close()

	assert.Equal(t, int32(20), count.Load())
	stats := p.Stats()
	assert.Equal(t, int64(20), stats.Submitted)
	assert.Equal(t, int64(20), stats.Completed)
	assert.Zero(t, stats.Workers)
}

func TestPool_QueuesBeyondCapacity(t *testing.T) {
	p := New(Config{MaxWorkers: 2})
	ctx, cancel := context.WithCancel(context.Background())

	var started atomic.Int32
	blocker := func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		return nil
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(ctx, blocker))
	}

	require.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, 5*time.Millisecond)
	stats := p.Stats()
	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, 3, stats.Queued)
	assert.Equal(t, 2, stats.Capacity)

	cancel()
	p.Close()

	assert.Equal(t, int32(5), started.Load(), "queued tasks run and observe cancellation")
	assert.Equal(t, int64(5), p.Stats().Completed)
}

func TestPool_SingleWorkerDrainsQueue(t *testing.T) {
	p := New(Config{MaxWorkers: 0})
	assert.Equal(t, 1, p.Stats().Capacity)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	p.Close()

	assert.Equal(t, []int{0, 1, 2}, order, "FIFO")
}

func TestPool_RecoversPanics(t *testing.T) {
	var recovered atomic.Value
	var failures atomic.Int32

	p := New(Config{
		MaxWorkers:   1,
		PanicHandler: func(r any) { recovered.Store(r) },
		ErrorHandler: func(err error) {
			if errors.Is(err, ErrTaskPanic) {
				failures.Add(1)
			}
		},
	})

	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		panic("boom")
	}))
	var ran atomic.Bool
	require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	p.Close()

	assert.Equal(t, "boom", recovered.Load())
	assert.Equal(t, int32(1), failures.Load())
	assert.True(t, ran.Load(), "worker survives a panicking task")
	assert.Equal(t, int64(1), p.Stats().Failed)
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(DefaultConfig())
	p.Close()
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ErrorsCounted(t *testing.T) {
	p := New(Config{MaxWorkers: 2})
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Submit(context.Background(), func(ctx context.Context) error {
			return errors.New("failed")
		}))
	}
	p.Close()

	assert.Equal(t, int64(3), p.Stats().Failed)
}
