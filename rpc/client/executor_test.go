package client

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

func TestSequencerKeepsOrder(t *testing.T) {
	s := newSequencer(NewPoolExecutor(4))

	const n = 100
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		s.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestPoolExecutorLimit(t *testing.T) {
	e := NewPoolExecutor(2)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		e.Submit(func() {
			defer wg.Done()
			cur := running.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFuture(t *testing.T) {
	f := newFuture[int]()
	assert.True(t, f.complete(1, nil))
	assert.False(t, f.complete(2, errors.New("late")), "only the first result counts")

	v, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	pending := newFuture[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = pending.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	failed := failedFuture[string](ErrSessionClosed)
	select {
	case <-failed.Done():
	default:
		t.Fatal("failed future must be done")
	}
	_, err = failed.Get(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
