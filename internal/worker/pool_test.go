package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewPool_Validation(t *testing.T) {
	_, err := NewPool(0)
	require.Error(t, err)
	_, err = NewPool(-1)
	require.Error(t, err)
}

func TestDo_PropagatesResult(t *testing.T) {
	p, err := NewPool(1)
	require.NoError(t, err)

	require.NoError(t, p.Do(context.Background(), func(context.Context) error { return nil }))

	sentinel := errors.New("boom")
	require.ErrorIs(t, p.Do(context.Background(), func(context.Context) error { return sentinel }), sentinel)
}

func TestDo_BoundsConcurrency(t *testing.T) {
	const size = 2
	p, err := NewPool(size)
	require.NoError(t, err)

	var running, peak int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), func(context.Context) error {
				n := atomic.AddInt64(&running, 1)
				for {
					old := atomic.LoadInt64(&peak)
					if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, atomic.LoadInt64(&peak), int64(size))
}

func TestDo_ContextExpiresWhileWaiting(t *testing.T) {
	p, err := NewPool(1)
	require.NoError(t, err)

	release := make(chan struct{})
	busy := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), func(context.Context) error {
			close(busy)
			<-release
			return nil
		})
	}()
	<-busy
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	ran := false
	err = p.Do(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, ran)
}
