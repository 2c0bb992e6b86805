package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_NeverExceedsCapacity(t *testing.T) {
	p := New("image", 3, nil)

	var current, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.Do(context.Background(), func(ctx context.Context) error {
				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, 0, p.Running())
	assert.Equal(t, 0, p.Queued())
}

func TestPool_AdmitsInArrivalOrder(t *testing.T) {
	p := New("video", 1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	first := p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	var mu sync.Mutex
	var order []int
	var results []<-chan error
	for i := 0; i < 5; i++ {
		i := i
		results = append(results, p.Submit(context.Background(), func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
		require.Eventually(t, func() bool { return p.Queued() == i+1 }, time.Second, time.Millisecond)
	}

	close(release)
	require.NoError(t, <-first)
	for _, r := range results {
		require.NoError(t, <-r)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_FailureIsolation(t *testing.T) {
	p := New("image", 2, nil)
	boom := errors.New("boom")

	failed := p.Submit(context.Background(), func(ctx context.Context) error { return boom })
	ok := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	panicked := p.Submit(context.Background(), func(ctx context.Context) error { panic("tool crashed") })

	assert.ErrorIs(t, <-failed, boom)
	assert.NoError(t, <-ok)
	err := <-panicked
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool crashed")

	// Slots were released after the failures.
	assert.NoError(t, p.Do(context.Background(), func(ctx context.Context) error { return nil }))
	assert.NoError(t, p.Do(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestPool_CanceledWhileQueued(t *testing.T) {
	p := New("image", 1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	holder := p.Submit(context.Background(), func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	waiting := p.Submit(ctx, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.Eventually(t, func() bool { return p.Queued() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-waiting, context.Canceled)
	close(release)
	assert.NoError(t, <-holder)
	assert.False(t, ran.Load())
}

func TestPool_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	p := New("image", 2, m)

	require.NoError(t, p.Do(context.Background(), func(ctx context.Context) error { return nil }))
	require.Error(t, p.Do(context.Background(), func(ctx context.Context) error { return errors.New("x") }))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("image", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("image", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.running.WithLabelValues("image")))
}

func TestVideoCapacity(t *testing.T) {
	tests := []struct {
		image, want int
	}{
		{8, 2},
		{1, 1},
		{2, 1},
		{3, 1},
		{6, 2},
		{10, 3},
		{16, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VideoCapacity(tt.image), "image capacity %d", tt.image)
	}
}

func TestNew_MinimumCapacity(t *testing.T) {
	assert.Equal(t, 1, New("x", 0, nil).Capacity())
}
