package bgworker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, opts Options) *Pool {
	t.Helper()

	p := New(t.Context(), t.Name(), opts)
	t.Cleanup(p.Stop)

	return p
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	p := newPool(t, Options{Workers: 2})

	var counter atomic.Int32

	tasks := make([]pond.Task, 10)
	for i := range tasks {
		tasks[i] = p.Submit(func() { counter.Add(1) })
	}

	for _, task := range tasks {
		require.NoError(t, task.Wait())
	}

	assert.Equal(t, int32(10), counter.Load())
}

func TestGo(t *testing.T) {
	t.Parallel()

	p := newPool(t, Options{})
	done := make(chan struct{})

	require.NoError(t, p.Go(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestSubmitWithPanic(t *testing.T) {
	t.Parallel()

	p := newPool(t, Options{Workers: 1})

	err := p.Submit(func() { panic("collaborator exploded") }).Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collaborator exploded")
}

func TestStoppedPoolRefuses(t *testing.T) {
	t.Parallel()

	p := New(t.Context(), "stopped", Options{Workers: 1})
	p.Stop()

	assert.True(t, p.Stopped())

	err := p.Go(func() {})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, pond.ErrPoolStopped)
}

func TestFullQueueRefuses(t *testing.T) {
	t.Parallel()

	p := newPool(t, Options{Workers: 1, QueueSize: 1, NonBlocking: true})

	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Go(func() {
		close(started)
		<-release
	}))

	<-started

	var refused error

	for range 10 {
		if err := p.Go(func() {}); err != nil {
			refused = err

			break
		}
	}

	require.ErrorIs(t, refused, ErrUnavailable)
	assert.ErrorIs(t, refused, pond.ErrQueueFull)

	close(release)
}

func TestContextStopsPool(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	p := New(ctx, "ctx", Options{Workers: 1})

	cancel()

	assert.Eventually(t, func() bool {
		return p.Go(func() {}) != nil
	}, time.Second, 10*time.Millisecond)
}

func TestCollectors(t *testing.T) {
	t.Parallel()

	p := newPool(t, Options{Workers: 1})
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, p.Register(reg))

	require.NoError(t, p.Submit(func() {}).Wait())

	count, err := testutil.GatherAndCount(reg, "bgworker_completed_tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(p.Collectors()[2]) == 1
	}, time.Second, 10*time.Millisecond)

	require.Error(t, p.Register(reg))
}
