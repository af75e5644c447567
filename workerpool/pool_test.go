package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/stretchr/testify/require"
)

func TestSubmitTaskReturnsResult(t *testing.T) {
	t.Parallel()

	pool := New(DefaultConfig())
	defer pool.Shutdown(context.Background())

	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	}, TaskOptions{})

	result := future.Await(context.Background())
	val, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, 42, val)
}

func TestSubmitTaskPropagatesError(t *testing.T) {
	t.Parallel()

	pool := New(DefaultConfig())
	defer pool.Shutdown(context.Background())

	wantErr := errors.New("task failed")
	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return nil, wantErr
	}, TaskOptions{})

	_, err := future.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, wantErr)
}

func TestPanicInTaskIsRecoveredAsWorkerFailed(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 1
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		panic("kaboom")
	}, TaskOptions{})

	_, err := future.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, actor.ErrWorkerFailed)

	// The pool should still be usable: the failed worker is replaced.
	require.Eventually(t, func() bool {
		future2 := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
			return "ok", nil
		}, TaskOptions{})
		val, err := future2.Await(context.Background()).Unpack()
		return err == nil && val == "ok"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTaskTimeoutRejectsSlowTask(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CancelGrace = 50 * time.Millisecond
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		// Don't honor cancellation promptly; force the cancel-grace path.
		time.Sleep(time.Second)
		return "too late", nil
	}, TaskOptions{Timeout: 20 * time.Millisecond})

	_, err := future.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, actor.ErrTaskTimeout)
}

// TestTaskTimeoutRejectsPromptlyCancelingTask covers the sibling path to
// TestTaskTimeoutRejectsSlowTask: a task that honors cancellation well
// within CancelGrace must still reject its future with ErrTaskTimeout
// (spec.md §4.7 — the sentinel is independent of whether the worker also
// had to be replaced), and the worker that handled it must survive and
// stay usable rather than being torn down.
func TestTaskTimeoutRejectsPromptlyCancelingTask(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 1
	cfg.CancelGrace = time.Second
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return "canceled early", nil
	}, TaskOptions{Timeout: 20 * time.Millisecond})

	_, err := future.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, actor.ErrTaskTimeout)

	// The same (single) worker must still be usable: it acknowledged
	// cancellation promptly, so CancelGrace never fired and it was never
	// replaced.
	future2 := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	}, TaskOptions{})
	val, err := future2.Await(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, "ok", val)
}

func TestPriorityOrderingWithinQueue(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 1
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	// Block the single worker so tasks queue up before being dispatched.
	block := make(chan struct{})
	started := make(chan struct{})
	pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, TaskOptions{})
	<-started

	var mu sync.Mutex
	var order []int

	record := func(n int) TaskFunc {
		return func(ctx context.Context) (any, error) {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			return n, nil
		}
	}

	pool.SubmitTask(context.Background(), record(1), TaskOptions{Priority: 1})
	pool.SubmitTask(context.Background(), record(2), TaskOptions{Priority: 5})
	pool.SubmitTask(context.Background(), record(3), TaskOptions{Priority: 5})
	pool.SubmitTask(context.Background(), record(4), TaskOptions{Priority: 0})

	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{2, 3, 1, 4}, order)
}

func TestQueueCapacityRejectsWhenFull(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 1
	cfg.QueueCapacity = 1
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	block := make(chan struct{})
	started := make(chan struct{})
	pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, TaskOptions{})
	<-started

	// Queue has room for exactly one more task.
	f1 := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return "queued", nil
	}, TaskOptions{})

	f2 := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return "rejected", nil
	}, TaskOptions{})

	_, err := f2.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, actor.ErrQueueFull)

	close(block)
	val, err := f1.Await(context.Background()).Unpack()
	require.NoError(t, err)
	require.Equal(t, "queued", val)
}

func TestPoolAutoscalesUpUnderLoad(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 4
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	var inFlight atomic.Int32
	var maxSeen atomic.Int32
	block := make(chan struct{})

	for i := 0; i < 4; i++ {
		pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
			n := inFlight.Add(1)
			for {
				cur := maxSeen.Load()
				if n <= cur || maxSeen.CompareAndSwap(cur, n) {
					break
				}
			}
			<-block
			inFlight.Add(-1)
			return nil, nil
		}, TaskOptions{})
	}

	require.Eventually(t, func() bool {
		return pool.WorkerCount() >= 4
	}, 2*time.Second, 10*time.Millisecond)

	close(block)
	require.Equal(t, int32(4), maxSeen.Load())
}

func TestCancelTaskUnknownIDReturnsFalse(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 1
	pool := New(cfg)
	defer pool.Shutdown(context.Background())

	block := make(chan struct{})
	started := make(chan struct{})
	pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, TaskOptions{})
	<-started

	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return "never runs", nil
	}, TaskOptions{})

	// The task id isn't exposed directly by SubmitTask in this test, so
	// exercise CancelTask's "not found" path only; the queued task is
	// left alone and runs once the worker is free.
	require.False(t, pool.CancelTask(999999))

	close(block)
	_, err := future.Await(context.Background()).Unpack()
	require.NoError(t, err)
}

func TestShutdownRejectsQueuedTasks(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinWorkers = 1
	cfg.MaxWorkers = 1
	pool := New(cfg)

	block := make(chan struct{})
	started := make(chan struct{})
	pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		close(started)
		<-block
		return nil, nil
	}, TaskOptions{})
	<-started

	queued := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return "unused", nil
	}, TaskOptions{})

	// Shutdown waits for the busy worker, so it runs in the background
	// until the blocking task is released.
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- pool.Shutdown(context.Background()) }()

	_, taskErr := queued.Await(context.Background()).Unpack()
	require.ErrorIs(t, taskErr, actor.ErrActorTerminated)

	close(block)
	require.NoError(t, <-shutdownErr)
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	t.Parallel()

	pool := New(DefaultConfig())
	require.NoError(t, pool.Shutdown(context.Background()))

	future := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, TaskOptions{})

	_, err := future.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, actor.ErrActorTerminated)
}

func TestMetricsTrackProcessedAndFailed(t *testing.T) {
	t.Parallel()

	pool := New(DefaultConfig())
	defer pool.Shutdown(context.Background())

	ok := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return "ok", nil
	}, TaskOptions{})
	ok.Await(context.Background())

	failed := pool.SubmitTask(context.Background(), func(ctx context.Context) (any, error) {
		return nil, errors.New("boom")
	}, TaskOptions{})
	failed.Await(context.Background())

	require.Eventually(t, func() bool {
		m := pool.Metrics()
		return m.Processed == 1 && m.Failed == 1
	}, time.Second, 10*time.Millisecond)
}
