package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// chanPromise is the default Promise/Future implementation, backed by a
// close-once channel so that Await, ThenApply, and OnComplete can all
// observe completion without races.
type chanPromise[T any] struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	result fn.Result[T]
}

// NewPromise creates a new, uncompleted Promise.
func NewPromise[T any]() Promise[T] {
	return &chanPromise[T]{
		done: make(chan struct{}),
	}
}

// Complete implements Promise.
func (p *chanPromise[T]) Complete(result fn.Result[T]) bool {
	completed := false
	p.once.Do(func() {
		p.mu.Lock()
		p.result = result
		p.mu.Unlock()

		close(p.done)
		completed = true
	})
	return completed
}

// Future implements Promise.
func (p *chanPromise[T]) Future() Future[T] {
	return (*chanFuture[T])(p)
}

// chanFuture is the Future side of chanPromise; it shares the same
// underlying struct so completion is visible to both views without
// copying.
type chanFuture[T any] chanPromise[T]

// Await implements Future.
func (f *chanFuture[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply implements Future.
func (f *chanFuture[T]) ThenApply(ctx context.Context, fn_ func(T) T) Future[T] {
	next := NewPromise[T]()

	go func() {
		result := f.Await(ctx)
		result.WhenOk(func(val T) {
			next.Complete(fn.Ok(fn_(val)))
		})
		result.WhenErr(func(err error) {
			next.Complete(fn.Err[T](err))
		})
	}()

	return next.Future()
}

// OnComplete implements Future.
func (f *chanFuture[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	go func() {
		cb(f.Await(ctx))
	}()
}

// AlreadyCompletedFuture returns a Future that is immediately resolved
// with result. Used when a send fails before ever reaching a mailbox
// (e.g. the actor is already terminated).
func AlreadyCompletedFuture[T any](result fn.Result[T]) Future[T] {
	p := NewPromise[T]()
	p.Complete(result)
	return p.Future()
}
