package client

import (
	"context"
	"sync"
)

// Future is the result of an asynchronous request.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// failedFuture returns a future that is already completed with err
func failedFuture[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

// complete sets the result. Only the first call has an effect.
func (f *Future[T]) complete(value T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Get waits for the result. If ctx ends first, ctx.Err() is returned and the request keeps running.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// failer returns a function that fails the future
func (f *Future[T]) failer() func(error) {
	return func(err error) {
		var zero T
		f.complete(zero, err)
	}
}
