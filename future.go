package mqttv5client

import (
	"context"
	"sync"
)

// Future is the pending result of an asynchronous client operation.
// It settles exactly once, with a value or an error.
type Future[T any] struct {
	done chan struct{}
	once sync.Once

	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// completedFuture returns a future already settled with v.
func completedFuture[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

// resolve settles the future with v. It reports false if already settled.
func (f *Future[T]) resolve(v T) bool {
	return f.settle(v, nil)
}

// reject settles the future with err. It reports false if already settled.
func (f *Future[T]) reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done returns a channel closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done. A ctx error only ends
// this wait; it does not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
