package live

import (
	"context"
	"sync"
)

// future is a value that is settled exactly once.
type future[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *future[T] {
	return &future[T]{done: make(chan struct{})}
}

// resolve settles the future with v. It reports whether this call won.
func (f *future[T]) resolve(v T) bool {
	return f.settle(v, nil)
}

// reject settles the future with err. It reports whether this call won.
func (f *future[T]) reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *future[T]) settle(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		won = true
	})
	return won
}

// settled reports whether the future has a value or an error.
func (f *future[T]) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// resolved reports whether the future settled with a value.
func (f *future[T]) resolved() bool {
	return f.settled() && f.err == nil
}

// wait blocks until the future settles or ctx is done.
func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
