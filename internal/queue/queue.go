// Package queue provides the FIFO that decouples transport callbacks from
// record consumers.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Receive once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// FullMode selects what a bounded queue does when it is full.
type FullMode int

const (
	// DropNewest discards the item being sent.
	DropNewest FullMode = iota
	// DropOldest evicts the item at the head to make room.
	DropOldest
	// Block waits for a receiver to make room.
	Block
)

func (m FullMode) String() string {
	switch m {
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	case Block:
		return "block"
	}
	return "unknown"
}

// Options configures a Queue.
type Options struct {
	// Capacity bounds the queue. 0 means unbounded: the ring doubles once
	// it reaches 70% full.
	Capacity int

	// FullMode applies only when Capacity > 0.
	FullMode FullMode

	// InitialCapacity sizes the ring of an unbounded queue.
	InitialCapacity int
}

// Queue is a thread-safe ring buffer. Each item is handed to exactly one
// receiver, in send order.
type Queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	bounded  bool
	mode     FullMode
	closed   bool

	// Created lazily by a waiter, closed by the next state change.
	notEmpty chan struct{}
	notFull  chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// Stats contains queue statistics.
type Stats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	Dropped       int64
	ResizeCount   int
}

// New creates a queue.
func New[T any](opts Options) *Queue[T] {
	capacity := opts.Capacity
	bounded := capacity > 0
	if !bounded {
		capacity = opts.InitialCapacity
		if capacity < 1 {
			capacity = 64
		}
	}
	return &Queue[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
		bounded:  bounded,
		mode:     opts.FullMode,
	}
}

// NewGrowable creates an unbounded queue with the given initial ring size.
func NewGrowable[T any](initialCapacity int) *Queue[T] {
	return New[T](Options{InitialCapacity: initialCapacity})
}

// Send adds an item. It returns false if the queue is closed or the item
// was discarded under DropNewest. In Block mode it waits for room.
func (q *Queue[T]) Send(item T) bool {
	return q.SendContext(context.Background(), item) == nil
}

// errDropped is internal; Send reports it as false.
var errDropped = errors.New("queue full")

// SendContext is Send with a cancellable wait for Block mode.
func (q *Queue[T]) SendContext(ctx context.Context, item T) error {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}
		if !q.bounded {
			threshold := (q.capacity * 70) / 100
			if threshold < 1 {
				threshold = 1
			}
			if q.count+1 >= threshold {
				q.grow()
			}
			break
		}
		if q.count < q.capacity {
			break
		}
		switch q.mode {
		case DropNewest:
			q.dropped++
			q.mu.Unlock()
			return errDropped
		case DropOldest:
			q.popLocked()
			q.dropped++
			q.totalSent--
		case Block:
			if q.notFull == nil {
				q.notFull = make(chan struct{})
			}
			wait := q.notFull
			q.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return ctx.Err()
			}
			q.mu.Lock()
			continue
		}
		break
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.totalReceived++
	if q.notEmpty != nil {
		close(q.notEmpty)
		q.notEmpty = nil
	}
	q.mu.Unlock()
	return nil
}

// Receive removes and returns the head item, waiting until one is
// available. It returns ErrClosed once the queue is closed and empty, or
// the context error.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.count > 0 {
			item := q.popLocked()
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		if q.notEmpty == nil {
			q.notEmpty = make(chan struct{})
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryReceive attempts to receive without blocking.
func (q *Queue[T]) TryReceive() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// DrainTo removes up to max items (all when max <= 0).
func (q *Queue[T]) DrainTo(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	n := q.count
	if max > 0 && max < n {
		n = max
	}
	result := make([]T, n)
	for i := range result {
		result[i] = q.popLocked()
	}
	return result
}

// Close closes the queue. Pending items stay receivable; waiters wake.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	if q.notEmpty != nil {
		close(q.notEmpty)
		q.notEmpty = nil
	}
	if q.notFull != nil {
		close(q.notFull)
		q.notFull = nil
	}
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current ring capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Count:         q.count,
		Capacity:      q.capacity,
		TotalReceived: q.totalReceived,
		TotalSent:     q.totalSent,
		Dropped:       q.dropped,
		ResizeCount:   q.resizeCount,
	}
}

// popLocked removes the head item. Must be called with lock held and
// count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.totalSent++
	if q.notFull != nil {
		close(q.notFull)
		q.notFull = nil
	}
	return item
}

// grow doubles the ring. Must be called with lock held.
func (q *Queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizeCount++
}
