// Package queue provides a bounded multi-producer multi-consumer FIFO.
//
// Bounded blocks producers while it is full and consumers while it is
// empty. Closing the queue wakes every waiter: pending pushes fail, while
// items already buffered stay poppable until drained.
//
//	q := queue.NewBounded[int](2)
//	q.Push(ctx, 1)
//	v, ok := q.Pop(ctx)
//
// Blocking calls take a context.Context. Cancellation only abandons a wait;
// a push that finds free space, or a pop that finds a buffered item, always
// completes.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bounded is a fixed-capacity thread-safe FIFO.
// The zero value is not usable; construct with NewBounded.
type Bounded[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	// items is a ring buffer of len capacity; head indexes the oldest item.
	items  []T
	head   int
	count  int
	closed bool

	drops atomic.Uint64
}

// NewBounded creates a queue holding at most capacity items.
// A capacity below 1 is treated as 1.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	q := &Bounded[T]{
		items: make([]T, capacity),
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends item at the tail, blocking while the queue is full.
//
// It returns false without enqueuing when the queue is closed, either
// before the call or while waiting, or when ctx is done while waiting.
func (q *Bounded[T]) Push(ctx context.Context, item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == len(q.items) && !q.closed {
		stop := q.wakeOnDone(ctx)
		defer stop()
		for q.count == len(q.items) && !q.closed {
			if ctx.Err() != nil {
				return false
			}
			q.notFull.Wait()
		}
	}
	if q.closed {
		return false
	}

	q.enqueueLocked(item)
	return true
}

// TryPush appends item without blocking.
// It returns false when the queue is full (counted as a drop) or closed.
func (q *Bounded[T]) TryPush(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if q.count == len(q.items) {
		q.drops.Add(1)
		return false
	}
	q.enqueueLocked(item)
	return true
}

// Pop removes and returns the head, blocking while the queue is empty.
//
// Buffered items are returned even after Close. The second result is false
// only when the queue is closed and empty, or when ctx is done while waiting.
func (q *Bounded[T]) Pop(ctx context.Context) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 && !q.closed {
		stop := q.wakeOnDone(ctx)
		defer stop()
		for q.count == 0 && !q.closed {
			if ctx.Err() != nil {
				var zero T
				return zero, false
			}
			q.notEmpty.Wait()
		}
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}

	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head = (q.head + 1) % len(q.items)
	q.count--
	q.notFull.Signal()
	return item, true
}

// Close marks the queue closed and wakes all blocked callers.
// Calling Close more than once is a no-op.
func (q *Bounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Len returns the number of buffered items. The value may be stale by the
// time the caller inspects it.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int {
	return len(q.items)
}

// Closed reports whether Close has been called.
func (q *Bounded[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drops returns how many TryPush calls were refused because the queue was full.
func (q *Bounded[T]) Drops() uint64 {
	return q.drops.Load()
}

// enqueueLocked appends item. Caller holds q.mu and has checked capacity.
func (q *Bounded[T]) enqueueLocked(item T) {
	tail := (q.head + q.count) % len(q.items)
	q.items[tail] = item
	q.count++
	q.notEmpty.Signal()
}

// wakeOnDone arranges for both conditions to be broadcast when ctx is done,
// so waiters re-check ctx.Err(). The broadcast takes q.mu, which the waiter
// holds until it is parked in Wait, so the wakeup cannot be missed.
func (q *Bounded[T]) wakeOnDone(ctx context.Context) (stop func() bool) {
	if ctx.Done() == nil {
		return func() bool { return false }
	}
	return context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
}
