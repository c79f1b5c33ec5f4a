// Package queue provides an unbounded FIFO shared by many producers and
// many consumers.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded multi-producer, multi-consumer FIFO. Put never
// blocks; Get blocks until an item is available or the context is done.
// Items from one producer are delivered in the order they were put.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	wait  chan struct{} // closed and cleared by Put when consumers are parked
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Put appends v to the tail of the queue.
func (q *Queue[T]) Put(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	if q.wait != nil {
		close(q.wait)
		q.wait = nil
	}
	q.mu.Unlock()
}

// Get removes and returns the item at the head of the queue, blocking while
// the queue is empty. It returns ctx.Err() if ctx is done first.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return v, nil
		}
		if q.wait == nil {
			q.wait = make(chan struct{})
		}
		wait := q.wait
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
