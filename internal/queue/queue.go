// Package queue buffers pending writes for the background DB writer.
package queue

import (
	"sync"
)

// Queue is a thread-safe FIFO of pending writes. Items carrying the same key
// collapse into one entry holding the latest value, at the position of the
// first push.
type Queue[K comparable, T any] struct {
	mu    sync.Mutex
	keyOf func(T) K
	keys  []K
	items map[K]T
}

// New creates a new empty queue keyed by keyOf.
func New[K comparable, T any](keyOf func(T) K) *Queue[K, T] {
	return &Queue[K, T]{
		keyOf: keyOf,
		items: make(map[K]T),
	}
}

// Push appends items to the queue, replacing pending items with the same key.
func (q *Queue[K, T]) Push(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, item := range items {
		k := q.keyOf(item)
		if _, ok := q.items[k]; !ok {
			q.keys = append(q.keys, k)
		}
		q.items[k] = item
	}
}

// Requeue puts items that failed to write back in front of the queue. A key
// pushed again in the meantime keeps its newer value.
func (q *Queue[K, T]) Requeue(items ...T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := make([]K, 0, len(items)+len(q.keys))
	for _, item := range items {
		k := q.keyOf(item)
		if _, ok := q.items[k]; ok {
			continue
		}
		q.items[k] = item
		front = append(front, k)
	}
	q.keys = append(front, q.keys...)
}

// Empty returns true if the queue has no items.
func (q *Queue[K, T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[K, T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.keys)
}

// GetAndEmpty returns all items in push order and clears the queue.
func (q *Queue[K, T]) GetAndEmpty() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := make([]T, 0, len(q.keys))
	for _, k := range q.keys {
		result = append(result, q.items[k])
	}
	q.keys = q.keys[:0]
	clear(q.items)
	return result
}
