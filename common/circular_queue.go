package common

import "fmt"

// CircularQueue is a fixed capacity FIFO. It is not safe for concurrent use.
type CircularQueue[T any] struct {
	items []T
	count int
	size  int
	pos   int
}

func NewCircularQueue[T any](size int) CircularQueue[T] {
	return CircularQueue[T]{
		items: make([]T, size),
		size:  size,
	}
}

func (cq *CircularQueue[T]) Push(item T) error {
	if cq.count == cq.size {
		return fmt.Errorf("queue is already populated with %d items", cq.count)
	}

	cq.items[cq.index(cq.count)] = item
	cq.count++

	return nil
}

// Pop removes the oldest item, the zero value when empty.
func (cq *CircularQueue[T]) Pop() (result T) {
	if cq.count == 0 {
		return result
	}

	var zero T

	result, cq.items[cq.pos] = cq.items[cq.pos], zero
	cq.pos = cq.index(1)
	cq.count--

	return result
}

// Last returns the newest item, the zero value when empty.
func (cq *CircularQueue[T]) Last() (result T) {
	if cq.count == 0 {
		return result
	}

	return cq.items[cq.index(cq.count-1)]
}

func (cq CircularQueue[T]) Len() int {
	return cq.count
}

func (cq CircularQueue[T]) Cap() int {
	return cq.size
}

func (cq CircularQueue[T]) IsFull() bool {
	return cq.count == cq.size
}

// Resize moves the queued items, in order, into a buffer of the new size.
func (cq *CircularQueue[T]) Resize(size int) error {
	if size < cq.count || size == 0 {
		return fmt.Errorf("queue holds %d items, cannot resize to %d", cq.count, size)
	}

	items := make([]T, size)
	copy(items, cq.ToList())

	cq.items = items
	cq.size = size
	cq.pos = 0

	return nil
}

// ToList returns the queued items from the oldest to the newest.
func (cq *CircularQueue[T]) ToList() []T {
	result := make([]T, cq.count)

	for i := range result {
		result[i] = cq.items[cq.index(i)]
	}

	return result
}

// ClearFrom drops the item at position from, counted from the oldest, and every newer one.
func (cq *CircularQueue[T]) ClearFrom(from int) {
	var zero T

	for i := max(0, from); i < cq.count; i++ {
		cq.items[cq.index(i)] = zero
	}

	cq.count = min(cq.count, max(0, from))
}

// Find returns the position of the oldest item matching handler, -1 when none does.
func (cq *CircularQueue[T]) Find(handler func(t T) bool) int {
	for i := 0; i < cq.count; i++ {
		if handler(cq.items[cq.index(i)]) {
			return i
		}
	}

	return -1
}

func (cq *CircularQueue[T]) index(offset int) int {
	return (cq.pos + offset) % cq.size
}
