package common

import (
	"sync"
)

const safeQueueMinCapacity = 16

// SafeQueue is an unbounded FIFO queue safe for many producers and a single consumer.
// Push never blocks: the underlying circular queue doubles its capacity when full.
// Consumers poll with TryPop and wait on Ready when the queue is empty.
type SafeQueue[T any] struct {
	queue   CircularQueue[T]
	mutex   sync.Mutex
	readyCh chan struct{}
	closed  bool
}

// NewSafeQueue initializes the SafeQueue with an initial capacity
func NewSafeQueue[T any](capacity int) *SafeQueue[T] {
	return &SafeQueue[T]{
		queue:   NewCircularQueue[T](max(capacity, safeQueueMinCapacity)),
		readyCh: make(chan struct{}, 1),
	}
}

// Push appends the item to the tail of the queue. It returns false if the queue is closed.
func (sq *SafeQueue[T]) Push(item T) bool {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()

	if sq.closed {
		return false
	}

	if sq.queue.IsFull() {
		_ = sq.queue.Resize(sq.queue.Cap() * 2)
	}

	_ = sq.queue.Push(item)

	// wake up the consumer if it is not already notified
	select {
	case sq.readyCh <- struct{}{}:
	default:
	}

	return true
}

// TryPop removes and returns the head of the queue without waiting.
func (sq *SafeQueue[T]) TryPop() (result T, ok bool) {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()

	if sq.closed || sq.queue.Len() == 0 {
		return result, false
	}

	return sq.queue.Pop(), true
}

// Ready is signalled after a Push. A signal may be stale, so the consumer must always call TryPop.
func (sq *SafeQueue[T]) Ready() <-chan struct{} {
	return sq.readyCh
}

// Close stops accepting new items and returns the items that were never popped.
func (sq *SafeQueue[T]) Close() []T {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()

	if sq.closed {
		return nil
	}

	sq.closed = true
	remaining := sq.queue.ToList()
	sq.queue.ClearFrom(0)

	return remaining
}

func (sq *SafeQueue[T]) IsClosed() bool {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()

	return sq.closed
}

func (sq *SafeQueue[T]) Len() int {
	sq.mutex.Lock()
	defer sq.mutex.Unlock()

	return sq.queue.Len()
}
