package orchestrator

import (
	"container/list"
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

var ErrQueueClosed = errors.New("queue is closed")

// Queue is an unbounded FIFO that also allows removing items from the
// middle. Pop blocks until an item arrives, the queue is closed, or ctx is
// done.
type Queue[T any] struct {
	mutex  sync.Mutex
	items  *list.List
	closed bool
	// closed and replaced on every push, waking all waiters
	wake chan struct{}
}

func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		items: list.New(),
		wake:  make(chan struct{}),
	}
}

func (q *Queue[T]) Push(item T) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.items.PushBack(item)
	q.broadcast()
	return nil
}

func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	for {
		q.mutex.Lock()
		if front := q.items.Front(); front != nil {
			q.items.Remove(front)
			q.mutex.Unlock()
			return front.Value.(T), nil
		}

		if q.closed {
			q.mutex.Unlock()
			return zero, ErrQueueClosed
		}

		wake := q.wake
		q.mutex.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return zero, context.Cause(ctx)
		}
	}
}

// Remove drops every queued item matching match and reports how many went.
func (q *Queue[T]) Remove(match func(T) bool) int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	removed := 0
	for element := q.items.Front(); element != nil; {
		next := element.Next()
		if match(element.Value.(T)) {
			q.items.Remove(element)
			removed++
		}
		element = next
	}

	return removed
}

func (q *Queue[T]) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.items.Len()
}

// Close stops new pushes. Items already queued can still be popped.
func (q *Queue[T]) Close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.broadcast()
}

func (q *Queue[T]) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}
