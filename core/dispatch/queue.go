package dispatch

import (
	"context"
	"fmt"
	"sync"
)

// Queue is a bounded FIFO shared by the intake and the workers. Put blocks
// while the queue is full; Take blocks while it is empty.
type Queue[T any] struct {
	ch        chan T
	closed    chan struct{}
	closeOnce sync.Once
	// puts holds a read lock for every Put in flight; Close takes the write
	// lock so no Put can land after it returns.
	puts sync.RWMutex
}

// NewQueue returns a queue holding up to capacity items. A non-positive
// capacity is a configuration error.
func NewQueue[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, &ConfigError{Field: "QueueCapacity", Reason: fmt.Sprintf("must be positive, got %d", capacity)}
	}
	return &Queue[T]{
		ch:     make(chan T, capacity),
		closed: make(chan struct{}),
	}, nil
}

// Put adds item, blocking until there is room. It fails with an error
// wrapping ErrInterruptedDispatch when ctx ends first, or with
// ErrQueueClosed once Close was called.
func (q *Queue[T]) Put(ctx context.Context, item T) error {
	q.puts.RLock()
	defer q.puts.RUnlock()

	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrInterruptedDispatch, ctx.Err())
	case <-q.closed:
		return ErrQueueClosed
	}
}

// Take removes the oldest item, blocking until one is available. After
// Close it drains the remaining items and then fails with ErrQueueClosed.
func (q *Queue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.ch:
		return item, nil
	default:
	}

	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %w", ErrInterruptedDispatch, ctx.Err())
	case <-q.closed:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return zero, ErrQueueClosed
		}
	}
}

// Close stops Put and waits for puts in flight to settle. Items already
// queued can still be taken.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
		// wait for puts in flight
		q.puts.Lock()
		q.puts.Unlock()
	})
}

func (q *Queue[T]) Len() int { return len(q.ch) }

func (q *Queue[T]) Cap() int { return cap(q.ch) }
