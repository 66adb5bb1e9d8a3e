// Package feed provides an unbounded many-producer, single-consumer queue.
// Publish never blocks; the consumer is responsible for draining.
package feed

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Next once the feed is closed and drained.
var ErrClosed = errors.New("feed closed")

// Feed buffers published values until the consumer takes them.
type Feed[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	ready  chan struct{}
	done   chan struct{}
}

// New creates an empty feed.
func New[T any]() *Feed[T] {
	return &Feed[T]{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Publish appends v. Values published after Close are dropped.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.items = append(f.items, v)
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

// TryNext pops the oldest value without blocking.
func (f *Feed[T]) TryNext() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if len(f.items) == 0 {
		return zero, false
	}
	v := f.items[0]
	f.items[0] = zero
	f.items = f.items[1:]
	return v, true
}

// Next blocks until a value is available, the context ends, or the feed is
// closed and empty.
func (f *Feed[T]) Next(ctx context.Context) (T, error) {
	for {
		if v, ok := f.TryNext(); ok {
			return v, nil
		}
		var zero T
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-f.done:
			if v, ok := f.TryNext(); ok {
				return v, nil
			}
			return zero, ErrClosed
		case <-f.ready:
		}
	}
}

// Ready is signalled after a publish. A signal may be stale; callers must
// re-check with TryNext.
func (f *Feed[T]) Ready() <-chan struct{} {
	return f.ready
}

// Done is closed when the feed is closed.
func (f *Feed[T]) Done() <-chan struct{} {
	return f.done
}

// Drain removes and returns every buffered value.
func (f *Feed[T]) Drain() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.items
	f.items = nil
	return out
}

// Len reports the number of buffered values.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Close stops accepting values and wakes any blocked consumer.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
}
