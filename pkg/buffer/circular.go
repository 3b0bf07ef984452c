package buffer

import (
	"context"
	"sync"

	"github.com/c360/trajstream/errors"
)

// CircularBuffer is a bounded FIFO queue safe for concurrent producers and
// consumers.
type CircularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

// NewCircularBuffer creates a buffer with the given capacity.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (*CircularBuffer[T], error) {
	opts := applyOptions(options...)
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewCircularBuffer", "metrics registration")
		}
	}

	cb := &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// Write adds an item according to the overflow policy. Under Block it waits
// for space until ctx is done or the buffer is closed.
func (cb *CircularBuffer[T]) Write(ctx context.Context, item T) error {
	var dropped *T

	cb.mu.Lock()
	err := cb.writeLocked(ctx, item, &dropped)
	cb.mu.Unlock()

	if dropped != nil && cb.opts.dropCallback != nil {
		cb.opts.dropCallback(*dropped)
	}
	return err
}

func (cb *CircularBuffer[T]) writeLocked(ctx context.Context, item T, dropped **T) error {
	if cb.closed {
		return errors.WrapInvalid(ErrClosed, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			old := cb.items[cb.tail]
			var zero T
			cb.items[cb.tail] = zero
			cb.tail = (cb.tail + 1) % cb.capacity
			cb.size--
			cb.recordDrop()
			*dropped = &old

		case DropNewest:
			cb.recordDrop()
			*dropped = &item
			return nil

		case Block:
			stop := context.AfterFunc(ctx, func() {
				cb.mu.Lock()
				cb.notFull.Broadcast()
				cb.mu.Unlock()
			})
			defer stop()

			for cb.size == cb.capacity && !cb.closed && ctx.Err() == nil {
				cb.notFull.Wait()
			}
			if cb.closed {
				return errors.WrapInvalid(ErrClosed, "Buffer", "Write", "buffer closed during blocking wait")
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	cb.notEmpty.Signal()
	return nil
}

func (cb *CircularBuffer[T]) recordDrop() {
	cb.stats.Overflow()
	cb.stats.Drop()
	if cb.metrics != nil {
		cb.metrics.recordDrop()
	}
}

// Read removes the oldest item without waiting.
func (cb *CircularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		var zero T
		return zero, false
	}
	return cb.popLocked(), true
}

// ReadContext removes the oldest item, waiting for one to arrive. Items
// still queued are returned after Close; once drained it returns ErrClosed.
func (cb *CircularBuffer[T]) ReadContext(ctx context.Context) (T, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if cb.size == 0 && !cb.closed {
		stop := context.AfterFunc(ctx, func() {
			cb.mu.Lock()
			cb.notEmpty.Broadcast()
			cb.mu.Unlock()
		})
		defer stop()

		for cb.size == 0 && !cb.closed && ctx.Err() == nil {
			cb.notEmpty.Wait()
		}
	}

	if cb.size > 0 {
		return cb.popLocked(), nil
	}
	if cb.closed {
		return zero, ErrClosed
	}
	return zero, ctx.Err()
}

// ReadBatch removes up to max items without waiting.
func (cb *CircularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := min(max, cb.size)
	if n == 0 {
		return nil
	}
	result := make([]T, n)
	for i := range result {
		result[i] = cb.popLocked()
	}
	return result
}

func (cb *CircularBuffer[T]) popLocked() T {
	var zero T
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}

	cb.notFull.Signal()
	return item
}

// Size returns the current number of items.
func (cb *CircularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

// Capacity returns the maximum number of items.
func (cb *CircularBuffer[T]) Capacity() int {
	return cb.capacity
}

// Clear removes all items, passing each to the drop callback.
func (cb *CircularBuffer[T]) Clear() {
	cb.mu.Lock()
	drained := make([]T, 0, cb.size)
	for cb.size > 0 {
		drained = append(drained, cb.popLocked())
	}
	cb.head, cb.tail = 0, 0
	cb.notFull.Broadcast()
	cb.mu.Unlock()

	if cb.opts.dropCallback != nil {
		for _, item := range drained {
			cb.opts.dropCallback(item)
		}
	}
}

// Stats returns buffer statistics.
func (cb *CircularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close stops the buffer. Blocked writers fail; blocked readers drain what
// is left and then fail.
func (cb *CircularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()
	return nil
}
