// Package ring provides a fixed-capacity FIFO queue safe for concurrent
// producers and consumers.
package ring

import (
	"context"
	"strconv"
	"sync"

	"github.com/coachpo/hookbus/errs"
)

// Queue is a bounded ring buffer. Capacity is fixed at construction; Resize
// re-buffers retained entries and is intended for quiesced queues only.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []T
	head     int
	count    int
}

// New creates a queue holding at most capacity entries.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, errs.New("ring", errs.CodeInvalidCapacity,
			errs.WithMessage("capacity must be positive"),
			errs.WithField("capacity", strconv.Itoa(capacity)))
	}
	q := &Queue[T]{buf: make([]T, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q, nil
}

// TryPut appends v without blocking. A full queue returns CodeQueueFull and
// leaves the queue untouched.
func (q *Queue[T]) TryPut(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.buf) {
		return errs.New("ring", errs.CodeQueueFull,
			errs.WithField("capacity", strconv.Itoa(len(q.buf))))
	}
	q.putLocked(v)
	return nil
}

// Put appends v, waiting for space. The wait ends only when a slot frees or
// ctx is done; there is no internal timeout.
func (q *Queue[T]) Put(ctx context.Context, v T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == len(q.buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	q.putLocked(v)
	return nil
}

// TryGet removes the oldest entry without blocking. An empty queue returns
// CodeQueueEmpty.
func (q *Queue[T]) TryGet() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		var zero T
		return zero, errs.New("ring", errs.CodeQueueEmpty)
	}
	return q.getLocked(), nil
}

// Get removes the oldest entry, waiting for one to arrive. The wait ends only
// when an entry is put or ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count == 0 {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
	return q.getLocked(), nil
}

// Len returns the current occupancy.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Resize re-buffers retained entries into a buffer of the new capacity,
// preserving order. It fails with CodeQueueFull when the retained entries do
// not fit, leaving the queue unchanged.
func (q *Queue[T]) Resize(capacity int) error {
	if capacity <= 0 {
		return errs.New("ring", errs.CodeInvalidCapacity,
			errs.WithMessage("capacity must be positive"),
			errs.WithField("capacity", strconv.Itoa(capacity)))
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count > capacity {
		return errs.New("ring", errs.CodeQueueFull,
			errs.WithMessage("retained entries exceed new capacity"),
			errs.WithField("retained", strconv.Itoa(q.count)),
			errs.WithField("capacity", strconv.Itoa(capacity)))
	}
	buf := make([]T, capacity)
	for i := 0; i < q.count; i++ {
		buf[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = buf
	q.head = 0
	q.notFull.Broadcast()
	return nil
}

// putLocked inserts at (head+count) mod capacity and wakes one blocked getter.
func (q *Queue[T]) putLocked(v T) {
	q.buf[(q.head+q.count)%len(q.buf)] = v
	q.count++
	q.notEmpty.Signal()
}

// getLocked removes from head, clears the vacated slot so the queue does not
// pin references, and wakes one blocked putter.
func (q *Queue[T]) getLocked() T {
	var zero T
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	return v
}

