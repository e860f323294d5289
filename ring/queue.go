// queue.go
//
// Lock-free bounded multi-producer queue. Producers may run in interrupt
// context, so Push never blocks, never allocates and never spins on a slot
// another producer has claimed. Every slot carries a sequence number; a
// producer claims a position with one CAS on the tail and publishes the
// value by advancing the slot's sequence.

package ring

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

type cell[T any] struct {
	seq   atomic.Uint64
	value T
}

// Queue is a fixed-capacity FIFO. Any number of goroutines may Push
// concurrently; any number may Pop, though the kernel only ever has one
// consumer.
type Queue[T any] struct {
	_    [64]byte
	tail atomic.Uint64
	//lint:ignore U1000 padding to keep head & tail on different cache-lines
	_pad1 [64]byte
	head  atomic.Uint64
	//lint:ignore U1000 padding to keep hot fields from colliding with metadata
	_pad2    [64]byte
	capacity uint64
	cells    []cell[T]
}

// New creates a queue holding at most capacity values. Unlike a masked
// ring, the capacity need not be a power of two.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, errors.Newf("queue capacity must be positive, got %d", capacity)
	}

	// With a single cell, a published slot and a reclaimed slot carry the
	// same sequence number, so the ring always has at least two cells and
	// Push enforces the requested capacity against head.
	cells := max(capacity, 2)
	q := &Queue[T]{
		capacity: uint64(capacity),
		cells:    make([]cell[T], cells),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q, nil
}

func (q *Queue[T]) cell(position uint64) *cell[T] {
	return &q.cells[position%uint64(len(q.cells))]
}

// Push enqueues value, returning false if the queue is full.
func (q *Queue[T]) Push(value T) bool {
	for {
		pos := q.tail.Load()
		c := q.cell(pos)
		seq := c.seq.Load()

		switch {
		case seq == pos:
			head := q.head.Load()
			if head > pos {
				continue // pos is stale
			}
			if pos-head >= q.capacity {
				return false
			}
			if !q.tail.CompareAndSwap(pos, pos+1) {
				continue // another producer claimed pos
			}
			c.value = value
			c.seq.Store(pos + 1)
			return true
		case seq < pos:
			return false // consumer has not yet reclaimed the slot
		}
		// tail moved under us; reload
	}
}

// Pop dequeues the oldest value. The boolean is false if the queue is empty.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	for {
		pos := q.head.Load()
		c := q.cell(pos)
		seq := c.seq.Load()

		switch {
		case seq == pos+1:
			if !q.head.CompareAndSwap(pos, pos+1) {
				continue
			}
			value := c.value
			c.value = zero
			c.seq.Store(pos + uint64(len(q.cells)))
			return value, true
		case seq < pos+1:
			return zero, false // producer has not yet published to the slot
		}
	}
}

// Len is a snapshot of the number of queued values
func (q *Queue[T]) Len() int {
	head := q.head.Load()
	tail := q.tail.Load()
	if tail <= head {
		return 0
	}
	return int(tail - head)
}

func (q *Queue[T]) Cap() int {
	return int(q.capacity)
}

// IsEmpty reports whether a Pop issued now would find nothing
func (q *Queue[T]) IsEmpty() bool {
	pos := q.head.Load()
	return q.cell(pos).seq.Load() != pos+1
}
