// Package keyboard carries scancodes from the keyboard interrupt handler to a task. The interrupt
// side pushes into a lock-free queue and wakes whichever task is waiting; the task side is a stream
// that drains the queue.
package keyboard

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/ring"
	"github.com/kcore-dev/kcore/task"
	"golang.org/x/exp/slog"
)

// DefaultQueueCapacity is the number of scancodes a bridge buffers when NewBridge is given zero
const DefaultQueueCapacity = 100

var ErrStreamAlreadyCreated = errors.New("a scancode stream has already been created for this bridge")

// WakeSlot holds at most one waker. Every operation is a single atomic step, so it can be shared
// between an interrupt handler and the task it wakes.
type WakeSlot struct {
	waker atomic.Pointer[task.Waker]
}

// Register stores waker, replacing any waker already in the slot
func (s *WakeSlot) Register(waker task.Waker) {
	s.waker.Store(&waker)
}

// Take empties the slot and returns what it held, or nil
func (s *WakeSlot) Take() task.Waker {
	waker := s.waker.Swap(nil)
	if waker == nil {
		return nil
	}
	return *waker
}

// Wake takes the waker out of the slot and wakes it. A waker is woken at most once per Register.
func (s *WakeSlot) Wake() {
	if waker := s.Take(); waker != nil {
		waker.Wake()
	}
}

// Bridge connects the keyboard interrupt handler to the task reading scancodes. The queue behind it
// is created by the first and only call to NewScancodeStream; until then, pushed scancodes are
// discarded.
type Bridge struct {
	logger   *slog.Logger
	capacity int

	queue atomic.Pointer[ring.Queue[uint8]]
	slot  WakeSlot

	created       atomic.Bool
	dropped       atomic.Uint64
	uninitialized atomic.Uint64
}

func NewBridge(logger *slog.Logger, capacity int) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity == 0 {
		capacity = DefaultQueueCapacity
	}

	return &Bridge{
		logger:   logger,
		capacity: capacity,
	}
}

// PushEvent is called by the keyboard interrupt handler with each scancode read from the
// controller. It never blocks and never allocates. When the queue is full the scancode is dropped
// with a warning.
func (b *Bridge) PushEvent(scancode uint8) {
	queue := b.queue.Load()
	if queue == nil {
		b.uninitialized.Add(1)
		b.logger.LogAttrs(context.Background(), slog.LevelWarn, "scancode queue uninitialized", slog.Int("scancode", int(scancode)))
		return
	}

	if !queue.Push(scancode) {
		b.dropped.Add(1)
		b.logger.LogAttrs(context.Background(), slog.LevelWarn, "scancode queue full; dropping keyboard input", slog.Int("scancode", int(scancode)))
		return
	}

	b.slot.Wake()
}

// Dropped returns the number of scancodes discarded because the queue was full
func (b *Bridge) Dropped() uint64 { return b.dropped.Load() }

// Uninitialized returns the number of scancodes discarded because no stream existed yet
func (b *Bridge) Uninitialized() uint64 { return b.uninitialized.Load() }

// NewScancodeStream creates the bridge's queue and returns the only stream that reads from it
func (b *Bridge) NewScancodeStream() (*ScancodeStream, error) {
	if !b.created.CompareAndSwap(false, true) {
		return nil, ErrStreamAlreadyCreated
	}

	queue, err := ring.New[uint8](b.capacity)
	if err != nil {
		b.created.Store(false)
		return nil, errors.Wrap(err, "failed to create the scancode queue")
	}
	b.queue.Store(queue)

	return &ScancodeStream{bridge: b, queue: queue}, nil
}

// ScancodeStream yields scancodes in the order the interrupt handler pushed them. It never ends.
type ScancodeStream struct {
	bridge *Bridge
	queue  *ring.Queue[uint8]
}

// PollNext returns the next scancode, or Pending after arranging for cx's waker to be woken
// when one arrives
func (s *ScancodeStream) PollNext(cx *task.Context) (uint8, task.Poll) {
	if scancode, ok := s.queue.Pop(); ok {
		return scancode, task.Ready
	}

	s.bridge.slot.Register(cx.Waker())

	// A scancode pushed between the first pop and the registration would not have found a waker
	// to wake, so look again
	if scancode, ok := s.queue.Pop(); ok {
		s.bridge.slot.Take()
		return scancode, task.Ready
	}

	return 0, task.Pending
}
