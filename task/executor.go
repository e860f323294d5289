package task

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/hal"
	"github.com/kcore-dev/kcore/ring"
	"golang.org/x/exp/slog"
)

const (
	// DefaultQueueCapacity is the size of the ready queue when ExecutorOptions leaves it unset
	DefaultQueueCapacity = 100

	// Every live task holds a control block of this size in the kernel heap
	controlBlockSize  uint64 = 64
	controlBlockAlign uint64 = 16
)

var (
	ErrDuplicateTask  = errors.New("a task with the same id has already been spawned")
	ErrReadyQueueFull = errors.New("the executor's ready queue is full")
	ErrNoControlBlock = errors.New("no memory for the task's control block")
)

// Reporter receives conditions the kernel cannot recover from. Fatal is not expected to return.
type Reporter interface {
	Fatal(err error)
}

// TaskMemory is where the executor reserves task control blocks. MustAlloc reports exhaustion as
// a fatal condition itself; if that report returns, MustAlloc returns the zero address.
type TaskMemory interface {
	MustAlloc(size, align uint64) addr.VirtAddr
	Dealloc(ptr addr.VirtAddr, size, align uint64) error
}

// ExecutorOptions contains optional settings when creating an executor
type ExecutorOptions struct {
	// QueueCapacity bounds the number of task ids waiting to be polled. Defaults to
	// DefaultQueueCapacity.
	QueueCapacity int
}

// taskWaker pushes its task's id onto the ready queue. The queued flag keeps a task from occupying
// more than one queue slot: it is set by the push and cleared right before the task is polled, so a
// wake that arrives during the poll still schedules another one.
type taskWaker struct {
	id       TaskID
	queue    *ring.Queue[TaskID]
	reporter Reporter
	queued   atomic.Bool
}

func (w *taskWaker) Wake() {
	if !w.queued.CompareAndSwap(false, true) {
		return
	}

	if !w.queue.Push(w.id) {
		w.queued.Store(false)
		w.reporter.Fatal(errors.Wrapf(ErrReadyQueueFull, "failed to wake %s", w.id))
	}
}

type taskEntry struct {
	task  *Task
	waker *taskWaker
	block addr.VirtAddr
}

// Executor polls tasks when they are woken and halts the CPU when none are ready.
//
// Spawn, RunReady, Run and RunContext must all be called from the kernel's foreground. Wakers may
// be called from anywhere, including interrupt handlers.
type Executor struct {
	logger   *slog.Logger
	cpu      hal.CPU
	memory   TaskMemory
	reporter Reporter

	tasks *swiss.Map[TaskID, *taskEntry]
	queue *ring.Queue[TaskID]
}

// NewExecutor creates an executor. memory may be nil, in which case tasks hold no control block.
func NewExecutor(logger *slog.Logger, cpu hal.CPU, memory TaskMemory, reporter Reporter, options ExecutorOptions) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	capacity := options.QueueCapacity
	if capacity == 0 {
		capacity = DefaultQueueCapacity
	}

	queue, err := ring.New[TaskID](capacity)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create the ready queue")
	}

	return &Executor{
		logger:   logger,
		cpu:      cpu,
		memory:   memory,
		reporter: reporter,
		tasks:    swiss.NewMap[TaskID, *taskEntry](uint32(capacity)),
		queue:    queue,
	}, nil
}

// Spawn registers task and schedules its first poll
func (e *Executor) Spawn(task *Task) error {
	if e.tasks.Has(task.ID()) {
		return errors.Wrapf(ErrDuplicateTask, "failed to spawn %s", task.ID())
	}

	entry := &taskEntry{
		task: task,
		waker: &taskWaker{
			id:       task.ID(),
			queue:    e.queue,
			reporter: e.reporter,
		},
	}

	if e.memory != nil {
		block := e.memory.MustAlloc(controlBlockSize, controlBlockAlign)
		if block == 0 {
			return errors.Wrapf(ErrNoControlBlock, "failed to spawn %s", task.ID())
		}
		entry.block = block
	}

	entry.waker.queued.Store(true)
	if !e.queue.Push(task.ID()) {
		e.release(entry)
		return errors.Wrapf(ErrReadyQueueFull, "failed to spawn %s", task.ID())
	}

	e.tasks.Put(task.ID(), entry)
	e.logger.Debug("Executor::Spawn", slog.Uint64("TaskID", uint64(task.ID())))
	return nil
}

func (e *Executor) release(entry *taskEntry) {
	if e.memory == nil {
		return
	}

	err := e.memory.Dealloc(entry.block, controlBlockSize, controlBlockAlign)
	if err != nil {
		e.reporter.Fatal(errors.Wrapf(err, "failed to release the control block of %s", entry.task.ID()))
	}
}

// RunReady polls every task that is in the ready queue when it is called, along with any task
// woken while it runs. Completed tasks are removed.
func (e *Executor) RunReady() {
	for {
		id, ok := e.queue.Pop()
		if !ok {
			return
		}

		// The task may have completed after being woken
		entry, ok := e.tasks.Get(id)
		if !ok {
			continue
		}

		entry.waker.queued.Store(false)
		if entry.task.Poll(NewContext(entry.waker)) == Ready {
			e.tasks.Delete(id)
			e.release(entry)
			e.logger.Debug("Executor::RunReady task complete", slog.Uint64("TaskID", uint64(id)))
		}
	}
}

// sleepIfIdle halts the CPU until the next interrupt if no task is ready. Interrupts are disabled
// while the queue is checked, so a wake from an interrupt handler cannot slip in between the check
// and the halt.
func (e *Executor) sleepIfIdle() {
	e.cpu.DisableInterrupts()
	if e.queue.IsEmpty() {
		e.cpu.EnableInterruptsAndHalt()
	} else {
		e.cpu.EnableInterrupts()
	}
}

// Run polls tasks forever
func (e *Executor) Run() {
	for {
		e.RunReady()
		e.sleepIfIdle()
	}
}

// RunContext polls tasks until ctx is done. Cancellation is noticed after every wakeup, so a
// halted CPU only returns once the next interrupt arrives.
func (e *Executor) RunContext(ctx context.Context) error {
	for {
		e.RunReady()
		if err := ctx.Err(); err != nil {
			return err
		}

		e.sleepIfIdle()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Len returns the number of tasks that have been spawned and have not completed
func (e *Executor) Len() int { return e.tasks.Count() }

// Queued returns the number of entries in the ready queue, including entries for tasks that
// completed after being woken
func (e *Executor) Queued() int { return e.queue.Len() }
