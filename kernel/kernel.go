// Package kernel brings the core up on a machine: it builds the memory manager, the heap, the
// executor and the keyboard bridge in dependency order, installs the hardware interrupt handlers
// and hands control to the executor.
package kernel

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/boot"
	"github.com/kcore-dev/kcore/frame"
	"github.com/kcore-dev/kcore/hal"
	"github.com/kcore-dev/kcore/heap"
	"github.com/kcore-dev/kcore/internal/utils"
	"github.com/kcore-dev/kcore/paging"
	"github.com/kcore-dev/kcore/task"
	"github.com/kcore-dev/kcore/task/keyboard"
	"golang.org/x/exp/slog"
)

const (
	// PICOffset is where the primary interrupt controller's lines begin in the vector table
	PICOffset uint8 = 32

	TimerVector    = PICOffset
	KeyboardVector = PICOffset + 1
)

var ErrPhysicalMemoryOffset = errors.New("boot info and hardware disagree about the physical memory offset")

// Config contains optional settings for Boot. The zero value boots with defaults everywhere except
// Reporter, which is required.
type Config struct {
	// HeapAlgorithm selects the kernel heap's allocation algorithm
	HeapAlgorithm heap.Algorithm
	// ReadyQueueCapacity bounds the executor's ready queue. Defaults to task.DefaultQueueCapacity.
	ReadyQueueCapacity int
	// ScancodeQueueCapacity bounds the keyboard bridge's queue. Defaults to
	// keyboard.DefaultQueueCapacity.
	ScancodeQueueCapacity int
	// Reporter receives unrecoverable conditions: heap allocation failures and a full ready queue
	Reporter Reporter
}

// Kernel is a booted kernel core
type Kernel struct {
	logger   *slog.Logger
	machine  hal.Machine
	reporter Reporter

	mapper   *paging.OffsetPageTable
	frames   *frame.BootInfoAllocator
	heap     *heap.Allocator
	executor *task.Executor
	bridge   *keyboard.Bridge

	ticks atomic.Uint64
}

// Boot initializes the kernel core on machine using the memory map the bootloader provided. It
// must be called once, with interrupts disabled, and returns with interrupts enabled and the
// keyboard and timer handlers installed.
func Boot(ctx context.Context, logger *slog.Logger, machine hal.Machine, info boot.Info, config Config) (*Kernel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Reporter == nil {
		return nil, errors.New("boot requires a reporter")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if info.PhysicalMemoryOffset != machine.Memory.Offset() {
		return nil, errors.Wrapf(ErrPhysicalMemoryOffset, "boot info maps physical memory at %s, hardware at %s",
			info.PhysicalMemoryOffset, machine.Memory.Offset())
	}
	if err := info.MemoryMap.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid memory map")
	}

	k := &Kernel{
		logger:   logger,
		machine:  machine,
		reporter: config.Reporter,
	}

	var err error
	k.mapper, err = paging.Init(machine.CPU, machine.Memory)
	if err != nil {
		return nil, errors.Wrap(err, "failed to locate the active page table")
	}

	k.frames = frame.NewBootInfoAllocator(logger, info.MemoryMap)

	k.heap = heap.New(logger, machine.CPU, heap.CreateOptions{Algorithm: config.HeapAlgorithm})
	err = heap.InitHeap(k.mapper, k.frames, k.heap)
	if err != nil {
		return nil, errors.Wrap(err, "heap initialization failed")
	}
	k.heap.SetErrorHandler(func(layout heap.Layout, err error) {
		k.reporter.Fatal(errors.Wrapf(err, "allocation error: %s", layout))
	})

	k.executor, err = task.NewExecutor(logger, machine.CPU, k.heap, k.reporter, task.ExecutorOptions{
		QueueCapacity: config.ReadyQueueCapacity,
	})
	if err != nil {
		return nil, err
	}

	scancodeCapacity := config.ScancodeQueueCapacity
	if scancodeCapacity == 0 {
		scancodeCapacity = keyboard.DefaultQueueCapacity
	}
	k.bridge = keyboard.NewBridge(logger, scancodeCapacity)

	// Both lines go live together
	utils.WithoutInterrupts(machine.CPU, func() {
		machine.Interrupts.SetHandler(TimerVector, k.timerInterrupt)
		machine.Interrupts.SetHandler(KeyboardVector, k.keyboardInterrupt)
	})

	logger.LogAttrs(ctx, slog.LevelInfo, "kernel core initialized",
		slog.String("HeapStart", heap.HeapStart.String()),
		slog.Uint64("HeapSize", heap.HeapSize),
		slog.Int("FramesAllocated", k.frames.Allocated()),
		slog.Int("FramesRemaining", k.frames.Remaining()),
		slog.String("HeapAlgorithm", config.HeapAlgorithm.String()),
	)

	machine.CPU.EnableInterrupts()
	return k, nil
}

func (k *Kernel) timerInterrupt(vector uint8) {
	k.ticks.Add(1)
	k.machine.Controller.NotifyEndOfInterrupt(vector)
}

func (k *Kernel) keyboardInterrupt(vector uint8) {
	scancode := k.machine.KeyboardData.Read()
	k.bridge.PushEvent(scancode)
	k.machine.Controller.NotifyEndOfInterrupt(vector)
}

// Spawn schedules future as a new task
func (k *Kernel) Spawn(future task.Future) (task.TaskID, error) {
	t := task.New(future)
	if err := k.executor.Spawn(t); err != nil {
		return t.ID(), err
	}
	return t.ID(), nil
}

// SpawnKeyboardEcho claims the keyboard's scancode stream and spawns a task that writes every
// decoded keypress to out. It can only succeed once per kernel.
func (k *Kernel) SpawnKeyboardEcho(out io.Writer) (task.TaskID, error) {
	stream, err := k.bridge.NewScancodeStream()
	if err != nil {
		return 0, err
	}

	return k.Spawn(keyboard.PrintKeypresses(k.logger, stream, out))
}

// Run polls tasks forever, halting the CPU whenever nothing is ready
func (k *Kernel) Run() {
	k.executor.Run()
}

// RunContext polls tasks until ctx is done. A halted CPU notices cancellation at the next
// interrupt.
func (k *Kernel) RunContext(ctx context.Context) error {
	return k.executor.RunContext(ctx)
}

// Ticks returns the number of timer interrupts handled since boot
func (k *Kernel) Ticks() uint64 { return k.ticks.Load() }

func (k *Kernel) Heap() *heap.Allocator            { return k.heap }
func (k *Kernel) Executor() *task.Executor         { return k.executor }
func (k *Kernel) Bridge() *keyboard.Bridge         { return k.bridge }
func (k *Kernel) Frames() *frame.BootInfoAllocator { return k.frames }
func (k *Kernel) Mapper() *paging.OffsetPageTable  { return k.mapper }
func (k *Kernel) Reporter() Reporter               { return k.reporter }

