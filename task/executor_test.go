package task_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	mock_hal "github.com/kcore-dev/kcore/hal/mocks"
	"github.com/kcore-dev/kcore/hal/sim"
	"github.com/kcore-dev/kcore/heap"
	"github.com/kcore-dev/kcore/memutils"
	"github.com/kcore-dev/kcore/task"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

type recordingReporter struct {
	lock   sync.Mutex
	errors []error
}

func (r *recordingReporter) Fatal(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.errors = append(r.errors, err)
}

func newExecutor(t *testing.T, cpu *sim.CPU, reporter task.Reporter, capacity int) *task.Executor {
	executor, err := task.NewExecutor(slog.Default(), cpu, nil, reporter, task.ExecutorOptions{QueueCapacity: capacity})
	require.NoError(t, err)
	return executor
}

func TestTaskCompletesAfterOnePoll(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	executor := newExecutor(t, cpu, &recordingReporter{}, 0)

	polls := 0
	require.NoError(t, executor.Spawn(task.New(task.FutureFunc(func(cx *task.Context) task.Poll {
		polls++
		return task.Ready
	}))))
	require.Equal(t, 1, executor.Len())
	require.Equal(t, 1, executor.Queued())

	executor.RunReady()

	require.Equal(t, 1, polls)
	require.Equal(t, 0, executor.Len())
	require.Equal(t, 0, executor.Queued())
}

func TestSpawnRejectsDuplicates(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	executor := newExecutor(t, cpu, &recordingReporter{}, 0)
	tsk := task.New(task.FutureFunc(func(cx *task.Context) task.Poll { return task.Pending }))

	require.NoError(t, executor.Spawn(tsk))
	require.True(t, errors.Is(executor.Spawn(tsk), task.ErrDuplicateTask))
	require.Equal(t, 1, executor.Len())
	require.Equal(t, 1, executor.Queued())
}

func TestRepeatedWakesQueueOnce(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	executor := newExecutor(t, cpu, &recordingReporter{}, 0)

	var waker task.Waker
	polls := 0
	require.NoError(t, executor.Spawn(task.New(task.FutureFunc(func(cx *task.Context) task.Poll {
		polls++
		waker = cx.Waker()
		if polls == 2 {
			return task.Ready
		}
		return task.Pending
	}))))

	executor.RunReady()
	require.Equal(t, 1, polls)
	require.Equal(t, 0, executor.Queued())

	waker.Wake()
	waker.Wake()
	waker.Wake()
	require.Equal(t, 1, executor.Queued())

	executor.RunReady()
	require.Equal(t, 2, polls)
	require.Equal(t, 0, executor.Len())

	// Waking a completed task leaves a stale entry behind, which is skipped
	waker.Wake()
	require.Equal(t, 1, executor.Queued())
	executor.RunReady()
	require.Equal(t, 2, polls)
	require.Equal(t, 0, executor.Queued())
}

func TestWakeDuringPollSchedulesAnotherPoll(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	executor := newExecutor(t, cpu, &recordingReporter{}, 0)

	polls := 0
	require.NoError(t, executor.Spawn(task.New(pendingFor(3, &polls))))

	executor.RunReady()
	require.Equal(t, 4, polls)
	require.Equal(t, 0, executor.Len())
}

func TestFullReadyQueue(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	reporter := &recordingReporter{}
	executor := newExecutor(t, cpu, reporter, 1)

	wakers := make([]task.Waker, 0, 2)
	pending := func(cx *task.Context) task.Poll {
		wakers = append(wakers, cx.Waker())
		return task.Pending
	}

	require.NoError(t, executor.Spawn(task.New(task.FutureFunc(pending))))
	err := executor.Spawn(task.New(task.FutureFunc(pending)))
	require.True(t, errors.Is(err, task.ErrReadyQueueFull))
	require.Equal(t, 1, executor.Len())

	executor.RunReady()
	require.NoError(t, executor.Spawn(task.New(task.FutureFunc(pending))))
	executor.RunReady()
	require.Len(t, wakers, 2)

	wakers[0].Wake()
	wakers[1].Wake()

	require.Len(t, reporter.errors, 1)
	require.True(t, errors.Is(reporter.errors[0], task.ErrReadyQueueFull))
}

func TestTasksHoldControlBlocks(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	allocator := heap.New(slog.Default(), cpu, heap.CreateOptions{})
	require.NoError(t, allocator.Init(heap.HeapStart, heap.HeapSize))

	executor, err := task.NewExecutor(slog.Default(), cpu, allocator, &recordingReporter{}, task.ExecutorOptions{})
	require.NoError(t, err)

	polls := 0
	require.NoError(t, executor.Spawn(task.New(pendingFor(1, &polls))))

	var stats memutils.Statistics
	allocator.Statistics(&stats)
	require.Equal(t, 1, stats.AllocationCount)

	executor.RunReady()

	allocator.Statistics(&stats)
	require.Equal(t, 0, stats.AllocationCount)
	require.NoError(t, allocator.Validate())
}

func TestExecutorHaltsWhenIdle(t *testing.T) {
	ctrl := gomock.NewController(t)
	cpu := mock_hal.NewMockCPU(ctrl)

	executor, err := task.NewExecutor(slog.Default(), cpu, nil, &recordingReporter{}, task.ExecutorOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	gomock.InOrder(
		cpu.EXPECT().DisableInterrupts(),
		cpu.EXPECT().EnableInterruptsAndHalt().Do(func() { cancel() }),
	)

	require.True(t, errors.Is(executor.RunContext(ctx), context.Canceled))
}

func TestExecutorDoesNotHaltWithWorkQueued(t *testing.T) {
	ctrl := gomock.NewController(t)
	cpu := mock_hal.NewMockCPU(ctrl)

	executor, err := task.NewExecutor(slog.Default(), cpu, nil, &recordingReporter{}, task.ExecutorOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	var waker task.Waker
	polls := 0
	require.NoError(t, executor.Spawn(task.New(task.FutureFunc(func(cx *task.Context) task.Poll {
		polls++
		waker = cx.Waker()
		return task.Pending
	}))))

	// An interrupt wakes the task after the ready queue was drained but before interrupts are
	// masked for the idle check
	gomock.InOrder(
		cpu.EXPECT().DisableInterrupts().Do(func() { waker.Wake() }),
		cpu.EXPECT().EnableInterrupts(),
		cpu.EXPECT().DisableInterrupts(),
		cpu.EXPECT().EnableInterruptsAndHalt().Do(func() { cancel() }),
	)

	require.True(t, errors.Is(executor.RunContext(ctx), context.Canceled))
	require.Equal(t, 2, polls)
}

func TestWakeRaceWithInterrupts(t *testing.T) {
	const rounds = 200
	const wakeVector = sim.KeyboardVector

	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	executor := newExecutor(t, cpu, &recordingReporter{}, 0)

	var slot atomic.Pointer[task.Waker]
	cpu.SetHandler(wakeVector, func(vector uint8) {
		if waker := slot.Swap(nil); waker != nil {
			(*waker).Wake()
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	completed := 0
	require.NoError(t, executor.Spawn(task.New(task.Async(func(aw *task.Await) {
		for i := 0; i < rounds; i++ {
			fired := false
			aw.Wait(task.FutureFunc(func(cx *task.Context) task.Poll {
				if fired {
					return task.Ready
				}
				fired = true

				waker := cx.Waker()
				slot.Store(&waker)

				// The interrupt may land before this poll returns Pending, before the executor
				// checks its queue, or while it is halted
				go cpu.Raise(wakeVector)
				return task.Pending
			}))
			completed++
		}
		cancel()
	}))))

	cpu.EnableInterrupts()
	err := executor.RunContext(ctx)
	require.True(t, errors.Is(err, context.Canceled), "executor stopped with %v after %d rounds", err, completed)
	require.Equal(t, rounds, completed)
	require.Equal(t, 0, executor.Len())
}

func TestSpawnWithExhaustedMemory(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	reporter := &recordingReporter{}
	allocator := heap.New(slog.Default(), cpu, heap.CreateOptions{})
	require.NoError(t, allocator.Init(heap.HeapStart, heap.HeapSize))
	allocator.SetErrorHandler(func(layout heap.Layout, err error) {
		reporter.Fatal(err)
	})

	drainHeap(allocator)

	executor, err := task.NewExecutor(slog.Default(), cpu, allocator, reporter, task.ExecutorOptions{})
	require.NoError(t, err)

	polls := 0
	err = executor.Spawn(task.New(pendingFor(0, &polls)))
	require.True(t, errors.Is(err, task.ErrNoControlBlock))
	require.Equal(t, 0, executor.Len())
	require.Equal(t, 0, executor.Queued())

	require.Len(t, reporter.errors, 1)
	require.True(t, errors.Is(reporter.errors[0], heap.ErrOutOfMemory))
}

func drainHeap(allocator *heap.Allocator) {
	for _, size := range []uint64{64, 1} {
		for {
			if _, err := allocator.Alloc(size, 1); err != nil {
				break
			}
		}
	}
}

func TestExecutorWithoutLogger(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	executor, err := task.NewExecutor(nil, cpu, nil, &recordingReporter{}, task.ExecutorOptions{})
	require.NoError(t, err)

	polls := 0
	require.NoError(t, executor.Spawn(task.New(pendingFor(1, &polls))))
	executor.RunReady()
	require.Equal(t, 2, polls)
	require.Equal(t, 0, executor.Len())
}
