package heap_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/boot"
	"github.com/kcore-dev/kcore/frame"
	"github.com/kcore-dev/kcore/hal/sim"
	"github.com/kcore-dev/kcore/heap"
	"github.com/kcore-dev/kcore/paging"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func newMachine(t *testing.T) *sim.Machine {
	machine, err := sim.NewMachine(sim.MachineOptions{MemorySize: 2 * 1024 * 1024})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, machine.Close())
	})
	return machine
}

func TestHeapPages(t *testing.T) {
	pages := heap.HeapPages()
	require.Equal(t, 25, pages.Len())
	require.Equal(t, heap.HeapStart, pages.First.Start())
	require.Equal(t, heap.HeapStart.Add(24*addr.PageSize), pages.Last.Start())
}

func TestInitHeapMapsEveryAddress(t *testing.T) {
	machine := newMachine(t)

	mapper, err := paging.Init(machine.CPU, machine.RAM)
	require.NoError(t, err)
	frames := frame.NewBootInfoAllocator(slog.Default(), machine.BootInfo().MemoryMap)
	allocator := heap.New(slog.Default(), machine.CPU, heap.CreateOptions{})

	require.NoError(t, heap.InitHeap(mapper, frames, allocator))
	require.True(t, allocator.Initialized())

	// 25 heap frames plus one table each for levels 3, 2 and 1
	require.Equal(t, 28, frames.Allocated())

	for virt := heap.HeapStart; virt < heap.HeapStart.Add(heap.HeapSize); virt++ {
		phys, ok := mapper.Translate(virt)
		require.True(t, ok, "%s is not mapped", virt)
		require.Equal(t, virt.PageOffset(), uint64(phys)%addr.PageSize)
	}

	_, ok := mapper.Translate(heap.HeapStart.Add(heap.HeapSize))
	require.False(t, ok)

	// Every heap page is backed by a distinct frame
	seen := make(map[addr.Frame]bool)
	for page := range heap.HeapPages().All() {
		backing, ok := mapper.TranslatePage(page)
		require.True(t, ok)
		require.False(t, seen[backing])
		seen[backing] = true
	}

	require.Len(t, machine.CPU.Invalidations(), 25)

	err = heap.InitHeap(mapper, frames, allocator)
	require.True(t, errors.Is(err, heap.ErrHeapAlreadyInitialized))
}

func TestInitHeapStopsWhenFramesRunOut(t *testing.T) {
	machine := newMachine(t)

	mapper, err := paging.Init(machine.CPU, machine.RAM)
	require.NoError(t, err)

	// Three table frames and four heap frames
	frames := frame.NewBootInfoAllocator(nil, boot.MemoryMap{
		{Start: 0x10_0000, End: 0x10_7000, Kind: boot.Usable},
	})
	allocator := heap.New(slog.Default(), machine.CPU, heap.CreateOptions{})

	err = heap.InitHeap(mapper, frames, allocator)
	require.True(t, errors.Is(err, heap.ErrFrameAllocationFailed))
	require.False(t, allocator.Initialized())

	_, err = allocator.Alloc(8, 8)
	require.True(t, errors.Is(err, heap.ErrNotInitialized))
}

func TestInitHeapWithoutFramesForTables(t *testing.T) {
	machine := newMachine(t)

	mapper, err := paging.Init(machine.CPU, machine.RAM)
	require.NoError(t, err)

	// The first heap frame is available but nothing is left for the level 3 table
	frames := frame.NewBootInfoAllocator(nil, boot.MemoryMap{
		{Start: 0x10_0000, End: 0x10_1000, Kind: boot.Usable},
	})
	allocator := heap.New(slog.Default(), machine.CPU, heap.CreateOptions{})

	err = heap.InitHeap(mapper, frames, allocator)
	require.True(t, errors.Is(err, heap.ErrFrameAllocationFailed))
	require.True(t, errors.Is(err, paging.ErrFrameAllocationFailed))
	require.False(t, allocator.Initialized())
}
