package paging_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/boot"
	"github.com/kcore-dev/kcore/frame"
	mock_hal "github.com/kcore-dev/kcore/hal/mocks"
	"github.com/kcore-dev/kcore/hal/sim"
	"github.com/kcore-dev/kcore/paging"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const level4Address addr.PhysAddr = 0x1000

func setupMapper(t *testing.T, ctrl *gomock.Controller) (*paging.OffsetPageTable, *mock_hal.MockCPU, *sim.RAM, *frame.BootInfoAllocator) {
	ram, err := sim.NewRAM(1024*1024, sim.DefaultPhysicalMemoryOffset)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, ram.Close())
	})

	cpu := mock_hal.NewMockCPU(ctrl)
	cpu.EXPECT().ReadPageTableBase().Return(addr.FrameContaining(level4Address))

	mapper, err := paging.Init(cpu, ram)
	require.NoError(t, err)
	require.Equal(t, addr.FrameContaining(level4Address), mapper.Level4().Frame())

	frames := frame.NewBootInfoAllocator(nil, boot.MemoryMap{
		{Start: 0, End: 0x10000, Kind: boot.Reserved},
		{Start: 0x10000, End: 0x100000, Kind: boot.Usable},
	})

	return mapper, cpu, ram, frames
}

func TestMapAndTranslate(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, cpu, _, frames := setupMapper(t, ctrl)

	page := addr.PageContaining(0x4444_4444_0000)
	target := addr.FrameContaining(0xb8000)

	_, ok := mapper.Translate(page.Start())
	require.False(t, ok)

	cpu.EXPECT().InvalidatePage(page.Start())
	require.NoError(t, mapper.Map(page, target, paging.Present|paging.Writable, frames))

	// Levels 3, 2 and 1 had to be created
	require.Equal(t, 3, frames.Allocated())

	phys, ok := mapper.Translate(addr.MustVirtAddr(0x4444_4444_0123))
	require.True(t, ok)
	require.Equal(t, addr.PhysAddr(0xb8123), phys)

	mapped, ok := mapper.TranslatePage(page)
	require.True(t, ok)
	require.Equal(t, target, mapped)

	entry := mapper.Level4().Entry(page.Start().P4Index())
	require.True(t, entry.HasFlags(paging.Present|paging.Writable))
	require.False(t, entry.HasFlags(paging.UserAccessible))

	// The neighboring page shares every table but is not mapped
	_, ok = mapper.Translate(page.Next().Start())
	require.False(t, ok)

	cpu.EXPECT().InvalidatePage(page.Next().Start())
	require.NoError(t, mapper.Map(page.Next(), target.Next(), paging.Present, frames))
	require.Equal(t, 3, frames.Allocated())
}

func TestMapRefusesMappedPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, cpu, _, frames := setupMapper(t, ctrl)

	page := addr.PageContaining(0x4444_4444_0000)
	cpu.EXPECT().InvalidatePage(page.Start())
	require.NoError(t, mapper.Map(page, addr.FrameContaining(0xb8000), paging.Present|paging.Writable, frames))

	err := mapper.Map(page, addr.FrameContaining(0xb9000), paging.Present|paging.Writable, frames)
	require.True(t, errors.Is(err, paging.ErrPageAlreadyMapped))

	phys, ok := mapper.Translate(page.Start())
	require.True(t, ok)
	require.Equal(t, addr.PhysAddr(0xb8000), phys)
}

func TestMapFailsWithoutFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, _, _, _ := setupMapper(t, ctrl)

	err := mapper.Map(addr.PageContaining(0x4444_4444_0000), addr.FrameContaining(0xb8000), paging.Present, frame.EmptyAllocator{})
	require.True(t, errors.Is(err, paging.ErrFrameAllocationFailed))
	require.True(t, mapper.Level4().Entry(addr.VirtAddr(0x4444_4444_0000).P4Index()).IsUnused())
}

func TestMapPropagatesUserAccessible(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, cpu, ram, frames := setupMapper(t, ctrl)

	kernelPage := addr.PageContaining(0x4444_4444_0000)
	userPage := kernelPage.Next()

	cpu.EXPECT().InvalidatePage(gomock.Any()).Times(2)
	require.NoError(t, mapper.Map(kernelPage, addr.FrameContaining(0xb8000), paging.Present|paging.Writable, frames))
	require.NoError(t, mapper.Map(userPage, addr.FrameContaining(0xb9000), paging.Present|paging.UserAccessible, frames))

	table := mapper.Level4()
	for level := 4; level > 1; level-- {
		entry := table.Entry(userPage.Start().TableIndex(level))
		require.True(t, entry.HasFlags(paging.Present|paging.Writable|paging.UserAccessible), "level %d: %s", level, entry)

		var err error
		table, err = paging.TableAt(ram, entry.Frame())
		require.NoError(t, err)
	}
}

func TestHugePages(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, _, ram, frames := setupMapper(t, ctrl)

	virt := addr.MustVirtAddr(0x4444_4444_0000)
	level3Frame, ok := frames.AllocateFrame()
	require.True(t, ok)
	mapper.Level4().SetEntry(virt.P4Index(), paging.NewEntry(level3Frame, paging.Present|paging.Writable))

	level3, err := paging.TableAt(ram, level3Frame)
	require.NoError(t, err)
	level3.SetEntry(virt.P3Index(), paging.NewEntry(addr.FrameContaining(0x4000_0000), paging.Present|paging.Writable|paging.HugePage))

	err = mapper.Map(addr.PageContaining(virt), addr.FrameContaining(0xb8000), paging.Present, frames)
	require.True(t, errors.Is(err, paging.ErrParentEntryHugePage))

	_, err = mapper.Unmap(addr.PageContaining(virt))
	require.True(t, errors.Is(err, paging.ErrParentEntryHugePage))

	defer func() {
		recovered := recover()
		require.NotNil(t, recovered)
		recoveredErr, isErr := recovered.(error)
		require.True(t, isErr)
		require.True(t, errors.Is(recoveredErr, paging.ErrHugePageUnsupported))
	}()
	mapper.Translate(virt)
	t.Fatal("translate did not panic")
}

func TestUnmap(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, cpu, _, frames := setupMapper(t, ctrl)

	page := addr.PageContaining(0x4444_4444_0000)
	_, err := mapper.Unmap(page)
	require.True(t, errors.Is(err, paging.ErrPageNotMapped))

	cpu.EXPECT().InvalidatePage(page.Start()).Times(2)
	require.NoError(t, mapper.Map(page, addr.FrameContaining(0xb8000), paging.Present|paging.Writable, frames))

	unmapped, err := mapper.Unmap(page)
	require.NoError(t, err)
	require.Equal(t, addr.FrameContaining(0xb8000), unmapped)

	_, ok := mapper.Translate(page.Start())
	require.False(t, ok)

	_, err = mapper.Unmap(page)
	require.True(t, errors.Is(err, paging.ErrPageNotMapped))
}

func TestTableAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	mapper, _, _, _ := setupMapper(t, ctrl)

	require.Equal(t, sim.DefaultPhysicalMemoryOffset+0x1000, mapper.TableAddress(mapper.Level4()))
}
