package metadata_test

import (
	"math"
	"testing"

	"github.com/kcore-dev/kcore/memutils"
	"github.com/kcore-dev/kcore/memutils/metadata"
	"github.com/stretchr/testify/require"
)

func allocate(t *testing.T, md metadata.BlockMetadata, size int, alignment uint, strategy metadata.AllocationStrategy) metadata.BlockAllocationHandle {
	success, request, err := md.CreateAllocationRequest(size, alignment, strategy)
	require.NoError(t, err)
	require.True(t, success)

	err = md.Alloc(request, size)
	require.NoError(t, err)
	require.NoError(t, md.Validate())

	return request.BlockAllocationHandle
}

func TestFreeListAlloc(t *testing.T) {
	freeList := metadata.NewFreeListBlockMetadata(0)
	freeList.Init(1000)

	var stats memutils.DetailedStatistics
	stats.Clear()
	freeList.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionCount:     1,
			RegionBytes:     1000,
			AllocationCount: 0,
			AllocationBytes: 0,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  math.MaxInt,
		AllocationSizeMax:  0,
		UnusedRangeSizeMin: 1000,
		UnusedRangeSizeMax: 1000,
	}, stats)

	alloc1 := allocate(t, freeList, 100, 1, metadata.AllocationStrategyMinTime)
	alloc2 := allocate(t, freeList, 50, 1, metadata.AllocationStrategyMinTime)
	alloc3 := allocate(t, freeList, 25, 1, metadata.AllocationStrategyMinTime)

	stats.Clear()
	freeList.AddDetailedStatistics(&stats)
	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			RegionCount:     1,
			RegionBytes:     1000,
			AllocationCount: 3,
			AllocationBytes: 175,
		},
		UnusedRangeCount:   1,
		AllocationSizeMin:  25,
		AllocationSizeMax:  100,
		UnusedRangeSizeMin: 825,
		UnusedRangeSizeMax: 825,
	}, stats)

	offset, err := freeList.AllocationOffset(alloc2)
	require.NoError(t, err)
	require.Equal(t, 100, offset)

	require.NoError(t, freeList.Free(alloc2))
	require.NoError(t, freeList.Validate())
	require.Equal(t, 2, freeList.FreeRegionsCount())

	// Freeing the neighbors collapses everything back into one region
	require.NoError(t, freeList.Free(alloc1))
	require.NoError(t, freeList.Validate())
	require.Equal(t, 2, freeList.FreeRegionsCount())

	require.NoError(t, freeList.Free(alloc3))
	require.NoError(t, freeList.Validate())
	require.Equal(t, 1, freeList.FreeRegionsCount())
	require.Equal(t, 1000, freeList.SumFreeSize())
	require.True(t, freeList.IsEmpty())
}

func TestFreeListReusesFreedSpace(t *testing.T) {
	freeList := metadata.NewFreeListBlockMetadata(0)
	freeList.Init(300)

	alloc1 := allocate(t, freeList, 100, 1, metadata.AllocationStrategyMinTime)
	_ = allocate(t, freeList, 100, 1, metadata.AllocationStrategyMinTime)
	_ = allocate(t, freeList, 100, 1, metadata.AllocationStrategyMinTime)

	success, _, err := freeList.CreateAllocationRequest(1, 1, metadata.AllocationStrategyMinTime)
	require.NoError(t, err)
	require.False(t, success)

	require.NoError(t, freeList.Free(alloc1))

	reused := allocate(t, freeList, 60, 1, metadata.AllocationStrategyMinTime)
	offset, err := freeList.AllocationOffset(reused)
	require.NoError(t, err)
	require.Equal(t, 0, offset)
}

func TestFreeListAlignmentUsesBaseAddress(t *testing.T) {
	// Base address is 8 bytes past a 64-byte boundary
	freeList := metadata.NewFreeListBlockMetadata(0x1008)
	freeList.Init(1024)

	_ = allocate(t, freeList, 3, 1, metadata.AllocationStrategyMinTime)
	aligned := allocate(t, freeList, 64, 64, metadata.AllocationStrategyMinTime)

	offset, err := freeList.AllocationOffset(aligned)
	require.NoError(t, err)
	require.Equal(t, uint64(0), (0x1008+uint64(offset))%64)
	require.Equal(t, 56, offset)

	// The alignment padding stays free
	require.Equal(t, 2, freeList.FreeRegionsCount())
	require.Equal(t, 1024-67, freeList.SumFreeSize())
}

func TestFreeListBestFit(t *testing.T) {
	freeList := metadata.NewFreeListBlockMetadata(0)
	freeList.Init(1000)

	big := allocate(t, freeList, 200, 1, metadata.AllocationStrategyMinTime)
	_ = allocate(t, freeList, 10, 1, metadata.AllocationStrategyMinTime)
	small := allocate(t, freeList, 50, 1, metadata.AllocationStrategyMinTime)
	_ = allocate(t, freeList, 10, 1, metadata.AllocationStrategyMinTime)

	require.NoError(t, freeList.Free(big))
	require.NoError(t, freeList.Free(small))

	firstFit := allocate(t, freeList, 40, 1, metadata.AllocationStrategyMinTime)
	offset, err := freeList.AllocationOffset(firstFit)
	require.NoError(t, err)
	require.Equal(t, 0, offset)

	bestFit := allocate(t, freeList, 40, 1, metadata.AllocationStrategyMinMemory)
	offset, err = freeList.AllocationOffset(bestFit)
	require.NoError(t, err)
	require.Equal(t, 210, offset)
}

func TestFreeListRejectsInvalidFree(t *testing.T) {
	freeList := metadata.NewFreeListBlockMetadata(0)
	freeList.Init(1000)

	alloc := allocate(t, freeList, 100, 1, metadata.AllocationStrategyMinTime)
	require.NoError(t, freeList.Free(alloc))

	require.Error(t, freeList.Free(alloc))
	require.Error(t, freeList.Free(metadata.NoAllocation))
	require.Error(t, freeList.Free(metadata.BlockAllocationHandle(500)))
	require.NoError(t, freeList.Validate())
	require.Equal(t, 1000, freeList.SumFreeSize())
}

func TestFreeListStaleRequest(t *testing.T) {
	freeList := metadata.NewFreeListBlockMetadata(0)
	freeList.Init(100)

	success, request, err := freeList.CreateAllocationRequest(80, 1, metadata.AllocationStrategyMinTime)
	require.NoError(t, err)
	require.True(t, success)

	_ = allocate(t, freeList, 50, 1, metadata.AllocationStrategyMinTime)

	require.Error(t, freeList.Alloc(request, nil))
	require.NoError(t, freeList.Validate())
}

func TestFreeListClear(t *testing.T) {
	freeList := metadata.NewFreeListBlockMetadata(0)
	freeList.Init(1000)

	_ = allocate(t, freeList, 100, 8, metadata.AllocationStrategyMinTime)
	_ = allocate(t, freeList, 100, 8, metadata.AllocationStrategyMinTime)

	freeList.Clear()
	require.NoError(t, freeList.Validate())
	require.True(t, freeList.IsEmpty())
	require.Equal(t, 1000, freeList.SumFreeSize())
}
