package metadata

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/kcore-dev/kcore/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

var regionAllocator = sync.Pool{
	New: func() any {
		return &freeListRegion{}
	},
}

// freeListRegion is one contiguous run of bytes in the block, either free or allocated. Regions
// form a doubly linked list in ascending offset order that covers the whole block.
type freeListRegion struct {
	offset int
	size   int
	free   bool

	prev *freeListRegion
	next *freeListRegion

	userData any
}

// FreeListBlockMetadata is a BlockMetadata implementation that keeps every region of the block in an
// address-ordered list. Allocations are carved out of free regions, and freed allocations are
// merged with free neighbors immediately, so two free regions are never adjacent.
type FreeListBlockMetadata struct {
	BlockMetadataBase

	allocCount   int
	freeCount    int
	sumFreeSize  int
	head         *freeListRegion
	regionOffset *swiss.Map[int, *freeListRegion]
}

var _ BlockMetadata = &FreeListBlockMetadata{}

func NewFreeListBlockMetadata(baseAddress uint64) *FreeListBlockMetadata {
	return &FreeListBlockMetadata{
		BlockMetadataBase: NewBlockMetadata(baseAddress),
	}
}

func (m *FreeListBlockMetadata) allocateRegion(offset, size int, free bool) *freeListRegion {
	r := regionAllocator.Get().(*freeListRegion)
	r.offset = offset
	r.size = size
	r.free = free
	r.prev = nil
	r.next = nil
	r.userData = nil
	m.regionOffset.Put(offset, r)
	return r
}

func (m *FreeListBlockMetadata) releaseRegion(r *freeListRegion) {
	m.regionOffset.Delete(r.offset)
	r.userData = nil
	regionAllocator.Put(r)
}

func (m *FreeListBlockMetadata) moveRegion(r *freeListRegion, newOffset int) {
	m.regionOffset.Delete(r.offset)
	r.offset = newOffset
	m.regionOffset.Put(newOffset, r)
}

func (m *FreeListBlockMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.regionOffset = swiss.NewMap[int, *freeListRegion](42)
	m.reset()
}

func (m *FreeListBlockMetadata) reset() {
	m.head = m.allocateRegion(0, m.Size(), true)
	m.allocCount = 0
	m.freeCount = 1
	m.sumFreeSize = m.Size()
}

func (m *FreeListBlockMetadata) Validate() error {
	if m.SumFreeSize() > m.Size() {
		return errors.New("invalid metadata free size")
	}

	if m.head == nil || m.head.prev != nil {
		return errors.New("region list does not begin with a head region")
	}

	var allocCount, freeCount, freeSize, regionCount int
	nextOffset := 0
	for region := m.head; region != nil; region = region.next {
		regionCount++

		if region.offset != nextOffset {
			return errors.Errorf("region at offset %d does not begin where the previous region ends (%d)", region.offset, nextOffset)
		}

		if region.size <= 0 {
			return errors.Errorf("region at offset %d has non-positive size %d", region.offset, region.size)
		}

		if region.next != nil && region.next.prev != region {
			return errors.Errorf("region at offset %d lists the region at offset %d as its next region, but the reverse reference is broken", region.offset, region.next.offset)
		}

		mapped, ok := m.regionOffset.Get(region.offset)
		if !ok || mapped != region {
			return errors.Errorf("region at offset %d is missing from the offset index", region.offset)
		}

		if region.free {
			freeCount++
			freeSize += region.size

			if region.next != nil && region.next.free {
				return errors.Errorf("free regions at offsets %d and %d were not merged", region.offset, region.next.offset)
			}
		} else {
			allocCount++
		}

		nextOffset = region.offset + region.size
	}

	if nextOffset != m.Size() {
		return errors.Errorf("regions cover %d bytes but the block is %d bytes", nextOffset, m.Size())
	}

	if regionCount != m.regionOffset.Count() {
		return errors.Errorf("offset index holds %d regions but the list holds %d", m.regionOffset.Count(), regionCount)
	}

	if allocCount != m.allocCount {
		return errors.Errorf("counted %d allocations but the metadata tracks %d", allocCount, m.allocCount)
	}

	if freeCount != m.freeCount {
		return errors.Errorf("counted %d free regions but the metadata tracks %d", freeCount, m.freeCount)
	}

	if freeSize != m.sumFreeSize {
		return errors.Errorf("counted %d free bytes but the metadata tracks %d", freeSize, m.sumFreeSize)
	}

	return nil
}

func (m *FreeListBlockMetadata) AllocationCount() int  { return m.allocCount }
func (m *FreeListBlockMetadata) FreeRegionsCount() int { return m.freeCount }
func (m *FreeListBlockMetadata) SumFreeSize() int      { return m.sumFreeSize }
func (m *FreeListBlockMetadata) IsEmpty() bool         { return m.allocCount == 0 }

func (m *FreeListBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	for region := m.head; region != nil; region = region.next {
		err := handleBlock(handleForOffset(region.offset), region.offset, region.size, region.userData, region.free)
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *FreeListBlockMetadata) getAllocation(allocHandle BlockAllocationHandle) (*freeListRegion, error) {
	if allocHandle == NoAllocation || allocHandle == 0 {
		return nil, errors.New("received a handle that was incompatible with this metadata")
	}

	region, ok := m.regionOffset.Get(int(allocHandle - 1))
	if !ok || region.free {
		return nil, errors.Newf("handle %d does not refer to a live allocation in this block", allocHandle)
	}

	return region, nil
}

func (m *FreeListBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	region, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}
	return region.offset, nil
}

func (m *FreeListBlockMetadata) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	region, err := m.getAllocation(allocHandle)
	if err != nil {
		return 0, err
	}
	return region.size, nil
}

func (m *FreeListBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	region, err := m.getAllocation(allocHandle)
	if err != nil {
		return nil, err
	}
	return region.userData, nil
}

func (m *FreeListBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionCount++
	stats.RegionBytes += m.Size()

	for region := m.head; region != nil; region = region.next {
		if region.free {
			stats.AddUnusedRange(region.size)
		} else {
			stats.AddAllocation(region.size)
		}
	}
}

func (m *FreeListBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.RegionCount++
	stats.RegionBytes += m.Size()
	stats.AllocationCount += m.allocCount
	stats.AllocationBytes += m.Size() - m.sumFreeSize
}

func (m *FreeListBlockMetadata) Clear() {
	for region := m.head; region != nil; {
		next := region.next
		m.releaseRegion(region)
		region = next
	}

	m.reset()
}

func (m *FreeListBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	m.BlockMetadataBase.BlockJsonData(json, m.SumFreeSize(), m.AllocationCount(), m.FreeRegionsCount())
}

func (m *FreeListBlockMetadata) CreateAllocationRequest(allocSize int, allocAlignment uint, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	if allocSize < 1 {
		return false, AllocationRequest{}, errors.Newf("allocation size must be positive, got %d", allocSize)
	}
	memutils.DebugCheckPow2(allocAlignment, "allocAlignment")

	// Quick check for too small pool
	if allocSize > m.sumFreeSize {
		return false, AllocationRequest{}, nil
	}

	var best *freeListRegion
	bestOffset := 0
	for region := m.head; region != nil; region = region.next {
		if !region.free || region.size < allocSize {
			continue
		}

		offset := m.AlignOffset(region.offset, allocAlignment)
		if offset+allocSize > region.offset+region.size {
			continue
		}

		if best == nil || region.size < best.size {
			best = region
			bestOffset = offset
		}

		if strategy != AllocationStrategyMinMemory {
			break
		}
	}

	if best == nil {
		return false, AllocationRequest{}, nil
	}

	return true, AllocationRequest{
		BlockAllocationHandle: handleForOffset(bestOffset),
		Offset:                bestOffset,
		Size:                  allocSize,
		Type:                  AllocationRequestFreeList,
		AlgorithmData:         uint64(best.offset),
	}, nil
}

func (m *FreeListBlockMetadata) Alloc(request AllocationRequest, userData any) error {
	if request.Type != AllocationRequestFreeList {
		return errors.Newf("free list metadata received a %s allocation request", request.Type)
	}

	region, ok := m.regionOffset.Get(int(request.AlgorithmData))
	if !ok || !region.free {
		return errors.Newf("allocation request refers to region at offset %d, which is no longer free", request.AlgorithmData)
	}

	if request.Offset < region.offset || request.Offset+request.Size > region.offset+region.size {
		return errors.Newf("allocation request [%d, %d) no longer fits in the free region at offset %d", request.Offset, request.Offset+request.Size, region.offset)
	}

	// Alignment padding before the allocation stays free. The region before a free region is
	// never free, so the padding does not need merging.
	if padding := request.Offset - region.offset; padding > 0 {
		paddingOffset := region.offset
		m.moveRegion(region, request.Offset)
		paddingRegion := m.allocateRegion(paddingOffset, padding, true)
		region.size -= padding

		paddingRegion.prev = region.prev
		paddingRegion.next = region
		if region.prev != nil {
			region.prev.next = paddingRegion
		} else {
			m.head = paddingRegion
		}
		region.prev = paddingRegion
		m.freeCount++
	}

	if remaining := region.size - request.Size; remaining > 0 {
		tail := m.allocateRegion(request.Offset+request.Size, remaining, true)
		tail.prev = region
		tail.next = region.next
		if region.next != nil {
			region.next.prev = tail
		}
		region.next = tail
		region.size = request.Size
		m.freeCount++
	}

	region.free = false
	region.userData = userData
	m.freeCount--
	m.allocCount++
	m.sumFreeSize -= request.Size

	memutils.DebugValidate(m)
	return nil
}

func (m *FreeListBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
	region, err := m.getAllocation(allocHandle)
	if err != nil {
		return err
	}

	region.free = true
	region.userData = nil
	m.allocCount--
	m.freeCount++
	m.sumFreeSize += region.size

	if next := region.next; next != nil && next.free {
		m.mergeWithNext(region)
	}

	if prev := region.prev; prev != nil && prev.free {
		m.mergeWithNext(prev)
	}

	memutils.DebugValidate(m)
	return nil
}

// mergeWithNext absorbs region.next into region. Both must be free.
func (m *FreeListBlockMetadata) mergeWithNext(region *freeListRegion) {
	next := region.next
	region.size += next.size
	region.next = next.next
	if next.next != nil {
		next.next.prev = region
	}
	m.freeCount--
	m.releaseRegion(next)
}
