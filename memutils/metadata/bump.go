package metadata

import (
	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/kcore-dev/kcore/memutils"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// BumpBlockMetadata is a BlockMetadata implementation that hands out memory by advancing a cursor
// through the block. Individual frees do not make memory reusable, with two exceptions: freeing
// the newest live allocation pulls the cursor back to the end of the next-newest one, and once the
// number of live allocations drops to zero the cursor returns to the beginning of the block.
type BumpBlockMetadata struct {
	BlockMetadataBase

	next        int
	allocations *swiss.Map[BlockAllocationHandle, Suballocation]
	// top holds live allocations in ascending offset order
	top []BlockAllocationHandle
}

var _ BlockMetadata = &BumpBlockMetadata{}

func NewBumpBlockMetadata(baseAddress uint64) *BumpBlockMetadata {
	return &BumpBlockMetadata{
		BlockMetadataBase: NewBlockMetadata(baseAddress),
	}
}

func (m *BumpBlockMetadata) Init(size int) {
	m.BlockMetadataBase.Init(size)
	m.allocations = swiss.NewMap[BlockAllocationHandle, Suballocation](42)
	m.next = 0
	m.top = m.top[:0]
}

func (m *BumpBlockMetadata) Validate() error {
	if m.next < 0 || m.next > m.Size() {
		return errors.Newf("bump cursor %d is outside of the block [0, %d]", m.next, m.Size())
	}

	if len(m.top) != m.allocations.Count() {
		return errors.Newf("allocation stack has %d entries but %d allocations are live", len(m.top), m.allocations.Count())
	}

	lastEnd := 0
	for _, handle := range m.top {
		suballoc, ok := m.allocations.Get(handle)
		if !ok {
			return errors.Newf("allocation stack references handle %d which is not live", handle)
		}

		if suballoc.Offset < lastEnd {
			return errors.Newf("allocation at offset %d overlaps the allocation before it", suballoc.Offset)
		}

		lastEnd = suballoc.Offset + suballoc.Size
	}

	if lastEnd > m.next {
		return errors.Newf("live allocations end at %d, beyond the bump cursor %d", lastEnd, m.next)
	}

	if m.allocations.Count() == 0 && m.next != 0 {
		return errors.New("block has no live allocations but the bump cursor was not reset")
	}

	return nil
}

func (m *BumpBlockMetadata) AllocationCount() int {
	return m.allocations.Count()
}

func (m *BumpBlockMetadata) FreeRegionsCount() int {
	if m.next == m.Size() {
		return 0
	}
	return 1
}

// SumFreeSize returns the bytes available past the cursor. Holes left behind by frees are not
// counted because this implementation cannot reuse them.
func (m *BumpBlockMetadata) SumFreeSize() int {
	return m.Size() - m.next
}

func (m *BumpBlockMetadata) IsEmpty() bool {
	return m.allocations.Count() == 0
}

func (m *BumpBlockMetadata) VisitAllRegions(handleBlock func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error) error {
	lastOffset := 0
	for _, handle := range m.top {
		suballoc, _ := m.allocations.Get(handle)
		if suballoc.Offset > lastOffset {
			err := handleBlock(handleForOffset(lastOffset), lastOffset, suballoc.Offset-lastOffset, nil, true)
			if err != nil {
				return err
			}
		}

		err := handleBlock(handle, suballoc.Offset, suballoc.Size, suballoc.UserData, false)
		if err != nil {
			return err
		}
		lastOffset = suballoc.Offset + suballoc.Size
	}

	if lastOffset < m.Size() {
		return handleBlock(handleForOffset(lastOffset), lastOffset, m.Size()-lastOffset, nil, true)
	}

	return nil
}

func (m *BumpBlockMetadata) getAllocation(allocHandle BlockAllocationHandle) (Suballocation, error) {
	suballoc, ok := m.allocations.Get(allocHandle)
	if !ok {
		return Suballocation{}, errors.Newf("handle %d does not refer to a live allocation in this block", allocHandle)
	}
	return suballoc, nil
}

func (m *BumpBlockMetadata) AllocationOffset(allocHandle BlockAllocationHandle) (int, error) {
	suballoc, err := m.getAllocation(allocHandle)
	return suballoc.Offset, err
}

func (m *BumpBlockMetadata) AllocationSize(allocHandle BlockAllocationHandle) (int, error) {
	suballoc, err := m.getAllocation(allocHandle)
	return suballoc.Size, err
}

func (m *BumpBlockMetadata) AllocationUserData(allocHandle BlockAllocationHandle) (any, error) {
	suballoc, err := m.getAllocation(allocHandle)
	return suballoc.UserData, err
}

func (m *BumpBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionCount++
	stats.RegionBytes += m.Size()

	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			stats.AddUnusedRange(size)
		} else {
			stats.AddAllocation(size)
		}
		return nil
	})
}

func (m *BumpBlockMetadata) AddStatistics(stats *memutils.Statistics) {
	stats.RegionCount++
	stats.RegionBytes += m.Size()
	stats.AllocationCount += m.allocations.Count()

	m.allocations.Iter(func(handle BlockAllocationHandle, suballoc Suballocation) bool {
		stats.AllocationBytes += suballoc.Size
		return false
	})
}

func (m *BumpBlockMetadata) Clear() {
	m.allocations = swiss.NewMap[BlockAllocationHandle, Suballocation](42)
	m.top = m.top[:0]
	m.next = 0
}

func (m *BumpBlockMetadata) BlockJsonData(json *jwriter.ObjectState) {
	unusedRanges := 0
	_ = m.VisitAllRegions(func(handle BlockAllocationHandle, offset int, size int, userData any, free bool) error {
		if free {
			unusedRanges++
		}
		return nil
	})

	m.BlockMetadataBase.BlockJsonData(json, m.SumFreeSize(), m.AllocationCount(), unusedRanges)
	json.Name("Cursor").Int(m.next)
}

func (m *BumpBlockMetadata) CreateAllocationRequest(allocSize int, allocAlignment uint, strategy AllocationStrategy) (bool, AllocationRequest, error) {
	if allocSize < 1 {
		return false, AllocationRequest{}, errors.Newf("allocation size must be positive, got %d", allocSize)
	}
	memutils.DebugCheckPow2(allocAlignment, "allocAlignment")

	offset := m.AlignOffset(m.next, allocAlignment)
	if offset+allocSize > m.Size() || offset+allocSize < offset {
		return false, AllocationRequest{}, nil
	}

	return true, AllocationRequest{
		BlockAllocationHandle: handleForOffset(offset),
		Offset:                offset,
		Size:                  allocSize,
		Type:                  AllocationRequestBump,
		AlgorithmData:         uint64(m.next),
	}, nil
}

func (m *BumpBlockMetadata) Alloc(request AllocationRequest, userData any) error {
	if request.Type != AllocationRequestBump {
		return errors.Newf("bump metadata received a %s allocation request", request.Type)
	}

	if request.AlgorithmData != uint64(m.next) {
		return errors.New("the bump cursor has moved since the allocation request was created")
	}

	if request.Offset < m.next || request.Offset+request.Size > m.Size() {
		return errors.Newf("allocation request [%d, %d) no longer fits in the block", request.Offset, request.Offset+request.Size)
	}

	m.allocations.Put(request.BlockAllocationHandle, Suballocation{
		Offset:   request.Offset,
		Size:     request.Size,
		UserData: userData,
	})
	m.top = append(m.top, request.BlockAllocationHandle)
	m.next = request.Offset + request.Size

	memutils.DebugValidate(m)
	return nil
}

func (m *BumpBlockMetadata) Free(allocHandle BlockAllocationHandle) error {
	if _, err := m.getAllocation(allocHandle); err != nil {
		return err
	}

	m.allocations.Delete(allocHandle)

	if m.allocations.Count() == 0 {
		m.top = m.top[:0]
		m.next = 0
		return nil
	}

	m.compactStack(allocHandle)

	last, _ := m.allocations.Get(m.top[len(m.top)-1])
	m.next = last.Offset + last.Size

	memutils.DebugValidate(m)
	return nil
}

// compactStack removes a freed handle from the allocation stack so that the stack always
// mirrors the set of live allocations. The cursor then follows whatever allocation is on top.
func (m *BumpBlockMetadata) compactStack(freed BlockAllocationHandle) {
	for i, handle := range m.top {
		if handle == freed {
			m.top = append(m.top[:i], m.top[i+1:]...)
			return
		}
	}
}
