// Package heap maps the kernel heap region and manages dynamic allocations inside it.
package heap

import (
	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/frame"
	"github.com/kcore-dev/kcore/paging"
)

const (
	// HeapStart is the first virtual address of the kernel heap
	HeapStart addr.VirtAddr = 0x4444_4444_0000
	// HeapSize is the size of the kernel heap in bytes
	HeapSize uint64 = 100 * 1024
)

var (
	ErrHeapAlreadyInitialized = errors.New("the heap has already been initialized")
	ErrFrameAllocationFailed  = errors.New("no physical frame available to back the heap")
	ErrNotInitialized         = errors.New("the heap has not been initialized")
	ErrOutOfMemory            = errors.New("the heap has no free region large enough for the allocation")
	ErrInvalidFree            = errors.New("the pointer does not refer to a live allocation with the provided layout")
)

// PageMapper installs page mappings in the active address space
type PageMapper interface {
	Map(page addr.Page, target addr.Frame, flags paging.Flags, frames frame.Allocator) error
}

// Region is the allocator that takes ownership of the heap once it is mapped
type Region interface {
	Initialized() bool
	Init(start addr.VirtAddr, size uint64) error
}

// HeapPages returns the pages covering [HeapStart, HeapStart+HeapSize)
func HeapPages() addr.PageRange {
	last := HeapStart.Add(HeapSize - 1)
	return addr.PageRangeInclusive(addr.PageContaining(HeapStart), addr.PageContaining(last))
}

// InitHeap backs every page of the heap with a fresh frame mapped present and writable, then hands
// the region to allocator. It stops at the first page that cannot be mapped. Pages mapped before
// the failure stay mapped, and the allocator is left uninitialized.
func InitHeap(mapper PageMapper, frames frame.Allocator, allocator Region) error {
	if allocator.Initialized() {
		return ErrHeapAlreadyInitialized
	}

	for page := range HeapPages().All() {
		target, ok := frames.AllocateFrame()
		if !ok {
			return errors.Wrapf(ErrFrameAllocationFailed, "failed to map heap %s", page)
		}

		err := mapper.Map(page, target, paging.Present|paging.Writable, frames)
		if err != nil {
			err = errors.Wrapf(err, "failed to map heap %s", page)
			if errors.Is(err, paging.ErrFrameAllocationFailed) {
				err = errors.Mark(err, ErrFrameAllocationFailed)
			}
			return err
		}
	}

	return allocator.Init(HeapStart, HeapSize)
}
