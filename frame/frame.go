// Package frame hands out physical memory frames to the rest of the kernel.
package frame

import (
	"iter"

	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/boot"
	"golang.org/x/exp/slog"
)

// Allocator returns unused physical frames
type Allocator interface {
	// AllocateFrame returns the next unused frame, or false when no frames remain
	AllocateFrame() (addr.Frame, bool)
}

// BootInfoAllocator is a rudimentary frame allocator driven by the bootloader's memory map.
//
// Every Usable region is split into whole frames (the region start is rounded up and the end rounded
// down to frame boundaries), and the regions are concatenated in map order. The allocator keeps a
// count of frames handed out so far and returns the next frame in that sequence.
//
// Frames can never be returned. Once the kernel is up, anything that needs to free physical memory
// should sit on top of a more capable allocator.
type BootInfoAllocator struct {
	regions []addr.FrameRange
	total   int

	next int
	// region and regionOffset locate frame number next within regions
	region       int
	regionOffset int
}

var _ Allocator = &BootInfoAllocator{}

// NewBootInfoAllocator builds an allocator over the provided memory map. The caller must guarantee
// that every region marked Usable is really unused: handing out a frame the kernel image or the
// page tables live in corrupts the system.
func NewBootInfoAllocator(logger *slog.Logger, memoryMap boot.MemoryMap) *BootInfoAllocator {
	allocator := &BootInfoAllocator{}

	for region := range memoryMap.Regions(boot.Usable) {
		frames := addr.FramesWithin(region.Start, region.End)
		if frames.Len() == 0 {
			continue
		}

		allocator.regions = append(allocator.regions, frames)
		allocator.total += frames.Len()
	}

	if logger != nil {
		logger.Debug("frame allocator ready",
			slog.Int("usable_regions", len(allocator.regions)),
			slog.Int("usable_frames", allocator.total),
			slog.Int("usable_kib", allocator.total*int(addr.PageSize)/1024),
		)
	}

	return allocator
}

// UsableFrames is the lazy sequence of every frame the allocator can ever hand out, in the order it
// hands them out, including frames that were already allocated
func (a *BootInfoAllocator) UsableFrames() iter.Seq[addr.Frame] {
	return func(yield func(addr.Frame) bool) {
		for _, region := range a.regions {
			for frame := range region.All() {
				if !yield(frame) {
					return
				}
			}
		}
	}
}

// AllocateFrame returns frame number n of UsableFrames, where n is the number of frames
// allocated so far
func (a *BootInfoAllocator) AllocateFrame() (addr.Frame, bool) {
	for a.region < len(a.regions) && a.regionOffset >= a.regions[a.region].Len() {
		a.region++
		a.regionOffset = 0
	}

	if a.region >= len(a.regions) {
		return addr.Frame{}, false
	}

	frame := a.regions[a.region].Nth(a.regionOffset)
	a.regionOffset++
	a.next++

	return frame, true
}

// Allocated returns the number of frames handed out so far
func (a *BootInfoAllocator) Allocated() int { return a.next }

// Remaining returns the number of frames that can still be allocated
func (a *BootInfoAllocator) Remaining() int { return a.total - a.next }

// EmptyAllocator never has a frame to give
type EmptyAllocator struct{}

var _ Allocator = EmptyAllocator{}

func (EmptyAllocator) AllocateFrame() (addr.Frame, bool) {
	return addr.Frame{}, false
}
