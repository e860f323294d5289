package addr

import (
	"fmt"
	"iter"
)

// Frame is a 4KiB physical memory frame, identified by its base address
type Frame struct {
	start PhysAddr
}

// FrameContaining returns the frame that contains the provided address
func FrameContaining(a PhysAddr) Frame {
	return Frame{start: a.AlignDown(PageSize)}
}

// Start returns the base address of the frame
func (f Frame) Start() PhysAddr { return f.start }

// Number returns the frame index, i.e. the base address divided by PageSize
func (f Frame) Number() uint64 { return uint64(f.start) >> PageShift }

// Next returns the frame immediately following this one
func (f Frame) Next() Frame { return Frame{start: f.start.Add(PageSize)} }

func (f Frame) String() string {
	return fmt.Sprintf("Frame[4KiB](%#x)", uint64(f.start))
}

// Page is a 4KiB virtual memory page, identified by its base address
type Page struct {
	start VirtAddr
}

// PageContaining returns the page that contains the provided address
func PageContaining(a VirtAddr) Page {
	return Page{start: a.AlignDown(PageSize)}
}

// Start returns the base address of the page
func (p Page) Start() VirtAddr { return p.start }

// Number returns the page index, i.e. the base address divided by PageSize
func (p Page) Number() uint64 { return uint64(p.start) >> PageShift }

// Next returns the page immediately following this one
func (p Page) Next() Page { return Page{start: p.start.Add(PageSize)} }

func (p Page) String() string {
	return fmt.Sprintf("Page[4KiB](%#x)", uint64(p.start))
}

// PageRange is an inclusive range of pages
type PageRange struct {
	First Page
	Last  Page
}

// PageRangeInclusive builds the inclusive range [first, last]
func PageRangeInclusive(first, last Page) PageRange {
	return PageRange{First: first, Last: last}
}

// IsEmpty returns true if the range contains no pages
func (r PageRange) IsEmpty() bool {
	return r.First.start > r.Last.start
}

// Len returns the number of pages in the range
func (r PageRange) Len() int {
	if r.IsEmpty() {
		return 0
	}
	return int((r.Last.start.Sub(r.First.start) >> PageShift) + 1)
}

// All iterates the pages in the range in ascending order
func (r PageRange) All() iter.Seq[Page] {
	return func(yield func(Page) bool) {
		if r.IsEmpty() {
			return
		}
		for page := r.First; ; page = page.Next() {
			if !yield(page) || page == r.Last {
				return
			}
		}
	}
}

// FrameRange is the half-open range of frames [Start, End)
type FrameRange struct {
	Start Frame
	End   Frame
}

// FramesWithin returns the frames lying entirely inside the physical range [start, end). The start
// is rounded up and the end rounded down to frame boundaries.
func FramesWithin(start, end PhysAddr) FrameRange {
	first := FrameContaining(start.AlignUp(PageSize))
	last := FrameContaining(end.AlignDown(PageSize))
	if last.start < first.start {
		last = first
	}
	return FrameRange{Start: first, End: last}
}

func (r FrameRange) Len() int {
	return int((r.End.start - r.Start.start) >> PageShift)
}

// Nth returns the frame n frames past the start of the range
func (r FrameRange) Nth(n int) Frame {
	return Frame{start: r.Start.start.Add(uint64(n) << PageShift)}
}

// All iterates the frames in the range in ascending order
func (r FrameRange) All() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		for frame := r.Start; frame.start < r.End.start; frame = frame.Next() {
			if !yield(frame) {
				return
			}
		}
	}
}
