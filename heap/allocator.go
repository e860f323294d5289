package heap

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/hal"
	"github.com/kcore-dev/kcore/internal/utils"
	"github.com/kcore-dev/kcore/memutils"
	"github.com/kcore-dev/kcore/memutils/metadata"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// Algorithm selects how the allocator tracks the heap
type Algorithm int

const (
	// AlgorithmFreeList keeps an address-ordered list of regions and coalesces neighbors on free,
	// so freed memory is always reusable
	AlgorithmFreeList Algorithm = iota
	// AlgorithmBump advances a cursor and only reclaims memory when the newest allocation is freed
	// or when every allocation has been freed
	AlgorithmBump
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmFreeList:
		return "FreeList"
	case AlgorithmBump:
		return "Bump"
	}

	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// ParseAlgorithm returns the algorithm whose String matches name, ignoring case
func ParseAlgorithm(name string) (Algorithm, error) {
	for _, algorithm := range []Algorithm{AlgorithmFreeList, AlgorithmBump} {
		if strings.EqualFold(name, algorithm.String()) {
			return algorithm, nil
		}
	}

	return 0, errors.Newf("unknown heap algorithm %q", name)
}

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Algorithm chooses the bookkeeping strategy. The default is AlgorithmFreeList.
	Algorithm Algorithm
	// Strategy is passed through to the block metadata when choosing where an allocation goes.
	// The default prefers allocation speed.
	Strategy metadata.AllocationStrategy
	// ExternallySynchronized skips the internal mutex. Interrupts are still masked for the
	// duration of every call.
	ExternallySynchronized bool
}

// Layout is the size and alignment an allocation was requested with
type Layout struct {
	Size  uint64
	Align uint64
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout{Size: %d, Align: %d}", l.Size, l.Align)
}

// ErrorHandler is called by MustAlloc when an allocation fails. It is not expected to return.
type ErrorHandler func(layout Layout, err error)

// Allocator is the kernel's dynamic memory allocator. There is one per kernel: the boot sequence
// creates it, InitHeap hands it the heap region, and every allocation in the kernel goes through it.
//
// The allocator never reads or writes the memory it manages. All bookkeeping lives in ordinary Go
// memory, so corrupting the heap contents cannot corrupt the allocator.
//
// Every call masks interrupts while it holds the allocator's lock. Interrupt handlers must not
// allocate.
type Allocator struct {
	logger *slog.Logger
	lock   utils.InterruptMutex

	algorithm Algorithm
	strategy  metadata.AllocationStrategy

	start       addr.VirtAddr
	size        uint64
	metadata    metadata.BlockMetadata
	allocations *swiss.Map[addr.VirtAddr, metadata.BlockAllocationHandle]

	errorHandler ErrorHandler
}

var _ Region = &Allocator{}

// New creates an allocator with no memory. It must be handed a region through Init, usually by
// InitHeap, before it can satisfy allocations.
func New(logger *slog.Logger, cpu hal.CPU, options CreateOptions) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Allocator{
		logger: logger,
		lock: utils.InterruptMutex{
			CPU:      cpu,
			UseMutex: !options.ExternallySynchronized,
		},
		algorithm: options.Algorithm,
		strategy:  options.Strategy,
		errorHandler: func(layout Layout, err error) {
			panic(errors.Wrapf(err, "allocation error: %s", layout))
		},
	}
}

func (a *Allocator) Initialized() bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.metadata != nil
}

// Init gives the allocator ownership of [start, start+size). The range must be mapped and otherwise
// unused for as long as the allocator lives.
func (a *Allocator) Init(start addr.VirtAddr, size uint64) error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.metadata != nil {
		return ErrHeapAlreadyInitialized
	}

	if size == 0 {
		return errors.New("the heap region must not be empty")
	}

	var md metadata.BlockMetadata
	switch a.algorithm {
	case AlgorithmFreeList:
		md = metadata.NewFreeListBlockMetadata(uint64(start))
	case AlgorithmBump:
		md = metadata.NewBumpBlockMetadata(uint64(start))
	default:
		return errors.Newf("unknown heap algorithm %s", a.algorithm)
	}
	md.Init(int(size))

	a.start = start
	a.size = size
	a.metadata = md
	a.allocations = swiss.NewMap[addr.VirtAddr, metadata.BlockAllocationHandle](64)

	a.logger.Debug("Allocator::Init",
		slog.String("Start", start.String()),
		slog.Uint64("Size", size),
		slog.String("Algorithm", a.algorithm.String()),
	)
	return nil
}

// Start returns the first address of the heap region
func (a *Allocator) Start() addr.VirtAddr { return a.start }

// Size returns the size of the heap region in bytes
func (a *Allocator) Size() uint64 { return a.size }

// Contains returns true if ptr lies inside the heap region
func (a *Allocator) Contains(ptr addr.VirtAddr) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	return a.metadata != nil && ptr >= a.start && uint64(ptr-a.start) < a.size
}

func normalizeLayout(size, align uint64) (Layout, error) {
	if err := memutils.CheckPow2(align, "align"); err != nil {
		return Layout{}, err
	}

	if size == 0 {
		size = 1
	}

	return Layout{Size: size, Align: align}, nil
}

// Alloc reserves size bytes aligned to align, which must be a power of two. A size of zero reserves
// one byte.
func (a *Allocator) Alloc(size, align uint64) (addr.VirtAddr, error) {
	layout, err := normalizeLayout(size, align)
	if err != nil {
		return 0, err
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	if a.metadata == nil {
		return 0, ErrNotInitialized
	}

	if layout.Size > a.size {
		return 0, errors.Wrapf(ErrOutOfMemory, "%s is larger than the %d byte heap", layout, a.size)
	}

	reserved := int(layout.Size) + memutils.DebugMargin
	success, request, err := a.metadata.CreateAllocationRequest(reserved, uint(layout.Align), a.strategy)
	if err != nil {
		return 0, err
	}

	if !success {
		a.logger.Debug("Allocator::Alloc FAILED",
			slog.Uint64("Size", layout.Size),
			slog.Uint64("Align", layout.Align),
			slog.Int("FreeBytes", a.metadata.SumFreeSize()),
		)
		return 0, errors.Wrapf(ErrOutOfMemory, "failed to allocate %s", layout)
	}

	err = a.metadata.Alloc(request, layout)
	if err != nil {
		return 0, err
	}

	ptr := a.start.Add(uint64(request.Offset))
	a.allocations.Put(ptr, request.BlockAllocationHandle)
	return ptr, nil
}

// MustAlloc is Alloc for callers that cannot continue without the memory. Failures go to the
// registered ErrorHandler; if the handler returns, MustAlloc returns the zero address.
func (a *Allocator) MustAlloc(size, align uint64) addr.VirtAddr {
	ptr, err := a.Alloc(size, align)
	if err != nil {
		a.lock.Lock()
		handler := a.errorHandler
		a.lock.Unlock()

		handler(Layout{Size: size, Align: align}, err)
	}

	return ptr
}

// SetErrorHandler replaces the handler MustAlloc reports failures to. The default handler panics.
func (a *Allocator) SetErrorHandler(handler ErrorHandler) {
	a.lock.Lock()
	defer a.lock.Unlock()

	a.errorHandler = handler
}

// Dealloc releases an allocation. ptr, size and align must match a previous successful Alloc that
// has not been released yet. A mismatch returns ErrInvalidFree and changes nothing.
func (a *Allocator) Dealloc(ptr addr.VirtAddr, size, align uint64) error {
	layout, err := normalizeLayout(size, align)
	if err != nil {
		return errors.Mark(err, ErrInvalidFree)
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	if a.metadata == nil {
		return ErrNotInitialized
	}

	handle, ok := a.allocations.Get(ptr)
	if !ok {
		a.logger.LogAttrs(context.Background(), slog.LevelWarn, "invalid free of unknown pointer", slog.String("Pointer", ptr.String()))
		return errors.Wrapf(ErrInvalidFree, "%s was not allocated from this heap", ptr)
	}

	userData, err := a.metadata.AllocationUserData(handle)
	if err != nil {
		return errors.Mark(err, ErrInvalidFree)
	}

	allocated := userData.(Layout)
	if allocated != layout {
		a.logger.LogAttrs(context.Background(), slog.LevelWarn, "invalid free with mismatched layout",
			slog.String("Pointer", ptr.String()),
			slog.String("Allocated", allocated.String()),
			slog.String("Freed", layout.String()),
		)
		return errors.Wrapf(ErrInvalidFree, "%s was allocated with %s but freed with %s", ptr, allocated, layout)
	}

	err = a.metadata.Free(handle)
	if err != nil {
		return err
	}

	a.allocations.Delete(ptr)
	return nil
}

// AllocationLayout returns the layout ptr was allocated with
func (a *Allocator) AllocationLayout(ptr addr.VirtAddr) (Layout, bool) {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.metadata == nil {
		return Layout{}, false
	}

	handle, ok := a.allocations.Get(ptr)
	if !ok {
		return Layout{}, false
	}

	userData, err := a.metadata.AllocationUserData(handle)
	if err != nil {
		return Layout{}, false
	}
	return userData.(Layout), true
}

func (a *Allocator) Statistics(stats *memutils.Statistics) {
	a.lock.Lock()
	defer a.lock.Unlock()

	stats.Clear()
	if a.metadata != nil {
		a.metadata.AddStatistics(stats)
	}
}

func (a *Allocator) DetailedStatistics(stats *memutils.DetailedStatistics) {
	a.lock.Lock()
	defer a.lock.Unlock()

	stats.Clear()
	if a.metadata != nil {
		a.metadata.AddDetailedStatistics(stats)
	}
}

// Validate performs internal consistency checks on the allocator
func (a *Allocator) Validate() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	if a.metadata == nil {
		return nil
	}

	if a.allocations.Count() != a.metadata.AllocationCount() {
		return errors.Newf("allocator tracks %d pointers but the heap holds %d allocations", a.allocations.Count(), a.metadata.AllocationCount())
	}

	var err error
	a.allocations.Iter(func(ptr addr.VirtAddr, handle metadata.BlockAllocationHandle) bool {
		offset, offsetErr := a.metadata.AllocationOffset(handle)
		if offsetErr != nil {
			err = offsetErr
			return true
		}

		if a.start.Add(uint64(offset)) != ptr {
			err = errors.Newf("pointer %s refers to an allocation at offset %d", ptr, offset)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}

	return a.metadata.Validate()
}

// BuildStatsString returns a json document describing the heap. When detailed is true, every
// region of the heap is listed.
func (a *Allocator) BuildStatsString(detailed bool) string {
	a.lock.Lock()
	defer a.lock.Unlock()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	obj.Name("Algorithm").String(a.algorithm.String())
	obj.Name("Strategy").String(a.strategy.String())
	if a.metadata == nil {
		obj.Name("Initialized").Bool(false)
		obj.End()
		return string(writer.Bytes())
	}

	obj.Name("Initialized").Bool(true)
	obj.Name("Start").String(fmt.Sprintf("%#x", uint64(a.start)))

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.metadata.AddDetailedStatistics(&stats)

	totalObj := obj.Name("Total").Object()
	stats.PrintJson(&totalObj)
	totalObj.End()

	blockObj := obj.Name("Block").Object()
	a.metadata.BlockJsonData(&blockObj)
	blockObj.End()

	if detailed {
		regions := obj.Name("Regions").Array()
		_ = a.metadata.VisitAllRegions(func(handle metadata.BlockAllocationHandle, offset int, size int, userData any, free bool) error {
			region := regions.Object()
			region.Name("Offset").Int(offset)
			region.Name("Size").Int(size)
			if free {
				region.Name("Type").String("Free")
			} else {
				region.Name("Type").String("Allocation")
				if layout, ok := userData.(Layout); ok {
					region.Name("Align").Int(int(layout.Align))
				}
			}
			region.End()
			return nil
		})
		regions.End()
	}

	obj.End()
	return string(writer.Bytes())
}
