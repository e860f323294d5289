// Package boot describes what the bootloader hands the kernel: where all of physical memory is
// mapped in the virtual address space, and which physical ranges the kernel may use.
package boot

import (
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
)

// RegionKind classifies a range of physical memory in the firmware memory map
type RegionKind int

const (
	// Usable memory is free for the kernel to use
	Usable RegionKind = iota
	// InUse memory is claimed by something other than the kernel image, e.g. a loaded ramdisk
	InUse
	Reserved
	AcpiReclaimable
	AcpiNvs
	BadMemory
	// Kernel holds the kernel image
	Kernel
	KernelStack
	// PageTable holds the page tables the bootloader built, including the active level 4 table
	PageTable
	Bootloader
	// FrameZero is the first physical frame, kept unused so that a zero physical address is never valid
	FrameZero
	Empty
	BootInfo
	Package
)

var regionKindNames = map[RegionKind]string{
	Usable:          "Usable",
	InUse:           "InUse",
	Reserved:        "Reserved",
	AcpiReclaimable: "AcpiReclaimable",
	AcpiNvs:         "AcpiNvs",
	BadMemory:       "BadMemory",
	Kernel:          "Kernel",
	KernelStack:     "KernelStack",
	PageTable:       "PageTable",
	Bootloader:      "Bootloader",
	FrameZero:       "FrameZero",
	Empty:           "Empty",
	BootInfo:        "BootInfo",
	Package:         "Package",
}

func (k RegionKind) String() string {
	name, ok := regionKindNames[k]
	if !ok {
		return "Unknown"
	}
	return name
}

// ParseRegionKind accepts the names produced by RegionKind.String
func ParseRegionKind(name string) (RegionKind, error) {
	for kind, kindName := range regionKindNames {
		if kindName == name {
			return kind, nil
		}
	}

	return 0, errors.Newf("unknown memory region kind '%s'", name)
}

// MemoryRegion is the half-open physical range [Start, End)
type MemoryRegion struct {
	Start addr.PhysAddr
	End   addr.PhysAddr
	Kind  RegionKind
}

func (r MemoryRegion) Size() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return uint64(r.End - r.Start)
}

// MemoryMap is the firmware's list of physical memory regions
type MemoryMap []MemoryRegion

// Regions yields every region of the provided kind, in map order
func (m MemoryMap) Regions(kind RegionKind) iter.Seq[MemoryRegion] {
	return func(yield func(MemoryRegion) bool) {
		for _, region := range m {
			if region.Kind == kind && !yield(region) {
				return
			}
		}
	}
}

// Validate rejects maps containing inverted ranges or overlapping regions
func (m MemoryMap) Validate() error {
	for i, region := range m {
		if region.End < region.Start {
			return errors.Newf("memory region %d ends at %s before it begins at %s", i, region.End, region.Start)
		}

		for j := i + 1; j < len(m); j++ {
			other := m[j]
			if region.Start < other.End && other.Start < region.End {
				return errors.Newf("memory regions %d (%s) and %d (%s) overlap", i, region.Kind, j, other.Kind)
			}
		}
	}

	return nil
}

// Info is the boot handoff
type Info struct {
	// PhysicalMemoryOffset is the virtual address at which the bootloader mapped physical address zero
	PhysicalMemoryOffset addr.VirtAddr
	MemoryMap            MemoryMap
}
