// Package addr contains typed physical and virtual address values along with
// the page and frame types built on top of them. Addresses are validated once,
// when they are constructed, and are never re-derived from bare integers
// anywhere else in the kernel.
package addr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	// PageShift is log2(PageSize)
	PageShift = 12
	// PageSize is the size in bytes of both a virtual page and a physical frame
	PageSize uint64 = 1 << PageShift

	// EntriesPerTable is the number of entries in a single page table at any level
	EntriesPerTable = 512

	physAddrBits = 52
	virtAddrBits = 48
)

var (
	// ErrNonCanonical is returned when a virtual address does not sign-extend bit 47
	ErrNonCanonical = errors.New("virtual address is not canonical")
	// ErrPhysAddrTooLarge is returned when a physical address does not fit in 52 bits
	ErrPhysAddrTooLarge = errors.New("physical address exceeds 52 bits")
)

// PhysAddr is an address in physical memory
type PhysAddr uint64

// NewPhysAddr validates that the provided value is a legal physical address
func NewPhysAddr(value uint64) (PhysAddr, error) {
	if value>>physAddrBits != 0 {
		return 0, errors.Wrapf(ErrPhysAddrTooLarge, "%#x", value)
	}
	return PhysAddr(value), nil
}

// MustPhysAddr is NewPhysAddr for values known at compile time
func MustPhysAddr(value uint64) PhysAddr {
	a, err := NewPhysAddr(value)
	if err != nil {
		panic(err)
	}
	return a
}

func (a PhysAddr) Uint64() uint64 { return uint64(a) }

// Add offsets this address by the provided number of bytes
func (a PhysAddr) Add(offset uint64) PhysAddr { return a + PhysAddr(offset) }

func (a PhysAddr) AlignDown(alignment uint64) PhysAddr {
	return PhysAddr(uint64(a) &^ (alignment - 1))
}

func (a PhysAddr) AlignUp(alignment uint64) PhysAddr {
	return PhysAddr((uint64(a) + alignment - 1) &^ (alignment - 1))
}

func (a PhysAddr) IsAligned(alignment uint64) bool {
	return uint64(a)&(alignment-1) == 0
}

func (a PhysAddr) String() string {
	return fmt.Sprintf("PhysAddr(%#x)", uint64(a))
}

// VirtAddr is a canonical 48-bit virtual address
type VirtAddr uint64

// NewVirtAddr validates that the provided value is canonical: bits 48 through
// 63 must all be copies of bit 47.
func NewVirtAddr(value uint64) (VirtAddr, error) {
	if TruncateVirtAddr(value) != VirtAddr(value) {
		return 0, errors.Wrapf(ErrNonCanonical, "%#x", value)
	}
	return VirtAddr(value), nil
}

// MustVirtAddr is NewVirtAddr for values known at compile time
func MustVirtAddr(value uint64) VirtAddr {
	a, err := NewVirtAddr(value)
	if err != nil {
		panic(err)
	}
	return a
}

// TruncateVirtAddr sign-extends bit 47 through the upper bits
func TruncateVirtAddr(value uint64) VirtAddr {
	shift := 64 - virtAddrBits
	return VirtAddr(uint64(int64(value<<shift) >> shift))
}

func (a VirtAddr) Uint64() uint64 { return uint64(a) }

// Add offsets this address by the provided number of bytes, re-canonicalizing the result
func (a VirtAddr) Add(offset uint64) VirtAddr {
	return TruncateVirtAddr(uint64(a) + offset)
}

// Sub returns the distance in bytes between this address and an earlier one
func (a VirtAddr) Sub(other VirtAddr) uint64 {
	return uint64(a) - uint64(other)
}

func (a VirtAddr) AlignDown(alignment uint64) VirtAddr {
	return VirtAddr(uint64(a) &^ (alignment - 1))
}

func (a VirtAddr) AlignUp(alignment uint64) VirtAddr {
	return TruncateVirtAddr((uint64(a) + alignment - 1) &^ (alignment - 1))
}

func (a VirtAddr) IsAligned(alignment uint64) bool {
	return uint64(a)&(alignment-1) == 0
}

// PageOffset is the byte offset of this address within its 4KiB page
func (a VirtAddr) PageOffset() uint64 {
	return uint64(a) & (PageSize - 1)
}

// TableIndex returns the index into the page table at the provided level
// (4 is the top-level table, 1 is the leaf table) for this address.
func (a VirtAddr) TableIndex(level int) int {
	return int((uint64(a) >> (PageShift + 9*(level-1))) & (EntriesPerTable - 1))
}

func (a VirtAddr) P4Index() int { return a.TableIndex(4) }
func (a VirtAddr) P3Index() int { return a.TableIndex(3) }
func (a VirtAddr) P2Index() int { return a.TableIndex(2) }
func (a VirtAddr) P1Index() int { return a.TableIndex(1) }

func (a VirtAddr) String() string {
	return fmt.Sprintf("VirtAddr(%#x)", uint64(a))
}
