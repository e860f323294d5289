package paging

import (
	"fmt"
	"strings"

	"github.com/kcore-dev/kcore/addr"
)

// Flags are the attribute bits of a page table entry
type Flags uint64

const (
	Present        Flags = 1 << 0
	Writable       Flags = 1 << 1
	UserAccessible Flags = 1 << 2
	WriteThrough   Flags = 1 << 3
	NoCache        Flags = 1 << 4
	Accessed       Flags = 1 << 5
	Dirty          Flags = 1 << 6
	// HugePage marks a level 3 or level 2 entry as mapping a 1GiB or 2MiB page directly
	HugePage  Flags = 1 << 7
	Global    Flags = 1 << 8
	NoExecute Flags = 1 << 63
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{Present, "Present"},
	{Writable, "Writable"},
	{UserAccessible, "UserAccessible"},
	{WriteThrough, "WriteThrough"},
	{NoCache, "NoCache"},
	{Accessed, "Accessed"},
	{Dirty, "Dirty"},
	{HugePage, "HugePage"},
	{Global, "Global"},
	{NoExecute, "NoExecute"},
}

func (f Flags) String() string {
	var names []string
	for _, flag := range flagNames {
		if f&flag.flag != 0 {
			names = append(names, flag.name)
			f &^= flag.flag
		}
	}

	if f != 0 {
		names = append(names, fmt.Sprintf("%#x", uint64(f)))
	}

	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// entryAddressMask selects bits 12 through 51, which hold the physical address an entry points to
const entryAddressMask uint64 = 0x000f_ffff_ffff_f000

// Entry is one 64-bit page table entry
type Entry uint64

// NewEntry builds an entry pointing at frame with the provided flags
func NewEntry(frame addr.Frame, flags Flags) Entry {
	return Entry(uint64(frame.Start())&entryAddressMask | uint64(flags))
}

// IsUnused is true for an entry that is entirely zero
func (e Entry) IsUnused() bool { return e == 0 }

func (e Entry) Flags() Flags { return Flags(uint64(e) &^ entryAddressMask) }

// HasFlags returns true if every one of the provided flags is set
func (e Entry) HasFlags(flags Flags) bool { return e.Flags()&flags == flags }

func (e Entry) Addr() addr.PhysAddr { return addr.PhysAddr(uint64(e) & entryAddressMask) }

func (e Entry) Frame() addr.Frame { return addr.FrameContaining(e.Addr()) }

func (e Entry) String() string {
	if e.IsUnused() {
		return "Entry(unused)"
	}
	return fmt.Sprintf("Entry(%#x, %s)", uint64(e.Addr()), e.Flags())
}
