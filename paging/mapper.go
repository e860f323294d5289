// Package paging manipulates the four-level x86_64 page tables of the active address space. Page
// tables are reached through the bootloader's linear mapping of all physical memory, which makes the
// level 4 table and every table below it addressable without recursive mapping tricks.
package paging

import (
	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/frame"
	"github.com/kcore-dev/kcore/hal"
)

var (
	ErrFrameAllocationFailed = errors.New("frame allocation failed while creating a page table")
	ErrParentEntryHugePage   = errors.New("a parent entry of the page maps a huge page")
	ErrPageAlreadyMapped     = errors.New("the page is already mapped")
	ErrPageNotMapped         = errors.New("the page is not mapped")
	ErrHugePageUnsupported   = errors.New("huge pages are not supported")
)

// ActiveLevel4Table returns the level 4 table the CPU is currently translating through. The
// table's frame is read from the page table base register and reached through the physical
// memory mapping at memory.Offset().
//
// The returned table aliases live hardware state. Holding two OffsetPageTables over the same
// level 4 table at the same time breaks every guarantee Map makes.
func ActiveLevel4Table(cpu hal.CPU, memory hal.PhysicalMemory) (*PageTable, error) {
	return TableAt(memory, cpu.ReadPageTableBase())
}

// OffsetPageTable maps and translates pages in one address space whose page tables are reachable
// through the physical memory mapping
type OffsetPageTable struct {
	level4 *PageTable
	memory hal.PhysicalMemory
	cpu    hal.CPU
}

func NewOffsetPageTable(level4 *PageTable, memory hal.PhysicalMemory, cpu hal.CPU) *OffsetPageTable {
	return &OffsetPageTable{
		level4: level4,
		memory: memory,
		cpu:    cpu,
	}
}

// Init builds an OffsetPageTable over the active address space. It must be called once.
func Init(cpu hal.CPU, memory hal.PhysicalMemory) (*OffsetPageTable, error) {
	level4, err := ActiveLevel4Table(cpu, memory)
	if err != nil {
		return nil, err
	}

	return NewOffsetPageTable(level4, memory, cpu), nil
}

func (m *OffsetPageTable) Level4() *PageTable { return m.level4 }

// TableAddress returns the virtual address at which the table is reachable
func (m *OffsetPageTable) TableAddress(table *PageTable) addr.VirtAddr {
	return m.memory.Offset().Add(uint64(table.Frame().Start()))
}

// nextTable follows the entry at index in table, creating the next level table when the entry is
// unused. Tables created here are zeroed and marked present and writable, and inherit
// UserAccessible from the mapping being created.
func (m *OffsetPageTable) nextTable(table *PageTable, index int, flags Flags, frames frame.Allocator) (*PageTable, error) {
	entry := table.Entry(index)
	parentFlags := Present | Writable | (flags & UserAccessible)

	if entry.IsUnused() {
		tableFrame, ok := frames.AllocateFrame()
		if !ok {
			return nil, ErrFrameAllocationFailed
		}

		next, err := TableAt(m.memory, tableFrame)
		if err != nil {
			return nil, err
		}
		next.Zero()

		table.SetEntry(index, NewEntry(tableFrame, parentFlags))
		return next, nil
	}

	if entry.HasFlags(HugePage) {
		return nil, ErrParentEntryHugePage
	}

	if entry.Flags()&parentFlags != parentFlags {
		table.SetEntry(index, NewEntry(entry.Frame(), entry.Flags()|parentFlags))
	}

	return TableAt(m.memory, entry.Frame())
}

// Map creates a mapping from page to frame with the provided leaf flags. Missing intermediate tables
// are allocated from frames. The translation cache entry for page is invalidated once the leaf has
// been written.
//
// Mapping a frame that is already in use elsewhere, with flags that permit writes, creates aliasing
// the rest of the kernel cannot detect. The caller must make sure the frame is unused.
func (m *OffsetPageTable) Map(page addr.Page, target addr.Frame, flags Flags, frames frame.Allocator) error {
	start := page.Start()

	table := m.level4
	for level := 4; level > 1; level-- {
		var err error
		table, err = m.nextTable(table, start.TableIndex(level), flags, frames)
		if err != nil {
			return errors.Wrapf(err, "failed to map %s to %s at level %d", page, target, level)
		}
	}

	index := start.P1Index()
	if !table.Entry(index).IsUnused() {
		return errors.Wrapf(ErrPageAlreadyMapped, "%s already points to %s", page, table.Entry(index).Frame())
	}

	table.SetEntry(index, NewEntry(target, flags|Present))
	m.cpu.InvalidatePage(start)
	return nil
}

// leaf walks to the level 1 entry for virt without modifying any table. It returns nil when a
// level along the way is not present.
func (m *OffsetPageTable) leaf(virt addr.VirtAddr) (*PageTable, int) {
	table := m.level4
	for level := 4; level > 1; level-- {
		entry := table.Entry(virt.TableIndex(level))
		if !entry.HasFlags(Present) {
			return nil, 0
		}
		if entry.HasFlags(HugePage) {
			panic(errors.Wrapf(ErrHugePageUnsupported, "level %d entry for %s maps a huge page", level, virt))
		}

		var err error
		table, err = TableAt(m.memory, entry.Frame())
		if err != nil {
			return nil, 0
		}
	}

	return table, virt.P1Index()
}

// Translate returns the physical address that virt maps to, or false if it is not mapped. The page
// tables are only read.
//
// Translate panics with an error wrapping ErrHugePageUnsupported if it encounters a huge page entry.
func (m *OffsetPageTable) Translate(virt addr.VirtAddr) (addr.PhysAddr, bool) {
	frame, ok := m.TranslatePage(addr.PageContaining(virt))
	if !ok {
		return 0, false
	}

	return frame.Start().Add(virt.PageOffset()), true
}

// TranslatePage returns the frame that page maps to, or false if it is not mapped
func (m *OffsetPageTable) TranslatePage(page addr.Page) (addr.Frame, bool) {
	table, index := m.leaf(page.Start())
	if table == nil {
		return addr.Frame{}, false
	}

	entry := table.Entry(index)
	if !entry.HasFlags(Present) {
		return addr.Frame{}, false
	}
	if entry.HasFlags(HugePage) {
		panic(errors.Wrapf(ErrHugePageUnsupported, "level 1 entry for %s has the huge page bit set", page))
	}

	return entry.Frame(), true
}

// Unmap removes the mapping for page and returns the frame it pointed to. The frame is not
// returned to any allocator; freeing it is the caller's concern.
func (m *OffsetPageTable) Unmap(page addr.Page) (addr.Frame, error) {
	start := page.Start()

	table := m.level4
	for level := 4; level > 1; level-- {
		entry := table.Entry(start.TableIndex(level))
		if !entry.HasFlags(Present) {
			return addr.Frame{}, errors.Wrapf(ErrPageNotMapped, "no level %d table covers %s", level-1, page)
		}
		if entry.HasFlags(HugePage) {
			return addr.Frame{}, errors.Wrapf(ErrParentEntryHugePage, "failed to unmap %s", page)
		}

		var err error
		table, err = TableAt(m.memory, entry.Frame())
		if err != nil {
			return addr.Frame{}, err
		}
	}

	index := start.P1Index()
	entry := table.Entry(index)
	if !entry.HasFlags(Present) {
		return addr.Frame{}, errors.Wrapf(ErrPageNotMapped, "failed to unmap %s", page)
	}

	table.SetEntry(index, 0)
	m.cpu.InvalidatePage(start)
	return entry.Frame(), nil
}
