package paging

import (
	"encoding/binary"
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/hal"
)

// PageTable is a view of the 512 entries stored in one page table frame. Entries are read and written
// in place, so changes are immediately visible to the MMU.
type PageTable struct {
	frame addr.Frame
	data  *[addr.PageSize]byte
}

// TableAt returns a view of the page table stored in frame
func TableAt(memory hal.PhysicalMemory, frame addr.Frame) (*PageTable, error) {
	data, err := memory.Frame(frame)
	if err != nil {
		return nil, errors.Wrapf(err, "page table at %s is not reachable through the physical memory mapping", frame)
	}

	return &PageTable{frame: frame, data: data}, nil
}

func (t *PageTable) Frame() addr.Frame { return t.frame }

func (t *PageTable) Entry(index int) Entry {
	return Entry(binary.LittleEndian.Uint64(t.data[index*8:]))
}

func (t *PageTable) SetEntry(index int, entry Entry) {
	binary.LittleEndian.PutUint64(t.data[index*8:], uint64(entry))
}

// Zero marks every entry unused
func (t *PageTable) Zero() {
	clear(t.data[:])
}

// Entries yields each used entry and its index
func (t *PageTable) Entries() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for index := 0; index < addr.EntriesPerTable; index++ {
			entry := t.Entry(index)
			if entry.IsUnused() {
				continue
			}
			if !yield(index, entry) {
				return
			}
		}
	}
}
