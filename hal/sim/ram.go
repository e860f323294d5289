package sim

import (
	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/hal"
)

// RAM is simulated physical memory, exposed to the kernel as the bootloader's linear
// mapping of all physical memory at a fixed virtual offset
type RAM struct {
	data   []byte
	offset addr.VirtAddr
}

var _ hal.PhysicalMemory = &RAM{}

// NewRAM allocates size bytes of zeroed, page-aligned physical memory. size is rounded up to a
// whole number of frames.
func NewRAM(size uint64, offset addr.VirtAddr) (*RAM, error) {
	size = (size + addr.PageSize - 1) &^ (addr.PageSize - 1)
	if size == 0 {
		return nil, errors.New("simulated RAM must hold at least one frame")
	}

	data, err := allocateRAM(int(size))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to allocate %d bytes of simulated RAM", size)
	}

	return &RAM{data: data, offset: offset}, nil
}

func (r *RAM) Offset() addr.VirtAddr { return r.offset }
func (r *RAM) Size() uint64          { return uint64(len(r.data)) }

func (r *RAM) Frame(frame addr.Frame) (*[addr.PageSize]byte, error) {
	start := uint64(frame.Start())
	if start+addr.PageSize > uint64(len(r.data)) {
		return nil, errors.Newf("%s lies outside of %d bytes of physical memory", frame, len(r.data))
	}

	return (*[addr.PageSize]byte)(r.data[start : start+addr.PageSize]), nil
}

// Close releases the memory backing the RAM. The RAM must not be used afterward.
func (r *RAM) Close() error {
	data := r.data
	r.data = nil
	return releaseRAM(data)
}
