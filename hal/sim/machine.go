// Package sim is a single-core machine simulated inside an ordinary Go process. It provides
// everything in package hal, so the kernel core can boot, map memory and service interrupts
// without real hardware.
package sim

import (
	"github.com/cockroachdb/errors"
	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/boot"
	"github.com/kcore-dev/kcore/hal"
)

const (
	DefaultMemorySize           uint64        = 8 * 1024 * 1024
	DefaultPhysicalMemoryOffset addr.VirtAddr = 0x1000_0000_0000

	// The bootloader leaves the active level 4 page table in the frame at level4TableAddress
	level4TableAddress  addr.PhysAddr = 0x1000
	kernelImageAddress  addr.PhysAddr = 0x2000
	firstUsableAddress  addr.PhysAddr = 0x10_0000
	minimumMemorySize                 = uint64(firstUsableAddress) + addr.PageSize
)

// MachineOptions configures NewMachine. The zero value is a usable machine.
type MachineOptions struct {
	// MemorySize is the amount of physical memory in bytes. Defaults to DefaultMemorySize.
	MemorySize uint64
	// PhysicalMemoryOffset is where physical memory is mapped in the virtual address space.
	// Defaults to DefaultPhysicalMemoryOffset.
	PhysicalMemoryOffset addr.VirtAddr
	// MemoryMap replaces the generated firmware memory map. It must still mark the level 4
	// table frame at 0x1000 as something other than Usable.
	MemoryMap boot.MemoryMap
}

// Machine is a simulated computer: RAM, one CPU and the devices the kernel core talks to
type Machine struct {
	RAM      *RAM
	CPU      *CPU
	PIC      *PIC
	Keyboard *Keyboard
	Timer    *Timer

	info boot.Info
}

func NewMachine(options MachineOptions) (*Machine, error) {
	if options.MemorySize == 0 {
		options.MemorySize = DefaultMemorySize
	}
	if options.PhysicalMemoryOffset == 0 {
		options.PhysicalMemoryOffset = DefaultPhysicalMemoryOffset
	}

	if options.MemorySize < minimumMemorySize {
		return nil, errors.Newf("machine needs at least %d bytes of memory, got %d", minimumMemorySize, options.MemorySize)
	}

	memoryMap := options.MemoryMap
	if memoryMap == nil {
		memoryMap = defaultMemoryMap(options.MemorySize)
	}
	if err := memoryMap.Validate(); err != nil {
		return nil, err
	}

	ram, err := NewRAM(options.MemorySize, options.PhysicalMemoryOffset)
	if err != nil {
		return nil, err
	}

	cpu := NewCPU(addr.FrameContaining(level4TableAddress))
	pic := NewPIC(cpu)

	return &Machine{
		RAM:      ram,
		CPU:      cpu,
		PIC:      pic,
		Keyboard: NewKeyboard(pic, KeyboardVector),
		Timer:    NewTimer(pic, TimerVector),
		info: boot.Info{
			PhysicalMemoryOffset: options.PhysicalMemoryOffset,
			MemoryMap:            memoryMap,
		},
	}, nil
}

func defaultMemoryMap(size uint64) boot.MemoryMap {
	end := addr.PhysAddr(size &^ (addr.PageSize - 1))
	return boot.MemoryMap{
		{Start: 0, End: level4TableAddress, Kind: boot.FrameZero},
		{Start: level4TableAddress, End: kernelImageAddress, Kind: boot.PageTable},
		{Start: kernelImageAddress, End: firstUsableAddress, Kind: boot.Kernel},
		{Start: firstUsableAddress, End: end, Kind: boot.Usable},
	}
}

// BootInfo returns what the bootloader would hand the kernel on this machine
func (m *Machine) BootInfo() boot.Info {
	return boot.Info{
		PhysicalMemoryOffset: m.info.PhysicalMemoryOffset,
		MemoryMap:            append(boot.MemoryMap(nil), m.info.MemoryMap...),
	}
}

func (m *Machine) Hardware() hal.Machine {
	return hal.Machine{
		CPU:          m.CPU,
		Memory:       m.RAM,
		Interrupts:   m.CPU,
		Controller:   m.PIC,
		KeyboardData: m.Keyboard,
	}
}

// Close stops the CPU and releases the machine's memory
func (m *Machine) Close() error {
	m.CPU.Stop()
	return m.RAM.Close()
}
