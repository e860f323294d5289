// Package hal describes the hardware the kernel core runs on. Every register read, privileged
// instruction and physical memory access made by the core goes through one of these interfaces,
// so that the core can be driven by real hardware glue or by the simulated machine in hal/sim.
package hal

import (
	"github.com/kcore-dev/kcore/addr"
)

//go:generate mockgen -source hal.go -destination mocks/hal.go -package mock_hal

// CPU exposes the privileged processor operations the memory manager and executor depend on
type CPU interface {
	// ReadPageTableBase returns the frame holding the active level 4 page table (CR3)
	ReadPageTableBase() addr.Frame
	// InvalidatePage discards any cached translation for the page containing the address (invlpg)
	InvalidatePage(address addr.VirtAddr)

	// DisableInterrupts masks maskable interrupts (cli)
	DisableInterrupts()
	// EnableInterrupts unmasks maskable interrupts (sti)
	EnableInterrupts()
	// InterruptsEnabled reports the current state of the interrupt flag
	InterruptsEnabled() bool
	// EnableInterruptsAndHalt must be called with interrupts disabled. It re-enables interrupts and
	// suspends the processor as a single step (sti; hlt), so an interrupt that became pending while
	// interrupts were disabled is guaranteed to end the halt. It returns once an interrupt has been
	// handled, with interrupts enabled.
	EnableInterruptsAndHalt()
	// Halt suspends the processor until the next interrupt without touching the interrupt flag
	Halt()
}

// PhysicalMemory is the linear mapping of all physical memory that the bootloader establishes
// at a fixed virtual offset. It is the only way kernel code reaches a physical frame's contents.
type PhysicalMemory interface {
	// Offset is the virtual address at which physical address zero is mapped
	Offset() addr.VirtAddr
	// Size is the number of bytes of physical memory reachable through the mapping
	Size() uint64
	// Frame returns the 4KiB of memory backing the provided frame. The returned array
	// aliases physical memory; writes are visible to every other view of the frame.
	Frame(frame addr.Frame) (*[addr.PageSize]byte, error)
}

// Port is an 8-bit I/O port
type Port interface {
	Read() uint8
	Write(value uint8)
}

// InterruptController acknowledges hardware interrupts so the line can fire again
type InterruptController interface {
	NotifyEndOfInterrupt(vector uint8)
}

// InterruptHandler runs in interrupt context. It must not block, allocate from the kernel heap,
// or take any lock that foreground code holds with interrupts enabled.
type InterruptHandler func(vector uint8)

// InterruptTable routes hardware interrupt vectors to handlers
type InterruptTable interface {
	SetHandler(vector uint8, handler InterruptHandler)
}

// Machine bundles the hardware the kernel is handed at boot
type Machine struct {
	CPU        CPU
	Memory     PhysicalMemory
	Interrupts InterruptTable
	Controller InterruptController
	// KeyboardData is the PS/2 controller's data port (0x60)
	KeyboardData Port
}
