package sim

import (
	"sync"
	"sync/atomic"

	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/hal"
)

// CPU is a single simulated processor core. The code that drives the kernel (the foreground) runs
// on whichever goroutine calls into the kernel, and devices deliver interrupts from their own
// goroutines through Raise.
//
// The interrupt flag is modeled as a gate. The foreground holds the gate for as long as interrupts
// are disabled, and a device holds it for as long as a handler runs, so a handler never observes
// the foreground in the middle of a critical section.
type CPU struct {
	gate sync.Mutex
	cond *sync.Cond
	// delivered counts handled interrupts and is guarded by gate
	delivered uint64
	enabled   atomic.Bool
	stopped   atomic.Bool
	stop      chan struct{}
	stopOnce  sync.Once

	pageTableBase atomic.Uint64
	handlers      [256]atomic.Pointer[hal.InterruptHandler]

	tlbLock       sync.Mutex
	invalidations []addr.VirtAddr
	unhandled     atomic.Uint64
}

var _ hal.CPU = &CPU{}
var _ hal.InterruptTable = &CPU{}

// NewCPU creates a processor that starts with interrupts disabled and the provided frame loaded
// as the level 4 page table
func NewCPU(level4 addr.Frame) *CPU {
	c := &CPU{
		stop: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.gate)
	c.pageTableBase.Store(uint64(level4.Start()))
	c.gate.Lock()

	return c
}

func (c *CPU) ReadPageTableBase() addr.Frame {
	return addr.FrameContaining(addr.PhysAddr(c.pageTableBase.Load()))
}

// LoadPageTableBase replaces the active level 4 table (mov cr3)
func (c *CPU) LoadPageTableBase(level4 addr.Frame) {
	c.pageTableBase.Store(uint64(level4.Start()))
}

func (c *CPU) InvalidatePage(address addr.VirtAddr) {
	c.tlbLock.Lock()
	defer c.tlbLock.Unlock()

	c.invalidations = append(c.invalidations, address.AlignDown(addr.PageSize))
}

// Invalidations returns every page whose translation has been invalidated, in order
func (c *CPU) Invalidations() []addr.VirtAddr {
	c.tlbLock.Lock()
	defer c.tlbLock.Unlock()

	return append([]addr.VirtAddr(nil), c.invalidations...)
}

func (c *CPU) DisableInterrupts() {
	if !c.enabled.Load() {
		return
	}

	c.gate.Lock()
	c.enabled.Store(false)
}

func (c *CPU) EnableInterrupts() {
	if c.enabled.Load() {
		return
	}

	c.enabled.Store(true)
	c.gate.Unlock()
}

func (c *CPU) InterruptsEnabled() bool {
	return c.enabled.Load()
}

func (c *CPU) EnableInterruptsAndHalt() {
	if c.enabled.Load() {
		panic("EnableInterruptsAndHalt called with interrupts enabled")
	}

	// The gate is still held here, so no device can deliver between the caller's last check and
	// the wait below. cond.Wait releases the gate atomically with going to sleep.
	seen := c.delivered
	for c.delivered == seen && !c.stopped.Load() {
		c.cond.Wait()
	}

	c.enabled.Store(true)
	c.gate.Unlock()
}

func (c *CPU) Halt() {
	if !c.enabled.Load() {
		// Nothing can wake a processor halted with interrupts masked
		<-c.stop
		return
	}

	c.gate.Lock()
	seen := c.delivered
	for c.delivered == seen && !c.stopped.Load() {
		c.cond.Wait()
	}
	c.gate.Unlock()
}

func (c *CPU) SetHandler(vector uint8, handler hal.InterruptHandler) {
	if handler == nil {
		c.handlers[vector].Store(nil)
		return
	}
	c.handlers[vector].Store(&handler)
}

// Raise delivers an interrupt on the provided vector. It blocks while the foreground has
// interrupts disabled and returns once the handler has run. Interrupts raised after Stop are
// discarded.
func (c *CPU) Raise(vector uint8) bool {
	if c.stopped.Load() {
		return false
	}

	c.gate.Lock()
	defer c.gate.Unlock()

	if c.stopped.Load() {
		return false
	}

	handler := c.handlers[vector].Load()
	if handler == nil {
		c.unhandled.Add(1)
	} else {
		(*handler)(vector)
	}

	c.delivered++
	c.cond.Broadcast()
	return true
}

// Unhandled returns the number of interrupts that arrived on a vector with no handler installed
func (c *CPU) Unhandled() uint64 {
	return c.unhandled.Load()
}

// Stop powers the processor off. Any halt in progress returns and later interrupts are discarded.
func (c *CPU) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stop)

		// A foreground halted with interrupts enabled is parked on cond and needs the gate to
		// notice. If the foreground is running with interrupts disabled instead, it will see
		// stopped before it next waits.
		go func() {
			c.gate.Lock()
			c.cond.Broadcast()
			c.gate.Unlock()
		}()
	})
}
