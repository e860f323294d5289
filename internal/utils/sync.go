package utils

import (
	"sync"

	"github.com/kcore-dev/kcore/hal"
)

// InterruptMutex is a mutex that also masks interrupts on CPU for as long as it is held. Code that
// runs in interrupt context can never wait on a lock held by the code it preempted, so any state
// that an interrupt handler might reach must be guarded this way. When CPU is nil, only the mutex
// is used. When UseMutex is false, only interrupts are masked, which is enough on a single core
// where nothing else can run while interrupts are off.
type InterruptMutex struct {
	CPU      hal.CPU
	Mutex    sync.Mutex
	UseMutex bool

	restoreInterrupts bool
}

func (m *InterruptMutex) Lock() {
	enabled := m.CPU != nil && m.CPU.InterruptsEnabled()
	if enabled {
		m.CPU.DisableInterrupts()
	}

	if m.UseMutex {
		m.Mutex.Lock()
	}

	m.restoreInterrupts = enabled
}

func (m *InterruptMutex) Unlock() {
	restore := m.restoreInterrupts
	m.restoreInterrupts = false

	if m.UseMutex {
		m.Mutex.Unlock()
	}

	if restore {
		m.CPU.EnableInterrupts()
	}
}

// WithoutInterrupts runs fn with interrupts masked, restoring the previous interrupt state afterward
func WithoutInterrupts(cpu hal.CPU, fn func()) {
	enabled := cpu.InterruptsEnabled()
	if enabled {
		cpu.DisableInterrupts()
		defer cpu.EnableInterrupts()
	}

	fn()
}
