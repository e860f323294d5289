package sim

import (
	"sync"

	"github.com/kcore-dev/kcore/hal"
)

const (
	// PICOffset is where the primary interrupt controller's lines begin in the vector space
	PICOffset uint8 = 32
	// SecondaryPICOffset is where the secondary interrupt controller's lines begin
	SecondaryPICOffset = PICOffset + 8

	TimerVector    = PICOffset
	KeyboardVector = PICOffset + 1
)

// PIC is a pair of chained interrupt controllers. A line that has been delivered stays in service
// and cannot fire again until the kernel acknowledges it.
type PIC struct {
	cpu *CPU

	lock      sync.Mutex
	inService map[uint8]bool
	eoiCount  map[uint8]int
	lost      int
}

var _ hal.InterruptController = &PIC{}

func NewPIC(cpu *CPU) *PIC {
	return &PIC{
		cpu:       cpu,
		inService: make(map[uint8]bool),
		eoiCount:  make(map[uint8]int),
	}
}

// Fire raises the vector on the CPU unless the line is still waiting for an end-of-interrupt, in
// which case the interrupt is lost. It returns whether the interrupt was delivered.
func (p *PIC) Fire(vector uint8) bool {
	p.lock.Lock()
	if p.inService[vector] {
		p.lost++
		p.lock.Unlock()
		return false
	}
	p.inService[vector] = true
	p.lock.Unlock()

	if !p.cpu.Raise(vector) {
		// The CPU is off and no handler will acknowledge the line
		p.lock.Lock()
		delete(p.inService, vector)
		p.lock.Unlock()
		return false
	}
	return true
}

// InService reports whether the vector was delivered and has not been acknowledged yet
func (p *PIC) InService(vector uint8) bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.inService[vector]
}

func (p *PIC) NotifyEndOfInterrupt(vector uint8) {
	p.lock.Lock()
	defer p.lock.Unlock()

	delete(p.inService, vector)
	p.eoiCount[vector]++
}

// EndOfInterruptCount returns how many times the kernel acknowledged the vector
func (p *PIC) EndOfInterruptCount(vector uint8) int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.eoiCount[vector]
}

// Lost returns how many interrupts were discarded because their line was still in service
func (p *PIC) Lost() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.lost
}
