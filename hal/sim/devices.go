package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kcore-dev/kcore/hal"
)

// KeyboardDataPort is the PS/2 controller's data port
const KeyboardDataPort uint16 = 0x60

// Keyboard is a PS/2 keyboard behind its controller. Each scancode is latched into the data port
// and announced on the keyboard line; the next scancode is not latched until the previous
// interrupt has been handled.
type Keyboard struct {
	pic    *PIC
	vector uint8

	press sync.Mutex
	latch atomic.Uint32
}

var _ hal.Port = &Keyboard{}

func NewKeyboard(pic *PIC, vector uint8) *Keyboard {
	return &Keyboard{pic: pic, vector: vector}
}

// Press latches a scancode and raises the keyboard interrupt. It returns false if the
// interrupt was not delivered.
func (k *Keyboard) Press(scancode uint8) bool {
	k.press.Lock()
	defer k.press.Unlock()

	k.latch.Store(uint32(scancode))
	return k.pic.Fire(k.vector)
}

func (k *Keyboard) Read() uint8 {
	return uint8(k.latch.Load())
}

// Write sends a command byte to the keyboard. The simulated keyboard accepts no commands.
func (k *Keyboard) Write(value uint8) {}

// Timer is the programmable interval timer
type Timer struct {
	pic    *PIC
	vector uint8
	ticks  atomic.Uint64
}

func NewTimer(pic *PIC, vector uint8) *Timer {
	return &Timer{pic: pic, vector: vector}
}

// Run fires the timer line every interval until ctx is done
func (t *Timer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.pic.Fire(t.vector) {
				t.ticks.Add(1)
			}
		}
	}
}

// Ticks returns the number of timer interrupts delivered
func (t *Timer) Ticks() uint64 {
	return t.ticks.Load()
}
