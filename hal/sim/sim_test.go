package sim_test

import (
	"sync"
	"testing"
	"time"

	"github.com/kcore-dev/kcore/addr"
	"github.com/kcore-dev/kcore/boot"
	"github.com/kcore-dev/kcore/hal/sim"
	"github.com/stretchr/testify/require"
)

func TestRAMFrames(t *testing.T) {
	ram, err := sim.NewRAM(3*addr.PageSize-1, 0x1000_0000_0000)
	require.NoError(t, err)
	defer func() { require.NoError(t, ram.Close()) }()

	require.Equal(t, 3*addr.PageSize, ram.Size())

	frame, err := ram.Frame(addr.FrameContaining(0x2000))
	require.NoError(t, err)
	require.Equal(t, byte(0), frame[0])
	frame[17] = 0xab

	again, err := ram.Frame(addr.FrameContaining(0x2000))
	require.NoError(t, err)
	require.Equal(t, byte(0xab), again[17])

	_, err = ram.Frame(addr.FrameContaining(0x3000))
	require.Error(t, err)
}

func TestMachineBootInfo(t *testing.T) {
	machine, err := sim.NewMachine(sim.MachineOptions{MemorySize: 2 * 1024 * 1024})
	require.NoError(t, err)
	defer func() { require.NoError(t, machine.Close()) }()

	info := machine.BootInfo()
	require.Equal(t, sim.DefaultPhysicalMemoryOffset, info.PhysicalMemoryOffset)
	require.NoError(t, info.MemoryMap.Validate())

	var usable uint64
	for region := range info.MemoryMap.Regions(boot.Usable) {
		usable += region.Size()
	}
	require.Equal(t, uint64(1024*1024), usable)

	require.Equal(t, addr.FrameContaining(0x1000), machine.CPU.ReadPageTableBase())
	require.False(t, machine.CPU.InterruptsEnabled())

	_, err = sim.NewMachine(sim.MachineOptions{MemorySize: 4096})
	require.Error(t, err)
}

func TestInterruptsWaitForGate(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	var lock sync.Mutex
	var handled []uint8
	cpu.SetHandler(40, func(vector uint8) {
		lock.Lock()
		defer lock.Unlock()
		handled = append(handled, vector)
	})

	done := make(chan bool)
	go func() {
		done <- cpu.Raise(40)
	}()

	// Interrupts start disabled, so the handler cannot run yet
	select {
	case <-done:
		t.Fatal("interrupt was delivered while interrupts were disabled")
	case <-time.After(20 * time.Millisecond):
	}

	cpu.EnableInterrupts()
	require.True(t, <-done)

	lock.Lock()
	require.Equal(t, []uint8{40}, handled)
	lock.Unlock()

	require.True(t, cpu.Raise(41))
	require.Equal(t, uint64(1), cpu.Unhandled())
}

func TestEnableInterruptsAndHaltDoesNotLoseWakeups(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	pic := sim.NewPIC(cpu)
	cpu.SetHandler(sim.TimerVector, func(vector uint8) {
		pic.NotifyEndOfInterrupt(vector)
	})

	for i := 0; i < 50; i++ {
		fired := make(chan struct{})
		go func() {
			defer close(fired)
			pic.Fire(sim.TimerVector)
		}()

		// The interrupt is raised while the foreground is still masked. Halting must return once
		// it is delivered instead of sleeping through it.
		cpu.EnableInterruptsAndHalt()
		require.True(t, cpu.InterruptsEnabled())
		<-fired
		cpu.DisableInterrupts()
	}

	require.Equal(t, 50, pic.EndOfInterruptCount(sim.TimerVector))
}

func TestPICHoldsLineUntilEndOfInterrupt(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()
	cpu.EnableInterrupts()

	pic := sim.NewPIC(cpu)
	keyboard := sim.NewKeyboard(pic, sim.KeyboardVector)

	var read []uint8
	cpu.SetHandler(sim.KeyboardVector, func(vector uint8) {
		read = append(read, keyboard.Read())
	})

	require.True(t, keyboard.Press(0x1e))
	require.False(t, keyboard.Press(0x1f))
	require.Equal(t, 1, pic.Lost())

	pic.NotifyEndOfInterrupt(sim.KeyboardVector)
	require.True(t, keyboard.Press(0x20))

	require.Equal(t, []uint8{0x1e, 0x20}, read)
}

func TestStopReleasesHalt(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))

	halted := make(chan struct{})
	go func() {
		defer close(halted)
		cpu.EnableInterruptsAndHalt()
	}()

	time.Sleep(10 * time.Millisecond)
	cpu.Stop()
	<-halted

	require.False(t, cpu.Raise(32))
}

func TestInvalidationsArePageAligned(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	defer cpu.Stop()

	cpu.InvalidatePage(0x4444_4444_0123)
	cpu.InvalidatePage(0x4444_4444_1000)

	require.Equal(t, []addr.VirtAddr{0x4444_4444_0000, 0x4444_4444_1000}, cpu.Invalidations())
}

func TestScancodes(t *testing.T) {
	scancodes, ok := sim.Scancodes('a')
	require.True(t, ok)
	require.Equal(t, []uint8{0x1e, 0x9e}, scancodes)

	scancodes, ok = sim.Scancodes('A')
	require.True(t, ok)
	require.Equal(t, []uint8{0x2a, 0x1e, 0x9e, 0xaa}, scancodes)

	scancodes, ok = sim.Scancodes('?')
	require.True(t, ok)
	require.Equal(t, []uint8{0x2a, 0x35, 0xb5, 0xaa}, scancodes)

	scancodes, ok = sim.Scancodes('\n')
	require.True(t, ok)
	require.Equal(t, []uint8{0x1c, 0x9c}, scancodes)

	_, ok = sim.Scancodes('é')
	require.False(t, ok)
}

func TestPICReleasesLineWhenCPUIsStopped(t *testing.T) {
	cpu := sim.NewCPU(addr.FrameContaining(0x1000))
	cpu.EnableInterrupts()

	pic := sim.NewPIC(cpu)
	cpu.SetHandler(sim.TimerVector, func(vector uint8) {})

	require.True(t, pic.Fire(sim.TimerVector))
	require.True(t, pic.InService(sim.TimerVector))
	pic.NotifyEndOfInterrupt(sim.TimerVector)

	cpu.Stop()

	require.False(t, pic.Fire(sim.TimerVector))
	require.False(t, pic.InService(sim.TimerVector))
	require.False(t, pic.Fire(sim.TimerVector))
	require.Equal(t, 0, pic.Lost())
}
