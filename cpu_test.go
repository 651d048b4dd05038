package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeBus is a bare Z80Bus backed by a flat 64KiB array and an 8-bit port
// space, enough to drive the CPU adapter without pulling in a full Machine.
type fakeBus struct {
	mem   [0x10000]byte
	ports [0x100]byte
}

func (b *fakeBus) ReadMem(addr uint16) byte         { return b.mem[addr] }
func (b *fakeBus) WriteMem(addr uint16, v byte)     { b.mem[addr] = v }
func (b *fakeBus) In(port byte) byte                { return b.ports[port] }
func (b *fakeBus) Out(port byte, v byte)            { b.ports[port] = v }

func TestCPUStepExecutesNOP(t *testing.T) {
	bus := &fakeBus{}
	bus.mem[0] = 0x00 // NOP
	cpu := NewCPU(bus)

	tstates := cpu.Step()
	assert.Greater(t, tstates, 0)
	assert.Equal(t, uint16(1), cpu.PC())
}

func TestCPUSetPC(t *testing.T) {
	bus := &fakeBus{}
	cpu := NewCPU(bus)
	cpu.SetPC(0x1234)
	assert.Equal(t, uint16(0x1234), cpu.PC())
}

func TestCPUTriggerNMIPushesPCAndJumps(t *testing.T) {
	bus := &fakeBus{}
	cpu := NewCPU(bus)
	cpu.SetPC(0x5000)

	cpu.TriggerNMI()

	assert.Equal(t, uint16(0x0066), cpu.PC())
	lo := bus.ReadMem(cpu.core.SP)
	hi := bus.ReadMem(cpu.core.SP + 1)
	assert.Equal(t, uint16(0x5000), uint16(lo)|uint16(hi)<<8)
}

func TestCPUInjectIM2InterruptRespectsIFF1(t *testing.T) {
	bus := &fakeBus{}
	cpu := NewCPU(bus)
	cpu.core.IFF1 = 0

	assert.False(t, cpu.InjectIM2Interrupt(0x00), "masked interrupts must not fire")
}

func TestCPUInjectIM2InterruptJumpsToVector(t *testing.T) {
	bus := &fakeBus{}
	cpu := NewCPU(bus)
	cpu.SetPC(0x4000)
	cpu.core.IFF1 = 1
	cpu.core.I = 0xF0
	bus.mem[0xF000] = 0x00 // handler low
	bus.mem[0xF001] = 0x60 // handler high -> 0x6000

	fired := cpu.InjectIM2Interrupt(0x00)

	assert.True(t, fired)
	assert.Equal(t, uint16(0x6000), cpu.PC())
	assert.Equal(t, byte(0), cpu.core.IFF1)
}
