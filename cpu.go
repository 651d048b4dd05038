package kaypro

import z80lib "github.com/remogatto/z80"

// CPU wraps the external Z80 instruction-decoder library behind the narrow
// surface the run loop needs: step one instruction, inspect/force PC, read
// HALT, and deliver NMI/IM2 interrupts. Decoding full Z80 semantics is an
// explicit non-goal of this system (spec.md §1: "the Z80 instruction
// decoder, obtained as an external CPU library providing a Machine bus
// interface") — this file is exactly that interface, the library does the
// decoding.
type CPU struct {
	core   *z80lib.Z80
	bus    Z80Bus
	tracer *Tracer
}

// SetTracer wires (or clears, with nil) the per-instruction PC trace printed
// before each Step, toggled by the CLI's --cpu-trace flag / the F8 command.
func (c *CPU) SetTracer(t *Tracer) { c.tracer = t }

// cpuMemory adapts Z80Bus to the library's MemoryAccessor contract. This
// machine has no memory contention to model, so the timing hooks are no-ops.
type cpuMemory struct{ bus Z80Bus }

func (m cpuMemory) ReadByte(addr uint16) byte             { return m.bus.ReadMem(addr) }
func (m cpuMemory) ReadByteInternal(addr uint16) byte     { return m.bus.ReadMem(addr) }
func (m cpuMemory) WriteByte(addr uint16, v byte)         { m.bus.WriteMem(addr, v) }
func (m cpuMemory) WriteByteInternal(addr uint16, v byte) { m.bus.WriteMem(addr, v) }
func (m cpuMemory) Read(addr uint16) byte                 { return m.bus.ReadMem(addr) }
func (m cpuMemory) Write(addr uint16, v byte)             { m.bus.WriteMem(addr, v) }

func (m cpuMemory) Read16(addr uint16) uint16 {
	return uint16(m.bus.ReadMem(addr)) | uint16(m.bus.ReadMem(addr+1))<<8
}
func (m cpuMemory) Write16(addr uint16, v uint16) {
	m.bus.WriteMem(addr, byte(v))
	m.bus.WriteMem(addr+1, byte(v>>8))
}

func (m cpuMemory) ContendRead(addr uint16, time int)                        {}
func (m cpuMemory) ContendReadNoMreq(addr uint16, time int)                  {}
func (m cpuMemory) ContendReadNoMreq_loop(addr uint16, time int, count uint) {}
func (m cpuMemory) ContendWriteNoMreq(addr uint16, time int)                 {}
func (m cpuMemory) ContendWriteNoMreq_loop(addr uint16, time int, count uint) {}

// cpuPorts adapts Z80Bus to the library's PortAccessor contract. The Kaypro
// decodes only the low 8 bits of the port address, so the high byte the
// library passes through (normally the value of B/register-pair high byte
// during IN/OUT) is simply dropped.
type cpuPorts struct{ bus Z80Bus }

func (p cpuPorts) ReadPort(addr uint16) byte             { return p.bus.In(byte(addr)) }
func (p cpuPorts) ReadPortInternal(addr uint16) byte     { return p.bus.In(byte(addr)) }
func (p cpuPorts) WritePort(addr uint16, v byte)         { p.bus.Out(byte(addr), v) }
func (p cpuPorts) WritePortInternal(addr uint16, v byte) { p.bus.Out(byte(addr), v) }
func (p cpuPorts) ContendPortPreio(addr uint16)          {}
func (p cpuPorts) ContendPortPostio(addr uint16)         {}

// NewCPU constructs a CPU driving bus through the external Z80 core.
func NewCPU(bus Z80Bus) *CPU {
	core := z80lib.NewZ80(cpuMemory{bus}, cpuPorts{bus})
	core.Reset()
	return &CPU{core: core, bus: bus}
}

func (c *CPU) Reset() { c.core.Reset() }

// Step executes exactly one instruction and returns the T-states it took,
// for the run loop's clock-rate throttle.
func (c *CPU) Step() int {
	if c.tracer.Enabled() {
		c.tracer.Printf("PC=%04X SP=%04X", c.core.PC, c.core.SP)
	}
	before := c.core.Tstates
	c.core.DoOpcode()
	return c.core.Tstates - before
}

func (c *CPU) PC() uint16      { return c.core.PC }
func (c *CPU) SetPC(pc uint16) { c.core.PC = pc }
func (c *CPU) Halted() bool    { return c.core.Halted }

// TriggerNMI pushes PC, clears IFF1 (preserving IFF2 so a later RETN
// restores interrupt state correctly), and jumps to the fixed NMI vector
// 0x0066. The library's decoder never raises NMI on its own; the run loop
// owns the latch/deadline policy and calls this exactly once per delivery.
func (c *CPU) TriggerNMI() {
	c.core.Halted = false
	c.core.IFF1 = 0
	sp := c.core.SP - 2
	c.core.SP = sp
	c.bus.WriteMem(sp, byte(c.core.PC))
	c.bus.WriteMem(sp+1, byte(c.core.PC>>8))
	c.core.PC = 0x0066
}

// InjectIM2Interrupt delivers a Z80 IM2 vectored interrupt if the CPU
// currently has interrupts enabled: read the two bytes at (I<<8)|vectorLow
// to get the handler address, push PC, and jump there. Returns false
// (no-op) if IFF1 is currently clear, matching real maskable-interrupt
// masking.
func (c *CPU) InjectIM2Interrupt(vectorLow byte) bool {
	if c.core.IFF1 == 0 {
		return false
	}
	addr := uint16(c.core.I)<<8 | uint16(vectorLow)
	lo := c.bus.ReadMem(addr)
	hi := c.bus.ReadMem(addr + 1)
	handler := uint16(lo) | uint16(hi)<<8

	c.core.IFF1 = 0
	c.core.IFF2 = 0
	c.core.Halted = false
	sp := c.core.SP - 2
	c.core.SP = sp
	c.bus.WriteMem(sp, byte(c.core.PC))
	c.bus.WriteMem(sp+1, byte(c.core.PC>>8))
	c.core.PC = handler
	return true
}
