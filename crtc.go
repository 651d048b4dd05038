package kaypro

// CRTC is a Motorola/Rockwell SY6545 register file driving the Kaypro's
// 24x80 text screen, plus the transparent-memory-addressing extension
// (registers 18/19/31) the Kaypro ROM uses to poke individual VRAM cells
// without bank-switching the main address space.
//
// The 4 KiB VRAM is split into a character plane (0x000-0x7FF) and an
// attribute plane (0x800-0xFFF): the screen renderer reads both to draw
// reverse/dim/blink/underline text.
type CRTC struct {
	regs     [20]byte
	selected byte // 5-bit register pointer; 31 selects the strobe register

	vram      []byte
	vramDirty bool

	updateReady bool
	vrtCounter  int

	windowAddr int // port 0x1E's independent auto-incrementing cursor
}

const (
	crtcRegCursorHi     = 10
	crtcRegStartAddrHi  = 12
	crtcRegStartAddrLo  = 13
	crtcRegCursorAddrHi = 14
	crtcRegCursorAddrLo = 15
	crtcRegUpdateAddrHi = 18
	crtcRegUpdateAddrLo = 19
	crtcRegStrobe       = 31
)

func NewCRTC(vramSize int) *CRTC {
	return &CRTC{vram: make([]byte, vramSize)}
}

func (c *CRTC) Reset() {
	for i := range c.regs {
		c.regs[i] = 0
	}
	c.selected = 0
	c.updateReady = false
	c.windowAddr = 0
}

// SelectRegister implements the port 0x1C write: latch which register R0-R19
// or the R31 strobe subsequent data-port accesses address. Selecting R31
// sets update-ready briefly (cleared once the host has acted on it via a
// status read or by selecting something else).
func (c *CRTC) SelectRegister(v byte) {
	c.selected = v & 0x1F
	c.updateReady = c.selected == crtcRegStrobe
}

// Status implements the port 0x1C read: Update-Ready in bit 7, Vertical
// Retrace phase in bit 5. VRT is a free-running phase the screen refresh
// doesn't otherwise drive; real firmware polls it as a coarse frame-sync
// signal, so a simple counter toggling over a fixed period is sufficient.
func (c *CRTC) Status() byte {
	var v byte
	if c.updateReady {
		v |= crtcStatusUR
		c.updateReady = false
	}
	c.vrtCounter++
	if c.vrtCounter%256 < 16 {
		v |= crtcStatusVRT
	}
	return v
}

func (c *CRTC) updateAddr() int {
	return int(c.regs[crtcRegUpdateAddrHi])<<8 | int(c.regs[crtcRegUpdateAddrLo])
}

func (c *CRTC) setUpdateAddr(addr int) {
	addr &= 0xFFF
	c.regs[crtcRegUpdateAddrHi] = byte(addr >> 8)
	c.regs[crtcRegUpdateAddrLo] = byte(addr)
}

// Write implements the port 0x1D (register data) write. R18/R19 writes
// auto-advance the register pointer to the other of the pair, so the host
// can emit the hi/lo byte pair back to back without re-selecting. Writing
// R31 does not touch VRAM directly; it increments the transparent-address
// latch, matching the real CRTC's "strobe" semantics.
func (c *CRTC) Write(v byte) {
	switch c.selected {
	case crtcRegUpdateAddrHi:
		c.regs[crtcRegUpdateAddrHi] = v & 0x07
		c.selected = crtcRegUpdateAddrLo
	case crtcRegUpdateAddrLo:
		c.regs[crtcRegUpdateAddrLo] = v
		c.selected = crtcRegUpdateAddrHi
	case crtcRegStrobe:
		c.setUpdateAddr(c.updateAddr() + 1)
	default:
		if int(c.selected) < len(c.regs) {
			c.regs[c.selected] = v
		}
	}
}

// Read implements the port 0x1D (register value) read.
func (c *CRTC) Read() byte {
	switch c.selected {
	case crtcRegStrobe:
		c.setUpdateAddr(c.updateAddr() + 1)
		return 0
	default:
		if int(c.selected) < len(c.regs) {
			return c.regs[c.selected]
		}
		return 0
	}
}

// WriteVidMem implements the port 0x1F write: a VRAM store at the
// transparent address is only honored while R31 is the selected register
// (the guardrail against stray CRTC activity corrupting VRAM). The address
// latch auto-increments after every honored VIDMEM access; a write made
// while another register is selected leaves the latch unchanged.
func (c *CRTC) WriteVidMem(v byte) {
	if c.selected != crtcRegStrobe {
		return
	}
	addr := c.updateAddr()
	if addr >= 0 && addr < len(c.vram) {
		c.vram[addr] = v
		c.vramDirty = true
	}
	c.setUpdateAddr(addr + 1)
}

// ReadVidMem implements the port 0x1F read, symmetric with WriteVidMem.
func (c *CRTC) ReadVidMem() byte {
	if c.selected != crtcRegStrobe {
		return 0xFF
	}
	addr := c.updateAddr()
	var v byte
	if addr >= 0 && addr < len(c.vram) {
		v = c.vram[addr]
	}
	c.setUpdateAddr(addr + 1)
	return v
}

// WriteWindow / ReadWindow implement port 0x1E, an alternate VRAM access
// window with its own auto-incrementing cursor, independent of the R18/R19
// transparent-addressing latch.
func (c *CRTC) WriteWindow(v byte) {
	if c.windowAddr >= 0 && c.windowAddr < len(c.vram) {
		c.vram[c.windowAddr] = v
		c.vramDirty = true
	}
	c.windowAddr = (c.windowAddr + 1) & 0xFFF
}

func (c *CRTC) ReadWindow() byte {
	var v byte
	if c.windowAddr >= 0 && c.windowAddr < len(c.vram) {
		v = c.vram[c.windowAddr]
	}
	c.windowAddr = (c.windowAddr + 1) & 0xFFF
	return v
}

// SetUpdateStrobe exists only so older call sites (and tests) can force the
// R31 gate open directly without going through the port sequence. Passing
// false leaves the current register selection unchanged.
func (c *CRTC) SetUpdateStrobe(on bool) {
	if on {
		c.selected = crtcRegStrobe
	}
}

// StartAddress is (R12<<8)|R13, the top-left corner of the 24x80 display
// window into VRAM's character plane.
func (c *CRTC) StartAddress() int {
	return int(c.regs[crtcRegStartAddrHi])<<8 | int(c.regs[crtcRegStartAddrLo])
}

// CursorPosition returns the linear VRAM offset of the hardware cursor.
func (c *CRTC) CursorPosition() int {
	return int(c.regs[crtcRegCursorAddrHi])<<8 | int(c.regs[crtcRegCursorAddrLo])
}

// CursorMode decodes R10 bits 6:5: 0 steady, 1 invisible, 2/3 blink.
func (c *CRTC) CursorMode() int {
	return int(c.regs[crtcRegCursorHi]>>5) & 0x03
}

// VRAM exposes the backing character+attribute plane for the screen renderer.
func (c *CRTC) VRAM() []byte { return c.vram }

// TakeDirty reports and clears the VRAM-modified flag.
func (c *CRTC) TakeDirty() bool {
	d := c.vramDirty
	c.vramDirty = false
	return d
}

// ReadVRAM / WriteVRAM are direct mapped-memory-window accessors, used by
// models whose video bank maps straight onto this same VRAM array instead
// of going through the transparent-addressing ports.
func (c *CRTC) ReadVRAM(addr int) byte {
	if addr < 0 || addr >= len(c.vram) {
		return 0xFF
	}
	return c.vram[addr]
}

func (c *CRTC) WriteVRAM(addr int, v byte) {
	if addr < 0 || addr >= len(c.vram) {
		return
	}
	c.vram[addr] = v
	c.vramDirty = true
}
