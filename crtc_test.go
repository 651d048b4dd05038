package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestCRTCTransparentVRAMWrite follows spec.md §8 scenario 5: select R18,
// write the hi/lo address bytes (auto-advancing the pointer between them),
// select R31, then write VIDMEM. Only that last write should land in VRAM.
func TestCRTCTransparentVRAMWrite(t *testing.T) {
	c := NewCRTC(4096)
	c.SelectRegister(crtcRegUpdateAddrHi) // OUT 0x1C, 0x12
	c.Write(0x02)                         // OUT 0x1D, 0x02 -> pointer advances to R19
	c.Write(0x34)                         // OUT 0x1D, 0x34 -> address = 0x0234
	c.SelectRegister(crtcRegStrobe)       // OUT 0x1C, 0x1F
	c.WriteVidMem(0x41)                   // OUT 0x1F, 0x41

	assert.Equal(t, byte(0x41), c.ReadVRAM(0x234))
	assert.True(t, c.TakeDirty())

	c.SelectRegister(0x10) // OUT 0x1C, 0x10: R16 is not R31
	c.WriteVidMem(0x42)
	assert.Equal(t, byte(0x41), c.ReadVRAM(0x234), "VRAM must be unchanged when R31 isn't selected")
}

func TestCRTCVidMemAutoIncrements(t *testing.T) {
	c := NewCRTC(4096)
	c.SelectRegister(crtcRegUpdateAddrHi)
	c.Write(0)
	c.Write(100)
	c.SelectRegister(crtcRegStrobe)

	c.WriteVidMem('A')
	c.WriteVidMem('B')
	c.WriteVidMem('C')

	assert.Equal(t, byte('A'), c.ReadVRAM(100))
	assert.Equal(t, byte('B'), c.ReadVRAM(101))
	assert.Equal(t, byte('C'), c.ReadVRAM(102))
}

func TestCRTCCursorPosition(t *testing.T) {
	c := NewCRTC(4096)
	c.SelectRegister(crtcRegCursorAddrHi)
	c.Write(0x01)
	c.SelectRegister(crtcRegCursorAddrLo)
	c.Write(0x40)
	assert.Equal(t, 0x0140, c.CursorPosition())
}

func TestCRTCStatusUpdateReady(t *testing.T) {
	c := NewCRTC(4096)
	c.SelectRegister(crtcRegStrobe)
	assert.NotZero(t, c.Status()&crtcStatusUR)
	assert.Zero(t, c.Status()&crtcStatusUR, "UR clears after being read once")
}
