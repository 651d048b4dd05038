package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSIOChannelRXFIFOOverrunLatch(t *testing.T) {
	c := newSIOChannel()
	c.PushRX('a')
	c.PushRX('b')
	c.PushRX('c')
	c.PushRX('d') // overflow

	c.wrPointer = 1
	rr1 := c.ReadControl()
	assert.NotEqual(t, byte(0), rr1&0x20, "overrun bit must be set")

	assert.Equal(t, byte('a'), c.ReadData())
	assert.Equal(t, byte('b'), c.ReadData())
	assert.Equal(t, byte('c'), c.ReadData())
	assert.Equal(t, byte(0), c.ReadData())
}

func TestSIOChannelWR5SetsDTRAndRTS(t *testing.T) {
	c := newSIOChannel()
	c.WriteControl(0x05) // select WR5
	c.WriteControl(0x82) // DTR + RTS
	assert.True(t, c.dtr)
	assert.True(t, c.rts)
}

func TestSIOVectorIsWR2MaskedWithRxAvailableBits(t *testing.T) {
	s := NewSIO()
	s.B.wr[2] = 0xE0
	assert.Equal(t, byte(0xE4), s.Vector(), "(WR2 & 0xF1) | 0x04")

	s.B.wr[2] = 0xFF
	assert.Equal(t, byte(0xF5), s.Vector())
}

func TestSIOInterruptPendingOnlyChannelBGatedByWR1(t *testing.T) {
	s := NewSIO()
	s.A.PushRX('x') // channel A is never an IM2 source on this hardware
	assert.False(t, s.InterruptPending())

	s.B.PushRX('k')
	assert.False(t, s.InterruptPending(), "WR1 Rx-interrupt mode (bits 4:3) not yet enabled")

	s.B.wr[1] = 0x08 // Rx INT on first char
	assert.True(t, s.InterruptPending())
	assert.False(t, s.InterruptPending(), "latched until the host reads the data port")

	s.B.ReadData()
	s.B.PushRX('k')
	assert.True(t, s.InterruptPending(), "re-armed after the handler drains the data port")
}

func TestSIOStatusRR0ReportsRXAvailableAndTXEmpty(t *testing.T) {
	c := newSIOChannel()
	assert.Equal(t, byte(0x04), c.statusRR0())
	c.PushRX('z')
	assert.Equal(t, byte(0x05), c.statusRR0())
}
