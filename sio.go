package kaypro

// SIOChannel is one channel (A or B) of a Z80-SIO, modeling the
// register-pointer protocol, RX FIFO with overrun latch, and modem control
// lines. The baudDivisor field is never written, so the baud rate has no
// effect.
type SIOChannel struct {
	wr       [8]byte // write registers WR0-WR7
	rr       [3]byte // read registers RR0-RR2

	wrPointer byte

	rxFIFO    []byte
	rxOverrun bool

	txReady bool
	lastTX  byte

	dtr, rts bool // asserted output lines
	cts, dcd bool // sensed input lines

	baudDivisor int

	// intPending latches once an IM2 interrupt has been raised for this
	// channel's Rx-available condition, suppressing re-firing until the
	// host drains the data port. Distinct from the CPU's own IFF1 masking;
	// grounded on kaypro_machine.rs's sio_int_pending flag.
	intPending bool
}

const sioRXFIFODepth = 3

func newSIOChannel() *SIOChannel {
	return &SIOChannel{txReady: true, rxFIFO: make([]byte, 0, sioRXFIFODepth)}
}

func (c *SIOChannel) Reset() {
	for i := range c.wr {
		c.wr[i] = 0
	}
	for i := range c.rr {
		c.rr[i] = 0
	}
	c.wrPointer = 0
	c.rxFIFO = c.rxFIFO[:0]
	c.rxOverrun = false
	c.txReady = true
	c.dtr, c.rts = false, false
}

// WriteControl implements the WR0 register-pointer dance: the first write
// after a pointer reset selects a register (low 3 bits, possibly combined
// with a WR0 command in bits 3-5); the next write deposits its value,
// except WR0 itself which both selects and commands in one write.
func (c *SIOChannel) WriteControl(v byte) {
	if c.wrPointer == 0 {
		reg := v & 0x07
		cmd := (v >> 3) & 0x07
		c.applyWR0Command(cmd)
		if reg == 0 {
			return
		}
		c.wrPointer = reg
		return
	}
	reg := c.wrPointer
	c.wrPointer = 0
	if int(reg) < len(c.wr) {
		c.wr[reg] = v
	}
	switch reg {
	case 5:
		c.dtr = v&0x80 != 0
		c.rts = v&0x02 != 0
	}
}

func (c *SIOChannel) applyWR0Command(cmd byte) {
	switch cmd {
	case 0x03: // reset RX CRC / error latch
		c.rxOverrun = false
		c.rr[1] &^= 0x38
	case 0x04: // channel reset
		c.Reset()
	case 0x05: // enable INT on next RX char
	}
}

// ReadControl reads the register last selected by WriteControl (RR0-RR2);
// RR1 carries the overrun/parity/framing error bits.
func (c *SIOChannel) ReadControl() byte {
	reg := c.wrPointer
	c.wrPointer = 0
	switch reg {
	case 0:
		return c.statusRR0()
	case 1:
		v := c.rr[1]
		if c.rxOverrun {
			v |= 0x20
		}
		return v
	case 2:
		return c.wr[2]
	default:
		return 0
	}
}

func (c *SIOChannel) statusRR0() byte {
	var v byte
	if len(c.rxFIFO) > 0 {
		v |= 0x01 // RX char available
	}
	if c.txReady {
		v |= 0x04 // TX buffer empty
	}
	if c.dcd {
		v |= 0x08
	}
	if c.cts {
		v |= 0x20
	}
	return v
}

// WriteData enqueues a transmit byte; in this emulation transmission is
// instantaneous (txReady never actually clears), matching a host serial
// port that drains far faster than the emulated baud rate.
func (c *SIOChannel) WriteData(v byte) {
	c.lastTX = v
	c.txReady = true
}

// PushRX delivers one received byte into the channel's small hardware
// FIFO. Once full, further bytes set the overrun latch and are dropped,
// matching the SIO's three-byte RX FIFO depth.
func (c *SIOChannel) PushRX(b byte) {
	if len(c.rxFIFO) >= sioRXFIFODepth {
		c.rxOverrun = true
		return
	}
	c.rxFIFO = append(c.rxFIFO, b)
}

// ReadData pops the oldest received byte, or 0 if the FIFO is empty. Reading
// the data port is also how the host acknowledges a pending IM2 interrupt.
func (c *SIOChannel) ReadData() byte {
	c.intPending = false
	if len(c.rxFIFO) == 0 {
		return 0
	}
	b := c.rxFIFO[0]
	c.rxFIFO = c.rxFIFO[1:]
	return b
}

func (c *SIOChannel) rxAvailable() bool { return len(c.rxFIFO) > 0 }

// SIO is a Z80-SIO/2 with two channels, sharing one IM2 interrupt vector
// table (WR2 is only meaningful on channel B on real hardware).
type SIO struct {
	A, B *SIOChannel
}

func NewSIO() *SIO {
	return &SIO{A: newSIOChannel(), B: newSIOChannel()}
}

func (s *SIO) Reset() {
	s.A.Reset()
	s.B.Reset()
}

// InterruptPending reports whether channel B — the keyboard channel, the
// only IM2 source on this hardware (spec.md §4.6) — has an unacknowledged
// Rx-available condition with WR1's Rx-interrupt mode (bits 4:3) enabled.
// Grounded on kaypro_machine.rs's sio_check_interrupt: setting intPending
// here is the latch that stops the run loop's poll cadence from re-issuing
// the same interrupt before the handler has drained the data port.
func (s *SIO) InterruptPending() bool {
	if s.B.wr[1]&0x18 == 0 {
		return false
	}
	if s.B.intPending {
		return false
	}
	if !s.B.rxAvailable() {
		return false
	}
	s.B.intPending = true
	return true
}

// Vector returns the IM2 vector byte: (WR2 & 0xF1) | 0x04 — the Channel-B
// Rx-Available encoding, per spec.md §4.6.
func (s *SIO) Vector() byte {
	return (s.B.wr[2] & 0xF1) | 0x04
}

// DrainTX returns and clears the most recently transmitted byte from a
// channel, for wiring to a host pty. Returns ok=false once there is nothing
// new to send.
func (c *SIOChannel) DrainTX() (byte, bool) {
	if !c.txReady {
		return 0, false
	}
	b := c.lastTX
	c.txReady = false
	return b, true
}
