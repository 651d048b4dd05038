package kaypro

import (
	"golang.org/x/sys/unix"
)

// ModemLines reads a host tty's modem control lines (CTS/DCD) via the
// standard TIOCM ioctl, letting a channel wired to a real serial device
// reflect genuine handshake state instead of the always-clear-to-send
// default used for a bare pty.
func ModemLines(fd int) (cts, dcd bool, err error) {
	status, err := unix.IoctlGetInt(fd, unix.TIOCMGET)
	if err != nil {
		return false, false, err
	}
	return status&unix.TIOCM_CTS != 0, status&unix.TIOCM_CAR != 0, nil
}

// SyncModemLines updates a channel's sensed CTS/DCD bits from a host fd.
// Errors are ignored: a pty without real modem lines simply reports
// clear-to-send, which is the correct behavior for the common case.
func (c *SIOChannel) SyncModemLines(fd int) {
	cts, dcd, err := ModemLines(fd)
	if err != nil {
		c.cts, c.dcd = true, true
		return
	}
	c.cts, c.dcd = cts, dcd
}
