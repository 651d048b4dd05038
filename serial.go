package kaypro

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

// SerialPort connects SIO channel A to a real host device (a tty, a pty, a
// USB-serial adapter) instead of the default disconnected state. Like
// Keyboard, it splits into a background reader goroutine pushing bytes into
// a mutex-protected queue and a drain call on the main thread, so the
// SIOChannel itself is only ever touched from the main goroutine.
type SerialPort struct {
	f  *os.File
	fd int

	mu     sync.Mutex
	buf    []byte
	closed bool
}

// OpenSerialPort opens path (a tty device or similar) for the SIO to treat
// as its channel-A host connection.
func OpenSerialPort(path string) (*SerialPort, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open serial device %q", path)
	}
	return &SerialPort{f: f, fd: int(f.Fd())}, nil
}

// Close releases the underlying file.
func (s *SerialPort) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.f.Close()
}

// Pump starts the background reader filling the queue DrainRX drains and
// returns immediately; call DrainRX/DrainTX each refresh tick on the main
// thread to move bytes to/from the SIO channel.
func (s *SerialPort) Pump() {
	go s.readLoop()
}

func (s *SerialPort) readLoop() {
	var chunk [256]byte
	for {
		n, err := s.f.Read(chunk[:])
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
	}
}

// DrainRX moves bytes queued by the background reader into ch's RX FIFO;
// call once per main-loop refresh tick, from the same goroutine that drives
// the CPU, so the SIOChannel is never touched off the main thread.
func (s *SerialPort) DrainRX(ch *SIOChannel) {
	s.mu.Lock()
	raw := s.buf
	s.buf = nil
	s.mu.Unlock()
	for _, b := range raw {
		ch.PushRX(b)
	}
}

// DrainTX writes any byte the SIO channel has queued for transmission out to
// the host device, and refreshes the channel's sensed CTS/DCD modem lines.
func (s *SerialPort) DrainTX(ch *SIOChannel) {
	for {
		b, ok := ch.DrainTX()
		if !ok {
			break
		}
		s.f.Write([]byte{b})
	}
	ch.SyncModemLines(s.fd)
}
