package kaypro

import (
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// KeyCommand is a host function-key command that doesn't produce a byte for
// the emulated keyboard FIFO but instead asks the harness/CLI loop to do
// something (toggle a trace, swap a disk, change speed, quit).
type KeyCommand int

const (
	CmdNone KeyCommand = iota
	CmdHelp
	CmdQuit
	CmdSelectDiskA
	CmdSelectDiskB
	CmdShowStatus
	CmdTraceCPU
	CmdSaveMemory
	CmdSetSpeed
)

// Keyboard captures raw host terminal input on a background reader thread
// (mirroring the SIO's serial-reader/shared-queue split: the reader pushes,
// the main loop drains) and translates escape sequences into either queued
// Commands or translated bytes destined for the SIO channel-B FIFO.
type Keyboard struct {
	fd       int
	oldState *term.State

	mu     sync.Mutex
	buf    []byte
	closed bool

	Commands []KeyCommand
}

// NewKeyboard puts the terminal into raw mode and starts the background
// reader. Call Close to restore the terminal on exit.
func NewKeyboard() (*Keyboard, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	k := &Keyboard{fd: fd, oldState: old}
	go k.readLoop()
	return k, nil
}

func (k *Keyboard) readLoop() {
	var chunk [256]byte
	for {
		n, err := os.Stdin.Read(chunk[:])
		if n > 0 {
			k.mu.Lock()
			k.buf = append(k.buf, chunk[:n]...)
			k.mu.Unlock()
		}
		if err != nil {
			return
		}
		k.mu.Lock()
		closed := k.closed
		k.mu.Unlock()
		if closed {
			return
		}
	}
}

// Close restores the host terminal's prior mode.
func (k *Keyboard) Close() error {
	k.mu.Lock()
	k.closed = true
	k.mu.Unlock()
	return term.Restore(k.fd, k.oldState)
}

// IsKeyPressed reports whether input is queued, sleeping briefly (matching
// the original's 100ns idle wait) when the buffer is empty so the host loop
// doesn't spin at 100% CPU between polls.
func (k *Keyboard) IsKeyPressed() bool {
	k.mu.Lock()
	empty := len(k.buf) == 0
	k.mu.Unlock()
	if empty {
		time.Sleep(100 * time.Nanosecond)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buf) > 0
}

// ConsumeInput drains queued raw bytes, parses escape sequences into
// Commands or translated SIO bytes, and pushes the translated bytes into
// the SIO channel-B RX FIFO.
func (k *Keyboard) ConsumeInput(sioB *SIOChannel) {
	k.mu.Lock()
	raw := k.buf
	k.buf = nil
	k.mu.Unlock()
	if len(raw) == 0 {
		return
	}
	k.parse(raw, sioB)
}

// parse walks raw host bytes, recognizing CSI/SS3 escape sequences for
// function keys and arrow keys, translating Delete/Insert/arrows to the
// BIOS's expected control codes, and pushing everything else straight
// through (high bit stripped, like a real keyboard UART).
func (k *Keyboard) parse(raw []byte, sioB *SIOChannel) {
	i := 0
	for i < len(raw) {
		if raw[i] == 0x1b && i+1 < len(raw) {
			seq, consumed := scanEscapeSequence(raw[i:])
			if consumed > 0 {
				k.dispatchEscape(seq, sioB)
				i += consumed
				continue
			}
		}
		b := raw[i]
		if b == 0x7f {
			b = 0x08 // Delete/Backspace -> ^H
		} else {
			b &= 0x7f
		}
		sioB.PushRX(b)
		i++
	}
}

// scanEscapeSequence recognizes an ECMA-48 CSI/SS3 sequence starting at
// buf[0] == 0x1b and returns the sequence (without the leading ESC) and how
// many bytes it consumed, or ("", 0) if buf doesn't hold a complete one yet.
func scanEscapeSequence(buf []byte) (string, int) {
	if len(buf) < 2 {
		return "", 0
	}
	seq := []byte{buf[1]}
	i := 2
	for i < len(buf) && (buf[i]&0xF0 == 0x20 || buf[i]&0xF0 == 0x30) {
		seq = append(seq, buf[i])
		i++
	}
	if i < len(buf) {
		seq = append(seq, buf[i])
		i++
	} else {
		return "", 0
	}
	return string(seq), i
}

func (k *Keyboard) dispatchEscape(seq string, sioB *SIOChannel) {
	switch seq {
	case "OP", "Op":
		k.Commands = append(k.Commands, CmdHelp)
	case "OQ", "Oq":
		k.Commands = append(k.Commands, CmdShowStatus)
	case "OS", "Os":
		k.Commands = append(k.Commands, CmdQuit)
	case "[15~", "Ot":
		k.Commands = append(k.Commands, CmdSelectDiskA)
	case "[17~", "Ou":
		k.Commands = append(k.Commands, CmdSelectDiskB)
	case "[18~", "Ov":
		k.Commands = append(k.Commands, CmdSaveMemory)
	case "[19~", "Ol":
		k.Commands = append(k.Commands, CmdTraceCPU)
	case "[20~", "Ow":
		k.Commands = append(k.Commands, CmdSetSpeed)
	case "[3~":
		sioB.PushRX(0x7f) // Delete -> DEL
	case "[2~":
		sioB.PushRX(0x0a) // Insert -> LINEFEED
	case "[A":
		sioB.PushRX(0xf1) // Up -> Kaypro up-arrow key code 0xF1
	case "[B":
		sioB.PushRX(0xf2) // Down -> Kaypro down-arrow key code 0xF2
	case "[C":
		sioB.PushRX(0xf4) // Right -> Kaypro right-arrow key code 0xF4
	case "[D":
		sioB.PushRX(0xf3) // Left -> Kaypro left-arrow key code 0xF3
	}
}

// TakeCommands returns and clears any pending host-key commands.
func (k *Keyboard) TakeCommands() []KeyCommand {
	cmds := k.Commands
	k.Commands = nil
	return cmds
}
