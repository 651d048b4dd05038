package kaypro

import (
	"strconv"
	"strings"
)

// Screen dimensions per spec.md §4.5: a fixed 24x80 text display regardless
// of video mode.
const (
	screenCols = 80
	screenRows = 24
)

// Attribute bits in the CRTC's high-2KB attribute plane (0x800-0xFFF),
// extending the original's bit7-blink-only model with reverse/dim/underline
// so the renderer can express everything the hardware attribute byte can.
const (
	attrReverse   = 1 << 0
	attrDim       = 1 << 1
	attrBlink     = 1 << 2
	attrUnderline = 1 << 3
)

// charPlaneSize is the character-cell half of the CRTC's 4 KiB VRAM; the
// attribute plane occupies the other half, starting at this offset.
const charPlaneSize = 0x800

// Screen renders a Machine's video RAM to an ANSI terminal. It tracks the
// previously drawn cells so repaints only emit escape codes for cells that
// actually changed, the same "redraw on dirty" discipline the CRTC and
// memory-mapped VRAM dirty flags already provide at the byte level.
type Screen struct {
	prevChar [screenRows][screenCols]byte
	prevAttr [screenRows][screenCols]byte
	first    bool
}

// NewScreen returns a Screen that will do a full repaint on its first Render.
func NewScreen() *Screen {
	s := &Screen{first: true}
	return s
}

// Render reads the Machine's active video RAM and returns the ANSI escape
// sequence that updates the host terminal to match, an empty string if
// nothing changed since the last call.
func (s *Screen) Render(m *Machine) string {
	var chars, attrs [screenRows][screenCols]byte

	switch m.video {
	case videoSy6545CRTC:
		vram := m.CRTC.VRAM()
		start := int(m.CRTC.StartAddress())
		for row := 0; row < screenRows; row++ {
			for col := 0; col < screenCols; col++ {
				addr := (start + row*screenCols + col) & (charPlaneSize - 1)
				chars[row][col] = vram[addr]
				attrs[row][col] = vram[charPlaneSize+addr]
			}
		}
	default: // videoMemoryMapped: rows sit 128 bytes apart in VRAM
		for row := 0; row < screenRows; row++ {
			for col := 0; col < screenCols; col++ {
				addr := row*128 + col
				if addr < len(m.vram) {
					chars[row][col] = m.vram[addr]
				}
			}
		}
	}

	var b strings.Builder
	first := s.first
	if s.first {
		b.WriteString("\x1b[2J\x1b[H")
		s.first = false
	}

	changed := false
	lastRow, lastCol := -1, -1
	for row := 0; row < screenRows; row++ {
		for col := 0; col < screenCols; col++ {
			ch, at := chars[row][col], attrs[row][col]
			if ch == s.prevChar[row][col] && at == s.prevAttr[row][col] {
				continue
			}
			changed = true
			if row != lastRow || col != lastCol+1 {
				b.WriteString(cursorTo(row, col))
			}
			b.WriteString(sgrFor(at))
			b.WriteByte(displayByte(ch))
			lastRow, lastCol = row, col
			s.prevChar[row][col] = ch
			s.prevAttr[row][col] = at
		}
	}
	if changed {
		b.WriteString("\x1b[0m")
	}

	cursorCol, cursorRow := cursorCellFor(m)
	b.WriteString(cursorTo(cursorRow, cursorCol))

	if !changed && !first {
		return ""
	}
	return b.String()
}

func cursorCellFor(m *Machine) (col, row int) {
	if m.video != videoSy6545CRTC {
		return 0, 0
	}
	pos := int(m.CRTC.CursorPosition()) - int(m.CRTC.StartAddress())
	if pos < 0 {
		pos += charPlaneSize
	}
	pos &= charPlaneSize - 1
	return pos % screenCols, pos / screenCols
}

// cursorTo builds a 1-based CUP escape sequence from 0-based row/col.
func cursorTo(row, col int) string {
	return "\x1b[" + strconv.Itoa(row+1) + ";" + strconv.Itoa(col+1) + "H"
}

// sgrFor translates an attribute byte into an SGI escape sequence; the
// trailing reset is always emitted by the caller once per repaint, so each
// cell only needs to turn attributes ON.
func sgrFor(at byte) string {
	if at == 0 {
		return "\x1b[0m"
	}
	var codes []string
	codes = append(codes, "0")
	if at&attrReverse != 0 {
		codes = append(codes, "7")
	}
	if at&attrDim != 0 {
		codes = append(codes, "2")
	}
	if at&attrBlink != 0 {
		codes = append(codes, "5")
	}
	if at&attrUnderline != 0 {
		codes = append(codes, "4")
	}
	return "\x1b[" + strings.Join(codes, ";") + "m"
}

// displayByte maps a Kaypro character-cell byte to a printable host byte:
// the high bit is a legacy inverse-video signal on memory-mapped video
// models with no attribute plane; it is masked off before display in every
// video mode.
func displayByte(ch byte) byte {
	low := ch & 0x7f
	if low < 0x20 || low == 0x7f {
		return ' '
	}
	return low
}
