package kaypro

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenRenderFirstCallClearsAndDraws(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.CRTC.VRAM()[0] = 'A'
	s := NewScreen()

	out := s.Render(m)
	assert.Contains(t, out, "\x1b[2J\x1b[H", "first render must clear the host screen")
	assert.Contains(t, out, "A")
}

func TestScreenRenderNoChangesProducesNoOutput(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	s := NewScreen()
	s.Render(m) // consume the initial full-frame draw

	out := s.Render(m)
	assert.Equal(t, "", out, "an unchanged frame should emit nothing")
}

func TestScreenRenderOnlyEmitsChangedCells(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	s := NewScreen()
	s.Render(m)

	m.CRTC.VRAM()[5] = 'Z'
	out := s.Render(m)
	assert.Contains(t, out, "Z")
	assert.NotContains(t, out, "\x1b[2J", "subsequent renders never re-clear the screen")
}

func TestScreenRenderAppliesAttributePlane(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.CRTC.VRAM()[0] = 'R'
	m.CRTC.VRAM()[charPlaneSize+0] = attrReverse

	s := NewScreen()
	out := s.Render(m)
	assert.Contains(t, out, "7", "reverse-video attribute should produce an SGR code 7")
}

func TestScreenRenderMemoryMappedVideo(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_83, videoMemoryMapped)
	m.WriteMem(0x3000, 'Q')

	s := NewScreen()
	out := s.Render(m)
	assert.Contains(t, out, "Q")
}

func TestDisplayByteBlanksControlCharacters(t *testing.T) {
	assert.Equal(t, byte(' '), displayByte(0x00))
	assert.Equal(t, byte(' '), displayByte(0x7f))
	assert.Equal(t, byte('A'), displayByte('A'))
	assert.Equal(t, byte('A'), displayByte('A'|0x80), "high bit is a legacy inverse-video flag, not data")
}

func TestSgrForNoAttributesResetsOnly(t *testing.T) {
	assert.Equal(t, "\x1b[0m", sgrFor(0))
}

func TestSgrForCombinesAttributes(t *testing.T) {
	out := sgrFor(attrReverse | attrUnderline)
	assert.True(t, strings.Contains(out, "7") && strings.Contains(out, "4"))
}

func TestCursorToIsOneBased(t *testing.T) {
	assert.Equal(t, "\x1b[1;1H", cursorTo(0, 0))
	assert.Equal(t, "\x1b[24;80H", cursorTo(23, 79))
}
