package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMediaFormat(t *testing.T) {
	assert.Equal(t, SSSD, DetectMediaFormat(102400))
	assert.Equal(t, SSDD, DetectMediaFormat(204800))
	assert.Equal(t, SSDD, DetectMediaFormat(205824))
	assert.Equal(t, DSDD, DetectMediaFormat(409600))
	assert.Equal(t, DSDD, DetectMediaFormat(411648))
	assert.Equal(t, Unformatted, DetectMediaFormat(12345))
}

func TestSectorIndexWithLearnedGeometry(t *testing.T) {
	m := NewMedia(DSDD, 10)
	m.LearnTrackGeometry(0, 0, 1, 10, 0) // n=1 -> 256 bytes, 10 sectors, base 0

	ok, a, b := m.SectorIndex(0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, 0, a)
	assert.Equal(t, 256, b)
	assert.Equal(t, 256, b-a)

	ok, a, b = m.SectorIndex(0, 0, 9)
	require.True(t, ok)
	assert.Equal(t, 9*256, a)
	assert.Equal(t, 10*256, b)

	ok, _, _ = m.SectorIndex(0, 0, 10)
	assert.False(t, ok, "sector ID beyond learned sector count must fail")
}

func TestSectorIndexRejectsSide1OnSingleSided(t *testing.T) {
	m := NewMedia(SSDD, 10)
	ok, _, _ := m.SectorIndex(1, 0, 0)
	assert.False(t, ok)
}

func TestUpgradeToDoubleSidedPreservesSide0(t *testing.T) {
	m := NewMedia(SSDD, 10)
	m.LearnTrackGeometry(0, 0, 1, 10, 0)
	for i := 0; i < 256; i++ {
		m.WriteByte(i, 0x42)
	}

	m.UpgradeToDoubleSided()

	assert.Equal(t, 2, m.Sides())
	assert.Equal(t, DSDD, m.format)
	assert.Equal(t, byte(0x42), m.ReadByte(0))
}

func TestWriteByteWidensDirtyRange(t *testing.T) {
	m := NewMedia(SSDD, 10)
	require.Equal(t, int(^uint(0)>>1), m.writeMin)
	require.Equal(t, -1, m.writeMax)

	m.WriteByte(100, 1)
	m.WriteByte(200, 2)
	assert.Equal(t, 100, m.writeMin)
	assert.Equal(t, 200, m.writeMax)
}

func TestSectorIDBaseDiffersByConfiguredSide1Base(t *testing.T) {
	standard := NewMedia(DSDD, 10) // standard Kaypro: side 1 sectors numbered 10..19
	ok, a, _ := standard.SectorIndex(1, 0, 10)
	require.True(t, ok, "side-1 sector ID 10 is the first sector at the standard base")
	ok, _, _ = standard.SectorIndex(1, 0, 0)
	assert.False(t, ok, "sector ID 0 is below the standard side-1 base")

	kayplus := NewMedia(DSDD, 0) // KayPLUS: side 1 sectors numbered 0..9, same as side 0
	ok, b, _ := kayplus.SectorIndex(1, 0, 0)
	require.True(t, ok)
	assert.Equal(t, a, b, "both layouts place side 1's first sector at the same byte offset; only the ID numbering differs")
}

func TestReadAddressReturnsSectorBase(t *testing.T) {
	m := NewMedia(DSDD, 10)
	m.LearnTrackGeometry(3, 1, 1, 10, 10)
	ok, base := m.ReadAddress(1, 3)
	require.True(t, ok)
	assert.Equal(t, 10, base)
}
