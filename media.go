package kaypro

import (
	"os"

	"github.com/pkg/errors"
)

// MediaFormat is the detected floppy image format, derived from file length.
type MediaFormat int

const (
	Unformatted MediaFormat = iota
	SSSD
	SSDD
	DSDD
)

const (
	ssSdLen     = 102400
	ssDdLenLo   = 204800
	ssDdLenHi   = 205824
	dsDdLenLo   = 409600
	dsDdLenHi   = 411648
	defaultSSSectorBase = 1
)

// DetectMediaFormat classifies an image purely by its byte length, matching
// the thresholds the original Kaypro media loader uses.
func DetectMediaFormat(length int) MediaFormat {
	switch {
	case length == ssSdLen:
		return SSSD
	case length >= ssDdLenLo && length <= ssDdLenHi:
		return SSDD
	case length >= dsDdLenLo && length <= dsDdLenHi:
		return DSDD
	default:
		return Unformatted
	}
}

// trackGeometry is the per-track geometry learned from a WRITE TRACK stream.
type trackGeometry struct {
	n           int // IBM size code; sector size = 128 << n
	sectorCount int
	sectorBase  int
}

type trackKey struct {
	track int
	side  int
}

// Media is an in-memory floppy disk image with learned per-track geometry,
// sector<->byte mapping and a write-coalescing flush to an optional backing
// file.
type Media struct {
	content []byte
	format  MediaFormat

	sides            int // 1 or 2
	side1SectorBase  int // 0 or 10

	learnedN          int // -1 when unset
	learnedSectorBase int // -1 when unset
	perTrack          map[trackKey]trackGeometry

	writeMin int // sentinel: max int when empty
	writeMax int // sentinel: -1 when empty

	path           string
	writeProtected bool
}

// NewMedia returns a blank, in-memory Media scratch image of the given
// format, with no backing file (test/fallback use).
func NewMedia(format MediaFormat, side1SectorBase int) *Media {
	sides := 1
	if format == DSDD {
		sides = 2
	}
	size := mediaSizeForFormat(format)
	content := make([]byte, size)
	for i := range content {
		content[i] = 0xE5
	}
	return &Media{
		content:           content,
		format:            format,
		sides:             sides,
		side1SectorBase:   side1SectorBase,
		learnedN:          -1,
		learnedSectorBase: -1,
		perTrack:          make(map[trackKey]trackGeometry),
		writeMin:          int(^uint(0) >> 1),
		writeMax:          -1,
	}
}

func mediaSizeForFormat(f MediaFormat) int {
	switch f {
	case SSSD:
		return ssSdLen
	case SSDD:
		return ssDdLenLo
	case DSDD:
		return dsDdLenLo
	default:
		return 0
	}
}

// LoadDisk replaces the image content from path, auto-detecting format from
// length, resetting learned geometry, and inferring write-protect from
// whether the file opens for writing.
func (m *Media) LoadDisk(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "load disk image %q", path)
	}
	format := DetectMediaFormat(len(data))
	if format == Unformatted {
		return errors.Errorf("load disk image %q: unexpected length %d bytes", path, len(data))
	}

	writeProtected := false
	if f, err := os.OpenFile(path, os.O_RDWR, 0); err != nil {
		writeProtected = true
	} else {
		f.Close()
	}

	m.content = data
	m.format = format
	m.sides = 1
	if format == DSDD {
		m.sides = 2
	}
	m.learnedN = -1
	m.learnedSectorBase = -1
	m.perTrack = make(map[trackKey]trackGeometry)
	m.writeMin = int(^uint(0) >> 1)
	m.writeMax = -1
	m.path = path
	m.writeProtected = writeProtected
	return nil
}

// FlushDisk writes the dirty byte range back to the backing file and clears
// the range. A no-op when there is no backing file or no pending writes.
func (m *Media) FlushDisk() error {
	if m.path == "" || m.writeMax < m.writeMin {
		m.writeMin = int(^uint(0) >> 1)
		m.writeMax = -1
		return nil
	}
	f, err := os.OpenFile(m.path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "flush disk image %q", m.path)
	}
	defer f.Close()
	if _, err := f.WriteAt(m.content[m.writeMin:m.writeMax+1], int64(m.writeMin)); err != nil {
		return errors.Wrapf(err, "flush disk image %q", m.path)
	}
	m.writeMin = int(^uint(0) >> 1)
	m.writeMax = -1
	return nil
}

func (m *Media) IsWriteProtected() bool { return m.writeProtected }

func (m *Media) TracksCount() int {
	return len(m.content) / m.trackStride()
}

func (m *Media) Sides() int { return m.sides }

func (m *Media) sectorSize(track, side int) int {
	if g, ok := m.perTrack[trackKey{track, side}]; ok {
		return 128 << uint(g.n)
	}
	n := m.learnedN
	if n < 0 {
		n = m.defaultN()
	}
	return 128 << uint(n)
}

// defaultN is the IBM sector-size code used before any WRITE TRACK has
// taught this image its real geometry: SSSD disks use 256-byte sectors,
// everything else (SSDD/DSDD) uses 512-byte sectors.
func (m *Media) defaultN() int {
	if m.format == SSSD {
		return 1
	}
	return 2
}

func (m *Media) sectorsPerSide() int {
	// Fixed at 10 for every format; per-track learned geometry overrides the
	// sector count for individual tracks in SectorIndex.
	switch m.format {
	case SSSD:
		return 10
	default:
		return 10
	}
}

func (m *Media) trackStride() int {
	return m.sectorsPerSide() * m.sectorSize(0, 0)
}

// sectorIDBase returns the sector-ID base to use for (track, side) absent a
// learned per-track geometry. Side 1 of a double-sided image uses the
// media's configured side1SectorBase (10 for standard Kaypro, 0 for
// KayPLUS); side 0 always starts at 0 except on single-sided single-density
// images, which start at 1.
func (m *Media) sectorIDBase(side int) int {
	if m.learnedSectorBase >= 0 {
		return m.learnedSectorBase
	}
	if side == 1 {
		return m.side1SectorBase
	}
	if m.format == SSSD {
		return defaultSSSectorBase
	}
	return 0
}

// SectorIndex maps an FDC sector request to a byte range [first, lastExclusive).
func (m *Media) SectorIndex(side, track, sectorID int) (ok bool, first, lastExclusive int) {
	if side >= m.sides {
		return false, 0, 0
	}
	if track < 0 || track >= m.TracksCount() {
		return false, 0, 0
	}

	stride := m.sectorsPerSide() * m.sectorSize(track, side)
	var sectorSize, sectorCount, base int
	if g, ok2 := m.perTrack[trackKey{track, side}]; ok2 {
		sectorSize = 128 << uint(g.n)
		sectorCount = g.sectorCount
		base = g.sectorBase
	} else {
		sectorSize = m.sectorSize(track, side)
		sectorCount = m.sectorsPerSide()
		base = m.sectorIDBase(side)
	}

	adjusted := sectorID - base
	if adjusted < 0 || adjusted >= sectorCount {
		return false, 0, 0
	}

	trackOffset := stride * (track*m.sides + side)
	first = trackOffset + adjusted*sectorSize
	lastExclusive = first + sectorSize
	if lastExclusive > len(m.content) {
		return false, 0, 0
	}
	return true, first, lastExclusive
}

// ReadAddress returns the first sector ID the FDC would encounter scanning
// (track, side).
func (m *Media) ReadAddress(side, track int) (ok bool, baseSectorID int) {
	if side >= m.sides || track < 0 || track >= m.TracksCount() {
		return false, 0
	}
	if g, ok2 := m.perTrack[trackKey{track, side}]; ok2 {
		return true, g.sectorBase
	}
	return true, m.sectorIDBase(side)
}

func (m *Media) ReadByte(i int) byte {
	if i < 0 || i >= len(m.content) {
		return 0
	}
	return m.content[i]
}

func (m *Media) WriteByte(i int, v byte) {
	if i < 0 || i >= len(m.content) {
		return
	}
	m.content[i] = v
	if i < m.writeMin {
		m.writeMin = i
	}
	if i > m.writeMax {
		m.writeMax = i
	}
}

// LearnTrackGeometry records geometry observed from a WRITE TRACK stream for
// (track, side). This mapping is authoritative thereafter; the globals are
// only a fallback for tracks that were never formatted this session.
func (m *Media) LearnTrackGeometry(track, side, n, sectorCount, sectorBase int) {
	if side == 1 && m.sides == 1 {
		m.UpgradeToDoubleSided()
	}
	m.perTrack[trackKey{track, side}] = trackGeometry{n: n, sectorCount: sectorCount, sectorBase: sectorBase}
	if m.learnedN < 0 {
		m.learnedN = n
		m.learnedSectorBase = sectorBase
	}
}

// UpgradeToDoubleSided re-lays-out a single-sided image to interleave
// side-0/side-1 content per track, promoting the format to DSDD. Side-0
// content is preserved; side-1 slots are filled with 0xE5.
func (m *Media) UpgradeToDoubleSided() {
	if m.sides == 2 {
		return
	}
	stride := m.trackStride()
	tracks := len(m.content) / stride
	newContent := make([]byte, 0, tracks*stride*2)
	for t := 0; t < tracks; t++ {
		side0 := m.content[t*stride : (t+1)*stride]
		side1 := make([]byte, stride)
		for i := range side1 {
			side1[i] = 0xE5
		}
		newContent = append(newContent, side0...)
		newContent = append(newContent, side1...)
	}
	m.content = newContent
	m.sides = 2
	m.format = DSDD
	m.writeMin = 0
	m.writeMax = len(m.content) - 1
}

// Info returns a short human-readable description: the backing file path,
// or "(no image)" for an in-memory scratch image.
func (m *Media) Info() string {
	if m.path == "" {
		return "(no image)"
	}
	return m.path
}
