package kaypro

import (
	"os"

	"github.com/pkg/errors"
)

// Fixed WD1002/Kaypro-10 Winchester geometry.
const (
	hdCylinders       = 306
	hdHeads           = 4
	hdSectorsPerTrack = 17
	hdSectorSize      = 512
	hdHeaderSize      = 128
	hdNumTracks       = hdCylinders * hdHeads
	hdDataSize        = hdCylinders * hdHeads * hdSectorsPerTrack * hdSectorSize
	hdTrackSize       = hdSectorsPerTrack * hdSectorSize

	hdHeaderText = "306c4h512z17p1l\n"

	hdSidecarMagic = "K10FMTM1"
	// Protected sector is the 17th (0-based index 16) of cylinder 0 on
	// head 0 and head 1: the Kaypro 10 boot parameter sector and defect map.
	protectedSectorIndex = 16
)

// ControllerWriteSource tags the origin of a write through
// WriteControllerSector, which decides whether protected sectors are
// preserved.
type ControllerWriteSource int

const (
	WriteDataSource ControllerWriteSource = iota
	FormatTrackSource
)

// ControllerWriteOutcome reports what WriteControllerSector actually did.
type ControllerWriteOutcome int

const (
	Applied ControllerWriteOutcome = iota
	AppliedProtectedSector
	PreservedProtectedSector
)

// HardDiskImage is the raw CHS Winchester image plus its formatted-track
// bitmap sidecar.
type HardDiskImage struct {
	path          string
	data          []byte
	trackFormatted []bool
}

func trackIndex(cyl, head int) int { return cyl*hdHeads + head }

func protectedRanges() [2][2]int {
	// (cyl0,head0,sector16) and (cyl0,head1,sector16), each 512 bytes.
	off0 := trackIndex(0, 0)*hdTrackSize + protectedSectorIndex*hdSectorSize
	off1 := trackIndex(0, 1)*hdTrackSize + protectedSectorIndex*hdSectorSize
	return [2][2]int{{off0, off0 + hdSectorSize}, {off1, off1 + hdSectorSize}}
}

func rangesOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}

func isProtectedOffset(off, length int) bool {
	for _, r := range protectedRanges() {
		if rangesOverlap(off, off+length, r[0], r[1]) {
			return true
		}
	}
	return false
}

func checksum16(buf []byte) uint16 {
	var sum uint16
	for _, b := range buf {
		sum += uint16(b)
	}
	return sum
}

// OpenHardDiskImage loads path, creating a blank poisoned image if it does
// not exist, and loads (or rebuilds) the formatted-track bitmap sidecar.
func OpenHardDiskImage(path string) (*HardDiskImage, error) {
	h := &HardDiskImage{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "open hard disk image %q", path)
		}
		data = h.buildBlankImage()
		if werr := os.WriteFile(path, data, 0o644); werr != nil {
			return nil, errors.Wrapf(werr, "create hard disk image %q", path)
		}
	}
	if len(data) < hdDataSize+hdHeaderSize {
		padded := make([]byte, hdDataSize+hdHeaderSize)
		copy(padded, data)
		data = padded
	}
	h.data = data

	if tm, err := h.loadTrackMap(); err == nil {
		h.trackFormatted = tm
	} else {
		h.trackFormatted = h.detectFormattedTracks()
	}
	return h, nil
}

// buildBlankImage allocates a full blank image and poisons the two
// protected-sector offsets so a freshly created image does not accidentally
// pass the ROM's Winchester-present check.
func (h *HardDiskImage) buildBlankImage() []byte {
	data := make([]byte, hdDataSize+hdHeaderSize)
	for _, r := range protectedRanges() {
		for i := r[0]; i < r[1]; i++ {
			data[i] = 0xFF // non-zero, but checksum will not validate
		}
	}
	h.data = data
	h.writeHeader(false)
	return h.data
}

func (h *HardDiskImage) writeHeader(formatted bool) {
	header := make([]byte, hdHeaderSize)
	copy(header, []byte(hdHeaderText))
	flag := "fmt=0\n"
	if formatted {
		flag = "fmt=1\n"
	}
	copy(header[len(hdHeaderText):], []byte(flag))
	copy(h.data[hdDataSize:hdDataSize+hdHeaderSize], header)
}

func (h *HardDiskImage) detectFormattedTracks() []bool {
	formatted := make([]bool, hdNumTracks)
	for t := 0; t < hdNumTracks; t++ {
		off := t * hdTrackSize
		end := off + hdTrackSize
		if end > len(h.data) {
			end = len(h.data)
		}
		for _, b := range h.data[off:end] {
			if b != 0 {
				formatted[t] = true
				break
			}
		}
	}
	return formatted
}

func (h *HardDiskImage) trackMapPath() string { return h.path + ".hd.fmtmap" }

func (h *HardDiskImage) loadTrackMap() ([]bool, error) {
	data, err := os.ReadFile(h.trackMapPath())
	if err != nil {
		return nil, err
	}
	if len(data) < len(hdSidecarMagic) || string(data[:len(hdSidecarMagic)]) != hdSidecarMagic {
		return nil, errors.Errorf("track map %q: bad magic", h.trackMapPath())
	}
	bitmap := data[len(hdSidecarMagic):]
	formatted := make([]bool, hdNumTracks)
	for i := 0; i < hdNumTracks; i++ {
		byteIdx, bit := i/8, uint(i%8)
		if byteIdx < len(bitmap) {
			formatted[i] = bitmap[byteIdx]&(1<<bit) != 0
		}
	}
	return formatted, nil
}

func (h *HardDiskImage) persistTrackMap() error {
	bitmapLen := (hdNumTracks + 7) / 8
	buf := make([]byte, len(hdSidecarMagic)+bitmapLen)
	copy(buf, []byte(hdSidecarMagic))
	for i, formatted := range h.trackFormatted {
		if !formatted {
			continue
		}
		byteIdx, bit := i/8, uint(i%8)
		buf[len(hdSidecarMagic)+byteIdx] |= 1 << bit
	}
	return os.WriteFile(h.trackMapPath(), buf, 0o644)
}

func (h *HardDiskImage) IsFormatted(cyl, head int) bool {
	idx := trackIndex(cyl, head)
	return idx >= 0 && idx < len(h.trackFormatted) && h.trackFormatted[idx]
}

func (h *HardDiskImage) SetTrackFormatted(cyl, head int, formatted bool) {
	idx := trackIndex(cyl, head)
	if idx < 0 || idx >= len(h.trackFormatted) {
		return
	}
	h.trackFormatted[idx] = formatted
	anyFormatted := false
	for _, f := range h.trackFormatted {
		if f {
			anyFormatted = true
			break
		}
	}
	h.writeHeader(anyFormatted)
	h.persistTrackMap()
}

func (h *HardDiskImage) ReadAt(off, length int) []byte {
	if off < 0 || off+length > len(h.data) {
		return make([]byte, length)
	}
	out := make([]byte, length)
	copy(out, h.data[off:off+length])
	return out
}

func (h *HardDiskImage) WriteAt(off int, buf []byte) {
	if off < 0 || off+len(buf) > len(h.data) {
		return
	}
	copy(h.data[off:off+len(buf)], buf)
}

// WriteControllerSector is the single write path for sector data: FORMAT
// TRACK writes never touch a protected sector; WRITE SECTOR writes do, but
// the outcome is reported for observability.
func (h *HardDiskImage) WriteControllerSector(off int, buf []byte, source ControllerWriteSource) ControllerWriteOutcome {
	protected := isProtectedOffset(off, len(buf))
	if protected && source == FormatTrackSource {
		return PreservedProtectedSector
	}
	h.WriteAt(off, buf)
	if err := h.flushRange(off, len(buf)); err != nil {
		// Host-level persistence failure; device state is still correct in
		// memory, so this is swallowed per spec.md §7's degrade-silently
		// policy for backing-store failures.
		_ = err
	}
	if protected {
		return AppliedProtectedSector
	}
	return Applied
}

func (h *HardDiskImage) flushRange(off, length int) error {
	f, err := os.OpenFile(h.path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt(h.data[off:off+length], int64(off))
	return err
}

// K10HDSectorMap is the Kaypro 10 128-byte-mode interleave table: each
// physical 512-byte sector holds 4 logical 128-byte records, addressed
// through this table. Confirmed verbatim against original_source/.
var K10HDSectorMap = [16]int{1, 6, 11, 16, 4, 9, 14, 2, 7, 12, 17, 5, 10, 15, 3, 8}

var k10BootHeaderPatch = [8]byte{0x18, 0xFE, 0x00, 0xDE, 0x00, 0xF4, 0x34, 0x00}

// SeedKaypro10FromFloppy composes the 14-sector boot payload from a Kaypro
// 10 bootable floppy image and lays it down on both head-0 and head-1
// cylinder-0 slots, patching the boot header and recomputing its checksum.
func (h *HardDiskImage) SeedKaypro10FromFloppy(floppy *Media) error {
	payload := buildPutsysuBootPayload(floppy)
	h.laydownPutsysuBootWindow(payload)
	for _, head := range []int{0, 1} {
		off := trackIndex(0, head) * hdTrackSize
		h.patchK10BootHeader(off)
	}
	return nil
}

// buildPutsysuBootPayload gathers 14 floppy sectors (track 0 side 0
// sectors 0..9, then track 0 side 1 sectors 14,15,18,19) into one 14*512
// buffer, matching the PUTSYS.COM boot-seed layout.
func buildPutsysuBootPayload(floppy *Media) []byte {
	var payload []byte
	side0Sectors := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	side1Sectors := []int{14, 15, 18, 19}
	for _, s := range side0Sectors {
		payload = append(payload, readFloppySectorOrZero(floppy, 0, 0, s)...)
	}
	for _, s := range side1Sectors {
		payload = append(payload, readFloppySectorOrZero(floppy, 1, 0, s)...)
	}
	return payload
}

func readFloppySectorOrZero(floppy *Media, side, track, sectorID int) []byte {
	ok, first, last := floppy.SectorIndex(side, track, sectorID)
	if !ok {
		return make([]byte, 512)
	}
	buf := make([]byte, last-first)
	for i := range buf {
		buf[i] = floppy.ReadByte(first + i)
	}
	if len(buf) < 512 {
		padded := make([]byte, 512)
		copy(padded, buf)
		return padded
	}
	return buf
}

// laydownPutsysuBootWindow writes the 14-sector payload onto both head
// slots of cylinder 0, additionally duplicating sectors 10..13 into head
// 1's sectors 4..7 to match the ROM's empirically validated fetch window.
func (h *HardDiskImage) laydownPutsysuBootWindow(payload []byte) {
	for head := 0; head < 2; head++ {
		base := trackIndex(0, head) * hdTrackSize
		for i := 0; i*hdSectorSize < len(payload); i++ {
			start := i * hdSectorSize
			end := start + hdSectorSize
			if end > len(payload) {
				end = len(payload)
			}
			h.WriteControllerSector(base+i*hdSectorSize, payload[start:end], WriteDataSource)
		}
	}
	// Duplicate sectors 10..13 of the payload into head-1 sectors 4..7.
	head1Base := trackIndex(0, 1) * hdTrackSize
	for i, srcSector := range []int{10, 11, 12, 13} {
		start := srcSector * hdSectorSize
		end := start + hdSectorSize
		if end > len(payload) {
			continue
		}
		destSector := 4 + i
		h.WriteControllerSector(head1Base+destSector*hdSectorSize, payload[start:end], WriteDataSource)
	}
}

func (h *HardDiskImage) patchK10BootHeader(trackBase int) {
	sector0 := h.ReadAt(trackBase, hdSectorSize)
	copy(sector0[:len(k10BootHeaderPatch)], k10BootHeaderPatch[:])
	sum := checksum16(sector0[:126])
	sector0[126] = byte(sum)
	sector0[127] = byte(sum >> 8)
	h.WriteControllerSector(trackBase, sector0, WriteDataSource)
}

// IsKaypro10Bootable checks this image's cylinder-0/head-0 slot: bytes
// 126..127 of sector 0 must hold the 16-bit sum of bytes 0..125, and
// sector 16 (the defect map) must not be all zero. The boot header's
// sector-count field and the defect-map sector's own checksum are not
// checked.
func (h *HardDiskImage) IsKaypro10Bootable() bool {
	return h.hasValidK10BootSector(0) && h.hasValidK10DefectSector(0)
}

func (h *HardDiskImage) hasValidK10BootSector(head int) bool {
	off := trackIndex(0, head) * hdTrackSize
	sector0 := h.ReadAt(off, hdSectorSize)
	sum := checksum16(sector0[:126])
	storedSum := uint16(sector0[126]) | uint16(sector0[127])<<8
	return sum == storedSum
}

func (h *HardDiskImage) hasValidK10DefectSector(head int) bool {
	off := trackIndex(0, head)*hdTrackSize + protectedSectorIndex*hdSectorSize
	sector16 := h.ReadAt(off, hdSectorSize)
	nonZero := false
	for _, b := range sector16 {
		if b != 0 {
			nonZero = true
			break
		}
	}
	return nonZero
}
