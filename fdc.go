package kaypro

// Status register bits, WD1793-compatible. Bit 1 and bit 2 are reused
// across command classes; FDC tracks the last command class so GetStatus
// can synthesize the right meaning for those bits.
const (
	fdcStatusBusy         = 0x01
	fdcStatusDRQOrIndex   = 0x02
	fdcStatusLostOrTrack0 = 0x04
	fdcStatusCRC          = 0x08
	fdcStatusRNFOrSeekErr = 0x10
	fdcStatusWriteFault   = 0x20
	fdcStatusWriteProtect = 0x40
	fdcStatusNotReady     = 0x80
)

type fdcCommandClass int

const (
	classNone fdcCommandClass = iota
	classTypeI
	classTypeII
	classTypeIII
	classTypeIV
)

const (
	pollAbortThreshold   = 10
	readAddressPollCount = 5
	sdFormatByteBudget   = 3125
	formatSafetyCap      = 12000
)

// FDC emulates the WD1793 floppy disk controller.
type FDC struct {
	tracer   *Tracer
	rwTracer *Tracer

	mediaA, mediaB *Media

	drive         int // 0=A, 1=B
	motorOn       bool
	side          int // 0 or 1
	singleDensity bool

	trackReg      byte
	headPos       int // physical head position, 0..39
	stepDirection int // +1 or -1
	sectorReg     byte
	dataReg       byte

	baseStatus byte
	lastClass  fdcCommandClass
	busy       bool

	readIndex, readLast int // byte cursor over media content
	multiSector          bool
	pollAbortCount        int

	dataBuffer    [6]byte
	dataBufferPos int
	dataBufferLen int
	readAddrCountdown int
	readAddrPending   bool
	readAddrOK        bool
	addressRotor      int

	writeTrackActive bool
	writeTrackBuf    []byte
	writeTrackSide   int
	writeTrackTrack  int

	pollCounter int
	raiseNMI    bool
}

// NewFDC constructs an FDC with the given media images for drive A and B.
func NewFDC(mediaA, mediaB *Media, trace, traceRW bool) *FDC {
	return &FDC{
		tracer:        NewTracer("fdc", trace),
		rwTracer:      NewTracer("fdc-rw", traceRW),
		mediaA:        mediaA,
		mediaB:        mediaB,
		stepDirection: 1,
	}
}

func (f *FDC) media() *Media {
	if f.drive == 0 {
		return f.mediaA
	}
	return f.mediaB
}

func (f *FDC) MediaA() *Media { return f.mediaA }
func (f *FDC) MediaB() *Media { return f.mediaB }

func (f *FDC) SetDrive(d int) {
	if d != f.drive {
		f.media().FlushDisk()
	}
	f.drive = d
}
func (f *FDC) SetMotor(on bool) {
	if f.motorOn != on {
		f.media().FlushDisk()
	}
	f.motorOn = on
}
func (f *FDC) SetSingleDensity(sd bool) { f.singleDensity = sd }
func (f *FDC) SetSide(side1 bool) {
	if side1 {
		f.side = 1
	} else {
		f.side = 0
	}
}

// TakeNMI consumes and clears the pending NMI flag.
func (f *FDC) TakeNMI() bool {
	v := f.raiseNMI
	f.raiseNMI = false
	return v
}

// PutCommand dispatches a WD1793 command byte.
func (f *FDC) PutCommand(cmd byte) {
	f.tracer.Printf("command 0x%02X", cmd)
	top := cmd >> 4
	switch {
	case top == 0x0:
		f.cmdRestore()
	case top == 0x1:
		f.cmdSeek()
	case top == 0x2 || top == 0x3:
		f.cmdStep(cmd&0x10 != 0)
	case top == 0x4 || top == 0x5:
		f.cmdStepDir(1, cmd&0x10 != 0)
	case top == 0x6 || top == 0x7:
		f.cmdStepDir(-1, cmd&0x10 != 0)
	case top == 0x8 || top == 0x9:
		f.cmdReadSector(cmd&0x10 != 0)
	case top == 0xA || top == 0xB:
		f.cmdWriteSector(cmd&0x10 != 0, cmd&0x01 != 0)
	case top == 0xC:
		f.cmdReadAddress()
	case top == 0xD:
		f.cmdForceInterrupt(cmd & 0x0F)
	case top == 0xE:
		f.cmdReadTrack()
	case top == 0xF:
		f.cmdWriteTrack()
	}
}

func (f *FDC) PutTrack(v byte)  { f.trackReg = v }
func (f *FDC) GetTrack() byte   { return f.trackReg }
func (f *FDC) PutSector(v byte) { f.sectorReg = v }
func (f *FDC) GetSector() byte  { return f.sectorReg }

// GetStatus composes the status byte, synthesizing bit 1's meaning from the
// last command class and advancing any pending countdowns.
func (f *FDC) GetStatus() byte {
	if f.readAddrCountdown > 0 {
		f.readAddrCountdown--
		if f.readAddrCountdown == 0 {
			f.busy = false
			if !f.readAddrOK {
				f.baseStatus |= fdcStatusRNFOrSeekErr
			} else {
				f.baseStatus &^= fdcStatusRNFOrSeekErr
			}
		}
	}
	if f.busy && f.lastClass == classTypeII {
		f.pollAbortCount++
		if f.pollAbortCount >= pollAbortThreshold {
			f.busy = false
			f.pollAbortCount = 0
		}
	}

	status := f.baseStatus
	if f.busy {
		status |= fdcStatusBusy
	} else {
		status &^= fdcStatusBusy
	}

	f.pollCounter++
	switch f.lastClass {
	case classTypeII, classTypeIII:
		if f.busy && (f.lastClass == classTypeII) {
			status |= fdcStatusDRQOrIndex // DRQ: a transfer is pending
		}
	default:
		if f.motorOn && f.pollCounter%100 < 5 {
			status |= fdcStatusDRQOrIndex // index pulse
		}
		if f.headPos == 0 {
			status |= fdcStatusLostOrTrack0
		}
	}
	if f.media().IsWriteProtected() {
		status |= fdcStatusWriteProtect
	}
	return status
}

func (f *FDC) finishCommand(class fdcCommandClass) {
	f.lastClass = class
	f.raiseNMI = true
}

func (f *FDC) cmdRestore() {
	f.headPos = 0
	f.trackReg = 0
	f.busy = false
	f.baseStatus |= fdcStatusLostOrTrack0
	f.finishCommand(classTypeI)
}

func (f *FDC) cmdSeek() {
	target := int(f.dataReg)
	if target < 0 {
		target = 0
	}
	if target > 39 {
		target = 39
	}
	f.headPos = target
	f.trackReg = byte(target)
	if target == 0 {
		f.baseStatus |= fdcStatusLostOrTrack0
	} else {
		f.baseStatus &^= fdcStatusLostOrTrack0
	}
	f.finishCommand(classTypeI)
}

func (f *FDC) cmdStep(updateTrack bool) {
	f.headPos += f.stepDirection
	if f.headPos < 0 {
		f.headPos = 0
	}
	if f.headPos > 39 {
		f.headPos = 39
	}
	if updateTrack {
		f.trackReg = byte(f.headPos)
	}
	f.finishCommand(classTypeI)
}

func (f *FDC) cmdStepDir(dir int, updateTrack bool) {
	f.stepDirection = dir
	f.headPos += dir
	if f.headPos < 0 {
		f.headPos = 0
	}
	if f.headPos > 39 {
		f.headPos = 39
	}
	if updateTrack {
		f.trackReg = byte(f.headPos)
	}
	f.finishCommand(classTypeI)
}

func (f *FDC) cmdReadSector(multi bool) {
	f.multiSector = multi
	f.startTransfer(classTypeII)
}

func (f *FDC) cmdWriteSector(multi, deletedMark bool) {
	f.multiSector = multi
	_ = deletedMark // accepted, but not stored — spec.md §4.2
	if f.media().IsWriteProtected() {
		f.baseStatus |= fdcStatusWriteProtect
		f.busy = false
		f.finishCommand(classTypeII)
		return
	}
	f.startTransfer(classTypeII)
}

func (f *FDC) startTransfer(class fdcCommandClass) {
	ok, first, last := f.media().SectorIndex(f.side, f.headPos, int(f.sectorReg))
	if !ok {
		f.baseStatus |= fdcStatusRNFOrSeekErr
		f.busy = false
		f.finishCommand(class)
		return
	}
	f.baseStatus &^= fdcStatusRNFOrSeekErr
	f.readIndex = first
	f.readLast = last
	f.busy = true
	f.pollAbortCount = 0
	f.lastClass = class
	f.raiseNMI = true
	f.rwTracer.Printf("transfer start side=%d track=%d sector=%d [%d,%d)", f.side, f.headPos, f.sectorReg, first, last)
}

// GetData is called when the host reads the data register (port 0x13).
func (f *FDC) GetData() byte {
	if f.readAddrPending && f.dataBufferPos < f.dataBufferLen {
		f.dataReg = f.dataBuffer[f.dataBufferPos]
		f.dataBufferPos++
		f.raiseNMI = true
		if f.dataBufferPos >= f.dataBufferLen {
			f.readAddrPending = false
		}
		return f.dataReg
	}
	if f.readIndex < f.readLast {
		f.dataReg = f.media().ReadByte(f.readIndex)
		f.readIndex++
		f.raiseNMI = true
		if f.readIndex >= f.readLast {
			f.advanceOrFinish()
		}
	}
	return f.dataReg
}

// PutData is called when the host writes the data register (port 0x13).
func (f *FDC) PutData(v byte) {
	f.dataReg = v
	if f.writeTrackActive {
		f.writeTrackBuf = append(f.writeTrackBuf, v)
		f.raiseNMI = true
		if len(f.writeTrackBuf) >= formatSafetyCap || (f.singleDensity && len(f.writeTrackBuf) >= sdFormatByteBudget) {
			f.finishWriteTrack()
		}
		return
	}
	if f.readIndex < f.readLast {
		f.media().WriteByte(f.readIndex, v)
		f.readIndex++
		f.raiseNMI = true
		if f.readIndex >= f.readLast {
			f.advanceOrFinish()
		}
		return
	}
	// Excess bytes beyond the sector: dropped, NMI keeps firing (spec.md §9
	// open question — documented status quo, not a guess).
	f.raiseNMI = true
}

func (f *FDC) advanceOrFinish() {
	if f.multiSector {
		f.sectorReg++
		ok, first, last := f.media().SectorIndex(f.side, f.headPos, int(f.sectorReg))
		if ok {
			f.readIndex = first
			f.readLast = last
			return
		}
		f.baseStatus |= fdcStatusRNFOrSeekErr
		f.busy = false
		f.finishCommand(f.lastClass)
		return
	}
	// Single-sector mode: cursor cleared, BUSY stays set until abandoned by
	// poll-without-data or FORCE INTERRUPT.
	f.readIndex, f.readLast = 0, 0
}

func (f *FDC) cmdReadAddress() {
	ok, baseID := f.media().ReadAddress(f.side, f.headPos)
	sectorID := baseID
	if ok {
		sectorID = baseID + f.addressRotor
		f.addressRotor++
	}
	f.dataBuffer = [6]byte{byte(f.headPos), 0, byte(sectorID), 2, 0, 0}
	f.dataBufferPos = 0
	f.dataBufferLen = 6
	f.readAddrOK = ok
	f.readAddrPending = true
	f.busy = true
	f.readAddrCountdown = readAddressPollCount
	f.lastClass = classTypeIII
	f.raiseNMI = true
}

func (f *FDC) cmdReadTrack() {
	// Reported as a no-op success per spec.md §4.2.
	f.busy = false
	f.finishCommand(classTypeIII)
}

func (f *FDC) cmdWriteTrack() {
	f.writeTrackActive = true
	f.writeTrackBuf = f.writeTrackBuf[:0]
	f.writeTrackSide = f.side
	f.writeTrackTrack = f.headPos
	f.busy = true
	f.lastClass = classTypeIII
}

func (f *FDC) cmdForceInterrupt(flags byte) {
	if f.writeTrackActive {
		f.finishWriteTrack()
	}
	f.busy = false
	f.readAddrCountdown = 0
	f.writeTrackActive = false
	f.readIndex, f.readLast = 0, 0
	f.lastClass = classTypeIV
	if flags != 0 {
		f.raiseNMI = true
	}
}

// finishWriteTrack parses the accumulated WRITE TRACK stream as an
// IBM-compatible layout and commits sector payloads into the media.
func (f *FDC) finishWriteTrack() {
	f.writeTrackActive = false
	f.busy = false
	buf := f.writeTrackBuf
	syncLen := 3

	type idField struct {
		track, head, sectorID, n int
	}
	var ids []idField
	i := 0
	for i+syncLen+1 <= len(buf) {
		if buf[i] == 0xFE || (i+syncLen < len(buf) && isSync(buf, i, syncLen) && buf[i+syncLen] == 0xFE) {
			start := i
			if isSync(buf, i, syncLen) {
				start = i + syncLen
			}
			if start+5 <= len(buf) && buf[start] == 0xFE {
				ids = append(ids, idField{
					track:    int(buf[start+1]),
					head:     int(buf[start+2]),
					sectorID: int(buf[start+3]),
					n:        int(buf[start+4]),
				})
				i = start + 6 // IDAM + 4 fields + CRC placeholder (0xF7)
				continue
			}
		}
		i++
	}

	if len(ids) > 0 {
		n := ids[0].n
		minSector := ids[0].sectorID
		for _, id := range ids {
			if id.sectorID < minSector {
				minSector = id.sectorID
			}
		}
		f.media().LearnTrackGeometry(f.writeTrackTrack, f.writeTrackSide, n, len(ids), minSector)

		sectorSize := 128 << uint(n)
		pos := 0
		for _, id := range ids {
			dam := findByte(buf, pos, 0xFB, 0xF8)
			if dam < 0 {
				break
			}
			dataStart := dam + 1
			dataEnd := dataStart + sectorSize
			if dataEnd > len(buf) {
				dataEnd = len(buf)
			}
			ok, first, _ := f.media().SectorIndex(f.writeTrackSide, f.writeTrackTrack, id.sectorID)
			if ok {
				for j := dataStart; j < dataEnd; j++ {
					f.media().WriteByte(first+(j-dataStart), buf[j])
				}
			}
			pos = dataEnd
		}
	}
	f.raiseNMI = true
}

func isSync(buf []byte, i, n int) bool {
	if i+n > len(buf) {
		return false
	}
	for k := 0; k < n; k++ {
		if buf[i+k] != 0xF5 && buf[i+k] != 0x00 {
			return false
		}
	}
	return true
}

func findByte(buf []byte, from int, a, b byte) int {
	for i := from; i < len(buf); i++ {
		if buf[i] == a || buf[i] == b {
			return i
		}
	}
	return -1
}
