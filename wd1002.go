package kaypro

// WD1002-05 task-file register offsets, decoded off the low 3 bits of the
// port address (the controller occupies an 8-port window).
const (
	wdRegData        = 0
	wdRegError       = 1 // read; write-side alias is the Write Precomp register
	wdRegSectorCount = 2
	wdRegSectorNum   = 3
	wdRegCylinderLo  = 4
	wdRegCylinderHi  = 5
	wdRegSDH         = 6 // Size/Drive/Head
	wdRegStatus      = 7 // read; write-side alias is the Command register
)

// Status register bits.
const (
	wdStatusBusy       = 1 << 7
	wdStatusReady      = 1 << 6
	wdStatusWriteFault = 1 << 5
	wdStatusSeekDone   = 1 << 4
	wdStatusDRQ        = 1 << 3
	wdStatusIndexPulse = 1 << 1
	wdStatusError      = 1 << 0
)

// Error register bits, per spec.md §4.4.
const (
	wdErrCRC        = 1 << 5 // 0x20
	wdErrIDNotFound = 1 << 4 // 0x10
	wdErrAbortedCmd = 1 << 2 // 0x04
	wdErrNoDAM      = 1 << 0 // 0x01
)

// Commands (top nibble, with low nibble as step-rate/flags in some classes).
const (
	wdCmdRestore     = 0x10
	wdCmdSeek        = 0x70
	wdCmdReadSector  = 0x20
	wdCmdWriteSector = 0x30
	wdCmdVerify      = 0x40
	wdCmdFormatTrack = 0x50
	wdCmdDiagnose    = 0x90
	wdCmdSetParams   = 0x91
)

const resetDiagPolls = 1024

type wdTransferPhase int

const (
	wdIdle wdTransferPhase = iota
	wdReadData
	wdWriteData
	wdFormatData
)

// WD1002 is the task-file Winchester controller fronting a HardDiskImage.
type WD1002 struct {
	disk *HardDiskImage

	errorReg     byte
	sectorCount  byte
	sectorNum    byte
	cylinderLo   byte
	cylinderHi   byte
	sdh          byte // bit7=ECC(unused) bits6:5=sector size code bits4:3=LUN bits2:0=head
	status       byte

	phase      wdTransferPhase
	buffer     []byte
	bufferPos  int
	sectorsLeft int

	diagBusyPolls int
	seekPending   bool
	seekTarget    int

	intrqRaised bool
}

func NewWD1002(disk *HardDiskImage) *WD1002 {
	w := &WD1002{disk: disk}
	w.Reset()
	return w
}

func (w *WD1002) Reset() {
	w.errorReg = 0
	w.sectorCount = 0
	w.sectorNum = 0
	w.cylinderLo = 0
	w.cylinderHi = 0
	w.sdh = 0
	w.status = wdStatusReady
	w.phase = wdIdle
	w.buffer = nil
	w.bufferPos = 0
	w.sectorsLeft = 0
	w.diagBusyPolls = resetDiagPolls
	w.seekPending = false
	w.intrqRaised = false
}

func (w *WD1002) cylinder() int {
	return int(w.cylinderLo) | int(w.cylinderHi)<<8
}

func (w *WD1002) head() int {
	return int(w.sdh & 0x07)
}

func (w *WD1002) lun() int {
	return int((w.sdh >> 3) & 0x03)
}

func (w *WD1002) sectorSizeCode() int {
	return int((w.sdh >> 5) & 0x03)
}

// sectorBytes maps the SDH size code to a byte count; the controller is
// wired for the fixed 512-byte Kaypro 10 geometry (code 2).
func (w *WD1002) sectorBytes() int {
	switch w.sectorSizeCode() {
	case 0:
		return 256
	case 1:
		return 512
	case 2:
		return 512
	default:
		return 1024
	}
}

// ReadRegister implements the task-file read side.
func (w *WD1002) ReadRegister(reg int) byte {
	switch reg & 7 {
	case wdRegData:
		return w.readData()
	case wdRegError:
		return w.errorReg
	case wdRegSectorCount:
		return w.sectorCount
	case wdRegSectorNum:
		return w.sectorNum
	case wdRegCylinderLo:
		return w.cylinderLo
	case wdRegCylinderHi:
		return w.cylinderHi
	case wdRegSDH:
		return w.sdh
	case wdRegStatus:
		return w.readStatus()
	}
	return 0xFF
}

// WriteRegister implements the task-file write side.
func (w *WD1002) WriteRegister(reg int, v byte) {
	switch reg & 7 {
	case wdRegData:
		w.writeData(v)
	case wdRegError: // write precomp, unused by this emulation
	case wdRegSectorCount:
		w.sectorCount = v
	case wdRegSectorNum:
		w.sectorNum = v
	case wdRegCylinderLo:
		w.cylinderLo = v
	case wdRegCylinderHi:
		w.cylinderHi = v
	case wdRegSDH:
		w.sdh = v
	case wdRegStatus:
		w.execCommand(v)
	}
}

// readStatus consumes INTRQ as a side effect, matching the WD1002's
// read-to-acknowledge interrupt semantics.
func (w *WD1002) readStatus() byte {
	if w.diagBusyPolls > 0 {
		w.diagBusyPolls--
		if w.diagBusyPolls == 0 {
			// Power-up diagnostics report the missing-WD2797-floppy-chip code
			// without asserting the Error status bit, per spec.md §4.4.
			w.errorReg = 0x01
		}
		return wdStatusBusy
	}
	w.intrqRaised = false
	return w.status
}

// TakeIntrq reports and clears the pending interrupt request line.
func (w *WD1002) TakeIntrq() bool {
	raised := w.intrqRaised
	w.intrqRaised = false
	return raised
}

func (w *WD1002) readData() byte {
	if w.phase != wdReadData || w.bufferPos >= len(w.buffer) {
		return 0xFF
	}
	b := w.buffer[w.bufferPos]
	w.bufferPos++
	if w.bufferPos >= len(w.buffer) {
		w.finishTransferUnit(wdReadData)
	}
	return b
}

func (w *WD1002) writeData(v byte) {
	if (w.phase != wdWriteData && w.phase != wdFormatData) || w.bufferPos >= len(w.buffer) {
		return
	}
	w.buffer[w.bufferPos] = v
	w.bufferPos++
	if w.bufferPos >= len(w.buffer) {
		w.finishTransferUnit(w.phase)
	}
}

func (w *WD1002) chsOffset() int {
	return trackIndex(w.cylinder(), w.head())*hdTrackSize + int(w.sectorNum)*w.sectorBytes()
}

// finishTransferUnit flushes/loads one sector's worth of buffer, then either
// advances to the next sector or completes the command and raises INTRQ.
func (w *WD1002) finishTransferUnit(phase wdTransferPhase) {
	switch phase {
	case wdReadData:
		w.sectorsLeft--
		if w.sectorsLeft <= 0 {
			w.completeCommand(false)
			return
		}
		w.sectorNum++
		w.loadReadBuffer()
	case wdWriteData:
		off := w.chsOffset()
		w.disk.WriteControllerSector(off, w.buffer, WriteDataSource)
		w.sectorsLeft--
		if w.sectorsLeft <= 0 {
			w.completeCommand(false)
			return
		}
		w.sectorNum++
		w.buffer = make([]byte, w.sectorBytes())
		w.bufferPos = 0
		w.status |= wdStatusDRQ
	case wdFormatData:
		off := w.chsOffset()
		w.disk.WriteControllerSector(off, w.buffer, FormatTrackSource)
		w.disk.SetTrackFormatted(w.cylinder(), w.head(), true)
		w.sectorsLeft--
		if w.sectorsLeft <= 0 {
			w.completeCommand(false)
			return
		}
		w.sectorNum++
		w.buffer = make([]byte, w.sectorBytes())
		w.bufferPos = 0
		w.status |= wdStatusDRQ
	}
}

func (w *WD1002) loadReadBuffer() {
	off := w.chsOffset()
	w.buffer = w.disk.ReadAt(off, w.sectorBytes())
	w.bufferPos = 0
	w.status |= wdStatusDRQ
}

func (w *WD1002) completeCommand(errored bool) {
	w.finishCommand(errored, true)
}

// finishCommand is completeCommand with explicit control over INTRQ: only a
// successful SEEK is status-polled and must not raise INTRQ (spec.md §4.4);
// RESTORE and the transfer commands (READ/WRITE/FORMAT) always do, and any
// failing command always does (see completeCommand/fail paths).
func (w *WD1002) finishCommand(errored, raiseIntrq bool) {
	w.phase = wdIdle
	w.status &^= wdStatusBusy | wdStatusDRQ
	w.status |= wdStatusReady
	if errored {
		w.status |= wdStatusError
	} else {
		w.status &^= wdStatusError
	}
	if raiseIntrq {
		w.intrqRaised = true
	}
}

// execCommand dispatches in the WD1002's documented priority order:
// diagnostics-busy, then bad-LUN, then not-ready. There is no write-fault
// check, and the Write-fault status bit is never set.
func (w *WD1002) execCommand(cmd byte) {
	if w.diagBusyPolls > 0 {
		return
	}
	if w.lun() > 0 {
		w.errorReg = wdErrAbortedCmd
		w.completeCommand(true)
		return
	}
	if w.disk == nil {
		w.status &^= wdStatusReady
		w.completeCommand(true)
		return
	}

	top := cmd & 0xF0
	switch {
	case cmd == 0x00 || top == wdCmdRestore:
		w.doRestore()
	case top == wdCmdSeek:
		w.doSeek()
	case top == wdCmdReadSector:
		w.doRead()
	case top == wdCmdWriteSector:
		w.doWrite()
	case top == wdCmdFormatTrack:
		w.doFormat()
	case cmd == wdCmdDiagnose:
		w.doDiagnose()
	default:
		w.errorReg = wdErrAbortedCmd
		w.completeCommand(true)
	}
}

func (w *WD1002) doRestore() {
	w.cylinderLo, w.cylinderHi = 0, 0
	w.status |= wdStatusBusy
	w.status |= wdStatusSeekDone
	w.completeCommand(false)
}

// doSeek defers completion: the caller must pump Tick (or an equivalent
// poll) to observe seek-complete, matching the real drive's access time.
func (w *WD1002) doSeek() {
	w.seekTarget = w.cylinder()
	w.seekPending = true
	w.status |= wdStatusBusy
	w.status &^= wdStatusSeekDone
}

// Tick advances any deferred seek to completion; call once per controller
// poll interval from the run loop. SeekOk suppresses INTRQ; SeekErr (target
// cylinder out of range) raises it, per spec.md §4.4.
func (w *WD1002) Tick() {
	if w.seekPending {
		w.seekPending = false
		if w.seekTarget < 0 || w.seekTarget >= hdCylinders {
			w.errorReg = wdErrIDNotFound
			w.status &^= wdStatusSeekDone
			w.finishCommand(true, true)
			return
		}
		w.status |= wdStatusSeekDone
		w.finishCommand(false, false)
	}
}

func (w *WD1002) doRead() {
	if w.cylinder() >= hdCylinders || w.head() >= hdHeads {
		w.errorReg = wdErrIDNotFound
		w.completeCommand(true)
		return
	}
	w.sectorsLeft = int(w.sectorCount)
	if w.sectorsLeft == 0 {
		w.sectorsLeft = 256
	}
	w.phase = wdReadData
	w.status |= wdStatusBusy
	w.loadReadBuffer()
}

func (w *WD1002) doWrite() {
	if w.cylinder() >= hdCylinders || w.head() >= hdHeads {
		w.errorReg = wdErrIDNotFound
		w.completeCommand(true)
		return
	}
	w.sectorsLeft = int(w.sectorCount)
	if w.sectorsLeft == 0 {
		w.sectorsLeft = 256
	}
	w.phase = wdWriteData
	w.buffer = make([]byte, w.sectorBytes())
	w.bufferPos = 0
	w.status |= wdStatusBusy | wdStatusDRQ
}

func (w *WD1002) doFormat() {
	if w.cylinder() >= hdCylinders || w.head() >= hdHeads {
		w.errorReg = wdErrIDNotFound
		w.completeCommand(true)
		return
	}
	w.sectorNum = 0
	w.sectorsLeft = hdSectorsPerTrack
	w.phase = wdFormatData
	w.buffer = make([]byte, w.sectorBytes())
	w.bufferPos = 0
	w.status |= wdStatusBusy | wdStatusDRQ
}

func (w *WD1002) doDiagnose() {
	w.errorReg = 0x01 // no error code
	w.status |= wdStatusBusy
	w.completeCommand(false)
}
