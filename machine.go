package kaypro

// Machine owns every device on the peripheral bus, the 64 KiB RAM array, the
// bankable ROM, the memory-mapped VRAM used by older video modes, and the
// system-bit latch. It is the sole implementation of Z80Bus; the CPU core
// never touches a device directly.
type Machine struct {
	model kayproModel

	ram [0x10000]byte
	rom []byte

	// vram backs the 4 KiB memory-mapped video window at 0x3000-0x3FFF on
	// models that predate the SY6545 (Kaypro II, 4/83). Models with a CRTC
	// keep their display RAM inside the CRTC's own vram field instead.
	vram      [0x1000]byte
	vramDirty bool

	video videoMode
	bank  bool // true = ROM bank selected, false = RAM bank

	systemBits   byte // canonical (Kaypro-II) system-bit latch
	rawPort14    byte // last raw value written to 0x14, shadowed for read-back
	clockFixup   bool // KayPLUS: patch the software-clock loop at 0x069E

	FDC    *FDC
	CRTC   *CRTC
	SIO    *SIO
	RTC    *RTC
	WD1002 *WD1002 // nil unless model == ModelKaypro10

	ioTracer  *Tracer
	romTracer *Tracer
	bdosTracer *Tracer
}

// NewMachine assembles a Machine for the given model, ROM image, video mode
// and attached drive media. wd1002 may be nil for every model but Kaypro 10.
func NewMachine(model kayproModel, rom []byte, video videoMode, mediaA, mediaB *Media, wd1002 *WD1002, traceIO bool) *Machine {
	m := &Machine{
		model:     model,
		rom:       rom,
		video:     video,
		bank:      true, // boots in ROM bank
		FDC:       NewFDC(mediaA, mediaB, false, false),
		CRTC:      NewCRTC(0x1000),
		SIO:       NewSIO(),
		RTC:       NewRTC(),
		WD1002:    wd1002,
		ioTracer:  NewTracer("io", traceIO),
		romTracer: NewTracer("rom", false),
	}
	m.loadROMShadow()
	return m
}

// loadROMShadow copies the ROM image into the low addresses of RAM at
// startup, so TurboROM-style code that banks to RAM mid-instruction (ROM
// shadowing) keeps executing the same bytes it would have read from ROM.
func (m *Machine) loadROMShadow() {
	copy(m.ram[:], m.rom)
}

// SetTracers wires per-subsystem trace toggles; used by the CLI. Only the
// fdc, fdc-rw and io toggles produce output. The crtc, sio and rtc toggles
// are accepted and ignored, and the rom and bdos tracers are enabled but
// nothing prints through them.
func (m *Machine) SetTracers(fdc, fdcRW, crtc, sio, rtc, io, rom, bdos bool) {
	m.FDC.tracer.SetEnabled(fdc)
	m.FDC.rwTracer.SetEnabled(fdcRW)
	m.ioTracer.SetEnabled(io)
	m.romTracer.SetEnabled(rom)
	if m.bdosTracer == nil {
		m.bdosTracer = NewTracer("bdos", bdos)
	} else {
		m.bdosTracer.SetEnabled(bdos)
	}
	_ = crtc
	_ = sio
	_ = rtc
}

// ReadMem implements Z80Bus. In the ROM bank, reads below ROM_SIZE come
// from ROM; on memory-mapped-video models, reads in 0x3000-0x3FFF come from
// VRAM regardless of bank (the window is independent of bank switching).
func (m *Machine) ReadMem(addr uint16) byte {
	if m.video == videoMemoryMapped && addr >= 0x3000 && addr < 0x4000 {
		return m.vram[addr-0x3000]
	}
	if m.bank && int(addr) < len(m.rom) {
		return m.rom[addr]
	}
	return m.ram[addr]
}

// WriteMem implements Z80Bus. ROM-bank writes below ROM_SIZE fall through
// to RAM ("ROM shadowing") since there is no ROM to actually write to;
// TurboROM-style code that banks out mid-execution depends on this to keep
// running against the shadow copy. Writes to the memory-mapped VRAM window
// mark it dirty for the screen renderer.
func (m *Machine) WriteMem(addr uint16, v byte) {
	if m.video == videoMemoryMapped && addr >= 0x3000 && addr < 0x4000 {
		m.vram[addr-0x3000] = v
		m.vramDirty = true
		return
	}
	m.ram[addr] = v
}

// TakeVRAMDirty reports and clears the memory-mapped-video dirty flag.
func (m *Machine) TakeVRAMDirty() bool {
	d := m.vramDirty
	m.vramDirty = false
	return d
}

// In implements Z80Bus, dispatching a masked port to its device.
func (m *Machine) In(port byte) byte {
	p := int(port) & portDecodeMask
	if p >= 0x80 && m.WD1002 == nil {
		return 0
	}
	var v byte
	switch {
	case p == portSIOAData:
		v = m.SIO.A.ReadData()
	case p == portSIOACtrl:
		v = m.SIO.A.ReadControl()
	case p == portSIOBData:
		v = m.SIO.B.ReadData()
	case p == portSIOBCtrl:
		v = m.SIO.B.ReadControl()
	case p == portFDCStatusCmd:
		v = m.FDC.GetStatus()
	case p == portFDCTrack:
		v = m.FDC.GetTrack()
	case p == portFDCSector:
		v = m.FDC.GetSector()
	case p == portFDCData:
		v = m.FDC.GetData()
	case p == portSystemLatch:
		v = m.rawPort14
	case p >= portCRTCRegisterSelect && p < portCRTCRegisterSelect+4:
		v = m.crtcIn(p)
	case p >= portRTCBase && p < portRTCBase+5:
		v = m.RTC.Read(p - portRTCBase)
	case m.WD1002 != nil && p >= portWD1002Base && p < portWD1002Base+8:
		v = m.WD1002.ReadRegister(p - portWD1002Base)
	default:
		v = 0
	}
	m.ioTracer.Printf("IN  0x%02X -> 0x%02X", port, v)
	return v
}

// Out implements Z80Bus, dispatching a masked port write to its device.
func (m *Machine) Out(port byte, v byte) {
	p := int(port) & portDecodeMask
	m.ioTracer.Printf("OUT 0x%02X <- 0x%02X", port, v)
	if p >= 0x80 && m.WD1002 == nil {
		return
	}
	switch {
	case p == portSIOAData:
		m.SIO.A.WriteData(v)
	case p == portSIOACtrl:
		m.SIO.A.WriteControl(v)
	case p == portSIOBData:
		m.SIO.B.WriteData(v)
	case p == portSIOBCtrl:
		m.SIO.B.WriteControl(v)
	case p == portFDCStatusCmd:
		m.FDC.PutCommand(v)
	case p == portFDCTrack:
		m.FDC.PutTrack(v)
	case p == portFDCSector:
		m.FDC.PutSector(v)
	case p == portFDCData:
		m.FDC.PutData(v)
	case p == portSystemLatch:
		m.writeSystemLatch14(v)
	case p >= portCRTCRegisterSelect && p < portCRTCRegisterSelect+4:
		m.crtcOut(p, v)
	case p >= portRTCBase && p < portRTCBase+5:
		m.RTC.Write(p-portRTCBase, v)
	case m.WD1002 != nil && p >= portWD1002Base && p < portWD1002Base+8:
		m.WD1002.WriteRegister(p-portWD1002Base, v)
	}
}

// openBusValue is returned by ports 0x1D-0x1F on memory-mapped-video models,
// where nothing answers; grounded on kaypro_machine.rs's 0xca fallback for
// an unconnected port rather than inventing a different sentinel.
const openBusValue = 0xCA

// crtcIn routes the 0x1C-0x1F window. videoSy6545CRTC models carry a real
// CRTC there; memory-mapped-video models (Kaypro II, 4/83) instead answer
// 0x1C with the legacy system-bits latch and leave 0x1D-0x1F unconnected.
func (m *Machine) crtcIn(p int) byte {
	if m.video != videoSy6545CRTC {
		if p-portCRTCRegisterSelect == crtcPortOffsetRegisterSelect {
			return m.systemBits
		}
		return openBusValue
	}
	switch p - portCRTCRegisterSelect {
	case crtcPortOffsetRegisterSelect:
		return m.CRTC.Status()
	case crtcPortOffsetRegisterData:
		return m.CRTC.Read()
	case crtcPortOffsetVRAMWindow:
		return m.CRTC.ReadWindow()
	case crtcPortOffsetVidMem:
		return m.CRTC.ReadVidMem()
	}
	return 0
}

func (m *Machine) crtcOut(p int, v byte) {
	if m.video != videoSy6545CRTC {
		if p-portCRTCRegisterSelect == crtcPortOffsetRegisterSelect {
			m.writeSystemLatch1C(v)
		}
		return
	}
	switch p - portCRTCRegisterSelect {
	case crtcPortOffsetRegisterSelect:
		m.CRTC.SelectRegister(v)
	case crtcPortOffsetRegisterData:
		m.CRTC.Write(v)
	case crtcPortOffsetVRAMWindow:
		m.CRTC.WriteWindow(v)
	case crtcPortOffsetVidMem:
		m.CRTC.WriteVidMem(v)
	}
}

const (
	crtcPortOffsetRegisterSelect = 0
	crtcPortOffsetRegisterData   = 1
	crtcPortOffsetVRAMWindow     = 2
	crtcPortOffsetVidMem         = 3
)

// writeSystemLatch14 handles a port-0x14 write: the Kaypro 4/84 task-file
// bit layout, decoded into the canonical Kaypro-II latch and applied to the
// FDC/bank state. Every other component only ever sees the canonical form.
//
// One historically observed quirk: writing 0x17 to port 0x14 while in ROM
// bank is a ROM-init video setup step, not a real bank switch — the ROM
// relies on the bank bit being left alone across that specific write.
func (m *Machine) writeSystemLatch14(v byte) {
	m.rawPort14 = v
	if m.bank && v == 0x17 {
		m.CRTC.SetUpdateStrobe(true)
		return
	}
	canonical, driveA, driveB, haveDrive := decodePort14K484(v)
	m.applySystemBits(canonical, driveA, driveB, haveDrive)
}

// writeSystemLatch1C handles a port-0x1C write on memory-mapped-video
// models (Kaypro II, 4/83): the bits are already in the canonical layout,
// no translation needed.
func (m *Machine) writeSystemLatch1C(v byte) {
	m.applySystemBits(v, v&sysBitDriveA != 0, v&sysBitDriveB != 0, v&(sysBitDriveA|sysBitDriveB) != 0)
}

// applySystemBits stores the canonical system-bit byte and applies it to
// the FDC and bank state. Drive select is applied only when the write
// actually selected a drive: both the 4/84 task-file encoding and the
// canonical Kaypro-II latch have a "neither bit set" encoding that must
// leave the currently-selected drive unchanged rather than default to A.
func (m *Machine) applySystemBits(canonical byte, driveA, driveB, haveDrive bool) {
	m.systemBits = canonical
	if haveDrive {
		if driveA {
			m.FDC.SetDrive(0)
		} else if driveB {
			m.FDC.SetDrive(1)
		}
	}
	m.FDC.SetMotor(canonical&sysBitMotorsOff == 0)
	m.FDC.SetSide(canonical&sysBitSide2 != 0)
	m.FDC.SetSingleDensity(canonical&sysBitSingleDens != 0)
	m.bank = canonical&sysBitBank != 0
}

// decodePort14K484 translates a Kaypro 4/84 port-0x14 write into the
// canonical system-bit layout plus an explicit drive-select decode. Grounded
// on kaypro_machine.rs update_system_bits_k484: bank and single-density
// share the wire's polarity, motor and side are inverted, and the 2-bit
// drive-select field has a "neither" encoding (0x00) distinct from "both"
// (0x03, which the 81-292a ROM uses during init and which defaults to A).
func decodePort14K484(bits byte) (canonical byte, driveA, driveB, haveDrive bool) {
	if bits&0x80 != 0 {
		canonical |= sysBitBank
	}
	if bits&0x10 == 0 { // motor: wire bit4 1=on
		canonical |= sysBitMotorsOff
	}
	if bits&0x20 != 0 {
		canonical |= sysBitSingleDens
	}
	if bits&0x04 == 0 { // side: wire bit2 1=side0, inverted polarity
		canonical |= sysBitSide2
	}
	if bits&0x08 != 0 {
		canonical |= sysBitCentrStrobe
	}
	switch bits & 0x03 {
	case 0x02:
		driveA, haveDrive = true, true
	case 0x01:
		driveB, haveDrive = true, true
	case 0x03:
		driveA, haveDrive = true, true // both bits set: ROM init default to A
	}
	if driveA {
		canonical |= sysBitDriveA
	}
	if driveB {
		canonical |= sysBitDriveB
	}
	return canonical, driveA, driveB, haveDrive
}

// NMIVectorSafe inspects the byte(s) at 0x0066 to decide whether delivering
// an NMI right now is safe: the handler must be a bare RET, RETN, or a JP
// into RAM. KayPLUS ROMs reuse 0x0066 for a checksum loop; delivering NMI
// there corrupts state, so KayPLUS only receives NMI via the HALT path
// (the run loop never calls this for KayPLUS).
func (m *Machine) NMIVectorSafe() bool {
	b0 := m.peekRAMOrROM(0x0066)
	switch b0 {
	case 0xC9: // RET
		return true
	case 0xED:
		return m.peekRAMOrROM(0x0067) == 0x45 // RETN
	case 0xC3: // JP nn
		lo := m.peekRAMOrROM(0x0067)
		hi := m.peekRAMOrROM(0x0068)
		target := uint16(hi)<<8 | uint16(lo)
		return !(m.bank && int(target) < len(m.rom))
	default:
		return false
	}
}

func (m *Machine) peekRAMOrROM(addr uint16) byte {
	return m.ReadMem(addr)
}

// MaybeKayPLUSClockFixup checks whether pc sits at the KayPLUS BIOS's
// software-clock increment loop (0x069E, ROM bank) and, if so, writes real
// HMS from the RTC into RAM and returns the PC to resume at (0x06CE),
// skipping the loop entirely. Returns (newPC, true) when the fixup fired.
func (m *Machine) MaybeKayPLUSClockFixup(pc uint16) (uint16, bool) {
	if m.model != ModelKayPLUS84 || !m.clockFixup || !m.bank || pc != 0x069E {
		return pc, false
	}
	t := m.RTC.now()
	m.ram[0xFF5C] = byte(t.Hour())
	m.ram[0xFF5D] = byte(t.Minute())
	m.ram[0xFF5E] = byte(t.Second())
	return 0x06CE, true
}

// SetClockFixup enables/disables the KayPLUS software-clock patch; only
// meaningful when model == ModelKayPLUS84.
func (m *Machine) SetClockFixup(on bool) { m.clockFixup = on }
