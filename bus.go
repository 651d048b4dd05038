package kaypro

// Z80Bus is the interface the CPU core drives; Machine is the only
// implementation, but the indirection lets cpu_test.go exercise the
// core against a bare-RAM fake without any peripheral wiring.
type Z80Bus interface {
	ReadMem(addr uint16) byte
	WriteMem(addr uint16, v byte)
	In(port byte) byte
	Out(port byte, v byte)
}

// Port map, per spec.md §4.7/§6. The decoder masks the port address with
// 0b1011_1111 (A7 enables the I/O decoder, A5 selects the U26/U27 half)
// before dispatch, so every port below additionally responds on its
// bit6-set alias; real Kaypro software never relies on that aliasing but
// the emulation must reproduce it since some diagnostics probe it. A
// masked address >= 0x80 is ignored on read (returns 0) and write, except
// 0x80-0x87, which reach the WD1002 when one is attached.
const (
	portDecodeMask = 0b1011_1111

	portBaudRate = 0x00 // baud-rate generator select

	portSIOAData = 0x04
	portSIOACtrl = 0x06
	portSIOBData = 0x05
	portSIOBCtrl = 0x07

	portFDCStatusCmd = 0x10
	portFDCTrack     = 0x11
	portFDCSector    = 0x12
	portFDCData      = 0x13

	portSystemLatch = 0x14 // write: system bits; Kaypro-4/84 polarity inverted

	// 0x1C-0x1F answer to the SY6545 CRTC on models that carry one, or to
	// the legacy memory-mapped-video system bits on Kaypro II / 4/83.
	portCRTCRegisterSelect = 0x1C // write: select register; read: status (UR/VRT)
	portCRTCRegisterData   = 0x1D
	portCRTCVRAMWindow     = 0x1E // auto-incrementing VRAM window
	portCRTCVidMem         = 0x1F // VIDMEM read/write, gated on R31 select

	portRTCBase = 0x20 // RTC occupies 0x20-0x24, register = port-0x20

	portWD1002Base = 0x80 // WD1002 task file occupies 0x80-0x87 (Kaypro 10 only)
)

// CRTC status bits (port 0x1C read).
const (
	crtcStatusUR  = 1 << 7 // Update Ready
	crtcStatusVRT = 1 << 5 // Vertical Retrace
)

// systemLatchBit are the bits of the canonical (Kaypro-II-native) port-0x14
// system latch. The Kaypro 4/84 board inverts/reorders several of these on
// the wire; Machine translates on the way in so every other component only
// ever sees this canonical layout.
const (
	sysBitDriveA      = 1 << 0
	sysBitDriveB      = 1 << 1
	sysBitSide2       = 1 << 2
	sysBitCentrReady  = 1 << 3
	sysBitCentrStrobe = 1 << 4
	sysBitSingleDens  = 1 << 5
	sysBitMotorsOff   = 1 << 6
	sysBitBank        = 1 << 7
)

// videoMode selects which port block 0x1C-0x1F answers to.
type videoMode int

const (
	videoMemoryMapped videoMode = iota
	videoSy6545CRTC
)

// kayproModel identifies which Kaypro board variant a Machine emulates, for
// the handful of behaviors (port-0x14 polarity, KayPLUS clock fixup,
// Winchester presence) that differ by model.
type kayproModel int

const (
	ModelKayproII kayproModel = iota
	ModelKaypro4_83
	ModelKaypro4_84
	ModelTurboROM
	ModelKayPLUS84
	ModelKaypro10
	ModelCustom
)
