package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMachine(t *testing.T, model kayproModel, video videoMode) *Machine {
	t.Helper()
	rom := make([]byte, 0x1000)
	for i := range rom {
		rom[i] = byte(i)
	}
	mediaA := NewMedia(DSDD, 10)
	mediaB := NewMedia(DSDD, 10)
	m := NewMachine(model, rom, video, mediaA, mediaB, nil, false)
	require.NotNil(t, m)
	return m
}

func TestMachineBootsInROMBank(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	assert.Equal(t, byte(0x00), m.ReadMem(0))
	assert.Equal(t, byte(0x01), m.ReadMem(1))
}

func TestMachineROMShadowingWriteThrough(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.WriteMem(0x10, 0xAA)
	assert.Equal(t, byte(0x10), m.ReadMem(0x10), "ROM-bank reads below ROM size still come from ROM")
	assert.Equal(t, byte(0xAA), m.ram[0x10], "ROM-bank writes below ROM size fall through to the shadow RAM copy")
}

func TestMachineBankSwitchExposesRAM(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.ram[0] = 0x99
	assert.Equal(t, byte(0x00), m.ReadMem(0), "still ROM-banked")

	m.writeSystemLatch14(0) // BANK bit clear on the wire -> RAM bank
	assert.Equal(t, byte(0x99), m.ReadMem(0), "after bank switch, RAM is visible")
}

func TestMachineMemoryMappedVRAMWindow(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_83, videoMemoryMapped)
	m.WriteMem(0x3005, 'X')
	assert.Equal(t, byte('X'), m.ReadMem(0x3005))
	assert.True(t, m.TakeVRAMDirty())
	assert.False(t, m.TakeVRAMDirty(), "dirty flag clears after being read")
}

func TestMachinePortDispatchFDC(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.Out(portFDCTrack, 5)
	assert.Equal(t, byte(5), m.In(portFDCTrack))
}

func TestMachineLegacySystemBitsOnMemoryMappedModels(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_83, videoMemoryMapped)
	m.Out(portCRTCRegisterSelect, sysBitDriveB|sysBitBank)
	assert.Equal(t, byte(sysBitDriveB|sysBitBank), m.In(portCRTCRegisterSelect), "0x1C is the legacy system-bits latch on pre-CRTC models, already in canonical layout")
	assert.Equal(t, byte(openBusValue), m.In(portCRTCRegisterData), "0x1D-0x1F are unconnected on pre-CRTC models")
}

func TestMachineWD1002PortsIgnoredWhenAbsent(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	assert.Equal(t, byte(0), m.In(portWD1002Base))
	m.Out(portWD1002Base, 0xFF) // must not panic
}

func TestNMIVectorSafeRET(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.ram[0x0066] = 0xC9
	m.writeSystemLatch14(0) // switch to RAM bank so 0x0066 reads from ram
	assert.True(t, m.NMIVectorSafe())
}

func TestNMIVectorUnsafeArbitraryOpcode(t *testing.T) {
	m := newTestMachine(t, ModelKaypro4_84, videoSy6545CRTC)
	m.ram[0x0066] = 0x3E // LD A,n - neither RET/RETN/JP
	m.writeSystemLatch14(0) // switch to RAM bank so 0x0066 reads from ram
	assert.False(t, m.NMIVectorSafe())
}

func TestMaybeKayPLUSClockFixup(t *testing.T) {
	m := newTestMachine(t, ModelKayPLUS84, videoSy6545CRTC)
	m.SetClockFixup(true)

	pc, fired := m.MaybeKayPLUSClockFixup(0x0123)
	assert.False(t, fired)
	assert.Equal(t, uint16(0x0123), pc)

	pc, fired = m.MaybeKayPLUSClockFixup(0x069E)
	assert.True(t, fired)
	assert.Equal(t, uint16(0x06CE), pc)
}
