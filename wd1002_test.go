package kaypro

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWD1002(t *testing.T) *WD1002 {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hd0.img")
	disk, err := OpenHardDiskImage(path)
	require.NoError(t, err)
	w := NewWD1002(disk)
	w.diagBusyPolls = 0
	return w
}

func TestWD1002RestoreSetsCylinderZero(t *testing.T) {
	w := newTestWD1002(t)
	w.cylinderLo, w.cylinderHi = 5, 1
	w.WriteRegister(wdRegStatus, wdCmdRestore)
	assert.Equal(t, 0, w.cylinder())
	assert.True(t, w.TakeIntrq(), "RESTORE completes immediately and raises INTRQ, unlike the status-polled SEEK")
}

func TestWD1002WriteThenReadSectorRoundTrip(t *testing.T) {
	w := newTestWD1002(t)
	w.WriteRegister(wdRegSectorCount, 1)
	w.WriteRegister(wdRegSectorNum, 0)
	w.WriteRegister(wdRegCylinderLo, 1)
	w.WriteRegister(wdRegCylinderHi, 0)
	w.WriteRegister(wdRegSDH, 0x40) // size code 2 (512B), head 0

	w.WriteRegister(wdRegStatus, wdCmdWriteSector)
	for i := 0; i < 512; i++ {
		w.WriteRegister(wdRegData, byte(i))
	}
	require.True(t, w.TakeIntrq())

	w.WriteRegister(wdRegSectorNum, 0)
	w.WriteRegister(wdRegStatus, wdCmdReadSector)
	for i := 0; i < 512; i++ {
		assert.Equal(t, byte(i), w.ReadRegister(wdRegData))
	}
}

func TestWD1002BadLUNSetsErrorAndAbortsBeforeNotReady(t *testing.T) {
	w := newTestWD1002(t)
	w.WriteRegister(wdRegSDH, 0x30) // LUN 2 (non-Winchester, bits 4:3)
	w.disk = nil                    // also not ready: the bad-LUN abort must win
	w.WriteRegister(wdRegStatus, wdCmdReadSector)
	status := w.ReadRegister(wdRegStatus)
	assert.NotEqual(t, byte(0), status&wdStatusError)
	assert.Equal(t, byte(wdErrAbortedCmd), w.errorReg)
}

func TestWD1002DiagnoseBusyBlocksCommandsUntilPollsExhausted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hd1.img")
	disk, err := OpenHardDiskImage(path)
	require.NoError(t, err)
	w := NewWD1002(disk)
	require.Equal(t, resetDiagPolls, w.diagBusyPolls)

	for i := 0; i < resetDiagPolls; i++ {
		s := w.ReadRegister(wdRegStatus)
		assert.NotEqual(t, byte(0), s&wdStatusBusy)
	}
	assert.Equal(t, 0, w.diagBusyPolls)
	assert.Equal(t, byte(0x01), w.errorReg, "power-up diagnostics report the missing-WD2797 code")
	assert.Equal(t, byte(0), w.status&wdStatusError, "the missing-WD2797 code must not assert the Error status bit")
}

func TestWD1002SeekDefersCompletionUntilTick(t *testing.T) {
	w := newTestWD1002(t)
	w.WriteRegister(wdRegCylinderLo, 10)
	w.WriteRegister(wdRegStatus, wdCmdSeek)
	assert.False(t, w.TakeIntrq())
	assert.NotEqual(t, byte(0), w.status&wdStatusBusy)
	w.Tick()
	assert.False(t, w.TakeIntrq(), "SeekOk is status-polled and must not raise INTRQ")
	assert.NotEqual(t, byte(0), w.status&wdStatusSeekDone)
}

func TestWD1002SeekOutOfRangeRaisesSeekErr(t *testing.T) {
	w := newTestWD1002(t)
	w.WriteRegister(wdRegCylinderLo, 255)
	w.WriteRegister(wdRegCylinderHi, 1) // cylinder 511, past hdCylinders=306
	w.WriteRegister(wdRegStatus, wdCmdSeek)
	assert.False(t, w.TakeIntrq())
	w.Tick()
	assert.True(t, w.TakeIntrq(), "SeekErr must still raise INTRQ")
	assert.Equal(t, byte(wdErrIDNotFound), w.errorReg)
	assert.Equal(t, byte(0), w.status&wdStatusSeekDone)
	assert.NotEqual(t, byte(0), w.status&wdStatusError)
}
