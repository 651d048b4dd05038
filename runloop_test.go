package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunLoop(t *testing.T, model kayproModel) (*RunLoop, *Machine) {
	t.Helper()
	m := newTestMachine(t, model, videoSy6545CRTC)
	cpu := NewCPU(m)
	rl := NewRunLoop(cpu, m, model == ModelKayPLUS84)
	require.NotNil(t, rl)
	return rl, m
}

func TestRunLoopStepAdvancesPC(t *testing.T) {
	rl, m := newTestRunLoop(t, ModelKaypro4_84)
	m.ram[0] = 0x00 // NOP
	m.writeSystemLatch14(0)

	ok := rl.Step()
	assert.True(t, ok)
	assert.Equal(t, uint16(1), rl.CPU.PC())
}

func TestRunLoopHaltWithNoPendingNMIStopsAndFiresOnHalt(t *testing.T) {
	rl, m := newTestRunLoop(t, ModelKaypro4_84)
	m.ram[0] = 0x76 // HALT
	m.writeSystemLatch14(0)

	haltFired := false
	rl.OnHalt = func() { haltFired = true }

	ok := rl.Step()
	assert.False(t, ok)
	assert.True(t, haltFired)
}

func TestRunLoopFDCNMILatchesAndDeliversOnHalt(t *testing.T) {
	rl, m := newTestRunLoop(t, ModelKaypro4_84)
	m.ram[0] = 0x76      // HALT
	m.ram[0x0066] = 0xC9 // RET, the NMI handler
	m.writeSystemLatch14(0)

	m.FDC.raiseNMI = true

	ok := rl.Step()
	assert.True(t, ok, "a latched NMI must resurrect the CPU out of HALT rather than stopping the loop")
	assert.Equal(t, uint16(0x0066), rl.CPU.PC())
}

func TestRunLoopIM2PollInjectsSIOInterrupt(t *testing.T) {
	rl, m := newTestRunLoop(t, ModelKaypro4_84)
	for i := uint16(0); i < im2PollInterval; i++ {
		m.ram[i] = 0x00 // NOP stream
	}
	m.writeSystemLatch14(0)
	rl.CPU.core.IFF1 = 1 // interrupts enabled for the injected interrupt to take effect

	m.SIO.B.wr[1] = 0x08  // Rx INT on first char
	m.SIO.B.PushRX(0x42) // rxAvailable -> InterruptPending (channel B only)
	m.ram[0xF004] = 0x00 // vector low byte is (WR2 & 0xF1) | 0x04 = 0x04 with WR2 = 0
	m.ram[0xF005] = 0x60
	rl.CPU.core.I = 0xF0

	var steps uint64
	for steps = 0; steps < im2PollInterval; steps++ {
		if !rl.Step() {
			t.Fatalf("unexpected halt at step %d", steps)
		}
	}

	assert.Equal(t, uint16(0x6000), rl.CPU.PC(), "IM2 interrupt should have fired on the poll boundary and jumped to the vector")
}

func TestRunLoopKayPLUSNMINeverFiresOnDeadline(t *testing.T) {
	rl, m := newTestRunLoop(t, ModelKayPLUS84)
	m.ram[0] = 0x00      // NOP, not HALT
	m.ram[0x0066] = 0xC9 // RET - vector would be "safe", but KayPLUS ignores that on the deadline path
	m.writeSystemLatch14(0)

	rl.nmiDeadline = rl.counter + 1 // will equal the post-increment counter, so the deadline is reached this step

	ok := rl.Step()
	assert.True(t, ok)
	assert.NotEqual(t, uint16(0x0066), rl.CPU.PC(), "KayPLUS must never take the NMI off the deadline path, even with a safe vector")
	assert.NotZero(t, rl.nmiDeadline, "the deadline should remain latched until HALT forces delivery")
}

func TestRunLoopRunStopsAtMaxInstructions(t *testing.T) {
	rl, m := newTestRunLoop(t, ModelKaypro4_84)
	for i := uint16(0); i < 100; i++ {
		m.ram[i] = 0x00
	}
	m.writeSystemLatch14(0)

	executed := rl.Run(10)
	assert.Equal(t, uint64(10), executed)
}
