package kaypro

import (
	"math"
	"time"
)

// Run loop cadence constants, per spec.md §4.8. The NMI deadline is counted
// in instructions, not wall-clock time, so it stays reproducible under the
// throttle and under tracing.
const (
	nmiDeadlineInstructions = 10_000_000
	im2PollInterval         = 1024
	refreshIntervalNormal   = 2048
	refreshIntervalTracing  = 262144

	cyclesPerInstructionEstimate = 4 // average Z80 T-states/instruction; the throttle counts the T-states CPU.Step reports instead
)

// RunLoop drives a CPU against a Machine: stepping instructions, latching
// and delivering NMI on the WD1793/WD1002's raised-NMI flag, injecting SIO
// IM2 interrupts on a fixed cadence, and throttling to a target clock rate.
type RunLoop struct {
	CPU     *CPU
	Machine *Machine

	counter        uint64
	nmiDeadline    uint64 // 0 = none pending
	nmiSuppressed  bool   // true only for KayPLUS: NMI only delivered via HALT

	clockMHz      float64 // 0 = unlimited
	cycleCount    uint64
	speedStart    time.Time

	// OnRefresh is called every refreshInterval instructions (keyboard
	// drain + screen repaint); OnHalt is called once if the CPU halts with
	// no pending NMI, the only fatal condition this loop recognizes.
	OnRefresh func()
	OnHalt    func()

	tracing bool
}

// NewRunLoop wires a CPU to a Machine. kayPLUS controls whether NMI is ever
// delivered via the deadline path (KayPLUS ROMs reuse 0x0066 for a checksum
// loop that an ill-timed NMI would corrupt; they only ever see NMI via
// HALT).
func NewRunLoop(cpu *CPU, m *Machine, kayPLUS bool) *RunLoop {
	return &RunLoop{
		CPU:           cpu,
		Machine:       m,
		nmiSuppressed: kayPLUS,
		speedStart:    time.Time{},
	}
}

// SetClockMHz sets (or clears, with 0 or a negative value) a target clock
// rate to throttle to. A positive rate is rounded to the nearest 0.5 MHz and
// clamped to 1-100 MHz.
func (r *RunLoop) SetClockMHz(mhz float64) {
	if mhz > 0 {
		mhz = math.Round(mhz*2) / 2
		if mhz < 1 {
			mhz = 1
		}
		if mhz > 100 {
			mhz = 100
		}
	}
	r.clockMHz = mhz
	r.cycleCount = 0
	r.speedStart = time.Now()
}

// SetTracing switches between the normal and tracing refresh cadence.
func (r *RunLoop) SetTracing(on bool) { r.tracing = on }

func (r *RunLoop) refreshInterval() uint64 {
	if r.tracing {
		return refreshIntervalTracing
	}
	return refreshIntervalNormal
}

// Step runs exactly one run-loop tick: one CPU instruction, WD1002 deferred
// completions, IM2 polling, NMI latch/delivery, periodic refresh and clock
// throttling. Returns false if the CPU hit an unrecoverable HALT.
func (r *RunLoop) Step() bool {
	if r.Machine.model == ModelKayPLUS84 {
		if pc, fired := r.Machine.MaybeKayPLUSClockFixup(r.CPU.PC()); fired {
			r.CPU.SetPC(pc)
		}
	}

	tstates := r.CPU.Step()
	r.counter++
	r.cycleCount += uint64(tstates)

	if r.Machine.WD1002 != nil {
		r.Machine.WD1002.Tick()
	}

	if r.counter%im2PollInterval == 0 && r.Machine.SIO.InterruptPending() {
		r.CPU.InjectIM2Interrupt(r.Machine.SIO.Vector())
	}

	if r.Machine.FDC.TakeNMI() {
		r.nmiDeadline = r.counter + nmiDeadlineInstructions
	}
	if r.Machine.WD1002 != nil && r.Machine.WD1002.TakeIntrq() {
		r.nmiDeadline = r.counter + nmiDeadlineInstructions
	}

	nmiSignaled := false
	if r.nmiDeadline != 0 {
		halted := r.CPU.Halted()
		deadlineReached := r.counter >= r.nmiDeadline && !r.nmiSuppressed && r.Machine.NMIVectorSafe()
		if halted || deadlineReached {
			r.CPU.TriggerNMI()
			r.nmiDeadline = 0
			nmiSignaled = true
		}
	}

	if !nmiSignaled && r.CPU.Halted() {
		if r.OnHalt != nil {
			r.OnHalt()
		}
		return false
	}

	r.throttle()

	if r.counter%r.refreshInterval() == 0 && r.OnRefresh != nil {
		r.OnRefresh()
	}
	return true
}

// throttle sleeps just enough to track a configured target clock rate,
// resetting its drift-tracking window every second to avoid long-run skew.
func (r *RunLoop) throttle() {
	if r.clockMHz <= 0 {
		return
	}
	targetCyclesPerSec := r.clockMHz * 1_000_000
	elapsed := time.Since(r.speedStart)
	expected := elapsed.Seconds() * targetCyclesPerSec
	if float64(r.cycleCount) > expected {
		ahead := float64(r.cycleCount) - expected
		wait := ahead / targetCyclesPerSec
		if wait > 0.0001 {
			time.Sleep(time.Duration(wait * float64(time.Second)))
		}
	}
	if elapsed >= time.Second {
		r.speedStart = time.Now()
		r.cycleCount = 0
	}
}

// Run drives Step until it reports an unrecoverable halt or maxInstructions
// is reached (0 = unbounded). Returns the instruction count executed.
func (r *RunLoop) Run(maxInstructions uint64) uint64 {
	start := r.counter
	for maxInstructions == 0 || r.counter-start < maxInstructions {
		if !r.Step() {
			break
		}
	}
	return r.counter - start
}
