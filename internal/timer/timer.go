// Package timer implements the DMG divider and programmable timer
// (FF04-FF07), driven by the same m-cycle budget the CPU consumes per
// instruction.
package timer

import "github.com/RaoulLuque/rustboy/internal/interrupt"

// mCyclesPerSecond is the DMG CPU's machine-cycle clock: 4.194304 MHz / 4.
const mCyclesPerSecond = 1_048_576

const divFrequency = 16_384
const mCyclesPerDivIncrement = mCyclesPerSecond / divFrequency // 64

// tacFrequencies maps TAC's low 2 bits to the TIMA increment frequency in Hz.
var tacFrequencies = [4]int{4_096, 262_144, 65_536, 16_384}

// Requester is satisfied by the interrupt controller; kept as a narrow
// function type so the timer doesn't need to import the bus.
type Requester func(interrupt.Source)

// Timer owns DIV/TIMA/TMA/TAC and the running accumulators that convert
// executed m-cycles into register increments without losing fractional
// cycles between Tick calls.
type Timer struct {
	div byte
	tima, tma, tac byte

	divAcc  int
	timaAcc int

	req Requester
}

// New creates a Timer that requests interrupt.Timer on TIMA overflow.
func New(req Requester) *Timer {
	return &Timer{req: req}
}

// Tick advances the timer by the given number of m-cycles, the same budget
// the Runloop hands to the PPU (multiplied by 4 for dots).
func (t *Timer) Tick(mCycles int) {
	if mCycles <= 0 {
		return
	}
	t.divAcc += mCycles
	for t.divAcc >= mCyclesPerDivIncrement {
		t.div++
		t.divAcc -= mCyclesPerDivIncrement
	}

	if t.tac&0x04 == 0 {
		return
	}
	period := mCyclesPerSecond / tacFrequencies[t.tac&0x03]
	t.timaAcc += mCycles
	for t.timaAcc >= period {
		t.timaAcc -= period
		t.incrementTIMA()
	}
}

func (t *Timer) incrementTIMA() {
	if t.tima == 0xFF {
		t.tima = t.tma
		t.req(interrupt.Timer)
		return
	}
	t.tima++
}

// ReadDIV returns the free-running divider register.
func (t *Timer) ReadDIV() byte { return t.div }

// WriteDIV resets DIV (and its sub-cycle accumulator) to 0, per the DMG
// behavior that any write to FF04 clobbers the register regardless of value.
func (t *Timer) WriteDIV(byte) {
	t.div = 0
	t.divAcc = 0
}

func (t *Timer) ReadTIMA() byte   { return t.tima }
func (t *Timer) WriteTIMA(v byte) { t.tima = v }
func (t *Timer) ReadTMA() byte    { return t.tma }
func (t *Timer) WriteTMA(v byte)  { t.tma = v }
func (t *Timer) ReadTAC() byte    { return 0xF8 | (t.tac & 0x07) }
func (t *Timer) WriteTAC(v byte)  { t.tac = v & 0x07 }
