package timer

import (
	"testing"

	"github.com/RaoulLuque/rustboy/internal/interrupt"
)

func TestTimer_DIVWriteResets(t *testing.T) {
	tm := New(func(interrupt.Source) {})
	tm.Tick(1000)
	if tm.ReadDIV() == 0 {
		t.Fatalf("expected DIV to have advanced before reset")
	}
	tm.WriteDIV(0xFF)
	if got := tm.ReadDIV(); got != 0 {
		t.Fatalf("DIV after write got %02X want 00", got)
	}
}

func TestTimer_OverflowReloadsFromTMAAndRequestsInterrupt(t *testing.T) {
	var requested []interrupt.Source
	tm := New(func(s interrupt.Source) { requested = append(requested, s) })

	tm.WriteTAC(0x05) // enabled, freq 262144 Hz -> 4 m-cycles per tick
	tm.WriteTMA(0xAB)
	tm.WriteTIMA(0xFF)

	tm.Tick(4)

	if got := tm.ReadTIMA(); got != 0xAB {
		t.Fatalf("TIMA after overflow got %02X want AB", got)
	}
	if len(requested) != 1 || requested[0] != interrupt.Timer {
		t.Fatalf("expected exactly one Timer interrupt request, got %v", requested)
	}
}

func TestTimer_TwoPeriodsFromFEOverflowOnce(t *testing.T) {
	count := 0
	tm := New(func(interrupt.Source) { count++ })
	tm.WriteTAC(0x05) // freq 262144 Hz, period 4 m-cycles
	tm.WriteTMA(0x10)
	tm.WriteTIMA(0xFE)

	tm.Tick(8) // two periods: 0xFE->0xFF, 0xFF->overflow->0x10

	if got := tm.ReadTIMA(); got != 0x10 {
		t.Fatalf("TIMA got %02X want 10", got)
	}
	if count != 1 {
		t.Fatalf("expected exactly one interrupt request, got %d", count)
	}
}

func TestTimer_DisabledDoesNotIncrement(t *testing.T) {
	tm := New(func(interrupt.Source) {})
	tm.WriteTAC(0x01) // enable bit clear
	tm.Tick(10000)
	if got := tm.ReadTIMA(); got != 0 {
		t.Fatalf("TIMA got %02X want 00 while disabled", got)
	}
}
