// Package trace formats the two byte-exact CPU trace line formats external
// tools expect: the "doctor" format (github.com/robert/gameboy-doctor) and
// an "augmented" superset adding a stack dump and PPU state, matching
// debugging.rs's doctor_log in the original implementation this core was
// distilled from.
package trace

import "fmt"

// MemReader is the minimal bus surface a trace line needs to read PCMEM and
// the stack window around SP.
type MemReader interface {
	Read(addr uint16) byte
}

// CPUState is a snapshot of the registers a trace line prints. Callers build
// this from *cpu.CPU's exported fields once per traced instruction.
type CPUState struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte
	SP   uint16
	PC   uint16
}

// PPUState is the extra information the augmented format appends.
type PPUState struct {
	Mode      byte // STAT bits 0-1
	DotsClock int  // dots elapsed in the current mode
	Scanline  byte // LY
}

// DoctorLine formats the single-line "A:xx F:xx ... PCMEM:xx,xx,xx,xx\n"
// format gameboy-doctor-compatible tools parse.
func DoctorLine(s CPUState, mem MemReader) string {
	return fmt.Sprintf(
		"A:%02X F:%02X B:%02X C:%02X D:%02X E:%02X H:%02X L:%02X SP:%04X PC:%04X PCMEM:%02X,%02X,%02X,%02X\n",
		s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L, s.SP, s.PC,
		mem.Read(s.PC), mem.Read(s.PC+1), mem.Read(s.PC+2), mem.Read(s.PC+3),
	)
}

// AugmentedLine extends DoctorLine with a window of stack memory around SP
// (the 4 bytes below SP, then SP and the 4 bytes above it) plus PPU mode, dot-within-mode
// and current scanline, mirroring the original's "doctors_augmented" log.
func AugmentedLine(s CPUState, mem MemReader, p PPUState) string {
	rd := func(addr uint16) byte { return mem.Read(addr) }
	return fmt.Sprintf(
		"A:%02X F:%02X B:%02X C:%02X D:%02X E:%02X H:%02X L:%02X SP:%04X PC:%04X PCMEM:%02X,%02X,%02X,%02X"+
			" SPMEM:%02X,%02X,%02X,%02X,CURR:%02X,%02X,%02X,%02X,%02X PPU:%d CY_DOTS:%d SCANLINE:%d\n",
		s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L, s.SP, s.PC,
		rd(s.PC), rd(s.PC+1), rd(s.PC+2), rd(s.PC+3),
		rd(satSub(s.SP, 4)), rd(satSub(s.SP, 3)), rd(satSub(s.SP, 2)), rd(satSub(s.SP, 1)),
		rd(s.SP), rd(satAdd(s.SP, 1)), rd(satAdd(s.SP, 2)), rd(satAdd(s.SP, 3)), rd(satAdd(s.SP, 4)),
		p.Mode, p.DotsClock, p.Scanline,
	)
}

// satSub/satAdd mirror Rust's u16::saturating_sub/saturating_add around SP,
// since the original clamps the stack window at the address space edges
// instead of wrapping.
func satSub(v uint16, d uint16) uint16 {
	if v < d {
		return 0
	}
	return v - d
}

func satAdd(v uint16, d uint16) uint16 {
	if uint32(v)+uint32(d) > 0xFFFF {
		return 0xFFFF
	}
	return v + d
}
