// Package emu is the Machine facade: it wires a cartridge, bus, CPU and
// runloop together behind the small surface a host (cmd/gbemu's headless
// mode, internal/ui's ebiten shell, or a test harness like blargg_test.go)
// actually needs, so none of those callers has to know about internal/bus
// or internal/cpu directly.
package emu

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/RaoulLuque/rustboy/internal/bus"
	"github.com/RaoulLuque/rustboy/internal/cart"
	"github.com/RaoulLuque/rustboy/internal/cpu"
	"github.com/RaoulLuque/rustboy/internal/runloop"
)

// Buttons is the joypad state for one frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.Right {
		m |= bus.JoypRight
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Start {
		m |= bus.JoypStart
	}
	return m
}

// ErrSaveStateNotSupported is returned by SaveStateToFile/LoadStateFromFile.
// Save-state round-tripping is out of scope for this core (see DESIGN.md);
// the UI surfaces this error as a toast rather than treating it as fatal.
var ErrSaveStateNotSupported = errors.New("save states are not supported")

// Machine is the host-facing emulator instance: one loaded ROM, its Bus,
// CPU and Runloop, plus the small amount of state (ROM path/title, boot ROM
// bytes) a UI needs across resets.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU
	rl  *runloop.Runloop

	romPath string
	header  *cart.Header
	bootROM []byte

	useCGBBG bool

	serialWriters []io.Writer
}

// New returns a Machine with no ROM loaded. Call LoadCartridge or
// LoadROMFromFile before stepping frames.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// SetBootROM stashes a DMG boot ROM to be mapped at 0x0000 on the next
// (Re)load/Reset call.
func (m *Machine) SetBootROM(boot []byte) { m.bootROM = boot }

// LoadCartridge builds a fresh Bus/CPU/Runloop around rom. boot, if non-nil,
// replaces the stored boot ROM (as SetBootROM does) before the runtime is
// built. An unsupported cartridge type is returned as
// *cart.UnsupportedMBCError.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return fmt.Errorf("parse ROM header: %w", err)
	}
	c, err := cart.New(rom)
	if err != nil {
		return err
	}
	m.header = h
	if boot != nil {
		m.bootROM = boot
	}
	m.buildRuntime(c)
	return nil
}

// buildRuntime (re)creates the bus/cpu/runloop/apu quartet around c and
// applies whatever boot ROM is currently set.
func (m *Machine) buildRuntime(c cart.Cartridge) {
	b := bus.NewWithCartridge(c)
	if len(m.bootROM) >= 0x100 {
		b.SetBootROM(m.bootROM)
		cpuInst := cpu.New(b)
		cpuInst.SP = 0xFFFE
		cpuInst.PC = 0x0000
		cpuInst.IME = false
		m.cpu = cpuInst
	} else {
		cpuInst := cpu.New(b)
		cpuInst.ResetNoBoot()
		applyPostBootIODefaults(b)
		m.cpu = cpuInst
	}
	m.bus = b
	m.bus.SetDoctorMode(m.cfg.Doctor)
	m.rl = runloop.New(b, m.cpu)
	m.wireSerial()
}

// applyPostBootIODefaults pokes the IO registers to the values the real DMG
// boot ROM leaves behind, matching cmd/cpurunner's no-boot-ROM path.
func applyPostBootIODefaults(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00)
	b.Write(0xFF06, 0x00)
	b.Write(0xFF07, 0x00)
	b.Write(0xFF40, 0x91)
	b.Write(0xFF42, 0x00)
	b.Write(0xFF43, 0x00)
	b.Write(0xFF45, 0x00)
	b.Write(0xFF47, 0xFC)
	b.Write(0xFF48, 0xFF)
	b.Write(0xFF49, 0xFF)
	b.Write(0xFF4A, 0x00)
	b.Write(0xFF4B, 0x00)
	b.Write(0xFFFF, 0x00)
}

// LoadROMFromFile reads path, loads it as the cartridge and records it as
// the current ROM path/title.
func (m *Machine) LoadROMFromFile(path string) error {
	rom, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read ROM: %w", err)
	}
	if err := m.LoadCartridge(rom, m.bootROM); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the path LoadROMFromFile was last called with, or "" if
// the current cartridge was loaded via LoadCartridge directly.
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header's title, or "" if no ROM is loaded.
func (m *Machine) ROMTitle() string {
	if m.header == nil {
		return ""
	}
	return m.header.Title
}

// StepFrame runs the CPU/PPU/timer/APU until one frame has been rendered
// into Framebuffer.
func (m *Machine) StepFrame() {
	if m.rl == nil {
		return
	}
	m.rl.StepFrame()
}

// StepFrameNoRender runs one frame's worth of ticks without compositing the
// framebuffer, for fast-forwarding test ROMs that only care about serial
// output (see blargg_test.go).
func (m *Machine) StepFrameNoRender() {
	if m.rl == nil {
		return
	}
	m.rl.StepFrameNoRender()
}

// Framebuffer returns the current 160x144 RGBA frame.
func (m *Machine) Framebuffer() []byte {
	if m.rl == nil {
		return make([]byte, 160*144*4)
	}
	return m.rl.Framebuffer()
}

// SetButtons updates which joypad buttons are currently held.
func (m *Machine) SetButtons(b Buttons) {
	if m.bus != nil {
		m.bus.SetJoypadState(b.mask())
	}
}

// SetSerialWriter installs the sink that receives bytes sent over the
// serial port, replacing any previously attached writer (plus an optional
// terminal mirror enabled via Config.SerialToTerminal).
func (m *Machine) SetSerialWriter(w io.Writer) {
	m.serialWriters = nil
	if w != nil {
		m.serialWriters = append(m.serialWriters, w)
	}
	m.wireSerial()
}

func (m *Machine) wireSerial() {
	if m.bus == nil {
		return
	}
	writers := m.serialWriters
	if m.cfg.SerialToTerminal {
		writers = append(append([]io.Writer{}, writers...), os.Stdout)
	}
	switch len(writers) {
	case 0:
		m.bus.SetSerialWriter(nil)
	case 1:
		m.bus.SetSerialWriter(writers[0])
	default:
		m.bus.SetSerialWriter(io.MultiWriter(writers...))
	}
}

// LoadBattery loads cartridge RAM previously returned by SaveBattery, if
// the current cartridge is battery-backed. Returns false otherwise.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns the current cartridge RAM for persistence, if the
// cartridge is battery-backed.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	return bb.SaveRAM(), true
}

// ResetPostBoot reconstructs the runtime in post-boot-ROM state (the
// default path, skipping a boot ROM even if one is set).
func (m *Machine) ResetPostBoot() {
	if m.bus == nil {
		return
	}
	saved := m.bootROM
	m.bootROM = nil
	m.buildRuntime(m.bus.Cart())
	m.bootROM = saved
}

// ResetWithBoot reconstructs the runtime starting from 0x0000, running the
// configured boot ROM if one is set (falls back to a post-boot reset
// otherwise).
func (m *Machine) ResetWithBoot() {
	if m.bus == nil {
		return
	}
	m.buildRuntime(m.bus.Cart())
}

// WantCGBColors, UseCGBBG, SetUseCGBBG, IsCGBCompat and ResetCGBPostBoot
// form the CGB-compatibility-mode surface the UI's menu exposes. CGB
// register/color emulation is an explicit non-goal for this core (see
// DESIGN.md): this core is DMG-only, so WantCGBColors and IsCGBCompat
// always report false, UseCGBBG only returns the last value passed to
// SetUseCGBBG (nothing else reads it), and ResetCGBPostBoot behaves like a
// plain ResetPostBoot. They exist so internal/ui's menu compiles; its
// "CGB Colors" setting therefore always shows Off.
func (m *Machine) WantCGBColors() bool   { return false }
func (m *Machine) UseCGBBG() bool        { return m.useCGBBG }
func (m *Machine) SetUseCGBBG(v bool)    { m.useCGBBG = v }
func (m *Machine) IsCGBCompat() bool     { return false }
func (m *Machine) ResetCGBPostBoot(bool) { m.ResetPostBoot() }

// APUClearAudioLatency drops any buffered samples, used by the UI when the
// user jumps (reset/load) and stale audio would otherwise play back.
func (m *Machine) APUClearAudioLatency() {
	if m.bus == nil || m.bus.APU() == nil {
		return
	}
	a := m.bus.APU()
	a.PullStereo(a.StereoAvailable())
}

// APUCapBufferedStereo discards buffered stereo samples beyond frames
// pairs, keeping audio latency bounded.
func (m *Machine) APUCapBufferedStereo(frames int) {
	if m.bus == nil || m.bus.APU() == nil {
		return
	}
	a := m.bus.APU()
	if avail := a.StereoAvailable(); avail > frames {
		a.PullStereo(avail - frames)
	}
}

// APUBufferedStereo returns the number of buffered stereo sample pairs.
func (m *Machine) APUBufferedStereo() int {
	if m.bus == nil || m.bus.APU() == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUPullStereo drains up to n interleaved L/R stereo samples.
func (m *Machine) APUPullStereo(n int) []int16 {
	if m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullStereo(n)
}

// SaveStateToFile and LoadStateFromFile are not implemented: save-state
// round-tripping is an explicit non-goal for this core. internal/ui treats
// the returned error as a recoverable failure (it shows a toast), so this
// is a safe, honest stub rather than a silent no-op.
func (m *Machine) SaveStateToFile(path string) error {
	return fmt.Errorf("save %s: %w", path, ErrSaveStateNotSupported)
}
func (m *Machine) LoadStateFromFile(path string) error {
	return fmt.Errorf("load %s: %w", path, ErrSaveStateNotSupported)
}
