// Package ppu implements the DMG pixel-processing unit as a scanline-granular
// state machine. It never composites pixels itself: at well-defined mode
// transitions it snapshots raw tile/map/palette bytes into a
// BuffersForRendering view for a host renderer to interpret, and records
// which of those buffers actually changed since the last snapshot so the
// host can skip redundant uploads.
package ppu

import "github.com/RaoulLuque/rustboy/internal/interrupt"

const (
	vramSize = 0x2000
	oamSize  = 0xA0

	tileMapZeroStart = 0x9800
	tileMapOneStart  = 0x9C00
	tileMapSize      = 1024

	tileDataBlock0Start = 0x8000
	tileDataBlock1Start = 0x8800
	tileDataBlock2Start = 0x9000
	tileDataPairSize    = 4096

	// DotsInTransfer is the nominal duration of mode 3.
	DotsInTransfer = 172
	// DotsInHBlankPlusTransfer bounds the combined duration of mode 3 and
	// mode 0 for a single scanline; HBlank is sized as this minus whatever
	// the preceding Transfer actually consumed.
	DotsInHBlankPlusTransfer = 376
	// DotsInOAMScan is the duration of mode 2, and also of the quirked
	// first HBlank immediately after the LCD is turned back on.
	DotsInOAMScan = 80
	// DotsInVBlank is the total dot count of all ten VBlank lines.
	DotsInVBlank = 4560

	dotsPerVBlankLine = DotsInVBlank / 10
)

// Mode is one of the four states exposed via STAT bits 0-1.
type Mode byte

const (
	HBlank Mode = iota
	VBlank
	OAMScan
	Transfer
)

// RenderTaskKind distinguishes the three things a Tick result can ask the
// Runloop to do.
type RenderTaskKind byte

const (
	TaskNone RenderTaskKind = iota
	TaskWriteLine
	TaskPresentFrame
)

// RenderTask is returned from Tick. Line is only meaningful when Kind is
// TaskWriteLine.
type RenderTask struct {
	Kind RenderTaskKind
	Line byte
}

// PPU owns VRAM, OAM, the FF40-FF4B register file, and the scanline state
// machine. It is driven exclusively through Tick; CPURead/CPUWrite are for
// the bus to wire up the memory-mapped surface.
type PPU struct {
	vram [vramSize]byte
	oam  [oamSize]byte

	lcdc, stat      byte
	scy, scx        byte
	ly, lyc         byte
	bgp, obp0, obp1 byte
	wy, wx          byte

	dotsClock           uint32
	totalDots           uint64
	dotsForTransfer     uint32
	lcdWasOff           bool
	firstLineAfterLCDOn bool

	windowInternalLine byte
	wyMetThisFrame     bool
	windowOnThisLine   bool

	buffers BuffersForRendering
	changes ChangesToPropagate

	req func(interrupt.Source)

	// doctor makes LY always read back as 0x90, matching the well-known
	// external trace tool's expectation (see internal/trace). It must
	// stay off for anything that cares about correctness.
	doctor bool
}

// SetDoctorMode toggles the LY=0x90 read quirk a popular external
// CPU-trace tool relies on. Never enable this outside --doctor runs.
func (p *PPU) SetDoctorMode(on bool) { p.doctor = on }

// New returns a PPU with the LCD considered off, matching the post-power-on
// state: the first Tick with LCDC bit 7 set triggers the documented
// first-line-after-LCD-on quirk.
func New(req func(interrupt.Source)) *PPU {
	return &PPU{req: req, lcdWasOff: true}
}

func (p *PPU) mode() Mode { return Mode(p.stat & 0x03) }

func (p *PPU) request(s interrupt.Source) {
	if p.req != nil {
		p.req(s)
	}
}

// CPURead returns a byte for VRAM, OAM, and the PPU I/O registers.
func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		if p.lcdc&0x80 == 0 {
			// Documented DMG quirk: with the LCD off, STAT's mode bits
			// read back as the VBlank encoding regardless of the last
			// mode latched before power-down.
			return (p.stat &^ 0x03) | byte(VBlank)
		}
		return p.stat
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		if p.doctor {
			return 0x90
		}
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	default:
		return 0xFF
	}
}

// CPUWrite handles writes to VRAM, OAM, and the PPU I/O registers, updating
// the dirty-flag record (ChangesToPropagate) where the spec calls for it.
func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		p.writeVRAM(addr, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		p.writeLCDC(value)
	case addr == 0xFF41:
		p.stat = (p.stat & 0x87) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
		p.changes.BackgroundViewportPositionChanged = true
	case addr == 0xFF43:
		p.scx = value
		p.changes.BackgroundViewportPositionChanged = true
	case addr == 0xFF44:
		// A ROM write to LY always resets it to 0.
		p.ly = 0
		p.updateLYCCoincidence()
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYCCoincidence()
	case addr == 0xFF47:
		if value != p.bgp {
			p.bgp = value
			p.changes.PaletteChanged = true
		}
	case addr == 0xFF48:
		if value != p.obp0 {
			p.obp0 = value
			p.changes.PaletteChanged = true
		}
	case addr == 0xFF49:
		if value != p.obp1 {
			p.obp1 = value
			p.changes.PaletteChanged = true
		}
	case addr == 0xFF4A:
		if value != p.wy {
			p.wy = value
			p.changes.WindowViewportPositionChanged = true
		}
	case addr == 0xFF4B:
		if value != p.wx {
			p.wx = value
			p.changes.WindowViewportPositionChanged = true
		}
	}
}

// writeVRAM stores the byte and marks whichever tile-map/tile-data dirty
// flags the address touches, mirroring the original write_vram split on
// 0x9800.
func (p *PPU) writeVRAM(addr uint16, value byte) {
	p.vram[addr-0x8000] = value
	if addr >= tileMapZeroStart {
		if addr < tileMapOneStart {
			p.changes.TileMap0Changed = true
		} else {
			p.changes.TileMap1Changed = true
		}
		return
	}
	p.changes.TileDataFlagChanged = true
	if addr < tileDataBlock2Start {
		p.changes.TileDataBlock01Changed = true
	}
	if addr >= tileDataBlock1Start {
		p.changes.TileDataBlock21Changed = true
	}
}

func (p *PPU) writeLCDC(value byte) {
	old := p.lcdc
	p.lcdc = value
	distinct := old ^ value
	if distinct&0x40 != 0 { // window tile map select
		p.changes.WindowTileMapFlagChanged = true
	}
	if distinct&0x10 != 0 { // bg/window tile data addressing
		p.changes.TileDataFlagChanged = true
	}
	if distinct&0x08 != 0 { // bg tile map select
		p.changes.BackgroundTileMapFlagChanged = true
	}
}

// Tick advances the PPU by the given number of dots and returns what the
// Runloop should do with the scanline/frame that just finished, if any.
func (p *PPU) Tick(dots int) RenderTask {
	if dots <= 0 {
		return RenderTask{Kind: TaskNone}
	}
	p.totalDots += uint64(dots)

	if p.lcdc&0x80 == 0 {
		if !p.lcdWasOff {
			p.dotsClock = 0
			p.dotsForTransfer = 0
			p.setMode(HBlank)
			p.setLY(0)
			p.lcdWasOff = true
		}
		return RenderTask{Kind: TaskNone}
	}

	if p.lcdWasOff {
		// The LCD starts in HBlank; the first line runs only
		// DotsInOAMScan dots here before Transfer, per the documented
		// DMG first-line-after-LCD-on quirk.
		p.setMode(HBlank)
		p.firstLineAfterLCDOn = true
		p.lcdWasOff = false
	}

	p.dotsClock += uint32(dots)

	switch p.mode() {
	case HBlank:
		if p.firstLineAfterLCDOn {
			if p.dotsClock >= DotsInOAMScan {
				p.dotsClock -= DotsInOAMScan
				p.setMode(Transfer)
				p.firstLineAfterLCDOn = false
			}
			return RenderTask{Kind: TaskNone}
		}
		threshold := DotsInHBlankPlusTransfer - p.dotsForTransfer
		if p.dotsClock >= threshold {
			p.dotsClock -= threshold
			p.setLY(p.ly + 1)
			if p.ly == 144 {
				p.setMode(VBlank)
				p.request(interrupt.VBlank)
				return RenderTask{Kind: TaskPresentFrame}
			}
			p.setMode(OAMScan)
			p.checkWYCondition()
			return RenderTask{Kind: TaskWriteLine, Line: p.ly - 1}
		}
	case VBlank:
		if p.dotsClock >= dotsPerVBlankLine {
			p.dotsClock -= dotsPerVBlankLine
			p.setLY(p.ly + 1)
			if p.ly == 154 {
				p.updateWindowInternalLine(154)
				p.wyMetThisFrame = false
				p.windowOnThisLine = false
				p.setLY(0)
				p.checkWYCondition()
				p.setMode(OAMScan)
			}
		}
	case OAMScan:
		if p.dotsClock >= DotsInOAMScan {
			p.dotsClock -= DotsInOAMScan
			p.snapshotObjectsForScanline()
			p.setMode(Transfer)
		}
	case Transfer:
		if p.dotsClock >= DotsInTransfer {
			p.dotsClock -= DotsInTransfer
			p.dotsForTransfer = DotsInTransfer
			p.updateWindowInternalLine(p.ly)
			p.snapshotRenderingBuffers()
			p.setMode(HBlank)
			if p.ly == 143 {
				// Line 143's HBlank exit enters VBlank and reports
				// PresentFrame, so line 143 is handed over here instead.
				return RenderTask{Kind: TaskWriteLine, Line: p.ly}
			}
		}
	}
	return RenderTask{Kind: TaskNone}
}

// setMode updates STAT bits 0-1 and requests a STAT interrupt if the newly
// entered mode's interrupt-select bit is set. Mode 3 never raises STAT.
func (p *PPU) setMode(m Mode) {
	p.stat = (p.stat &^ 0x03) | byte(m)
	switch m {
	case HBlank:
		if p.stat&(1<<3) != 0 {
			p.request(interrupt.STAT)
		}
	case VBlank:
		if p.stat&(1<<4) != 0 {
			p.request(interrupt.STAT)
		}
	case OAMScan:
		if p.stat&(1<<5) != 0 {
			p.request(interrupt.STAT)
		}
	}
}

// setLY updates the current scanline register and re-evaluates the LYC
// coincidence flag.
func (p *PPU) setLY(v byte) {
	p.ly = v
	p.updateLYCCoincidence()
}

func (p *PPU) updateLYCCoincidence() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if p.stat&(1<<6) != 0 {
			p.request(interrupt.STAT)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

// checkWYCondition latches wyMetThisFrame the instant WY==LY, which the
// hardware evaluates on every OAMScan entry per Pan Docs' window scrolling
// notes.
func (p *PPU) checkWYCondition() {
	if p.ly == p.wy {
		p.wyMetThisFrame = true
	}
}

// updateWindowInternalLine advances the window's internal line counter when
// the window actually rendered on currentScanline, and resets it when
// called with a scanline above 143 (Tick passes 154 when LY wraps to 0 at
// the end of VBlank).
func (p *PPU) updateWindowInternalLine(currentScanline byte) {
	if currentScanline > 143 {
		p.windowInternalLine = 0
		return
	}
	if p.wyMetThisFrame && p.wx < 167 && p.lcdc&(1<<5) != 0 {
		p.windowOnThisLine = true
		p.windowInternalLine++
	} else {
		p.windowOnThisLine = false
	}
}

// Registers exposes raw register values for trace/doctor output and tests.
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) STAT() byte { return p.stat }
func (p *PPU) LY() byte   { return p.ly }
func (p *PPU) LYC() byte  { return p.lyc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }
func (p *PPU) Dot() int   { return int(p.dotsClock) }

// Buffers returns the immutable snapshot assembled at the last OAMScan to
// Transfer (objects) and Transfer to HBlank (everything else) transitions.
// The host must not mutate the returned value.
func (p *PPU) Buffers() *BuffersForRendering { return &p.buffers }

// Changes returns the dirty-flag record accumulated since the host last
// called ClearChanges.
func (p *PPU) Changes() ChangesToPropagate { return p.changes }

// ClearChanges resets the dirty-flag record; the host calls this once it has
// consumed (or decided to skip) the pending changes.
func (p *PPU) ClearChanges() { p.changes = ChangesToPropagate{} }
