// Package runloop drives a CPU against its Bus one instruction at a time and
// composites the PPU's per-scanline snapshots into an RGBA framebuffer. The
// PPU never draws a pixel itself (see internal/ppu); compositing BG, window
// and OBJ layers from BuffersForRendering is this package's job, handed to
// it via Bus.SetRenderTaskHandler at the scanline/frame boundaries the PPU
// reports through its Tick return value.
package runloop

import (
	"github.com/RaoulLuque/rustboy/internal/bus"
	"github.com/RaoulLuque/rustboy/internal/cpu"
	"github.com/RaoulLuque/rustboy/internal/ppu"
)

const (
	screenW = 160
	screenH = 144
)

// shade is the DMG's 4-level grayscale ramp, lightest first.
var shade = [4][4]byte{
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0xAA, 0xAA, 0xAA, 0xFF},
	{0x55, 0x55, 0x55, 0xFF},
	{0x00, 0x00, 0x00, 0xFF},
}

// Runloop owns the single-threaded CPU->Bus step loop and the host-facing
// RGBA framebuffer. One Runloop is bound to one Bus for its lifetime.
type Runloop struct {
	bus *bus.Bus
	cpu *cpu.CPU

	fb         []byte // 160x144 RGBA, row-major
	frameDone  bool
	skipRender bool
}

// New wires a Runloop to drive c against b, installing itself as b's render
// task handler.
func New(b *bus.Bus, c *cpu.CPU) *Runloop {
	rl := &Runloop{bus: b, cpu: c, fb: make([]byte, screenW*screenH*4)}
	for i := range rl.fb {
		rl.fb[i] = 0xFF
	}
	b.SetRenderTaskHandler(rl.onRenderTask)
	return rl
}

// Framebuffer returns the current RGBA frame. The slice is reused across
// frames; callers needing to retain a frame must copy it.
func (rl *Runloop) Framebuffer() []byte { return rl.fb }

// StepFrame runs the CPU until a full frame has been presented, compositing
// every scanline along the way.
func (rl *Runloop) StepFrame() {
	rl.skipRender = false
	rl.runUntilFrame()
}

// StepFrameNoRender runs one frame's worth of CPU/PPU/timer ticks without
// touching the framebuffer, for fast-forwarding (e.g. test-ROM harnesses
// that only care about serial output).
func (rl *Runloop) StepFrameNoRender() {
	rl.skipRender = true
	rl.runUntilFrame()
}

func (rl *Runloop) runUntilFrame() {
	rl.frameDone = false
	for !rl.frameDone {
		rl.cpu.Step()
		if rl.cpu.Err() != nil {
			return
		}
	}
}

func (rl *Runloop) onRenderTask(t ppu.RenderTask) {
	switch t.Kind {
	case ppu.TaskWriteLine:
		if !rl.skipRender {
			rl.renderLine(t.Line)
		}
	case ppu.TaskPresentFrame:
		rl.frameDone = true
	}
}

// bgMem adapts a flattened BuffersForRendering tile-map/tile-data snapshot
// into the ppu.VRAMReader the fetcher helpers in internal/ppu/scanline.go
// expect, translating real VRAM addresses into offsets within the snapshot
// arrays the way internal/ppu/buffers.go assembled them.
type bgMem struct {
	tileMap  *[1024]byte
	mapBase  uint16
	data     *[4096]byte
	data8000 bool
}

func (m bgMem) Read(addr uint16) byte {
	if addr >= m.mapBase && addr < m.mapBase+1024 {
		return m.tileMap[addr-m.mapBase]
	}
	if m.data8000 {
		return m.data[addr-0x8000]
	}
	if addr >= 0x9000 {
		return m.data[addr-0x9000]
	}
	return m.data[2048+int(addr-0x8800)]
}

// renderLine composites BG, window and OBJ layers for one scanline from the
// PPU's frozen BuffersForRendering and writes it into the RGBA framebuffer.
func (rl *Runloop) renderLine(line byte) {
	if int(line) >= screenH {
		return
	}
	buf := rl.bus.PPU().Buffers()
	lcdc := byte(buf.Line[1])
	windowOnThisLine := buf.Line[2] != 0
	winLine := byte(buf.Line[3])
	scx, scy := byte(buf.Viewport[0]), byte(buf.Viewport[1])
	wx, wy := byte(buf.Viewport[2]), byte(buf.Viewport[3])
	_ = wy
	bgp, obp0, obp1 := byte(buf.Palettes[0]), byte(buf.Palettes[1]), byte(buf.Palettes[2])

	data8000 := lcdc&0x10 != 0

	var colorIdx [screenW]byte
	var fromObj [screenW]bool
	var objPalette [screenW]byte

	if lcdc&0x01 != 0 {
		bgReader := bgMem{tileMap: &buf.BackgroundTileMap, mapBase: 0x9800, data: &buf.BGAndWindowTileData, data8000: data8000}
		colorIdx = ppu.RenderBGScanlineUsingFetcher(bgReader, 0x9800, data8000, scx, scy, line)

		if lcdc&0x20 != 0 && windowOnThisLine {
			wxStart := int(wx) - 7
			winReader := bgMem{tileMap: &buf.WindowTileMap, mapBase: 0x9800, data: &buf.BGAndWindowTileData, data8000: data8000}
			winPixels := ppu.RenderWindowScanlineUsingFetcher(winReader, 0x9800, data8000, wxStart, winLine)
			for x := wxStart; x < screenW; x++ {
				if x < 0 {
					continue
				}
				colorIdx[x] = winPixels[x]
			}
		}
	}

	bgBehindMask := colorIdx // snapshot BG+window indices before OBJ compositing, for the behind-BG priority bit

	if lcdc&0x02 != 0 {
		rl.compositeObjects(&colorIdx, &bgBehindMask, &fromObj, &objPalette, buf, lcdc&0x04 != 0)
	}

	row := int(line) * screenW * 4
	for x := 0; x < screenW; x++ {
		ci := colorIdx[x]
		var pal byte
		switch {
		case fromObj[x] && objPalette[x] == 0:
			pal = obp0
		case fromObj[x]:
			pal = obp1
		default:
			pal = bgp
		}
		s := (pal >> (ci * 2)) & 0x03
		c := shade[s]
		off := row + x*4
		copy(rl.fb[off:off+4], c[:])
	}
}

// compositeObjects overlays up to 10 pre-selected sprites (buf.ObjectsInScanline,
// already sorted by internal/ppu's DMG draw-order comparator) onto colorIdx,
// honoring X/Y flip, the per-object palette bit, and the behind-BG priority
// bit against bgBehindMask (the BG+window color indices before OBJ drew).
func (rl *Runloop) compositeObjects(colorIdx *[screenW]byte, bgBehindMask *[screenW]byte, fromObj *[screenW]bool, objPalette *[screenW]byte, buf *ppu.BuffersForRendering, tall bool) {
	height := 8
	if tall {
		height = 16
	}
	var drawn [screenW]bool
	for _, raw := range buf.ObjectsInScanline {
		y, x, tile, attr := byte(raw[0]), byte(raw[1]), byte(raw[2]), byte(raw[3])
		if y == 0 && x == 0 && tile == 0 && attr == 0 {
			continue
		}
		line := int(byte(buf.Line[0])) + 16 - int(y)
		if line < 0 || line >= height {
			continue
		}
		if attr&0x40 != 0 { // Y flip
			line = height - 1 - line
		}
		tileIdx := tile
		fineY := line
		if tall {
			tileIdx = tile &^ 0x01
			if line >= 8 {
				tileIdx |= 0x01
				fineY = line - 8
			}
		}
		base := int(tileIdx)*16 + fineY*2
		if base < 0 || base+1 >= len(buf.ObjectTileData) {
			continue
		}
		lo, hi := buf.ObjectTileData[base], buf.ObjectTileData[base+1]
		xflip := attr&0x20 != 0
		behindBG := attr&0x80 != 0
		palSel := byte(0)
		if attr&0x10 != 0 {
			palSel = 1
		}
		for px := 0; px < 8; px++ {
			screenX := int(x) - 8 + px
			if screenX < 0 || screenX >= screenW || drawn[screenX] {
				continue
			}
			bit := 7 - px
			if xflip {
				bit = px
			}
			ci := ((hi>>uint(bit))&1)<<1 | ((lo >> uint(bit)) & 1)
			if ci == 0 {
				continue
			}
			if behindBG && bgBehindMask[screenX] != 0 {
				drawn[screenX] = true
				continue
			}
			colorIdx[screenX] = ci
			fromObj[screenX] = true
			objPalette[screenX] = palSel
			drawn[screenX] = true
		}
	}
}
