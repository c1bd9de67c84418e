package ppu

// BuffersForRendering is the snapshot of raw tile/map/palette bytes a host
// renderer needs to draw one scanline. It is assembled once per scanline (at
// the Transfer/HBlank boundary) and once per OAMScan/Transfer boundary for
// the object buffer; the host must treat it as frozen between those points.
type BuffersForRendering struct {
	BackgroundTileMap [tileMapSize]byte
	WindowTileMap     [tileMapSize]byte
	BGAndWindowTileData [tileDataPairSize]byte
	ObjectTileData      [tileDataPairSize]byte

	// Viewport is {SCX, SCY, WX, WY}.
	Viewport [4]uint32
	// Palettes is {BGP, OBP0, OBP1, 0}.
	Palettes [4]uint32
	// Line is {LY, LCDC, window-on-this-line flag, window-internal-line}.
	Line [4]uint32

	// ObjectsInScanline holds up to 10 objects visible on the snapshotted
	// line, each as ToBytes(): {Y, X, TileIndex, Attributes}.
	ObjectsInScanline [10][4]uint32
}

// ChangesToPropagate records which buffers changed since the host last
// called PPU.ClearChanges, so it can skip re-uploading anything untouched.
type ChangesToPropagate struct {
	TileDataFlagChanged          bool
	TileDataBlock01Changed       bool
	TileDataBlock21Changed       bool
	BackgroundTileMapFlagChanged bool
	WindowTileMapFlagChanged     bool
	TileMap0Changed              bool
	TileMap1Changed              bool
	BackgroundViewportPositionChanged bool
	WindowViewportPositionChanged     bool
	PaletteChanged                    bool
}

// snapshotRenderingBuffers fills the Transfer-mode buffers: tile maps, tile
// data, viewport/palette vectors, and the per-line rendering vector. Called
// once per scanline on exit from Transfer.
func (p *PPU) snapshotRenderingBuffers() {
	p.buffers.BackgroundTileMap = p.backgroundTileMap()
	p.buffers.WindowTileMap = p.windowTileMap()
	p.buffers.BGAndWindowTileData = p.bgAndWindowTileData()
	p.buffers.ObjectTileData = p.objectTileData()

	p.buffers.Viewport = [4]uint32{uint32(p.scx), uint32(p.scy), uint32(p.wx), uint32(p.wy)}
	p.buffers.Palettes = [4]uint32{uint32(p.bgp), uint32(p.obp0), uint32(p.obp1), 0}

	windowLine := p.windowInternalLine
	if p.windowOnThisLine {
		windowLine--
	}
	p.buffers.Line = [4]uint32{
		uint32(p.ly),
		uint32(p.lcdc),
		boolToUint32(p.windowOnThisLine),
		uint32(windowLine),
	}
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// backgroundTileMap returns the 1024-byte tile map selected by LCDC bit 3.
func (p *PPU) backgroundTileMap() [tileMapSize]byte {
	return p.tileMap(p.lcdc&(1<<3) != 0)
}

// windowTileMap returns the 1024-byte tile map selected by LCDC bit 6.
func (p *PPU) windowTileMap() [tileMapSize]byte {
	return p.tileMap(p.lcdc&(1<<6) != 0)
}

func (p *PPU) tileMap(useMapOne bool) [tileMapSize]byte {
	var out [tileMapSize]byte
	start := tileMapZeroStart
	if useMapOne {
		start = tileMapOneStart
	}
	copy(out[:], p.vram[start-0x8000:start-0x8000+tileMapSize])
	return out
}

// bgAndWindowTileData returns the 4096 bytes of tile data addressed by LCDC
// bit 4: block 0+1 (0x8000-0x8FFF) when set, else block 2+1
// (0x9000-0x97FF followed by 0x8800-0x8FFF).
func (p *PPU) bgAndWindowTileData() [tileDataPairSize]byte {
	if p.lcdc&(1<<4) != 0 {
		return p.tileDataBlock01()
	}
	return p.tileDataBlock21()
}

// objectTileData returns block 0+1, the addressing sprites always use
// regardless of LCDC bit 4.
func (p *PPU) objectTileData() [tileDataPairSize]byte {
	return p.tileDataBlock01()
}

func (p *PPU) tileDataBlock01() [tileDataPairSize]byte {
	var out [tileDataPairSize]byte
	copy(out[:], p.vram[tileDataBlock0Start-0x8000:tileDataBlock0Start-0x8000+tileDataPairSize])
	return out
}

func (p *PPU) tileDataBlock21() [tileDataPairSize]byte {
	var out [tileDataPairSize]byte
	copy(out[:2048], p.vram[tileDataBlock2Start-0x8000:tileDataBlock2Start-0x8000+2048])
	copy(out[2048:], p.vram[tileDataBlock1Start-0x8000:tileDataBlock1Start-0x8000+2048])
	return out
}
