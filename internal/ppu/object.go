package ppu

import "sort"

// Object is one 4-byte OAM entry (see https://gbdev.io/pandocs/OAM.html).
// Y=0 means the object's top edge sits 16 pixels above the top of the
// screen; X=0 means its left edge sits 8 pixels left of the screen.
type Object struct {
	Y          byte
	X          byte
	TileIndex  byte
	Attributes byte
}

// ToBytes returns the object widened to a 4-uint32 row, matching the layout
// BuffersForRendering.ObjectsInScanline hands to the host renderer.
func (o Object) ToBytes() [4]uint32 {
	return [4]uint32{uint32(o.Y), uint32(o.X), uint32(o.TileIndex), uint32(o.Attributes)}
}

func objectAt(oam *[oamSize]byte, index int) Object {
	base := index * 4
	return Object{
		Y:          oam[base],
		X:          oam[base+1],
		TileIndex:  oam[base+2],
		Attributes: oam[base+3],
	}
}

// snapshotObjectsForScanline selects up to 10 visible objects for the line
// that just finished OAMScan, in OAM order, then sorts them for draw order
// by ascending X with x==0 placed after non-zero X (so that, on a DMG with
// no priority bit, off-left-edge sprites don't incorrectly win ties against
// real ones). Called once per scanline on exit from OAMScan.
func (p *PPU) snapshotObjectsForScanline() {
	height := byte(8)
	if p.lcdc&(1<<2) != 0 {
		height = 16
	}
	adjustedScanline := p.ly + 16

	type candidate struct {
		obj       Object
		origIndex int
	}
	var visible []candidate
	for i := 0; i < 40; i++ {
		obj := objectAt(&p.oam, i)
		if obj.Y <= adjustedScanline && obj.Y+height > adjustedScanline {
			visible = append(visible, candidate{obj: obj, origIndex: i})
			if len(visible) == 10 {
				break
			}
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return customOrderingLess(visible[i].obj.X, visible[j].obj.X)
	})

	var out [10][4]uint32
	for i, c := range visible {
		out[i] = c.obj.ToBytes()
	}
	p.buffers.ObjectsInScanline = out
}

// customOrderingLess implements the DMG-compositing comparator: x==0 sorts
// after any non-zero x (it never takes priority in a tie because x=0 means
// "off the left edge"), equal values are a no-op tie, and otherwise ascending
// x wins. Paired with sort.SliceStable, ties keep their OAM order.
func customOrderingLess(a, b byte) bool {
	if a == b {
		return false
	}
	if a == 0 {
		return false
	}
	if b == 0 {
		return true
	}
	return a < b
}
