// Package cart implements the cartridge/MBC layer: ROM header parsing, the
// no-MBC ROM-only mapper, and the MBC1 banked mapper.
package cart

import "fmt"

// Cartridge is the minimal interface the Bus needs for ROM/RAM banking.
// Addresses are CPU addresses; the bus delegates 0000-7FFF and A000-BFFF
// here unmodified.
type Cartridge interface {
	// Read returns a byte for ROM (0000-7FFF) and external RAM (A000-BFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0000-7FFF) and external RAM writes
	// (A000-BFFF). All writes below 0x8000 are configuration, never memory.
	Write(addr uint16, value byte)
}

// BatteryBacked is implemented by cartridges whose external RAM should be
// persisted by the host between runs. The core never calls these itself
// (persistence is a host concern, see spec §6); cmd/gbemu uses them.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// UnsupportedMBCError is returned by New when the ROM header names a
// mapper this core does not implement (anything but no-MBC or MBC1).
type UnsupportedMBCError struct {
	CartType byte
	Name     string
}

func (e *UnsupportedMBCError) Error() string {
	return fmt.Sprintf("unsupported cartridge type %#02x (%s)", e.CartType, e.Name)
}

// New picks a Cartridge implementation from the ROM header. It returns
// *UnsupportedMBCError for any mapper outside {no-MBC, MBC1}.
func New(rom []byte) (Cartridge, error) {
	h, err := ParseHeader(rom)
	if err != nil {
		return nil, err
	}
	switch h.CartType {
	case 0x00:
		return NewROMOnly(rom), nil
	case 0x01, 0x02, 0x03:
		return NewMBC1(rom, h.RAMSizeBytes), nil
	default:
		return nil, &UnsupportedMBCError{CartType: h.CartType, Name: cartTypeString(h.CartType)}
	}
}
