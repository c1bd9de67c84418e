package cart

import (
	"errors"
	"testing"
)

func TestNew_ROMOnly(t *testing.T) {
	rom := buildROM("NOMBC", 0x00, 0x00, 0x00, 32*1024)
	c, err := New(rom)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := c.(*ROMOnly); !ok {
		t.Fatalf("New returned %T, want *ROMOnly", c)
	}
}

func TestNew_MBC1(t *testing.T) {
	rom := buildROM("MBC1GAME", 0x03, 0x01, 0x02, 64*1024) // MBC1+RAM+BATTERY
	c, err := New(rom)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	m, ok := c.(*MBC1)
	if !ok {
		t.Fatalf("New returned %T, want *MBC1", c)
	}
	if _, ok := c.(BatteryBacked); !ok {
		t.Fatalf("*MBC1 does not implement BatteryBacked")
	}
	_ = m
}

func TestNew_UnsupportedMBC(t *testing.T) {
	rom := buildROM("MBC3GAME", 0x11, 0x01, 0x00, 64*1024) // MBC3
	_, err := New(rom)
	if err == nil {
		t.Fatalf("expected error for MBC3 cartridge type")
	}
	var unsupported *UnsupportedMBCError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedMBCError, got %T (%v)", err, err)
	}
	if unsupported.CartType != 0x11 {
		t.Fatalf("CartType got %#02x want 0x11", unsupported.CartType)
	}
}
