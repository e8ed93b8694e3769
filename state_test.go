package main

import "testing"

func TestLoadROMTooLarge(t *testing.T) {
	s := NewMachineState(1)
	rom := make([]byte, MaxROMSize+1)
	if err := s.LoadROM(rom); err != ErrRomTooLarge {
		t.Fatalf("LoadROM(oversize) = %v, want ErrRomTooLarge", err)
	}
}

func TestWriteRangeMarksPagesDirty(t *testing.T) {
	s := NewMachineState(1)
	if s.PageDirty(0x300) {
		t.Fatal("page should start clean")
	}
	s.WriteRange(0x300, []byte{1, 2, 3})
	if !s.PageDirty(0x300) {
		t.Error("page covering the write should be dirty")
	}
	if s.PageDirty(0x300 + pageSize) {
		t.Error("adjacent page must not be marked dirty")
	}
}

func TestWriteRangeWrapsPast4095(t *testing.T) {
	s := NewMachineState(1)
	addr := uint16(RAMSize - 2)
	s.WriteRange(addr, []byte{0xAA, 0xBB, 0xCC})
	if s.ReadByte(RAMSize-2) != 0xAA || s.ReadByte(RAMSize-1) != 0xBB || s.ReadByte(0) != 0xCC {
		t.Fatal("WriteRange did not wrap 12-bit addresses correctly")
	}
}

func TestWriteRouteInvalidatesCache(t *testing.T) {
	s := NewMachineState(1)
	cache := NewBlockCache()
	s.AttachCache(cache)
	cache.Install(&Block{StartPC: 0x300, Length: 4, Payload: noopPayload{}})

	s.WriteByte(0x301, 0x42)
	if _, ok := cache.Lookup(0x300); ok {
		t.Fatal("a write inside a block's coverage must invalidate it")
	}
}

func TestDrawXorsAndReportsErasure(t *testing.T) {
	s := NewMachineState(1)
	s.I = 0x300
	s.WriteByte(0x300, 0xFF) // one row, all 8 pixels set
	if erased := s.draw(0, 0, 1); erased {
		t.Fatal("first draw onto a blank screen should not erase anything")
	}
	if !s.screen.At(0, 0) {
		t.Fatal("expected pixel (0,0) set after first draw")
	}
	if erased := s.draw(0, 0, 1); !erased {
		t.Fatal("drawing the same sprite again should erase (XOR) and report it")
	}
	if s.screen.At(0, 0) {
		t.Fatal("pixel should be cleared after the second XOR draw")
	}
}

func TestResetPreservesMemoryAboveROMBase(t *testing.T) {
	s := NewMachineState(1)
	if err := s.LoadROM([]byte{0xAB, 0xCD}); err != nil {
		t.Fatal(err)
	}
	s.V[3] = 42
	s.PC = 0x400
	s.Reset()
	if s.V[3] != 0 {
		t.Error("Reset must clear registers")
	}
	if s.PC != ROMBase {
		t.Errorf("PC = %#04X after Reset, want ROMBase", s.PC)
	}
	if s.ReadByte(ROMBase) != 0xAB || s.ReadByte(ROMBase+1) != 0xCD {
		t.Error("Reset must not touch the loaded ROM bytes")
	}
}
