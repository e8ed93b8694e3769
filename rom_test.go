package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadROMFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ch8")
	rom := []byte{0x00, 0xE0, 0x12, 0x00}
	if err := os.WriteFile(path, rom, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewController(&fakeHost{}, 1)
	if err := LoadROMFile(c, path); err != nil {
		t.Fatal(err)
	}
	if c.State().ReadByte(ROMBase) != 0x00 || c.State().ReadByte(ROMBase+1) != 0xE0 {
		t.Error("ROM bytes were not installed at ROMBase")
	}
}

func TestLoadROMFileMissing(t *testing.T) {
	c := NewController(&fakeHost{}, 1)
	if err := LoadROMFile(c, filepath.Join(t.TempDir(), "missing.ch8")); err == nil {
		t.Fatal("expected an error reading a nonexistent ROM file")
	}
}
