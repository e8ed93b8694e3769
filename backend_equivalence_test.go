package main

import "testing"

// buildEquivProgram exercises arithmetic and the register-block opcode
// without ever touching Cxkk, Dxyn or Fx0A, so its outcome is identical no
// matter which backend runs it. It ends without a block terminator, which
// is deliberate: decodeBlock stops at the first undecodable word (the
// zero-filled RAM past the ROM), so every cached backend forms exactly one
// 7-instruction block here and none of them can run past what the
// interpreter's 7-step trace covers.
func buildEquivProgram() []byte {
	rom := make([]byte, 0, 16)
	emit := func(op uint16) { rom = append(rom, byte(op>>8), byte(op)) }
	emit(0x6005) // 0x200 LD V0, 5
	emit(0x6103) // 0x202 LD V1, 3
	emit(0x8014) // 0x204 ADD V0, V1  -> V0=8, VF=0
	emit(0x8104) // 0x206 ADD V1, V0  -> V1=11, VF=0
	emit(0x8015) // 0x208 SUB V0, V1  -> V0=8-11=253, VF=0 (borrow)
	emit(0xA300) // 0x20A LD I, 0x300
	emit(0xFF55) // 0x20C LD [I], V0..VF (stores 16 regs), I becomes 0x310
	return rom
}

func runN(t *testing.T, b backend, s *MachineState, n int) {
	t.Helper()
	r := b.RunQuantum(n)
	if r.Err != nil {
		t.Fatalf("RunQuantum: %v", r.Err)
	}
	_ = s
}

func TestCachedTiersAgreeWithInterpreter(t *testing.T) {
	rom := buildEquivProgram()
	const steps = 7

	ref := NewMachineState(9)
	if err := ref.LoadROM(rom); err != nil {
		t.Fatal(err)
	}
	runN(t, NewInterpreter(ref), ref, steps)

	for name, build := range map[string]func(*MachineState, *BlockCache) backend{
		"tier1": func(s *MachineState, c *BlockCache) backend { return NewTier1Backend(s, c) },
		"tier2": func(s *MachineState, c *BlockCache) backend { return NewTier2Backend(s, c) },
		"tier3": func(s *MachineState, c *BlockCache) backend { return NewTier3Backend(s, c) },
	} {
		s := NewMachineState(9)
		if err := s.LoadROM(rom); err != nil {
			t.Fatal(err)
		}
		cache := NewBlockCache()
		s.AttachCache(cache)
		runN(t, build(s, cache), s, steps)

		if s.V != ref.V {
			t.Errorf("%s: V = %v, want %v", name, s.V, ref.V)
		}
		if s.I != ref.I {
			t.Errorf("%s: I = %#04X, want %#04X", name, s.I, ref.I)
		}
		if s.PC != ref.PC {
			t.Errorf("%s: PC = %#04X, want %#04X", name, s.PC, ref.PC)
		}
		for addr := uint16(0x300); addr < 0x310; addr++ {
			if s.ReadByte(addr) != ref.ReadByte(addr) {
				t.Errorf("%s: mem[%#04X] = %#02X, want %#02X", name, addr, s.ReadByte(addr), ref.ReadByte(addr))
			}
		}
	}
}
