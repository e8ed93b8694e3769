//go:build amd64

package main

import "testing"

func TestJitOutcomeTagRoundTrip(t *testing.T) {
	j := jitJump(0x2AB)
	if jitOutcomeTag(j) != jitTagJump || jitOutcomePC(j) != 0x2AB {
		t.Fatalf("jitJump round-trip: tag=%d pc=%#04X", jitOutcomeTag(j), jitOutcomePC(j))
	}
	u := jitUseInterpreter(0x3CD)
	if jitOutcomeTag(u) != jitTagUseInterpreter || jitOutcomePC(u) != 0x3CD {
		t.Fatalf("jitUseInterpreter round-trip: tag=%d pc=%#04X", jitOutcomeTag(u), jitOutcomePC(u))
	}
}

func TestJITBackendRunsSimpleArithmetic(t *testing.T) {
	rom := []byte{
		0x60, 0x05, // LD V0, 5
		0x70, 0x03, // ADD V0, 3
	}
	s := NewMachineState(1)
	if err := s.LoadROM(rom); err != nil {
		t.Fatal(err)
	}
	cache := NewBlockCache()
	s.AttachCache(cache)

	jit, err := NewJITBackend(s, cache)
	if err != nil {
		t.Fatalf("NewJITBackend: %v", err)
	}
	if r := jit.RunQuantum(2); r.Err != nil {
		t.Fatalf("RunQuantum: %v", r.Err)
	}
	if s.V[0] != 8 {
		t.Errorf("V0 = %d, want 8", s.V[0])
	}
	if s.PC != ROMBase+4 {
		t.Errorf("PC = %#04X, want %#04X", s.PC, ROMBase+4)
	}
}

// tinyArena rejects every Alloc after its capacity is spent, simulating
// exhaustion without needing a real executable mapping.
type tinyArena struct {
	capacity int
	used     int
	resets   int
}

func (a *tinyArena) Alloc(code []byte) (uintptr, error) {
	if a.used+len(code) > a.capacity {
		return 0, ErrOutOfMemoryForJit
	}
	a.used += len(code)
	return 1, nil
}

func (a *tinyArena) Reset() { a.used = 0; a.resets++ }

func TestJITBackendReportsOutOfMemory(t *testing.T) {
	rom := []byte{
		0x60, 0x05, // LD V0, 5
		0x70, 0x03, // ADD V0, 3
	}
	s := NewMachineState(1)
	if err := s.LoadROM(rom); err != nil {
		t.Fatal(err)
	}
	cache := NewBlockCache()
	s.AttachCache(cache)
	arena := &tinyArena{capacity: 0}
	cache.SetFlushHook(arena.Reset)
	jit := &JITBackend{s: s, cache: cache, arena: arena, f: fieldAddrs(s)}

	r := jit.RunQuantum(2)
	if r.Err != ErrOutOfMemoryForJit {
		t.Fatalf("RunQuantum with a zero-capacity arena: got %v, want ErrOutOfMemoryForJit", r.Err)
	}

	// A flush alone does not grow the arena: retrying translation at the
	// same PC must report the same immediate exhaustion, which is what
	// lets Controller.handleRecoverable observe a genuine recurrence and
	// escalate to fatal (spec.md §7, §8 boundary scenario 6).
	cache.FlushAll()
	if r := jit.RunQuantum(1); r.Err != ErrOutOfMemoryForJit {
		t.Fatalf("retry after flush with still-zero capacity: got %v, want ErrOutOfMemoryForJit", r.Err)
	}
}

func TestJITBackendDeoptsOnDraw(t *testing.T) {
	rom := []byte{
		0xA0, 0x50, // LD I, FontBase
		0x60, 0x00, // LD V0, 0
		0x61, 0x00, // LD V1, 0
		0xD0, 0x15, // DRW V0, V1, 5 -- must deopt to the interpreter
	}
	s := NewMachineState(1)
	if err := s.LoadROM(rom); err != nil {
		t.Fatal(err)
	}
	cache := NewBlockCache()
	s.AttachCache(cache)

	jit, err := NewJITBackend(s, cache)
	if err != nil {
		t.Fatalf("NewJITBackend: %v", err)
	}
	if r := jit.RunQuantum(4); r.Err != nil {
		t.Fatalf("RunQuantum: %v", r.Err)
	}
	if !s.screen.At(0, 0) {
		t.Error("expected the '0' glyph's top-left pixel set after the deopted DRW")
	}
}
