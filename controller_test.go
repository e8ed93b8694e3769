package main

import "testing"

type fakeHost struct {
	keys       [16]bool
	drawCalls  int
	beepStates []bool
	rand       uint8
	haveRand   bool
}

func (f *fakeHost) Draw(*Framebuffer)  { f.drawCalls++ }
func (f *fakeHost) Beep(on bool)       { f.beepStates = append(f.beepStates, on) }
func (f *fakeHost) PollKeys() [16]bool { return f.keys }
func (f *fakeHost) RandU8() (uint8, bool) {
	return f.rand, f.haveRand
}

// timedProgram is a tiny loop that keeps I incrementing forever, used to
// give every backend something to chew on without ever hitting an invalid
// opcode (an infinite JP back to itself's neighbor).
var timedProgram = []byte{
	0xA0, 0x00, // LD I, 0x000
	0xF0, 0x1E, // ADD I, V0
	0x12, 0x02, // JP 0x202 (loop the ADD)
}

func newTestController(t *testing.T) (*Controller, *fakeHost) {
	t.Helper()
	host := &fakeHost{}
	c := NewController(host, 1)
	if err := c.LoadROM(timedProgram); err != nil {
		t.Fatal(err)
	}
	return c, host
}

func TestBackendSwitchPreservesState(t *testing.T) {
	c, _ := newTestController(t)
	c.state.V[3] = 77
	for _, kind := range []BackendKind{BackendTier1, BackendTier2, BackendTier3, BackendInterpreter} {
		if err := c.SelectBackend(kind); err != nil {
			t.Fatalf("SelectBackend(%v): %v", kind, err)
		}
		if c.Backend() != kind {
			t.Errorf("Backend() = %v, want %v", c.Backend(), kind)
		}
		if c.state.V[3] != 77 {
			t.Errorf("V3 = %d after switching to %v, want 77 (state must survive)", c.state.V[3], kind)
		}
	}
}

func TestPauseSuspendsRunFrame(t *testing.T) {
	c, host := newTestController(t)
	c.Pause()
	if !c.Paused() {
		t.Fatal("Paused() should report true")
	}
	pcBefore := c.state.PC
	if err := c.RunFrame(); err != nil {
		t.Fatal(err)
	}
	if c.state.PC != pcBefore {
		t.Error("RunFrame must not advance the guest while paused")
	}
	if host.drawCalls != 0 {
		t.Error("a paused frame should never call Draw")
	}
	c.Resume()
	if c.Paused() {
		t.Fatal("Paused() should report false after Resume")
	}
}

func TestRunFramePollsKeysAndTicksTimers(t *testing.T) {
	c, host := newTestController(t)
	c.state.soundTimer = 2
	host.keys[5] = true
	if err := c.RunFrame(); err != nil {
		t.Fatal(err)
	}
	if !c.state.keys[5] {
		t.Error("RunFrame should latch PollKeys into Machine State")
	}
	if c.state.soundTimer != 1 {
		t.Errorf("soundTimer = %d, want 1 after one frame tick", c.state.soundTimer)
	}
}

func TestRunFrameMixesHostEntropy(t *testing.T) {
	c, host := newTestController(t)
	host.haveRand = true
	host.rand = 0x5A
	before := c.state.rng.state
	if err := c.RunFrame(); err != nil {
		t.Fatal(err)
	}
	if c.state.rng.state == before {
		t.Error("RunFrame should fold host RandU8 entropy into the PRNG state when offered")
	}
}

// oomBackend simulates a JIT-shaped backend whose arena stays exhausted
// (or recovers) across the flush-and-retry handleRecoverable performs,
// without needing amd64 machine code.
type oomBackend struct {
	quantumCalls int
	failFirst    int // RunQuantum fails ErrOutOfMemoryForJit this many times, then succeeds
}

func (b *oomBackend) Step() StepResult { return StepResult{} }

func (b *oomBackend) RunQuantum(n int) StepResult {
	b.quantumCalls++
	if b.quantumCalls <= b.failFirst {
		return StepResult{Err: ErrOutOfMemoryForJit}
	}
	return StepResult{}
}

func TestHandleRecoverableEscalatesOnImmediateRecurrence(t *testing.T) {
	c, _ := newTestController(t)
	b := &oomBackend{failFirst: 2} // still exhausted right after the flush-retry
	c.current = b

	if err := c.RunFrame(); err == nil {
		t.Fatal("RunFrame should surface a fatal error when OOM recurs immediately after a flush")
	}
	if c.LastError() == nil {
		t.Error("LastError should be set once handleRecoverable escalates to fatal")
	}
	if b.quantumCalls != 2 {
		t.Errorf("RunQuantum calls = %d, want 2 (original attempt + one flush-retry)", b.quantumCalls)
	}
}

func TestHandleRecoverableRecoversAfterFlush(t *testing.T) {
	c, _ := newTestController(t)
	b := &oomBackend{failFirst: 1} // the retry after flush succeeds
	c.current = b

	if err := c.RunFrame(); err != nil {
		t.Fatalf("RunFrame should recover once the flush-retry succeeds, got %v", err)
	}
	if c.LastError() != nil {
		t.Error("LastError should stay nil after a successful flush-retry")
	}
	if b.quantumCalls != 2 {
		t.Errorf("RunQuantum calls = %d, want 2 (original attempt + one flush-retry)", b.quantumCalls)
	}
}

func TestStepDoesNotTouchTimersOrHost(t *testing.T) {
	c, host := newTestController(t)
	c.state.soundTimer = 5
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if c.state.soundTimer != 5 {
		t.Error("Step must not tick timers")
	}
	if host.drawCalls != 0 {
		t.Error("Step must not call HostIO")
	}
}
