// cached_tier1.go - C5 Tier 1: decoded-block replay. The payload is a
// vector of decoded instruction records; the dispatch loop invokes the
// same per-opcode handlers as the interpreter (executeInstruction in
// interpreter.go), paying the decode cost once per (re)translation
// instead of once per execution (spec.md §4.4).

package main

// tier1Payload is a straight-line run of pre-decoded instructions.
type tier1Payload struct {
	instrs []Instruction
}

func (tier1Payload) Release() {}

// Tier1Backend is the decoded-block-replay cached interpreter.
type Tier1Backend struct {
	s     *MachineState
	cache *BlockCache
}

// NewTier1Backend builds a Tier 1 backend sharing s and cache with the
// controller. The cache is expected to be flushed by the controller on
// backend switch, since Tier1's payload shape differs from Tier2/3/JIT.
func NewTier1Backend(s *MachineState, cache *BlockCache) *Tier1Backend {
	return &Tier1Backend{s: s, cache: cache}
}

// Step executes exactly one instruction, translating a fresh single
// instruction "block" if none is cached to service it. Used by the
// controller's step() operation (spec.md §4.6).
func (t *Tier1Backend) Step() StepResult {
	if t.s.waitingForKey {
		return StepResult{}
	}
	return t.runOne()
}

// RunQuantum executes up to n Chip8 instructions, translating blocks on
// demand, and returns early on error or on a key-wait suspension.
func (t *Tier1Backend) RunQuantum(n int) StepResult {
	executed := 0
	for executed < n {
		if t.s.waitingForKey {
			return StepResult{}
		}
		before := executed
		r := t.runBlock(&executed)
		if r.Err != nil {
			return r
		}
		if executed == before {
			// Defensive: a zero-length block would spin forever.
			return StepResult{}
		}
	}
	return StepResult{}
}

func (t *Tier1Backend) runOne() StepResult {
	pc := t.s.PC
	b, ok := t.cache.Lookup(pc)
	if !ok {
		instrs, length, err := decodeBlock(t.s, pc)
		if err != nil {
			return StepResult{Err: err}
		}
		b = &Block{StartPC: pc, Length: length, Payload: tier1Payload{instrs: instrs}}
		t.cache.Install(b)
	}
	payload := b.Payload.(tier1Payload)
	addr := pc
	t.s.PC = addr + 2
	if err := executeInstruction(t.s, payload.instrs[0], addr); err != nil {
		return StepResult{Err: err}
	}
	return StepResult{}
}

func (t *Tier1Backend) runBlock(executed *int) StepResult {
	pc := t.s.PC
	b, ok := t.cache.Lookup(pc)
	if !ok {
		instrs, length, err := decodeBlock(t.s, pc)
		if err != nil {
			return StepResult{Err: err}
		}
		b = &Block{StartPC: pc, Length: length, Payload: tier1Payload{instrs: instrs}}
		t.cache.Install(b)
	}
	payload := b.Payload.(tier1Payload)
	for i, instr := range payload.instrs {
		addr := pc + uint16(i*2)
		t.s.PC = addr + 2
		if err := executeInstruction(t.s, instr, addr); err != nil {
			return StepResult{Err: err}
		}
		*executed++
		if instr.Op == OpLDVxK && t.s.waitingForKey {
			return StepResult{}
		}
	}
	return StepResult{}
}
