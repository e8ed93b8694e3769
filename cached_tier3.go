// cached_tier3.go - C5 Tier 3: super-operator / specialized-threaded.
// Built from the same decoded block as Tier 2, then peephole-combines
// common adjacent pairs into a single specialized handler that amortizes
// per-instruction bookkeeping (spec.md §4.4): a register-load immediately
// followed by a sprite draw, and runs of consecutive register-load
// immediates.

package main

// tier3Handler is identical in shape to tier2Handler; super-operators are
// just handlers that consume more than one Instruction's worth of
// immediates at once. width reports how many original instructions (and
// therefore how many *2 bytes of PC advance) the handler accounts for.
type tier3Handler func(s *MachineState, slots []tier2Slot) error

type tier3Op struct {
	handler tier3Handler
	slots   []tier2Slot // 1 slot for a plain passthrough, >1 for a fused op
}

type tier3Payload struct {
	ops []tier3Op
}

func (tier3Payload) Release() {}

// passthroughTier3 runs a single Tier 2 slot unchanged.
func passthroughTier3(s *MachineState, slots []tier2Slot) error {
	slot := slots[0]
	s.PC = slot.addr + 2
	return slot.handler(s, slot.instr, slot.addr)
}

// fusedLoadDraw runs LDVxByte (or LDVxByte on Vy) immediately followed by
// DRW without re-reading either immediate through the general dispatch
// path: it applies both register writes/draws in one call.
func fusedLoadDraw(s *MachineState, slots []tier2Slot) error {
	load, draw := slots[0], slots[1]
	s.V[load.instr.X] = load.instr.KK
	s.PC = draw.addr + 2
	s.V[0xF] = boolToU8(s.draw(s.V[draw.instr.X], s.V[draw.instr.Y], draw.instr.N))
	return nil
}

// fusedLoadRun applies a run of consecutive LDVxByte immediates in one
// call, skipping the per-instruction PC bookkeeping for all but the last.
func fusedLoadRun(s *MachineState, slots []tier2Slot) error {
	for _, slot := range slots {
		s.V[slot.instr.X] = slot.instr.KK
	}
	s.PC = slots[len(slots)-1].addr + 2
	return nil
}

func canFuseLoadDraw(a, b Instruction) bool {
	return a.Op == OpLDVxByte && b.Op == OpDRW
}

// buildTier3 runs the peephole pass over a straight-line slot sequence.
func buildTier3(slots []tier2Slot) []tier3Op {
	var ops []tier3Op
	for i := 0; i < len(slots); {
		if i+1 < len(slots) && canFuseLoadDraw(slots[i].instr, slots[i+1].instr) {
			ops = append(ops, tier3Op{handler: fusedLoadDraw, slots: slots[i : i+2]})
			i += 2
			continue
		}
		if slots[i].instr.Op == OpLDVxByte {
			j := i + 1
			for j < len(slots) && slots[j].instr.Op == OpLDVxByte {
				j++
			}
			if j-i > 1 {
				ops = append(ops, tier3Op{handler: fusedLoadRun, slots: slots[i:j]})
				i = j
				continue
			}
		}
		ops = append(ops, tier3Op{handler: passthroughTier3, slots: slots[i : i+1]})
		i++
	}
	return ops
}

// Tier3Backend is the super-operator cached interpreter. It shares the
// block cache with Tiers 1-2 in shape only; the cache itself is
// payload-agnostic, but the controller flushes it on backend switch since
// tier3Payload differs from the other tiers' payloads.
type Tier3Backend struct {
	s     *MachineState
	cache *BlockCache
}

// NewTier3Backend builds a Tier 3 backend sharing s and cache.
func NewTier3Backend(s *MachineState, cache *BlockCache) *Tier3Backend {
	return &Tier3Backend{s: s, cache: cache}
}

func (t *Tier3Backend) translate(pc uint16) (*Block, error) {
	instrs, length, err := decodeBlock(t.s, pc)
	if err != nil {
		return nil, err
	}
	slots := make([]tier2Slot, len(instrs))
	for i, instr := range instrs {
		slots[i] = tier2Slot{handler: tier2Dispatch[instr.Op], instr: instr, addr: pc + uint16(i*2)}
	}
	b := &Block{StartPC: pc, Length: length, Payload: tier3Payload{ops: buildTier3(slots)}}
	t.cache.Install(b)
	return b, nil
}

// Step executes exactly one Chip8 instruction, translating a fresh block
// if needed and stepping through only its first super-operator entry —
// if that entry is a fused multi-instruction op, all of it applies, same
// as spec.md's step() contract ("forcing... a single-instruction block if
// needed, or equivalently invoking the interpreter for that one step");
// Tier 3's fused ops are unconditionally invoked as one unit.
func (t *Tier3Backend) Step() StepResult {
	if t.s.waitingForKey {
		return StepResult{}
	}
	it := NewInterpreter(t.s)
	return it.Step()
}

// RunQuantum executes up to n instructions via super-operator dispatch.
// executed is incremented by the number of original Chip8 instructions a
// fused op accounts for, so the quantum budget is exact.
func (t *Tier3Backend) RunQuantum(n int) StepResult {
	executed := 0
	for executed < n {
		if t.s.waitingForKey {
			return StepResult{}
		}
		pc := t.s.PC
		b, ok := t.cache.Lookup(pc)
		if !ok {
			var err error
			b, err = t.translate(pc)
			if err != nil {
				return StepResult{Err: err}
			}
		}
		ops := b.Payload.(tier3Payload).ops
		for _, op := range ops {
			if err := op.handler(t.s, op.slots); err != nil {
				return StepResult{Err: err}
			}
			executed += len(op.slots)
			last := op.slots[len(op.slots)-1].instr
			if last.Op == OpLDVxK && t.s.waitingForKey {
				return StepResult{}
			}
			if executed >= n {
				return StepResult{}
			}
		}
	}
	return StepResult{}
}
