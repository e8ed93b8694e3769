// cached_tier2.go - C5 Tier 2: direct-threaded dispatch. Each decoded
// slot stores a function pointer to a specialized handler and its
// pre-extracted argument bundle (the Instruction itself already carries
// x/y/n/kk/nnn), avoiding the interpreter's single large central branch
// (spec.md §4.4).

package main

// tier2Handler executes one specialized instruction and reports whether
// execution should stop scanning the rest of the block (true for the
// handler that terminated translation, i.e. always the last slot).
type tier2Handler func(s *MachineState, instr Instruction, addr uint16) error

var tier2Dispatch = [...]tier2Handler{
	OpCLS:       func(s *MachineState, _ Instruction, _ uint16) error { s.clearScreen(); return nil },
	OpRET:       tier2Ret,
	OpJP:        func(s *MachineState, instr Instruction, _ uint16) error { s.PC = instr.NNN; return nil },
	OpCALL:      tier2Call,
	OpSEVxByte:  func(s *MachineState, instr Instruction, _ uint16) error { tier2Skip(s, s.V[instr.X] == instr.KK); return nil },
	OpSNEVxByte: func(s *MachineState, instr Instruction, _ uint16) error { tier2Skip(s, s.V[instr.X] != instr.KK); return nil },
	OpSEVxVy:    func(s *MachineState, instr Instruction, _ uint16) error { tier2Skip(s, s.V[instr.X] == s.V[instr.Y]); return nil },
	OpLDVxByte:  func(s *MachineState, instr Instruction, _ uint16) error { s.V[instr.X] = instr.KK; return nil },
	OpADDVxByte: func(s *MachineState, instr Instruction, _ uint16) error { s.V[instr.X] += instr.KK; return nil },
	OpLDVxVy:    func(s *MachineState, instr Instruction, _ uint16) error { s.V[instr.X] = s.V[instr.Y]; return nil },
	OpORVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		s.V[instr.X] |= s.V[instr.Y]
		s.V[0xF] = 0
		return nil
	},
	OpANDVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		s.V[instr.X] &= s.V[instr.Y]
		s.V[0xF] = 0
		return nil
	},
	OpXORVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		s.V[instr.X] ^= s.V[instr.Y]
		s.V[0xF] = 0
		return nil
	},
	OpADDVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		sum := uint16(s.V[instr.X]) + uint16(s.V[instr.Y])
		s.V[instr.X] = uint8(sum)
		if sum > 0xFF {
			s.V[0xF] = 1
		} else {
			s.V[0xF] = 0
		}
		return nil
	},
	OpSUBVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		vx, vy := s.V[instr.X], s.V[instr.Y]
		s.V[instr.X] = vx - vy
		s.V[0xF] = boolToU8(vx >= vy)
		return nil
	},
	OpSHRVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		vy := s.V[instr.Y]
		s.V[instr.X] = vy >> 1
		s.V[0xF] = vy & 1
		return nil
	},
	OpSUBNVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		vx, vy := s.V[instr.X], s.V[instr.Y]
		s.V[instr.X] = vy - vx
		s.V[0xF] = boolToU8(vy >= vx)
		return nil
	},
	OpSHLVxVy: func(s *MachineState, instr Instruction, _ uint16) error {
		vy := s.V[instr.Y]
		s.V[instr.X] = vy << 1
		s.V[0xF] = vy >> 7 & 1
		return nil
	},
	OpSNEVxVy:   func(s *MachineState, instr Instruction, _ uint16) error { tier2Skip(s, s.V[instr.X] != s.V[instr.Y]); return nil },
	OpLDI:       func(s *MachineState, instr Instruction, _ uint16) error { s.I = instr.NNN; return nil },
	OpJPV0:      func(s *MachineState, instr Instruction, _ uint16) error { s.PC = instr.NNN + uint16(s.V[0]); return nil },
	OpRNDVxByte: func(s *MachineState, instr Instruction, _ uint16) error { s.V[instr.X] = s.rng.Uint8() & instr.KK; return nil },
	OpDRW: func(s *MachineState, instr Instruction, _ uint16) error {
		s.V[0xF] = boolToU8(s.draw(s.V[instr.X], s.V[instr.Y], instr.N))
		return nil
	},
	OpSKPVx:  func(s *MachineState, instr Instruction, _ uint16) error { tier2Skip(s, s.keys[s.V[instr.X]&0xF]); return nil },
	OpSKNPVx: func(s *MachineState, instr Instruction, _ uint16) error { tier2Skip(s, !s.keys[s.V[instr.X]&0xF]); return nil },
	OpLDVxDT: func(s *MachineState, instr Instruction, _ uint16) error { s.V[instr.X] = s.delayTimer; return nil },
	OpLDVxK: func(s *MachineState, instr Instruction, addr uint16) error {
		s.waitingForKey = true
		s.waitKeyReg = instr.X
		s.PC = addr
		return nil
	},
	OpLDDTVx: func(s *MachineState, instr Instruction, _ uint16) error { s.delayTimer = s.V[instr.X]; return nil },
	OpLDSTVx: func(s *MachineState, instr Instruction, _ uint16) error { s.soundTimer = s.V[instr.X]; return nil },
	OpADDIVx: func(s *MachineState, instr Instruction, _ uint16) error { s.I += uint16(s.V[instr.X]); return nil },
	OpLDFVx:  func(s *MachineState, instr Instruction, _ uint16) error { s.I = FontBase + 5*uint16(s.V[instr.X]&0x0F); return nil },
	OpLDBVx: func(s *MachineState, instr Instruction, _ uint16) error {
		v := s.V[instr.X]
		s.WriteRange(s.I, []byte{v / 100, (v / 10) % 10, v % 10})
		return nil
	},
	OpLDIVx: func(s *MachineState, instr Instruction, _ uint16) error {
		buf := make([]byte, int(instr.X)+1)
		copy(buf, s.V[:instr.X+1])
		s.WriteRange(s.I, buf)
		s.I += uint16(instr.X) + 1
		return nil
	},
	OpLDVxI: func(s *MachineState, instr Instruction, _ uint16) error {
		for i := uint8(0); i <= instr.X; i++ {
			s.V[i] = s.ReadByte(s.I + uint16(i))
		}
		s.I += uint16(instr.X) + 1
		return nil
	},
}

func boolToU8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func tier2Skip(s *MachineState, taken bool) {
	if taken {
		s.PC += 2
	}
}

func tier2Ret(s *MachineState, _ Instruction, addr uint16) error {
	if s.SP == 0 {
		return &StackUnderflowError{PC: addr}
	}
	s.SP--
	s.PC = s.stack[s.SP]
	return nil
}

func tier2Call(s *MachineState, instr Instruction, addr uint16) error {
	if s.SP >= StackDepth {
		return &StackOverflowError{PC: addr}
	}
	s.stack[s.SP] = s.PC
	s.SP++
	s.PC = instr.NNN
	return nil
}

// tier2Slot is one pre-threaded dispatch entry: the handler to call and
// its pre-extracted argument bundle.
type tier2Slot struct {
	handler tier2Handler
	instr   Instruction
	addr    uint16
}

type tier2Payload struct {
	slots []tier2Slot
}

func (tier2Payload) Release() {}

// Tier2Backend is the direct-threaded cached interpreter.
type Tier2Backend struct {
	s     *MachineState
	cache *BlockCache
}

// NewTier2Backend builds a Tier 2 backend sharing s and cache.
func NewTier2Backend(s *MachineState, cache *BlockCache) *Tier2Backend {
	return &Tier2Backend{s: s, cache: cache}
}

func (t *Tier2Backend) translate(pc uint16) (*Block, error) {
	instrs, length, err := decodeBlock(t.s, pc)
	if err != nil {
		return nil, err
	}
	slots := make([]tier2Slot, len(instrs))
	for i, instr := range instrs {
		slots[i] = tier2Slot{handler: tier2Dispatch[instr.Op], instr: instr, addr: pc + uint16(i*2)}
	}
	b := &Block{StartPC: pc, Length: length, Payload: tier2Payload{slots: slots}}
	t.cache.Install(b)
	return b, nil
}

// Step executes exactly one instruction.
func (t *Tier2Backend) Step() StepResult {
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
	slot := b.Payload.(tier2Payload).slots[0]
	t.s.PC = slot.addr + 2
	if err := slot.handler(t.s, slot.instr, slot.addr); err != nil {
		return StepResult{Err: err}
	}
	return StepResult{}
}

// RunQuantum executes up to n instructions via threaded dispatch.
func (t *Tier2Backend) RunQuantum(n int) StepResult {
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
		slots := b.Payload.(tier2Payload).slots
		for _, slot := range slots {
			t.s.PC = slot.addr + 2
			if err := slot.handler(t.s, slot.instr, slot.addr); err != nil {
				return StepResult{Err: err}
			}
			executed++
			if slot.instr.Op == OpLDVxK && t.s.waitingForKey {
				return StepResult{}
			}
			if executed >= n {
				return StepResult{}
			}
		}
	}
	return StepResult{}
}
