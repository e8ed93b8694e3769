// interpreter.go - C3 Interpreter Backend: fetch-decode-execute one
// opcode per Step call. The reference semantics and cross-backend oracle.

package main

// StepResult reports what a Step (of any backend) observed, so the
// controller can react to fatal errors, key-wait suspension and
// framebuffer/sound changes uniformly.
type StepResult struct {
	Err error
}

// Interpreter is the direct (non-caching) backend. It never allocates on
// its hot path.
type Interpreter struct {
	s *MachineState
}

// NewInterpreter builds an interpreter backend over s.
func NewInterpreter(s *MachineState) *Interpreter { return &Interpreter{s: s} }

// Step executes exactly one Chip8 instruction: reads two bytes at PC,
// advances PC by 2, decodes, executes. Jump/call/skip/ret opcodes
// override that default advance.
func (it *Interpreter) Step() StepResult {
	s := it.s
	if s.waitingForKey {
		return StepResult{}
	}

	pc := s.PC
	opcode := s.FetchOpcode(pc)
	instr, err := Decode(opcode, pc)
	if err != nil {
		return StepResult{Err: err}
	}
	s.PC = pc + 2

	if err := executeInstruction(s, instr, pc); err != nil {
		return StepResult{Err: err}
	}
	return StepResult{}
}

// RunQuantum executes up to n Chip8 instructions one at a time via Step,
// returning early on error or on a key-wait suspension.
func (it *Interpreter) RunQuantum(n int) StepResult {
	for i := 0; i < n; i++ {
		if it.s.waitingForKey {
			return StepResult{}
		}
		if r := it.Step(); r.Err != nil {
			return r
		}
	}
	return StepResult{}
}

// executeInstruction applies instr's semantics to s. Shared verbatim by
// the interpreter and by Tier 1's decoded-block replay (spec.md §4.4:
// "iterates the vector invoking the same per-opcode handlers as C3").
// pc is the address instr was fetched from, needed only by CALL/RET for
// their overflow/underflow error annotation.
func executeInstruction(s *MachineState, instr Instruction, pc uint16) error {
	switch instr.Op {
	case OpCLS:
		s.clearScreen()

	case OpRET:
		if s.SP == 0 {
			return &StackUnderflowError{PC: pc}
		}
		s.SP--
		s.PC = s.stack[s.SP]

	case OpJP:
		s.PC = instr.NNN

	case OpCALL:
		if s.SP >= StackDepth {
			return &StackOverflowError{PC: pc}
		}
		s.stack[s.SP] = s.PC
		s.SP++
		s.PC = instr.NNN

	case OpSEVxByte:
		if s.V[instr.X] == instr.KK {
			s.PC += 2
		}

	case OpSNEVxByte:
		if s.V[instr.X] != instr.KK {
			s.PC += 2
		}

	case OpSEVxVy:
		if s.V[instr.X] == s.V[instr.Y] {
			s.PC += 2
		}

	case OpLDVxByte:
		s.V[instr.X] = instr.KK

	case OpADDVxByte:
		s.V[instr.X] += instr.KK // wraps mod 256; VF unchanged

	case OpLDVxVy:
		s.V[instr.X] = s.V[instr.Y]

	case OpORVxVy:
		s.V[instr.X] |= s.V[instr.Y]
		s.V[0xF] = 0 // quirk: OR/AND/XOR reset VF

	case OpANDVxVy:
		s.V[instr.X] &= s.V[instr.Y]
		s.V[0xF] = 0

	case OpXORVxVy:
		s.V[instr.X] ^= s.V[instr.Y]
		s.V[0xF] = 0

	case OpADDVxVy:
		sum := uint16(s.V[instr.X]) + uint16(s.V[instr.Y])
		s.V[instr.X] = uint8(sum)
		if sum > 0xFF {
			s.V[0xF] = 1
		} else {
			s.V[0xF] = 0
		}

	case OpSUBVxVy:
		vx, vy := s.V[instr.X], s.V[instr.Y]
		s.V[instr.X] = vx - vy
		if vx >= vy {
			s.V[0xF] = 1
		} else {
			s.V[0xF] = 0
		}

	case OpSHRVxVy:
		vy := s.V[instr.Y]
		s.V[instr.X] = vy >> 1
		s.V[0xF] = vy & 1

	case OpSUBNVxVy:
		vx, vy := s.V[instr.X], s.V[instr.Y]
		s.V[instr.X] = vy - vx
		if vy >= vx {
			s.V[0xF] = 1
		} else {
			s.V[0xF] = 0
		}

	case OpSHLVxVy:
		vy := s.V[instr.Y]
		s.V[instr.X] = vy << 1
		s.V[0xF] = vy >> 7 & 1

	case OpSNEVxVy:
		if s.V[instr.X] != s.V[instr.Y] {
			s.PC += 2
		}

	case OpLDI:
		s.I = instr.NNN

	case OpJPV0:
		s.PC = instr.NNN + uint16(s.V[0])

	case OpRNDVxByte:
		s.V[instr.X] = s.rng.Uint8() & instr.KK

	case OpDRW:
		if s.draw(s.V[instr.X], s.V[instr.Y], instr.N) {
			s.V[0xF] = 1
		} else {
			s.V[0xF] = 0
		}

	case OpSKPVx:
		if s.keys[s.V[instr.X]&0xF] {
			s.PC += 2
		}

	case OpSKNPVx:
		if !s.keys[s.V[instr.X]&0xF] {
			s.PC += 2
		}

	case OpLDVxDT:
		s.V[instr.X] = s.delayTimer

	case OpLDVxK:
		s.waitingForKey = true
		s.waitKeyReg = instr.X
		s.PC = pc // re-enter this instruction until a key releases

	case OpLDDTVx:
		s.delayTimer = s.V[instr.X]

	case OpLDSTVx:
		s.soundTimer = s.V[instr.X]

	case OpADDIVx:
		s.I += uint16(s.V[instr.X]) // VF unchanged

	case OpLDFVx:
		s.I = FontBase + 5*uint16(s.V[instr.X]&0x0F)

	case OpLDBVx:
		v := s.V[instr.X]
		s.WriteRange(s.I, []byte{v / 100, (v / 10) % 10, v % 10})

	case OpLDIVx:
		buf := make([]byte, int(instr.X)+1)
		copy(buf, s.V[:instr.X+1])
		s.WriteRange(s.I, buf)
		s.I += uint16(instr.X) + 1

	case OpLDVxI:
		for i := uint8(0); i <= instr.X; i++ {
			s.V[i] = s.ReadByte(s.I + uint16(i))
		}
		s.I += uint16(instr.X) + 1
	}
	return nil
}
