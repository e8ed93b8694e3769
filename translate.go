// translate.go - shared block-decoding walk used by every backend that
// builds a translation unit (Tiers 1-3 and the JIT): a single basic block
// as defined by spec.md §4.3.

package main

// MaxBlockInstructions caps runaway blocks (spec.md §4.3: "A configurable
// maximum block length (e.g., 128 instructions) caps runaway blocks").
const MaxBlockInstructions = 128

// decodeBlock walks guest memory starting at pc, decoding instructions
// until one terminates the block (spec.md §4.3), the instruction cap is
// hit, or an invalid opcode is found. It returns the instructions and the
// total byte length of the block (always len(instructions)*2). The walk
// never mutates guest state.
func decodeBlock(s *MachineState, pc uint16) ([]Instruction, uint16, error) {
	var instrs []Instruction
	cur := pc

	for len(instrs) < MaxBlockInstructions {
		opcode := s.FetchOpcode(cur)
		instr, err := Decode(opcode, cur)
		if err != nil {
			if len(instrs) == 0 {
				return nil, 0, err
			}
			break
		}
		instrs = append(instrs, instr)
		cur += 2
		if instr.terminatesBlock() {
			break
		}
	}
	return instrs, uint16(len(instrs) * 2), nil
}
