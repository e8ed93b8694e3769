package main

import "testing"

func TestDecodeEncodeRoundTrip(t *testing.T) {
	cases := []uint16{
		0x00E0, 0x00EE, 0x1234, 0x2345, 0x3A12, 0x4A12, 0x5AB0, 0x6A12, 0x7A12,
		0x8AB0, 0x8AB1, 0x8AB2, 0x8AB3, 0x8AB4, 0x8AB5, 0x8AB6, 0x8AB7, 0x8ABE,
		0x9AB0, 0xA123, 0xB123, 0xCA12, 0xDAB5, 0xEA9E, 0xEAA1,
		0xFA07, 0xFA0A, 0xFA15, 0xFA18, 0xFA1E, 0xFA29, 0xFA33, 0xFA55, 0xFA65,
	}
	for _, opcode := range cases {
		instr, err := Decode(opcode, 0x200)
		if err != nil {
			t.Fatalf("Decode(%#04X): %v", opcode, err)
		}
		if got := Encode(instr); got != opcode {
			t.Errorf("Encode(Decode(%#04X)) = %#04X", opcode, got)
		}
	}
}

func TestDecodeInvalidOpcode(t *testing.T) {
	_, err := Decode(0x5AB1, 0x200) // low nibble of a 5xy_ must be 0
	var target *InvalidOpcodeError
	if err == nil {
		t.Fatal("expected an error for a malformed 5xy_ opcode")
	}
	if _, ok := err.(*InvalidOpcodeError); !ok {
		t.Fatalf("got %T, want *InvalidOpcodeError", err)
	}
	_ = target
}

func TestTerminatesBlock(t *testing.T) {
	terminal := []Op{OpRET, OpJP, OpCALL, OpJPV0, OpLDVxK, OpSEVxByte, OpSNEVxByte, OpSEVxVy, OpSNEVxVy, OpSKPVx, OpSKNPVx}
	for _, op := range terminal {
		if !(Instruction{Op: op}).terminatesBlock() {
			t.Errorf("%v: expected terminatesBlock() true", op)
		}
	}
	nonTerminal := []Op{OpCLS, OpLDVxByte, OpADDVxByte, OpORVxVy, OpADDVxVy, OpLDI, OpRNDVxByte, OpDRW, OpLDFVx, OpLDBVx, OpLDIVx, OpLDVxI}
	for _, op := range nonTerminal {
		if (Instruction{Op: op}).terminatesBlock() {
			t.Errorf("%v: expected terminatesBlock() false", op)
		}
	}
}
