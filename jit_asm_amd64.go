// jit_asm_amd64.go - a small, purpose-built x86_64 encoder. No assembler
// or JIT-emission library appears anywhere in the retrieval pack (the
// closest analog, dynasmrt, is Rust-only), so this is hand-rolled; see
// DESIGN.md for the justification. It only ever addresses RAX/RCX/RDX/RBX
// (and their 8/16/32-bit sub-registers), so no ModRM byte here ever needs
// a REX.R/X/B extension bit — only REX.W, for the 64-bit forms.

//go:build amd64

package main

import "encoding/binary"

const (
	regAX = 0
	regCX = 1
	regDX = 2
	regBX = 3
)

// Condition codes for Jcc/CMOVcc/SETcc, indexed the way the opcode maps
// expect (Jcc = 0x0F 0x80|cc, CMOVcc = 0x0F 0x40|cc, SETcc = 0x0F 0x90|cc).
const (
	ccB  = 0x2 // below / carry set
	ccAE = 0x3 // above-or-equal / carry clear
	ccE  = 0x4 // equal / zero
	ccNE = 0x5 // not equal / not zero
	ccBE = 0x6
	ccA  = 0x7
)

type asmBuf struct {
	code []byte
}

func (a *asmBuf) b(bs ...byte)   { a.code = append(a.code, bs...) }
func (a *asmBuf) here() int      { return len(a.code) }
func (a *asmBuf) u16(v uint16)   { a.b(byte(v), byte(v>>8)) }
func (a *asmBuf) u32(v uint32)   { a.b(byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }
func (a *asmBuf) u64(v uint64)   { a.u32(uint32(v)); a.u32(uint32(v >> 32)) }

func modrm(mod, reg, rm byte) byte { return mod<<6 | (reg&7)<<3 | (rm & 7) }

// movImm64 emits `mov reg64, imm64`.
func (a *asmBuf) movImm64(reg byte, imm uint64) {
	a.b(0x48, 0xB8+reg)
	a.u64(imm)
}

// loadR8 / storeR8 address memory only through a 64-bit base register
// holding an absolute address (no displacement); every field address is
// baked into the block as an immediate at translation time, exactly the
// way the original interpreter this was ported from closes over each
// field's address rather than indexing through a pinned struct pointer.
func (a *asmBuf) loadR8(dst, base byte)  { a.b(0x8A, modrm(0, dst, base)) }
func (a *asmBuf) storeR8(base, src byte) { a.b(0x88, modrm(0, src, base)) }
func (a *asmBuf) movR8(dst, src byte)    { a.b(0x88, modrm(3, src, dst)) }
func (a *asmBuf) storeImm8(base, imm byte) { a.b(0xC6, modrm(0, 0, base), imm) }

func (a *asmBuf) loadR16(dst, base byte)  { a.b(0x66, 0x8B, modrm(0, dst, base)) }
func (a *asmBuf) storeR16(base, src byte) { a.b(0x66, 0x89, modrm(0, src, base)) }
func (a *asmBuf) storeImm16(base byte, imm uint16) {
	a.b(0x66, 0xC7, modrm(0, 0, base))
	a.u16(imm)
}

func (a *asmBuf) movzxR32R8mem(dst, base byte)  { a.b(0x0F, 0xB6, modrm(0, dst, base)) }
func (a *asmBuf) movzxR32R16mem(dst, base byte) { a.b(0x0F, 0xB7, modrm(0, dst, base)) }
func (a *asmBuf) movzxR32R8(dst, src byte)      { a.b(0x0F, 0xB6, modrm(3, dst, src)) }

func (a *asmBuf) movR32(dst, src byte) { a.b(0x89, modrm(3, src, dst)) }
func (a *asmBuf) addR64(dst, src byte) { a.b(0x48, 0x01, modrm(3, src, dst)) }
func (a *asmBuf) addR32(dst, src byte) { a.b(0x01, modrm(3, src, dst)) }
func (a *asmBuf) orR64(dst, src byte)  { a.b(0x48, 0x09, modrm(3, src, dst)) }

func (a *asmBuf) addAxImm16(imm uint16)   { a.b(0x66, 0x05); a.u16(imm) }
func (a *asmBuf) addEaxImm32(imm uint32)  { a.b(0x05); a.u32(imm) }
func (a *asmBuf) orRaxImm32(imm uint32)   { a.b(0x48, 0x0D); a.u32(imm) }
func (a *asmBuf) shlR32Imm8(reg, imm byte) { a.b(0xC1, modrm(3, 4, reg), imm) }
func (a *asmBuf) imulR32Imm8(dst, src, imm byte) { a.b(0x6B, modrm(3, dst, src), imm) }

func (a *asmBuf) cmpALImm8(imm byte)      { a.b(0x3C, imm) }
func (a *asmBuf) cmpR8Imm8(reg, imm byte) { a.b(0x80, modrm(3, 7, reg), imm) }
func (a *asmBuf) cmpR8R8(dst, src byte)   { a.b(0x38, modrm(3, src, dst)) }
func (a *asmBuf) cmpR64R64(dst, src byte) { a.b(0x48, 0x39, modrm(3, src, dst)) }

func (a *asmBuf) subR8(dst, src byte) { a.b(0x28, modrm(3, src, dst)) }
func (a *asmBuf) andR8Imm8(reg, imm byte) { a.b(0x80, modrm(3, 4, reg), imm) }
func (a *asmBuf) shrR8Imm8(reg, imm byte) { a.b(0xC0, modrm(3, 5, reg), imm) }
func (a *asmBuf) shlR8Imm8(reg, imm byte) { a.b(0xC0, modrm(3, 4, reg), imm) }

func (a *asmBuf) cmovR64(cc, dst, src byte) { a.b(0x48, 0x0F, 0x40|cc, modrm(3, dst, src)) }
func (a *asmBuf) setccR8(cc, reg byte)      { a.b(0x0F, 0x90|cc, modrm(3, 0, reg)) }

func (a *asmBuf) incMem8(base byte) { a.b(0xFE, modrm(0, 0, base)) }
func (a *asmBuf) decMem8(base byte) { a.b(0xFE, modrm(0, 1, base)) }
func (a *asmBuf) incR64(reg byte)   { a.b(0x48, 0xFF, modrm(3, 0, reg)) }

func (a *asmBuf) ret() { a.b(0xC3) }

// jccFixup emits a forward conditional jump with a zero placeholder and
// returns its patch position; call patch once the target address is
// known (the "deopt" tail always comes later in the buffer).
func (a *asmBuf) jccFixup(cc byte) int {
	a.b(0x0F, 0x80|cc)
	pos := a.here()
	a.u32(0)
	return pos
}

func (a *asmBuf) patch(fixupPos int) {
	rel := int32(a.here() - (fixupPos + 4))
	binary.LittleEndian.PutUint32(a.code[fixupPos:], uint32(rel))
}

// jccTo emits a backward conditional jump to an already-known position
// (used for the CLS zero-fill loop).
func (a *asmBuf) jccTo(cc byte, target int) {
	a.b(0x0F, 0x80|cc)
	pos := a.here()
	a.u32(0)
	rel := int32(target - (pos + 4))
	binary.LittleEndian.PutUint32(a.code[pos:], uint32(rel))
}

// Outcome encoding returned from a compiled block in RAX, mirroring the
// tagged-return-value protocol used by the reference JIT this backend
// was ported from: tag in bits [16:32), guest PC in bits [0:16).
const (
	jitTagJump           uint64 = 1
	jitTagUseInterpreter uint64 = 2
)

func jitJump(pc uint16) uint64           { return jitTagJump<<16 | uint64(pc) }
func jitUseInterpreter(pc uint16) uint64 { return jitTagUseInterpreter<<16 | uint64(pc) }
func jitOutcomeTag(v uint64) uint64      { return v >> 16 & 0xFFFF }
func jitOutcomePC(v uint64) uint16       { return uint16(v) }
