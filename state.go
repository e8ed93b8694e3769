// state.go - Machine State: the guest-visible architectural state shared
// by all four execution backends.

package main

import "fmt"

const (
	// RAMSize is the full 4KiB Chip8 address space. Guest PC is 12-bit;
	// any computed address is masked to RAMSize-1 before use.
	RAMSize = 4096

	// FontBase is the fixed load address of the built-in glyph table,
	// canonically 0x050.
	FontBase = 0x050

	// ROMBase is the fixed load address of ROM bytes.
	ROMBase = 0x200

	// MaxROMSize is the largest ROM that fits above ROMBase.
	MaxROMSize = RAMSize - ROMBase

	// StackDepth is the number of call-stack slots.
	StackDepth = 16

	// DisplayWidth and DisplayHeight are the fixed Chip8 screen
	// dimensions in pixels.
	DisplayWidth  = 64
	DisplayHeight = 32

	// pageSize and pageCount implement the coarse write-tracking bitmap
	// suggested by spec.md §9: "a 256-entry coarse page bitmap is
	// plenty" for 4KiB of RAM, so each page covers 16 bytes.
	pageSize  = RAMSize / 256
	pageCount = RAMSize / pageSize
)

var fontSprites = [80]byte{
	0xF0, 0x90, 0x90, 0x90, 0xF0, // 0
	0x20, 0x60, 0x20, 0x20, 0x70, // 1
	0xF0, 0x10, 0xF0, 0x80, 0xF0, // 2
	0xF0, 0x10, 0xF0, 0x10, 0xF0, // 3
	0x90, 0x90, 0xF0, 0x10, 0x10, // 4
	0xF0, 0x80, 0xF0, 0x10, 0xF0, // 5
	0xF0, 0x80, 0xF0, 0x90, 0xF0, // 6
	0xF0, 0x10, 0x20, 0x40, 0x40, // 7
	0xF0, 0x90, 0xF0, 0x90, 0xF0, // 8
	0xF0, 0x90, 0xF0, 0x10, 0xF0, // 9
	0xF0, 0x90, 0xF0, 0x90, 0x90, // A
	0xE0, 0x90, 0xE0, 0x90, 0xE0, // B
	0xF0, 0x80, 0x80, 0x80, 0xF0, // C
	0xE0, 0x90, 0x90, 0x90, 0xE0, // D
	0xF0, 0x80, 0xF0, 0x80, 0xF0, // E
	0xF0, 0x80, 0xF0, 0x80, 0x80, // F
}

// Framebuffer is the 64x32 monochrome bitmap, row-major, one byte per
// pixel (0 or 1) for simplicity of the draw/blit path — the architectural
// requirement is 2048 bits; the host-facing representation trades memory
// for a branch-free Draw() and a trivial Bytes() view for HostIO backends.
type Framebuffer struct {
	pixels [DisplayWidth * DisplayHeight]byte
	dirty  bool
}

func (fb *Framebuffer) index(x, y int) int { return y*DisplayWidth + x }

// At reports whether the pixel at (x, y) is set.
func (fb *Framebuffer) At(x, y int) bool { return fb.pixels[fb.index(x, y)] != 0 }

// Clear resets every pixel to off and marks the framebuffer dirty.
func (fb *Framebuffer) Clear() {
	for i := range fb.pixels {
		fb.pixels[i] = 0
	}
	fb.dirty = true
}

// Dirty reports whether any pixel has changed since the last ConsumeDirty.
func (fb *Framebuffer) Dirty() bool { return fb.dirty }

// ConsumeDirty reads and clears the dirty flag.
func (fb *Framebuffer) ConsumeDirty() bool {
	d := fb.dirty
	fb.dirty = false
	return d
}

// invalidator is implemented by the block cache; MachineState calls it on
// every write that could alter code the caches have already translated.
// This is the single choke point the coherency protocol in spec.md §4.3
// and §9 requires: "every mutation path through memory must route through
// the invalidator; no back-doors."
type invalidator interface {
	InvalidateRange(lo, hi uint16)
}

// MachineState (C1) owns all guest-visible state: RAM, registers, timers,
// framebuffer and the key matrix. It lives for the whole VM session and
// survives backend switches (spec.md §3 "Lifecycles").
type MachineState struct {
	memory [RAMSize]byte

	V  [16]uint8
	I  uint16
	PC uint16
	SP uint8

	stack [StackDepth]uint16

	delayTimer uint8
	soundTimer uint8

	screen Framebuffer
	keys   [16]bool

	// waitingForKey and waitKeyReg implement Fx0A across every backend
	// uniformly (SPEC_FULL.md §4): when set, the controller must not
	// advance this instruction until a key press-then-release edge is
	// observed on waitKeyReg's target register.
	waitingForKey bool
	waitKeyReg    uint8
	prevKeys      [16]bool

	rng *PRNG

	// dirtyPages is the coarse write-tracking bitmap from spec.md §9.
	// Bit i covers RAM bytes [i*pageSize, (i+1)*pageSize).
	dirtyPages [pageCount]bool

	cache invalidator
}

// NewMachineState builds a freshly reset guest: font loaded, PC at
// ROMBase, PRNG seeded from seed (0 selects host entropy).
func NewMachineState(seed uint32) *MachineState {
	s := &MachineState{PC: ROMBase}
	copy(s.memory[FontBase:FontBase+len(fontSprites)], fontSprites[:])
	if seed == 0 {
		s.rng = NewEntropyPRNG()
	} else {
		s.rng = NewPRNG(seed)
	}
	return s
}

// AttachCache installs the block cache that must be notified of writes.
// Called once by the controller at startup and again on backend switch,
// since each backend owns a differently-shaped cache instance.
func (s *MachineState) AttachCache(c invalidator) { s.cache = c }

// LoadROM copies rom into guest memory at ROMBase. Returns ErrRomTooLarge
// if it does not fit; no state is modified in that case.
func (s *MachineState) LoadROM(rom []byte) error {
	if len(rom) > MaxROMSize {
		return ErrRomTooLarge
	}
	for i := ROMBase; i < RAMSize; i++ {
		s.memory[i] = 0
	}
	copy(s.memory[ROMBase:], rom)
	s.markDirty(ROMBase, uint16(ROMBase+len(rom)))
	return nil
}

// Reset restores the guest to its post-load state without reloading the
// ROM: registers, stack, timers, screen and PC are cleared, memory above
// ROMBase is left untouched by the caller's choice (callers that want a
// clean ROM reload call LoadROM again).
func (s *MachineState) Reset() {
	s.V = [16]uint8{}
	s.I = 0
	s.PC = ROMBase
	s.SP = 0
	s.stack = [StackDepth]uint16{}
	s.delayTimer = 0
	s.soundTimer = 0
	s.screen.Clear()
	s.waitingForKey = false
}

// mask12 confines an address to the 12-bit Chip8 address space.
func mask12(addr int) uint16 { return uint16(addr) & (RAMSize - 1) }

// ReadByte reads one byte from guest RAM at a 12-bit-masked address.
func (s *MachineState) ReadByte(addr uint16) uint8 {
	return s.memory[mask12(int(addr))]
}

// FetchOpcode reads the big-endian 16-bit instruction word at pc.
func (s *MachineState) FetchOpcode(pc uint16) uint16 {
	a := mask12(int(pc))
	b := mask12(int(pc) + 1)
	return uint16(s.memory[a])<<8 | uint16(s.memory[b])
}

// WriteByte writes one byte to guest RAM, masked to 12 bits, and routes
// the write through the invalidation protocol.
func (s *MachineState) WriteByte(addr uint16, v uint8) {
	a := mask12(int(addr))
	s.memory[a] = v
	s.markDirty(a, a+1)
}

// WriteRange writes data starting at addr (each byte independently
// 12-bit-masked, matching how Fx55 wraps if I+x crosses 0xFFF) and
// invalidates the exact bytes written.
func (s *MachineState) WriteRange(addr uint16, data []byte) {
	lo := mask12(int(addr))
	for i, b := range data {
		s.memory[mask12(int(addr)+i)] = b
	}
	hi := mask12(int(addr) + len(data))
	if len(data) == 0 {
		return
	}
	// Common case: the range does not wrap past 0xFFF.
	if int(lo)+len(data) <= RAMSize {
		s.markDirty(lo, lo+uint16(len(data)))
		return
	}
	s.markDirty(lo, RAMSize)
	s.markDirty(0, hi)
}

func (s *MachineState) markDirty(lo, hi uint16) {
	if hi <= lo {
		return
	}
	firstPage := int(lo) / pageSize
	lastPage := int(hi-1) / pageSize
	for p := firstPage; p <= lastPage; p++ {
		s.dirtyPages[p] = true
	}
	if s.cache != nil {
		s.cache.InvalidateRange(lo, hi)
	}
}

// PageDirty reports the coarse write-tracking bit covering addr; exposed
// for tests exercising the invalidation protocol independent of a cache.
func (s *MachineState) PageDirty(addr uint16) bool {
	return s.dirtyPages[int(addr)/pageSize]
}

// SetKey updates the pressed state of one hex-keypad key.
func (s *MachineState) SetKey(idx int, pressed bool) {
	if idx < 0 || idx > 15 {
		return
	}
	s.keys[idx] = pressed
}

// LatchKeys is called by the timer/input driver once per frame boundary,
// before dispatch, to snapshot the host key matrix and to resolve any
// pending Fx0A wait on a release edge.
func (s *MachineState) LatchKeys(host [16]bool) {
	if s.waitingForKey {
		for i := 0; i < 16; i++ {
			if s.prevKeys[i] && !host[i] {
				s.V[s.waitKeyReg] = uint8(i)
				s.waitingForKey = false
				s.PC += 2 // release the Fx0A instruction we were parked on
				break
			}
		}
	}
	s.prevKeys = s.keys
	s.keys = host
}

// TickTimers decrements delay/sound timers by one if non-zero. Returns
// whether the sound timer transitioned across zero in either direction,
// so the controller can drive HostIO.Beep only on transitions.
func (s *MachineState) TickTimers() (soundChanged bool) {
	wasSounding := s.soundTimer != 0
	if s.delayTimer > 0 {
		s.delayTimer--
	}
	if s.soundTimer > 0 {
		s.soundTimer--
	}
	return wasSounding != (s.soundTimer != 0)
}

// Sounding reports whether the sound timer is currently non-zero.
func (s *MachineState) Sounding() bool { return s.soundTimer != 0 }

// clearScreen implements 00E0.
func (s *MachineState) clearScreen() { s.screen.Clear() }

// draw implements Dxyn: draws an n-byte sprite from memory[I:I+n] at
// (Vx mod 64, Vy mod 32), XORing into the framebuffer, clipping at the
// screen edges (no wraparound during the draw itself), and reports
// whether any set pixel was erased.
func (s *MachineState) draw(vx, vy uint8, n uint8) bool {
	ox := int(vx) % DisplayWidth
	oy := int(vy) % DisplayHeight
	erased := false
	for row := 0; row < int(n); row++ {
		py := oy + row
		if py >= DisplayHeight {
			break
		}
		line := s.ReadByte(s.I + uint16(row))
		for col := 0; col < 8; col++ {
			px := ox + col
			if px >= DisplayWidth {
				break
			}
			if line&(0x80>>col) == 0 {
				continue
			}
			idx := s.screen.index(px, py)
			if s.screen.pixels[idx] != 0 {
				s.screen.pixels[idx] = 0
				erased = true
			} else {
				s.screen.pixels[idx] = 1
			}
		}
	}
	s.screen.dirty = true
	return erased
}

func (s *MachineState) String() string {
	return fmt.Sprintf("PC=%#04X I=%#04X SP=%d V=%v", s.PC, s.I, s.SP, s.V)
}
