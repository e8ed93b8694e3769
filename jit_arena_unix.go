// jit_arena_unix.go - executable arena for the JIT backend on unix hosts,
// backed by golang.org/x/sys/unix, already part of this module's stack
// for the terminal HostIO backend. W^X is enforced by toggling the whole
// arena between writable and executable around each block install, per
// spec.md §4.5's "MAY use either" discipline.

//go:build unix

package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// jitArenaSize bounds how much compiled code a session holds before a
// flush is forced (spec.md §7 "JIT arena exhaustion").
const jitArenaSize = 4 << 20

type unixJitArena struct {
	mem []byte
	off int
}

func newJitArena() (*unixJitArena, error) {
	mem, err := unix.Mmap(-1, 0, jitArenaSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("chip8: mmap jit arena: %w", err)
	}
	return &unixJitArena{mem: mem}, nil
}

// Alloc appends code to the arena's bump pointer, returning its entry
// address. Returns ErrOutOfMemoryForJit if the arena is full; the
// controller responds by flushing the block cache and retrying.
func (a *unixJitArena) Alloc(code []byte) (uintptr, error) {
	if a.off+len(code) > len(a.mem) {
		return 0, ErrOutOfMemoryForJit
	}
	if err := unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return 0, fmt.Errorf("chip8: mprotect jit arena writable: %w", err)
	}
	entry := uintptr(unsafe.Pointer(&a.mem[a.off]))
	copy(a.mem[a.off:], code)
	a.off += len(code)
	if err := unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return 0, fmt.Errorf("chip8: mprotect jit arena executable: %w", err)
	}
	return entry, nil
}

// Reset rewinds the bump pointer; called by the block cache's flush hook
// after every live block's payload has already been released.
func (a *unixJitArena) Reset() { a.off = 0 }
