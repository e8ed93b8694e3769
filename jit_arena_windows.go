// jit_arena_windows.go - executable arena for the JIT backend on
// Windows, via golang.org/x/sys/windows's VirtualAlloc/VirtualProtect,
// mirroring jit_arena_unix.go's mmap/mprotect discipline.

//go:build windows

package main

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const jitArenaSize = 4 << 20

type windowsJitArena struct {
	base uintptr
	off  int
}

func newJitArena() (*windowsJitArena, error) {
	addr, err := windows.VirtualAlloc(0, jitArenaSize, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, fmt.Errorf("chip8: VirtualAlloc jit arena: %w", err)
	}
	return &windowsJitArena{base: addr}, nil
}

func (a *windowsJitArena) Alloc(code []byte) (uintptr, error) {
	if a.off+len(code) > jitArenaSize {
		return 0, ErrOutOfMemoryForJit
	}
	var old uint32
	if err := windows.VirtualProtect(a.base, jitArenaSize, windows.PAGE_READWRITE, &old); err != nil {
		return 0, fmt.Errorf("chip8: VirtualProtect jit arena writable: %w", err)
	}
	entry := a.base + uintptr(a.off)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(entry)), len(code))
	copy(dst, code)
	a.off += len(code)
	if err := windows.VirtualProtect(a.base, jitArenaSize, windows.PAGE_EXECUTE_READ, &old); err != nil {
		return 0, fmt.Errorf("chip8: VirtualProtect jit arena executable: %w", err)
	}
	return entry, nil
}

func (a *windowsJitArena) Reset() { a.off = 0 }
