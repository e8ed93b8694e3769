// jit_unsupported.go - hosts other than x86_64 have no dynamic binary
// translator; the controller falls back to the interpreter backend
// (spec.md §1 Non-goals: "no JIT for hosts other than x86_64").

//go:build !amd64

package main

// JITBackend never exists on this platform; SelectBackend type-asserts
// against nothing, it only needs NewJITBackend to fail.
type JITBackend struct{}

func (*JITBackend) Step() StepResult             { return StepResult{} }
func (*JITBackend) RunQuantum(int) StepResult    { return StepResult{} }

// NewJITBackend always fails on non-amd64 hosts.
func NewJITBackend(*MachineState, *BlockCache) (*JITBackend, error) {
	return nil, ErrJitUnsupported
}
