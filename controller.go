// controller.go - C8 Execution Controller: owns the currently selected
// backend, dispatches frames, and honors play/pause/step (spec.md §4.6).

package main

import "fmt"

// BackendKind identifies one of the four coexisting execution strategies.
type BackendKind int

const (
	BackendInterpreter BackendKind = iota
	BackendTier1
	BackendTier2
	BackendTier3
	BackendJIT
)

func (k BackendKind) String() string {
	switch k {
	case BackendInterpreter:
		return "interpreter"
	case BackendTier1:
		return "tier1-decoded"
	case BackendTier2:
		return "tier2-threaded"
	case BackendTier3:
		return "tier3-superop"
	case BackendJIT:
		return "jit"
	default:
		return "unknown"
	}
}

// backend is the shape every execution strategy exposes to the
// controller. The interpreter, all three cached tiers and the JIT
// backend all satisfy it.
type backend interface {
	Step() StepResult
	RunQuantum(n int) StepResult
}

// DefaultCyclesPerFrame is the classic Chip8 pacing: roughly 10-15
// instructions per 60Hz tick (spec.md §2, §4.6).
const DefaultCyclesPerFrame = 11

// Controller (C8) is the single owner of MachineState and drives one
// backend at a time against it. It never runs two backends concurrently
// (spec.md §5: "single-threaded cooperative").
type Controller struct {
	state *MachineState
	cache *BlockCache
	host  HostIO
	timer *TimerDriver

	kind    BackendKind
	current backend

	cyclesPerFrame int
	paused         bool

	lastErr error
}

// NewController builds a controller with a fresh Machine State, wired to
// host for framebuffer/beep/key/rand callbacks, and selects the
// interpreter backend to start (always available, no cache warm-up
// needed).
func NewController(host HostIO, seed uint32) *Controller {
	s := NewMachineState(seed)
	c := &Controller{
		state:          s,
		cache:          NewBlockCache(),
		host:           host,
		timer:          NewTimerDriver(s),
		cyclesPerFrame: DefaultCyclesPerFrame,
	}
	s.AttachCache(c.cache)
	c.current = NewInterpreter(s)
	c.kind = BackendInterpreter
	return c
}

// SetCyclesPerFrame overrides the default guest-instructions-per-tick
// pacing.
func (c *Controller) SetCyclesPerFrame(n int) {
	if n > 0 {
		c.cyclesPerFrame = n
	}
}

// LoadROM loads rom bytes at ROMBase and resets architectural state.
// Backend selection and any live cache are left untouched by design:
// spec.md's Lifecycles only tie cache flushing to backend switches, not
// to reloads, though a fresh ROM naturally invalidates any block whose
// coverage it overwrites via the normal write path inside LoadROM.
func (c *Controller) LoadROM(rom []byte) error {
	if err := c.state.LoadROM(rom); err != nil {
		return err
	}
	c.state.Reset()
	c.lastErr = nil
	return nil
}

// SelectBackend flushes the block cache (payload formats differ across
// backends) but preserves Machine State, per spec.md §4.6.
func (c *Controller) SelectBackend(kind BackendKind) error {
	c.cache.FlushAll()
	switch kind {
	case BackendInterpreter:
		c.current = NewInterpreter(c.state)
	case BackendTier1:
		c.current = NewTier1Backend(c.state, c.cache)
	case BackendTier2:
		c.current = NewTier2Backend(c.state, c.cache)
	case BackendTier3:
		c.current = NewTier3Backend(c.state, c.cache)
	case BackendJIT:
		jit, err := NewJITBackend(c.state, c.cache)
		if err != nil {
			// spec.md §1 Non-goals: hosts other than x86_64 fall back to
			// an interpreter backend rather than failing to select.
			c.current = NewInterpreter(c.state)
			c.kind = BackendInterpreter
			return err
		}
		c.current = jit
	default:
		return fmt.Errorf("chip8: unknown backend kind %d", kind)
	}
	c.kind = kind
	return nil
}

// Backend reports the currently selected backend kind.
func (c *Controller) Backend() BackendKind { return c.kind }

// State exposes the shared Machine State, primarily for tests and for
// HostIO adapters that need direct framebuffer/register access.
func (c *Controller) State() *MachineState { return c.state }

// Pause stops RunFrame from dispatching further instruction quanta until
// Resume is called. Suspension points are frame boundaries only
// (spec.md §5).
func (c *Controller) Pause() { c.paused = true }

// Resume clears a prior Pause.
func (c *Controller) Resume() { c.paused = false }

// Paused reports the current play/pause state.
func (c *Controller) Paused() bool { return c.paused }

// LastError returns the fatal error that halted dispatch, if any.
func (c *Controller) LastError() error { return c.lastErr }

// KeyEvent forwards a single host key transition to Machine State
// immediately; PollKeys-driven latching still happens once per frame for
// the Fx0A edge-detection protocol, but individual presses are visible to
// Ex9E/ExA1 as soon as they arrive.
func (c *Controller) KeyEvent(idx int, pressed bool) {
	c.state.SetKey(idx, pressed)
}

// RunFrame executes up to cyclesPerFrame guest instructions through the
// active backend, then decrements timers once (spec.md §4.6). It is a
// no-op while paused or after a fatal error. Returns the fatal error, if
// any, so callers can stop the host loop.
func (c *Controller) RunFrame() error {
	if c.paused || c.lastErr != nil {
		return c.lastErr
	}

	c.timer.LatchInput(c.host.PollKeys())
	if v, ok := c.host.RandU8(); ok {
		c.state.rng.Mix(v)
	}

	r := c.current.RunQuantum(c.cyclesPerFrame)
	if r.Err != nil {
		if err := c.handleRecoverable(r.Err); err != nil {
			c.lastErr = err
			return err
		}
	}

	beepChanged := c.timer.Tick()
	if beepChanged {
		c.host.Beep(c.state.Sounding())
	}
	if c.state.screen.ConsumeDirty() {
		c.host.Draw(&c.state.screen)
	}
	return nil
}

// Step executes exactly one Chip8 instruction via the current backend,
// regardless of cyclesPerFrame, and does not touch timers or HostIO
// (spec.md §4.6's step() operation is for single-instruction debugging
// controls, decoupled from frame pacing).
func (c *Controller) Step() error {
	if c.lastErr != nil {
		return c.lastErr
	}
	r := c.current.Step()
	if r.Err != nil {
		if err := c.handleRecoverable(r.Err); err != nil {
			c.lastErr = err
			return err
		}
	}
	return nil
}

// handleRecoverable applies spec.md §7's recovery policy: ErrOutOfMemoryForJit
// triggers one FlushAll-and-retry at the current PC; every other error (or a
// repeat OOM immediately after flush) is fatal.
func (c *Controller) handleRecoverable(err error) error {
	if err != ErrOutOfMemoryForJit {
		return err
	}
	c.cache.FlushAll()
	r := c.current.RunQuantum(1) // retry translation at the current PC
	if r.Err == ErrOutOfMemoryForJit {
		return fmt.Errorf("chip8: jit arena exhausted immediately after flush: %w", err)
	}
	return r.Err
}
