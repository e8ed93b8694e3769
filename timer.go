// timer.go - C7 Timer/Input Driver: 60Hz decrement of delay/sound timers
// and host key-matrix latching, run once per dispatch quantum.

package main

// TimerDriver owns the 60Hz timer tick and key-matrix refresh that the
// execution controller invokes once per frame, after the quantum of
// guest instructions has run (spec.md §2 "Control flow").
type TimerDriver struct {
	s *MachineState
}

// NewTimerDriver builds a driver over s.
func NewTimerDriver(s *MachineState) *TimerDriver { return &TimerDriver{s: s} }

// LatchInput refreshes the key matrix from the host and resolves any
// pending Fx0A wait. Must be called before the frame's instruction
// quantum, per spec.md §3 ("Frames in the key matrix are refreshed by the
// host before each dispatch quantum").
func (t *TimerDriver) LatchInput(keys [16]bool) {
	t.s.LatchKeys(keys)
}

// Tick decrements delay/sound timers once and reports whether the beep
// state (sound_timer zero vs non-zero) changed, so the caller can notify
// HostIO.Beep only on a transition.
func (t *TimerDriver) Tick() (beepChanged bool) {
	return t.s.TickTimers()
}
