// video_backend_headless.go - windowless HostIO backends: a silent
// no-op host for CI/batch ROM runs and tests, plus a `-tty` host that
// renders block characters over a raw terminal, adapted from the
// reference terminal backend's raw-mode capture (terminal_host.go) but
// driven from a background reader goroutine instead of a GUI event loop.

//go:build headless

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

// HeadlessHostIO discards Draw/Beep output and reports no keys pressed
// unless a test drives Controller.KeyEvent directly.
type HeadlessHostIO struct {
	keys [16]bool
}

func NewHeadlessHostIO() *HeadlessHostIO { return &HeadlessHostIO{} }

func (h *HeadlessHostIO) Draw(*Framebuffer)     {}
func (h *HeadlessHostIO) Beep(bool)             {}
func (h *HeadlessHostIO) PollKeys() [16]bool    { return h.keys }
func (h *HeadlessHostIO) RandU8() (uint8, bool) { return 0, false }

// asciiKeyMap is the terminal equivalent of the windowed backend's
// chip8KeyMap: the same QWERTY block, read as raw bytes instead of key
// events.
var asciiKeyMap = map[byte]int{
	'1': 0x1, '2': 0x2, '3': 0x3, '4': 0xC,
	'q': 0x4, 'w': 0x5, 'e': 0x6, 'r': 0xD,
	'a': 0x7, 's': 0x8, 'd': 0x9, 'f': 0xE,
	'z': 0xA, 'x': 0x0, 'c': 0xB, 'v': 0xF,
}

const ttyKeyPulse = 150 * time.Millisecond

// TTYHostIO renders the framebuffer as block characters over stdout and
// reads the hex keypad from raw stdin bytes. Raw terminals deliver no
// key-up event, so a press is held for ttyKeyPulse and then auto-released,
// giving Fx0A the press-then-release edge it needs.
type TTYHostIO struct {
	fd       int
	oldState *term.State

	mu         sync.Mutex
	keys       [16]bool
	activeTill [16]time.Time

	quit chan struct{}
}

func newTTYHostIO() (*TTYHostIO, error) {
	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("chip8: enable raw terminal mode: %w", err)
	}
	h := &TTYHostIO{fd: fd, oldState: old, quit: make(chan struct{})}
	os.Stdout.WriteString("\x1b[2J")
	go h.readLoop()
	return h, nil
}

func (h *TTYHostIO) readLoop() {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			close(h.quit)
			return
		}
		b := buf[0]
		if b == 0x03 || b == 'Q' {
			close(h.quit)
			return
		}
		if idx, ok := asciiKeyMap[b]; ok {
			h.mu.Lock()
			h.keys[idx] = true
			h.activeTill[idx] = time.Now().Add(ttyKeyPulse)
			h.mu.Unlock()
		}
	}
}

func (h *TTYHostIO) PollKeys() [16]bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	var out [16]bool
	for i := range h.keys {
		if h.keys[i] && now.After(h.activeTill[i]) {
			h.keys[i] = false
		}
		out[i] = h.keys[i]
	}
	return out
}

func (h *TTYHostIO) Draw(view *Framebuffer) {
	var b strings.Builder
	b.WriteString("\x1b[H")
	for y := 0; y < DisplayHeight; y++ {
		for x := 0; x < DisplayWidth; x++ {
			if view.At(x, y) {
				b.WriteString("##")
			} else {
				b.WriteString("  ")
			}
		}
		b.WriteString("\x1b[K\r\n")
	}
	os.Stdout.WriteString(b.String())
}

func (h *TTYHostIO) Beep(on bool) {
	if on {
		os.Stdout.WriteString("\a")
	}
}

func (h *TTYHostIO) RandU8() (uint8, bool) { return 0, false }

// Close restores the terminal's original mode.
func (h *TTYHostIO) Close() error { return term.Restore(h.fd, h.oldState) }

const headlessFrameInterval = time.Second / 60

// Run builds either a silent headless host or, when cfg.TTY is set, a raw
// terminal host, and drives the frame loop at 60Hz until SIGINT/SIGTERM (or
// 'q'/Ctrl-C on the tty) or a fatal controller error, whichever comes
// first.
func Run(cfg Config) error {
	var host HostIO
	var quit <-chan struct{}
	if cfg.TTY {
		tty, err := newTTYHostIO()
		if err != nil {
			return err
		}
		defer tty.Close()
		host = tty
		quit = tty.quit
	} else {
		host = NewHeadlessHostIO()
	}

	ctrl := NewController(host, cfg.Seed)
	ctrl.SetCyclesPerFrame(cfg.CyclesPerFrame)
	if err := LoadROMFile(ctrl, cfg.ROMPath); err != nil {
		return err
	}
	if err := ctrl.SelectBackend(cfg.Backend); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(headlessFrameInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-quit:
				return nil
			case <-ticker.C:
				if err := ctrl.RunFrame(); err != nil {
					return err
				}
			}
		}
	})
	return g.Wait()
}
