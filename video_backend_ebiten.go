// video_backend_ebiten.go - windowed HostIO backend: renders the 64x32
// bitmap through ebiten and reads the hex keypad off the host keyboard,
// grounded on the reference video backend's ebiten.Game shape (Update /
// Draw / Layout) and its basicfont HUD line.

//go:build !headless

package main

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"
)

// chip8KeyMap places the 4x4 hex keypad on the left-hand QWERTY block in
// its usual emulator layout:
//
//	1 2 3 C        1 2 3 4
//	4 5 6 D   -->  Q W E R
//	7 8 9 E        A S D F
//	A 0 B F        Z X C V
var chip8KeyMap = [16]ebiten.Key{
	0x0: ebiten.KeyX,
	0x1: ebiten.Key1,
	0x2: ebiten.Key2,
	0x3: ebiten.Key3,
	0x4: ebiten.KeyQ,
	0x5: ebiten.KeyW,
	0x6: ebiten.KeyE,
	0x7: ebiten.KeyA,
	0x8: ebiten.KeyS,
	0x9: ebiten.KeyD,
	0xA: ebiten.KeyZ,
	0xB: ebiten.KeyC,
	0xC: ebiten.Key4,
	0xD: ebiten.KeyR,
	0xE: ebiten.KeyF,
	0xF: ebiten.KeyV,
}

// chip8Display is the pixel buffer shared between the HostIO side (which
// writes it from Controller.RunFrame) and the ebiten.Game side (which
// reads it from Draw). Both calls happen from ebiten's single Update/Draw
// goroutine in this program's wiring (see RunHost), so no lock is needed.
type chip8Display struct {
	pixels [DisplayWidth * DisplayHeight]byte
}

// EbitenHostIO implements HostIO on top of an ebiten window.
type EbitenHostIO struct {
	disp   *chip8Display
	beeper *squareWaveBeeper
	keys   [16]bool
}

// NewEbitenHostIO opens the audio device and returns a ready HostIO.
func NewEbitenHostIO() (*EbitenHostIO, error) {
	beeper, err := newSquareWaveBeeper()
	if err != nil {
		return nil, fmt.Errorf("chip8: open audio device: %w", err)
	}
	return &EbitenHostIO{disp: &chip8Display{}, beeper: beeper}, nil
}

func (h *EbitenHostIO) Draw(view *Framebuffer) {
	for i := range h.disp.pixels {
		if view.pixels[i] != 0 {
			h.disp.pixels[i] = 1
		} else {
			h.disp.pixels[i] = 0
		}
	}
}

func (h *EbitenHostIO) Beep(on bool) { h.beeper.SetOn(on) }

func (h *EbitenHostIO) PollKeys() [16]bool {
	for i, k := range chip8KeyMap {
		h.keys[i] = ebiten.IsKeyPressed(k)
	}
	return h.keys
}

// RandU8 leaves entropy entirely to the core's own PRNG; a windowed host
// has nothing better to offer than the guest already has.
func (h *EbitenHostIO) RandU8() (uint8, bool) { return 0, false }

// EbitenGame adapts a Controller/EbitenHostIO pair to ebiten.Game.
type EbitenGame struct {
	ctrl          *Controller
	host          *EbitenHostIO
	scale         int
	img           *ebiten.Image
	rgba          []byte
	lastSwitchErr error
}

func newEbitenGame(ctrl *Controller, host *EbitenHostIO, scale int) *EbitenGame {
	return &EbitenGame{
		ctrl:  ctrl,
		host:  host,
		scale: scale,
		img:   ebiten.NewImage(DisplayWidth, DisplayHeight),
		rgba:  make([]byte, DisplayWidth*DisplayHeight*4),
	}
}

// hotkeyBackends maps the number row to a live backend switch, mirroring
// the reference GUI's runtime execution-strategy menu without a native
// menu widget.
var hotkeyBackends = map[ebiten.Key]BackendKind{
	ebiten.Key1: BackendInterpreter,
	ebiten.Key2: BackendTier1,
	ebiten.Key3: BackendTier2,
	ebiten.Key4: BackendTier3,
	ebiten.Key5: BackendJIT,
}

func (g *EbitenGame) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	for key, kind := range hotkeyBackends {
		if inpututil.IsKeyJustPressed(key) && g.ctrl.Backend() != kind {
			if err := g.ctrl.SelectBackend(kind); err != nil {
				g.lastSwitchErr = err
			} else {
				g.lastSwitchErr = nil
			}
		}
	}
	return g.ctrl.RunFrame()
}

func (g *EbitenGame) Draw(screen *ebiten.Image) {
	for i, v := range g.host.disp.pixels {
		c := byte(0)
		if v != 0 {
			c = 0xE0
		}
		g.rgba[i*4], g.rgba[i*4+1], g.rgba[i*4+2], g.rgba[i*4+3] = c, c, c, 0xFF
	}
	g.img.WritePixels(g.rgba)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(float64(g.scale), float64(g.scale))
	screen.DrawImage(g.img, op)

	line := fmt.Sprintf("backend: %s (1-5 to switch)", g.ctrl.Backend())
	if g.lastSwitchErr != nil {
		line = fmt.Sprintf("backend: %s (%v)", g.ctrl.Backend(), g.lastSwitchErr)
	}
	text.Draw(screen, line, basicfont.Face7x13, 4, DisplayHeight*g.scale-6, color.RGBA{0x40, 0xE0, 0x60, 0xFF})
}

func (g *EbitenGame) Layout(_, _ int) (int, int) {
	return DisplayWidth * g.scale, DisplayHeight * g.scale
}

// Run builds a windowed host, wires it to a Controller, loads cfg.ROM and
// blocks running the ebiten game loop until the window closes or the
// controller halts with a fatal error.
func Run(cfg Config) error {
	host, err := NewEbitenHostIO()
	if err != nil {
		return err
	}
	ctrl := NewController(host, cfg.Seed)
	ctrl.SetCyclesPerFrame(cfg.CyclesPerFrame)
	if err := LoadROMFile(ctrl, cfg.ROMPath); err != nil {
		return err
	}
	if err := ctrl.SelectBackend(cfg.Backend); err != nil {
		return fmt.Errorf("chip8: select backend %s: %w", cfg.Backend, err)
	}

	ebiten.SetWindowSize(DisplayWidth*cfg.Scale, DisplayHeight*cfg.Scale)
	ebiten.SetWindowTitle("chip8vm")
	game := newEbitenGame(ctrl, host, cfg.Scale)
	if err := ebiten.RunGame(game); err != nil {
		return err
	}
	return ctrl.LastError()
}
