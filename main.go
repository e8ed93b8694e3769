// main.go - CLI entry point: flag parsing and backend selection. The
// actual run loop is supplied by whichever video backend file is compiled
// in (video_backend_ebiten.go by default, video_backend_headless.go under
// the headless build tag).

package main

import (
	"flag"
	"fmt"
	"os"
)

// Config carries every setting a Run implementation needs to start a
// Controller and drive it to completion or failure.
type Config struct {
	ROMPath        string
	Backend        BackendKind
	Scale          int
	CyclesPerFrame int
	Seed           uint32
	TTY            bool
}

func parseBackend(name string) (BackendKind, error) {
	switch name {
	case "interpreter":
		return BackendInterpreter, nil
	case "tier1":
		return BackendTier1, nil
	case "tier2":
		return BackendTier2, nil
	case "tier3":
		return BackendTier3, nil
	case "jit":
		return BackendJIT, nil
	default:
		return 0, fmt.Errorf("unknown -backend %q (want interpreter, tier1, tier2, tier3, jit)", name)
	}
}

func main() {
	backendName := flag.String("backend", "interpreter", "execution backend: interpreter, tier1, tier2, tier3, jit")
	scale := flag.Int("scale", 12, "pixel scale factor for the display window")
	cycles := flag.Int("cycles", DefaultCyclesPerFrame, "guest instructions executed per 60Hz frame")
	seed := flag.Uint("seed", 0, "PRNG seed for Cxkk (0 selects host entropy)")
	tty := flag.Bool("tty", false, "render to the current terminal instead of a window (headless builds only)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] rom-file\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	kind, err := parseBackend(*backendName)
	if err != nil {
		fmt.Fprintln(os.Stderr, "chip8vm:", err)
		os.Exit(2)
	}

	cfg := Config{
		ROMPath:        flag.Arg(0),
		Backend:        kind,
		Scale:          *scale,
		CyclesPerFrame: *cycles,
		Seed:           uint32(*seed),
		TTY:            *tty,
	}

	if err := Run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "chip8vm:", err)
		os.Exit(1)
	}
}
