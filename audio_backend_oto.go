// audio_backend_oto.go - square-wave beep while sound_timer is non-zero,
// streamed through Oto v3 the same way the reference audio backend feeds
// a generated waveform to an oto.Player: a lock-light io.Reader driven by
// an atomic on/off flag.

//go:build !headless

package main

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

const (
	beepSampleRate = 44100
	beepFrequency  = 440.0
	beepAmplitude  = 0.2
)

// squareWaveBeeper is the HostIO.Beep sound source: a continuously
// running oto.Player whose Read emits either silence or a square wave,
// selected by an atomic flag so Beep can be called from the controller's
// frame loop without blocking on the audio callback.
type squareWaveBeeper struct {
	ctx    *oto.Context
	player *oto.Player
	on     atomic.Bool
	phase  float64
}

func newSquareWaveBeeper() (*squareWaveBeeper, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   beepSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	b := &squareWaveBeeper{ctx: ctx}
	b.player = ctx.NewPlayer(b)
	b.player.Play()
	return b, nil
}

// SetOn toggles the beep. Called at most once per frame by Beep.
func (b *squareWaveBeeper) SetOn(on bool) { b.on.Store(on) }

func (b *squareWaveBeeper) Read(p []byte) (int, error) {
	n := len(p) / 4
	on := b.on.Load()
	const step = beepFrequency / beepSampleRate
	for i := 0; i < n; i++ {
		var sample float32
		if on {
			if b.phase < 0.5 {
				sample = beepAmplitude
			} else {
				sample = -beepAmplitude
			}
		}
		b.phase += step
		if b.phase >= 1 {
			b.phase -= 1
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(sample))
	}
	return n * 4, nil
}

func (b *squareWaveBeeper) Close() { b.player.Close() }
