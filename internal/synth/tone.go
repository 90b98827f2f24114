package synth

import (
	"math"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// ADSR is an envelope in seconds; Sustain is a level in [0,1].
type ADSR struct {
	Attack, Decay, Sustain, Release float64
}

// At returns the envelope level at time t for a note held for `hold`
// seconds before its release begins.
func (e ADSR) At(t, hold float64) float64 {
	switch {
	case t < 0:
		return 0
	case t < e.Attack:
		return t / e.Attack
	case t < e.Attack+e.Decay:
		return 1 - (1-e.Sustain)*(t-e.Attack)/e.Decay
	case t < hold:
		return e.Sustain
	case t < hold+e.Release:
		return e.Sustain * (1 - (t-hold)/e.Release)
	}
	return 0
}

// harmonics are the partial ratios and amplitudes of the tone generator.
var harmonics = [...]struct{ ratio, amp float64 }{
	{1, 1}, {2, 0.5}, {3, 0.25},
}

// Tone renders a short multi-harmonic tone shaped by env.
func Tone(freq, velocity float64, env ADSR, hold float64) *audio.Buffer {
	n := seconds(hold + env.Release)
	out := make([]float64, n)
	norm := 0.0
	for _, h := range harmonics {
		norm += h.amp
	}
	for i := range out {
		t := float64(i) / sr
		var x float64
		for _, h := range harmonics {
			x += h.amp * math.Sin(2*math.Pi*freq*h.ratio*t)
		}
		out[i] = x / norm * env.At(t, hold) * velocity
	}
	return toBuffer(out)
}

var clickEnv = ADSR{Attack: 0.001, Decay: 0.02, Sustain: 0.3, Release: 0.03}

// Tick renders a metronome click; accented beats are higher and louder.
func Tick(accent bool) *audio.Buffer {
	if accent {
		return Tone(1000, 1, clickEnv, 0.02)
	}
	return Tone(800, 0.7, clickEnv, 0.02)
}

// Click is the generic percussive sound used for pads without an asset or
// recipe.
func Click(velocity float64) *audio.Buffer {
	return Tone(1200, velocity, ADSR{Attack: 0.001, Decay: 0.03, Sustain: 0.1, Release: 0.04}, 0.03)
}
