package synth

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/samples"
)

// floor is the level every percussion envelope ramps down to.
const floor = 0.001

// decayEnv ramps exponentially from 1 to floor over dur seconds.
func decayEnv(t, dur float64) float64 {
	if t >= dur {
		return 0
	}
	return math.Exp(math.Log(floor) * t / dur)
}

// Pad renders a percussion pad by class. Pads have no pitch input; open
// pads (open hat, cymbals) ring longer.
func (g *Generator) Pad(pad string, open bool, velocity float64) *audio.Buffer {
	velocity = samples.ClampVelocity(velocity)
	switch samples.ClassOf(pad) {
	case samples.PadLow:
		return lowDrum(velocity)
	case samples.PadMid:
		return g.midDrum(velocity)
	case samples.PadHigh:
		return g.highNoise(open, velocity)
	case samples.PadMetallic:
		return metallic(velocity)
	default:
		return Click(velocity)
	}
}

// lowDrum is a sine swept from 150Hz down to 45Hz.
func lowDrum(velocity float64) *audio.Buffer {
	const dur = 0.5
	out := make([]float64, seconds(dur))
	phase := 0.0
	for i := range out {
		t := float64(i) / sr
		f := 45 + (150-45)*math.Exp(-t/0.05)
		phase += 2 * math.Pi * f / sr
		out[i] = math.Sin(phase) * decayEnv(t, dur) * velocity
	}
	return toBuffer(out)
}

// midDrum mixes high-passed noise with a short 180Hz tone burst.
func (g *Generator) midDrum(velocity float64) *audio.Buffer {
	const dur = 0.2
	n := seconds(dur)
	noise := g.noise(n, 1)
	hp := biquad.NewSection(design.Highpass(1000, 0.707, sr))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sr
		body := math.Sin(2*math.Pi*180*t) * decayEnv(t, 0.1)
		out[i] = (0.7*hp.ProcessSample(noise[i]) + 0.5*body) * decayEnv(t, dur) * velocity
	}
	return toBuffer(out)
}

// highNoise is noise high-passed around 7kHz.
func (g *Generator) highNoise(open bool, velocity float64) *audio.Buffer {
	dur := 0.08
	if open {
		dur = 0.4
	}
	n := seconds(dur)
	noise := g.noise(n, 1)
	hp := biquad.NewSection(design.Highpass(7000, 0.707, sr))
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / sr
		out[i] = hp.ProcessSample(noise[i]) * decayEnv(t, dur) * velocity * 0.6
	}
	return toBuffer(out)
}

// metallic is two detuned square waves, band limited with a lowpass.
func metallic(velocity float64) *audio.Buffer {
	const dur = 0.3
	out := make([]float64, seconds(dur))
	lp := biquad.NewSection(design.Lowpass(4000, 0.707, sr))
	for i := range out {
		t := float64(i) / sr
		x := square(540*t) + square(800*t)
		out[i] = lp.ProcessSample(x*0.25) * decayEnv(t, dur) * velocity
	}
	return toBuffer(out)
}

func square(cycles float64) float64 {
	if cycles-math.Floor(cycles) < 0.5 {
		return 1
	}
	return -1
}
