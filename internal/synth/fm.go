package synth

import (
	"math"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// FM renders a two-operator tone: the modulator runs at twice the carrier
// and its index decays from a velocity-scaled peak, then a lowpass whose
// cutoff also decays darkens the tail.
func FM(freq, velocity float64) *audio.Buffer {
	if freq <= 0 {
		freq = 261.63
	}
	const (
		indexTau  = 0.4
		ampTau    = 0.8
		cutoffTau = 0.3
		floorHz   = 300.0
		attack    = 0.005
	)
	peakIndex := 1 + 4*velocity
	peakCutoff := 1500 + 6500*velocity
	gain := 0.25 + 0.55*velocity

	n := seconds(NoteLength)
	out := make([]float64, n)
	var lp1, lp2 float64
	for i := range out {
		t := float64(i) / sr
		index := peakIndex * math.Exp(-t/indexTau)
		mod := index * math.Sin(2*math.Pi*2*freq*t)
		x := math.Sin(2*math.Pi*freq*t + mod)

		env := math.Exp(-t / ampTau)
		if t < attack {
			env *= audio.Smoothstep(t / attack)
		}
		x *= env * gain

		// two cascaded one-poles with a per-sample cutoff
		fc := floorHz + (peakCutoff-floorHz)*math.Exp(-t/cutoffTau)
		a := 1 - math.Exp(-2*math.Pi*fc/sr)
		lp1 += a * (x - lp1)
		lp2 += a * (lp1 - lp2)
		out[i] = lp2
	}

	b := toBuffer(out)
	audio.FadeEdges(b.Samples, audio.Channels, 0, seconds(0.05))
	return b
}
