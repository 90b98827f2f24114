package synth

import (
	"math"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// KarplusStrong renders a plucked string. A ring buffer one period long is
// seeded with noise and fed back through a two-tap average. Softer plucks
// use a lower feedback gain, so they damp faster.
func (g *Generator) KarplusStrong(freq, velocity float64) *audio.Buffer {
	if freq <= 0 {
		freq = 261.63
	}
	period := int(math.Round(sr / freq))
	if period < 2 {
		period = 2
	}
	decay := 0.990 + 0.009*velocity

	ring := g.noise(period, 0.2+0.8*velocity)
	out := make([]float64, seconds(NoteLength))
	idx := 0
	for i := range out {
		next := (idx + 1) % period
		y := ring[idx]
		out[i] = y
		ring[idx] = decay * 0.5 * (ring[idx] + ring[next])
		idx = next
	}

	b := toBuffer(out)
	audio.FadeEdges(b.Samples, audio.Channels, 0, seconds(0.05))
	return b
}
