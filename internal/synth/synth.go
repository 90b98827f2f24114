// Package synth renders fallback sounds when no recorded sample is
// available: plucked strings, FM tones, percussion and metronome clicks.
// Every generator returns a finished audio.Buffer, so nothing here runs on
// the render path.
package synth

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/samples"
)

const sr = float64(audio.SampleRate)

// NoteLength is the rendered length of pitched fallback notes.
const NoteLength = 2.0

// Generator owns the noise source shared by the noise-based models.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator seeded with seed. Equal seeds give identical output.
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Generator) noise(n int, scale float64) []float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]float64, n)
	for i := range out {
		out[i] = (g.rng.Float64()*2 - 1) * scale
	}
	return out
}

// Note renders a pitched fallback for the given family.
func (g *Generator) Note(family samples.Family, freq, velocity float64) *audio.Buffer {
	velocity = samples.ClampVelocity(velocity)
	switch family {
	case samples.Plucked:
		return g.KarplusStrong(freq, velocity)
	case samples.Percussion:
		return g.Pad("", false, velocity)
	default:
		return FM(freq, velocity)
	}
}

func toBuffer(x []float64) *audio.Buffer {
	mono := make([]float32, len(x))
	for i, v := range x {
		mono[i] = float32(v)
	}
	return audio.NewMono(mono)
}

func seconds(s float64) int {
	return int(math.Round(s * sr))
}
