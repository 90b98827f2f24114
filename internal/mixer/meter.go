package mixer

import (
	"math"
	"math/cmplx"
	"sync"
	"sync/atomic"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// FFTSize is the analysis window of the meter.
const FFTSize = 2048

// smoothingTime blends each spectrum with the previous one.
const smoothingTime = 0.8

// Meter keeps the most recent master output for visualizers. The render
// loop only copies samples in; the FFT runs on the caller's goroutine.
type Meter struct {
	mu   sync.Mutex
	ring [FFTSize]float64
	pos  int
	prev []float64 // smoothed linear magnitudes

	peak atomic.Uint64
}

// write records a block of interleaved stereo output as mono.
func (m *Meter) write(block []float32, n int) {
	var peak float64
	m.mu.Lock()
	for i := 0; i < n; i++ {
		l, r := float64(block[i*2]), float64(block[i*2+1])
		m.ring[m.pos] = (l + r) / 2
		m.pos = (m.pos + 1) % FFTSize
		peak = math.Max(peak, math.Max(math.Abs(l), math.Abs(r)))
	}
	m.mu.Unlock()
	m.peak.Store(math.Float64bits(peak))
}

// Waveform returns the last FFTSize mono samples, oldest first.
func (m *Meter) Waveform() []float64 {
	out := make([]float64, FFTSize)
	m.mu.Lock()
	copy(out, m.ring[m.pos:])
	copy(out[FFTSize-m.pos:], m.ring[:m.pos])
	m.mu.Unlock()
	return out
}

// PeakLevel returns the absolute peak of the most recent rendered block.
func (m *Meter) PeakLevel() float64 {
	return math.Float64frombits(m.peak.Load())
}

// FrequencyData returns FFTSize/2 magnitude bins in dBFS, Hann windowed and
// smoothed over time.
func (m *Meter) FrequencyData() []float64 {
	x := m.Waveform()
	window.Apply(x, window.Hann)
	spec := fft.FFTReal(x)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prev == nil {
		m.prev = make([]float64, FFTSize/2)
	}
	out := make([]float64, FFTSize/2)
	for i := range out {
		mag := cmplx.Abs(spec[i]) / FFTSize
		m.prev[i] = smoothingTime*m.prev[i] + (1-smoothingTime)*mag
		out[i] = linToDB(m.prev[i])
	}
	return out
}
