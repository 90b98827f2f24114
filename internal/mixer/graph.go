// Package mixer renders voices through per-track channel strips into a
// shared master chain.
package mixer

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// SendLevel is the fixed amount of every voice routed to the reverb.
const SendLevel = 0.15

// Options configure a Graph.
type Options struct {
	MasterGain float64 // makeup gain after the compressor
	ReverbMix  float64
	ReverbIR   float64 // impulse response length in seconds
}

// DefaultReverbIR is the stock impulse response length in seconds.
const DefaultReverbIR = 1.5

// DefaultOptions returns the stock master chain settings.
func DefaultOptions() Options {
	return Options{MasterGain: 1.5, ReverbMix: 0.2, ReverbIR: DefaultReverbIR}
}

// Graph owns every sounding voice and the master chain. Render is called
// from a single audio goroutine; everything else may be called from any
// goroutine.
type Graph struct {
	mu     sync.Mutex
	voices []*Voice
	tracks map[int]*bus

	clock     atomic.Int64  // frames rendered
	reduction atomic.Uint64 // compressor gain reduction of the last block, dB

	// render goroutine state
	active []*Voice
	buses  []*bus
	send   []float32
	mix    []float32

	dist    *Distortion
	delay   *Delay
	reverb  *Reverb
	comp    *Compressor
	makeup  *Param
	limiter *Limiter
	meter   *Meter
}

type bus struct {
	buf  []float32
	peak atomic.Uint64
}

// NewGraph builds a graph with a synthesized room impulse response.
func NewGraph(opts Options) (*Graph, error) {
	if !(opts.ReverbIR > 0) {
		opts.ReverbIR = DefaultReverbIR
	}
	irL, irR := RoomIR(opts.ReverbIR, 1)
	rv, err := NewReverb(irL, irR, opts.ReverbMix)
	if err != nil {
		return nil, fmt.Errorf("build reverb: %w", err)
	}
	dist, err := newDistortion()
	if err != nil {
		return nil, fmt.Errorf("build distortion: %w", err)
	}
	delay, err := newDelay()
	if err != nil {
		return nil, fmt.Errorf("build delay: %w", err)
	}
	comp, err := NewCompressor()
	if err != nil {
		return nil, fmt.Errorf("build compressor: %w", err)
	}
	lim, err := NewLimiter()
	if err != nil {
		return nil, fmt.Errorf("build limiter: %w", err)
	}
	return &Graph{
		tracks:  make(map[int]*bus),
		dist:    dist,
		delay:   delay,
		reverb:  rv,
		comp:    comp,
		makeup:  NewParam(clampFinite(opts.MasterGain, 0, 4, 1), smoothing),
		limiter: lim,
		meter:   &Meter{},
	}, nil
}

// Now returns the graph clock in seconds.
func (g *Graph) Now() float64 {
	return float64(g.clock.Load()) / audio.SampleRate
}

// Frame returns the number of frames rendered so far.
func (g *Graph) Frame() int64 {
	return g.clock.Load()
}

// Play admits a buffer as a new voice on track. The voice starts at p.At on
// the graph clock, or immediately when p.At has passed.
func (g *Graph) Play(playID string, track int, buf *audio.Buffer, p VoiceParams) *Voice {
	start := g.clock.Load()
	if at := math.Round(p.At * audio.SampleRate); at > float64(start) && at < 1<<62 {
		start = int64(at)
	}
	v := newVoice(playID, track, buf, p, start)

	g.mu.Lock()
	b, ok := g.tracks[track]
	if !ok {
		b = &bus{}
		g.tracks[track] = b
	}
	v.bus = b
	g.voices = append(g.voices, v)
	g.mu.Unlock()
	return v
}

// Voices returns the number of voices still in the render list.
func (g *Graph) Voices() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, v := range g.voices {
		if !v.Done() {
			n++
		}
	}
	return n
}

// TrackPeaks returns the last block peak per track.
func (g *Graph) TrackPeaks() map[int]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int]float64, len(g.tracks))
	for id, b := range g.tracks {
		out[id] = math.Float64frombits(b.peak.Load())
	}
	return out
}

// SetDistortion sets the waveshaper drive in [0,1].
func (g *Graph) SetDistortion(amount float64) { g.dist.Set(amount) }

// SetDelay sets delay mix [0,1], time in seconds and feedback [0,0.95].
func (g *Graph) SetDelay(mix, seconds, feedback float64) { g.delay.Set(mix, seconds, feedback) }

// SetReverb sets the reverb return level in [0,1].
func (g *Graph) SetReverb(mix float64) { g.reverb.Set(mix) }

// SetMasterGain sets the makeup gain after the compressor.
func (g *Graph) SetMasterGain(gain float64) {
	g.makeup.Set(clampFinite(gain, 0, 4, g.makeup.Target()))
}

// GainReduction returns the deepest master compressor gain reduction in
// the last rendered block, in dB (0 or negative).
func (g *Graph) GainReduction() float64 {
	return math.Float64frombits(g.reduction.Load())
}

// Meter exposes the output meter.
func (g *Graph) Meter() *Meter { return g.meter }

// Render fills out with interleaved stereo float32 and advances the clock.
func (g *Graph) Render(out []float32) {
	n := len(out) / audio.Channels
	if n == 0 {
		return
	}
	from := g.clock.Load()

	g.mu.Lock()
	g.active = append(g.active[:0], g.voices...)
	g.buses = g.buses[:0]
	for _, b := range g.tracks {
		b.buf = grow(b.buf, n*2)
		g.buses = append(g.buses, b)
	}
	g.mu.Unlock()

	g.send = grow(g.send, n*2)
	g.mix = grow(g.mix, n*2)

	for _, v := range g.active {
		v.render(from, n, v.bus.buf, g.send, SendLevel)
	}

	for _, b := range g.buses {
		var peak float64
		for i, s := range b.buf {
			g.mix[i] += s
			peak = math.Max(peak, math.Abs(finite(s)))
		}
		b.peak.Store(math.Float64bits(peak))
	}
	g.reverb.process(g.send, g.mix, n)

	for i := 0; i < n; i++ {
		l, r := finite(g.mix[i*2]), finite(g.mix[i*2+1])
		l, r = g.dist.process(l, r)
		l, r = g.delay.process(l, r)
		l, r = g.comp.Process(l, r)
		m := g.makeup.Next()
		l, r = g.limiter.Process(l*m, r*m)
		out[i*2] = float32(l)
		out[i*2+1] = float32(r)
	}

	g.reduction.Store(math.Float64bits(g.comp.Reduction()))
	g.meter.write(out, n)
	g.clock.Add(int64(n))
	g.prune()
}

// prune drops finished voices from the render list.
func (g *Graph) prune() {
	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.voices[:0]
	for _, v := range g.voices {
		if !v.Done() {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(g.voices); i++ {
		g.voices[i] = nil
	}
	g.voices = kept
}

// finite widens a mix sample, replacing NaN and Inf with silence so one
// bad voice cannot latch the dynamics detectors.
func finite(s float32) float64 {
	v := float64(s)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// grow returns buf resized to n and zeroed.
func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	buf = buf[:n]
	clear(buf)
	return buf
}
