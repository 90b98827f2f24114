package mixer

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// smoothing is the time constant used for every user-facing parameter.
const smoothing = 20 * time.Millisecond

// Param is a value written by control goroutines and read by the render
// loop. Writers set a target; the render loop glides towards it with a
// one-pole ramp, so a jump in the control value never steps the signal.
type Param struct {
	target  atomic.Uint64
	current float64 // render goroutine only
	coef    float64
}

// NewParam returns a parameter resting at v.
func NewParam(v float64, tau time.Duration) *Param {
	p := &Param{current: v}
	p.target.Store(math.Float64bits(v))
	p.coef = 1 - math.Exp(-1/(tau.Seconds()*audio.SampleRate))
	return p
}

// Set changes the target value.
func (p *Param) Set(v float64) {
	p.target.Store(math.Float64bits(v))
}

// Target returns the most recently set value.
func (p *Param) Target() float64 {
	return math.Float64frombits(p.target.Load())
}

// Next advances one sample and returns the smoothed value. Render goroutine only.
func (p *Param) Next() float64 {
	t := p.Target()
	p.current += p.coef * (t - p.current)
	if math.Abs(t-p.current) < 1e-9 {
		p.current = t
	}
	return p.current
}

// clamp bounds v to [lo,hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if v < lo || math.IsNaN(v) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampFinite is clamp with NaN mapped to def instead.
func clampFinite(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return clamp(v, lo, hi)
}
