package mixer

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/google/uuid"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// silence is the fade level at which a released voice is dropped (-60dB).
const silence = 1e-3

// VoiceParams shape a voice's channel strip.
type VoiceParams struct {
	Velocity float64 // [0,1], drives gain and filter brightness
	Volume   float64 // track volume [0,1]
	Pan      float64 // [-1,1]
	At       float64 // start time in graph seconds; 0 or past means now
	NoFilter bool    // bypass the velocity lowpass (metronome clicks)
}

// Voice is one sounding instance of a buffer on a mixer track.
type Voice struct {
	ID     uuid.UUID
	PlayID string
	Track  int

	buf   *audio.Buffer
	gain  float64
	left  float64 // pan matrix
	right float64
	cross float64
	start int64
	bus   *bus

	// render goroutine state
	pos    int
	fade   float64
	fading bool
	lpL    *biquad.Section
	lpR    *biquad.Section

	released atomic.Bool
	tau      atomic.Int64 // release time constant in nanoseconds
	done     atomic.Bool
}

// Cutoff returns the velocity lowpass cutoff: brighter for harder strikes.
func Cutoff(velocity float64) float64 {
	return math.Min(800*math.Pow(2, 5*clamp(velocity, 0, 1)), 18000)
}

func newVoice(playID string, track int, buf *audio.Buffer, p VoiceParams, start int64) *Voice {
	v := &Voice{
		ID:     uuid.New(),
		PlayID: playID,
		Track:  track,
		buf:    buf,
		gain:   clamp(p.Velocity, 0, 1) * clamp(p.Volume, 0, 1),
		start:  start,
		fade:   1,
	}
	v.setPan(clampFinite(p.Pan, -1, 1, 0))
	if !p.NoFilter {
		fc := Cutoff(p.Velocity)
		v.lpL = biquad.NewSection(design.Lowpass(fc, 0.707, audio.SampleRate))
		v.lpR = biquad.NewSection(design.Lowpass(fc, 0.707, audio.SampleRate))
	}
	return v
}

// setPan builds an equal-power stereo panner. At centre both channels pass
// unchanged; panning folds the far channel into the near one.
func (v *Voice) setPan(pan float64) {
	if pan <= 0 {
		x := (pan + 1) * math.Pi / 2
		v.left, v.right, v.cross = 1, math.Sin(x), math.Cos(x)
	} else {
		x := pan * math.Pi / 2
		v.left, v.right, v.cross = math.Cos(x), 1, -math.Sin(x)
	}
}

// pan applies the matrix. Negative cross folds right into left.
func (v *Voice) pan(l, r float64) (float64, float64) {
	if v.cross >= 0 {
		return l + r*v.cross, r * v.right
	}
	return l * v.left, r - l*v.cross
}

// Release starts an exponential fade with time constant tau. It is safe to
// call any number of times from any goroutine; only the first call counts.
func (v *Voice) Release(tau time.Duration) {
	if tau <= 0 {
		tau = time.Millisecond
	}
	v.tau.Store(int64(tau))
	v.released.Store(true)
}

// Released reports whether Release has been called.
func (v *Voice) Released() bool { return v.released.Load() }

// Done reports whether the voice has finished and left the render list.
func (v *Voice) Done() bool { return v.done.Load() }

// StartFrame returns the graph frame at which the voice begins.
func (v *Voice) StartFrame() int64 { return v.start }

// Length returns the buffer length in frames.
func (v *Voice) Length() int { return v.buf.Frames() }

// render mixes frames [from, from+n) of the graph clock into bus and send.
func (v *Voice) render(from int64, n int, bus, send []float32, sendLevel float64) {
	if v.done.Load() {
		return
	}
	if v.released.Load() && !v.fading {
		if v.pos == 0 && from+int64(n) <= v.start {
			// released before it ever sounded
			v.done.Store(true)
			return
		}
		v.fading = true
	}
	coef := 0.0
	if v.fading {
		coef = math.Exp(-1 / (time.Duration(v.tau.Load()).Seconds() * audio.SampleRate))
	}

	frames := v.buf.Frames()
	i := 0
	if v.start > from {
		i = int(v.start - from)
	}
	for ; i < n; i++ {
		if v.pos >= frames {
			v.done.Store(true)
			return
		}
		l, r := v.buf.Frame(v.pos)
		v.pos++
		x, y := float64(l), float64(r)
		if v.lpL != nil {
			x = v.lpL.ProcessSample(x)
			y = v.lpR.ProcessSample(y)
		}
		if v.fading {
			v.fade *= coef
			if v.fade < silence {
				v.done.Store(true)
				return
			}
		}
		g := v.gain * v.fade
		x, y = v.pan(x*g, y*g)
		bus[i*2] += float32(x)
		bus[i*2+1] += float32(y)
		send[i*2] += float32(x * sendLevel)
		send[i*2+1] += float32(y * sendLevel)
	}
}
