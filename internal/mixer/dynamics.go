package mixer

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/effects/dynamics"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

func dbToLin(db float64) float64 { return math.Pow(10, db/20) }

func linToDB(x float64) float64 {
	if x < 1e-10 {
		return -200
	}
	return 20 * math.Log10(x)
}

// Master-bus compressor settings.
const (
	compThreshold = -24.0 // dB
	compRatio     = 12.0
	compKnee      = 24.0 // dB
	compAttack    = 3.0  // ms
	compRelease   = 250.0
)

// Compressor is a stereo-linked feed-forward compressor with a soft knee,
// tuned as automatic gain control for the master bus. Both channels share
// one detector input, the louder of the two.
type Compressor struct {
	left  *dynamics.Compressor
	right *dynamics.Compressor
}

// NewCompressor returns the master-bus compressor: -24dB threshold, 12:1,
// 24dB knee, 3ms attack, 250ms release, no makeup.
func NewCompressor() (*Compressor, error) {
	left, err := newChannelCompressor()
	if err != nil {
		return nil, fmt.Errorf("left compressor: %w", err)
	}
	right, err := newChannelCompressor()
	if err != nil {
		return nil, fmt.Errorf("right compressor: %w", err)
	}
	return &Compressor{left: left, right: right}, nil
}

func newChannelCompressor() (*dynamics.Compressor, error) {
	c, err := dynamics.NewCompressor(audio.SampleRate)
	if err != nil {
		return nil, err
	}
	if err := c.SetThreshold(compThreshold); err != nil {
		return nil, err
	}
	if err := c.SetRatio(compRatio); err != nil {
		return nil, err
	}
	if err := c.SetKnee(compKnee); err != nil {
		return nil, err
	}
	if err := c.SetAttack(compAttack); err != nil {
		return nil, err
	}
	if err := c.SetRelease(compRelease); err != nil {
		return nil, err
	}
	if err := c.SetAutoMakeup(false); err != nil {
		return nil, err
	}
	if err := c.SetMakeupGain(0); err != nil {
		return nil, err
	}
	return c, nil
}

// Process compresses one stereo frame.
func (c *Compressor) Process(l, r float64) (float64, float64) {
	side := math.Max(math.Abs(l), math.Abs(r))
	return c.left.ProcessSampleSidechain(l, side), c.right.ProcessSampleSidechain(r, side)
}

// Gain returns the static gain the compressor applies to a steady input
// of the given linear level.
func (c *Compressor) Gain(level float64) float64 {
	if level <= 0 {
		return 1
	}
	return c.left.CalculateOutputLevel(level) / level
}

// Reduction returns the deepest gain reduction in dB since the last call.
func (c *Compressor) Reduction() float64 {
	m := c.left.GetMetrics()
	c.left.ResetMetrics()
	c.right.ResetMetrics()
	return linToDB(m.GainReduction)
}

// Limiter is a brick-wall peak limiter: fast attack, slower release, and a
// hard clamp at the ceiling so nothing above it ever leaves the graph.
type Limiter struct {
	ceiling float64
	left    *dynamics.Limiter
	right   *dynamics.Limiter
}

// NewLimiter returns a limiter with a -0.3dBFS ceiling and 50ms release.
func NewLimiter() (*Limiter, error) {
	lim := &Limiter{ceiling: dbToLin(-0.3)}
	for _, ch := range []**dynamics.Limiter{&lim.left, &lim.right} {
		l, err := dynamics.NewLimiter(audio.SampleRate)
		if err != nil {
			return nil, err
		}
		if err := l.SetThreshold(-0.3); err != nil {
			return nil, err
		}
		if err := l.SetRelease(50); err != nil {
			return nil, err
		}
		*ch = l
	}
	return lim, nil
}

// Process limits one stereo frame.
func (lim *Limiter) Process(l, r float64) (float64, float64) {
	l = lim.left.ProcessSample(l)
	r = lim.right.ProcessSample(r)
	return clampFinite(l, -lim.ceiling, lim.ceiling, 0), clampFinite(r, -lim.ceiling, lim.ceiling, 0)
}

// Ceiling returns the output ceiling as a linear amplitude.
func (lim *Limiter) Ceiling() float64 { return lim.ceiling }
