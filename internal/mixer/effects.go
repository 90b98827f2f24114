package mixer

import (
	"fmt"

	"github.com/cwbudde/algo-dsp/dsp/effects"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// MaxDelay is the longest delay time SetDelay accepts, in seconds.
const MaxDelay = 2.0

// maxDrive is the waveshaper drive at amount 1.
const maxDrive = 20.0

// Distortion is a smoothed tanh waveshaper. Amount 0 is a clean
// pass-through; higher amounts raise both drive and wet mix.
type Distortion struct {
	amount *Param
	left   *effects.Distortion
	right  *effects.Distortion
}

func newDistortion() (*Distortion, error) {
	d := &Distortion{amount: NewParam(0, smoothing)}
	for _, ch := range []**effects.Distortion{&d.left, &d.right} {
		s, err := effects.NewDistortion(audio.SampleRate,
			effects.WithDistortionMode(effects.DistortionModeTanh),
			effects.WithDistortionDrive(1),
			effects.WithDistortionMix(0),
		)
		if err != nil {
			return nil, fmt.Errorf("distortion: %w", err)
		}
		*ch = s
	}
	return d, nil
}

// Set updates the drive amount, clamped to [0,1]. NaN is ignored.
func (d *Distortion) Set(amount float64) {
	d.amount.Set(clampFinite(amount, 0, 1, d.amount.Target()))
}

func (d *Distortion) process(l, r float64) (float64, float64) {
	a := d.amount.Next()
	if a == 0 {
		return l, r
	}
	// a is in (0,1], which keeps both setters in range
	drive := 1 + a*(maxDrive-1)
	_ = d.left.SetDrive(drive)
	_ = d.left.SetMix(a)
	_ = d.right.SetDrive(drive)
	_ = d.right.SetMix(a)
	return d.left.ProcessSample(l), d.right.ProcessSample(r)
}

// Delay is a stereo feedback delay line with smoothed mix, time and
// feedback. Time changes glide, which bends pitch briefly rather than
// clicking.
type Delay struct {
	mix      *Param
	time     *Param // seconds
	feedback *Param
	left     *effects.Delay
	right    *effects.Delay
}

func newDelay() (*Delay, error) {
	d := &Delay{
		mix:      NewParam(0, smoothing),
		time:     NewParam(0.25, smoothing),
		feedback: NewParam(0.3, smoothing),
	}
	for _, ch := range []**effects.Delay{&d.left, &d.right} {
		line, err := effects.NewDelay(audio.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("delay: %w", err)
		}
		if err := d.apply(line, 0, 0.25, 0.3); err != nil {
			return nil, fmt.Errorf("delay: %w", err)
		}
		if err := line.SetTime(0.25); err != nil {
			return nil, fmt.Errorf("delay: %w", err)
		}
		*ch = line
	}
	return d, nil
}

// Set updates mix [0,1], time [0.001,MaxDelay] seconds and feedback
// [0,0.95]. A NaN argument leaves that parameter unchanged.
func (d *Delay) Set(mix, seconds, feedback float64) {
	d.mix.Set(clampFinite(mix, 0, 1, d.mix.Target()))
	d.time.Set(clampFinite(seconds, 0.001, MaxDelay, d.time.Target()))
	d.feedback.Set(clampFinite(feedback, 0, 0.95, d.feedback.Target()))
}

func (d *Delay) apply(line *effects.Delay, mix, seconds, feedback float64) error {
	if err := line.SetMix(mix); err != nil {
		return err
	}
	if err := line.SetTargetTime(seconds); err != nil {
		return err
	}
	return line.SetFeedback(feedback)
}

func (d *Delay) process(l, r float64) (float64, float64) {
	mix, seconds, fb := d.mix.Next(), d.time.Next(), d.feedback.Next()
	// the params stay inside the ranges the lines accept
	_ = d.apply(d.left, mix, seconds, fb)
	_ = d.apply(d.right, mix, seconds, fb)
	return d.left.ProcessSample(l), d.right.ProcessSample(r)
}
