package mixer

import (
	"fmt"
	"math"
	"math/rand/v2"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// Partition orders for the convolvers: 256-frame latency, partitions
// growing to 8192 frames.
const (
	reverbMinOrder = 8
	reverbMaxOrder = 13
)

// Reverb convolves the send bus with a stereo impulse response through
// non-uniform partitioned convolvers, which carry the tail between blocks.
type Reverb struct {
	mix   *Param
	left  *dspconv.PartitionedConvolution
	right *dspconv.PartitionedConvolution

	// render goroutine scratch
	inL, inR   []float64
	outL, outR []float64
	failed     bool
}

// RoomIR synthesizes a decaying-noise impulse response of the given length,
// reaching -60dB at the end. Left and right use independent noise so the
// tail is decorrelated.
func RoomIR(seconds float64, seed uint64) (left, right []float64) {
	n := int(seconds * audio.SampleRate)
	if n < 1 {
		n = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed+1))
	left = make([]float64, n)
	right = make([]float64, n)
	k := math.Log(1e-3) / float64(n)
	for i := 0; i < n; i++ {
		env := math.Exp(k * float64(i))
		left[i] = (rng.Float64()*2 - 1) * env
		right[i] = (rng.Float64()*2 - 1) * env
	}
	// normalize energy so the wet level is independent of length
	var e float64
	for i := range left {
		e += left[i]*left[i] + right[i]*right[i]
	}
	if e > 0 {
		s := 1 / math.Sqrt(e/2)
		for i := range left {
			left[i] *= s
			right[i] *= s
		}
	}
	return left, right
}

// NewReverb builds a convolution reverb over the given impulse response.
func NewReverb(irL, irR []float64, mix float64) (*Reverb, error) {
	left, err := dspconv.NewPartitionedConvolution(irL, reverbMinOrder, reverbMaxOrder)
	if err != nil {
		return nil, fmt.Errorf("reverb left IR: %w", err)
	}
	right, err := dspconv.NewPartitionedConvolution(irR, reverbMinOrder, reverbMaxOrder)
	if err != nil {
		return nil, fmt.Errorf("reverb right IR: %w", err)
	}
	return &Reverb{
		mix:   NewParam(clampFinite(mix, 0, 1, 0), smoothing),
		left:  left,
		right: right,
	}, nil
}

// Set updates the wet return level, clamped to [0,1]. NaN is ignored.
func (rv *Reverb) Set(mix float64) {
	rv.mix.Set(clampFinite(mix, 0, 1, rv.mix.Target()))
}

// Latency returns the wet-path delay in frames.
func (rv *Reverb) Latency() int { return rv.left.Latency() }

// process convolves n interleaved send frames and adds the scaled wet
// signal into out.
func (rv *Reverb) process(send, out []float32, n int) {
	rv.inL, rv.inR = growFloat(rv.inL, n), growFloat(rv.inR, n)
	rv.outL, rv.outR = growFloat(rv.outL, n), growFloat(rv.outR, n)
	for i := 0; i < n; i++ {
		rv.inL[i] = finite(send[i*2])
		rv.inR[i] = finite(send[i*2+1])
	}
	if !rv.failed {
		errL := rv.left.ProcessBlock(rv.inL, rv.outL)
		errR := rv.right.ProcessBlock(rv.inR, rv.outR)
		// keep the dry path alive; the tail just stops
		rv.failed = errL != nil || errR != nil
	}
	for i := 0; i < n; i++ {
		m := rv.mix.Next()
		if rv.failed {
			continue
		}
		out[i*2] += float32(rv.outL[i] * m)
		out[i*2+1] += float32(rv.outR[i] * m)
	}
}

func growFloat(buf []float64, n int) []float64 {
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}
