package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// FadeEdges applies a smoothstep fade-in over the first `in` frames and a
// fade-out over the last `out` frames of interleaved samples, in place.
// Callers use it on freshly generated data before wrapping it in a Buffer.
func FadeEdges(samples []float32, channels, in, out int) {
	frames := len(samples) / channels
	if in > frames {
		in = frames
	}
	if out > frames {
		out = frames
	}
	for i := 0; i < in; i++ {
		g := float32(Smoothstep(float64(i) / float64(in)))
		for c := 0; c < channels; c++ {
			samples[i*channels+c] *= g
		}
	}
	for i := 0; i < out; i++ {
		g := float32(Smoothstep(float64(i) / float64(out)))
		f := frames - 1 - i
		for c := 0; c < channels; c++ {
			samples[f*channels+c] *= g
		}
	}
}
