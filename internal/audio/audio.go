package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Buffer is decoded audio in the engine's canonical layout: interleaved
// stereo float32 at SampleRate. A Buffer is never mutated once built, so
// any number of voices may read it concurrently.
type Buffer struct {
	Samples []float32
}

// NewStereo wraps interleaved stereo samples.
func NewStereo(samples []float32) *Buffer {
	return &Buffer{Samples: samples}
}

// NewMono duplicates a mono signal onto both channels.
func NewMono(mono []float32) *Buffer {
	s := make([]float32, len(mono)*Channels)
	for i, v := range mono {
		s[i*2] = v
		s[i*2+1] = v
	}
	return &Buffer{Samples: s}
}

// Frames returns the number of sample frames.
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Samples) / Channels
}

// Duration returns the playback length at SampleRate.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Frames()) * time.Second / SampleRate
}

// Size returns the memory held by the sample data in bytes.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Samples) * 4
}

// Frame returns the left and right samples at frame i, or silence past the end.
func (b *Buffer) Frame(i int) (l, r float32) {
	if i < 0 || i >= b.Frames() {
		return 0, 0
	}
	return b.Samples[i*2], b.Samples[i*2+1]
}

// Peak returns the largest absolute sample value.
func (b *Buffer) Peak() float32 {
	var p float32
	for _, v := range b.Samples {
		if v < 0 {
			v = -v
		}
		if v > p {
			p = v
		}
	}
	return p
}
