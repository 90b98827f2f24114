package output

import (
	"sync/atomic"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// Tap passes rendering through to a Source and slices the result into
// 20ms int16 frames for monitor streams. Frames are dropped rather than
// blocking the render path.
type Tap struct {
	src     Source
	frames  chan []int16
	pending []int16
	dropped atomic.Int64
}

// NewTap wraps src with a frame channel of the given depth.
func NewTap(src Source, depth int) *Tap {
	if depth <= 0 {
		depth = 100
	}
	return &Tap{
		src:    src,
		frames: make(chan []int16, depth),
	}
}

// Frames returns the channel of 20ms PCM frames.
func (t *Tap) Frames() <-chan []int16 {
	return t.frames
}

// Dropped reports how many frames were discarded because nobody read them.
func (t *Tap) Dropped() int64 {
	return t.dropped.Load()
}

// Render renders from the wrapped source and queues completed frames.
// Render must not be called concurrently.
func (t *Tap) Render(out []float32) {
	t.src.Render(out)

	start := len(t.pending)
	t.pending = append(t.pending, make([]int16, len(out))...)
	audio.ToInt16(t.pending[start:], out)

	for len(t.pending) >= audio.FrameSamples {
		frame := make([]int16, audio.FrameSamples)
		copy(frame, t.pending)
		t.pending = t.pending[:copy(t.pending, t.pending[audio.FrameSamples:])]
		select {
		case t.frames <- frame:
		default:
			t.dropped.Add(1)
		}
	}
}
