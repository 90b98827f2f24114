// Package output moves rendered master audio to the outside world: a sound
// device, a real-time pump when no device exists, and a tap that feeds
// monitor streams.
package output

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// ErrNoDevice is returned when the binary was built without device support.
var ErrNoDevice = errors.New("no audio device support")

// Source renders interleaved stereo float32 into out.
type Source interface {
	Render(out []float32)
}

// Reader adapts a Source to an io.Reader producing float32 little-endian
// PCM. Each Read renders exactly as many frames as fit in p.
type Reader struct {
	src Source
	mu  sync.Mutex
	buf []float32
}

// NewReader wraps src.
func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

func (r *Reader) Read(p []byte) (int, error) {
	// whole stereo frames only
	n := len(p) / (4 * audio.Channels) * audio.Channels
	if n == 0 {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cap(r.buf) < n {
		r.buf = make([]float32, n)
	}
	buf := r.buf[:n]
	r.src.Render(buf)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	return n * 4, nil
}
