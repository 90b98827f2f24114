package samples

import "math"

// Band is a quantized velocity bucket. Samples are cached per band, which
// bounds the number of decoded variants per note.
type Band int

const (
	Soft Band = iota
	Medium
	Hard
)

func (b Band) String() string {
	switch b {
	case Soft:
		return "soft"
	case Medium:
		return "medium"
	default:
		return "hard"
	}
}

// BandFor quantizes a velocity in [0,1].
func BandFor(velocity float64) Band {
	switch {
	case velocity < 0.4:
		return Soft
	case velocity < 0.75:
		return Medium
	default:
		return Hard
	}
}

// ClampVelocity limits v to [0,1]. NaN counts as silence.
func ClampVelocity(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
