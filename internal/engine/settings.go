package engine

import "math"

// Settings is one instrument's channel configuration.
type Settings struct {
	Volume float64 `json:"volume"`
	Pan    float64 `json:"pan"`
	Mute   bool    `json:"mute"`
	Solo   bool    `json:"solo"`
}

// DefaultSettings is full volume, centred, audible.
func DefaultSettings() Settings {
	return Settings{Volume: 1}
}

// Clamp limits volume to [0,1] and pan to [-1,1]. NaN becomes the default.
func (s Settings) Clamp() Settings {
	s.Volume = clampFinite(s.Volume, 0, 1, 1)
	s.Pan = clampFinite(s.Pan, -1, 1, 0)
	return s
}

func clampFinite(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Max(lo, math.Min(hi, v))
}

// allowed applies mute and solo: a muted instrument never sounds, and when
// any instrument is soloed only soloed instruments sound.
func allowed(all map[string]Settings, instrument string) bool {
	s, ok := all[instrument]
	if ok && s.Mute {
		return false
	}
	for _, o := range all {
		if o.Solo {
			return ok && s.Solo
		}
	}
	return true
}
