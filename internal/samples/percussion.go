package samples

import (
	"path/filepath"
	"strings"
)

// PadClass groups percussion pads by the synthesis recipe that imitates them.
type PadClass int

const (
	PadGeneric PadClass = iota
	PadLow
	PadMid
	PadHigh
	PadMetallic
)

var padClasses = map[string]PadClass{
	"kick": PadLow, "tom_low": PadLow, "tom_floor": PadLow, "ge": PadLow, "dhol": PadLow, "bayan": PadLow,
	"snare": PadMid, "clap": PadMid, "tom_mid": PadMid, "tom_high": PadMid, "rim": PadMid, "na": PadMid, "tin": PadMid,
	"hihat": PadHigh, "openhat": PadHigh, "shaker": PadHigh, "crash": PadHigh, "ride": PadHigh,
	"cowbell": PadMetallic, "bell": PadMetallic, "triangle": PadMetallic,
}

// ClassOf returns the recipe class for a pad id.
func ClassOf(pad string) PadClass {
	return padClasses[Canonical(pad)]
}

// OpenPad reports pads whose synthesized tail rings longer.
func OpenPad(pad string) bool {
	switch Canonical(pad) {
	case "openhat", "crash", "ride":
		return true
	}
	return false
}

// Registry maps instrument+pad to a local asset file.
type Registry struct {
	dir   string
	files map[string]map[string]string
}

// NewRegistry returns the built-in kit table rooted at dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir: dir,
		files: map[string]map[string]string{
			"drums": {
				"kick":     "drums/kick.wav",
				"snare":    "drums/snare.wav",
				"hihat":    "drums/hihat.wav",
				"openhat":  "drums/openhat.wav",
				"crash":    "drums/crash.wav",
				"ride":     "drums/ride.wav",
				"tom_low":  "drums/tom_low.wav",
				"tom_mid":  "drums/tom_mid.wav",
				"tom_high": "drums/tom_high.wav",
				"clap":     "drums/clap.wav",
			},
			"tabla": {
				"ge":  "tabla/ge.wav",
				"na":  "tabla/na.wav",
				"tin": "tabla/tin.wav",
			},
		},
	}
}

// Register adds or replaces an asset path, relative to the registry dir.
func (r *Registry) Register(instrument, pad, rel string) {
	inst := Canonical(instrument)
	if r.files[inst] == nil {
		r.files[inst] = make(map[string]string)
	}
	r.files[inst][Canonical(pad)] = rel
}

// Lookup returns the asset path for a pad, or "" when the kit has none.
func (r *Registry) Lookup(instrument, pad string) string {
	kit, ok := r.files[Canonical(instrument)]
	if !ok {
		return ""
	}
	rel, ok := kit[Canonical(pad)]
	if !ok || rel == "" {
		return ""
	}
	if filepath.IsAbs(rel) || strings.Contains(rel, "://") {
		return rel
	}
	return filepath.Join(r.dir, rel)
}
