package samples

import "strings"

// Family selects the synthesis model used when no sample is available.
type Family int

const (
	Pitched Family = iota
	Plucked
	Percussion
)

func (f Family) String() string {
	switch f {
	case Plucked:
		return "plucked"
	case Percussion:
		return "percussion"
	default:
		return "pitched"
	}
}

// DefaultInstrument supplies the locator scheme for unknown instruments.
const DefaultInstrument = "piano"

// MetronomeTrack is the mixer track reserved for metronome clicks.
const MetronomeTrack = 0

type instrument struct {
	program string // General MIDI soundfont program name
	track   int
	family  Family
}

var instruments = map[string]instrument{
	"piano":           {"acoustic_grand_piano", 1, Pitched},
	"drums":           {"", 2, Percussion},
	"bass":            {"electric_bass_finger", 3, Plucked},
	"synth":           {"lead_2_sawtooth", 4, Pitched},
	"guitar":          {"acoustic_guitar_nylon", 5, Plucked},
	"electric_guitar": {"electric_guitar_clean", 5, Plucked},
	"flute":           {"flute", 6, Pitched},
	"violin":          {"violin", 7, Plucked},
	"cello":           {"cello", 8, Plucked},
	"trumpet":         {"trumpet", 9, Pitched},
	"sitar":           {"sitar", 10, Plucked},
	"veena":           {"sitar", 10, Plucked},
	"saxophone":       {"alto_sax", 11, Pitched},
	"harp":            {"orchestral_harp", 12, Plucked},
	"banjo":           {"banjo", 13, Plucked},
	"ukulele":         {"acoustic_guitar_steel", 13, Plucked},
	"tabla":           {"", 14, Percussion},
	"dhol":            {"", 14, Percussion},
	"congas":          {"", 2, Percussion},
	"organ":           {"church_organ", 4, Pitched},
}

// Canonical lowercases and trims an instrument id.
func Canonical(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Known reports whether the instrument has its own routing entry.
func Known(name string) bool {
	_, ok := instruments[Canonical(name)]
	return ok
}

// Track returns the mixer track for an instrument; unknown instruments and
// the metronome share track 0.
func Track(name string) int {
	if in, ok := instruments[Canonical(name)]; ok {
		return in.track
	}
	return MetronomeTrack
}

// FamilyOf returns the synthesis family; unknown instruments are pitched.
func FamilyOf(name string) Family {
	if in, ok := instruments[Canonical(name)]; ok {
		return in.family
	}
	return Pitched
}

// Instruments lists every routed instrument id.
func Instruments() []string {
	out := make([]string, 0, len(instruments))
	for k := range instruments {
		out = append(out, k)
	}
	return out
}
