// Package samples maps instrument, note and velocity requests onto cache keys,
// asset locators and mixer tracks.
package samples

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedNote is returned by ParseNote for names outside [A-G](#|b)?octave.
var ErrMalformedNote = errors.New("malformed note name")

// DefaultNote is used whenever a note name cannot be parsed.
var DefaultNote = Note{Class: 0, Octave: 4}

var noteRe = regexp.MustCompile(`^([A-Ga-g])(#|b)?(-?\d)$`)

// flat spellings are the canonical names; they match the soundfont file names.
var pitchNames = [12]string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

var letterClass = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// Note is a pitch class (0 = C) with an octave in scientific pitch notation.
type Note struct {
	Class  int
	Octave int
}

// ParseNote parses names such as "C4", "F#3", "Bb2" or "B#3". Accidentals
// that cross an octave boundary carry into the neighbouring octave, so B#3
// is C4 and Cb4 is B3.
func ParseNote(name string) (Note, error) {
	m := noteRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return Note{}, fmt.Errorf("%w: %q", ErrMalformedNote, name)
	}
	octave, _ := strconv.Atoi(m[3])
	class := letterClass[strings.ToUpper(m[1])[0]]
	switch m[2] {
	case "#":
		class++
	case "b":
		class--
	}
	if class > 11 {
		class -= 12
		octave++
	} else if class < 0 {
		class += 12
		octave--
	}
	return Note{Class: class, Octave: octave}, nil
}

// MustNote parses name and falls back to DefaultNote.
func MustNote(name string) Note {
	n, err := ParseNote(name)
	if err != nil {
		return DefaultNote
	}
	return n
}

// Normalize returns the canonical spelling of name, e.g. "C#4" -> "Db4",
// "E#4" -> "F4". Malformed names normalize to "C4".
func Normalize(name string) string {
	return MustNote(name).String()
}

func (n Note) String() string {
	return pitchNames[n.Class] + strconv.Itoa(n.Octave)
}

// MIDI returns the MIDI note number (C4 = 60).
func (n Note) MIDI() int {
	return (n.Octave+1)*12 + n.Class
}

// Frequency returns the equal-tempered frequency with A4 = 440Hz.
func (n Note) Frequency() float64 {
	return MIDIFrequency(n.MIDI())
}

// MIDIFrequency converts a MIDI note number to Hz.
func MIDIFrequency(midi int) float64 {
	return 440 * math.Pow(2, float64(midi-69)/12)
}

// FromMIDI builds the Note for a MIDI note number.
func FromMIDI(midi int) Note {
	octave := midi/12 - 1
	class := midi % 12
	if class < 0 {
		class += 12
		octave--
	}
	return Note{Class: class, Octave: octave}
}

// Frequency returns the frequency of a note name. Malformed names resolve to
// middle C.
func Frequency(name string) float64 {
	return MustNote(name).Frequency()
}
