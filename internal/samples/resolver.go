package samples

import (
	"strings"
)

// DefaultTemplate matches the midi-js-soundfonts layout.
const DefaultTemplate = "{base}/{program}-mp3/{note}.mp3"

// Key identifies one cacheable decoded buffer. Keys are comparable and can
// be used directly as map keys.
type Key struct {
	Instrument string
	Note       string // canonical note name or pad id
	Band       Band
}

func (k Key) String() string {
	return k.Instrument + ":" + k.Note + ":" + k.Band.String()
}

// Resolution is everything the engine needs to start a sound.
type Resolution struct {
	Key     Key
	Locator string // empty when no asset exists
	Track   int
	Family  Family
	Note    Note
	Pad     string
}

// Resolver turns (instrument, note, velocity) requests into keys and
// locators. It holds only static tables and has no side effects.
type Resolver struct {
	base     string
	template string
	pads     *Registry
}

// NewResolver builds a resolver for the given sample base URL and kit
// registry. An empty template selects DefaultTemplate.
func NewResolver(baseURL, template string, pads *Registry) *Resolver {
	if template == "" {
		template = DefaultTemplate
	}
	if pads == nil {
		pads = NewRegistry("")
	}
	return &Resolver{
		base:     strings.TrimRight(baseURL, "/"),
		template: template,
		pads:     pads,
	}
}

// Resolve maps a pitched request. Malformed note names resolve to C4, and
// instruments without their own sample set borrow the default instrument's.
func (r *Resolver) Resolve(instrument, note string, velocity float64) Resolution {
	inst := Canonical(instrument)
	n := MustNote(note)
	band := BandFor(ClampVelocity(velocity))

	res := Resolution{
		Key:    Key{Instrument: inst, Note: n.String(), Band: band},
		Track:  Track(inst),
		Family: FamilyOf(inst),
		Note:   n,
	}

	program := instruments[DefaultInstrument].program
	if in, ok := instruments[inst]; ok && in.program != "" {
		program = in.program
	} else if ok && in.family == Percussion {
		// kits have no pitched samples
		return res
	} else if !ok {
		res.Key.Instrument = DefaultInstrument
	}
	if r.base != "" {
		res.Locator = r.expand(program, n.String(), band)
	}
	return res
}

// ResolvePad maps a percussion pad. A missing asset yields an empty locator.
func (r *Resolver) ResolvePad(instrument, pad string, velocity float64) Resolution {
	inst := Canonical(instrument)
	p := Canonical(pad)
	return Resolution{
		Key:     Key{Instrument: inst, Note: p, Band: BandFor(ClampVelocity(velocity))},
		Locator: r.pads.Lookup(inst, p),
		Track:   Track(inst),
		Family:  Percussion,
		Note:    DefaultNote,
		Pad:     p,
	}
}

func (r *Resolver) expand(program, note string, band Band) string {
	return strings.NewReplacer(
		"{base}", r.base,
		"{program}", program,
		"{note}", note,
		"{band}", band.String(),
	).Replace(r.template)
}
