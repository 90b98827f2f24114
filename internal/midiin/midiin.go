// Package midiin drives the engine from a hardware MIDI keyboard or pad
// controller.
package midiin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/King-890/solocreaft-studio/internal/engine"
	"github.com/King-890/solocreaft-studio/internal/samples"
)

// ErrNoPort is returned when no input port matches.
var ErrNoPort = errors.New("no MIDI input port")

// DrumChannel is the General MIDI percussion channel (10, zero-based 9).
const DrumChannel = 9

const sustainCC = 64

// gmDrums maps General MIDI percussion keys to kit pads.
var gmDrums = map[uint8]string{
	35: "kick",
	36: "kick",
	37: "snare",
	38: "snare",
	39: "clap",
	40: "snare",
	41: "tom_low",
	42: "hihat",
	43: "tom_low",
	44: "hihat",
	45: "tom_mid",
	46: "openhat",
	47: "tom_mid",
	48: "tom_high",
	49: "crash",
	50: "tom_high",
	51: "ride",
	56: "cowbell",
	57: "crash",
	59: "ride",
}

// Target receives decoded performance events on the MIDI listener
// goroutine. Implementations must not block on sample loading, or note-offs
// and pedal changes queue up behind it.
type Target interface {
	NoteOn(ctx context.Context, note, instrument string, velocity float64)
	NoteOff(note, instrument string)
	Drum(ctx context.Context, pad, instrument string, velocity float64)
	SetSustain(on bool)
}

// EngineTarget adapts an engine to Target. Note and drum starts load on
// their own goroutines; the note press itself is registered before NoteOn
// returns, so a following NoteOff always finds it.
type EngineTarget struct {
	Engine *engine.Engine
}

func (t EngineTarget) NoteOn(ctx context.Context, note, instrument string, velocity float64) {
	t.Engine.PlaySoundAsync(ctx, note, instrument, engine.WithVelocity(velocity))
}

func (t EngineTarget) NoteOff(note, instrument string) {
	t.Engine.StopSound(note, instrument, false)
}

func (t EngineTarget) Drum(ctx context.Context, pad, instrument string, velocity float64) {
	t.Engine.PlayDrumSoundAsync(ctx, pad, instrument, velocity, 0)
}

func (t EngineTarget) SetSustain(on bool) {
	t.Engine.SetSustain(on)
}

// Controller turns incoming MIDI messages into engine calls. Pitched
// channels play Instrument; channel 10 plays the drum kit.
type Controller struct {
	target Target
	ctx    context.Context

	mu         sync.RWMutex
	instrument string
	kit        string

	port drivers.In
	stop func()
}

// New creates a controller that plays instrument on target.
func New(ctx context.Context, target Target, instrument string) *Controller {
	if instrument == "" {
		instrument = samples.DefaultInstrument
	}
	return &Controller{
		target:     target,
		ctx:        ctx,
		instrument: samples.Canonical(instrument),
		kit:        "drums",
	}
}

// SetInstrument changes the instrument for pitched channels.
func (c *Controller) SetInstrument(name string) {
	c.mu.Lock()
	c.instrument = samples.Canonical(name)
	c.mu.Unlock()
}

// Instrument returns the instrument for pitched channels.
func (c *Controller) Instrument() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instrument
}

// Ports lists the available input port names.
func Ports() []string {
	var names []string
	for _, in := range gomidi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// Open listens on the first input port whose name contains match, case
// insensitively. An empty match picks the first port.
func (c *Controller) Open(match string) error {
	var found drivers.In
	for _, in := range gomidi.GetInPorts() {
		if match == "" || strings.Contains(strings.ToLower(in.String()), strings.ToLower(match)) {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("%w matching %q", ErrNoPort, match)
	}

	stop, err := gomidi.ListenTo(found, func(msg gomidi.Message, _ int32) {
		c.handle(msg)
	}, gomidi.HandleError(func(err error) {
		log.Printf("MIDI input %s: %v", found.String(), err)
	}))
	if err != nil {
		return fmt.Errorf("listen on %s: %w", found.String(), err)
	}
	c.port, c.stop = found, stop
	log.Printf("MIDI input connected: %s (instrument %s)", found.String(), c.Instrument())
	return nil
}

// Close stops listening and lifts the sustain pedal.
func (c *Controller) Close() error {
	if c.stop == nil {
		return nil
	}
	c.stop()
	c.stop = nil
	c.target.SetSustain(false)
	return c.port.Close()
}

func (c *Controller) handle(msg gomidi.Message) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		v := float64(vel) / 127
		if ch == DrumChannel {
			if pad, ok := gmDrums[key]; ok {
				c.target.Drum(c.ctx, pad, c.kit, v)
			}
			return
		}
		c.target.NoteOn(c.ctx, samples.FromMIDI(int(key)).String(), c.Instrument(), v)
	case msg.GetNoteEnd(&ch, &key):
		if ch == DrumChannel {
			return
		}
		c.target.NoteOff(samples.FromMIDI(int(key)).String(), c.Instrument())
	case msg.GetControlChange(&ch, &cc, &val):
		if cc == sustainCC {
			c.target.SetSustain(val >= 64)
		}
	}
}
