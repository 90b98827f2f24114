// Package engine is the single entry point of the audio core: it applies
// mute and solo, resolves requests, picks samples or synthesis and hands
// voices to the voice manager and mixer graph.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/cache"
	"github.com/King-890/solocreaft-studio/internal/metronome"
	"github.com/King-890/solocreaft-studio/internal/mixer"
	"github.com/King-890/solocreaft-studio/internal/samples"
	"github.com/King-890/solocreaft-studio/internal/synth"
	"github.com/King-890/solocreaft-studio/internal/voice"
)

// ErrAudioUnavailable is the single signal that no audio output exists.
var ErrAudioUnavailable = errors.New("audio output unavailable")

// DefaultVelocity is used when PlaySound is called without WithVelocity.
const DefaultVelocity = 0.85

// MetronomeInstrument names the metronome in mixer settings.
const MetronomeInstrument = "metronome"

// Options configure an Engine.
type Options struct {
	Backend   Backend
	Resolver  *samples.Resolver
	MaxVoices int
	Release   time.Duration
	Lookahead time.Duration
	Interval  time.Duration
	Mixer     mixer.Options
}

// Engine owns the mixer graph, voice manager, metronome and mixer settings.
// Create one at startup and share it; it holds no package-level state.
type Engine struct {
	graph    *mixer.Graph
	voices   *voice.Manager
	resolver *samples.Resolver
	backend  Backend
	metro    *metronome.Scheduler

	mu       sync.RWMutex
	settings map[string]Settings

	audioMu  sync.Mutex
	audioErr error

	loads sync.WaitGroup // async plays still loading
}

// New builds an engine. A nil backend selects synthesis only and zero
// mixer options select mixer.DefaultOptions.
func New(opts Options) (*Engine, error) {
	if opts.Mixer == (mixer.Options{}) {
		opts.Mixer = mixer.DefaultOptions()
	}
	g, err := mixer.NewGraph(opts.Mixer)
	if err != nil {
		return nil, fmt.Errorf("mixer graph: %w", err)
	}
	if opts.Backend == nil {
		opts.Backend = NewSynthBackend(synth.New(uint64(time.Now().UnixNano())))
	}
	if opts.Resolver == nil {
		opts.Resolver = samples.NewResolver("", "", nil)
	}
	e := &Engine{
		graph:    g,
		voices:   voice.New(g, opts.MaxVoices, opts.Release),
		resolver: opts.Resolver,
		backend:  opts.Backend,
		settings: make(map[string]Settings),
	}
	e.metro = metronome.New(g, e, opts.Lookahead, opts.Interval)
	return e, nil
}

// PlayOption adjusts a PlaySound call.
type PlayOption func(*playOpts)

type playOpts struct {
	delay    float64
	velocity float64
}

// WithDelay starts the note the given number of seconds from now.
func WithDelay(seconds float64) PlayOption {
	return func(o *playOpts) {
		if seconds > 0 && !math.IsInf(seconds, 1) {
			o.delay = seconds
		}
	}
}

// WithVelocity sets the strike velocity in [0,1]. NaN keeps the default.
func WithVelocity(v float64) PlayOption {
	return func(o *playOpts) {
		if !math.IsNaN(v) {
			o.velocity = samples.ClampVelocity(v)
		}
	}
}

// PlaySound plays note on instrument and returns the started voice, or nil
// when mute or solo suppressed it. Asset failures never surface here; the
// backend synthesizes instead.
func (e *Engine) PlaySound(ctx context.Context, note, instrument string, opts ...PlayOption) *mixer.Voice {
	start := e.press(note, instrument, opts)
	if start == nil {
		return nil
	}
	return start(ctx)
}

// PlaySoundAsync is PlaySound without waiting for the buffer. Admission and
// the key press happen before it returns, so a StopSound issued afterwards
// applies to this note even while it loads. The voice, or nil, arrives on
// the returned channel.
func (e *Engine) PlaySoundAsync(ctx context.Context, note, instrument string, opts ...PlayOption) <-chan *mixer.Voice {
	out := make(chan *mixer.Voice, 1)
	start := e.press(note, instrument, opts)
	if start == nil {
		out <- nil
		return out
	}
	e.loads.Add(1)
	go func() {
		defer e.loads.Done()
		out <- start(ctx)
	}()
	return out
}

// press admits and reserves a note and returns the function that loads and
// starts it, or nil when mute or solo suppressed it.
func (e *Engine) press(note, instrument string, opts []PlayOption) func(context.Context) *mixer.Voice {
	o := playOpts{velocity: DefaultVelocity}
	for _, fn := range opts {
		fn(&o)
	}
	inst := samples.Canonical(instrument)
	s, ok := e.admit(inst)
	if !ok {
		return nil
	}

	at := e.graph.Now() + o.delay
	res := e.resolver.Resolve(inst, note, o.velocity)
	// a StopSound that lands while the buffer loads is kept on the ticket
	ticket := e.voices.Reserve(playID(inst, res.Note.String()))
	return func(ctx context.Context) *mixer.Voice {
		buf := e.backend.Buffer(ctx, res, o.velocity)
		return e.voices.Start(ticket, res.Track, buf, mixer.VoiceParams{
			Velocity: o.velocity,
			Volume:   s.Volume,
			Pan:      s.Pan,
			At:       at,
		}, true)
	}
}

// StopSound releases note on instrument. While sustain is held and force is
// false the release waits for the pedal.
func (e *Engine) StopSound(note, instrument string, force bool) {
	inst := samples.Canonical(instrument)
	e.voices.Stop(playID(inst, samples.Normalize(note)), force)
}

// PlayDrumSound hits a percussion pad. volume acts as the hit velocity and
// pan is added to the instrument's pan. Pads without an asset get a
// synthesized hit.
func (e *Engine) PlayDrumSound(ctx context.Context, pad, instrument string, volume, pan float64) *mixer.Voice {
	inst := samples.Canonical(instrument)
	s, ok := e.admit(inst)
	if !ok {
		return nil
	}
	vel := samples.ClampVelocity(volume)
	at := e.graph.Now()
	res := e.resolver.ResolvePad(inst, pad, vel)
	buf := e.backend.Buffer(ctx, res, vel)
	return e.voices.Play(playID(inst, res.Pad), res.Track, buf, mixer.VoiceParams{
		Velocity: vel,
		Volume:   s.Volume,
		Pan:      clampFinite(s.Pan+pan, -1, 1, 0),
		At:       at,
	}, false)
}

// PlayDrumSoundAsync is PlayDrumSound on another goroutine. Hits layer and
// never stop, so nothing needs reserving first.
func (e *Engine) PlayDrumSoundAsync(ctx context.Context, pad, instrument string, volume, pan float64) <-chan *mixer.Voice {
	out := make(chan *mixer.Voice, 1)
	e.loads.Add(1)
	go func() {
		defer e.loads.Done()
		out <- e.PlayDrumSound(ctx, pad, instrument, volume, pan)
	}()
	return out
}

// PlayClip plays an externally supplied buffer on instrument's track.
// Clips layer: a new clip never cuts one that is still sounding.
func (e *Engine) PlayClip(clip *audio.Buffer, instrument string, opts ...PlayOption) *mixer.Voice {
	if clip == nil || clip.Frames() == 0 {
		return nil
	}
	o := playOpts{velocity: 1}
	for _, fn := range opts {
		fn(&o)
	}
	inst := samples.Canonical(instrument)
	s, ok := e.admit(inst)
	if !ok {
		return nil
	}
	return e.voices.Play(playID(inst, "clip"), samples.Track(inst), clip, mixer.VoiceParams{
		Velocity: o.velocity,
		Volume:   s.Volume,
		Pan:      s.Pan,
		At:       e.graph.Now() + o.delay,
		NoFilter: true,
	}, false)
}

// PlayClick renders a metronome click at graph time at. Clicks bypass the
// voice cap and only honour the metronome's own mute.
func (e *Engine) PlayClick(at float64, accent bool) {
	s := e.MixerSettings(MetronomeInstrument)
	if s.Mute {
		return
	}
	e.graph.Play(MetronomeInstrument, samples.MetronomeTrack, synth.Tick(accent), mixer.VoiceParams{
		Velocity: 1,
		Volume:   s.Volume,
		Pan:      s.Pan,
		At:       at,
		NoFilter: true,
	})
}

// admit applies the mute/solo policy and returns the instrument settings.
func (e *Engine) admit(instrument string) (Settings, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !allowed(e.settings, instrument) {
		return Settings{}, false
	}
	if s, ok := e.settings[instrument]; ok {
		return s, true
	}
	return DefaultSettings(), true
}

// SetMixerSettings stores clamped settings for instrument. The next play
// call sees them.
func (e *Engine) SetMixerSettings(instrument string, s Settings) {
	e.mu.Lock()
	e.settings[samples.Canonical(instrument)] = s.Clamp()
	e.mu.Unlock()
}

// MixerSettings returns the settings for instrument.
func (e *Engine) MixerSettings(instrument string) Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if s, ok := e.settings[samples.Canonical(instrument)]; ok {
		return s
	}
	return DefaultSettings()
}

// AllMixerSettings returns a copy of every stored setting.
func (e *Engine) AllMixerSettings() map[string]Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Settings, len(e.settings))
	for k, v := range e.settings {
		out[k] = v
	}
	return out
}

// SetSustain engages or lifts the sustain pedal.
func (e *Engine) SetSustain(on bool) { e.voices.SetSustain(on) }

// StopAll fades out every voice and clears held notes.
func (e *Engine) StopAll() { e.voices.StopAll() }

// SetDistortion sets the master waveshaper drive in [0,1].
func (e *Engine) SetDistortion(amount float64) { e.graph.SetDistortion(amount) }

// SetDelay sets the master delay mix, time in seconds and feedback.
func (e *Engine) SetDelay(mix, seconds, feedback float64) { e.graph.SetDelay(mix, seconds, feedback) }

// SetReverb sets the reverb return level.
func (e *Engine) SetReverb(mix float64) { e.graph.SetReverb(mix) }

// FrequencyData returns the latest master spectrum in dBFS.
func (e *Engine) FrequencyData() []float64 { return e.graph.Meter().FrequencyData() }

// Waveform returns the latest master samples.
func (e *Engine) Waveform() []float64 { return e.graph.Meter().Waveform() }

// PeakLevel returns the latest master peak.
func (e *Engine) PeakLevel() float64 { return e.graph.Meter().PeakLevel() }

// Metronome returns the click scheduler.
func (e *Engine) Metronome() *metronome.Scheduler { return e.metro }

// Graph returns the mixer graph the output device renders from.
func (e *Engine) Graph() *mixer.Graph { return e.graph }

// Voices returns the voice manager.
func (e *Engine) Voices() *voice.Manager { return e.voices }

// Preload warms the cache for notes of instrument at the default velocity.
func (e *Engine) Preload(ctx context.Context, instrument string, notes ...string) (int, error) {
	res := make([]samples.Resolution, 0, len(notes))
	for _, n := range notes {
		res = append(res, e.resolver.Resolve(instrument, n, DefaultVelocity))
	}
	return e.backend.Warm(ctx, res)
}

// ReportAudioError records that the output device failed. Only the first
// report is kept and logged; it is wrapped in ErrAudioUnavailable.
func (e *Engine) ReportAudioError(err error) {
	e.audioMu.Lock()
	defer e.audioMu.Unlock()
	if e.audioErr != nil {
		return
	}
	e.audioErr = fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
	log.Printf("Audio unavailable, rendering headless: %v", err)
}

// AudioErr returns the audio-unavailable error, or nil while output works.
func (e *Engine) AudioErr() error {
	e.audioMu.Lock()
	defer e.audioMu.Unlock()
	return e.audioErr
}

// Status is a snapshot for the control API.
type Status struct {
	Backend        string      `json:"backend"`
	AudioAvailable bool        `json:"audio_available"`
	AudioError     string      `json:"audio_error,omitempty"`
	Voices         int         `json:"voices"`
	Loading        int         `json:"loading"`
	Rendering      int         `json:"rendering"`
	GainReduction  float64     `json:"gain_reduction_db"`
	Sustain        bool        `json:"sustain"`
	Held           []string    `json:"held"`
	Clock          float64     `json:"clock"`
	Metronome      string      `json:"metronome"`
	Tempo          float64     `json:"tempo"`
	Cache          cache.Stats `json:"cache"`
}

// Status reports engine state.
func (e *Engine) Status() Status {
	st := Status{
		Backend:        e.backend.Name(),
		AudioAvailable: true,
		Voices:         e.voices.Active(),
		Loading:        e.voices.Pending(),
		Rendering:      e.graph.Voices(),
		GainReduction:  e.graph.GainReduction(),
		Sustain:        e.voices.Sustain(),
		Held:           e.voices.Held(),
		Clock:          e.graph.Now(),
		Metronome:      e.metro.State().String(),
		Tempo:          e.metro.Tempo(),
		Cache:          e.backend.Stats(),
	}
	if err := e.AudioErr(); err != nil {
		st.AudioAvailable = false
		st.AudioError = err.Error()
	}
	return st
}

// Close stops the metronome, silences every voice and waits for async
// plays that are still loading.
func (e *Engine) Close() {
	e.metro.Stop()
	e.voices.StopAll()
	e.loads.Wait()
}

func playID(instrument, note string) string {
	return instrument + ":" + note
}
