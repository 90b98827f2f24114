package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/cache"
	"github.com/King-890/solocreaft-studio/internal/mixer"
	"github.com/King-890/solocreaft-studio/internal/samples"
	"github.com/King-890/solocreaft-studio/internal/synth"
)

type failingFetcher struct{ calls int }

func (f *failingFetcher) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	return nil, errors.New("network down")
}

// gatedFetcher reports each fetch on started, then fails once gate closes.
type gatedFetcher struct {
	started chan struct{}
	gate    chan struct{}
}

func (f *gatedFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	f.started <- struct{}{}
	select {
	case <-f.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, errors.New("network down")
}

func newTestEngine(t *testing.T) (*Engine, *failingFetcher) {
	t.Helper()
	f := &failingFetcher{}
	return newEngine(t, f, 100*time.Millisecond), f
}

func newEngine(t *testing.T, f cache.Fetcher, timeout time.Duration) *Engine {
	t.Helper()
	c := cache.New(f, nil, timeout)
	e, err := New(Options{
		Backend:   NewSampleBackend(c, synth.New(1)),
		Resolver:  samples.NewResolver("https://samples.invalid", "", samples.NewRegistry(t.TempDir())),
		MaxVoices: 12,
		Release:   100 * time.Millisecond,
		Lookahead: 100 * time.Millisecond,
		Interval:  time.Hour,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Close)
	return e
}

func render(e *Engine, blocks int) float64 {
	out := make([]float32, audio.FrameSamples)
	var peak float64
	for i := 0; i < blocks; i++ {
		e.Graph().Render(out)
		for _, v := range out {
			peak = math.Max(peak, math.Abs(float64(v)))
		}
	}
	return peak
}

func TestPlaySoundFallsBackToKarplusStrong(t *testing.T) {
	e, f := newTestEngine(t)
	v := e.PlaySound(context.Background(), "C4", "guitar")
	if v == nil {
		t.Fatal("PlaySound returned nil; fallback must always produce a voice")
	}
	if f.calls == 0 {
		t.Error("sample fetch was never attempted")
	}
	if v.Track != 5 {
		t.Errorf("Track = %d, want 5 for guitar", v.Track)
	}
	if got := float64(v.Length()) / audio.SampleRate; math.Abs(got-synth.NoteLength) > 0.01 {
		t.Errorf("buffer length = %.3fs, want ~2s", got)
	}
	if render(e, 5) == 0 {
		t.Error("fallback voice is not audible at the master output")
	}
}

func TestPlaySoundEveryInstrumentProducesVoice(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, inst := range append(samples.Instruments(), "kazoo") {
		if v := e.PlaySound(context.Background(), "A3", inst, WithVelocity(0.5)); v == nil {
			t.Errorf("%s: no voice", inst)
		}
		e.StopAll()
	}
}

func TestMalformedNotePlaysMiddleC(t *testing.T) {
	e, _ := newTestEngine(t)
	v := e.PlaySound(context.Background(), "H9", "piano")
	if v == nil || v.PlayID != "piano:C4" {
		t.Fatalf("voice = %+v, want piano:C4", v)
	}
}

func TestMuteSuppressesVoices(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetMixerSettings("piano", Settings{Volume: 1, Mute: true})
	if v := e.PlaySound(context.Background(), "C4", "piano"); v != nil {
		t.Error("muted instrument produced a voice")
	}
	if v := e.PlayDrumSound(context.Background(), "kick", "piano", 1, 0); v != nil {
		t.Error("muted instrument produced a pad voice")
	}
	if e.Voices().Active() != 0 {
		t.Errorf("Active = %d, want 0", e.Voices().Active())
	}
}

func TestSoloOnlySoloedSound(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetMixerSettings("violin", Settings{Volume: 1, Solo: true})

	for _, inst := range []string{"piano", "guitar", "sitar", "drums"} {
		if v := e.PlaySound(context.Background(), "E4", inst); v != nil {
			t.Errorf("%s sounded while violin is soloed", inst)
		}
	}
	if v := e.PlaySound(context.Background(), "E4", "violin"); v == nil {
		t.Error("soloed instrument should sound")
	}
}

func TestMuteBeatsSolo(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetMixerSettings("violin", Settings{Volume: 1, Solo: true, Mute: true})
	if v := e.PlaySound(context.Background(), "E4", "violin"); v != nil {
		t.Error("mute must win over solo")
	}
}

func TestSettingsClamped(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetMixerSettings("Piano", Settings{Volume: 3, Pan: -7})
	s := e.MixerSettings("piano")
	if s.Volume != 1 || s.Pan != -1 {
		t.Errorf("settings = %+v, want volume 1 pan -1", s)
	}
	e.SetMixerSettings("piano", Settings{Volume: math.NaN()})
	if e.MixerSettings("piano").Volume != 1 {
		t.Errorf("NaN volume = %v, want default 1", e.MixerSettings("piano").Volume)
	}
}

func TestSustainThroughFacade(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSustain(true)
	v := e.PlaySound(context.Background(), "C#4", "piano")
	e.StopSound("Db4", "piano", false)
	if v.Released() {
		t.Fatal("held note stopped while sustain is on")
	}
	e.SetSustain(false)
	if !v.Released() {
		t.Error("sustain release should stop the held note")
	}
}

func TestStopSoundIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	v := e.PlaySound(context.Background(), "G3", "flute")
	e.StopSound("G3", "flute", false)
	e.StopSound("G3", "flute", false)
	if !v.Released() {
		t.Error("StopSound did not release")
	}
}

func TestStopDuringLoadIsNotLost(t *testing.T) {
	f := &gatedFetcher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	e := newEngine(t, f, 5*time.Second)

	done := make(chan *mixer.Voice)
	go func() { done <- e.PlaySound(context.Background(), "C4", "guitar") }()

	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("PlaySound never reached the fetcher")
	}
	e.StopSound("C4", "guitar", false)
	close(f.gate)

	var v *mixer.Voice
	select {
	case v = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PlaySound did not return after the load finished")
	}
	if v == nil {
		t.Fatal("PlaySound returned nil")
	}
	if !v.Released() {
		t.Error("the key was released during loading; the voice must fade")
	}
	if n := e.voices.Active(); n != 0 {
		t.Errorf("active voices = %d, want 0", n)
	}
}

func TestPlaySoundAsyncReturnsBeforeLoad(t *testing.T) {
	f := &gatedFetcher{started: make(chan struct{}, 1), gate: make(chan struct{})}
	e := newEngine(t, f, 5*time.Second)

	ch := e.PlaySoundAsync(context.Background(), "E4", "guitar", WithVelocity(math.NaN()))
	if e.voices.Pending() != 1 {
		t.Fatalf("Pending = %d, want the press registered on return", e.voices.Pending())
	}
	e.StopSound("E4", "guitar", false)
	close(f.gate)

	select {
	case v := <-ch:
		if v == nil || !v.Released() {
			t.Errorf("voice = %+v, want a released voice", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("async play never delivered its voice")
	}
}

func TestNonFiniteArgumentsKeepOutputFinite(t *testing.T) {
	e, _ := newTestEngine(t)
	nan := math.NaN()
	ctx := context.Background()

	v := e.PlaySound(ctx, "C4", "piano", WithVelocity(nan), WithDelay(nan))
	if v == nil {
		t.Fatal("PlaySound returned nil")
	}
	if v.StartFrame() != 0 {
		t.Errorf("StartFrame = %d, want an immediate start", v.StartFrame())
	}
	e.PlayDrumSound(ctx, "kick", "drums", nan, nan)
	e.SetDistortion(nan)
	e.SetDelay(nan, nan, nan)
	e.SetReverb(nan)

	p := render(e, 5)
	if math.IsNaN(p) || math.IsInf(p, 0) {
		t.Fatalf("master peak = %v, want finite", p)
	}
	if p == 0 {
		t.Error("NaN velocity should fall back to the default, not silence the note")
	}
}

func TestPlayDrumSoundMissingAsset(t *testing.T) {
	e, _ := newTestEngine(t)
	v := e.PlayDrumSound(context.Background(), "snare", "drums", 0.9, 0.5)
	if v == nil {
		t.Fatal("missing pad asset must still produce a sound")
	}
	if v.Track != 2 {
		t.Errorf("Track = %d, want 2", v.Track)
	}
	if render(e, 3) == 0 {
		t.Error("synthesized pad is silent")
	}
}

func TestDelayedPlay(t *testing.T) {
	e, _ := newTestEngine(t)
	v := e.PlaySound(context.Background(), "A4", "piano", WithDelay(0.5))
	if want := int64(0.5 * audio.SampleRate); v.StartFrame() != want {
		t.Errorf("StartFrame = %d, want %d", v.StartFrame(), want)
	}
	if render(e, 10) != 0 {
		t.Error("delayed note sounded early")
	}
}

func TestPlayClip(t *testing.T) {
	e, _ := newTestEngine(t)
	clip := audio.NewMono(make([]float32, 4800))
	if v := e.PlayClip(clip, "synth"); v == nil || v.Track != 4 {
		t.Errorf("PlayClip voice = %+v", v)
	}
	if v := e.PlayClip(nil, "synth"); v != nil {
		t.Error("nil clip should not start a voice")
	}
}

func TestPlayClipLayers(t *testing.T) {
	e, _ := newTestEngine(t)
	clip := audio.NewMono(make([]float32, 4800))
	a := e.PlayClip(clip, "synth")
	b := e.PlayClip(clip, "synth")
	if a == nil || b == nil {
		t.Fatal("PlayClip returned nil")
	}
	if a.Released() || b.Released() {
		t.Error("a second clip must not cut the first")
	}
}

func TestMetronomeClicksOnTrackZero(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetMixerSettings("violin", Settings{Volume: 1, Solo: true})
	if err := e.Metronome().Start(120, nil); err != nil {
		t.Fatal(err)
	}
	if e.Graph().Voices() != 1 {
		t.Fatalf("rendering voices = %d, want the first click", e.Graph().Voices())
	}
	render(e, 1)
	if e.Graph().TrackPeaks()[samples.MetronomeTrack] == 0 {
		t.Error("metronome track is silent")
	}
	if e.Voices().Active() != 0 {
		t.Error("clicks must bypass the voice manager")
	}
}

func TestMetronomeMute(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetMixerSettings(MetronomeInstrument, Settings{Mute: true})
	e.PlayClick(0, true)
	if e.Graph().Voices() != 0 {
		t.Error("muted metronome rendered a click")
	}
}

func TestAudioUnavailableReportedOnce(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.AudioErr() != nil {
		t.Fatal("fresh engine reports audio unavailable")
	}
	e.ReportAudioError(errors.New("no device"))
	e.ReportAudioError(errors.New("second"))
	err := e.AudioErr()
	if !errors.Is(err, ErrAudioUnavailable) {
		t.Fatalf("AudioErr = %v, want ErrAudioUnavailable", err)
	}
	if st := e.Status(); st.AudioAvailable || st.AudioError != err.Error() {
		t.Errorf("Status = %+v", st)
	}
	if got := err.Error(); got != "audio output unavailable: no device" {
		t.Errorf("AudioErr = %q, want the first report only", got)
	}
}

func TestSynthBackendNeverFetches(t *testing.T) {
	e, err := New(Options{Backend: NewSynthBackend(synth.New(2)), Interval: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	if v := e.PlaySound(context.Background(), "D4", "cello"); v == nil {
		t.Error("synth backend produced no voice")
	}
	if n, err := e.Preload(context.Background(), "piano", "C4"); n != 0 || err != nil {
		t.Errorf("Preload = %d, %v; want 0, nil", n, err)
	}
	if e.Status().Backend != "synth" {
		t.Errorf("Backend = %q", e.Status().Backend)
	}
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name string
		all  map[string]Settings
		inst string
		want bool
	}{
		{"empty", map[string]Settings{}, "piano", true},
		{"muted", map[string]Settings{"piano": {Mute: true}}, "piano", false},
		{"other muted", map[string]Settings{"guitar": {Mute: true}}, "piano", true},
		{"soloed", map[string]Settings{"piano": {Solo: true}}, "piano", true},
		{"other soloed", map[string]Settings{"guitar": {Solo: true}}, "piano", false},
		{"unknown with solo", map[string]Settings{"guitar": {Solo: true}}, "kazoo", false},
	}
	for _, tt := range tests {
		if got := allowed(tt.all, tt.inst); got != tt.want {
			t.Errorf("%s: allowed = %v, want %v", tt.name, got, tt.want)
		}
	}
}
