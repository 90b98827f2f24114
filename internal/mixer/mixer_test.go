package mixer

import (
	"math"
	"testing"
	"time"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

func dryGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := NewGraph(Options{MasterGain: 1, ReverbMix: 0, ReverbIR: 0.05})
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func constBuffer(frames int, v float32) *audio.Buffer {
	s := make([]float32, frames*2)
	for i := range s {
		s[i] = v
	}
	return audio.NewStereo(s)
}

func peak(block []float32) float64 {
	var p float64
	for _, v := range block {
		p = math.Max(p, math.Abs(float64(v)))
	}
	return p
}

func TestParamGlides(t *testing.T) {
	p := NewParam(0, 20*time.Millisecond)
	p.Set(1)
	first := p.Next()
	if first <= 0 || first >= 0.1 {
		t.Errorf("first step = %v, want a small move towards 1", first)
	}
	for i := 0; i < audio.SampleRate/5; i++ {
		p.Next()
	}
	if math.Abs(p.Next()-1) > 1e-3 {
		t.Errorf("after 200ms = %v, want ~1", p.Next())
	}
	if p.Target() != 1 {
		t.Errorf("Target = %v, want 1", p.Target())
	}
}

func TestSilentGraphRendersZeros(t *testing.T) {
	g := dryGraph(t)
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	if peak(out) != 0 {
		t.Errorf("peak = %v, want silence", peak(out))
	}
	if g.Frame() != audio.FrameSize {
		t.Errorf("Frame = %d, want %d", g.Frame(), audio.FrameSize)
	}
	if math.Abs(g.Now()-0.02) > 1e-9 {
		t.Errorf("Now = %v, want 0.02", g.Now())
	}
}

func TestVoiceAudibleAndFinishes(t *testing.T) {
	g := dryGraph(t)
	v := g.Play("guitar:C4", 5, constBuffer(1000, 0.5), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	if v.ID.String() == "" || v.Track != 5 {
		t.Fatalf("voice = %+v", v)
	}

	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	if peak(out) == 0 {
		t.Fatal("voice not audible at the master output")
	}
	if g.TrackPeaks()[5] == 0 {
		t.Error("track 5 bus shows no signal")
	}
	g.Render(out)
	if !v.Done() {
		t.Error("voice should finish once its buffer is exhausted")
	}
	if g.Voices() != 0 {
		t.Errorf("Voices = %d, want 0 after prune", g.Voices())
	}
}

func TestScheduledStartIsSampleAccurate(t *testing.T) {
	g := dryGraph(t)
	g.Play("click", 0, constBuffer(2000, 0.5), VoiceParams{Velocity: 1, Volume: 1, At: 0.01, NoFilter: true})

	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	startFrame := 480 // 10ms at 48kHz
	for i := 0; i < startFrame; i++ {
		if out[i*2] != 0 {
			t.Fatalf("frame %d = %v before the scheduled start", i, out[i*2])
		}
	}
	if out[startFrame*2] == 0 {
		t.Errorf("frame %d silent, want the voice to begin exactly here", startFrame)
	}
}

func TestReleaseFadesAndIsIdempotent(t *testing.T) {
	g := dryGraph(t)
	v := g.Play("piano:C4", 1, constBuffer(audio.SampleRate*2, 0.3), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})

	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	v.Release(10 * time.Millisecond)
	v.Release(10 * time.Millisecond)
	if !v.Released() {
		t.Fatal("Released = false after Release")
	}

	g.Render(out)
	// the first released block must not jump: first frame still close to the last
	if out[0] == 0 {
		t.Error("release cut the voice instead of fading")
	}
	for i := 0; i < 10; i++ {
		g.Render(out)
	}
	if !v.Done() {
		t.Error("voice should be done after its fade")
	}
	if g.Voices() != 0 {
		t.Errorf("Voices = %d, want 0", g.Voices())
	}
}

func TestReleaseBeforeStart(t *testing.T) {
	g := dryGraph(t)
	v := g.Play("late", 1, constBuffer(100, 0.5), VoiceParams{Velocity: 1, Volume: 1, At: 1})
	v.Release(time.Millisecond)
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	if !v.Done() {
		t.Error("a voice released before its start should never sound")
	}
}

func TestHardPanLeft(t *testing.T) {
	g := dryGraph(t)
	g.Play("x", 1, constBuffer(960, 0.3), VoiceParams{Velocity: 1, Volume: 1, Pan: -1, NoFilter: true})
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	for i := 0; i < audio.FrameSize; i++ {
		if out[i*2+1] != 0 {
			t.Fatalf("right channel frame %d = %v, want 0 when hard left", i, out[i*2+1])
		}
	}
	if peak(out) == 0 {
		t.Error("left channel silent")
	}
}

func TestCenterPanIsUnity(t *testing.T) {
	v := newVoice("x", 1, constBuffer(1, 1), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true}, 0)
	l, r := v.pan(0.4, -0.2)
	if math.Abs(l-0.4) > 1e-12 || math.Abs(r+0.2) > 1e-12 {
		t.Errorf("pan(0) = (%v,%v), want input unchanged", l, r)
	}
}

func TestCutoffRisesWithVelocity(t *testing.T) {
	prev := 0.0
	for _, v := range []float64{0, 0.25, 0.5, 0.75, 1} {
		c := Cutoff(v)
		if c < prev {
			t.Errorf("Cutoff(%v) = %v, not increasing", v, c)
		}
		prev = c
	}
	if Cutoff(1) > 18000 {
		t.Errorf("Cutoff(1) = %v, want <= 18000", Cutoff(1))
	}
}

func TestLimiterCeiling(t *testing.T) {
	g := dryGraph(t)
	for i := 0; i < 12; i++ {
		g.Play("loud", 1, constBuffer(audio.FrameSize, 1), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	}
	g.SetMasterGain(4)
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	if p := peak(out); p > g.limiter.Ceiling()+1e-6 {
		t.Errorf("peak = %v, want <= ceiling %v", p, g.limiter.Ceiling())
	}
}

func TestGraphReportsGainReduction(t *testing.T) {
	g := dryGraph(t)
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	if g.GainReduction() != 0 {
		t.Errorf("silent GainReduction = %v, want 0", g.GainReduction())
	}
	g.Play("loud", 1, constBuffer(audio.FrameSize*4, 0.9), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	g.Render(out)
	g.Render(out)
	if g.GainReduction() >= -1 {
		t.Errorf("loud GainReduction = %vdB, want well below 0", g.GainReduction())
	}
}

func TestCompressorCurve(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	if got := c.Gain(dbToLin(-60)); math.Abs(got-1) > 1e-9 {
		t.Errorf("Gain(-60dB) = %v, want 1 below the knee", got)
	}
	want := (1.0/12 - 1) * 24
	if got := linToDB(c.Gain(1)); math.Abs(got-want) > 0.05 {
		t.Errorf("Gain(0dB) = %.3fdB, want %.3fdB", got, want)
	}
	mid := linToDB(c.Gain(dbToLin(compThreshold)))
	if mid >= 0 || mid < want {
		t.Errorf("gain at threshold = %vdB, want soft-knee reduction", mid)
	}
}

func TestCompressorReducesLoudSignal(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	var l float64
	for i := 0; i < audio.SampleRate/10; i++ {
		l, _ = c.Process(0.9, 0.9)
	}
	if l >= 0.9 {
		t.Errorf("compressed level = %v, want below input", l)
	}
	if c.Reduction() >= 0 {
		t.Errorf("Reduction = %v, want negative", c.Reduction())
	}
}

func TestCompressorIsStereoLinked(t *testing.T) {
	c, err := NewCompressor()
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	var l, r float64
	for i := 0; i < audio.SampleRate/5; i++ {
		l, r = c.Process(0.9, 0.05)
	}
	// the quiet side is ducked by the same gain as the loud one
	if gl, gr := l/0.9, r/0.05; math.Abs(gl-gr) > 1e-9 || gr >= 1 {
		t.Errorf("gains = %v / %v, want equal and below 1", gl, gr)
	}
}

func TestDistortionShapes(t *testing.T) {
	d, err := newDistortion()
	if err != nil {
		t.Fatalf("newDistortion: %v", err)
	}
	if l, r := d.process(0.1, -0.1); l != 0.1 || r != -0.1 {
		t.Errorf("amount 0 = (%v,%v), want pass-through", l, r)
	}
	d.Set(5) // clamps to 1
	if d.amount.Target() != 1 {
		t.Errorf("amount target = %v, want clamped 1", d.amount.Target())
	}
	d.Set(math.NaN())
	if d.amount.Target() != 1 {
		t.Errorf("amount target after NaN = %v, want unchanged 1", d.amount.Target())
	}
	var l float64
	for i := 0; i < audio.SampleRate/5; i++ {
		l, _ = d.process(0.1, 0.1)
	}
	if l <= 0.5 || l > 1 {
		t.Errorf("driven sample = %v, want strongly boosted but bounded", l)
	}
}

func TestDelayEcho(t *testing.T) {
	d, err := newDelay()
	if err != nil {
		t.Fatalf("newDelay: %v", err)
	}
	d.Set(1, 0.01, 0)
	for i := 0; i < audio.SampleRate; i++ {
		d.process(0, 0)
	}
	d.process(1, 1)
	var echo float64
	for i := 1; i <= 480; i++ {
		echo, _ = d.process(0, 0)
	}
	if math.Abs(echo-1) > 0.05 {
		t.Errorf("echo after 10ms = %v, want ~1", echo)
	}
}

func TestDelayDryAtZeroMix(t *testing.T) {
	d, err := newDelay()
	if err != nil {
		t.Fatalf("newDelay: %v", err)
	}
	for i := 0; i < 1000; i++ {
		if l, r := d.process(0.25, -0.25); l != 0.25 || r != -0.25 {
			t.Fatalf("frame %d = (%v,%v), want dry pass-through", i, l, r)
		}
	}
}

func TestDelayClamps(t *testing.T) {
	d, err := newDelay()
	if err != nil {
		t.Fatalf("newDelay: %v", err)
	}
	d.Set(2, 10, 3)
	if d.mix.Target() != 1 || d.time.Target() != MaxDelay || d.feedback.Target() != 0.95 {
		t.Errorf("targets = %v %v %v, want clamped", d.mix.Target(), d.time.Target(), d.feedback.Target())
	}
	d.Set(math.NaN(), math.NaN(), math.NaN())
	if d.mix.Target() != 1 || d.time.Target() != MaxDelay || d.feedback.Target() != 0.95 {
		t.Errorf("targets after NaN = %v %v %v, want unchanged", d.mix.Target(), d.time.Target(), d.feedback.Target())
	}
}

func allFinite(block []float32) bool {
	for _, v := range block {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func TestNonFiniteVoiceParamsStayFinite(t *testing.T) {
	g := dryGraph(t)
	nan := math.NaN()
	g.Play("bad", 1, constBuffer(audio.FrameSize, 0.5), VoiceParams{Velocity: nan, Volume: nan, Pan: nan, At: nan})
	g.Play("good", 2, constBuffer(audio.FrameSize*4, 0.5), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})

	out := make([]float32, audio.FrameSamples)
	for i := 0; i < 3; i++ {
		g.Render(out)
		if !allFinite(out) {
			t.Fatalf("block %d has non-finite samples", i)
		}
	}
	if peak(out) == 0 {
		t.Error("the valid voice went silent")
	}
	if p := g.TrackPeaks()[1]; math.IsNaN(p) {
		t.Error("track peak is NaN")
	}
}

func TestNonFiniteSamplesDoNotLatchMaster(t *testing.T) {
	g := dryGraph(t)
	g.Play("nan", 1, constBuffer(100, float32(math.NaN())), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	out := make([]float32, audio.FrameSamples)
	g.Render(out)

	g.Play("after", 1, constBuffer(audio.FrameSize*2, 0.5), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	g.Render(out)
	if !allFinite(out) {
		t.Fatal("master output non-finite after a NaN voice")
	}
	if peak(out) == 0 {
		t.Error("master stayed silent after a NaN voice")
	}
}

func TestNonFiniteSettersAreIgnored(t *testing.T) {
	g := dryGraph(t)
	nan := math.NaN()
	g.SetDistortion(nan)
	g.SetDelay(nan, nan, nan)
	g.SetReverb(nan)
	g.SetMasterGain(nan)
	if g.makeup.Target() != 1 {
		t.Errorf("master gain = %v, want unchanged 1", g.makeup.Target())
	}
	g.Play("x", 1, constBuffer(audio.FrameSize, 0.5), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	if !allFinite(out) || peak(out) == 0 {
		t.Errorf("output finite=%v peak=%v, want finite and audible", allFinite(out), peak(out))
	}
}

func TestReverbTailCarriesOver(t *testing.T) {
	g, err := NewGraph(Options{MasterGain: 1, ReverbMix: 1, ReverbIR: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	g.Play("x", 1, constBuffer(10, 0.8), VoiceParams{Velocity: 1, Volume: 1, NoFilter: true})
	// the voice is 10 frames long; the second block is reverb tail only
	out := make([]float32, audio.FrameSamples)
	g.Render(out)
	g.Render(out)
	if peak(out) == 0 {
		t.Error("reverb tail should sound after the dry voice ended")
	}
}

func TestReverbImpulseArrivesAfterLatency(t *testing.T) {
	rv, err := NewReverb([]float64{1}, []float64{0.5}, 1)
	if err != nil {
		t.Fatalf("NewReverb: %v", err)
	}
	lat := rv.Latency()
	if lat != 1<<reverbMinOrder {
		t.Fatalf("Latency = %d, want %d", lat, 1<<reverbMinOrder)
	}
	// odd block lengths straddle the partition boundary
	n := 3 * lat / 2
	send := make([]float32, n*2)
	send[0], send[1] = 1, 1
	out := make([]float32, n*2)
	rv.process(send, out, n)
	for i := 0; i < n; i++ {
		wantL, wantR := 0.0, 0.0
		if i == lat {
			wantL, wantR = 1, 0.5
		}
		if math.Abs(float64(out[i*2])-wantL) > 1e-6 || math.Abs(float64(out[i*2+1])-wantR) > 1e-6 {
			t.Fatalf("frame %d = (%v,%v), want (%v,%v)", i, out[i*2], out[i*2+1], wantL, wantR)
		}
	}
}

func TestDefaultReverbLength(t *testing.T) {
	if DefaultOptions().ReverbIR != 1.5 {
		t.Errorf("default IR = %vs, want 1.5s", DefaultOptions().ReverbIR)
	}
	l, r := RoomIR(DefaultReverbIR, 1)
	if len(l) != 72000 || len(r) != 72000 {
		t.Errorf("IR frames = %d/%d, want 72000", len(l), len(r))
	}
}

func TestMeterSpectrumPeak(t *testing.T) {
	m := &Meter{}
	block := make([]float32, FFTSize*2)
	freq := 1500.0
	for i := 0; i < FFTSize; i++ {
		s := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate))
		block[i*2], block[i*2+1] = s, s
	}
	m.write(block, FFTSize)

	if math.Abs(m.PeakLevel()-0.5) > 0.01 {
		t.Errorf("PeakLevel = %v, want ~0.5", m.PeakLevel())
	}
	spec := m.FrequencyData()
	if len(spec) != FFTSize/2 {
		t.Fatalf("bins = %d, want %d", len(spec), FFTSize/2)
	}
	best := 0
	for i := range spec {
		if spec[i] > spec[best] {
			best = i
		}
	}
	binHz := float64(audio.SampleRate) / FFTSize
	if got := float64(best) * binHz; math.Abs(got-freq) > 2*binHz {
		t.Errorf("spectral peak at %.0fHz, want ~%.0fHz", got, freq)
	}
	if len(m.Waveform()) != FFTSize {
		t.Errorf("Waveform length = %d", len(m.Waveform()))
	}
}
