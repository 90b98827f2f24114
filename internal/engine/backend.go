package engine

import (
	"context"
	"log"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/cache"
	"github.com/King-890/solocreaft-studio/internal/samples"
	"github.com/King-890/solocreaft-studio/internal/synth"
)

// Backend produces the buffer for a resolved request. Implementations never
// fail: when nothing better is available they synthesize.
type Backend interface {
	Name() string
	Buffer(ctx context.Context, res samples.Resolution, velocity float64) *audio.Buffer
	Warm(ctx context.Context, res []samples.Resolution) (int, error)
	Stats() cache.Stats
}

// SampleBackend plays recorded samples through the buffer cache and falls
// back to synthesis on any load failure.
type SampleBackend struct {
	cache *cache.Cache
	synth *synth.Generator
}

// NewSampleBackend wraps a cache with a synthesis fallback.
func NewSampleBackend(c *cache.Cache, g *synth.Generator) *SampleBackend {
	return &SampleBackend{cache: c, synth: g}
}

func (b *SampleBackend) Name() string { return "sample" }

func (b *SampleBackend) Buffer(ctx context.Context, res samples.Resolution, velocity float64) *audio.Buffer {
	if res.Locator != "" {
		buf, err := b.cache.Acquire(ctx, res.Key, res.Locator)
		if err == nil {
			return buf
		}
		log.Printf("Sample unavailable, synthesizing %s: %v", res.Key, err)
	}
	return synthesize(b.synth, res, velocity)
}

func (b *SampleBackend) Warm(ctx context.Context, res []samples.Resolution) (int, error) {
	reqs := make([]cache.Request, 0, len(res))
	for _, r := range res {
		if r.Locator != "" {
			reqs = append(reqs, cache.Request{Key: r.Key, Locator: r.Locator})
		}
	}
	return b.cache.Warm(ctx, reqs, 4)
}

func (b *SampleBackend) Stats() cache.Stats { return b.cache.Stats() }

// SynthBackend never touches assets; every sound is synthesized.
type SynthBackend struct {
	synth *synth.Generator
}

// NewSynthBackend returns a synthesis-only backend.
func NewSynthBackend(g *synth.Generator) *SynthBackend {
	return &SynthBackend{synth: g}
}

func (b *SynthBackend) Name() string { return "synth" }

func (b *SynthBackend) Buffer(_ context.Context, res samples.Resolution, velocity float64) *audio.Buffer {
	return synthesize(b.synth, res, velocity)
}

func (b *SynthBackend) Warm(context.Context, []samples.Resolution) (int, error) { return 0, nil }

func (b *SynthBackend) Stats() cache.Stats { return cache.Stats{} }

func synthesize(g *synth.Generator, res samples.Resolution, velocity float64) *audio.Buffer {
	if res.Pad != "" {
		return g.Pad(res.Pad, samples.OpenPad(res.Pad), velocity)
	}
	return g.Note(res.Family, res.Note.Frequency(), velocity)
}
