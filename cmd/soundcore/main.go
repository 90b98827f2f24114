package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver

	"github.com/King-890/solocreaft-studio/internal/api"
	"github.com/King-890/solocreaft-studio/internal/cache"
	"github.com/King-890/solocreaft-studio/internal/config"
	"github.com/King-890/solocreaft-studio/internal/engine"
	"github.com/King-890/solocreaft-studio/internal/midiin"
	"github.com/King-890/solocreaft-studio/internal/mixer"
	"github.com/King-890/solocreaft-studio/internal/output"
	"github.com/King-890/solocreaft-studio/internal/samples"
	"github.com/King-890/solocreaft-studio/internal/stream"
	"github.com/King-890/solocreaft-studio/internal/synth"
)

// preloadNotes are warmed for each instrument in SOUNDCORE_PRELOAD.
var preloadNotes = []string{"C3", "E3", "G3", "C4", "E4", "G4", "C5"}

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("soundcore starting up...")

	resolver := samples.NewResolver(cfg.SampleBaseURL, "", samples.NewRegistry(cfg.AssetDir))

	gen := synth.New(uint64(time.Now().UnixNano()))
	var backend engine.Backend
	switch cfg.Backend {
	case "synth":
		backend = engine.NewSynthBackend(gen)
	default:
		remote := cache.NewHTTPFetcher(cfg.SampleAPIKey, cfg.FetchRate)
		fetcher := cache.MultiFetcher{Remote: remote, Local: cache.FileFetcher{}}
		backend = engine.NewSampleBackend(cache.New(fetcher, nil, cfg.LoadTimeout), gen)
		go probeSamples(ctx, remote, resolver)
	}

	mixOpts := mixer.DefaultOptions()
	mixOpts.MasterGain = cfg.MasterGain
	mixOpts.ReverbMix = cfg.ReverbMix

	eng, err := engine.New(engine.Options{
		Backend:   backend,
		Resolver:  resolver,
		MaxVoices: cfg.MaxVoices,
		Release:   cfg.Release,
		Lookahead: cfg.Lookahead,
		Interval:  cfg.ScheduleInterval,
		Mixer:     mixOpts,
	})
	if err != nil {
		log.Fatalf("Engine init failed: %v", err)
	}
	defer eng.Close()

	// Monitor tap: every rendered block also feeds the stream broadcaster
	tap := output.NewTap(eng.Graph(), 100)
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, tap.Frames())

	startOutput(ctx, cfg, eng, tap)

	if len(cfg.Preload) > 0 {
		go func() {
			for _, inst := range cfg.Preload {
				n, err := eng.Preload(ctx, inst, preloadNotes...)
				if err != nil {
					log.Printf("Preload %s: %d loaded, %v", inst, n, err)
					continue
				}
				log.Printf("Preloaded %s (%d samples)", inst, n)
			}
		}()
	}

	if cfg.MIDIPort != "" {
		ctrl := midiin.New(ctx, midiin.EngineTarget{Engine: eng}, cfg.MIDIInstrument)
		if err := ctrl.Open(cfg.MIDIPort); err != nil {
			log.Printf("MIDI input disabled: %v (ports: %v)", err, midiin.Ports())
		} else {
			defer ctrl.Close()
		}
	}

	webrtcHandler := stream.NewWebRTCHandler(broadcaster, "soundcore")

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(eng, func() int {
		return broadcaster.ListenerCount()
	}))
	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster, "soundcore monitor"))
	mux.Handle("/offer", webrtcHandler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("soundcore live on %s (backend %s)", addr, backend.Name())
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

// probeSamples logs whether the sample host answers. Playback never waits
// on it; unreachable samples are synthesized.
func probeSamples(ctx context.Context, f *cache.HTTPFetcher, r *samples.Resolver) {
	res := r.Resolve(samples.DefaultInstrument, samples.DefaultNote.String(), engine.DefaultVelocity)
	if res.Locator == "" {
		return
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := f.Probe(probeCtx, res.Locator); err != nil {
		log.Printf("Sample host not reachable, notes will be synthesized: %v", err)
		return
	}
	log.Printf("Sample host reachable: %s", res.Locator)
}

// startOutput opens the sound device, or falls back to the real-time pump
// and reports audio as unavailable.
func startOutput(ctx context.Context, cfg config.Config, eng *engine.Engine, src output.Source) {
	if cfg.Output != "headless" {
		dev, err := output.OpenDevice(src)
		if err == nil {
			dev.Start()
			go func() {
				<-ctx.Done()
				dev.Close()
			}()
			return
		}
		eng.ReportAudioError(err)
	} else {
		log.Println("Headless output selected")
	}
	go output.NewPump(src).Run(ctx)
}
