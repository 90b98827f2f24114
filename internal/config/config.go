package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Engine
	Backend    string // "sample" or "synth"
	Output     string // "device" or "headless"
	MaxVoices  int
	Release    time.Duration // stop fade length
	ReverbMix  float64
	MasterGain float64

	// Sample assets
	SampleBaseURL string
	SampleAPIKey  string
	AssetDir      string
	LoadTimeout   time.Duration
	FetchRate     float64 // fetches per second
	Preload       []string

	// Metronome
	Lookahead        time.Duration
	ScheduleInterval time.Duration

	// MIDI input
	MIDIPort       string // substring of the input port name, empty disables
	MIDIInstrument string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("SOUNDCORE_PORT", 8080),

		Backend:    envStr("SOUNDCORE_BACKEND", "sample"),
		Output:     envStr("SOUNDCORE_OUTPUT", "device"),
		MaxVoices:  envInt("SOUNDCORE_MAX_VOICES", 12),
		Release:    envDuration("SOUNDCORE_RELEASE", 150*time.Millisecond),
		ReverbMix:  envFloat("SOUNDCORE_REVERB_MIX", 0.2),
		MasterGain: envFloat("SOUNDCORE_MASTER_GAIN", 1.5),

		SampleBaseURL: envStr("SOUNDCORE_SAMPLE_BASE_URL", "https://gleitz.github.io/midi-js-soundfonts/FluidR3_GM"),
		SampleAPIKey:  envStr("SOUNDCORE_SAMPLE_API_KEY", ""),
		AssetDir:      envStr("SOUNDCORE_ASSET_DIR", "assets"),
		LoadTimeout:   envDuration("SOUNDCORE_LOAD_TIMEOUT", 3*time.Second),
		FetchRate:     envFloat("SOUNDCORE_FETCH_RATE", 20),
		Preload:       envList("SOUNDCORE_PRELOAD"),

		Lookahead:        envDuration("SOUNDCORE_LOOKAHEAD", 100*time.Millisecond),
		ScheduleInterval: envDuration("SOUNDCORE_SCHEDULE_INTERVAL", 25*time.Millisecond),

		MIDIPort:       envStr("SOUNDCORE_MIDI_PORT", ""),
		MIDIInstrument: envStr("SOUNDCORE_MIDI_INSTRUMENT", "piano"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("250ms") or bare milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
