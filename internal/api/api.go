// Package api is the HTTP control surface of the engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/King-890/solocreaft-studio/internal/engine"
	"github.com/King-890/solocreaft-studio/internal/metronome"
	"github.com/King-890/solocreaft-studio/internal/mixer"
)

// ListenerCounter reports connected monitor clients.
type ListenerCounter func() int

// Server routes control requests to an engine.
type Server struct {
	engine    *engine.Engine
	listeners ListenerCounter
	mux       *http.ServeMux
}

// New builds the control API. listeners may be nil.
func New(e *engine.Engine, listeners ListenerCounter) *Server {
	s := &Server{engine: e, listeners: listeners, mux: http.NewServeMux()}

	s.mux.HandleFunc("/api/play", post(s.play))
	s.mux.HandleFunc("/api/stop", post(s.stop))
	s.mux.HandleFunc("/api/drum", post(s.drum))
	s.mux.HandleFunc("/api/mixer", s.mixer)
	s.mux.HandleFunc("/api/sustain", post(s.sustain))
	s.mux.HandleFunc("/api/stop-all", post(s.stopAll))
	s.mux.HandleFunc("/api/effects", post(s.effects))
	s.mux.HandleFunc("/api/metronome/start", post(s.metronomeStart))
	s.mux.HandleFunc("/api/metronome/stop", post(s.metronomeStop))
	s.mux.HandleFunc("/api/metronome/tempo", post(s.metronomeTempo))
	s.mux.HandleFunc("/api/status", s.status)
	s.mux.HandleFunc("/api/meter", s.meter)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.mux.ServeHTTP(w, r)
}

func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func voiceJSON(v *mixer.Voice) map[string]any {
	if v == nil {
		return map[string]any{"ok": true, "suppressed": true}
	}
	return map[string]any{
		"ok":      true,
		"voice":   v.ID.String(),
		"play_id": v.PlayID,
		"track":   v.Track,
	}
}

func (s *Server) play(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note       string   `json:"note"`
		Instrument string   `json:"instrument"`
		Velocity   *float64 `json:"velocity"`
		Delay      float64  `json:"delay"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Instrument == "" {
		http.Error(w, "instrument required", http.StatusBadRequest)
		return
	}
	opts := []engine.PlayOption{engine.WithDelay(req.Delay)}
	if req.Velocity != nil {
		opts = append(opts, engine.WithVelocity(*req.Velocity))
	}
	// loads outlive the request
	v := s.engine.PlaySound(context.WithoutCancel(r.Context()), req.Note, req.Instrument, opts...)
	writeJSON(w, voiceJSON(v))
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note       string `json:"note"`
		Instrument string `json:"instrument"`
		Force      bool   `json:"force"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.engine.StopSound(req.Note, req.Instrument, req.Force)
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) drum(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Pad        string  `json:"pad"`
		Instrument string  `json:"instrument"`
		Volume     float64 `json:"volume"`
		Pan        float64 `json:"pan"`
	}{Instrument: "drums", Volume: 1}
	if !decode(w, r, &req) {
		return
	}
	if req.Pad == "" {
		http.Error(w, "pad required", http.StatusBadRequest)
		return
	}
	v := s.engine.PlayDrumSound(context.WithoutCancel(r.Context()), req.Pad, req.Instrument, req.Volume, req.Pan)
	writeJSON(w, voiceJSON(v))
}

func (s *Server) mixer(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, s.engine.AllMixerSettings())
	case http.MethodPost:
		var req struct {
			Instrument string `json:"instrument"`
			engine.Settings
		}
		req.Volume = 1
		if !decode(w, r, &req) {
			return
		}
		if req.Instrument == "" {
			http.Error(w, "instrument required", http.StatusBadRequest)
			return
		}
		s.engine.SetMixerSettings(req.Instrument, req.Settings)
		writeJSON(w, map[string]any{"ok": true, "settings": s.engine.MixerSettings(req.Instrument)})
	default:
		http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
	}
}

func (s *Server) sustain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On bool `json:"on"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.engine.SetSustain(req.On)
	writeJSON(w, map[string]any{"ok": true, "sustain": req.On})
}

func (s *Server) stopAll(w http.ResponseWriter, r *http.Request) {
	s.engine.StopAll()
	log.Println("All voices stopped")
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) effects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Distortion *float64 `json:"distortion"`
		Delay      *struct {
			Mix      float64 `json:"mix"`
			Time     float64 `json:"time"`
			Feedback float64 `json:"feedback"`
		} `json:"delay"`
		Reverb     *float64 `json:"reverb"`
		MasterGain *float64 `json:"master_gain"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Distortion != nil {
		s.engine.SetDistortion(*req.Distortion)
	}
	if req.Delay != nil {
		s.engine.SetDelay(req.Delay.Mix, req.Delay.Time, req.Delay.Feedback)
	}
	if req.Reverb != nil {
		s.engine.SetReverb(*req.Reverb)
	}
	if req.MasterGain != nil {
		s.engine.Graph().SetMasterGain(*req.MasterGain)
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) metronomeStart(w http.ResponseWriter, r *http.Request) {
	req := struct {
		Tempo       float64 `json:"tempo"`
		CountIn     int     `json:"count_in"`
		BeatsPerBar int     `json:"beats_per_bar"`
	}{Tempo: 120}
	if !decode(w, r, &req) {
		return
	}
	var opts []metronome.Option
	if req.CountIn > 0 {
		opts = append(opts, metronome.WithCountIn(req.CountIn, func() {
			log.Printf("Count-in complete (%d beats)", req.CountIn)
		}))
	}
	if req.BeatsPerBar > 0 {
		opts = append(opts, metronome.WithBeatsPerBar(req.BeatsPerBar))
	}
	if err := s.engine.Metronome().Start(req.Tempo, nil, opts...); err != nil {
		tempoError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "tempo": req.Tempo, "state": s.engine.Metronome().State().String()})
}

func (s *Server) metronomeStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Metronome().Stop()
	writeJSON(w, map[string]any{"ok": true})
}

func (s *Server) metronomeTempo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tempo float64 `json:"tempo"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Metronome().SetTempo(req.Tempo); err != nil {
		tempoError(w, err)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "tempo": req.Tempo})
}

func tempoError(w http.ResponseWriter, err error) {
	if errors.Is(err, metronome.ErrTempo) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	listeners := 0
	if s.listeners != nil {
		listeners = s.listeners()
	}
	writeJSON(w, map[string]any{
		"engine":    s.engine.Status(),
		"mixer":     s.engine.AllMixerSettings(),
		"tracks":    s.engine.Graph().TrackPeaks(),
		"listeners": listeners,
	})
}

func (s *Server) meter(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"peak":      s.engine.PeakLevel(),
		"frequency": s.engine.FrequencyData(),
	}
	if r.URL.Query().Get("waveform") != "" {
		resp["waveform"] = s.engine.Waveform()
	}
	writeJSON(w, resp)
}
