package stream

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestHTTPHandlerEncoderMissing(t *testing.T) {
	b := NewBroadcaster()
	h := NewHTTPHandler(b, "monitor")
	h.command = func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, "/nonexistent/ffmpeg")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if b.ListenerCount() != 0 {
		t.Errorf("ListenerCount = %d, want 0", b.ListenerCount())
	}
}

func TestHTTPHandlerPipesEncoderOutput(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	b := NewBroadcaster()
	h := NewHTTPHandler(b, "monitor")
	// cat echoes the PCM it is fed, standing in for the encoder
	h.command = func(ctx context.Context) *exec.Cmd {
		return exec.CommandContext(ctx, "cat")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 1)
	go b.Run(ctx, source)

	reqCtx, reqCancel := context.WithCancel(context.Background())
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil).WithContext(reqCtx))
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for b.ListenerCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("listener never subscribed")
		case <-time.After(time.Millisecond):
		}
	}
	source <- []int16{0x0102, 0x0304}
	time.Sleep(100 * time.Millisecond)
	reqCancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "audio/mpeg") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte{0x02, 0x01, 0x04, 0x03}) {
		t.Errorf("body = %x, want little-endian PCM", rec.Body.Bytes())
	}
	if b.ListenerCount() != 0 {
		t.Error("listener not unsubscribed after disconnect")
	}
}

func TestWebRTCHandlerRejectsGet(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "monitor")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestWebRTCHandlerBadOffer(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "monitor")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/offer", strings.NewReader("not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d", h.PeerCount())
	}
}

func TestWebRTCHandlerPreflight(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster(), "monitor")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/offer", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Methods") != "POST" {
		t.Errorf("preflight = %d %v", rec.Code, rec.Header())
	}
}
