//go:build !headless

package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// Device plays a Source on the default sound card.
type Device struct {
	ctx    *oto.Context
	player *oto.Player

	mu      sync.Mutex
	started bool
}

// DeviceBuffer is the requested device buffer length.
const DeviceBuffer = 40 * time.Millisecond

// OpenDevice opens the system audio output and binds src to it. The
// device pulls audio from src on its own goroutine once Start is called.
func OpenDevice(src Source) (*Device, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   DeviceBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &Device{
		ctx:    ctx,
		player: ctx.NewPlayer(NewReader(src)),
	}, nil
}

// Start begins playback.
func (d *Device) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		d.player.Play()
		d.started = true
		log.Printf("Audio device started (%d Hz, %d ch)", audio.SampleRate, audio.Channels)
	}
}

// Err reports an asynchronous device error, if any.
func (d *Device) Err() error {
	return d.ctx.Err()
}

// Close stops playback and releases the player.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return d.player.Close()
}
