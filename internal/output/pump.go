package output

import (
	"context"
	"time"

	"github.com/King-890/solocreaft-studio/internal/audio"
)

// Pump renders one frame per tick in real time. It keeps the graph clock
// moving when no device pulls audio, so scheduled notes, the metronome and
// monitor streams behave the same with or without a device.
type Pump struct {
	src    Source
	period time.Duration
}

// NewPump paces src at audio.FrameDuration.
func NewPump(src Source) *Pump {
	return &Pump{src: src, period: audio.FrameDuration}
}

// Run renders until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()

	buf := make([]float32, audio.FrameSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.src.Render(buf)
		}
	}
}
