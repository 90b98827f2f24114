// Package stream exposes the master output to remote monitors: a chunked
// MP3 stream over HTTP and an Opus track over WebRTC, both fed from one
// fan-out of 20ms PCM frames.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// ListenerDepth is the per-listener frame backlog, about 3 seconds.
const ListenerDepth = 150

// Broadcaster fans out master-bus frames from one source to N listeners.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	frames    atomic.Int64
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	C       chan []int16 // 20ms interleaved stereo frames
	done    chan struct{}
	dropped atomic.Int64
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Dropped reports frames this listener missed by reading too slowly.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, ListenerDepth),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Calling it twice
// is safe.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Frames returns how many frames have been broadcast.
func (b *Broadcaster) Frames() int64 {
	return b.frames.Load()
}

// Run reads frames from source and fans out to all listeners until ctx is
// cancelled or source closes. Slow listeners lose frames; the render path
// never waits on a monitor.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.frames.Add(1)
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
