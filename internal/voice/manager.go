// Package voice tracks sounding voices: retrigger, the concurrent voice
// cap and sustain-pedal release.
package voice

import (
	"slices"
	"sync"
	"time"

	"github.com/King-890/solocreaft-studio/internal/audio"
	"github.com/King-890/solocreaft-studio/internal/mixer"
)

// DefaultMaxVoices is the concurrent voice cap.
const DefaultMaxVoices = 12

// FastFade is the time constant used for retrigger, eviction and StopAll.
const FastFade = 5 * time.Millisecond

// Player admits buffers into the render graph.
type Player interface {
	Play(playID string, track int, buf *audio.Buffer, p mixer.VoiceParams) *mixer.Voice
}

// Manager owns the lifetime of every voice it starts.
type Manager struct {
	player  Player
	max     int
	release time.Duration

	mu      sync.Mutex
	active  map[string][]*mixer.Voice
	order   []*mixer.Voice // admission order, oldest first
	sustain bool
	held    map[string]struct{}
	pending map[string][]*Ticket
}

// Ticket stands for a note whose buffer is still loading. A Stop for its
// playID that arrives before Start is recorded on the ticket.
type Ticket struct {
	playID  string
	stopped bool
}

// New creates a manager. Stops fade with a time constant of release/5.
func New(p Player, maxVoices int, release time.Duration) *Manager {
	if maxVoices <= 0 {
		maxVoices = DefaultMaxVoices
	}
	if release <= 0 {
		release = 150 * time.Millisecond
	}
	return &Manager{
		player:  p,
		max:     maxVoices,
		release: release,
		active:  make(map[string][]*mixer.Voice),
		held:    make(map[string]struct{}),
		pending: make(map[string][]*Ticket),
	}
}

// Reserve registers a key press for playID ahead of its buffer. Pass the
// ticket to Start once the buffer is ready.
func (m *Manager) Reserve(playID string) *Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &Ticket{playID: playID}
	m.pending[playID] = append(m.pending[playID], t)
	// the key is down again, so a pending pedal release no longer applies
	delete(m.held, playID)
	return t
}

// Play starts buf as a voice under playID. It is Reserve followed directly
// by Start.
func (m *Manager) Play(playID string, track int, buf *audio.Buffer, p mixer.VoiceParams, retrigger bool) *mixer.Voice {
	return m.Start(m.Reserve(playID), track, buf, p, retrigger)
}

// Start admits buf for a reserved key press. With retrigger set, voices
// already sounding under the same playID fade out quickly first. When the
// cap is reached the oldest voice is evicted to make room. If the key was
// released while the buffer loaded, the voice starts and fades at once.
func (m *Manager) Start(t *Ticket, track int, buf *audio.Buffer, p mixer.VoiceParams, retrigger bool) *mixer.Voice {
	m.mu.Lock()
	defer m.mu.Unlock()

	playID := t.playID
	m.unreserve(t)
	if t.stopped {
		// untracked, so it neither retriggers nor counts against the cap
		v := m.player.Play(playID, track, buf, p)
		v.Release(m.release / 5)
		return v
	}

	m.prune()
	if retrigger {
		m.releaseLocked(playID, FastFade)
	}

	for len(m.order) >= m.max {
		oldest := m.order[0]
		oldest.Release(FastFade)
		m.forget(oldest)
	}

	v := m.player.Play(playID, track, buf, p)
	m.active[playID] = append(m.active[playID], v)
	m.order = append(m.order, v)
	return v
}

// Pending returns the number of reserved key presses not yet started.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, list := range m.pending {
		n += len(list)
	}
	return n
}

// Stop releases every voice of playID, including presses still loading.
// While sustain is held and force is false the release is deferred until
// the pedal lifts. Stopping a playID that is neither sounding nor loading
// does nothing.
func (m *Manager) Stop(playID string, force bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(playID, force)
}

func (m *Manager) stopLocked(playID string, force bool) {
	if len(m.active[playID]) == 0 && len(m.pending[playID]) == 0 {
		delete(m.held, playID)
		return
	}
	if m.sustain && !force {
		m.held[playID] = struct{}{}
		return
	}
	for _, t := range m.pending[playID] {
		t.stopped = true
	}
	m.releaseLocked(playID, m.release/5)
	delete(m.held, playID)
}

// StopVoice releases one specific voice regardless of sustain.
func (m *Manager) StopVoice(v *mixer.Voice) {
	if v == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v.Release(m.release / 5)
	m.forget(v)
}

// SetSustain engages or lifts the pedal. Lifting it force-stops every held
// playID before returning.
func (m *Manager) SetSustain(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sustain = on
	if on {
		return
	}
	for id := range m.held {
		m.stopLocked(id, true)
	}
	clear(m.held)
}

// Sustain reports whether the pedal is down.
func (m *Manager) Sustain() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sustain
}

// StopAll fades every voice quickly and clears the held set.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.order {
		v.Release(FastFade)
	}
	for _, list := range m.pending {
		for _, t := range list {
			t.stopped = true
		}
	}
	clear(m.pending)
	clear(m.active)
	clear(m.held)
	m.order = m.order[:0]
}

// Active returns the number of tracked voices that have not finished.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	return len(m.order)
}

// Held returns the playIDs waiting for the pedal to lift.
func (m *Manager) Held() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.held))
	for id := range m.held {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Voices returns the tracked voices for playID.
func (m *Manager) Voices(playID string) []*mixer.Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.active[playID])
}

func (m *Manager) releaseLocked(playID string, tau time.Duration) {
	for _, v := range m.active[playID] {
		v.Release(tau)
		m.order = slices.DeleteFunc(m.order, func(o *mixer.Voice) bool { return o == v })
	}
	delete(m.active, playID)
}

func (m *Manager) unreserve(t *Ticket) {
	list := slices.DeleteFunc(m.pending[t.playID], func(o *Ticket) bool { return o == t })
	if len(list) == 0 {
		delete(m.pending, t.playID)
	} else {
		m.pending[t.playID] = list
	}
}

// forget drops v from tracking; the graph keeps rendering its fade.
func (m *Manager) forget(v *mixer.Voice) {
	m.order = slices.DeleteFunc(m.order, func(o *mixer.Voice) bool { return o == v })
	list := slices.DeleteFunc(m.active[v.PlayID], func(o *mixer.Voice) bool { return o == v })
	if len(list) == 0 {
		delete(m.active, v.PlayID)
	} else {
		m.active[v.PlayID] = list
	}
}

// prune drops voices that ended on their own.
func (m *Manager) prune() {
	for _, v := range slices.Clone(m.order) {
		if v.Done() {
			m.forget(v)
		}
	}
}
