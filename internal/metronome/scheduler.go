// Package metronome schedules click events slightly ahead of the audio
// clock and fires beat callbacks aligned to when each click is heard.
package metronome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrTempo is returned for tempos outside MinTempo..MaxTempo.
var ErrTempo = errors.New("tempo out of range")

const (
	MinTempo = 20
	MaxTempo = 400
)

// Clock reports the audio clock in seconds.
type Clock interface {
	Now() float64
}

// ClickPlayer renders a click that starts exactly at the given clock time.
type ClickPlayer interface {
	PlayClick(at float64, accent bool)
}

// State is the scheduler lifecycle.
type State int

const (
	Stopped State = iota
	Scheduling
	CountIn
	Running
)

func (s State) String() string {
	switch s {
	case Scheduling:
		return "scheduling"
	case CountIn:
		return "count-in"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Beat is one scheduled click.
type Beat struct {
	Number int     `json:"number"`
	Time   float64 `json:"time"`
	Accent bool    `json:"accent"`
}

// Option configures a run started by Start.
type Option func(*run)

type run struct {
	beatsPerBar int
	countIn     int
	onComplete  func()
}

// WithCountIn plays beats of count-in before onComplete fires. onComplete
// fires once, aligned to the last count-in beat.
func WithCountIn(beats int, onComplete func()) Option {
	return func(r *run) {
		r.countIn = beats
		r.onComplete = onComplete
	}
}

// WithBeatsPerBar sets how often the accented click occurs (default 4).
func WithBeatsPerBar(n int) Option {
	return func(r *run) {
		if n > 0 {
			r.beatsPerBar = n
		}
	}
}

type timer interface {
	Stop() bool
}

// Scheduler is a lookahead metronome. A loop wakes every interval and
// schedules every beat falling inside the lookahead window, reading the
// audio clock fresh on each pass so timer jitter never accumulates.
type Scheduler struct {
	clock     Clock
	clicks    ClickPlayer
	lookahead float64
	interval  time.Duration
	afterFunc func(time.Duration, func()) timer

	mu      sync.Mutex
	state   State
	tempo   float64
	beat    int
	start   float64
	last    float64
	started bool
	opts    run
	onBeat  func(Beat)
	gen     int
	pending []timer
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a stopped scheduler.
func New(clock Clock, clicks ClickPlayer, lookahead, interval time.Duration) *Scheduler {
	if lookahead <= 0 {
		lookahead = 100 * time.Millisecond
	}
	if interval <= 0 {
		interval = 25 * time.Millisecond
	}
	return &Scheduler{
		clock:     clock,
		clicks:    clicks,
		lookahead: lookahead.Seconds(),
		interval:  interval,
		afterFunc: func(d time.Duration, f func()) timer { return time.AfterFunc(d, f) },
		tempo:     120,
	}
}

func validTempo(bpm float64) error {
	if bpm < MinTempo || bpm > MaxTempo {
		return fmt.Errorf("%w: %.1f", ErrTempo, bpm)
	}
	return nil
}

// Start begins a run at tempo, resetting the beat counter. onBeat may be nil.
// A running scheduler is stopped first.
func (s *Scheduler) Start(tempo float64, onBeat func(Beat), opts ...Option) error {
	if err := validTempo(tempo); err != nil {
		return err
	}
	s.Stop()

	r := run{beatsPerBar: 4}
	for _, o := range opts {
		o(&r)
	}

	s.mu.Lock()
	s.state = Scheduling
	s.tempo = tempo
	s.beat = 0
	s.start = s.clock.Now()
	s.started = false
	s.opts = r
	s.onBeat = onBeat
	s.gen++
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.scheduleAhead()
	go s.loop(ctx, done)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduleAhead()
		}
	}
}

// Stop cancels all future scheduling. Clicks already handed to the audio
// graph play out; pending beat callbacks are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.state = Stopped
	s.gen++
	for _, t := range s.pending {
		t.Stop()
	}
	s.pending = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SetTempo changes the pacing of beats scheduled after the call; beats
// already queued keep their times.
func (s *Scheduler) SetTempo(bpm float64) error {
	if err := validTempo(bpm); err != nil {
		return err
	}
	s.mu.Lock()
	s.tempo = bpm
	s.mu.Unlock()
	return nil
}

// Tempo returns the current tempo in BPM.
func (s *Scheduler) Tempo() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempo
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BeatCount returns how many beats the current run has scheduled.
func (s *Scheduler) BeatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beat
}

// scheduleAhead queues every beat due within the lookahead window.
func (s *Scheduler) scheduleAhead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}

	now := s.clock.Now()
	for {
		next := s.start
		if s.started {
			next = s.last + 60/s.tempo
		}
		if next >= now+s.lookahead {
			break
		}
		b := Beat{Number: s.beat, Time: next, Accent: s.beat%s.opts.beatsPerBar == 0}
		s.clicks.PlayClick(b.Time, b.Accent)
		s.last, s.started = next, true
		s.beat++

		if s.onBeat != nil {
			s.after(b.Time-now, s.onBeat, b)
		}
		if s.opts.countIn > 0 && s.beat >= s.opts.countIn {
			s.opts.countIn = 0
			if f := s.opts.onComplete; f != nil {
				s.after(b.Time-now, func(Beat) { f() }, b)
			}
		}
	}

	switch {
	case s.opts.countIn > 0:
		s.state = CountIn
	default:
		s.state = Running
	}
}

// after runs f(b) after delay seconds unless the run has ended by then.
func (s *Scheduler) after(delay float64, f func(Beat), b Beat) {
	if delay < 0 {
		delay = 0
	}
	gen := s.gen
	var t timer
	t = s.afterFunc(time.Duration(delay*float64(time.Second)), func() {
		s.mu.Lock()
		live := s.gen == gen
		s.pending = removeTimer(s.pending, t)
		s.mu.Unlock()
		if live {
			f(b)
		}
	})
	if t != nil {
		s.pending = append(s.pending, t)
	}
}

func removeTimer(ts []timer, t timer) []timer {
	for i, x := range ts {
		if x == t {
			return append(ts[:i], ts[i+1:]...)
		}
	}
	return ts
}
