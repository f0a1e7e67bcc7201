// Package reaction implements the emoji-reaction and time-capsule flows:
// show a target emotion, wait for the player to hold it, capture a frame,
// then move on to the next target.
package reaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/okian/facepulse/internal/domain/confirm"
	"github.com/okian/facepulse/internal/domain/model"
)

// Defaults.
const (
	DefaultHold           = time.Second
	DefaultCaptureTimeout = 5 * time.Second
	DefaultMinConfidence  = 50.0
)

// State of a Flow.
type State string

// Flow states.
const (
	StateIdle      State = "idle"
	StateShowing   State = "showing"
	StateMatching  State = "matching"
	StateCapturing State = "capturing"
	StateCaptured  State = "captured"
	StateCompleted State = "completed"
)

// Option configures a Flow.
type Option func(*Flow)

// WithHold sets how long a match must hold before capturing.
func WithHold(d time.Duration) Option {
	return func(f *Flow) {
		if d >= 0 {
			f.hold = d
		}
	}
}

// WithCaptureTimeout sets how long capturing waits for a frame.
func WithCaptureTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.captureTimeout = d
		}
	}
}

// WithMinConfidence sets the lowest confidence that counts as a match.
func WithMinConfidence(c float64) Option {
	return func(f *Flow) {
		if c >= 0 {
			f.minConfidence = c
		}
	}
}

// View is a snapshot of a Flow for clients.
type View struct {
	ID       string        `json:"id"`
	Kind     Kind          `json:"kind"`
	State    State         `json:"state"`
	Round    int           `json:"round"`
	Rounds   []Round       `json:"rounds"`
	Target   model.Emotion `json:"target,omitempty"`
	Progress float64       `json:"progress"`
	Total    int           `json:"total_points"`
}

// Flow is safe for concurrent use.
type Flow struct {
	mu sync.Mutex

	id   string
	kind Kind

	hold           time.Duration
	captureTimeout time.Duration
	minConfidence  float64

	state    State
	rounds   []Round
	current  int
	machine  *confirm.Machine[model.Emotion]
	deadline time.Time
	pending  int
	lastSeen time.Time
}

// New creates an idle flow over the given rounds.
func New(id string, kind Kind, rounds []Round, opts ...Option) (*Flow, error) {
	if len(rounds) == 0 {
		return nil, ErrNoRounds
	}
	f := &Flow{
		id:             id,
		kind:           kind,
		hold:           DefaultHold,
		captureTimeout: DefaultCaptureTimeout,
		minConfidence:  DefaultMinConfidence,
		state:          StateIdle,
		rounds:         append([]Round(nil), rounds...),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.machine = confirm.New[model.Emotion](confirm.Config{
		MinSamples:    1,
		HoldDuration:  f.hold,
		MinConfidence: f.minConfidence,
	})
	return f, nil
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.id }

// Kind returns the preset kind.
func (f *Flow) Kind() Kind { return f.kind }

// Start moves idle to showing the first target.
func (f *Flow) Start(now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, f.state)
	}
	f.show(0, now)
	return nil
}

// Observe feeds a detected emotion. It only has an effect while showing or
// matching; while capturing it applies the timeout.
func (f *Flow) Observe(e model.Emotion, confidence int, now time.Time) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = now

	switch f.state {
	case StateShowing, StateMatching:
	case StateCapturing:
		f.tick(now)
		return f.state
	default:
		return f.state
	}

	switch f.machine.Observe(e, float64(confidence), now) {
	case confirm.Watching:
		f.state = StateShowing
	case confirm.Holding:
		f.state = StateMatching
	case confirm.Confirmed:
		f.state = StateCapturing
		f.deadline = now.Add(f.captureTimeout)
		f.pending = confidence
	}
	return f.state
}

// Lost records a sample without a face. A hold in progress is dropped and
// the flow goes back to showing the target; a pending capture only has its
// timeout applied.
func (f *Flow) Lost(now time.Time) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen = now

	switch f.state {
	case StateShowing, StateMatching:
		f.machine.Reset()
		f.state = StateShowing
	case StateCapturing:
		f.tick(now)
	}
	return f.state
}

// Tick reverts a capture that was not fulfilled in time back to showing.
func (f *Flow) Tick(now time.Time) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick(now)
	return f.state
}

func (f *Flow) tick(now time.Time) {
	if f.state == StateCapturing && !now.Before(f.deadline) {
		f.machine.Reset()
		f.state = StateShowing
		f.pending = 0
	}
}

// Fulfill completes a pending capture with the stored frame URL. It returns
// the completed round.
func (f *Flow) Fulfill(imageURL string, now time.Time) (Round, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick(now)
	if f.state != StateCapturing {
		return Round{}, fmt.Errorf("%w: fulfill from %s", ErrInvalidTransition, f.state)
	}
	r := &f.rounds[f.current]
	r.Points = f.pending
	r.ImageURL = imageURL
	r.Done = true
	f.state = StateCaptured
	return *r, nil
}

// Next advances from captured to the next target, or to completed after
// the last round.
func (f *Flow) Next(now time.Time) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateCaptured {
		return f.state, fmt.Errorf("%w: next from %s", ErrInvalidTransition, f.state)
	}
	if f.current+1 >= len(f.rounds) {
		f.state = StateCompleted
		return f.state, nil
	}
	f.show(f.current+1, now)
	return f.state, nil
}

// Complete ends the flow early, keeping finished rounds.
func (f *Flow) Complete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCompleted
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastSeen returns when the flow last received a sample.
func (f *Flow) LastSeen() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

// Snapshot returns the current view. Progress is the hold fraction of the
// current round while matching, 1 from capturing on.
func (f *Flow) Snapshot(now time.Time) View {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := View{
		ID:     f.id,
		Kind:   f.kind,
		State:  f.state,
		Round:  f.current + 1,
		Rounds: append([]Round(nil), f.rounds...),
	}
	if f.state != StateCompleted && f.state != StateIdle {
		v.Target = f.rounds[f.current].Target
	}
	switch f.state {
	case StateMatching:
		if f.hold > 0 {
			v.Progress = min(1, float64(f.machine.Held(now))/float64(f.hold))
		}
	case StateCapturing, StateCaptured:
		v.Progress = 1
	}
	for _, r := range f.rounds {
		v.Total += r.Points
	}
	return v
}

func (f *Flow) show(i int, now time.Time) {
	f.current = i
	f.machine.SetTarget(f.rounds[i].Target)
	f.state = StateShowing
	f.pending = 0
	f.lastSeen = now
}
