// Package confirm implements a hold-and-confirm state machine.
//
// A Machine watches a stream of labelled samples. It starts holding when a
// qualifying label arrives and confirms once that label has repeated for
// MinSamples consecutive samples and HoldDuration has elapsed since the
// first of them. Any non-qualifying sample drops it back to watching.
// The capture gate and the reaction flows both run on it.
package confirm

import "time"

// State of a Machine.
type State int

// Machine states.
const (
	Watching State = iota
	Holding
	Confirmed
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Holding:
		return "holding"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Config parameterises a Machine.
type Config struct {
	// MinSamples is how many consecutive matching samples confirm. Values
	// below 1 are treated as 1.
	MinSamples int
	// HoldDuration is how long the label must hold before confirming.
	HoldDuration time.Duration
	// MinConfidence rejects samples whose confidence is lower.
	MinConfidence float64
}

// Machine is not safe for concurrent use.
type Machine[T comparable] struct {
	cfg Config

	target    T
	hasTarget bool

	state State
	label T
	count int
	since time.Time
}

// New creates a Machine in the watching state.
func New[T comparable](cfg Config) *Machine[T] {
	if cfg.MinSamples < 1 {
		cfg.MinSamples = 1
	}
	return &Machine[T]{cfg: cfg}
}

// SetTarget restricts qualifying samples to label t and resets the machine.
func (m *Machine[T]) SetTarget(t T) {
	m.target = t
	m.hasTarget = true
	m.Reset()
}

// ClearTarget lets any label qualify and resets the machine.
func (m *Machine[T]) ClearTarget() {
	var zero T
	m.target = zero
	m.hasTarget = false
	m.Reset()
}

// Observe feeds one sample and returns the resulting state.
func (m *Machine[T]) Observe(label T, confidence float64, now time.Time) State {
	if confidence < m.cfg.MinConfidence || (m.hasTarget && label != m.target) {
		m.Reset()
		return m.state
	}
	if m.state == Watching || label != m.label {
		m.label = label
		m.count = 1
		m.since = now
		m.state = Holding
	} else {
		m.count++
	}
	if m.count >= m.cfg.MinSamples && now.Sub(m.since) >= m.cfg.HoldDuration {
		m.state = Confirmed
	}
	return m.state
}

// State returns the current state.
func (m *Machine[T]) State() State {
	return m.state
}

// Label returns the label being held or confirmed. It is the zero value
// while watching.
func (m *Machine[T]) Label() T {
	return m.label
}

// Held returns how long the current label has been held at now.
func (m *Machine[T]) Held(now time.Time) time.Duration {
	if m.state == Watching {
		return 0
	}
	return now.Sub(m.since)
}

// Reset returns to watching and forgets the held label.
func (m *Machine[T]) Reset() {
	var zero T
	m.state = Watching
	m.label = zero
	m.count = 0
	m.since = time.Time{}
}
