// Package gate decides when a detected emotion is stable enough to capture.
package gate

import (
	"time"

	"github.com/okian/facepulse/internal/domain/confirm"
	"github.com/okian/facepulse/internal/domain/model"
)

// Defaults.
const (
	DefaultWindow   = 2
	DefaultCooldown = time.Second
)

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonFired     Reason = "fired"
	ReasonUnstable  Reason = "unstable"
	ReasonUnchanged Reason = "unchanged"
	ReasonCooldown  Reason = "cooldown"
	ReasonNoFace    Reason = "no_face"
)

// Decision is the outcome of observing one sample.
type Decision struct {
	Fire    bool          `json:"fire"`
	Reason  Reason        `json:"reason"`
	Emotion model.Emotion `json:"emotion,omitempty"`
}

// Option configures a CaptureGate.
type Option func(*CaptureGate)

// WithWindow sets how many consecutive identical samples make an emotion stable.
func WithWindow(n int) Option {
	return func(g *CaptureGate) {
		if n > 0 {
			g.window = n
		}
	}
}

// WithCooldown sets the minimum time between two captures.
func WithCooldown(d time.Duration) Option {
	return func(g *CaptureGate) {
		if d >= 0 {
			g.cooldown = d
		}
	}
}

// CaptureGate fires when the stable emotion is new or differs from the last
// captured one and the cooldown since the last capture has passed.
// It is not safe for concurrent use.
type CaptureGate struct {
	window   int
	cooldown time.Duration

	stability *confirm.Machine[model.Emotion]

	captured    bool
	lastEmotion model.Emotion
	lastAt      time.Time
}

// NewCaptureGate creates a gate with a 2-sample window and 1s cooldown
// unless overridden.
func NewCaptureGate(opts ...Option) *CaptureGate {
	g := &CaptureGate{window: DefaultWindow, cooldown: DefaultCooldown}
	for _, opt := range opts {
		opt(g)
	}
	g.stability = confirm.New[model.Emotion](confirm.Config{MinSamples: g.window})
	return g
}

// Observe feeds one derived sample taken at now.
func (g *CaptureGate) Observe(m model.DerivedMetrics, now time.Time) Decision {
	if !m.FaceDetected {
		g.stability.Reset()
		return Decision{Reason: ReasonNoFace}
	}
	if g.stability.Observe(m.Emotion, float64(m.EmotionConfidence), now) != confirm.Confirmed {
		return Decision{Reason: ReasonUnstable, Emotion: m.Emotion}
	}
	if g.captured && m.Emotion == g.lastEmotion {
		return Decision{Reason: ReasonUnchanged, Emotion: m.Emotion}
	}
	if g.captured && now.Sub(g.lastAt) < g.cooldown {
		return Decision{Reason: ReasonCooldown, Emotion: m.Emotion}
	}
	g.captured = true
	g.lastEmotion = m.Emotion
	g.lastAt = now
	return Decision{Fire: true, Reason: ReasonFired, Emotion: m.Emotion}
}

// LastCaptured returns the last captured emotion, if any.
func (g *CaptureGate) LastCaptured() (model.Emotion, bool) {
	return g.lastEmotion, g.captured
}

// Reset forgets history and capture state.
func (g *CaptureGate) Reset() {
	g.stability.Reset()
	g.captured = false
	g.lastEmotion = ""
	g.lastAt = time.Time{}
}
