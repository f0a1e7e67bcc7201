// Package scoring runs the timed challenge mini-game: for a fixed duration
// the player tries to smile, look surprised, or blink as much as possible,
// and the samples are folded into a 0-100 score.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/facepulse/internal/domain/model"
)

// Default challenge configuration.
const (
	defaultDuration  = 30 * time.Second
	defaultThreshold = 50
	defaultWeight    = 1.0
	blinkPoints      = 10
	maxScoreValue    = 100
)

// Kind selects what a challenge rewards.
type Kind string

// Challenge kinds.
const (
	KindSmile    Kind = "smile"
	KindSurprise Kind = "surprise"
	KindBlink    Kind = "blink"
)

// ErrUnknownKind is returned for an unsupported challenge kind.
var ErrUnknownKind = errors.New("unknown challenge kind")

// ParseKind validates s.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindSmile, KindSurprise, KindBlink:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Option applies a configuration option to a Challenge.
type Option func(*Challenge)

// WithDuration sets how long the challenge accepts samples.
func WithDuration(d time.Duration) Option {
	return func(c *Challenge) {
		if d > 0 {
			c.duration = d
		}
	}
}

// WithThreshold sets the smile percentage or confidence a sample needs.
func WithThreshold(t int) Option {
	return func(c *Challenge) {
		if t >= 0 && t <= 100 {
			c.threshold = t
		}
	}
}

// WithWeightsFromConfig picks the challenge weight from a per-kind map.
func WithWeightsFromConfig(weights map[string]float64) Option {
	return func(c *Challenge) {
		if w, ok := weights[string(c.kind)]; ok && w > 0 {
			c.weight = w
		}
	}
}

// Result is the outcome of a challenge.
type Result struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"kind"`
	Score    float64 `json:"score"`
	Samples  int     `json:"samples"`
	Hits     int     `json:"hits"`
	Active   bool    `json:"active"`
	Elapsed  float64 `json:"elapsed_seconds"`
	Duration float64 `json:"duration_seconds"`
}

// Challenge is safe for concurrent use.
type Challenge struct {
	mu sync.Mutex

	id        string
	kind      Kind
	duration  time.Duration
	threshold int
	weight    float64

	startedAt time.Time
	endedAt   time.Time
	samples   int
	hits      int
	smileSum  float64
}

// NewChallenge starts a challenge at now.
func NewChallenge(id string, kind Kind, now time.Time, opts ...Option) (*Challenge, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	c := &Challenge{
		id:        id,
		kind:      kind,
		duration:  defaultDuration,
		threshold: defaultThreshold,
		weight:    defaultWeight,
		startedAt: now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Observe folds one sample in. It returns false once the challenge is over;
// samples after the deadline are ignored.
func (c *Challenge) Observe(m model.DerivedMetrics, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.activeAt(now) {
		c.finish(now)
		return false
	}
	if !m.FaceDetected {
		return true
	}
	c.samples++
	switch c.kind {
	case KindSmile:
		if m.SmilePercentage >= c.threshold {
			c.hits++
			c.smileSum += float64(m.SmilePercentage)
		}
	case KindSurprise:
		if m.Emotion == model.EmotionSurprised && m.EmotionConfidence >= c.threshold {
			c.hits++
		}
	case KindBlink:
		if m.BlinkDetected {
			c.hits++
		}
	}
	return true
}

// Finish ends the challenge early and returns the result.
func (c *Challenge) Finish(now time.Time) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish(now)
	return c.result(now)
}

// Result returns the current result without ending the challenge.
func (c *Challenge) Result(now time.Time) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.activeAt(now) {
		c.finish(now)
	}
	return c.result(now)
}

// Kind returns the challenge kind.
func (c *Challenge) Kind() Kind { return c.kind }

func (c *Challenge) activeAt(now time.Time) bool {
	return c.endedAt.IsZero() && now.Sub(c.startedAt) < c.duration
}

func (c *Challenge) finish(now time.Time) {
	if !c.endedAt.IsZero() {
		return
	}
	deadline := c.startedAt.Add(c.duration)
	if now.After(deadline) {
		now = deadline
	}
	c.endedAt = now
}

func (c *Challenge) result(now time.Time) Result {
	end := now
	if !c.endedAt.IsZero() {
		end = c.endedAt
	}
	return Result{
		ID:       c.id,
		Kind:     c.kind,
		Score:    c.score(),
		Samples:  c.samples,
		Hits:     c.hits,
		Active:   c.endedAt.IsZero(),
		Elapsed:  math.Round(end.Sub(c.startedAt).Seconds()*10) / 10,
		Duration: c.duration.Seconds(),
	}
}

// score normalises the raw tally to [0,100] and applies the kind weight:
// smile is the sum of qualifying smiles over all samples, surprise is the
// share of surprised samples, blink awards a fixed amount per blink.
func (c *Challenge) score() float64 {
	var raw float64
	switch c.kind {
	case KindSmile:
		if c.samples > 0 {
			raw = c.smileSum / float64(c.samples)
		}
	case KindSurprise:
		if c.samples > 0 {
			raw = float64(c.hits) / float64(c.samples) * 100
		}
	case KindBlink:
		raw = float64(c.hits * blinkPoints)
	}
	score := math.Max(0, math.Min(maxScoreValue, raw*c.weight))
	return math.Round(score*10) / 10
}
