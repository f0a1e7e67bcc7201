package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/facepulse/internal/domain/analysis"
	"github.com/okian/facepulse/internal/domain/gate"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/theme"
	"github.com/okian/facepulse/pkg/metrics"
)

// OutcomeKind tags a capture result.
type OutcomeKind string

// Capture outcomes.
const (
	// OutcomeSaved means the moment row was written.
	OutcomeSaved OutcomeKind = "saved"
	// OutcomeLocal means the write failed and the moment exists only in
	// this response.
	OutcomeLocal OutcomeKind = "local"
)

// Outcome is the result of one capture.
type Outcome struct {
	Kind   OutcomeKind          `json:"kind"`
	Moment model.CapturedMoment `json:"moment"`
	Reason string               `json:"reason,omitempty"`
}

// Saved reports whether the moment was persisted.
func (o Outcome) Saved() bool { return o.Kind == OutcomeSaved }

// FrameResult is what processing one detection produced.
type FrameResult struct {
	Metrics      model.DerivedMetrics `json:"metrics"`
	Theme        theme.Theme          `json:"theme"`
	Decision     gate.Decision        `json:"decision"`
	Capture      *Outcome             `json:"capture,omitempty"`
	AbsenceFired bool                 `json:"absence_fired"`
	// Dropped is set when another detection of the same session was still
	// being processed; nothing else is filled in.
	Dropped bool `json:"dropped,omitempty"`
}

// momentPersister stores a fired capture.
type momentPersister interface {
	persistMoment(ctx context.Context, t *Tracker, m model.DerivedMetrics, det *model.Detection, frame []byte) Outcome
}

// Tracker holds the per-session analysis state: blink counter, capture
// gate and absence timer. Process calls for one session never overlap; a
// call that arrives while another is running is dropped.
type Tracker struct {
	sessionID  string
	playerName string

	deriver *analysis.Deriver
	gate    *gate.CaptureGate
	absence *gate.AbsenceTimer

	analyzing atomic.Bool
	captures  atomic.Int64

	persister momentPersister
	bus       *theme.Bus

	mu   sync.Mutex
	last model.DerivedMetrics
	live *liveStream
}

// SessionID returns the tracked session.
func (t *Tracker) SessionID() string { return t.sessionID }

// Captures returns how many captures fired so far.
func (t *Tracker) Captures() int { return int(t.captures.Load()) }

// Blinks returns the blink count so far.
func (t *Tracker) Blinks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deriver.BlinkCount()
}

// Last returns the most recent metrics.
func (t *Tracker) Last() model.DerivedMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Process derives the metrics for det, runs the capture gate and the
// absence timer, persists a capture when the gate fires and publishes the
// update to live subscribers. frame is the still image for the capture and
// may be empty.
func (t *Tracker) Process(ctx context.Context, det *model.Detection, frame []byte, now time.Time) FrameResult {
	if !t.analyzing.CompareAndSwap(false, true) {
		metrics.RecordTickDropped()
		return FrameResult{Dropped: true}
	}
	defer t.analyzing.Store(false)

	start := time.Now()
	t.mu.Lock()
	m := t.deriver.Derive(det, now)
	at := m.At
	decision := t.gate.Observe(m, at)
	absent := t.absence.Observe(m.FaceDetected, at)
	t.last = m
	t.mu.Unlock()
	metrics.RecordDeriveLatency(float64(time.Since(start).Microseconds()) / 1000)

	if m.FaceDetected {
		metrics.RecordDetection("face")
	} else {
		metrics.RecordDetection("no_face")
	}
	if m.BlinkDetected {
		metrics.RecordBlink()
	}
	metrics.RecordGateDecision(string(decision.Reason))
	if absent {
		metrics.RecordAbsence()
	}

	res := FrameResult{
		Metrics:      m,
		Theme:        theme.ForMetrics(m),
		Decision:     decision,
		AbsenceFired: absent,
	}
	if decision.Fire {
		out := t.persister.persistMoment(ctx, t, m, det, frame)
		t.captures.Add(1)
		res.Capture = &out
	}

	update := theme.Update{
		SessionID: t.sessionID,
		Metrics:   m,
		Theme:     res.Theme,
		Absence:   absent,
	}
	if res.Capture != nil {
		update.Capture = &theme.CaptureInfo{
			MomentID: res.Capture.Moment.ID,
			Emotion:  res.Capture.Moment.Metrics.Emotion,
			ImageURL: res.Capture.Moment.ImageURL,
			Saved:    res.Capture.Saved(),
		}
	}
	t.bus.Publish(update)
	return res
}
