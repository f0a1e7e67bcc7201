package analysis

import (
	"math"
	"time"

	"github.com/okian/facepulse/internal/domain/model"
)

// Option configures a Deriver.
type Option func(*Deriver)

// WithHappyWeight sets the classifier share of the smile score.
func WithHappyWeight(w float64) Option {
	return func(d *Deriver) {
		if w >= 0 && w <= 1 {
			d.happyWeight = w
		}
	}
}

// WithEARThreshold sets the closed-eye threshold.
func WithEARThreshold(t float64) Option {
	return func(d *Deriver) {
		if t > 0 {
			d.earThreshold = t
		}
	}
}

// WithHeadPoseThreshold sets the left/right offset threshold in percent.
func WithHeadPoseThreshold(t float64) Option {
	return func(d *Deriver) {
		if t > 0 {
			d.headThreshold = t
		}
	}
}

// WithMinClosedFrames sets how many closed samples a blink needs.
func WithMinClosedFrames(n int) Option {
	return func(d *Deriver) {
		if n > 0 {
			d.minClosed = n
		}
	}
}

// Deriver turns a stream of detections into DerivedMetrics.
type Deriver struct {
	happyWeight   float64
	earThreshold  float64
	headThreshold float64
	minClosed     int

	blinks *BlinkCounter
}

// NewDeriver creates a Deriver with defaults overridden by opts.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		happyWeight:   DefaultHappyWeight,
		earThreshold:  DefaultEARThreshold,
		headThreshold: DefaultHeadPoseThreshold,
		minClosed:     DefaultMinClosedFrames,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.blinks = NewBlinkCounter(d.earThreshold, d.minClosed)
	return d
}

// Derive computes the metrics for one detection. A nil or face-absent
// detection yields the no-face result and leaves the blink state alone.
// Results carry the detection's capture time; now is used only when the
// detection has none, so face and no-face samples share one clock.
func (d *Deriver) Derive(det *model.Detection, now time.Time) model.DerivedMetrics {
	at := now
	if det != nil && !det.CapturedAt.IsZero() {
		at = det.CapturedAt
	}
	if det == nil || !det.FaceDetected || len(det.Landmarks) != model.LandmarkCount {
		return model.NoFace(at, d.blinks.Count())
	}

	emotion, confidence := DominantEmotion(det.Expressions)
	ear := AverageEAR(det.Landmarks)
	blinked := d.blinks.Observe(ear)

	return model.DerivedMetrics{
		SmilePercentage:   SmileScore(det.Landmarks, det.Expressions["happy"], d.happyWeight),
		Emotion:           emotion,
		EmotionConfidence: confidence,
		HeadPose:          BucketHeadPose(HeadOffset(det.Landmarks), d.headThreshold),
		BlinkDetected:     blinked,
		BlinkCount:        d.blinks.Count(),
		FaceDetected:      true,
		Age:               int(math.Round(det.Age)),
		EAR:               math.Round(ear*1000) / 1000,
		At:                at,
	}
}

// BlinkCount returns the blinks counted so far.
func (d *Deriver) BlinkCount() int {
	return d.blinks.Count()
}

// Reset clears the blink state.
func (d *Deriver) Reset() {
	d.blinks.Reset()
}
