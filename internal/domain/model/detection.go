// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"time"
)

// LandmarkCount is the number of points in the 68-point face model.
const LandmarkCount = 68

// Landmark indices of the 68-point model.
const (
	JawLeft          = 0
	JawRight         = 16
	NoseTip          = 30
	LeftEyeStart     = 36
	RightEyeStart    = 42
	MouthLeft        = 48
	MouthRight       = 54
	InnerMouthTop    = 62
	InnerMouthBottom = 66
)

// Point is a 2D landmark position in frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Box is the detected face bounding box.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one frame's output of the client-side detector.
// Expressions maps the detector's labels (happy, sad, neutral, surprised,
// angry, fearful, disgusted) to probabilities in [0,1].
type Detection struct {
	FaceDetected bool               `json:"face_detected"`
	Box          Box                `json:"box"`
	Landmarks    []Point            `json:"landmarks,omitempty"`
	Expressions  map[string]float64 `json:"expressions,omitempty"`
	Age          float64            `json:"age,omitempty"`
	Gender       string             `json:"gender,omitempty"`
	CapturedAt   time.Time          `json:"captured_at"`
}

// Validate checks a face-present detection carries a full landmark set and
// sane probabilities. A no-face detection is always valid.
func (d *Detection) Validate() error {
	if d == nil || !d.FaceDetected {
		return nil
	}
	if len(d.Landmarks) != LandmarkCount {
		return fmt.Errorf("%w: got %d landmarks, want %d", ErrInvalidDetection, len(d.Landmarks), LandmarkCount)
	}
	for label, p := range d.Expressions {
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: expression %q probability %v out of range", ErrInvalidDetection, label, p)
		}
	}
	if d.Age < 0 {
		return fmt.Errorf("%w: negative age", ErrInvalidDetection)
	}
	return nil
}
