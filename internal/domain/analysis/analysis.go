// Package analysis derives face metrics from raw landmark detections.
//
// All functions are pure except BlinkCounter and Deriver, which carry the
// per-stream blink state. Nothing here is safe for concurrent use by more
// than one stream; each session owns its own Deriver.
package analysis

import (
	"math"

	"github.com/okian/facepulse/internal/domain/model"
)

// Default heuristic parameters.
const (
	DefaultHappyWeight       = 0.6
	DefaultEARThreshold      = 0.25
	DefaultHeadPoseThreshold = 10.0
	DefaultMinClosedFrames   = 1

	mouthRatioScale = 200.0
)

// SmileScore blends the classifier's happy probability with the mouth
// opening ratio. happyWeight is the share of the classifier term; the rest
// goes to geometry. The result is in [0,100].
func SmileScore(lm []model.Point, happy, happyWeight float64) int {
	geometric := 0.0
	if len(lm) == model.LandmarkCount {
		width := lm[model.MouthLeft].Dist(lm[model.MouthRight])
		if width > 0 {
			open := lm[model.InnerMouthTop].Dist(lm[model.InnerMouthBottom])
			geometric = clamp(open/width*mouthRatioScale, 0, 100)
		}
	}
	happy = clamp(happy, 0, 1)
	score := happyWeight*happy*100 + (1-happyWeight)*geometric
	return int(math.Round(clamp(score, 0, 100)))
}

// EyeAspectRatio computes EAR for one eye given its six points p1..p6.
// A degenerate eye with zero width returns 0.
func EyeAspectRatio(eye []model.Point) float64 {
	if len(eye) != 6 {
		return 0
	}
	horizontal := eye[0].Dist(eye[3])
	if horizontal == 0 {
		return 0
	}
	return (eye[1].Dist(eye[5]) + eye[2].Dist(eye[4])) / (2 * horizontal)
}

// AverageEAR averages the EAR of both eyes of a 68-point landmark set.
func AverageEAR(lm []model.Point) float64 {
	if len(lm) != model.LandmarkCount {
		return 0
	}
	left := EyeAspectRatio(lm[model.LeftEyeStart : model.LeftEyeStart+6])
	right := EyeAspectRatio(lm[model.RightEyeStart : model.RightEyeStart+6])
	return (left + right) / 2
}

// HeadOffset returns the nose tip's horizontal offset from the jaw midpoint
// as a percentage of jaw width. A non-positive jaw width yields 0.
func HeadOffset(lm []model.Point) float64 {
	if len(lm) != model.LandmarkCount {
		return 0
	}
	jawL, jawR := lm[model.JawLeft], lm[model.JawRight]
	width := jawR.X - jawL.X
	if width <= 0 {
		return 0
	}
	mid := (jawL.X + jawR.X) / 2
	return (lm[model.NoseTip].X - mid) / width * 100
}

// BucketHeadPose maps an offset percentage to a pose. The threshold is
// exclusive: an offset of exactly ±threshold is center.
func BucketHeadPose(offset, threshold float64) model.HeadPose {
	switch {
	case offset > threshold:
		return model.HeadRight
	case offset < -threshold:
		return model.HeadLeft
	default:
		return model.HeadCenter
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
