package analysis

import "github.com/okian/facepulse/internal/domain/model"

// Face describes a synthetic frontal face for simulations and fixtures.
type Face struct {
	// EAR is the eye aspect ratio applied to both eyes.
	EAR float64
	// MouthRatio is inner-mouth height divided by mouth width.
	MouthRatio float64
	// HeadOffset is the nose offset from the jaw midpoint in percent of jaw width.
	HeadOffset float64
}

// Synthesize builds a 68-point landmark set whose derived ratios match f.
// The face spans x in [0,200] with the jaw corners at y=100.
func Synthesize(f Face) []model.Point {
	const (
		jawWidth   = 200.0
		eyeWidth   = 40.0
		mouthWidth = 80.0
	)
	lm := make([]model.Point, model.LandmarkCount)

	for i := model.JawLeft; i <= model.JawRight; i++ {
		x := float64(i) / float64(model.JawRight) * jawWidth
		lm[i] = model.Point{X: x, Y: 100 + 80*(1-abs(x-100)/100)}
	}
	for i := 17; i <= 26; i++ {
		lm[i] = model.Point{X: 40 + float64(i-17)*13, Y: 60}
	}
	noseX := jawWidth/2 + f.HeadOffset/100*jawWidth
	for i := 27; i <= 35; i++ {
		lm[i] = model.Point{X: noseX, Y: 80 + float64(i-27)*5}
	}

	eye := func(start int, cx float64) {
		v := f.EAR * eyeWidth
		lm[start+0] = model.Point{X: cx - eyeWidth/2, Y: 80}
		lm[start+1] = model.Point{X: cx - 7, Y: 80 - v/2}
		lm[start+2] = model.Point{X: cx + 7, Y: 80 - v/2}
		lm[start+3] = model.Point{X: cx + eyeWidth/2, Y: 80}
		lm[start+4] = model.Point{X: cx + 7, Y: 80 + v/2}
		lm[start+5] = model.Point{X: cx - 7, Y: 80 + v/2}
	}
	eye(model.LeftEyeStart, 60)
	eye(model.RightEyeStart, 140)

	for i := model.MouthLeft; i <= 67; i++ {
		lm[i] = model.Point{X: 100, Y: 150}
	}
	lm[model.MouthLeft] = model.Point{X: 100 - mouthWidth/2, Y: 150}
	lm[model.MouthRight] = model.Point{X: 100 + mouthWidth/2, Y: 150}
	h := f.MouthRatio * mouthWidth
	lm[model.InnerMouthTop] = model.Point{X: 100, Y: 150 - h/2}
	lm[model.InnerMouthBottom] = model.Point{X: 100, Y: 150 + h/2}
	return lm
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
