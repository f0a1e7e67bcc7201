// Package theme maps detected emotions to UI colours and distributes live
// updates to subscribers.
package theme

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/okian/facepulse/internal/domain/model"
)

var palette = map[model.Emotion]colorful.Color{
	model.EmotionHappy:     MustHex("#f5b700"),
	model.EmotionSad:       MustHex("#3b6fd8"),
	model.EmotionNeutral:   MustHex("#8a94a6"),
	model.EmotionSurprised: MustHex("#c04fd8"),
	model.EmotionAngry:     MustHex("#e0393e"),
}

var (
	base     = MustHex("#1f2430")
	lightBg  = MustHex("#f7f8fa")
	fallback = palette[model.EmotionNeutral]
)

// MustHex parses a #rrggbb colour and panics on malformed input. It is
// meant for package-level palette literals.
func MustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Theme is the colour set a client applies for the current emotion.
type Theme struct {
	Emotion    model.Emotion `json:"emotion"`
	Primary    string        `json:"primary"`
	Accent     string        `json:"accent"`
	Background string        `json:"background"`
	Intensity  float64       `json:"intensity"`
}

// Color returns the palette colour of e.
func Color(e model.Emotion) colorful.Color {
	if c, ok := palette[e]; ok {
		return c
	}
	return fallback
}

// ForMetrics blends from the base colour toward the emotion colour by the
// emotion confidence. Without a face the neutral theme at zero intensity
// is returned.
func ForMetrics(m model.DerivedMetrics) Theme {
	e := m.Emotion
	intensity := 0.0
	if m.FaceDetected {
		intensity = math.Max(0, math.Min(1, float64(m.EmotionConfidence)/100))
	} else {
		e = model.EmotionNeutral
	}
	c := Color(e)
	primary := base.BlendLab(c, intensity).Clamped()
	accent := c.BlendHcl(colorful.Color{R: 1, G: 1, B: 1}, 0.35).Clamped()
	bg := lightBg.BlendLab(c, 0.12*intensity).Clamped()

	return Theme{
		Emotion:    e,
		Primary:    primary.Hex(),
		Accent:     accent.Hex(),
		Background: bg.Hex(),
		Intensity:  math.Round(intensity*100) / 100,
	}
}
