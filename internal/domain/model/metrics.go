package model

import (
	"fmt"
	"time"
)

// Emotion is the five-value label used throughout the product.
type Emotion string

// Emotion values.
const (
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionNeutral   Emotion = "neutral"
	EmotionSurprised Emotion = "surprised"
	EmotionAngry     Emotion = "angry"
)

var emojis = map[Emotion]string{
	EmotionHappy:     "😊",
	EmotionSad:       "😢",
	EmotionNeutral:   "😐",
	EmotionSurprised: "😮",
	EmotionAngry:     "😠",
}

// Emotions lists every emotion in display order.
func Emotions() []Emotion {
	return []Emotion{EmotionHappy, EmotionSad, EmotionNeutral, EmotionSurprised, EmotionAngry}
}

// ParseEmotion validates s as one of the five emotions.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(s)
	if _, ok := emojis[e]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEmotion, s)
	}
	return e, nil
}

// Emoji returns the badge glyph for e.
func (e Emotion) Emoji() string {
	return emojis[e]
}

// HeadPose buckets horizontal head rotation.
type HeadPose string

// HeadPose values.
const (
	HeadLeft   HeadPose = "left"
	HeadCenter HeadPose = "center"
	HeadRight  HeadPose = "right"
)

// DerivedMetrics is recomputed for every detection.
type DerivedMetrics struct {
	SmilePercentage   int       `json:"smile_percentage"`
	Emotion           Emotion   `json:"emotion"`
	EmotionConfidence int       `json:"emotion_confidence"`
	HeadPose          HeadPose  `json:"head_pose"`
	BlinkDetected     bool      `json:"blink_detected"`
	BlinkCount        int       `json:"blink_count"`
	FaceDetected      bool      `json:"face_detected"`
	Age               int       `json:"age,omitempty"`
	EAR               float64   `json:"ear,omitempty"`
	At                time.Time `json:"at"`
}

// NoFace returns the all-zero result emitted when nothing was detected.
func NoFace(at time.Time, blinks int) DerivedMetrics {
	return DerivedMetrics{
		Emotion:    EmotionNeutral,
		HeadPose:   HeadCenter,
		BlinkCount: blinks,
		At:         at,
	}
}
