package analysis

import (
	"math"
	"sort"

	"github.com/okian/facepulse/internal/domain/model"
)

// expressionMap folds the detector's seven labels into the five emotions.
var expressionMap = map[string]model.Emotion{
	"happy":     model.EmotionHappy,
	"sad":       model.EmotionSad,
	"neutral":   model.EmotionNeutral,
	"surprised": model.EmotionSurprised,
	"angry":     model.EmotionAngry,
	"fearful":   model.EmotionSad,
	"disgusted": model.EmotionAngry,
}

// DominantEmotion picks the highest-probability known label and maps it.
// Confidence is that probability scaled to 0-100. Unknown labels are
// ignored; an empty map yields neutral with zero confidence. Ties resolve
// by label name so the result is deterministic.
func DominantEmotion(expressions map[string]float64) (model.Emotion, int) {
	labels := make([]string, 0, len(expressions))
	for label := range expressions {
		if _, ok := expressionMap[label]; ok {
			labels = append(labels, label)
		}
	}
	if len(labels) == 0 {
		return model.EmotionNeutral, 0
	}
	sort.Strings(labels)

	best := labels[0]
	for _, label := range labels[1:] {
		if expressions[label] > expressions[best] {
			best = label
		}
	}
	confidence := int(math.Round(clamp(expressions[best], 0, 1) * 100))
	return expressionMap[best], confidence
}
