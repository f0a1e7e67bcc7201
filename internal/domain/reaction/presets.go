package reaction

import (
	"math/rand/v2"

	"github.com/okian/facepulse/internal/domain/model"
)

// Kind names a flow preset.
type Kind string

// Flow kinds.
const (
	KindEmojiReaction Kind = "emoji_reaction"
	KindTimeCapsule   Kind = "time_capsule"
)

// Round is one target the player has to match.
type Round struct {
	Target   model.Emotion `json:"target"`
	Emoji    string        `json:"emoji"`
	Prompt   string        `json:"prompt,omitempty"`
	Points   int           `json:"points"`
	ImageURL string        `json:"image_url,omitempty"`
	Done     bool          `json:"done"`
}

// EmojiRounds draws n targets from the emotion set. Consecutive rounds never
// repeat the same target.
func EmojiRounds(n int, rng *rand.Rand) []Round {
	emotions := model.Emotions()
	rounds := make([]Round, 0, n)
	var prev model.Emotion
	for len(rounds) < n {
		e := emotions[rng.IntN(len(emotions))]
		if e == prev {
			continue
		}
		prev = e
		rounds = append(rounds, Round{Target: e, Emoji: e.Emoji()})
	}
	return rounds
}

var capsulePrompts = []struct {
	emotion model.Emotion
	prompt  string
}{
	{model.EmotionHappy, "Show your happiest smile"},
	{model.EmotionSurprised, "What would surprise you most?"},
	{model.EmotionNeutral, "Your calmest face"},
	{model.EmotionSad, "Remember something you miss"},
	{model.EmotionAngry, "Your best grumpy look"},
}

// CapsuleRounds returns the fixed time-capsule prompt list.
func CapsuleRounds() []Round {
	rounds := make([]Round, len(capsulePrompts))
	for i, p := range capsulePrompts {
		rounds[i] = Round{Target: p.emotion, Emoji: p.emotion.Emoji(), Prompt: p.prompt}
	}
	return rounds
}
