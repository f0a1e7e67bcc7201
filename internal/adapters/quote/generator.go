package quote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/okian/facepulse/internal/domain/model"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Generator produces one quote for an emotion and smile level.
type Generator interface {
	Generate(ctx context.Context, e model.Emotion, smile int) (string, error)
}

// OpenAIGenerator asks a chat completion model for a quote.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator builds a generator. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAIGenerator(apiKey, baseURL, modelName string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: modelName}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, e model.Emotion, smile int) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write one short, warm, original quote (max 20 words) for a photo booth. No hashtags, no quotation marks.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("The person looks %s %s with a smile score of %d out of 100.", e, e.Emoji(), smile),
			},
		},
		MaxTokens:   60,
		Temperature: 0.9,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.Trim(strings.TrimSpace(resp.Choices[0].Message.Content), `"“”`)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

var builtin = map[model.Emotion][]string{
	model.EmotionHappy: {
		"Joy looks good on you.",
		"That smile could light up a whole city block.",
		"Happiness is contagious and you just spread it.",
		"Keep shining, the world needs that grin.",
	},
	model.EmotionSad: {
		"Even the cloudiest day ends with a sunset.",
		"It is okay to feel it. Brighter frames are coming.",
		"Every storm runs out of rain.",
		"A small smile is still a smile.",
	},
	model.EmotionNeutral: {
		"Calm and collected, the quiet kind of cool.",
		"A steady face hides a world of stories.",
		"Poker face level: expert.",
		"Still waters, deep thoughts.",
	},
	model.EmotionSurprised: {
		"Plot twist! Life loves a good surprise.",
		"Wide eyes, open mind.",
		"Some moments deserve a gasp.",
		"Surprise looks like the start of an adventure.",
	},
	model.EmotionAngry: {
		"Breathe in, count to ten, then conquer.",
		"Fierce is a good look, use it wisely.",
		"Turn that fire into fuel.",
		"Storm face activated. Handle with care.",
	},
}

// StaticGenerator picks a quote from a built-in table. It never fails and
// always returns the same quote for the same input.
type StaticGenerator struct{}

// Generate implements Generator.
func (StaticGenerator) Generate(_ context.Context, e model.Emotion, smile int) (string, error) {
	quotes, ok := builtin[e]
	if !ok {
		quotes = builtin[model.EmotionNeutral]
	}
	return quotes[smileBucket(smile)%len(quotes)], nil
}

// smileBucket folds 0..100 into four bands.
func smileBucket(smile int) int {
	switch {
	case smile < 25:
		return 0
	case smile < 50:
		return 1
	case smile < 75:
		return 2
	default:
		return 3
	}
}
