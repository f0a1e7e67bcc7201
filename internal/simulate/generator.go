package simulate

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"math/rand/v2"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/okian/facepulse/internal/domain/analysis"
	"github.com/okian/facepulse/internal/domain/model"
)

const (
	frameWidth  = 32
	frameHeight = 24

	openEAR   = 0.30
	closedEAR = 0.12
	restMouth = 0.05
	grinMouth = 0.75
	blinkStep = 7
)

// Generator produces deterministic sessions and score submissions from a seed.
type Generator struct {
	rng   *rand.Rand
	runID string
}

// NewGenerator returns a generator. The same seed yields the same data;
// the run ID keeps player IDs of separate runs apart.
func NewGenerator(seed uint64, runID string) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), runID: runID}
}

// Frame is one detection with its optional encoded image.
type Frame struct {
	Detection model.Detection `json:"detection"`
	Image     string          `json:"image,omitempty"`
}

// Script builds the detections of one session: a neutral face warming up
// into a full smile, with periodic blinks and a short stretch without a face.
func (g *Generator) Script(frames int, start time.Time) ([]Frame, error) {
	out := make([]Frame, 0, frames)
	absentAt := frames * 3 / 5
	for i := range frames {
		at := start.Add(time.Duration(i) * frameInterval)
		if frames > 10 && (i == absentAt || i == absentAt+1) {
			out = append(out, Frame{Detection: model.Detection{CapturedAt: at}})
			continue
		}

		progress := float64(i) / float64(max(frames-1, 1))
		smile := math.Max(0, (progress-0.25)/0.75)
		ear := openEAR
		if i%blinkStep == blinkStep-1 {
			ear = closedEAR
		}
		face := analysis.Face{
			EAR:        ear,
			MouthRatio: restMouth + smile*(grinMouth-restMouth),
			HeadOffset: (g.rng.Float64() - 0.5) * 10,
		}
		happy := math.Min(0.99, 0.05+smile)
		det := model.Detection{
			FaceDetected: true,
			Box:          model.Box{X: 100, Y: 80, Width: 200, Height: 220},
			Landmarks:    analysis.Synthesize(face),
			Expressions: map[string]float64{
				string(model.EmotionHappy):   happy,
				string(model.EmotionNeutral): math.Max(0.01, 0.9-smile),
				string(model.EmotionSad):     0.01 + g.rng.Float64()*0.02,
			},
			Age:        25 + g.rng.Float64()*10,
			CapturedAt: at,
		}

		f := Frame{Detection: det}
		if smile > 0.5 {
			img, err := g.image(smile)
			if err != nil {
				return nil, err
			}
			f.Image = img
		}
		out = append(out, f)
	}
	return out, nil
}

// image renders a small solid frame tinted by the smile level.
func (g *Generator) image(smile float64) (string, error) {
	tint := colorful.Hsv(30+smile*30, 0.6, 0.9)
	r, gr, b := tint.RGB255()
	img := imaging.New(frameWidth, frameHeight, color.NRGBA{R: r, G: gr, B: b, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return dataURL("image/png", buf.Bytes()), nil
}

// PlayerID names the i-th player of this run.
func (g *Generator) PlayerID(i int) string {
	return fmt.Sprintf("sim-%s-p%03d", g.runID, i)
}

// Scores generates perPlayer submissions for each player. Scores carry one
// decimal so ties between players are common.
func (g *Generator) Scores(players, perPlayer int) []Submission {
	games := []string{"smile_challenge", "reaction"}
	out := make([]Submission, 0, players*perPlayer)
	for p := range players {
		for range perPlayer {
			out = append(out, Submission{
				SubmissionID: uuid.NewString(),
				PlayerID:     g.PlayerID(p),
				PlayerName:   fmt.Sprintf("Player %d", p),
				Game:         games[g.rng.IntN(len(games))],
				Score:        math.Round(g.rng.Float64()*percentage*10) / 10,
			})
		}
	}
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// BestScores returns the best score per player.
func BestScores(subs []Submission) map[string]float64 {
	best := make(map[string]float64)
	for _, s := range subs {
		if cur, ok := best[s.PlayerID]; !ok || s.Score > cur {
			best[s.PlayerID] = s.Score
		}
	}
	return best
}
