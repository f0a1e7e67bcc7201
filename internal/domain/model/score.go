package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ScoreSubmission is a game result posted by a client.
// SubmissionID makes retries idempotent.
type ScoreSubmission struct {
	SubmissionID string    `json:"submission_id"`
	PlayerID     string    `json:"player_id"`
	PlayerName   string    `json:"player_name,omitempty"`
	Game         string    `json:"game"`
	Score        float64   `json:"score"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Validate checks required fields and the score range.
func (s *ScoreSubmission) Validate() error {
	switch {
	case strings.TrimSpace(s.SubmissionID) == "":
		return fmt.Errorf("%w: submission_id is required", ErrInvalidScore)
	case strings.TrimSpace(s.PlayerID) == "":
		return fmt.Errorf("%w: player_id is required", ErrInvalidScore)
	case math.IsNaN(s.Score) || math.IsInf(s.Score, 0) || s.Score < 0:
		return fmt.Errorf("%w: score must be a non-negative number", ErrInvalidScore)
	}
	return nil
}

// JobKind selects what a worker does with a Job.
type JobKind string

// Job kinds.
const (
	// JobScore updates the ranking and records the score row.
	JobScore JobKind = "score"
	// JobPromotion copies a high-smile moment onto the leaderboard.
	JobPromotion JobKind = "promotion"
)

// Job is the unit handed from the API to the worker pool.
// Exactly one payload is set, matching Kind.
type Job struct {
	Kind      JobKind
	Score     *ScoreSubmission
	Promotion *LeaderboardEntry
}

// ID returns an identifier for logging.
func (j Job) ID() string {
	switch {
	case j.Kind == JobScore && j.Score != nil:
		return j.Score.SubmissionID
	case j.Kind == JobPromotion && j.Promotion != nil:
		return j.Promotion.MomentID
	}
	return ""
}
