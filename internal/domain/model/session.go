package model

import "time"

// Session is a recording window owning zero or more captured moments.
type Session struct {
	ID              string     `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
	BlinkCount      int        `json:"blink_count"`
	CaptureCount    int        `json:"capture_count"`
}

// Active reports whether the session has not been ended yet.
func (s Session) Active() bool {
	return s.EndedAt == nil
}

// CapturedMoment is a persisted metric snapshot taken when the capture gate
// fires. ImageURL is empty when the frame upload failed.
type CapturedMoment struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"session_id"`
	Metrics     DerivedMetrics     `json:"metrics"`
	ImageURL    string             `json:"image_url,omitempty"`
	CapturedAt  time.Time          `json:"captured_at"`
	Expressions map[string]float64 `json:"expressions,omitempty"`
}

// LeaderboardEntry is a denormalized copy of a high-smile moment.
type LeaderboardEntry struct {
	ID              string    `json:"id"`
	MomentID        string    `json:"moment_id"`
	SessionID       string    `json:"session_id"`
	PlayerName      string    `json:"player_name"`
	SmilePercentage int       `json:"smile_percentage"`
	Emotion         Emotion   `json:"emotion"`
	ImageURL        string    `json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// TimeCapsule is a named recording window whose moments become a collage.
type TimeCapsule struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	StartedAt time.Time  `json:"started_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// CapsuleEvent is one moment captured inside a time capsule.
type CapsuleEvent struct {
	ID              string    `json:"id"`
	CapsuleID       string    `json:"capsule_id"`
	Prompt          string    `json:"prompt,omitempty"`
	Emotion         Emotion   `json:"emotion"`
	SmilePercentage int       `json:"smile_percentage"`
	ImageURL        string    `json:"image_url,omitempty"`
	CapturedAt      time.Time `json:"captured_at"`
}

// ShareRecord points at a composed image stored in the bucket.
type ShareRecord struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"image_url"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
