package datastore

import (
	"time"

	"gorm.io/datatypes"

	"github.com/okian/facepulse/internal/domain/model"
)

// Table names, shared by the row types and SetupStatus.
const (
	tableSessions      = "sessions"
	tableMoments       = "moments"
	tableLeaderboard   = "leaderboard_entries"
	tableCapsules      = "capsules"
	tableCapsuleEvents = "capsule_events"
	tableScores        = "score_records"
	tableShares        = "share_records"
)

// Tables lists every table the service needs.
func Tables() []string {
	return []string{
		tableSessions, tableMoments, tableLeaderboard, tableCapsules,
		tableCapsuleEvents, tableScores, tableShares,
	}
}

type sessionRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	BlinkCount      int
	CaptureCount    int
}

func (sessionRow) TableName() string { return tableSessions }

func (r sessionRow) toModel() model.Session {
	return model.Session{
		ID:              r.ID,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
		DurationSeconds: r.DurationSeconds,
		BlinkCount:      r.BlinkCount,
		CaptureCount:    r.CaptureCount,
	}
}

type momentRow struct {
	ID                string `gorm:"primaryKey;size:36"`
	SessionID         string `gorm:"index;size:36"`
	SmilePercentage   int
	Emotion           string `gorm:"size:16"`
	EmotionConfidence int
	HeadPose          string `gorm:"size:8"`
	BlinkCount        int
	ImageURL          string
	Metrics           datatypes.JSONType[model.DerivedMetrics]
	Expressions       datatypes.JSONMap
	CapturedAt        time.Time `gorm:"index"`
}

func (momentRow) TableName() string { return tableMoments }

func newMomentRow(m model.CapturedMoment) momentRow {
	expr := make(datatypes.JSONMap, len(m.Expressions))
	for k, v := range m.Expressions {
		expr[k] = v
	}
	return momentRow{
		ID:                m.ID,
		SessionID:         m.SessionID,
		SmilePercentage:   m.Metrics.SmilePercentage,
		Emotion:           string(m.Metrics.Emotion),
		EmotionConfidence: m.Metrics.EmotionConfidence,
		HeadPose:          string(m.Metrics.HeadPose),
		BlinkCount:        m.Metrics.BlinkCount,
		ImageURL:          m.ImageURL,
		Metrics:           datatypes.NewJSONType(m.Metrics),
		Expressions:       expr,
		CapturedAt:        m.CapturedAt,
	}
}

func (r momentRow) toModel() model.CapturedMoment {
	var expr map[string]float64
	if len(r.Expressions) > 0 {
		expr = make(map[string]float64, len(r.Expressions))
		for k, v := range r.Expressions {
			if f, ok := v.(float64); ok {
				expr[k] = f
			}
		}
	}
	return model.CapturedMoment{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Metrics:     r.Metrics.Data(),
		ImageURL:    r.ImageURL,
		CapturedAt:  r.CapturedAt,
		Expressions: expr,
	}
}

type leaderboardRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	MomentID        string `gorm:"uniqueIndex;size:36"`
	SessionID       string `gorm:"index;size:36"`
	PlayerName      string
	SmilePercentage int    `gorm:"index"`
	Emotion         string `gorm:"size:16"`
	ImageURL        string
	CreatedAt       time.Time
}

func (leaderboardRow) TableName() string { return tableLeaderboard }

func (r leaderboardRow) toModel() model.LeaderboardEntry {
	return model.LeaderboardEntry{
		ID:              r.ID,
		MomentID:        r.MomentID,
		SessionID:       r.SessionID,
		PlayerName:      r.PlayerName,
		SmilePercentage: r.SmilePercentage,
		Emotion:         model.Emotion(r.Emotion),
		ImageURL:        r.ImageURL,
		CreatedAt:       r.CreatedAt,
	}
}

type capsuleRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string
	Slug      string `gorm:"index"`
	StartedAt time.Time
	ClosedAt  *time.Time
}

func (capsuleRow) TableName() string { return tableCapsules }

func (r capsuleRow) toModel() model.TimeCapsule {
	return model.TimeCapsule{ID: r.ID, Name: r.Name, Slug: r.Slug, StartedAt: r.StartedAt, ClosedAt: r.ClosedAt}
}

type capsuleEventRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	CapsuleID       string `gorm:"index;size:36"`
	Prompt          string
	Emotion         string `gorm:"size:16"`
	SmilePercentage int
	ImageURL        string
	CapturedAt      time.Time `gorm:"index"`
}

func (capsuleEventRow) TableName() string { return tableCapsuleEvents }

func (r capsuleEventRow) toModel() model.CapsuleEvent {
	return model.CapsuleEvent{
		ID:              r.ID,
		CapsuleID:       r.CapsuleID,
		Prompt:          r.Prompt,
		Emotion:         model.Emotion(r.Emotion),
		SmilePercentage: r.SmilePercentage,
		ImageURL:        r.ImageURL,
		CapturedAt:      r.CapturedAt,
	}
}

type scoreRow struct {
	SubmissionID string `gorm:"primaryKey;size:64"`
	PlayerID     string `gorm:"index;size:64"`
	PlayerName   string
	Game         string `gorm:"size:32"`
	Score        float64
	SubmittedAt  time.Time
}

func (scoreRow) TableName() string { return tableScores }

type shareRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	ImageURL  string
	Title     string
	CreatedAt time.Time
}

func (shareRow) TableName() string { return tableShares }

func (r shareRow) toModel() model.ShareRecord {
	return model.ShareRecord{ID: r.ID, ImageURL: r.ImageURL, Title: r.Title, CreatedAt: r.CreatedAt}
}
