package datastore

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	require.NoError(t, logger.Init(logger.WithWriter(io.Discard)))
	path := filepath.Join(t.TempDir(), "facepulse.db")
	s, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateSession(ctx, model.Session{ID: "s1", StartedAt: start}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.Active())

	ended, err := s.EndSession(ctx, "s1", start.Add(95*time.Second), 7, 3)
	require.NoError(t, err)
	assert.False(t, ended.Active())
	assert.Equal(t, 95, ended.DurationSeconds)
	assert.Equal(t, 7, ended.BlinkCount)
	assert.Equal(t, 3, ended.CaptureCount)

	again, err := s.EndSession(ctx, "s1", start.Add(time.Hour), 99, 99)
	require.NoError(t, err)
	assert.Equal(t, 95, again.DurationSeconds, "second end keeps the first stamp")

	list, err := s.ListSessions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetSession(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))

	_, err = s.EndSession(ctx, "missing", time.Now(), 0, 0)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = s.GetShare(ctx, "missing")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestMomentsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, e := range []model.Emotion{model.EmotionHappy, model.EmotionSad} {
		m := model.CapturedMoment{
			ID:        []string{"m1", "m2"}[i],
			SessionID: "s1",
			Metrics: model.DerivedMetrics{
				SmilePercentage:   80 - i*50,
				Emotion:           e,
				EmotionConfidence: 90,
				HeadPose:          model.HeadCenter,
				FaceDetected:      true,
			},
			ImageURL:    "http://x/media/a.jpg",
			CapturedAt:  base.Add(time.Duration(i) * time.Second),
			Expressions: map[string]float64{"happy": 0.9},
		}
		require.NoError(t, s.InsertMoment(ctx, m))
	}
	require.NoError(t, s.InsertMoment(ctx, model.CapturedMoment{ID: "m3", SessionID: "other", CapturedAt: base}))

	got, err := s.ListMoments(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].ID)
	assert.Equal(t, model.EmotionHappy, got[0].Metrics.Emotion)
	assert.Equal(t, 80, got[0].Metrics.SmilePercentage)
	assert.InDelta(t, 0.9, got[0].Expressions["happy"], 1e-9)
	assert.Equal(t, model.EmotionSad, got[1].Metrics.Emotion)

	recent, err := s.RecentMoments(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	err = s.InsertMoment(ctx, model.CapturedMoment{ID: "m1", SessionID: "s1"})
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestLeaderboardOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	rows := []model.LeaderboardEntry{
		{ID: "a", MomentID: "m-a", SmilePercentage: 85, Emotion: model.EmotionHappy, CreatedAt: base},
		{ID: "b", MomentID: "m-b", SmilePercentage: 97, Emotion: model.EmotionHappy, CreatedAt: base.Add(time.Second)},
		{ID: "c", MomentID: "m-c", SmilePercentage: 85, Emotion: model.EmotionHappy, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range rows {
		require.NoError(t, s.InsertLeaderboardEntry(ctx, r))
	}

	top, err := s.TopLeaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, "a", top[1].ID)

	dup := rows[0]
	dup.ID = "a2"
	assert.True(t, IsKind(s.InsertLeaderboardEntry(ctx, dup), KindConflict))
}

func TestCapsules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().UTC()

	require.NoError(t, s.CreateCapsule(ctx, model.TimeCapsule{ID: "c1", Name: "Party", Slug: "party", StartedAt: start}))
	require.NoError(t, s.InsertCapsuleEvent(ctx, model.CapsuleEvent{ID: "e2", CapsuleID: "c1", Emotion: model.EmotionSad, CapturedAt: start.Add(2 * time.Second)}))
	require.NoError(t, s.InsertCapsuleEvent(ctx, model.CapsuleEvent{ID: "e1", CapsuleID: "c1", Emotion: model.EmotionHappy, CapturedAt: start.Add(time.Second)}))

	events, err := s.ListCapsuleEvents(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[0].ID)

	closed, err := s.CloseCapsule(ctx, "c1", start.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)

	again, err := s.CloseCapsule(ctx, "c1", start.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, again.ClosedAt.Equal(*closed.ClosedAt))

	_, err = s.CloseCapsule(ctx, "nope", start)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestScoresAndShares(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub := model.ScoreSubmission{SubmissionID: "sub-1", PlayerID: "p1", Game: "smile", Score: 42, SubmittedAt: time.Now()}
	require.NoError(t, s.InsertScore(ctx, sub))
	assert.Equal(t, KindConflict, KindOf(s.InsertScore(ctx, sub)))

	n, err := s.CountScores(ctx, "p1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	rec := model.ShareRecord{ID: "sh1", ImageURL: "http://x/media/s.png", Title: "me", CreatedAt: time.Now().UTC()}
	require.NoError(t, s.InsertShare(ctx, rec))
	got, err := s.GetShare(ctx, "sh1")
	require.NoError(t, err)
	assert.Equal(t, rec.ImageURL, got.ImageURL)
}

func TestSetupRequired(t *testing.T) {
	s := newTestStore(t, WithAutoMigrate(false))
	ctx := context.Background()

	missing, err := s.SetupStatus(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, Tables(), missing)

	err = s.CreateSession(ctx, model.Session{ID: "s1", StartedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, KindSetupRequired, KindOf(err))

	require.NoError(t, s.Migrate(ctx))
	missing, err = s.SetupStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
	assert.NoError(t, s.CreateSession(ctx, model.Session{ID: "s1", StartedAt: time.Now()}))
}

func TestCancelledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListSessions(ctx, 1)
	assert.Equal(t, KindUnavailable, KindOf(err))
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindConflict, Op: "score.insert", Err: assert.AnError}
	assert.Contains(t, err.Error(), "[conflict:score.insert]")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindUnknown, KindOf(io.EOF))
}
