package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/facepulse/internal/adapters/datastore"
	"github.com/okian/facepulse/internal/adapters/repository"
	"github.com/okian/facepulse/internal/domain/analysis"
	"github.com/okian/facepulse/internal/domain/analytics"
	"github.com/okian/facepulse/internal/domain/gate"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

const anonymousPlayer = "Anonymous"

// SessionView is a session together with its live analysis state.
type SessionView struct {
	model.Session
	PlayerName string                `json:"player_name,omitempty"`
	Live       bool                  `json:"live"`
	Last       *model.DerivedMetrics `json:"last_metrics,omitempty"`
}

func (s *Service) newTracker(sessionID, playerName string) *Tracker {
	return &Tracker{
		sessionID:  sessionID,
		playerName: playerName,
		deriver: analysis.NewDeriver(
			analysis.WithHappyWeight(s.cfg.SmileHappyWeight),
			analysis.WithEARThreshold(s.cfg.EARThreshold),
			analysis.WithHeadPoseThreshold(s.cfg.HeadPoseThreshold),
		),
		gate: gate.NewCaptureGate(
			gate.WithWindow(s.cfg.StabilityWindow),
			gate.WithCooldown(s.cfg.CaptureCooldown()),
		),
		absence:   gate.NewAbsenceTimer(s.cfg.AbsenceTimeout()),
		persister: s,
		bus:       s.bus,
	}
}

// CreateSession starts a recording session.
func (s *Service) CreateSession(ctx context.Context, playerName string) (SessionView, error) {
	if err := s.ready(); err != nil {
		return SessionView{}, err
	}
	sess := model.Session{
		ID:        uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return SessionView{}, err
	}
	playerName = strings.TrimSpace(playerName)
	s.trackers.put(sess.ID, s.newTracker(sess.ID, playerName))
	s.logger.Info(ctx, "session started", logger.String("session_id", sess.ID))
	return SessionView{Session: sess, PlayerName: playerName, Live: true}, nil
}

// GetSession loads a session and, while it is tracked, its latest metrics.
func (s *Service) GetSession(ctx context.Context, id string) (SessionView, error) {
	if err := s.ready(); err != nil {
		return SessionView{}, err
	}
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	v := SessionView{Session: sess}
	if t, ok := s.trackers.get(id); ok {
		last := t.Last()
		v.PlayerName = t.playerName
		v.Live = true
		v.BlinkCount = t.Blinks()
		v.CaptureCount = t.Captures()
		if !last.At.IsZero() {
			v.Last = &last
		}
	}
	return v, nil
}

// EndSession stops tracking a session and stores its counters. Ending an
// ended session returns it unchanged.
func (s *Service) EndSession(ctx context.Context, id string) (model.Session, error) {
	if err := s.ready(); err != nil {
		return model.Session{}, err
	}
	t, tracked := s.trackers.get(id)
	if !tracked {
		sess, err := s.store.GetSession(ctx, id)
		if err != nil {
			return model.Session{}, err
		}
		if !sess.Active() {
			return sess, nil
		}
		moments, err := s.store.ListMoments(ctx, id)
		if err != nil {
			return model.Session{}, err
		}
		return s.store.EndSession(ctx, id, s.now().UTC(), sess.BlinkCount, len(moments))
	}

	t.stopLive()
	sess, err := s.store.EndSession(ctx, id, s.now().UTC(), t.Blinks(), t.Captures())
	if err != nil {
		return model.Session{}, err
	}
	s.trackers.remove(id)
	s.logger.Info(ctx, "session ended",
		logger.String("session_id", id),
		logger.Int("captures", sess.CaptureCount),
		logger.Int("blinks", sess.BlinkCount))
	return sess, nil
}

// tracker returns the tracker of an active session. A session that exists
// but is not tracked, for example after a restart, gets a fresh tracker.
func (s *Service) tracker(ctx context.Context, id string) (*Tracker, error) {
	if t, ok := s.trackers.get(id); ok {
		return t, nil
	}
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, fmt.Errorf("%w: %s", ErrSessionEnded, id)
	}
	t := s.newTracker(id, "")
	s.trackers.put(id, t)
	return t, nil
}

// ProcessDetection runs one client detection through the session's
// analysis pipeline. frame is the still image to store if the capture
// gate fires; it may be empty.
func (s *Service) ProcessDetection(ctx context.Context, sessionID string, det *model.Detection, frame []byte) (FrameResult, error) {
	if err := s.ready(); err != nil {
		return FrameResult{}, err
	}
	if det == nil {
		return FrameResult{}, fmt.Errorf("%w: detection is required", ErrInvalidInput)
	}
	if err := det.Validate(); err != nil {
		return FrameResult{}, err
	}
	t, err := s.tracker(ctx, sessionID)
	if err != nil {
		return FrameResult{}, err
	}
	return t.Process(ctx, det, frame, s.now()), nil
}

// persistMoment uploads the frame and writes the moment row. An upload
// failure keeps the moment without an image; a write failure returns a
// Local outcome.
func (s *Service) persistMoment(ctx context.Context, t *Tracker, m model.DerivedMetrics, det *model.Detection, frame []byte) Outcome {
	moment := model.CapturedMoment{
		ID:         uuid.NewString(),
		SessionID:  t.sessionID,
		Metrics:    m,
		CapturedAt: m.At,
	}
	if det != nil && len(det.Expressions) > 0 {
		moment.Expressions = maps.Clone(det.Expressions)
	}
	log := s.logger.With(
		logger.String("session_id", t.sessionID),
		logger.String("moment_id", moment.ID))

	moment.ImageURL = s.uploadFrame(ctx, path.Join("sessions", t.sessionID), frame)

	if err := s.store.InsertMoment(ctx, moment); err != nil {
		metrics.RecordCapture(string(OutcomeLocal))
		log.Warn(ctx, "moment not persisted", logger.Error(err))
		return Outcome{Kind: OutcomeLocal, Moment: moment, Reason: string(datastore.KindOf(err))}
	}
	metrics.RecordCapture(string(OutcomeSaved))
	log.Debug(ctx, "moment captured",
		logger.String("emotion", string(m.Emotion)),
		logger.Int("smile", m.SmilePercentage))

	if m.SmilePercentage >= s.cfg.LeaderboardSmileThreshold {
		s.promote(ctx, t, moment)
	}
	return Outcome{Kind: OutcomeSaved, Moment: moment}
}

// promote queues a leaderboard copy of a high-smile moment.
func (s *Service) promote(ctx context.Context, t *Tracker, m model.CapturedMoment) {
	name := t.playerName
	if name == "" {
		name = anonymousPlayer
	}
	job := model.Job{
		Kind: model.JobPromotion,
		Promotion: &model.LeaderboardEntry{
			ID:              uuid.NewString(),
			MomentID:        m.ID,
			SessionID:       m.SessionID,
			PlayerName:      name,
			SmilePercentage: m.Metrics.SmilePercentage,
			Emotion:         m.Metrics.Emotion,
			ImageURL:        m.ImageURL,
			CreatedAt:       m.CapturedAt,
		},
	}
	if !s.queue.Enqueue(ctx, job) {
		s.logger.Warn(ctx, "leaderboard promotion dropped",
			logger.String("moment_id", m.ID),
			logger.Error(ErrBackpressure))
	}
}

// ListMoments returns the moments of a session in capture order.
func (s *Service) ListMoments(ctx context.Context, sessionID string) ([]model.CapturedMoment, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListMoments(ctx, sessionID)
}

// SessionAnalytics summarises one session.
func (s *Service) SessionAnalytics(ctx context.Context, sessionID string) (analytics.SessionSummary, error) {
	if err := s.ready(); err != nil {
		return analytics.SessionSummary{}, err
	}
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return analytics.SessionSummary{}, err
	}
	if t, ok := s.trackers.get(sessionID); ok && sess.Active() {
		sess.BlinkCount = t.Blinks()
	}
	moments, err := s.store.ListMoments(ctx, sessionID)
	if err != nil {
		return analytics.SessionSummary{}, err
	}
	return analytics.Summarize(sess, moments, s.now()), nil
}

// Analytics aggregates every stored session.
func (s *Service) Analytics(ctx context.Context) (analytics.Dashboard, error) {
	if err := s.ready(); err != nil {
		return analytics.Dashboard{}, err
	}
	sessions, err := s.store.ListSessions(ctx, 0)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	moments, err := s.store.RecentMoments(ctx, 0)
	if err != nil {
		return analytics.Dashboard{}, err
	}
	return analytics.Aggregate(sessions, moments), nil
}

// TopLeaderboard returns the n best high-smile moments.
func (s *Service) TopLeaderboard(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.TopLeaderboard(ctx, n)
}

// IsNotFound reports whether err means the requested object does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, repository.ErrNotFound) ||
		datastore.IsKind(err, datastore.KindNotFound)
}
