// Package datastore persists sessions, moments, leaderboard rows, time
// capsules, scores and share records in SQLite through GORM.
//
// Every method returns nil or a *Error whose Kind is decided once, here,
// from driver error codes and schema introspection.
package datastore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

// Store is the GORM-backed datastore.
type Store struct {
	db          *gorm.DB
	log         logger.Logger
	autoMigrate bool
}

// Open connects to the SQLite database at path, creating its directory.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		autoMigrate: true,
		log:         logger.Get().Named("datastore"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &Error{Kind: KindUnavailable, Op: "open", Err: err}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: "open", Err: err}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Op: "open", Err: err}
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// pointing at one database.
	sqlDB.SetMaxOpenConns(1)
	s.db = db

	if s.autoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	s.log.Info(ctx, "datastore opened",
		logger.String("path", path),
		logger.Bool("auto_migrate", s.autoMigrate))
	return s, nil
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&sessionRow{}, &momentRow{}, &leaderboardRow{}, &capsuleRow{},
		&capsuleEventRow{}, &scoreRow{}, &shareRow{},
	)
	if err != nil {
		return s.fail(ctx, "migrate", "", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SetupStatus returns the names of missing tables; an empty result means
// the schema is ready.
func (s *Store) SetupStatus(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, s.fail(ctx, "setup_status", "", err)
	}
	m := s.db.WithContext(ctx).Migrator()
	var missing []string
	for _, t := range Tables() {
		if !m.HasTable(t) {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// fail classifies err, counts it and wraps it.
func (s *Store) fail(ctx context.Context, op, table string, err error) error {
	kind := s.classify(table, err)
	metrics.RecordDatastoreError(op, string(kind))
	if kind != KindNotFound {
		s.log.Warn(ctx, "datastore operation failed",
			logger.String("op", op),
			logger.String("kind", string(kind)),
			logger.Error(err))
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, sess model.Session) error {
	row := sessionRow{
		ID:              sess.ID,
		StartedAt:       sess.StartedAt,
		EndedAt:         sess.EndedAt,
		DurationSeconds: sess.DurationSeconds,
		BlinkCount:      sess.BlinkCount,
		CaptureCount:    sess.CaptureCount,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "session.create", tableSessions, err)
	}
	return nil
}

// GetSession loads one session.
func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	var row sessionRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.Session{}, s.fail(ctx, "session.get", tableSessions, err)
	}
	return row.toModel(), nil
}

// EndSession stamps the end time and aggregate counters. Ending an already
// ended session returns it unchanged.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time, blinks, captures int) (model.Session, error) {
	var out model.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		if row.EndedAt != nil {
			out = row.toModel()
			return nil
		}
		dur := int(endedAt.Sub(row.StartedAt).Seconds())
		if dur < 0 {
			dur = 0
		}
		row.EndedAt = &endedAt
		row.DurationSeconds = dur
		row.BlinkCount = blinks
		row.CaptureCount = captures
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		out = row.toModel()
		return nil
	})
	if err != nil {
		return model.Session{}, s.fail(ctx, "session.end", tableSessions, err)
	}
	return out, nil
}

// ListSessions returns up to limit sessions, newest first. limit <= 0
// returns all of them.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]model.Session, error) {
	var rows []sessionRow
	q := s.db.WithContext(ctx).Order("started_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.fail(ctx, "session.list", tableSessions, err)
	}
	out := make([]model.Session, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// InsertMoment writes a captured moment.
func (s *Store) InsertMoment(ctx context.Context, m model.CapturedMoment) error {
	row := newMomentRow(m)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "moment.insert", tableMoments, err)
	}
	return nil
}

// ListMoments returns the moments of one session in capture order.
func (s *Store) ListMoments(ctx context.Context, sessionID string) ([]model.CapturedMoment, error) {
	var rows []momentRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("captured_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, s.fail(ctx, "moment.list", tableMoments, err)
	}
	return momentsToModel(rows), nil
}

// RecentMoments returns up to limit moments across all sessions, newest
// first.
func (s *Store) RecentMoments(ctx context.Context, limit int) ([]model.CapturedMoment, error) {
	var rows []momentRow
	q := s.db.WithContext(ctx).Order("captured_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.fail(ctx, "moment.recent", tableMoments, err)
	}
	return momentsToModel(rows), nil
}

func momentsToModel(rows []momentRow) []model.CapturedMoment {
	out := make([]model.CapturedMoment, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out
}

// InsertLeaderboardEntry writes a leaderboard row. A second row for the
// same moment is a conflict.
func (s *Store) InsertLeaderboardEntry(ctx context.Context, e model.LeaderboardEntry) error {
	row := leaderboardRow{
		ID:              e.ID,
		MomentID:        e.MomentID,
		SessionID:       e.SessionID,
		PlayerName:      e.PlayerName,
		SmilePercentage: e.SmilePercentage,
		Emotion:         string(e.Emotion),
		ImageURL:        e.ImageURL,
		CreatedAt:       e.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "leaderboard.insert", tableLeaderboard, err)
	}
	return nil
}

// TopLeaderboard returns the n highest-smile entries; earlier entries win
// ties.
func (s *Store) TopLeaderboard(ctx context.Context, n int) ([]model.LeaderboardEntry, error) {
	if n < 1 {
		return nil, nil
	}
	var rows []leaderboardRow
	err := s.db.WithContext(ctx).
		Order("smile_percentage desc").
		Order("created_at asc").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, s.fail(ctx, "leaderboard.top", tableLeaderboard, err)
	}
	out := make([]model.LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// CreateCapsule inserts a new time capsule.
func (s *Store) CreateCapsule(ctx context.Context, c model.TimeCapsule) error {
	row := capsuleRow{ID: c.ID, Name: c.Name, Slug: c.Slug, StartedAt: c.StartedAt, ClosedAt: c.ClosedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "capsule.create", tableCapsules, err)
	}
	return nil
}

// GetCapsule loads one capsule.
func (s *Store) GetCapsule(ctx context.Context, id string) (model.TimeCapsule, error) {
	var row capsuleRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.TimeCapsule{}, s.fail(ctx, "capsule.get", tableCapsules, err)
	}
	return row.toModel(), nil
}

// CloseCapsule stamps the close time once; later calls keep the first.
func (s *Store) CloseCapsule(ctx context.Context, id string, at time.Time) (model.TimeCapsule, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&capsuleRow{}).
		Where("id = ? AND closed_at IS NULL", id).
		Update("closed_at", at)
	if res.Error != nil {
		return model.TimeCapsule{}, s.fail(ctx, "capsule.close", tableCapsules, res.Error)
	}
	var row capsuleRow
	if err := db.First(&row, "id = ?", id).Error; err != nil {
		return model.TimeCapsule{}, s.fail(ctx, "capsule.close", tableCapsules, err)
	}
	return row.toModel(), nil
}

// InsertCapsuleEvent writes one capsule moment.
func (s *Store) InsertCapsuleEvent(ctx context.Context, e model.CapsuleEvent) error {
	row := capsuleEventRow{
		ID:              e.ID,
		CapsuleID:       e.CapsuleID,
		Prompt:          e.Prompt,
		Emotion:         string(e.Emotion),
		SmilePercentage: e.SmilePercentage,
		ImageURL:        e.ImageURL,
		CapturedAt:      e.CapturedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "capsule_event.insert", tableCapsuleEvents, err)
	}
	return nil
}

// ListCapsuleEvents returns a capsule's events in capture order.
func (s *Store) ListCapsuleEvents(ctx context.Context, capsuleID string) ([]model.CapsuleEvent, error) {
	var rows []capsuleEventRow
	err := s.db.WithContext(ctx).
		Where("capsule_id = ?", capsuleID).
		Order("captured_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, s.fail(ctx, "capsule_event.list", tableCapsuleEvents, err)
	}
	out := make([]model.CapsuleEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// InsertScore records a score submission. A repeated submission ID is a
// conflict.
func (s *Store) InsertScore(ctx context.Context, sub model.ScoreSubmission) error {
	row := scoreRow{
		SubmissionID: sub.SubmissionID,
		PlayerID:     sub.PlayerID,
		PlayerName:   sub.PlayerName,
		Game:         sub.Game,
		Score:        sub.Score,
		SubmittedAt:  sub.SubmittedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "score.insert", tableScores, err)
	}
	return nil
}

// CountScores returns the number of recorded submissions for a player.
func (s *Store) CountScores(ctx context.Context, playerID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&scoreRow{}).Where("player_id = ?", playerID).Count(&n).Error; err != nil {
		return 0, s.fail(ctx, "score.count", tableScores, err)
	}
	return n, nil
}

// InsertShare stores a share record.
func (s *Store) InsertShare(ctx context.Context, r model.ShareRecord) error {
	row := shareRow{ID: r.ID, ImageURL: r.ImageURL, Title: r.Title, CreatedAt: r.CreatedAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return s.fail(ctx, "share.insert", tableShares, err)
	}
	return nil
}

// GetShare loads one share record.
func (s *Store) GetShare(ctx context.Context, id string) (model.ShareRecord, error) {
	var row shareRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return model.ShareRecord{}, s.fail(ctx, "share.get", tableShares, err)
	}
	return row.toModel(), nil
}
