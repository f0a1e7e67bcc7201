package service

import (
	"context"
	"strings"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/types"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

// SubmitStatus tells a client what happened to a score submission.
type SubmitStatus string

// Submission statuses.
const (
	SubmitAccepted  SubmitStatus = "accepted"
	SubmitDuplicate SubmitStatus = "duplicate"
)

// SubmitScore validates sub and queues it for ranking. A submission ID
// that was seen before is acknowledged as a duplicate without queuing it
// again. A full queue returns ErrBackpressure and forgets the ID so the
// client can retry.
func (s *Service) SubmitScore(ctx context.Context, sub model.ScoreSubmission) (SubmitStatus, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	if err := sub.Validate(); err != nil {
		return "", err
	}
	sub.PlayerName = strings.TrimSpace(sub.PlayerName)
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now().UTC()
	}

	if s.deduper.SeenAndRecord(ctx, sub.SubmissionID) {
		metrics.RecordScoreDuplicate()
		s.logger.Debug(ctx, "duplicate score submission",
			logger.String("submission_id", sub.SubmissionID))
		return SubmitDuplicate, nil
	}
	if !s.queue.Enqueue(ctx, model.Job{Kind: model.JobScore, Score: &sub}) {
		s.deduper.Unrecord(ctx, sub.SubmissionID)
		return "", ErrBackpressure
	}
	metrics.RecordScoreSubmitted()
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	return SubmitAccepted, nil
}

// TopScores returns the n best players.
func (s *Service) TopScores(ctx context.Context, n int) ([]types.Entry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	entries, err := s.ranking.TopN(ctx, n)
	if err != nil {
		return nil, err
	}
	out := make([]types.Entry, len(entries))
	for i, e := range entries {
		out[i] = types.Entry{Rank: e.Rank, PlayerID: e.PlayerID, Score: e.Score}
	}
	return out, nil
}

// Rank returns the rank and best score of a player.
func (s *Service) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	if err := s.ready(); err != nil {
		return types.Entry{}, err
	}
	e, err := s.ranking.Rank(ctx, playerID)
	if err != nil {
		return types.Entry{}, err
	}
	return types.Entry{Rank: e.Rank, PlayerID: e.PlayerID, Score: e.Score}, nil
}
