package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/facepulse/internal/domain/analysis"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
	"github.com/okian/facepulse/internal/domain/scoring"
	"github.com/okian/facepulse/pkg/logger"
	"github.com/okian/facepulse/pkg/metrics"
)

// sampler derives metrics for a flow that is fed detections one by one.
type sampler struct {
	mu      sync.Mutex
	deriver *analysis.Deriver
	last    model.DerivedMetrics
}

func (s *Service) newSampler() *sampler {
	return &sampler{deriver: analysis.NewDeriver(
		analysis.WithHappyWeight(s.cfg.SmileHappyWeight),
		analysis.WithEARThreshold(s.cfg.EARThreshold),
		analysis.WithHeadPoseThreshold(s.cfg.HeadPoseThreshold),
	)}
}

func (sp *sampler) derive(det *model.Detection, now time.Time) model.DerivedMetrics {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.last = sp.deriver.Derive(det, now)
	return sp.last
}

func (sp *sampler) lastMetrics() model.DerivedMetrics {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.last
}

func validDetection(det *model.Detection) error {
	if det == nil {
		return fmt.Errorf("%w: detection is required", ErrInvalidInput)
	}
	return det.Validate()
}

// Player identifies who a game result belongs to. An empty ID plays
// without submitting a score.
type Player struct {
	ID   string `json:"player_id,omitempty"`
	Name string `json:"player_name,omitempty"`
}

// submitGameScore queues the result of a finished game. The game ID is the
// submission ID, so finishing twice submits once.
func (s *Service) submitGameScore(ctx context.Context, p Player, gameID, game string, score float64) (SubmitStatus, error) {
	if strings.TrimSpace(p.ID) == "" {
		return "", nil
	}
	return s.SubmitScore(ctx, model.ScoreSubmission{
		SubmissionID: gameID,
		PlayerID:     p.ID,
		PlayerName:   p.Name,
		Game:         game,
		Score:        score,
		SubmittedAt:  s.now().UTC(),
	})
}

type challengeEntry struct {
	challenge *scoring.Challenge
	sampler   *sampler
	player    Player
	startedAt time.Time
	duration  time.Duration
}

// ChallengeResult is a finished challenge and what happened to its score.
type ChallengeResult struct {
	scoring.Result
	Submission SubmitStatus `json:"submission,omitempty"`
}

// StartChallenge starts a timed challenge of the given kind.
func (s *Service) StartChallenge(ctx context.Context, kind string, p Player) (scoring.Result, error) {
	if err := s.ready(); err != nil {
		return scoring.Result{}, err
	}
	k, err := scoring.ParseKind(kind)
	if err != nil {
		return scoring.Result{}, err
	}
	now := s.now()
	id := uuid.NewString()
	c, err := scoring.NewChallenge(id, k, now,
		scoring.WithDuration(s.cfg.ChallengeDuration()),
		scoring.WithWeightsFromConfig(s.cfg.ChallengeWeights),
	)
	if err != nil {
		return scoring.Result{}, err
	}
	s.challenges.put(id, &challengeEntry{
		challenge: c,
		sampler:   s.newSampler(),
		player:    p,
		startedAt: now,
		duration:  s.cfg.ChallengeDuration(),
	})
	metrics.RecordFlowTransition("challenge", "started")
	s.logger.Debug(ctx, "challenge started", logger.String("challenge_id", id), logger.String("kind", kind))
	return c.Result(now), nil
}

// SampleChallenge folds one detection into a running challenge.
func (s *Service) SampleChallenge(_ context.Context, id string, det *model.Detection) (scoring.Result, error) {
	if err := s.ready(); err != nil {
		return scoring.Result{}, err
	}
	if err := validDetection(det); err != nil {
		return scoring.Result{}, err
	}
	e, ok := s.challenges.get(id)
	if !ok {
		return scoring.Result{}, fmt.Errorf("%w: challenge %s", ErrNotFound, id)
	}
	now := s.now()
	e.challenge.Observe(e.sampler.derive(det, now), now)
	return e.challenge.Result(now), nil
}

// FinishChallenge ends a challenge and submits its score for the player.
// On backpressure the challenge stays registered so finishing can be
// retried.
func (s *Service) FinishChallenge(ctx context.Context, id string) (ChallengeResult, error) {
	if err := s.ready(); err != nil {
		return ChallengeResult{}, err
	}
	e, ok := s.challenges.get(id)
	if !ok {
		return ChallengeResult{}, fmt.Errorf("%w: challenge %s", ErrNotFound, id)
	}
	res := ChallengeResult{Result: e.challenge.Finish(s.now())}
	status, err := s.submitGameScore(ctx, e.player, id, "challenge_"+string(e.challenge.Kind()), res.Score)
	if err != nil {
		return res, err
	}
	res.Submission = status
	s.challenges.remove(id)
	metrics.RecordFlowTransition("challenge", "finished")
	return res, nil
}

type reactionEntry struct {
	flow    *reaction.Flow
	sampler *sampler
	player  Player
}

func (s *Service) flowOptions() []reaction.Option {
	return []reaction.Option{
		reaction.WithHold(s.cfg.ReactionHold()),
		reaction.WithCaptureTimeout(s.cfg.ReactionCaptureTimeout()),
		reaction.WithMinConfidence(s.cfg.ReactionMinConfidence),
	}
}

// StartReaction starts an emoji-reaction game with rounds random targets.
// rounds <= 0 uses the configured count.
func (s *Service) StartReaction(ctx context.Context, rounds int, p Player) (reaction.View, error) {
	if err := s.ready(); err != nil {
		return reaction.View{}, err
	}
	if rounds <= 0 {
		rounds = s.cfg.ReactionRounds
	}
	s.rngMu.Lock()
	targets := reaction.EmojiRounds(rounds, s.rng)
	s.rngMu.Unlock()

	now := s.now()
	id := uuid.NewString()
	flow, err := reaction.New(id, reaction.KindEmojiReaction, targets, s.flowOptions()...)
	if err != nil {
		return reaction.View{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := flow.Start(now); err != nil {
		return reaction.View{}, err
	}
	s.reactions.put(id, &reactionEntry{flow: flow, sampler: s.newSampler(), player: p})
	metrics.RecordFlowTransition(string(reaction.KindEmojiReaction), string(flow.State()))
	s.logger.Debug(ctx, "reaction game started", logger.String("flow_id", id), logger.Int("rounds", rounds))
	return flow.Snapshot(now), nil
}

// GetReaction returns the current state of a reaction game.
func (s *Service) GetReaction(_ context.Context, id string) (reaction.View, error) {
	if err := s.ready(); err != nil {
		return reaction.View{}, err
	}
	e, ok := s.reactions.get(id)
	if !ok {
		return reaction.View{}, fmt.Errorf("%w: reaction %s", ErrNotFound, id)
	}
	now := s.now()
	e.flow.Tick(now)
	return e.flow.Snapshot(now), nil
}

// SampleReaction matches one detection against the current target.
func (s *Service) SampleReaction(_ context.Context, id string, det *model.Detection) (reaction.View, error) {
	if err := s.ready(); err != nil {
		return reaction.View{}, err
	}
	if err := validDetection(det); err != nil {
		return reaction.View{}, err
	}
	e, ok := s.reactions.get(id)
	if !ok {
		return reaction.View{}, fmt.Errorf("%w: reaction %s", ErrNotFound, id)
	}
	// Flows run on the server clock like the capture and read requests
	// that advance their timeout; captured_at is not used here.
	now := s.now()
	observeFlow(e.flow, e.sampler.derive(det, now), now)
	return e.flow.Snapshot(now), nil
}

// observeFlow feeds a derived sample; a sample without a face breaks any
// hold in progress.
func observeFlow(f *reaction.Flow, m model.DerivedMetrics, now time.Time) {
	before := f.State()
	var after reaction.State
	if m.FaceDetected {
		after = f.Observe(m.Emotion, m.EmotionConfidence, now)
	} else {
		after = f.Lost(now)
	}
	if after != before {
		metrics.RecordFlowTransition(string(f.Kind()), string(after))
	}
}

// CaptureReaction fulfils a pending capture with frame and advances to the
// next target. When the last round completes the total is submitted for
// the player.
func (s *Service) CaptureReaction(ctx context.Context, id string, frame []byte) (reaction.View, error) {
	if err := s.ready(); err != nil {
		return reaction.View{}, err
	}
	e, ok := s.reactions.get(id)
	if !ok {
		return reaction.View{}, fmt.Errorf("%w: reaction %s", ErrNotFound, id)
	}
	now := s.now()
	if e.flow.Tick(now) != reaction.StateCapturing {
		return reaction.View{}, fmt.Errorf("%w: nothing to capture in %s", reaction.ErrInvalidTransition, e.flow.State())
	}
	url := s.uploadFrame(ctx, path.Join("reactions", id), frame)
	if _, err := e.flow.Fulfill(url, now); err != nil {
		return reaction.View{}, err
	}
	metrics.RecordFlowTransition(string(reaction.KindEmojiReaction), string(reaction.StateCaptured))

	state, err := e.flow.Next(now)
	if err != nil {
		return reaction.View{}, err
	}
	metrics.RecordFlowTransition(string(reaction.KindEmojiReaction), string(state))
	view := e.flow.Snapshot(now)
	if state == reaction.StateCompleted {
		if _, err := s.submitGameScore(ctx, e.player, id, string(reaction.KindEmojiReaction), float64(view.Total)); err != nil {
			if !errors.Is(err, ErrBackpressure) {
				return view, err
			}
			s.logger.Warn(ctx, "reaction score dropped", logger.String("flow_id", id), logger.Error(err))
		}
		s.reactions.remove(id)
	}
	return view, nil
}

// uploadFrame stores frame under prefix and returns its URL. An empty or
// rejected frame yields an empty URL.
func (s *Service) uploadFrame(ctx context.Context, prefix string, frame []byte) string {
	if len(frame) == 0 {
		return ""
	}
	_, url, err := s.bucket.Put(ctx, prefix, frame)
	if err != nil {
		s.logger.Warn(ctx, "frame upload failed; continuing without image",
			logger.String("prefix", prefix), logger.Error(err))
		return ""
	}
	return url
}
