package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/okian/facepulse/pkg/logger"
)

const (
	directoryPermission = 0o750
	filePermission      = 0o600
)

// Run executes a full simulation: webcam sessions, score submissions and
// ranking verification. It returns the collected statistics even on error.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	log := logger.Get().Named("simulate")
	stats := &Stats{StartTime: time.Now()}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(stats.StartTime.UnixNano())
	}
	runID := uuid.NewString()[:8]
	gen := NewGenerator(seed, runID)
	client := NewClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})

	log.Info(ctx, "starting facepulse simulation",
		logger.String("base_url", cfg.BaseURL),
		logger.String("run_id", runID),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("players", cfg.Players),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", seed))

	if err := client.CheckHealth(ctx); err != nil {
		return stats, err
	}

	if cfg.Sessions > 0 {
		_, sc, err := runSessions(ctx, client, gen, cfg)
		stats.SessionsStarted = int(sc.started.Load())
		stats.SessionsEnded = int(sc.ended.Load())
		stats.FramesPosted = int(sc.posted.Load())
		stats.FramesDropped = int(sc.dropped.Load())
		stats.Captures = int(sc.captures.Load())
		stats.LocalCaptures = int(sc.local.Load())
		if err != nil {
			return finish(stats), fmt.Errorf("sessions: %w", err)
		}
	}

	if cfg.Players > 0 && cfg.ScoresPerPlayer > 0 {
		subs := gen.Scores(cfg.Players, cfg.ScoresPerPlayer)
		if cfg.OutputFile != "" {
			if err := saveSubmissions(cfg.OutputFile, subs); err != nil {
				log.Warn(ctx, "failed to save submissions", logger.Error(err))
			}
		}

		sc, err := submitScores(ctx, client, subs, cfg)
		stats.ScoresSubmitted = int(sc.submitted.Load())
		stats.ScoresAccepted = int(sc.accepted.Load())
		stats.ScoresDuplicate = int(sc.duplicate.Load())
		stats.ScoresFailed = int(sc.failed.Load())
		stats.BackpressureRetry = int(sc.retries.Load())
		if err != nil {
			return finish(stats), fmt.Errorf("scores: %w", err)
		}

		best := BestScores(subs)
		ranked, err := WaitRanked(ctx, client, best, cfg.SettleTimeout)
		stats.PlayersRanked = ranked
		if err != nil {
			return finish(stats), err
		}

		top, err := VerifyTop(ctx, client, cfg.TopN, "sim-"+runID+"-", best)
		stats.TopEntries = len(top)
		if err != nil {
			return finish(stats), err
		}
	}

	logStats(ctx, finish(stats))
	log.Info(ctx, "simulation completed successfully")
	return stats, nil
}

func finish(stats *Stats) *Stats {
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	return stats
}

// saveSubmissions writes the generated submissions as a JSON array.
func saveSubmissions(filename string, subs []Submission) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal submissions: %w", err)
	}
	if err := os.WriteFile(filename, raw, filePermission); err != nil {
		return fmt.Errorf("write submissions: %w", err)
	}
	return nil
}

func logStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.FramesPosted+stats.ScoresSubmitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessions", stats.SessionsEnded),
		logger.String("frames", humanize.Comma(int64(stats.FramesPosted))),
		logger.Int("frames_dropped", stats.FramesDropped),
		logger.Int("captures", stats.Captures),
		logger.Int("captures_local", stats.LocalCaptures),
		logger.String("scores", humanize.Comma(int64(stats.ScoresSubmitted))),
		logger.Int("scores_duplicate", stats.ScoresDuplicate),
		logger.Int("scores_failed", stats.ScoresFailed),
		logger.Int("backpressure_retries", stats.BackpressureRetry),
		logger.Int("players_ranked", stats.PlayersRanked),
		logger.Int("top_entries", stats.TopEntries),
		logger.Duration("duration", stats.Duration),
		logger.String("requests_per_second", humanize.FormatFloat("#,###.##", perSecond)))
}
