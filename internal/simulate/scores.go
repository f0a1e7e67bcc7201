package simulate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/facepulse/pkg/logger"
)

// ErrVerification is returned when the ranking disagrees with what was sent.
var ErrVerification = errors.New("verification failed")

type scoreCounters struct {
	submitted, accepted, duplicate, failed, retries atomic.Int64
}

// submitScores posts every submission and resends every dupEvery-th one to
// exercise idempotency. Backpressure answers are retried with backoff.
func submitScores(ctx context.Context, c *Client, subs []Submission, cfg Config) (*scoreCounters, error) {
	log := logger.Get().Named("simulate")
	counters := &scoreCounters{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, sub := range subs {
		sends := 1
		if cfg.DuplicateEvery > 0 && i%cfg.DuplicateEvery == 0 {
			sends = 2
		}
		g.Go(func() error {
			for range sends {
				ack, err := submitWithRetry(gctx, c, sub, counters)
				counters.submitted.Add(1)
				if err != nil {
					counters.failed.Add(1)
					log.Warn(gctx, "submission failed",
						logger.String("submission_id", sub.SubmissionID),
						logger.Error(err))
					continue
				}
				if ack.Duplicate {
					counters.duplicate.Add(1)
				} else {
					counters.accepted.Add(1)
				}
			}
			return gctx.Err()
		})
	}
	err := g.Wait()
	return counters, err
}

func submitWithRetry(ctx context.Context, c *Client, sub Submission, counters *scoreCounters) (AckResponse, error) {
	var ack AckResponse
	delay := retryBase
	for attempt := 1; ; attempt++ {
		_, err := c.Do(ctx, http.MethodPost, "/scores", sub, &ack)
		if err == nil || statusOf(err) != http.StatusTooManyRequests || attempt == maxSubmitAttempts {
			return ack, err
		}
		counters.retries.Add(1)
		select {
		case <-ctx.Done():
			return ack, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// WaitRanked polls /rank/{player} until every player shows its best score
// or the timeout passes. It returns how many players settled.
func WaitRanked(ctx context.Context, c *Client, best map[string]float64, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pending := make(map[string]float64, len(best))
	for p, s := range best {
		pending[p] = s
	}
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for {
		for p, want := range pending {
			var e Entry
			err := c.Get(ctx, "/rank/"+url.PathEscape(p), &e)
			switch {
			case err == nil && e.Score == want:
				delete(pending, p)
			case err != nil && statusOf(err) != http.StatusNotFound:
				return len(best) - len(pending), err
			}
		}
		if len(pending) == 0 {
			return len(best), nil
		}
		select {
		case <-ctx.Done():
			return len(best) - len(pending), fmt.Errorf("%w: %d players not ranked: %w", ErrVerification, len(pending), ctx.Err())
		case <-ticker.C:
		}
	}
}

// VerifyTop fetches /scores?limit=n and checks ordering, competition ranks
// and that every player of this run shows its best score.
func VerifyTop(ctx context.Context, c *Client, n int, prefix string, best map[string]float64) ([]Entry, error) {
	var entries []Entry
	if err := c.Get(ctx, "/scores?limit="+strconv.Itoa(n), &entries); err != nil {
		return nil, err
	}
	if len(entries) > n {
		return entries, fmt.Errorf("%w: asked for %d entries, got %d", ErrVerification, n, len(entries))
	}
	if !sort.SliceIsSorted(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score }) {
		return entries, fmt.Errorf("%w: scores are not in descending order", ErrVerification)
	}
	for i, e := range entries {
		if i > 0 && e.Score == entries[i-1].Score && e.Rank != entries[i-1].Rank {
			return entries, fmt.Errorf("%w: tied players %s and %s have different ranks", ErrVerification, entries[i-1].PlayerID, e.PlayerID)
		}
		if i > 0 && e.Score < entries[i-1].Score && e.Rank != i+1 {
			return entries, fmt.Errorf("%w: %s ranked %d at position %d", ErrVerification, e.PlayerID, e.Rank, i+1)
		}
		if !strings.HasPrefix(e.PlayerID, prefix) {
			continue
		}
		if want, ok := best[e.PlayerID]; !ok || want != e.Score {
			return entries, fmt.Errorf("%w: %s has %.1f, expected %.1f", ErrVerification, e.PlayerID, e.Score, want)
		}
	}
	return entries, nil
}
