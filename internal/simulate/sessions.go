package simulate

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/analytics"
	"github.com/okian/facepulse/pkg/logger"
)

// sessionCounters are shared by the session workers.
type sessionCounters struct {
	started, ended, posted, dropped, captures, local atomic.Int64
}

// SessionReport is what one driven session produced.
type SessionReport struct {
	SessionID string
	Captures  int
	Summary   analytics.SessionSummary
}

// runSessions drives cfg.Sessions recording sessions concurrently. Frames of
// one session are posted in order; sessions run in parallel.
func runSessions(ctx context.Context, c *Client, gen *Generator, cfg Config) ([]SessionReport, *sessionCounters, error) {
	log := logger.Get().Named("simulate")
	counters := &sessionCounters{}

	scripts := make([][]Frame, cfg.Sessions)
	start := time.Now().UTC()
	for i := range scripts {
		frames, err := gen.Script(cfg.FramesPerSession, start)
		if err != nil {
			return nil, counters, err
		}
		scripts[i] = frames
	}

	reports := make([]SessionReport, cfg.Sessions)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range scripts {
		g.Go(func() error {
			rep, err := driveSession(gctx, c, fmt.Sprintf("Sim %d", i), scripts[i], counters)
			if err != nil {
				return fmt.Errorf("session %d: %w", i, err)
			}
			reports[i] = rep
			if cfg.Verbose {
				log.Info(gctx, "session done",
					logger.String("session_id", rep.SessionID),
					logger.Int("captures", rep.Captures),
					logger.Int("blinks", rep.Summary.BlinkCount))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, counters, err
	}
	return reports, counters, nil
}

func driveSession(ctx context.Context, c *Client, player string, frames []Frame, counters *sessionCounters) (SessionReport, error) {
	var sess service.SessionView
	if _, err := c.Do(ctx, http.MethodPost, "/sessions", map[string]string{"player_name": player}, &sess); err != nil {
		return SessionReport{}, err
	}
	counters.started.Add(1)
	rep := SessionReport{SessionID: sess.ID}

	path := "/sessions/" + sess.ID
	for _, f := range frames {
		var res service.FrameResult
		if _, err := c.Do(ctx, http.MethodPost, path+"/detections", f, &res); err != nil {
			return rep, err
		}
		counters.posted.Add(1)
		switch {
		case res.Dropped:
			counters.dropped.Add(1)
		case res.Capture != nil:
			rep.Captures++
			counters.captures.Add(1)
			if !res.Capture.Saved() {
				counters.local.Add(1)
			}
		}
	}

	if _, err := c.Do(ctx, http.MethodPost, path+"/end", nil, nil); err != nil {
		return rep, err
	}
	counters.ended.Add(1)
	if err := c.Get(ctx, path+"/analytics", &rep.Summary); err != nil {
		return rep, err
	}
	return rep, nil
}
