package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/facepulse/internal/adapters/http/api"
	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/config"
	"github.com/okian/facepulse/pkg/logger"
)

func init() {
	if err := logger.Init(logger.WithWriter(io.Discard)); err != nil {
		panic(err)
	}
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		gen := NewGenerator(42, "run1")
		start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

		Convey("When a session script is built", func() {
			frames, err := gen.Script(20, start)
			So(err, ShouldBeNil)
			So(frames, ShouldHaveLength, 20)

			Convey("Then frames are spaced in time and include a gap without a face", func() {
				So(frames[1].Detection.CapturedAt.Sub(frames[0].Detection.CapturedAt), ShouldEqual, frameInterval)
				So(frames[12].Detection.FaceDetected, ShouldBeFalse)
				So(frames[13].Detection.FaceDetected, ShouldBeFalse)
				So(frames[0].Detection.FaceDetected, ShouldBeTrue)
				So(frames[0].Detection.Landmarks, ShouldHaveLength, 68)
			})

			Convey("And the smile grows towards the end with images attached", func() {
				first, last := frames[0].Detection, frames[19].Detection
				So(last.Expressions["happy"], ShouldBeGreaterThan, first.Expressions["happy"])
				So(frames[0].Image, ShouldBeEmpty)
				So(frames[19].Image, ShouldStartWith, "data:image/png;base64,")
			})
		})

		Convey("When scores are generated", func() {
			subs := gen.Scores(3, 4)

			Convey("Then every player gets its share under this run's prefix", func() {
				So(subs, ShouldHaveLength, 12)
				perPlayer := map[string]int{}
				for _, s := range subs {
					So(s.PlayerID, ShouldStartWith, "sim-run1-")
					So(s.Score, ShouldBeBetweenOrEqual, 0, 100)
					perPlayer[s.PlayerID]++
				}
				So(perPlayer, ShouldHaveLength, 3)
				So(perPlayer[gen.PlayerID(0)], ShouldEqual, 4)
			})

			Convey("And the same seed yields the same scores", func() {
				again := NewGenerator(42, "run1")
				_, _ = again.Script(20, start)
				other := again.Scores(3, 4)
				for i := range subs {
					So(other[i].Score, ShouldEqual, subs[i].Score)
				}
			})
		})

		Convey("When the best scores are computed", func() {
			best := BestScores([]Submission{
				{PlayerID: "a", Score: 10}, {PlayerID: "a", Score: 30}, {PlayerID: "b", Score: 0},
			})
			So(best, ShouldResemble, map[string]float64{"a": 30, "b": 0})
		})
	})
}

func TestClient(t *testing.T) {
	Convey("Given a service that answers with backpressure twice", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"backpressure"}`))
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"status":"accepted"}`))
		}))
		defer srv.Close()
		c := NewClient(srv.URL+"/", srv.Client())

		Convey("Then the submission is retried until accepted", func() {
			counters := &scoreCounters{}
			ack, err := submitWithRetry(context.Background(), c, Submission{SubmissionID: "x"}, counters)
			So(err, ShouldBeNil)
			So(ack.Status, ShouldEqual, "accepted")
			So(counters.retries.Load(), ShouldEqual, 2)
		})
	})

	Convey("Given a service that returns an error", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{"ready": false, "missing": []string{"moments"}})
		}))
		defer srv.Close()
		c := NewClient(srv.URL, srv.Client())

		Convey("Then the status is reported", func() {
			err := c.CheckHealth(context.Background())
			So(err, ShouldNotBeNil)
			So(statusOf(err), ShouldEqual, http.StatusServiceUnavailable)
			So(err.Error(), ShouldContainSubstring, "moments")
		})
	})
}

func TestVerifyTop(t *testing.T) {
	serve := func(entries []Entry) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(entries)
		}))
	}

	Convey("Given a leaderboard with competition ranks", t, func() {
		srv := serve([]Entry{
			{Rank: 1, PlayerID: "sim-r-p001", Score: 90},
			{Rank: 1, PlayerID: "other", Score: 90},
			{Rank: 3, PlayerID: "sim-r-p002", Score: 40},
		})
		defer srv.Close()
		c := NewClient(srv.URL, srv.Client())

		Convey("Then it verifies against the expected best scores", func() {
			best := map[string]float64{"sim-r-p001": 90, "sim-r-p002": 40}
			top, err := VerifyTop(context.Background(), c, 10, "sim-r-", best)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 3)
		})

		Convey("And a stale score is reported", func() {
			best := map[string]float64{"sim-r-p001": 95, "sim-r-p002": 40}
			_, err := VerifyTop(context.Background(), c, 10, "sim-r-", best)
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
		})
	})

	Convey("Given a leaderboard out of order", t, func() {
		srv := serve([]Entry{{Rank: 1, PlayerID: "a", Score: 10}, {Rank: 2, PlayerID: "b", Score: 20}})
		defer srv.Close()

		Convey("Then verification fails", func() {
			_, err := VerifyTop(context.Background(), NewClient(srv.URL, srv.Client()), 10, "sim-", nil)
			So(err, ShouldNotBeNil)
			So(strings.Contains(err.Error(), "descending"), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running facepulse service", t, func() {
		dir := t.TempDir()
		cfg := config.New()
		cfg.DatabasePath = filepath.Join(dir, "facepulse.db")
		cfg.BucketDir = filepath.Join(dir, "bucket")

		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc, cfg.MaxLeaderboardLimit).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When a small simulation runs", func() {
			out := filepath.Join(dir, "out", "subs.json")
			stats, err := Run(context.Background(), Config{
				BaseURL:          srv.URL,
				Sessions:         2,
				FramesPerSession: 20,
				Players:          5,
				ScoresPerPlayer:  4,
				DuplicateEvery:   10,
				TopN:             10,
				Workers:          4,
				Timeout:          5 * time.Second,
				SettleTimeout:    10 * time.Second,
				Seed:             7,
				OutputFile:       out,
			})

			Convey("Then every session and score made it through", func() {
				So(err, ShouldBeNil)
				So(stats.SessionsEnded, ShouldEqual, 2)
				So(stats.FramesPosted, ShouldEqual, 40)
				So(stats.ScoresSubmitted, ShouldEqual, 22)
				So(stats.ScoresDuplicate, ShouldEqual, 2)
				So(stats.ScoresFailed, ShouldEqual, 0)
				So(stats.PlayersRanked, ShouldEqual, 5)
				So(stats.TopEntries, ShouldEqual, 5)
				_, statErr := os.Stat(out)
				So(statErr, ShouldBeNil)
			})
		})
	})
}
