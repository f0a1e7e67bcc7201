package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/facepulse/internal/adapters/mq/queue"
	"github.com/okian/facepulse/internal/adapters/mq/worker"
	"github.com/okian/facepulse/internal/domain/model"
	logging "github.com/okian/facepulse/pkg/logger"
)

type mockRanker struct {
	mu   sync.Mutex
	best map[string]float64
	err  error
}

func newMockRanker() *mockRanker { return &mockRanker{best: map[string]float64{}} }

func (r *mockRanker) UpdateBest(_ context.Context, id string, score float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if old, ok := r.best[id]; ok && old >= score {
		return false, nil
	}
	r.best[id] = score
	return true, nil
}

func (r *mockRanker) get(id string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.best[id]
	return s, ok
}

type mockRecorder struct {
	mu       sync.Mutex
	scores   []model.ScoreSubmission
	promoted []model.LeaderboardEntry
	err      error
}

func (r *mockRecorder) InsertScore(_ context.Context, s model.ScoreSubmission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.scores = append(r.scores, s)
	return nil
}

func (r *mockRecorder) InsertLeaderboardEntry(_ context.Context, e model.LeaderboardEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.promoted = append(r.promoted, e)
	return nil
}

func (r *mockRecorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scores), len(r.promoted)
}

func scoreJob(id, player string, score float64) model.Job {
	return model.Job{Kind: model.JobScore, Score: &model.ScoreSubmission{SubmissionID: id, PlayerID: player, Score: score}}
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running worker", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		ranker := newMockRanker()
		recorder := &mockRecorder{}
		w := worker.NewInMemoryWorker(q, ranker, recorder, worker.WithName("test-worker"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a score job arrives", func() {
			q.Enqueue(ctx, scoreJob("s1", "p1", 85))

			convey.Convey("Then the ranking and the score row are updated", func() {
				convey.So(eventually(func() bool { s, _ := recorder.counts(); return s == 1 }), convey.ShouldBeTrue)
				score, ok := ranker.get("p1")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(score, convey.ShouldEqual, 85.0)
			})
		})

		convey.Convey("When a promotion job arrives", func() {
			q.Enqueue(ctx, model.Job{Kind: model.JobPromotion, Promotion: &model.LeaderboardEntry{ID: "l1", MomentID: "m1", SmilePercentage: 91}})

			convey.Convey("Then a leaderboard row is written", func() {
				convey.So(eventually(func() bool { _, p := recorder.counts(); return p == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the ranking fails", func() {
			ranker.mu.Lock()
			ranker.err = errors.New("redis down")
			ranker.mu.Unlock()
			q.Enqueue(ctx, scoreJob("s2", "p2", 10))
			q.Enqueue(ctx, model.Job{Kind: model.JobPromotion, Promotion: &model.LeaderboardEntry{ID: "l2", MomentID: "m2"}})

			convey.Convey("Then the score row is skipped and later jobs still run", func() {
				convey.So(eventually(func() bool { _, p := recorder.counts(); return p == 1 }), convey.ShouldBeTrue)
				s, _ := recorder.counts()
				convey.So(s, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a malformed job arrives", func() {
			q.Enqueue(ctx, model.Job{Kind: model.JobScore})
			q.Enqueue(ctx, scoreJob("s3", "p3", 1))

			convey.Convey("Then it is dropped without stopping the worker", func() {
				convey.So(eventually(func() bool { s, _ := recorder.counts(); return s == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
			convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a real queue", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))

		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		ranker := newMockRanker()
		recorder := &mockRecorder{}
		pool := worker.NewPool(4, q, ranker, recorder)
		convey.So(pool.Size(), convey.ShouldEqual, 4)

		ctx := context.Background()
		pool.Start(ctx)

		for i := 0; i < 50; i++ {
			q.Enqueue(ctx, scoreJob(string(rune('a'+i%26))+string(rune('0'+i/26)), "p", float64(i)))
		}

		convey.Convey("When the pool shuts down", func() {
			err := pool.Shutdown(ctx)

			convey.Convey("Then every queued job was processed first", func() {
				convey.So(err, convey.ShouldBeNil)
				s, _ := recorder.counts()
				convey.So(s, convey.ShouldEqual, 50)
				best, _ := ranker.get("p")
				convey.So(best, convey.ShouldEqual, 49.0)
			})
		})
	})

	convey.Convey("A non-positive size defaults to the CPU count", t, func() {
		_ = logging.Init(logging.WithWriter(io.Discard))
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newMockRanker(), &mockRecorder{})
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
