package service_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/okian/facepulse/internal/adapters/blob"
	"github.com/okian/facepulse/internal/adapters/repository"
	service "github.com/okian/facepulse/internal/app"
	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
	"github.com/okian/facepulse/internal/domain/scoring"
	"github.com/okian/facepulse/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// blockingRanker holds every UpdateBest until release is closed.
type blockingRanker struct {
	repository.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingRanker() *blockingRanker {
	return &blockingRanker{
		Store:   repository.NewTreapStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingRanker) UpdateBest(ctx context.Context, id string, score float64) (bool, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.Store.UpdateBest(ctx, id, score)
}

func submission(id, player string, score float64) model.ScoreSubmission {
	return model.ScoreSubmission{SubmissionID: id, PlayerID: player, Game: "smile", Score: score}
}

func TestServiceIntegration_Scores(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(t, newClock())
		defer svc.Stop()
		ctx := context.Background()

		Convey("When scores are submitted for several players", func() {
			for i, sc := range []float64{40, 90, 90, 10} {
				status, err := svc.SubmitScore(ctx, submission(fmt.Sprintf("s-%d", i), fmt.Sprintf("p-%d", i), sc))
				So(err, ShouldBeNil)
				So(status, ShouldEqual, service.SubmitAccepted)
			}

			Convey("Then they are ranked with shared ranks for ties", func() {
				var top []types.Entry
				So(eventually(func() bool {
					top, _ = svc.TopScores(ctx, 10)
					return len(top) == 4
				}), ShouldBeTrue)
				So(top[0].Rank, ShouldEqual, 1)
				So(top[1].Rank, ShouldEqual, 1)
				So(top[2].Rank, ShouldEqual, 3)
				So(top[2].PlayerID, ShouldEqual, "p-0")

				e, err := svc.Rank(ctx, "p-3")
				So(err, ShouldBeNil)
				So(e.Rank, ShouldEqual, 4)
			})
		})

		Convey("When the same submission is retried", func() {
			first, err := svc.SubmitScore(ctx, submission("dup", "p", 10))
			So(err, ShouldBeNil)
			second, err := svc.SubmitScore(ctx, submission("dup", "p", 99))
			So(err, ShouldBeNil)

			Convey("Then only the first counts", func() {
				So(first, ShouldEqual, service.SubmitAccepted)
				So(second, ShouldEqual, service.SubmitDuplicate)
				So(eventually(func() bool {
					e, err := svc.Rank(ctx, "p")
					return err == nil && e.Score == 10
				}), ShouldBeTrue)
			})
		})

		Convey("When a submission is invalid", func() {
			_, err := svc.SubmitScore(ctx, submission("", "p", 1))

			Convey("Then it is rejected before queuing", func() {
				So(errors.Is(err, model.ErrInvalidScore), ShouldBeTrue)
			})
		})

		Convey("When an unknown player is ranked", func() {
			_, err := svc.Rank(ctx, "nobody")

			Convey("Then it is not found", func() {
				So(service.IsNotFound(err), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service whose ranking is stalled", t, func() {
		cfg := testConfig(t)
		cfg.WorkerCount = 1
		cfg.QueueSize = 1
		ranker := newBlockingRanker()
		svc := service.New(service.WithConfig(cfg), service.WithRankingStore(ranker))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		defer close(ranker.release)
		ctx := context.Background()

		_, err := svc.SubmitScore(ctx, submission("first", "p", 1))
		So(err, ShouldBeNil)
		<-ranker.entered

		Convey("When more submissions arrive than the queue holds", func() {
			var rejected string
			for i := 0; i < 5 && rejected == ""; i++ {
				id := fmt.Sprintf("extra-%d", i)
				if _, err := svc.SubmitScore(ctx, submission(id, "p", 1)); errors.Is(err, service.ErrBackpressure) {
					rejected = id
				}
			}

			Convey("Then one is rejected and may be retried later", func() {
				So(rejected, ShouldNotBeEmpty)
				_, err := svc.SubmitScore(ctx, submission(rejected, "p", 1))
				So(errors.Is(err, service.ErrBackpressure), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service ranking through redis", t, func() {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.RankingBackend = "redis"
		cfg.RedisAddr = mr.Addr()
		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()
		ctx := context.Background()

		_, err := svc.SubmitScore(ctx, submission("r1", "redis-player", 77))
		So(err, ShouldBeNil)

		Convey("Then the score lands in the sorted set", func() {
			So(eventually(func() bool {
				e, err := svc.Rank(ctx, "redis-player")
				return err == nil && e.Score == 77
			}), ShouldBeTrue)
			So(mr.Exists(cfg.RedisKey), ShouldBeTrue)
		})
	})
}

func TestServiceIntegration_Games(t *testing.T) {
	Convey("Given a started service", t, func() {
		clk := newClock()
		svc := startService(t, clk)
		defer svc.Stop()
		ctx := context.Background()

		Convey("When a smile challenge is played and finished", func() {
			res, err := svc.StartChallenge(ctx, "smile", service.Player{ID: "ana", Name: "Ana"})
			So(err, ShouldBeNil)
			So(res.Active, ShouldBeTrue)
			for i := 0; i < 4; i++ {
				clk.Advance(time.Second)
				_, err := svc.SampleChallenge(ctx, res.ID, face("happy", 1, 0.6, clk.Now()))
				So(err, ShouldBeNil)
			}
			done, err := svc.FinishChallenge(ctx, res.ID)
			So(err, ShouldBeNil)

			Convey("Then the score is submitted for the player", func() {
				So(done.Active, ShouldBeFalse)
				So(done.Samples, ShouldEqual, 4)
				So(done.Score, ShouldBeGreaterThan, 0)
				So(done.Submission, ShouldEqual, service.SubmitAccepted)
				So(eventually(func() bool {
					e, err := svc.Rank(ctx, "ana")
					return err == nil && e.Score == done.Score
				}), ShouldBeTrue)

				_, err = svc.FinishChallenge(ctx, res.ID)
				So(service.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When a challenge kind is unknown", func() {
			_, err := svc.StartChallenge(ctx, "wink", service.Player{})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, scoring.ErrUnknownKind), ShouldBeTrue)
			})
		})

		Convey("When a one-round reaction game is matched and captured", func() {
			view, err := svc.StartReaction(ctx, 1, service.Player{ID: "bo"})
			So(err, ShouldBeNil)
			So(view.State, ShouldEqual, reaction.StateShowing)
			target := string(view.Target)

			_, err = svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, clk.Now()))
			So(err, ShouldBeNil)
			clk.Advance(time.Second)
			matched, err := svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, clk.Now()))
			So(err, ShouldBeNil)
			So(matched.State, ShouldEqual, reaction.StateCapturing)

			final, err := svc.CaptureReaction(ctx, view.ID, pngFrame())
			So(err, ShouldBeNil)

			Convey("Then the game completes and submits the points", func() {
				So(final.State, ShouldEqual, reaction.StateCompleted)
				So(final.Total, ShouldEqual, 90)
				So(final.Rounds[0].ImageURL, ShouldStartWith, "http://facepulse.test/media/reactions/")
				So(eventually(func() bool {
					e, err := svc.Rank(ctx, "bo")
					return err == nil && e.Score == 90
				}), ShouldBeTrue)
			})
		})

		Convey("When the face leaves during the hold", func() {
			view, err := svc.StartReaction(ctx, 2, service.Player{})
			So(err, ShouldBeNil)
			target := string(view.Target)
			// Detection timestamps lag the server by an hour; holds follow the server clock.
			client := func() time.Time { return clk.Now().Add(-time.Hour) }

			first, err := svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, client()))
			So(err, ShouldBeNil)
			So(first.State, ShouldEqual, reaction.StateMatching)
			for range 4 {
				clk.Advance(200 * time.Millisecond)
				lost, err := svc.SampleReaction(ctx, view.ID, noFace(client()))
				So(err, ShouldBeNil)
				So(lost.State, ShouldEqual, reaction.StateShowing)
			}
			clk.Advance(200 * time.Millisecond)
			back, err := svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, client()))
			So(err, ShouldBeNil)

			Convey("Then the hold starts over instead of capturing", func() {
				So(back.State, ShouldEqual, reaction.StateMatching)

				clk.Advance(time.Second)
				held, err := svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, client()))
				So(err, ShouldBeNil)
				So(held.State, ShouldEqual, reaction.StateCapturing)
			})
		})

		Convey("When a capture is requested before a match", func() {
			view, err := svc.StartReaction(ctx, 2, service.Player{})
			So(err, ShouldBeNil)
			_, err = svc.CaptureReaction(ctx, view.ID, nil)

			Convey("Then it is an invalid transition", func() {
				So(errors.Is(err, reaction.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When a match is not captured in time", func() {
			view, err := svc.StartReaction(ctx, 2, service.Player{})
			So(err, ShouldBeNil)
			target := string(view.Target)
			_, _ = svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, clk.Now()))
			clk.Advance(time.Second)
			_, _ = svc.SampleReaction(ctx, view.ID, face(target, 0.9, 0.2, clk.Now()))
			clk.Advance(6 * time.Second)

			Convey("Then the game reverts to showing", func() {
				got, err := svc.GetReaction(ctx, view.ID)
				So(err, ShouldBeNil)
				So(got.State, ShouldEqual, reaction.StateShowing)
			})
		})
	})
}

func TestServiceIntegration_Capsules(t *testing.T) {
	Convey("Given an open time capsule", t, func() {
		clk := newClock()
		svc := startService(t, clk)
		defer svc.Stop()
		ctx := context.Background()

		capsule, err := svc.StartCapsule(ctx, "Summer Trip 2025!")
		So(err, ShouldBeNil)
		So(capsule.Slug, ShouldEqual, "summer-trip-2025")
		So(capsule.Flow, ShouldNotBeNil)

		capture := func() service.CapsuleCapture {
			got, err := svc.GetCapsule(ctx, capsule.ID)
			So(err, ShouldBeNil)
			target := string(got.Flow.Target)
			_, err = svc.SampleCapsule(ctx, capsule.ID, face(target, 0.95, 0.4, clk.Now()))
			So(err, ShouldBeNil)
			clk.Advance(time.Second)
			_, err = svc.SampleCapsule(ctx, capsule.ID, face(target, 0.95, 0.4, clk.Now()))
			So(err, ShouldBeNil)
			out, err := svc.CaptureCapsule(ctx, capsule.ID, pngFrame())
			So(err, ShouldBeNil)
			return out
		}

		Convey("When two prompts are captured and the capsule is closed", func() {
			first := capture()
			second := capture()
			closed, err := svc.CloseCapsule(ctx, capsule.ID)
			So(err, ShouldBeNil)

			Convey("Then the events are stored in order", func() {
				So(first.Kind, ShouldEqual, service.OutcomeSaved)
				So(first.Event.Prompt, ShouldNotBeEmpty)
				So(second.Flow.Round, ShouldEqual, 3)
				So(closed.ClosedAt, ShouldNotBeNil)

				got, err := svc.GetCapsule(ctx, capsule.ID)
				So(err, ShouldBeNil)
				So(got.Events, ShouldHaveLength, 2)
				So(got.Flow, ShouldBeNil)
			})

			Convey("And the collage draws both frames", func() {
				c, err := svc.CapsuleCollage(ctx, capsule.ID)
				So(err, ShouldBeNil)
				So(c.Filename, ShouldEqual, "summer-trip-2025-collage.png")
				So(c.Stats.Drawn, ShouldEqual, 2)
				So(c.Stats.Failed, ShouldEqual, 0)
				So(c.Image.Bounds().Dx(), ShouldEqual, c.Stats.Layout.Width)
			})

			Convey("And samples for the closed capsule are refused", func() {
				_, err := svc.SampleCapsule(ctx, capsule.ID, face("happy", 0.9, 0.2, clk.Now()))
				So(service.IsNotFound(err), ShouldBeTrue)
			})
		})

		Convey("When every prompt is captured", func() {
			for range reaction.CapsuleRounds() {
				capture()
			}

			Convey("Then the capsule closes itself", func() {
				got, err := svc.GetCapsule(ctx, capsule.ID)
				So(err, ShouldBeNil)
				So(got.ClosedAt, ShouldNotBeNil)
				So(got.Events, ShouldHaveLength, len(reaction.CapsuleRounds()))
			})
		})

		Convey("When the capsule is unknown", func() {
			_, err := svc.GetCapsule(ctx, "missing")

			Convey("Then it is not found", func() {
				So(service.IsNotFound(err), ShouldBeTrue)
			})
		})
	})
}

func TestServiceIntegration_Media(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(t, newClock())
		defer svc.Stop()
		ctx := context.Background()

		Convey("When an image is shared", func() {
			dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngFrame())
			shared, err := svc.Share(ctx, "  my best smile  ", dataURL)
			So(err, ShouldBeNil)

			Convey("Then the record is stored with its links", func() {
				So(shared.Title, ShouldEqual, "my best smile")
				So(shared.ShareURL, ShouldEqual, "http://facepulse.test/share/"+shared.ID)
				So(shared.ImageURL, ShouldStartWith, "http://facepulse.test/media/shares/")

				got, err := svc.GetShare(ctx, shared.ID)
				So(err, ShouldBeNil)
				So(got.ImageURL, ShouldEqual, shared.ImageURL)
			})
		})

		Convey("When the shared payload is not an image", func() {
			dataURL := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
			_, err := svc.Share(ctx, "", dataURL)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, blob.ErrNotImage), ShouldBeTrue)
			})
		})

		Convey("When a quote is requested twice", func() {
			q1, err := svc.Quote(ctx, "happy", 85)
			So(err, ShouldBeNil)
			q2, err := svc.Quote(ctx, "happy", 90)
			So(err, ShouldBeNil)

			Convey("Then the second comes from the cache", func() {
				So(q1.Text, ShouldNotBeEmpty)
				So(q1.Cached, ShouldBeFalse)
				So(q2.Cached, ShouldBeTrue)
				So(q2.Text, ShouldEqual, q1.Text)
			})
		})

		Convey("When a quote is requested for an unknown emotion", func() {
			_, err := svc.Quote(ctx, "bored", 10)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, model.ErrUnknownEmotion), ShouldBeTrue)
			})
		})
	})
}
