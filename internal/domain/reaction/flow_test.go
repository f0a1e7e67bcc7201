package reaction_test

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/internal/domain/reaction"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Unix(1_700_000_000, 0)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

func twoRounds() []reaction.Round {
	return []reaction.Round{
		{Target: model.EmotionHappy},
		{Target: model.EmotionSurprised},
	}
}

func TestFlowLifecycle(t *testing.T) {
	Convey("Given a started two-round flow", t, func() {
		f, err := reaction.New("f1", reaction.KindEmojiReaction, twoRounds())
		So(err, ShouldBeNil)
		So(f.State(), ShouldEqual, reaction.StateIdle)
		So(f.Start(t0), ShouldBeNil)
		So(f.State(), ShouldEqual, reaction.StateShowing)

		Convey("When the wrong emotion is shown", func() {
			state := f.Observe(model.EmotionSad, 95, at(200))

			Convey("Then it keeps showing", func() {
				So(state, ShouldEqual, reaction.StateShowing)
			})
		})

		Convey("When the target is held for one second", func() {
			So(f.Observe(model.EmotionHappy, 70, at(200)), ShouldEqual, reaction.StateMatching)
			So(f.Snapshot(at(700)).Progress, ShouldAlmostEqual, 0.5, 1e-9)
			So(f.Observe(model.EmotionHappy, 80, at(1200)), ShouldEqual, reaction.StateCapturing)

			Convey("Then fulfilling the capture scores the round", func() {
				r, err := f.Fulfill("http://x/media/a.jpg", at(1500))
				So(err, ShouldBeNil)
				So(r.Points, ShouldEqual, 80)
				So(r.Done, ShouldBeTrue)
				So(f.State(), ShouldEqual, reaction.StateCaptured)

				state, err := f.Next(at(1600))
				So(err, ShouldBeNil)
				So(state, ShouldEqual, reaction.StateShowing)
				So(f.Snapshot(at(1600)).Target, ShouldEqual, model.EmotionSurprised)
			})

			Convey("Then an unfulfilled capture reverts after five seconds", func() {
				So(f.Tick(at(4000)), ShouldEqual, reaction.StateCapturing)
				So(f.Tick(at(6200)), ShouldEqual, reaction.StateShowing)

				_, err := f.Fulfill("late", at(6300))
				So(errors.Is(err, reaction.ErrInvalidTransition), ShouldBeTrue)
			})
		})

		Convey("When the hold is broken by a low confidence sample", func() {
			f.Observe(model.EmotionHappy, 70, at(200))
			f.Observe(model.EmotionHappy, 10, at(800))
			state := f.Observe(model.EmotionHappy, 70, at(1200))

			Convey("Then the hold restarts", func() {
				So(state, ShouldEqual, reaction.StateMatching)
			})
		})

		Convey("When the face is lost in the middle of a hold", func() {
			So(f.Observe(model.EmotionHappy, 80, at(200)), ShouldEqual, reaction.StateMatching)
			for ms := 400; ms <= 1000; ms += 200 {
				So(f.Lost(at(ms)), ShouldEqual, reaction.StateShowing)
			}

			Convey("Then the hold starts over when the match returns", func() {
				So(f.Observe(model.EmotionHappy, 80, at(1200)), ShouldEqual, reaction.StateMatching)
				So(f.Snapshot(at(1200)).Progress, ShouldAlmostEqual, 0, 1e-9)
				So(f.Observe(model.EmotionHappy, 80, at(2200)), ShouldEqual, reaction.StateCapturing)
			})
		})

		Convey("When the face is lost while a capture is pending", func() {
			f.Observe(model.EmotionHappy, 80, at(0))
			So(f.Observe(model.EmotionHappy, 80, at(1000)), ShouldEqual, reaction.StateCapturing)

			Convey("Then only the capture timeout applies", func() {
				So(f.Lost(at(2000)), ShouldEqual, reaction.StateCapturing)
				So(f.Lost(at(6000)), ShouldEqual, reaction.StateShowing)
			})
		})

		Convey("When both rounds are completed", func() {
			f.Observe(model.EmotionHappy, 90, at(0))
			f.Observe(model.EmotionHappy, 90, at(1000))
			_, _ = f.Fulfill("a", at(1100))
			_, _ = f.Next(at(1200))
			f.Observe(model.EmotionSurprised, 60, at(1400))
			f.Observe(model.EmotionSurprised, 60, at(2400))
			_, _ = f.Fulfill("b", at(2500))
			state, err := f.Next(at(2600))

			Convey("Then the flow is completed with both scores", func() {
				So(err, ShouldBeNil)
				So(state, ShouldEqual, reaction.StateCompleted)
				v := f.Snapshot(at(2600))
				So(v.Total, ShouldEqual, 150)
				So(v.Target, ShouldEqual, model.Emotion(""))
				So(f.Observe(model.EmotionHappy, 90, at(3000)), ShouldEqual, reaction.StateCompleted)
			})
		})

		Convey("When starting twice", func() {
			So(errors.Is(f.Start(at(10)), reaction.ErrInvalidTransition), ShouldBeTrue)
		})
	})

	Convey("Given no rounds", t, func() {
		_, err := reaction.New("f", reaction.KindTimeCapsule, nil)
		So(err, ShouldEqual, reaction.ErrNoRounds)
	})
}

func TestPresets(t *testing.T) {
	Convey("Given the emoji preset", t, func() {
		rounds := reaction.EmojiRounds(20, rand.New(rand.NewPCG(1, 2)))

		Convey("Then it has the requested rounds without back-to-back repeats", func() {
			So(rounds, ShouldHaveLength, 20)
			for i := 1; i < len(rounds); i++ {
				So(rounds[i].Target, ShouldNotEqual, rounds[i-1].Target)
				So(rounds[i].Emoji, ShouldNotBeEmpty)
			}
		})
	})

	Convey("Given the time capsule preset", t, func() {
		rounds := reaction.CapsuleRounds()

		Convey("Then every prompt targets one emotion", func() {
			So(rounds, ShouldHaveLength, 5)
			for _, r := range rounds {
				So(r.Prompt, ShouldNotBeEmpty)
			}
		})
	})
}
