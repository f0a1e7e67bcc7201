package scoring_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/facepulse/internal/domain/model"
	scoring "github.com/okian/facepulse/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Unix(1_700_000_000, 0)

func face(smile int, e model.Emotion, conf int, blink bool) model.DerivedMetrics {
	return model.DerivedMetrics{
		FaceDetected:      true,
		SmilePercentage:   smile,
		Emotion:           e,
		EmotionConfidence: conf,
		BlinkDetected:     blink,
	}
}

func TestSmileChallenge(t *testing.T) {
	Convey("Given a ten second smile challenge", t, func() {
		c, err := scoring.NewChallenge("c1", scoring.KindSmile, t0, scoring.WithDuration(10*time.Second))
		So(err, ShouldBeNil)

		Convey("When half the samples clear the threshold", func() {
			c.Observe(face(80, model.EmotionHappy, 90, false), t0.Add(time.Second))
			c.Observe(face(20, model.EmotionNeutral, 90, false), t0.Add(2*time.Second))
			c.Observe(face(100, model.EmotionHappy, 90, false), t0.Add(3*time.Second))
			c.Observe(face(10, model.EmotionNeutral, 90, false), t0.Add(4*time.Second))
			c.Observe(model.DerivedMetrics{}, t0.Add(5*time.Second))

			Convey("Then only qualifying smiles count toward the mean", func() {
				r := c.Result(t0.Add(5 * time.Second))
				So(r.Samples, ShouldEqual, 4)
				So(r.Hits, ShouldEqual, 2)
				So(r.Score, ShouldEqual, 45)
				So(r.Active, ShouldBeTrue)
			})
		})

		Convey("When a sample arrives after the deadline", func() {
			c.Observe(face(90, model.EmotionHappy, 90, false), t0.Add(time.Second))
			active := c.Observe(face(90, model.EmotionHappy, 90, false), t0.Add(11*time.Second))

			Convey("Then it is ignored and the challenge is over", func() {
				So(active, ShouldBeFalse)
				r := c.Result(t0.Add(20 * time.Second))
				So(r.Active, ShouldBeFalse)
				So(r.Samples, ShouldEqual, 1)
				So(r.Elapsed, ShouldEqual, 10)
			})
		})

		Convey("When finished early", func() {
			r := c.Finish(t0.Add(3 * time.Second))

			Convey("Then elapsed stops at the finish time", func() {
				So(r.Active, ShouldBeFalse)
				So(r.Elapsed, ShouldEqual, 3)
				So(c.Observe(face(90, model.EmotionHappy, 90, false), t0.Add(4*time.Second)), ShouldBeFalse)
			})
		})
	})
}

func TestSurpriseAndBlinkChallenges(t *testing.T) {
	Convey("Given weighted challenges", t, func() {
		weights := map[string]float64{"surprise": 1.5, "blink": 0.5}

		Convey("When a third of samples are surprised", func() {
			c, _ := scoring.NewChallenge("s", scoring.KindSurprise, t0, scoring.WithWeightsFromConfig(weights))
			c.Observe(face(0, model.EmotionSurprised, 80, false), t0)
			c.Observe(face(0, model.EmotionNeutral, 80, false), t0)
			c.Observe(face(0, model.EmotionSurprised, 20, false), t0)

			Convey("Then the weighted share is the score", func() {
				So(c.Result(t0).Score, ShouldEqual, 50)
			})
		})

		Convey("When blinking many times", func() {
			c, _ := scoring.NewChallenge("b", scoring.KindBlink, t0, scoring.WithWeightsFromConfig(weights))
			for i := 0; i < 30; i++ {
				c.Observe(face(0, model.EmotionNeutral, 80, true), t0)
			}

			Convey("Then the score is capped at 100", func() {
				So(c.Result(t0).Score, ShouldEqual, 100)
			})
		})
	})

	Convey("Given an unknown kind", t, func() {
		_, err := scoring.NewChallenge("x", scoring.Kind("frown"), t0)
		So(errors.Is(err, scoring.ErrUnknownKind), ShouldBeTrue)
	})
}
