package analytics_test

import (
	"testing"
	"time"

	"github.com/okian/facepulse/internal/domain/analytics"
	"github.com/okian/facepulse/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func moment(e model.Emotion, smile int) model.CapturedMoment {
	return model.CapturedMoment{Metrics: model.DerivedMetrics{Emotion: e, SmilePercentage: smile}}
}

func TestSummarize(t *testing.T) {
	Convey("Given an ended session with four moments", t, func() {
		start := time.Unix(1_700_000_000, 0)
		end := start.Add(2 * time.Minute)
		s := model.Session{ID: "s1", StartedAt: start, EndedAt: &end, DurationSeconds: 120, BlinkCount: 30}
		moments := []model.CapturedMoment{
			moment(model.EmotionHappy, 90),
			moment(model.EmotionHappy, 70),
			moment(model.EmotionSad, 10),
			moment(model.EmotionNeutral, 30),
		}

		sum := analytics.Summarize(s, moments, end.Add(time.Hour))

		Convey("Then the distribution leads with the dominant emotion", func() {
			So(sum.Moments, ShouldEqual, 4)
			So(sum.Dominant, ShouldEqual, model.EmotionHappy)
			So(sum.Emotions[0].Count, ShouldEqual, 2)
			So(sum.Emotions[0].Share, ShouldEqual, 0.5)
			So(sum.Emotions, ShouldHaveLength, 5)
		})

		Convey("Then smile statistics are computed", func() {
			So(sum.Smile.Mean, ShouldEqual, 50)
			So(sum.Smile.Median, ShouldEqual, 50)
			So(sum.Smile.Max, ShouldEqual, 90)
			So(sum.Smile.P90, ShouldEqual, 90)
		})

		Convey("Then blink rate uses the stored duration", func() {
			So(sum.DurationSeconds, ShouldEqual, 120)
			So(sum.BlinksPerMinute, ShouldEqual, 15)
		})
	})

	Convey("Given an active session with no moments", t, func() {
		start := time.Unix(1_700_000_000, 0)
		sum := analytics.Summarize(model.Session{ID: "s2", StartedAt: start}, nil, start.Add(90*time.Second))

		Convey("Then duration runs to now and stats are zero", func() {
			So(sum.DurationSeconds, ShouldEqual, 90)
			So(sum.Dominant, ShouldEqual, model.Emotion(""))
			So(sum.Smile, ShouldResemble, analytics.SmileStats{})
		})
	})
}

func TestAggregate(t *testing.T) {
	Convey("Given active and ended sessions", t, func() {
		end := time.Unix(1_700_000_100, 0)
		sessions := []model.Session{
			{ID: "a", EndedAt: &end, DurationSeconds: 60, BlinkCount: 5},
			{ID: "b", EndedAt: &end, DurationSeconds: 120, BlinkCount: 7},
			{ID: "c", BlinkCount: 1},
		}
		d := analytics.Aggregate(sessions, []model.CapturedMoment{moment(model.EmotionAngry, 5)})

		Convey("Then active sessions are excluded from duration", func() {
			So(d.Sessions, ShouldEqual, 3)
			So(d.ActiveSessions, ShouldEqual, 1)
			So(d.AvgDurationSecs, ShouldEqual, 90)
			So(d.TotalBlinks, ShouldEqual, 13)
			So(d.Emotions[0].Emotion, ShouldEqual, model.EmotionAngry)
		})
	})
}
