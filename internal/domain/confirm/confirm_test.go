package confirm_test

import (
	"testing"
	"time"

	"github.com/okian/facepulse/internal/domain/confirm"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMachineSamples(t *testing.T) {
	Convey("Given a machine needing two samples and no hold", t, func() {
		m := confirm.New[string](confirm.Config{MinSamples: 2})
		t0 := time.Unix(0, 0)

		Convey("When the same label arrives twice", func() {
			first := m.Observe("happy", 90, t0)
			second := m.Observe("happy", 90, t0.Add(200*time.Millisecond))

			Convey("Then it holds and then confirms", func() {
				So(first, ShouldEqual, confirm.Holding)
				So(second, ShouldEqual, confirm.Confirmed)
				So(m.Label(), ShouldEqual, "happy")
			})

			Convey("Then confirmation is sticky while the label repeats", func() {
				So(m.Observe("happy", 90, t0.Add(400*time.Millisecond)), ShouldEqual, confirm.Confirmed)
			})
		})

		Convey("When the label changes", func() {
			m.Observe("happy", 90, t0)
			state := m.Observe("sad", 90, t0.Add(200*time.Millisecond))

			Convey("Then it restarts holding on the new label", func() {
				So(state, ShouldEqual, confirm.Holding)
				So(m.Label(), ShouldEqual, "sad")
				So(m.Observe("sad", 90, t0.Add(400*time.Millisecond)), ShouldEqual, confirm.Confirmed)
			})
		})
	})
}

func TestMachineHold(t *testing.T) {
	Convey("Given a targeted machine with a one second hold", t, func() {
		m := confirm.New[string](confirm.Config{HoldDuration: time.Second, MinConfidence: 50})
		m.SetTarget("surprised")
		t0 := time.Unix(0, 0)

		Convey("When the target is held long enough", func() {
			m.Observe("surprised", 80, t0)
			mid := m.Observe("surprised", 80, t0.Add(500*time.Millisecond))
			done := m.Observe("surprised", 80, t0.Add(time.Second))

			Convey("Then it confirms at the hold boundary", func() {
				So(mid, ShouldEqual, confirm.Holding)
				So(m.Held(t0.Add(500*time.Millisecond)), ShouldEqual, 500*time.Millisecond)
				So(done, ShouldEqual, confirm.Confirmed)
			})
		})

		Convey("When a low-confidence sample interrupts", func() {
			m.Observe("surprised", 80, t0)
			state := m.Observe("surprised", 20, t0.Add(600*time.Millisecond))

			Convey("Then the hold starts over", func() {
				So(state, ShouldEqual, confirm.Watching)
				So(m.Observe("surprised", 80, t0.Add(1200*time.Millisecond)), ShouldEqual, confirm.Holding)
			})
		})

		Convey("When a different label arrives", func() {
			Convey("Then it never leaves watching", func() {
				So(m.Observe("happy", 99, t0), ShouldEqual, confirm.Watching)
				So(m.Held(t0), ShouldEqual, 0)
			})
		})

		Convey("When the target is cleared", func() {
			m.ClearTarget()

			Convey("Then any label qualifies again", func() {
				So(m.Observe("happy", 99, t0), ShouldEqual, confirm.Holding)
			})
		})
	})
}

func TestStateString(t *testing.T) {
	Convey("States print their names", t, func() {
		So(confirm.Watching.String(), ShouldEqual, "watching")
		So(confirm.Holding.String(), ShouldEqual, "holding")
		So(confirm.Confirmed.String(), ShouldEqual, "confirmed")
	})
}
