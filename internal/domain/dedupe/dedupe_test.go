package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/okian/facepulse/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		So(d.Size(), ShouldEqual, 0)

		Convey("When a submission ID is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "sub-1")
			second := d.SeenAndRecord(ctx, "sub-1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a recorded ID is unrecorded", func() {
			d.SeenAndRecord(ctx, "sub-1")
			d.Unrecord(ctx, "sub-1")
			d.Unrecord(ctx, "missing")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "sub-1"), ShouldBeFalse)
			})
		})
	})

	Convey("Given a deduper bounded to three IDs", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, id := range []string{"a", "b", "c"} {
			So(d.SeenAndRecord(ctx, id), ShouldBeFalse)
		}

		Convey("When a fourth ID arrives", func() {
			d.SeenAndRecord(ctx, "d")

			Convey("Then the oldest ID is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When a middle ID is unrecorded before overflow", func() {
			d.Unrecord(ctx, "b")
			d.SeenAndRecord(ctx, "d")

			Convey("Then nothing else needs evicting", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeTrue)
			})
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		const n = 1000
		for i := 0; i < n; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("sub-%d", i))
		}

		Convey("Then every ID is kept", func() {
			So(d.Size(), ShouldEqual, int64(n))
			So(d.SeenAndRecord(ctx, "sub-0"), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given a deduper shared by goroutines", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))
		const workers, perWorker = 10, 100

		Convey("When every goroutine records the same IDs", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for w := 0; w < workers; w++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < perWorker; j++ {
						if !d.SeenAndRecord(context.Background(), fmt.Sprintf("sub-%d", j)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each ID is new exactly once", func() {
				So(fresh, ShouldEqual, perWorker)
				So(d.Size(), ShouldEqual, int64(perWorker))
			})
		})
	})
}
