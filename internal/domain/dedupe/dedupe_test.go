package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupe "github.com/okian/blindpair/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording votes", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the vote is new", func() {
				So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the vote was already seen", func() {
				d.SeenAndRecord(ctx, "vote-1")
				So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the vote is unrecorded after a failed write", func() {
				d.SeenAndRecord(ctx, "vote-1")
				d.Unrecord(ctx, "vote-1")

				Convey("Then it can be submitted again", func() {
					So(d.Size(), ShouldEqual, 0)
					So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeFalse)
				})
			})

			Convey("And an unknown vote is unrecorded", func() {
				d.SeenAndRecord(ctx, "vote-1")
				d.Unrecord(ctx, "vote-2")
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("vote-%d", i)), ShouldBeFalse)
			}

			Convey("Then the oldest vote is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "vote-4"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "vote-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeFalse)
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.SeenAndRecord(ctx, fmt.Sprintf("vote-%d", i))
			}
			So(d.Size(), ShouldEqual, 1000)
		})

		Convey("When votes carry a TTL", func() {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			d := dedupe.NewInMemoryDeduper(
				dedupe.WithTTL(time.Minute),
				dedupe.WithClock(func() time.Time { return now }),
			)
			d.SeenAndRecord(ctx, "old")
			now = now.Add(30 * time.Second)
			d.SeenAndRecord(ctx, "new")
			now = now.Add(45 * time.Second)

			Convey("Then expired votes are forgotten", func() {
				So(d.SeenAndRecord(ctx, "new"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "old"), ShouldBeFalse)
			})
		})

		Convey("When many goroutines submit the same vote", func() {
			d := dedupe.NewInMemoryDeduper()
			var fresh atomic.Int32
			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "vote-x") {
						fresh.Add(1)
					}
				}()
			}
			wg.Wait()

			Convey("Then exactly one of them records it", func() {
				So(fresh.Load(), ShouldEqual, 1)
			})
		})
	})
}
