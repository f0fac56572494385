package loadtest

import (
	"testing"

	service "github.com/okian/blindpair/internal/app"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAgreement(t *testing.T) {
	Convey("Given hidden strengths a > b > c > d", t, func() {
		truth := map[string]float64{"a": 4, "b": 3, "c": 2, "d": 1}
		of := func(id string) float64 { return truth[id] }
		board := func(ids ...string) []service.Ranking {
			out := make([]service.Ranking, len(ids))
			for i, id := range ids {
				out[i] = service.Ranking{Rank: i + 1, ItemID: id}
			}
			return out
		}

		Convey("Then a matching leaderboard scores 1", func() {
			So(agreement(board("a", "b", "c", "d"), of), ShouldAlmostEqual, 1)
		})

		Convey("Then a reversed leaderboard scores -1", func() {
			So(agreement(board("d", "c", "b", "a"), of), ShouldAlmostEqual, -1)
		})

		Convey("Then one swapped neighbour pair scores 0.8", func() {
			So(agreement(board("b", "a", "c", "d"), of), ShouldAlmostEqual, 0.8)
		})

		Convey("Then a single item scores 1", func() {
			So(agreement(board("a"), of), ShouldEqual, 1)
		})
	})
}

func TestStrength(t *testing.T) {
	Convey("Hidden strengths are fixed by seed and id", t, func() {
		So(strength(1, "x"), ShouldEqual, strength(1, "x"))
		So(strength(1, "x"), ShouldNotEqual, strength(2, "x"))
	})
}
