package model_test

import (
	"testing"

	"github.com/okian/blindpair/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPairKey(t *testing.T) {
	Convey("Given two item ids", t, func() {
		Convey("When building keys in either order", func() {
			ab := model.NewPairKey("a", "b")
			ba := model.NewPairKey("b", "a")

			Convey("Then the keys are identical", func() {
				So(ab, ShouldResemble, ba)
				So(ab.Lo, ShouldEqual, "a")
				So(ab.Hi, ShouldEqual, "b")
			})
		})
	})
}

func TestComparison(t *testing.T) {
	Convey("Given a recorded comparison", t, func() {
		c := model.Comparison{ItemAID: "x", ItemBID: "y", WinnerID: "y"}

		Convey("Then the loser is the other side", func() {
			So(c.LoserID(), ShouldEqual, "x")
			So(c.Involves("x"), ShouldBeTrue)
			So(c.Involves("z"), ShouldBeFalse)
			So(c.Key(), ShouldResemble, model.NewPairKey("y", "x"))
		})

		Convey("When the comparison is a test or flagged vote", func() {
			test := c
			test.IsTest = true
			flagged := c
			flagged.IsFlagged = true

			Convey("Then only the clean comparison survives filtering", func() {
				So(c.Valid(), ShouldBeTrue)
				So(test.Valid(), ShouldBeFalse)
				So(flagged.Valid(), ShouldBeFalse)
				So(model.ValidOnly([]model.Comparison{c, test, flagged}), ShouldHaveLength, 1)
			})
		})
	})
}

func TestSortCategories(t *testing.T) {
	Convey("Given categories out of display order", t, func() {
		cats := []model.Category{
			{ID: "c", DisplayOrder: 2},
			{ID: "b", DisplayOrder: 1},
			{ID: "a", DisplayOrder: 2},
		}
		model.SortCategories(cats)

		Convey("Then they are ordered by display order then id", func() {
			So(cats[0].ID, ShouldEqual, "b")
			So(cats[1].ID, ShouldEqual, "a")
			So(cats[2].ID, ShouldEqual, "c")
		})
	})
}

func TestSessionOpen(t *testing.T) {
	Convey("Given sessions in different states", t, func() {
		So(model.Session{}.Open(), ShouldBeTrue)
		So(model.Session{IsCompleted: true}.Open(), ShouldBeFalse)
		So(model.Session{IsCompleted: true, ContinuedVoting: true}.Open(), ShouldBeTrue)
	})
}

func TestItemSeedRating(t *testing.T) {
	Convey("Given an item with an artist boost", t, func() {
		it := model.Item{ArtistEloBoost: 75}
		So(it.SeedRating(), ShouldEqual, 1575.0)
		So(model.ModeQuad.Valid(), ShouldBeTrue)
		So(model.Mode("triad").Valid(), ShouldBeFalse)
	})
}
