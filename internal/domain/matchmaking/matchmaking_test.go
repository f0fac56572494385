package matchmaking_test

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/okian/blindpair/internal/domain/matchmaking"
	"github.com/okian/blindpair/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func pool(n int) []model.Item {
	out := make([]model.Item, n)
	for i := range out {
		out[i] = model.Item{
			ID:         fmt.Sprintf("item-%02d", i),
			CategoryID: "cat",
			EloRating:  model.DefaultEloRating + float64((i*37)%200),
		}
	}
	return out
}

func item(id string, cc int, elo float64) model.Item {
	return model.Item{ID: id, CategoryID: "cat", ComparisonCount: cc, EloRating: elo}
}

func vs(a, b string) model.Comparison {
	return model.Comparison{CategoryID: "cat", ItemAID: a, ItemBID: b, WinnerID: a, LeftItemID: a, RightItemID: b}
}

func record(p *model.MatchPair) model.Comparison {
	c := vs(p.ItemAID, p.ItemBID)
	c.LeftItemID, c.RightItemID = p.LeftItemID, p.RightItemID
	return c
}

func TestNextPair(t *testing.T) {
	Convey("Given a matchmaking engine", t, func() {
		e := matchmaking.NewEngine(matchmaking.WithSeed(7))

		Convey("When the pool is too small", func() {
			_, err := e.NextPair(matchmaking.Snapshot{Items: pool(1)})
			So(err, ShouldEqual, matchmaking.ErrInsufficientItems)
		})

		for _, n := range []int{2, 3, 4, 7, 12} {
			n := n
			Convey(fmt.Sprintf("When a %d-item session is driven to exhaustion", n), func() {
				items := pool(n)
				var session []model.Comparison
				seen := map[model.PairKey]bool{}
				calls := 0
				coverageOK := true

				for {
					p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
					So(err, ShouldBeNil)
					if p == nil {
						break
					}
					calls++
					key := model.NewPairKey(p.ItemAID, p.ItemBID)
					So(seen[key], ShouldBeFalse)
					seen[key] = true

					if p.Phase == model.PhaseCoverage {
						before := matchmaking.PhaseOf(items, session)
						So(before, ShouldEqual, model.PhaseCoverage)
						unseenA, unseenB := true, true
						for _, c := range session {
							unseenA = unseenA && !c.Involves(p.ItemAID)
							unseenB = unseenB && !c.Involves(p.ItemBID)
						}
						coverageOK = coverageOK && (unseenA || unseenB)
					}
					So([]string{p.LeftItemID, p.RightItemID}, ShouldContain, p.ItemAID)
					So([]string{p.LeftItemID, p.RightItemID}, ShouldContain, p.ItemBID)
					So(p.CategoryID, ShouldEqual, "cat")
					session = append(session, record(p))
				}

				Convey("Then every pair is produced exactly once", func() {
					So(calls, ShouldEqual, n*(n-1)/2)
					So(matchmaking.IsExhausted(items, session), ShouldBeTrue)
					So(matchmaking.HasFullCoverage(items, session), ShouldBeTrue)
				})

				Convey("Then every coverage pair contained an unseen item", func() {
					So(coverageOK, ShouldBeTrue)
				})
			})
		}

		Convey("When a four-item category starts fresh", func() {
			items := pool(4)
			var session []model.Comparison
			for i := 0; i < 2; i++ {
				p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
				So(err, ShouldBeNil)
				session = append(session, record(p))
			}

			Convey("Then two selections cover every item", func() {
				So(matchmaking.HasFullCoverage(items, session), ShouldBeTrue)
			})
		})

		Convey("When unseen items differ in global exposure", func() {
			items := []model.Item{item("busy-1", 10, 1500), item("fresh-1", 0, 1500), item("busy-2", 10, 1500), item("fresh-2", 0, 1500)}
			p, err := e.NextPair(matchmaking.Snapshot{Items: items})
			So(err, ShouldBeNil)

			Convey("Then the least compared unseen items are paired first", func() {
				So(model.NewPairKey(p.ItemAID, p.ItemBID), ShouldResemble, model.NewPairKey("fresh-1", "fresh-2"))
				So(p.Phase, ShouldEqual, model.PhaseCoverage)
			})
		})

		Convey("When one item is left unseen", func() {
			items := []model.Item{item("a", 0, 1500), item("b", 0, 1500), item("c", 0, 1500), item("d", 0, 1500), item("e", 0, 1500)}
			session := []model.Comparison{vs("a", "b"), vs("c", "d"), vs("a", "c"), vs("a", "d")}
			p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
			So(err, ShouldBeNil)

			Convey("Then it is paired with the least shown seen item", func() {
				So(model.NewPairKey(p.ItemAID, p.ItemBID), ShouldResemble, model.NewPairKey("b", "e"))
			})
		})
	})
}

func TestNextPairDepth(t *testing.T) {
	Convey("Given a fully covered session", t, func() {
		var relaxed []model.Phase
		e := matchmaking.NewEngine(matchmaking.WithSeed(1), matchmaking.WithRelaxHook(func(p model.Phase) { relaxed = append(relaxed, p) }))

		Convey("When an item appeared in each of the last two comparisons", func() {
			items := []model.Item{item("a", 0, 1500), item("b", 0, 1500), item("c", 0, 1500), item("d", 0, 1500), item("e", 0, 1500)}
			session := []model.Comparison{vs("a", "b"), vs("c", "d"), vs("a", "e"), vs("a", "c")}
			p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
			So(err, ShouldBeNil)

			Convey("Then it is excluded while alternatives exist", func() {
				So(p.Phase, ShouldEqual, model.PhaseDepth)
				So(p.ItemAID, ShouldNotEqual, "a")
				So(p.ItemBID, ShouldNotEqual, "a")
				So(relaxed, ShouldBeEmpty)
			})
		})

		Convey("When only streak-blocked pairs remain", func() {
			items := []model.Item{item("a", 0, 1500), item("b", 0, 1500), item("c", 0, 1500), item("d", 0, 1500)}
			session := []model.Comparison{vs("b", "c"), vs("b", "d"), vs("c", "d"), vs("a", "c"), vs("a", "d")}
			p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
			So(err, ShouldBeNil)

			Convey("Then the limit is relaxed rather than returning nothing", func() {
				So(model.NewPairKey(p.ItemAID, p.ItemBID), ShouldResemble, model.NewPairKey("a", "b"))
				So(relaxed, ShouldResemble, []model.Phase{model.PhaseDepth})
			})
		})

		Convey("When two candidates tie except for cross-session exposure", func() {
			items := []model.Item{item("a", 0, 1500), item("b", 0, 1500), item("c", 0, 1500), item("d", 0, 1500)}
			session := []model.Comparison{vs("a", "b"), vs("c", "d")}

			p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
			So(err, ShouldBeNil)
			So(model.NewPairKey(p.ItemAID, p.ItemBID), ShouldResemble, model.NewPairKey("a", "c"))

			p, err = e.NextPair(matchmaking.Snapshot{Items: items, Session: session, Global: []model.Comparison{vs("c", "a")}})
			So(err, ShouldBeNil)

			Convey("Then the less exposed pair wins", func() {
				So(model.NewPairKey(p.ItemAID, p.ItemBID), ShouldResemble, model.NewPairKey("a", "d"))
			})
		})
	})
}

func TestNextPairLargeCategory(t *testing.T) {
	Convey("Given low-exposure items far apart in rating", t, func() {
		items := []model.Item{
			item("r1", 0, 1000), item("r2", 0, 2000),
			item("x1", 1, 1500), item("x2", 1, 1500), item("x3", 1, 1500), item("x4", 1, 1500),
		}
		session := []model.Comparison{vs("r1", "r2"), vs("x1", "x2"), vs("x3", "x4")}

		Convey("When the search is exhaustive", func() {
			p, err := matchmaking.NewEngine(matchmaking.WithSeed(3)).NextPair(matchmaking.Snapshot{Items: items, Session: session})
			So(err, ShouldBeNil)

			Convey("Then the globally best pair is chosen", func() {
				So(strings.HasPrefix(p.ItemAID, "x"), ShouldBeTrue)
				So(strings.HasPrefix(p.ItemBID, "x"), ShouldBeTrue)
			})
		})

		Convey("When the pool counts as large", func() {
			e := matchmaking.NewEngine(
				matchmaking.WithSeed(3),
				matchmaking.WithLargeCategoryThreshold(5),
				matchmaking.WithRowCandidateLimit(2),
			)
			p, err := e.NextPair(matchmaking.Snapshot{Items: items, Session: session})
			So(err, ShouldBeNil)

			Convey("Then rows are limited to the least compared items", func() {
				So([]string{"r1", "r2"}, ShouldContain, p.ItemAID)
			})
		})

		Convey("When every row candidate is already compared", func() {
			var relaxed int
			e := matchmaking.NewEngine(
				matchmaking.WithSeed(3),
				matchmaking.WithLargeCategoryThreshold(3),
				matchmaking.WithRowCandidateLimit(1),
				matchmaking.WithRelaxHook(func(model.Phase) { relaxed++ }),
			)
			small := []model.Item{item("r", 0, 1500), item("a", 1, 1500), item("b", 1, 1500), item("c", 1, 1500)}
			p, err := e.NextPair(matchmaking.Snapshot{Items: small, Session: []model.Comparison{vs("r", "a"), vs("r", "b"), vs("r", "c")}})
			So(err, ShouldBeNil)

			Convey("Then a linear scan finds the first open pair", func() {
				So(p.ItemAID, ShouldEqual, "a")
				So(p.ItemBID, ShouldEqual, "b")
				So(relaxed, ShouldEqual, 1)
			})
		})
	})
}

func TestPositionAssignment(t *testing.T) {
	Convey("Given two items with different left exposure", t, func() {
		e := matchmaking.NewEngine(matchmaking.WithSeed(11))
		lefty := item("lefty", 0, 1500)
		lefty.LeftCount = 6
		righty := item("righty", 0, 1500)
		righty.RightCount = 6

		Convey("Then the item owed left appearances is placed left", func() {
			for i := 0; i < 20; i++ {
				p, err := e.NextPair(matchmaking.Snapshot{Items: []model.Item{lefty, righty}})
				So(err, ShouldBeNil)
				So(p.LeftItemID, ShouldEqual, "righty")
				So(p.RightItemID, ShouldEqual, "lefty")
			}
		})
	})

	Convey("Given two balanced items", t, func() {
		e := matchmaking.NewEngine(matchmaking.WithSeed(11))
		items := []model.Item{item("a", 0, 1500), item("b", 0, 1500)}
		lefts := map[string]int{}
		for i := 0; i < 400; i++ {
			p, err := e.NextPair(matchmaking.Snapshot{Items: items})
			So(err, ShouldBeNil)
			lefts[p.LeftItemID]++
		}

		Convey("Then each side is chosen about half the time", func() {
			So(lefts["a"], ShouldBeBetween, 140, 260)
			So(lefts["b"], ShouldBeBetween, 140, 260)
		})
	})
}

func TestNextQuad(t *testing.T) {
	Convey("Given a quad engine", t, func() {
		e := matchmaking.NewEngine(matchmaking.WithSeed(5))

		Convey("When the pool has fewer than four items", func() {
			_, err := e.NextQuad(matchmaking.Snapshot{Items: pool(3)})
			So(err, ShouldEqual, matchmaking.ErrInsufficientItems)
		})

		Convey("When the pool has eight widely rated items", func() {
			items := make([]model.Item, 8)
			for i := range items {
				items[i] = item(fmt.Sprintf("q%d", i), i%3, 1000+float64(i)*150)
			}
			q, err := e.NextQuad(matchmaking.Snapshot{Items: items})
			So(err, ShouldBeNil)

			Convey("Then four distinct items are returned in a shuffled order", func() {
				So(q.ItemIDs, ShouldHaveLength, 4)
				uniq := map[string]bool{}
				for _, id := range q.ItemIDs {
					uniq[id] = true
				}
				So(uniq, ShouldHaveLength, 4)

				a := append([]string(nil), q.ItemIDs...)
				b := append([]string(nil), q.Positions...)
				sort.Strings(a)
				sort.Strings(b)
				So(b, ShouldResemble, a)
				So(q.Phase, ShouldEqual, model.PhaseCoverage)
			})
		})

		Convey("When the fourth candidate sits on the chosen average", func() {
			items := []model.Item{
				item("p1", 0, 1500), item("p2", 0, 1500), item("p3", 0, 1500),
				item("near", 1, 1510), item("far", 2, 1600),
			}
			q, err := e.NextQuad(matchmaking.Snapshot{Items: items})
			So(err, ShouldBeNil)

			Convey("Then a more diverse candidate is preferred", func() {
				So(q.ItemIDs, ShouldResemble, []string{"p1", "p2", "p3", "far"})
			})
		})

		Convey("When no candidate is diverse enough", func() {
			items := []model.Item{
				item("p1", 0, 1500), item("p2", 0, 1500), item("p3", 0, 1500),
				item("near", 1, 1510), item("nearer", 2, 1505),
			}
			q, err := e.NextQuad(matchmaking.Snapshot{Items: items})
			So(err, ShouldBeNil)
			So(q.ItemIDs[3], ShouldEqual, "near")
		})

		Convey("When some items were already shown this session", func() {
			items := []model.Item{item("s1", 0, 1500), item("s2", 0, 1500), item("u1", 5, 1500), item("u2", 5, 1600), item("u3", 5, 1700), item("u4", 5, 1800)}
			q, err := e.NextQuad(matchmaking.Snapshot{Items: items, Session: []model.Comparison{vs("s1", "s2")}})
			So(err, ShouldBeNil)

			Convey("Then unseen items are preferred", func() {
				So(q.ItemIDs, ShouldNotContain, "s1")
				So(q.ItemIDs, ShouldNotContain, "s2")
			})
		})

		Convey("When shuffling many quads", func() {
			items := pool(4)
			counts := map[string]int{}
			for i := 0; i < 2400; i++ {
				q, err := e.NextQuad(matchmaking.Snapshot{Items: items})
				So(err, ShouldBeNil)
				counts[strings.Join(q.Positions, ",")]++
			}

			Convey("Then all 24 orderings show up at similar rates", func() {
				So(counts, ShouldHaveLength, 24)
				for _, c := range counts {
					So(c, ShouldBeBetween, 50, 150)
				}
			})
		})
	})
}
