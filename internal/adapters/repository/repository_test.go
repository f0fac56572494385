package repository_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/blindpair/internal/adapters/repository"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

var engine = rating.NewEngine()

func rate(w, l model.Item) rating.Change {
	return engine.Rate(w.EloRating, w.ComparisonCount, l.EloRating, l.ComparisonCount)
}

type factory struct {
	name string
	open func(t *testing.T) repository.Store
}

func factories() []factory {
	return []factory{
		{"memory", func(*testing.T) repository.Store { return repository.NewMemoryStore() }},
		{"sqlite", func(t *testing.T) repository.Store {
			s, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "study.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func seed(ctx context.Context, s repository.Store, items int) {
	So(s.CreateStudy(ctx, model.Study{ID: "study", Name: "Study", Mode: model.ModePair, KFactor: 32}), ShouldBeNil)
	So(s.CreateCategory(ctx, model.Category{ID: "cat", StudyID: "study", Name: "Cat", DisplayOrder: 2}), ShouldBeNil)
	So(s.CreateCategory(ctx, model.Category{ID: "other", StudyID: "study", Name: "Other", DisplayOrder: 1}), ShouldBeNil)
	for i := 0; i < items; i++ {
		So(s.AddItems(ctx, model.Item{ID: fmt.Sprintf("i%d", i), CategoryID: "cat"}), ShouldBeNil)
	}
	So(s.AddItems(ctx, model.Item{ID: "x", CategoryID: "other"}), ShouldBeNil)
	So(s.CreateSession(ctx, model.Session{ID: "s1", StudyID: "study", CreatedAt: time.Now()}), ShouldBeNil)
}

func pairVote(winner, loser string) repository.VoteRequest {
	return repository.VoteRequest{
		VoteID:     winner + "-" + loser,
		SessionID:  "s1",
		CategoryID: "cat",
		Outcomes:   []repository.Outcome{{WinnerID: winner, LoserID: loser, LeftItemID: winner, RightItemID: loser}},
		CreatedAt:  time.Now(),
	}
}

func TestStoreContract(t *testing.T) {
	for _, f := range factories() {
		f := f
		Convey("Given a "+f.name+" store", t, func() {
			ctx := context.Background()
			s := f.open(t)
			seed(ctx, s, 4)

			Convey("Studies and categories round-trip", func() {
				st, err := s.GetStudy(ctx, "study")
				So(err, ShouldBeNil)
				So(st.Mode, ShouldEqual, model.ModePair)
				So(st.KFactor, ShouldEqual, 32)

				cats, err := s.ListCategories(ctx, "study")
				So(err, ShouldBeNil)
				So(len(cats), ShouldEqual, 2)
				So(cats[0].ID, ShouldEqual, "other")

				_, err = s.GetCategory(ctx, "missing")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("Duplicate ids are rejected", func() {
				err := s.CreateStudy(ctx, model.Study{ID: "study", Name: "again", Mode: model.ModePair})
				So(errors.Is(err, repository.ErrDuplicateID), ShouldBeTrue)
				So(errors.Is(s.AddItems(ctx, model.Item{ID: "i0", CategoryID: "cat"}), repository.ErrDuplicateID), ShouldBeTrue)
			})

			Convey("Items keep insertion order and get the seed rating", func() {
				So(s.AddItems(ctx, model.Item{ID: "boosted", CategoryID: "cat", ArtistEloBoost: 100}), ShouldBeNil)
				items, err := s.ListItems(ctx, "cat")
				So(err, ShouldBeNil)
				So(len(items), ShouldEqual, 5)
				So(items[0].ID, ShouldEqual, "i0")
				So(items[0].EloRating, ShouldEqual, model.DefaultEloRating)
				So(items[4].EloRating, ShouldEqual, model.DefaultEloRating+100)
			})

			Convey("A valid vote moves ratings and counters atomically", func() {
				res, err := s.RecordVote(ctx, pairVote("i0", "i1"), rate)
				So(err, ShouldBeNil)
				So(len(res.Comparisons), ShouldEqual, 1)
				So(res.Comparisons[0].ID, ShouldNotBeEmpty)
				So(res.Session.ComparisonCount, ShouldEqual, 1)

				items, _ := s.ListItems(ctx, "cat")
				So(items[0].EloRating, ShouldEqual, 1516)
				So(items[1].EloRating, ShouldEqual, 1484)
				So(items[0].WinCount, ShouldEqual, 1)
				So(items[1].LossCount, ShouldEqual, 1)
				So(items[0].LeftCount, ShouldEqual, 1)
				So(items[1].RightCount, ShouldEqual, 1)

				sess, _ := s.GetSession(ctx, "s1")
				So(sess.ComparisonCount, ShouldEqual, 1)

				cs, _ := s.SessionComparisons(ctx, "s1", "cat")
				So(len(cs), ShouldEqual, 1)
				So(cs[0].WinnerID, ShouldEqual, "i0")
				So(cs[0].LoserID(), ShouldEqual, "i1")
			})

			Convey("A pair cannot repeat within a session in either order", func() {
				_, err := s.RecordVote(ctx, pairVote("i0", "i1"), rate)
				So(err, ShouldBeNil)
				_, err = s.RecordVote(ctx, pairVote("i1", "i0"), rate)
				So(err, ShouldEqual, repository.ErrAlreadyCompared)

				items, _ := s.ListItems(ctx, "cat")
				So(items[1].ComparisonCount, ShouldEqual, 1)
			})

			Convey("Flagged votes are stored without moving ratings", func() {
				req := pairVote("i2", "i3")
				req.IsFlagged, req.FlagReason = true, "too_fast"
				_, err := s.RecordVote(ctx, req, rate)
				So(err, ShouldBeNil)

				items, _ := s.ListItems(ctx, "cat")
				So(items[2].EloRating, ShouldEqual, model.DefaultEloRating)
				So(items[2].ComparisonCount, ShouldEqual, 0)

				cs, _ := s.CategoryComparisons(ctx, "cat")
				So(len(cs), ShouldEqual, 1)
				So(cs[0].IsFlagged, ShouldBeTrue)
				So(cs[0].FlagReason, ShouldEqual, "too_fast")
				So(model.ValidOnly(cs), ShouldBeEmpty)
			})

			Convey("Foreign items fail without side effects", func() {
				_, err := s.RecordVote(ctx, pairVote("i0", "x"), rate)
				So(errors.Is(err, repository.ErrItemNotInCategory), ShouldBeTrue)
				st, _ := s.Stats(ctx)
				So(st.Comparisons, ShouldEqual, 0)
			})

			Convey("Malformed votes are rejected", func() {
				_, err := s.RecordVote(ctx, pairVote("i0", "i0"), rate)
				So(err, ShouldEqual, repository.ErrInvalidVote)
			})

			Convey("A completed session rejects votes until continued", func() {
				now := time.Now()
				So(s.UpdateSessionState(ctx, model.Session{ID: "s1", IsCompleted: true, CompletedAt: &now}), ShouldBeNil)
				_, err := s.RecordVote(ctx, pairVote("i0", "i1"), rate)
				So(err, ShouldEqual, repository.ErrSessionCompleted)

				So(s.UpdateSessionState(ctx, model.Session{ID: "s1", IsCompleted: true, ContinuedVoting: true, CompletedAt: &now}), ShouldBeNil)
				_, err = s.RecordVote(ctx, pairVote("i0", "i1"), rate)
				So(err, ShouldBeNil)

				sess, _ := s.GetSession(ctx, "s1")
				So(sess.IsCompleted, ShouldBeTrue)
				So(sess.CompletedAt, ShouldNotBeNil)
			})

			Convey("A quad vote records three outcomes sharing a vote id", func() {
				req := repository.VoteRequest{
					VoteID:     "quad-1",
					SessionID:  "s1",
					CategoryID: "cat",
					Outcomes: []repository.Outcome{
						{WinnerID: "i0", LoserID: "i1"},
						{WinnerID: "i0", LoserID: "i2"},
						{WinnerID: "i0", LoserID: "i3"},
					},
					AllowRepeat: true,
					CreatedAt:   time.Now(),
				}
				_, err := s.RecordVote(ctx, req, rate)
				So(err, ShouldBeNil)
				req.VoteID = "quad-2"
				res, err := s.RecordVote(ctx, req, rate)
				So(err, ShouldBeNil)
				So(res.Session.ComparisonCount, ShouldEqual, 6)
				So(res.Items["i0"].WinCount, ShouldEqual, 6)

				cs, _ := s.SessionComparisons(ctx, "s1", "")
				So(len(cs), ShouldEqual, 6)
				So(cs[0].VoteID, ShouldEqual, "quad-1")
				So(cs[5].VoteID, ShouldEqual, "quad-2")
			})

			Convey("Concurrent votes never lose an update", func() {
				So(s.CreateSession(ctx, model.Session{ID: "s2", StudyID: "study", CreatedAt: time.Now()}), ShouldBeNil)
				var wg sync.WaitGroup
				errs := make(chan error, 2)
				for _, sid := range []string{"s1", "s2"} {
					wg.Add(1)
					go func(sid string) {
						defer wg.Done()
						req := pairVote("i0", "i1")
						req.SessionID = sid
						_, err := s.RecordVote(ctx, req, rate)
						errs <- err
					}(sid)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					So(err, ShouldBeNil)
				}
				items, _ := s.ListItems(ctx, "cat")
				So(items[0].ComparisonCount, ShouldEqual, 2)
				So(items[0].EloRating+items[1].EloRating, ShouldAlmostEqual, 2*model.DefaultEloRating, 1e-9)
			})

			Convey("Stats count every table", func() {
				_, _ = s.RecordVote(ctx, pairVote("i0", "i1"), rate)
				st, err := s.Stats(ctx)
				So(err, ShouldBeNil)
				So(st, ShouldResemble, repository.Stats{Studies: 1, Categories: 2, Items: 5, Sessions: 1, Comparisons: 1})
			})
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	Convey("Given a sqlite file with recorded votes", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "study.db")
		s, err := repository.OpenSQLite(ctx, path)
		So(err, ShouldBeNil)
		seed(ctx, s, 3)
		_, err = s.RecordVote(ctx, pairVote("i0", "i1"), rate)
		So(err, ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Reopening keeps the data and schema", func() {
			s2, err := repository.OpenSQLite(ctx, path)
			So(err, ShouldBeNil)
			defer s2.Close()

			items, err := s2.ListItems(ctx, "cat")
			So(err, ShouldBeNil)
			So(items[0].EloRating, ShouldEqual, 1516)
			sess, err := s2.GetSession(ctx, "s1")
			So(err, ShouldBeNil)
			So(sess.ComparisonCount, ShouldEqual, 1)
		})
	})

	Convey("An in-memory sqlite store works without a file", t, func() {
		s, err := repository.OpenSQLite(context.Background(), repository.MemoryDSN)
		So(err, ShouldBeNil)
		defer s.Close()
		st, err := s.Stats(context.Background())
		So(err, ShouldBeNil)
		So(st.Studies, ShouldEqual, 0)
	})
}
