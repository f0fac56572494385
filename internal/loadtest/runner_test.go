package loadtest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/blindpair/internal/adapters/http/api"
	"github.com/okian/blindpair/internal/adapters/repository"
	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/loadtest"
	. "github.com/smartystreets/goconvey/convey"
)

func newServer(mode model.Mode, items int) *httptest.Server {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	So(store.CreateStudy(ctx, model.Study{ID: "study", Name: "Study", Mode: mode, KFactor: 32, ExpectedReviewers: 3}), ShouldBeNil)
	So(store.CreateCategory(ctx, model.Category{ID: "cat", StudyID: "study", Name: "Cat"}), ShouldBeNil)
	for i := 0; i < items; i++ {
		So(store.AddItems(ctx, model.Item{ID: fmt.Sprintf("i%d", i), CategoryID: "cat"}), ShouldBeNil)
	}
	svc := service.New(service.WithStore(store), service.WithWorkerCount(1))
	return httptest.NewServer(api.NewServer(svc, svc).Routes())
}

func TestRun(t *testing.T) {
	Convey("Given a running server with a pair study", t, func() {
		srv := newServer(model.ModePair, 6)
		defer srv.Close()

		Convey("When three reviewers vote with resends", func() {
			stats, err := loadtest.Run(context.Background(), loadtest.Config{
				BaseURL:        srv.URL,
				StudyID:        "study",
				Reviewers:      3,
				Workers:        2,
				Timeout:        5 * time.Second,
				Seed:           42,
				DuplicateEvery: 4,
			})

			Convey("Then every session completes and resends are rejected", func() {
				So(err, ShouldBeNil)
				So(stats.Sessions, ShouldEqual, 3)
				So(stats.SessionsCompleted, ShouldEqual, 3)
				So(stats.Votes, ShouldBeGreaterThan, 0)
				So(stats.DuplicatesRejected, ShouldBeGreaterThan, 0)
				So(stats.DuplicatesRejected, ShouldBeLessThanOrEqualTo, stats.Votes/4)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Agreement, ShouldContainKey, "cat")
				So(stats.Agreement["cat"], ShouldBeBetweenOrEqual, -1.0, 1.0)
			})
		})

		Convey("When the study does not exist", func() {
			_, err := loadtest.Run(context.Background(), loadtest.Config{BaseURL: srv.URL, StudyID: "nope", Reviewers: 1})

			Convey("Then the run reports the api error", func() {
				So(loadtest.IsCode(err, "not_found"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a running server with a quad study", t, func() {
		srv := newServer(model.ModeQuad, 6)
		defer srv.Close()

		Convey("When two reviewers vote", func() {
			stats, err := loadtest.Run(context.Background(), loadtest.Config{
				BaseURL:   srv.URL,
				StudyID:   "study",
				Reviewers: 2,
				Workers:   2,
				Seed:      3,
			})

			Convey("Then both sessions complete", func() {
				So(err, ShouldBeNil)
				So(stats.SessionsCompleted, ShouldEqual, 2)
			})
		})
	})

	Convey("Given an invalid config", t, func() {
		_, err := loadtest.Run(context.Background(), loadtest.Config{})

		Convey("Then Run refuses it", func() {
			So(errors.Is(err, loadtest.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
