package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/okian/blindpair/internal/adapters/repository"
	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/config"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestNewHTTPServer(t *testing.T) {
	convey.Convey("Given a service built from default config over sqlite", t, func() {
		ctx := context.Background()
		cfg := config.New()
		store, err := repository.Open(ctx, filepath.Join(t.TempDir(), "d.db"))
		convey.So(err, convey.ShouldBeNil)
		defer store.Close()
		convey.So(store.CreateStudy(ctx, model.Study{ID: "s", Mode: model.ModePair, KFactor: 32}), convey.ShouldBeNil)

		svc := service.New(append(service.FromConfig(cfg), service.WithStore(store), service.WithLogger(logger.Get()))...)
		srv := newHTTPServer(cfg.Addr, svc)

		convey.Convey("Then the handler serves health and metrics", func() {
			convey.So(srv.Addr, convey.ShouldEqual, ":9080")
			for _, path := range []string{"/healthz", "/metrics", "/stats"} {
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then a study without categories cannot start sessions", func() {
			w := httptest.NewRecorder()
			srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/studies/s/sessions", nil))
			convey.So(w.Code, convey.ShouldEqual, http.StatusUnprocessableEntity)
		})
	})
}
