package config_test

import (
	"runtime"
	"testing"

	"github.com/okian/blindpair/internal/config"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBPath, convey.ShouldBeEmpty)
			convey.So(cfg.KFactor, convey.ShouldEqual, 32)
			convey.So(cfg.MinExposuresPerItem, convey.ShouldEqual, 5)
			convey.So(cfg.TargetExposuresPerItem, convey.ShouldEqual, 10)
			convey.So(cfg.MaxComparisonsPerCategory, convey.ShouldEqual, 50)
			convey.So(cfg.MaxQuadsPerCategory, convey.ShouldEqual, 30)
			convey.So(cfg.TransitivityMaxItems, convey.ShouldEqual, 100)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a study with unset fields", t, func() {
		cfg := config.New()
		cfg.AdaptiveK = true
		st := cfg.ApplyStudyDefaults(model.Study{ID: "s", KFactor: 16})

		convey.Convey("Then defaults fill only what is missing", func() {
			convey.So(st.Mode, convey.ShouldEqual, model.ModePair)
			convey.So(st.KFactor, convey.ShouldEqual, 16)
			convey.So(st.AdaptiveK, convey.ShouldBeTrue)
			convey.So(st.ExpectedReviewers, convey.ShouldEqual, 5)
			convey.So(st.Thresholds, convey.ShouldResemble, cfg.Thresholds())
		})
	})
}
