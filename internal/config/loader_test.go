package config_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/okian/blindpair/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.MinResponseTimeMS, convey.ShouldEqual, 400)
				convey.So(cfg.PositionStreakLimit, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("BLINDPAIR_ADDR", ":8080")
			_ = os.Setenv("BLINDPAIR_K_FACTOR", "24")
			_ = os.Setenv("BLINDPAIR_ADAPTIVE_K", "true")
			_ = os.Setenv("BLINDPAIR_DB_PATH", "/tmp/study.db")
			_ = os.Setenv("BLINDPAIR_WORKER_COUNT", "3")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.KFactor, convey.ShouldEqual, 24)
				convey.So(cfg.AdaptiveK, convey.ShouldBeTrue)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/tmp/study.db")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with a YAML file and env overrides", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
log_format: text
expected_reviewers: 12
transitivity_max_items: 60
row_candidate_limit: 20
`)
			_ = os.Setenv("BLINDPAIR_CONFIG", tmpFile)
			_ = os.Setenv("BLINDPAIR_ROW_CANDIDATE_LIMIT", "30")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env wins over the file and the file over defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.ExpectedReviewers, convey.ShouldEqual, 12)
				convey.So(cfg.TransitivityMaxItems, convey.ShouldEqual, 60)
				convey.So(cfg.RowCandidateLimit, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			_ = os.Setenv("BLINDPAIR_CONFIG", createTempConfigFile(t, `invalid: yaml: content: [`))

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("BLINDPAIR_CONFIG", "/non/existent/config.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a value is out of range", func() {
			_ = os.Setenv("BLINDPAIR_K_FACTOR", "0")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should name the offending key", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "k_factor")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the log format is unknown", func() {
			_ = os.Setenv("BLINDPAIR_LOG_FORMAT", "xml")

			_, err := config.Load(ctx)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, config.EnvPrefix) {
			_ = os.Unsetenv(key)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "blindpair-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	_ = tmpFile.Close()
	return tmpFile.Name()
}
