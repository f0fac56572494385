package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BLINDPAIR_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if BLINDPAIR_CONFIG is set
//  3. env (prefix BLINDPAIR_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// BLINDPAIR_QUEUE_SIZE -> queue_size; underscores match the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	invalid := func(key string, v any) error {
		return fmt.Errorf("%w: %s=%v", ErrInvalidConfig, key, v)
	}
	switch {
	case c.Addr == "":
		return invalid("addr", c.Addr)
	case c.LogFormat != "json" && c.LogFormat != "text":
		return invalid("log_format", c.LogFormat)
	case c.KFactor <= 0:
		return invalid("k_factor", c.KFactor)
	case c.MinExposuresPerItem < 1:
		return invalid("min_exposures_per_item", c.MinExposuresPerItem)
	case c.MinTotalComparisons < 0:
		return invalid("min_total_comparisons", c.MinTotalComparisons)
	case c.ExpectedReviewers < 1:
		return invalid("expected_reviewers", c.ExpectedReviewers)
	case c.TargetExposuresPerItem < 1:
		return invalid("target_exposures_per_item", c.TargetExposuresPerItem)
	case c.MaxComparisonsPerCategory < 1:
		return invalid("max_comparisons_per_category", c.MaxComparisonsPerCategory)
	case c.MaxQuadsPerCategory < 1:
		return invalid("max_quads_per_category", c.MaxQuadsPerCategory)
	case c.TransitivityMaxItems < 3:
		return invalid("transitivity_max_items", c.TransitivityMaxItems)
	case c.LargeCategoryThreshold < 2:
		return invalid("large_category_threshold", c.LargeCategoryThreshold)
	case c.RowCandidateLimit < 1:
		return invalid("row_candidate_limit", c.RowCandidateLimit)
	case c.MinResponseTimeMS < 0:
		return invalid("min_response_time_ms", c.MinResponseTimeMS)
	case c.PositionStreakLimit < 0:
		return invalid("position_streak_limit", c.PositionStreakLimit)
	case c.WorkerCount < 1:
		return invalid("worker_count", c.WorkerCount)
	case c.QueueSize < 1:
		return invalid("queue_size", c.QueueSize)
	case c.DedupeSize < 1:
		return invalid("dedupe_size", c.DedupeSize)
	case c.AnalysisTimeoutMS < 1:
		return invalid("analysis_timeout_ms", c.AnalysisTimeoutMS)
	}
	return nil
}
