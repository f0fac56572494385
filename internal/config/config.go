// Package config defines process configuration and how it is loaded.
package config

import (
	"runtime"

	"github.com/okian/blindpair/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the sqlite file. Empty keeps everything in memory.
	DBPath string `koanf:"db_path"`

	// Study defaults applied when a study definition leaves them unset.
	KFactor             float64 `koanf:"k_factor"`
	AdaptiveK           bool    `koanf:"adaptive_k"`
	MinExposuresPerItem int     `koanf:"min_exposures_per_item"`
	MinTotalComparisons int     `koanf:"min_total_comparisons"`
	ExpectedReviewers   int     `koanf:"expected_reviewers"`

	// Session planning.
	TargetExposuresPerItem    int `koanf:"target_exposures_per_item"`
	MaxComparisonsPerCategory int `koanf:"max_comparisons_per_category"`
	MaxQuadsPerCategory       int `koanf:"max_quads_per_category"`

	// Matchmaking and statistics cutoffs.
	TransitivityMaxItems   int `koanf:"transitivity_max_items"`
	LargeCategoryThreshold int `koanf:"large_category_threshold"`
	RowCandidateLimit      int `koanf:"row_candidate_limit"`

	// Fraud flags.
	MinResponseTimeMS   int `koanf:"min_response_time_ms"`
	PositionStreakLimit int `koanf:"position_streak_limit"`

	// Background analysis and vote dedupe.
	WorkerCount       int `koanf:"worker_count"`
	QueueSize         int `koanf:"queue_size"`
	DedupeSize        int `koanf:"dedupe_size"`
	AnalysisTimeoutMS int `koanf:"analysis_timeout_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "json",
		Addr:                      ":9080",
		KFactor:                   32,
		MinExposuresPerItem:       5,
		ExpectedReviewers:         5,
		TargetExposuresPerItem:    10,
		MaxComparisonsPerCategory: 50,
		MaxQuadsPerCategory:       30,
		TransitivityMaxItems:      100,
		LargeCategoryThreshold:    100,
		RowCandidateLimit:         50,
		MinResponseTimeMS:         400,
		PositionStreakLimit:       8,
		WorkerCount:               runtime.NumCPU(),
		QueueSize:                 1024,
		DedupeSize:                100_000,
		AnalysisTimeoutMS:         30_000,
	}
}

// Thresholds returns the default publishability bar.
func (c *Config) Thresholds() model.Thresholds {
	return model.Thresholds{
		MinExposuresPerItem: c.MinExposuresPerItem,
		MinTotalComparisons: c.MinTotalComparisons,
	}
}

// ApplyStudyDefaults fills unset study fields from the config.
func (c *Config) ApplyStudyDefaults(s model.Study) model.Study {
	if s.Mode == "" {
		s.Mode = model.ModePair
	}
	if s.KFactor <= 0 {
		s.KFactor = c.KFactor
	}
	if s.Thresholds.MinExposuresPerItem <= 0 {
		s.Thresholds.MinExposuresPerItem = c.MinExposuresPerItem
	}
	if s.Thresholds.MinTotalComparisons <= 0 {
		s.Thresholds.MinTotalComparisons = c.MinTotalComparisons
	}
	if s.ExpectedReviewers <= 0 {
		s.ExpectedReviewers = c.ExpectedReviewers
	}
	if c.AdaptiveK {
		s.AdaptiveK = true
	}
	return s
}
