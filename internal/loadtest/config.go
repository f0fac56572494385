// Package loadtest drives a running blindpair server over HTTP with
// simulated reviewers and checks the resulting rankings against the hidden
// item strengths the reviewers judged by.
package loadtest

import (
	"errors"
	"time"
)

// Defaults used when a Config field is zero.
const (
	DefaultBaseURL    = "http://localhost:9080"
	DefaultTimeout    = 30 * time.Second
	DefaultResponseMs = 1500
	DefaultMaxVotes   = 10_000
)

// ErrInvalidConfig reports a config the runner cannot use.
var ErrInvalidConfig = errors.New("invalid load test config")

// Config holds configuration for a load test run.
type Config struct {
	BaseURL   string        // Base URL of the service
	StudyID   string        // Study every reviewer joins
	Reviewers int           // Number of simulated reviewers
	Workers   int           // Reviewers voting at the same time
	Timeout   time.Duration // HTTP request timeout
	Seed      int64         // Seed for hidden strengths and noise
	Noise     float64       // Std dev of per-judgement noise
	// ResponseMs is reported as every vote's response time.
	ResponseMs int
	// MaxVotes caps the votes of a single reviewer.
	MaxVotes int
	// DuplicateEvery resends every n-th vote with the same id and expects
	// it to be rejected. Zero disables resends.
	DuplicateEvery int
}

func (c *Config) normalize() error {
	if c.StudyID == "" {
		return errors.Join(ErrInvalidConfig, errors.New("study id is required"))
	}
	if c.Reviewers < 1 {
		return errors.Join(ErrInvalidConfig, errors.New("need at least one reviewer"))
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ResponseMs <= 0 {
		c.ResponseMs = DefaultResponseMs
	}
	if c.MaxVotes <= 0 {
		c.MaxVotes = DefaultMaxVotes
	}
	return nil
}

// Stats holds test statistics.
type Stats struct {
	Sessions           int
	SessionsCompleted  int
	Votes              int
	Flagged            int
	DuplicatesRejected int
	Failed             int
	// Agreement is the Spearman correlation between observed and hidden
	// ranks, per category.
	Agreement map[string]float64
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
