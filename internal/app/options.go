package service

import (
	"time"

	"github.com/okian/blindpair/internal/adapters/repository"
	"github.com/okian/blindpair/internal/config"
	"github.com/okian/blindpair/internal/domain/matchmaking"
	"github.com/okian/blindpair/internal/domain/progress"
	"github.com/okian/blindpair/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the persistence backend. The default is an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the analysis queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many vote ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMatchmakingOptions passes options to the matchmaking engine.
func WithMatchmakingOptions(opts ...matchmaking.Option) Option {
	return func(s *Service) {
		s.matchOpts = append(s.matchOpts, opts...)
	}
}

// WithPlannerOptions passes options to the session planner.
func WithPlannerOptions(opts ...progress.Option) Option {
	return func(s *Service) {
		s.plannerOpts = append(s.plannerOpts, opts...)
	}
}

// WithTransitivityMaxItems sets the item count above which circular triads
// are not counted.
func WithTransitivityMaxItems(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.transitivityMaxItems = n
		}
	}
}

// WithMinResponseTime flags votes answered faster than d. Zero disables the
// check.
func WithMinResponseTime(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.minResponseTime = d
		}
	}
}

// WithPositionStreakLimit flags a pair vote that picks the same display side
// for the n-th time in a row. Zero disables the check.
func WithPositionStreakLimit(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.positionStreakLimit = n
		}
	}
}

// WithAnalysisTimeout bounds one background analysis job.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.analysisTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides how session and vote ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// FromConfig maps process configuration onto service options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithTransitivityMaxItems(cfg.TransitivityMaxItems),
		WithMinResponseTime(time.Duration(cfg.MinResponseTimeMS) * time.Millisecond),
		WithPositionStreakLimit(cfg.PositionStreakLimit),
		WithAnalysisTimeout(time.Duration(cfg.AnalysisTimeoutMS) * time.Millisecond),
		WithMatchmakingOptions(
			matchmaking.WithLargeCategoryThreshold(cfg.LargeCategoryThreshold),
			matchmaking.WithRowCandidateLimit(cfg.RowCandidateLimit),
		),
		WithPlannerOptions(
			progress.WithTargetExposures(cfg.TargetExposuresPerItem),
			progress.WithMaxComparisons(cfg.MaxComparisonsPerCategory),
			progress.WithMaxQuads(cfg.MaxQuadsPerCategory),
		),
	}
}
