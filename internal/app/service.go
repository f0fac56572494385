// Package service runs study sessions: it hands out the next pair or quad,
// records votes through the rating engine and tracks progress towards each
// category's publishable threshold.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/blindpair/internal/adapters/mq/queue"
	"github.com/okian/blindpair/internal/adapters/mq/worker"
	"github.com/okian/blindpair/internal/adapters/repository"
	"github.com/okian/blindpair/internal/domain/dedupe"
	"github.com/okian/blindpair/internal/domain/matchmaking"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/progress"
	"github.com/okian/blindpair/internal/domain/stats"
	"github.com/okian/blindpair/pkg/logger"
	"github.com/okian/blindpair/pkg/metrics"
)

// Default service configuration.
const (
	defaultQueueSize           = 1024
	defaultDedupeSize          = 100_000
	defaultMinResponseTime     = 400 * time.Millisecond
	defaultPositionStreakLimit = 8
	defaultAnalysisTimeout     = 30 * time.Second
)

// Service implements the study workflow on top of a Store.
type Service struct {
	mu sync.RWMutex

	// Core components
	store        repository.Store
	deduper      dedupe.Deduper
	matcher      *matchmaking.Engine
	orchestrator *progress.Orchestrator
	detector     *stats.TriadDetector
	analysis     *queue.InMemoryQueue
	pool         *worker.Pool

	// Configuration
	workerCount          int
	queueSize            int
	dedupeSize           int
	transitivityMaxItems int
	minResponseTime      time.Duration
	positionStreakLimit  int
	analysisTimeout      time.Duration
	matchOpts            []matchmaking.Option
	plannerOpts          []progress.Option
	now                  func() time.Time
	newID                func() string

	cache *transitivityCache

	started bool
	logger  logger.Logger
}

// New constructs a Service. Core components are usable immediately; Start
// only launches the background analysis workers.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:          runtime.NumCPU(),
		queueSize:            defaultQueueSize,
		dedupeSize:           defaultDedupeSize,
		transitivityMaxItems: stats.DefaultTransitivityMaxItems,
		minResponseTime:      defaultMinResponseTime,
		positionStreakLimit:  defaultPositionStreakLimit,
		analysisTimeout:      defaultAnalysisTimeout,
		now:                  time.Now,
		newID:                uuid.NewString,
		cache:                newTransitivityCache(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	relax := matchmaking.WithRelaxHook(func(p model.Phase) { metrics.RecordStreakRelaxation(string(p)) })
	s.matcher = matchmaking.NewEngine(append([]matchmaking.Option{relax}, s.matchOpts...)...)
	s.orchestrator = progress.NewOrchestrator(progress.NewPlanner(s.plannerOpts...))
	s.detector = stats.NewTriadDetector(stats.WithMaxItems(s.transitivityMaxItems))
	return s
}

// Store exposes the backing store for seeding and tooling.
func (s *Service) Store() repository.Store { return s.store }

// Start launches the analysis worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.analysis = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.analysis, worker.AnalyzerFunc(s.analyze),
		worker.WithJobTimeout(s.analysisTimeout),
	)
	s.pool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "study service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains queued analysis jobs and stops the workers. The store stays
// open; its owner closes it.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	err := s.pool.Shutdown(ctx)
	if err != nil {
		s.logger.Warn(ctx, "analysis workers did not stop cleanly", logger.Error(err))
	}
	s.logger.Info(ctx, "study service stopped")
	return err
}

// enqueueAnalysis schedules a transitivity pass. It is a no-op before Start.
func (s *Service) enqueueAnalysis(ctx context.Context, categoryID, reason string) bool {
	s.mu.RLock()
	q := s.analysis
	started := s.started
	s.mu.RUnlock()
	if !started || q == nil {
		return false
	}
	ok := q.Enqueue(ctx, model.AnalysisJob{
		ID:         s.newID(),
		CategoryID: categoryID,
		Reason:     reason,
		EnqueuedAt: s.now(),
	})
	if !ok {
		s.logger.Warn(ctx, "analysis queue rejected job",
			logger.String("category", categoryID),
			logger.String("reason", reason),
		)
	}
	return ok
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	q := s.analysis
	s.mu.RUnlock()

	out := map[string]any{
		"started":     started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.deduper.Size(),
		"analyzed":    s.cache.len(),
	}
	if started && q != nil {
		n := q.Len(ctx)
		out["queueLength"] = n
		metrics.UpdateQueueSize(n)
	}
	if st, err := s.store.Stats(ctx); err == nil {
		out["store"] = st
	} else {
		s.logger.Warn(ctx, "store stats failed", logger.Error(err))
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	metrics.UpdateSystemMemoryUsage(mem.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	return out
}
