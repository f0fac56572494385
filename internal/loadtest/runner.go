package loadtest

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/pkg/logger"
)

// Run executes a complete load test against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	if err := cfg.normalize(); err != nil {
		return Stats{}, err
	}
	stats := Stats{StartTime: time.Now(), Agreement: map[string]float64{}}
	log := logger.Get().Named("loadtest")

	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("study", cfg.StudyID),
		logger.Int("reviewers", cfg.Reviewers),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	r := &run{cfg: cfg, client: client, categories: map[string]struct{}{}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Reviewers; i++ {
		g.Go(func() error { return r.reviewer(gctx, i) })
	}
	if err := g.Wait(); err != nil {
		return r.collect(stats), err
	}
	stats = r.collect(stats)

	for _, categoryID := range r.categoryIDs() {
		rankings, err := client.Rankings(ctx, categoryID)
		if err != nil {
			return stats, fmt.Errorf("ranking retrieval failed: %w", err)
		}
		stats.Agreement[categoryID] = agreement(rankings, func(id string) float64 { return strength(cfg.Seed, id) })
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

type run struct {
	cfg    Config
	client *Client

	sessions   atomic.Int64
	completed  atomic.Int64
	votes      atomic.Int64
	flagged    atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64

	mu         sync.Mutex
	categories map[string]struct{}
}

func (r *run) collect(s Stats) Stats {
	s.Sessions = int(r.sessions.Load())
	s.SessionsCompleted = int(r.completed.Load())
	s.Votes = int(r.votes.Load())
	s.Flagged = int(r.flagged.Load())
	s.DuplicatesRejected = int(r.duplicates.Load())
	s.Failed = int(r.failed.Load())
	return s
}

func (r *run) seen(categoryID string) {
	r.mu.Lock()
	r.categories[categoryID] = struct{}{}
	r.mu.Unlock()
}

func (r *run) categoryIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.categories))
	for id := range r.categories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reviewer runs one session to completion.
func (r *run) reviewer(ctx context.Context, n int) error {
	participant := fmt.Sprintf("loadtest-%03d", n+1)
	sess, err := r.client.CreateSession(ctx, r.cfg.StudyID, participant)
	if err != nil {
		r.failed.Add(1)
		return fmt.Errorf("%s: create session: %w", participant, err)
	}
	r.sessions.Add(1)

	rng := rand.New(rand.NewSource(r.cfg.Seed + int64(n) + 1))
	for i := 0; i < r.cfg.MaxVotes; i++ {
		m, err := r.client.Next(ctx, sess.ID)
		if err != nil {
			r.failed.Add(1)
			return fmt.Errorf("%s: next: %w", participant, err)
		}
		if m == nil {
			r.completed.Add(1)
			return nil
		}
		r.seen(m.CategoryID)

		v := r.judge(rng, sess.ID, m)
		receipt, err := r.client.Vote(ctx, v)
		if err != nil {
			r.failed.Add(1)
			return fmt.Errorf("%s: vote: %w", participant, err)
		}
		r.votes.Add(1)
		if receipt.Flagged {
			r.flagged.Add(1)
		}

		if r.cfg.DuplicateEvery > 0 && (i+1)%r.cfg.DuplicateEvery == 0 {
			_, err := r.client.Vote(ctx, v)
			if !IsCode(err, "duplicate_vote") {
				r.failed.Add(1)
				return fmt.Errorf("%s: resent vote %s was not rejected as duplicate: %v", participant, v.VoteID, err)
			}
			r.duplicates.Add(1)
		}
	}
	return fmt.Errorf("%s: session still open after %d votes", participant, r.cfg.MaxVotes)
}

// judge picks the item with the highest noisy hidden strength.
func (r *run) judge(rng *rand.Rand, sessionID string, m *service.Match) service.Vote {
	rt := r.cfg.ResponseMs
	v := service.Vote{
		VoteID:         uuid.NewString(),
		SessionID:      sessionID,
		CategoryID:     m.CategoryID,
		ResponseTimeMs: &rt,
	}
	pick := func(ids []string) string {
		best, bestScore := "", 0.0
		for _, id := range ids {
			score := strength(r.cfg.Seed, id) + rng.NormFloat64()*r.cfg.Noise
			if best == "" || score > bestScore {
				best, bestScore = id, score
			}
		}
		return best
	}

	if m.Pair != nil {
		left, right := m.Pair.LeftItemID, m.Pair.RightItemID
		v.LeftItemID, v.RightItemID = left, right
		v.WinnerID, v.LoserID = left, right
		if pick([]string{left, right}) == right {
			v.WinnerID, v.LoserID = right, left
		}
		return v
	}
	v.ItemIDs = append([]string(nil), m.Quad.Positions...)
	v.WinnerID = pick(v.ItemIDs)
	return v
}

// strength is an item's hidden quality, fixed by seed and id so every
// reviewer judges the same field.
func strength(seed int64, itemID string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(itemID))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64()))).NormFloat64()
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats Stats) {
	var votesPerSecond float64
	if stats.Duration > 0 {
		votesPerSecond = float64(stats.Votes) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("sessions", stats.Sessions),
		logger.Int("sessionsCompleted", stats.SessionsCompleted),
		logger.Int("votes", stats.Votes),
		logger.Int("flagged", stats.Flagged),
		logger.Int("duplicatesRejected", stats.DuplicatesRejected),
		logger.Int("failed", stats.Failed),
		logger.Duration("duration", stats.Duration),
		logger.Float64("votesPerSecond", votesPerSecond))
	for id, rho := range stats.Agreement {
		log.Info(ctx, "rank agreement", logger.String("category", id), logger.Float64("spearman", rho))
	}
}
