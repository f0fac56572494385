package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/rating"
	"github.com/okian/blindpair/internal/domain/stats"
	"github.com/okian/blindpair/pkg/logger"
	"github.com/okian/blindpair/pkg/metrics"
)

// Ranking is one row of a category leaderboard. StandardError and CI95 are
// nil for items with no valid comparisons.
type Ranking struct {
	Rank            int      `json:"rank"`
	ItemID          string   `json:"item_id"`
	Title           string   `json:"title,omitempty"`
	EloRating       float64  `json:"elo_rating"`
	ComparisonCount int      `json:"comparison_count"`
	WinCount        int      `json:"win_count"`
	LossCount       int      `json:"loss_count"`
	WinRate         float64  `json:"win_rate"`
	StandardError   *float64 `json:"standard_error,omitempty"`
	CI95            *float64 `json:"ci95,omitempty"`
}

// Transitivity is a cached circular-triad result.
type Transitivity struct {
	stats.TransitivityResult
	// Comparisons is the number of valid comparisons the scan saw.
	Comparisons int       `json:"comparisons"`
	ComputedAt  time.Time `json:"computed_at"`
}

// CategoryReport summarises the evidence collected for a category.
type CategoryReport struct {
	Category           model.Category        `json:"category"`
	ItemCount          int                   `json:"item_count"`
	TotalComparisons   int                   `json:"total_comparisons"`
	ValidComparisons   int                   `json:"valid_comparisons"`
	FlaggedComparisons int                   `json:"flagged_comparisons"`
	TestComparisons    int                   `json:"test_comparisons"`
	Threshold          stats.ThresholdResult `json:"threshold"`
	// Transitivity is nil while a background scan is pending.
	Transitivity *Transitivity `json:"transitivity,omitempty"`
	Rankings     []Ranking     `json:"rankings"`
}

// Rankings orders a category's items by rating, highest first. Equal ratings
// share a rank.
func (s *Service) Rankings(ctx context.Context, categoryID string) ([]Ranking, error) {
	if _, err := s.store.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	items, err := s.store.ListItems(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	return rank(items), nil
}

func rank(items []model.Item) []Ranking {
	sorted := append([]model.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EloRating != sorted[j].EloRating {
			return sorted[i].EloRating > sorted[j].EloRating
		}
		return sorted[i].ID < sorted[j].ID
	})

	out := make([]Ranking, len(sorted))
	r := 0
	for i, it := range sorted {
		if i == 0 || it.EloRating != sorted[i-1].EloRating {
			r++
		}
		row := Ranking{
			Rank:            r,
			ItemID:          it.ID,
			Title:           it.Title,
			EloRating:       it.EloRating,
			ComparisonCount: it.ComparisonCount,
			WinCount:        it.WinCount,
			LossCount:       it.LossCount,
		}
		if it.ComparisonCount > 0 {
			row.WinRate = float64(it.WinCount) / float64(it.ComparisonCount)
			se := rating.StandardError(it.ComparisonCount)
			ci := rating.ConfidenceInterval95(it.ComparisonCount)
			if !math.IsInf(se, 0) {
				row.StandardError, row.CI95 = &se, &ci
			}
		}
		out[i] = row
	}
	return out
}

// Report builds the category report. A missing or stale transitivity result
// schedules a background scan.
func (s *Service) Report(ctx context.Context, categoryID string) (CategoryReport, error) {
	cat, err := s.store.GetCategory(ctx, categoryID)
	if err != nil {
		return CategoryReport{}, err
	}
	study, err := s.store.GetStudy(ctx, cat.StudyID)
	if err != nil {
		return CategoryReport{}, err
	}
	items, err := s.store.ListItems(ctx, cat.ID)
	if err != nil {
		return CategoryReport{}, err
	}
	all, err := s.store.CategoryComparisons(ctx, cat.ID)
	if err != nil {
		return CategoryReport{}, err
	}

	rep := CategoryReport{
		Category:         cat,
		ItemCount:        len(items),
		TotalComparisons: len(all),
		Threshold:        stats.IsPublishableThreshold(items, all, study.Thresholds),
		Rankings:         rank(items),
	}
	for _, c := range all {
		switch {
		case c.IsTest:
			rep.TestComparisons++
		case c.IsFlagged:
			rep.FlaggedComparisons++
		default:
			rep.ValidComparisons++
		}
	}
	metrics.UpdateCategoryPublishable(cat.ID, rep.Threshold.Publishable())

	if t, ok := s.cache.get(cat.ID); ok && t.Comparisons == rep.ValidComparisons {
		rep.Transitivity = &t
	} else {
		s.enqueueAnalysis(ctx, cat.ID, "report")
		if ok {
			rep.Transitivity = &t
		}
	}
	return rep, nil
}

// AnalyzeCategory runs the circular-triad scan now and caches the result.
func (s *Service) AnalyzeCategory(ctx context.Context, categoryID string) (Transitivity, error) {
	all, err := s.store.CategoryComparisons(ctx, categoryID)
	if err != nil {
		return Transitivity{}, err
	}
	valid := model.ValidOnly(all)
	if t, ok := s.cache.get(categoryID); ok && t.Comparisons == len(valid) {
		return t, nil
	}

	start := time.Now()
	res, err := s.detector.Detect(ctx, valid)
	if err != nil {
		return Transitivity{}, fmt.Errorf("detect circular triads: %w", err)
	}
	t := Transitivity{TransitivityResult: res, Comparisons: len(valid), ComputedAt: s.now().UTC()}
	s.cache.put(categoryID, t)

	s.logger.Debug(ctx, "transitivity computed",
		logger.String("category", categoryID),
		logger.Int("comparisons", len(valid)),
		logger.Int("circular", res.CircularTriadCount),
		logger.Duration("took", time.Since(start)),
	)
	return t, nil
}

func (s *Service) analyze(ctx context.Context, job model.AnalysisJob) error {
	_, err := s.AnalyzeCategory(ctx, job.CategoryID)
	return err
}

type transitivityCache struct {
	mu   sync.RWMutex
	byID map[string]Transitivity
}

func newTransitivityCache() *transitivityCache {
	return &transitivityCache{byID: make(map[string]Transitivity)}
}

func (c *transitivityCache) get(id string) (Transitivity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.byID[id]
	return t, ok
}

func (c *transitivityCache) put(id string, t Transitivity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A slower scan over fewer comparisons must not overwrite a newer one.
	if cur, ok := c.byID[id]; ok && cur.Comparisons > t.Comparisons {
		return
	}
	c.byID[id] = t
}

func (c *transitivityCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
