// Package progress decides per-category and per-session completion.
package progress

// Default planning constants.
const (
	DefaultTargetExposuresPerItem    = 10
	DefaultMaxComparisonsPerCategory = 50
	DefaultMaxQuadsPerCategory       = 30

	pairExposuresPerVote = 2
	quadItemsPerVote     = 4
)

// Option applies a configuration option to the Planner.
type Option func(*Planner)

// WithTargetExposures sets how many exposures each item should collect
// across all expected reviewers.
func WithTargetExposures(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.targetExposures = n
		}
	}
}

// WithMaxComparisons caps the per-session pair target for a category.
func WithMaxComparisons(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxComparisons = n
		}
	}
}

// WithMaxQuads caps the per-session quad target for a category.
func WithMaxQuads(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxQuads = n
		}
	}
}

// Planner derives per-session vote targets.
type Planner struct {
	targetExposures int
	maxComparisons  int
	maxQuads        int
}

// NewPlanner creates a planner with configuration options.
func NewPlanner(opts ...Option) *Planner {
	p := &Planner{
		targetExposures: DefaultTargetExposuresPerItem,
		maxComparisons:  DefaultMaxComparisonsPerCategory,
		maxQuads:        DefaultMaxQuadsPerCategory,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var defaultPlanner = NewPlanner()

// CalculateRecommendedComparisons returns the default pair target for one
// session over a category of itemCount items.
func CalculateRecommendedComparisons(itemCount, reviewerCount int) int {
	return defaultPlanner.RecommendedComparisons(itemCount, reviewerCount)
}

// CalculateRecommendedQuads returns the default quad target for one session.
func CalculateRecommendedQuads(itemCount, reviewerCount int) int {
	return defaultPlanner.RecommendedQuads(itemCount, reviewerCount)
}

// RecommendedComparisons is max(coverage minimum, statistical share) where
// the statistical share is capped to limit fatigue. The result never exceeds
// the number of distinct pairs.
func (p *Planner) RecommendedComparisons(itemCount, reviewerCount int) int {
	if itemCount < 2 {
		return 0
	}
	coverage := ceilDiv(itemCount, pairExposuresPerVote)
	share := p.statisticalShare(itemCount, reviewerCount, pairExposuresPerVote)
	target := max(coverage, min(share, p.maxComparisons))
	return min(target, distinctPairs(itemCount))
}

// RecommendedQuads is the quad analogue of RecommendedComparisons.
func (p *Planner) RecommendedQuads(itemCount, reviewerCount int) int {
	if itemCount < quadItemsPerVote {
		return 0
	}
	coverage := ceilDiv(itemCount, quadItemsPerVote)
	share := p.statisticalShare(itemCount, reviewerCount, quadItemsPerVote)
	target := max(coverage, min(share, p.maxQuads))
	return min(target, distinctPairs(itemCount))
}

func (p *Planner) statisticalShare(itemCount, reviewerCount, itemsPerVote int) int {
	if reviewerCount < 1 {
		reviewerCount = 1
	}
	total := ceilDiv(itemCount*p.targetExposures, itemsPerVote)
	return ceilDiv(total, reviewerCount)
}

func distinctPairs(n int) int { return n * (n - 1) / 2 }

func ceilDiv(a, b int) int { return (a + b - 1) / b }
