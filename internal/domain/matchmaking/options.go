package matchmaking

import (
	"math/rand"

	"github.com/okian/blindpair/internal/domain/model"
)

// Default engine configuration constants.
const (
	DefaultLargeCategoryThreshold = 100
	DefaultRowCandidateLimit      = 50
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithSeed makes position assignment and quad shuffles reproducible.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // display order, not security
	}
}

// WithLargeCategoryThreshold sets the pool size above which depth search is
// sampled instead of exhaustive.
func WithLargeCategoryThreshold(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.largeThreshold = n
		}
	}
}

// WithRowCandidateLimit sets how many least-compared items act as row
// candidates in the sampled search.
func WithRowCandidateLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rowLimit = n
		}
	}
}

// WithRelaxHook registers a callback fired whenever a selection had to fall
// back past the streak limit or the sampled window.
func WithRelaxHook(fn func(phase model.Phase)) Option {
	return func(e *Engine) {
		e.onRelax = fn
	}
}
