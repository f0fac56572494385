package rating

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithKFactor sets the base K-factor.
func WithKFactor(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.kFactor = k
		}
	}
}

// WithAdaptiveK enables count-dependent K-factors.
func WithAdaptiveK(enabled bool) Option {
	return func(e *Engine) {
		e.adaptive = enabled
	}
}

// Engine applies a study's K-factor policy to outcomes.
type Engine struct {
	kFactor  float64
	adaptive bool
}

// NewEngine creates a rating engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{kFactor: DefaultKFactor}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// KFactor returns the configured base K-factor.
func (e *Engine) KFactor() float64 { return e.kFactor }

// Rate computes new ratings for a winner and loser given their current
// ratings and comparison counts. With adaptive K the two per-item factors
// are averaged so the update stays zero-sum.
func (e *Engine) Rate(winnerRating float64, winnerCount int, loserRating float64, loserCount int) Change {
	k := e.kFactor
	if e.adaptive {
		k = (AdaptiveKFactor(e.kFactor, winnerCount) + AdaptiveKFactor(e.kFactor, loserCount)) / 2
	}
	return CalculateEloChange(winnerRating, loserRating, k)
}
