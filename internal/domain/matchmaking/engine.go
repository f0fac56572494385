// Package matchmaking selects which items a participant sees next.
//
// Selection is recomputed from a read snapshot on every call. The engine
// keeps no per-session state; its only mutable field is the random source
// used for display positions.
package matchmaking

import (
	"math/rand"
	"sync"
	"time"

	"github.com/okian/blindpair/internal/domain/model"
)

const (
	pairSize = 2
	quadSize = 4
)

// Snapshot is the input to a single selection.
type Snapshot struct {
	// CategoryID defaults to the first item's category when empty.
	CategoryID string
	Items      []model.Item
	// Session is the ordered list of this session's comparisons, oldest
	// first.
	Session []model.Comparison
	// Global is every comparison recorded for the category across sessions.
	Global []model.Comparison
}

func (s Snapshot) categoryID() string {
	if s.CategoryID != "" || len(s.Items) == 0 {
		return s.CategoryID
	}
	return s.Items[0].CategoryID
}

// Engine selects pairs and quads. It is safe for concurrent use.
type Engine struct {
	largeThreshold int
	rowLimit       int
	onRelax        func(model.Phase)

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates a matchmaking engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		largeThreshold: DefaultLargeCategoryThreshold,
		rowLimit:       DefaultRowCandidateLimit,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // display order, not security
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// SelectNextPair picks the next pair for a session using the default engine.
// It returns nil when every pair has been compared this session.
func SelectNextPair(items []model.Item, session []model.Comparison) (*model.MatchPair, error) {
	return defaultEngine.NextPair(Snapshot{Items: items, Session: session})
}

// SelectNextQuad picks the next quad for a session using the default engine.
func SelectNextQuad(items []model.Item, session []model.Comparison) (*model.MatchQuad, error) {
	return defaultEngine.NextQuad(Snapshot{Items: items, Session: session})
}

// HasFullCoverage reports whether every item appears in at least one of the
// session comparisons.
func HasFullCoverage(items []model.Item, session []model.Comparison) bool {
	return PhaseOf(items, session) == model.PhaseDepth
}

// PhaseOf returns the selection phase for items given the session so far.
func PhaseOf(items []model.Item, session []model.Comparison) model.Phase {
	return newHistory(items, session, nil).phase(items)
}

// IsExhausted reports whether every pair among items was compared this
// session.
func IsExhausted(items []model.Item, session []model.Comparison) bool {
	return newHistory(items, session, nil).exhausted(len(items))
}

func (e *Engine) relaxed(phase model.Phase) {
	if e.onRelax != nil {
		e.onRelax(phase)
	}
}

func (e *Engine) coin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Intn(2) == 0
}

func (e *Engine) shuffle(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Fisher-Yates.
	for i := len(ids) - 1; i > 0; i-- {
		j := e.rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}
