// Package model contains domain models passed between layers.
//
// Values here are read snapshots: the core packages never mutate them in
// place. Counters on Item change only through the repository's atomic vote
// write.
package model

import (
	"sort"
	"time"
)

// DefaultEloRating is the seed rating before any artist boost is applied.
const DefaultEloRating = 1500.0

// Mode selects how many items a participant sees per vote.
type Mode string

const (
	// ModePair shows two items and records one comparison per vote.
	ModePair Mode = "pair"
	// ModeQuad shows four items and records three implicit wins per vote.
	ModeQuad Mode = "quad"
)

// Valid reports whether m is a known comparison mode.
func (m Mode) Valid() bool { return m == ModePair || m == ModeQuad }

// Item is a single submission ranked inside one category.
type Item struct {
	ID              string  `json:"id"`
	CategoryID      string  `json:"category_id"`
	Title           string  `json:"title,omitempty"`
	EloRating       float64 `json:"elo_rating"`
	ComparisonCount int     `json:"comparison_count"`
	WinCount        int     `json:"win_count"`
	LossCount       int     `json:"loss_count"`
	LeftCount       int     `json:"left_count"`
	RightCount      int     `json:"right_count"`
	ArtistRank      *int    `json:"artist_rank,omitempty"`
	ArtistEloBoost  float64 `json:"artist_elo_boost,omitempty"`
}

// SeedRating returns the starting rating for a freshly seeded item.
func (it Item) SeedRating() float64 { return DefaultEloRating + it.ArtistEloBoost }

// Category groups items; progress is tracked independently per category.
type Category struct {
	ID           string `json:"id"`
	StudyID      string `json:"study_id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"display_order"`
}

// SortCategories orders categories by display order, then id.
func SortCategories(cats []Category) {
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].DisplayOrder != cats[j].DisplayOrder {
			return cats[i].DisplayOrder < cats[j].DisplayOrder
		}
		return cats[i].ID < cats[j].ID
	})
}

// Thresholds is the study-level statistical bar for publishing a category.
type Thresholds struct {
	MinExposuresPerItem int `json:"min_exposures_per_item" koanf:"min_exposures_per_item"`
	// MinTotalComparisons defaults to 10 x item count when zero.
	MinTotalComparisons int `json:"min_total_comparisons" koanf:"min_total_comparisons"`
}

// Study is the configuration a participant's session runs under.
type Study struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Mode                 Mode       `json:"mode"`
	KFactor              float64    `json:"k_factor"`
	AdaptiveK            bool       `json:"adaptive_k"`
	Thresholds           Thresholds `json:"thresholds"`
	ExpectedReviewers    int        `json:"expected_reviewers"`
	AllowContinuedVoting bool       `json:"allow_continued_voting"`
}

// Comparison is one recorded pairwise outcome. It is immutable once created.
type Comparison struct {
	ID             string    `json:"id"`
	VoteID         string    `json:"vote_id"`
	SessionID      string    `json:"session_id"`
	CategoryID     string    `json:"category_id"`
	ItemAID        string    `json:"item_a_id"`
	ItemBID        string    `json:"item_b_id"`
	WinnerID       string    `json:"winner_id"`
	LeftItemID     string    `json:"left_item_id,omitempty"`
	RightItemID    string    `json:"right_item_id,omitempty"`
	ResponseTimeMs *int      `json:"response_time_ms,omitempty"`
	IsFlagged      bool      `json:"is_flagged"`
	FlagReason     string    `json:"flag_reason,omitempty"`
	IsTest         bool      `json:"is_test"`
	CreatedAt      time.Time `json:"created_at"`
}

// Valid reports whether the comparison counts as statistical evidence.
func (c Comparison) Valid() bool { return !c.IsTest && !c.IsFlagged }

// LoserID returns the side that did not win.
func (c Comparison) LoserID() string {
	if c.WinnerID == c.ItemAID {
		return c.ItemBID
	}
	return c.ItemAID
}

// Involves reports whether id is either side of the comparison.
func (c Comparison) Involves(id string) bool { return c.ItemAID == id || c.ItemBID == id }

// Key returns the unordered pair key of the comparison.
func (c Comparison) Key() PairKey { return NewPairKey(c.ItemAID, c.ItemBID) }

// PairKey identifies an unordered pair of items.
type PairKey struct {
	Lo string
	Hi string
}

// NewPairKey builds an order-independent key for a and b.
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// ValidOnly filters out test and flagged comparisons.
func ValidOnly(cs []Comparison) []Comparison {
	out := make([]Comparison, 0, len(cs))
	for _, c := range cs {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// Session is one participant's run through one study.
type Session struct {
	ID              string     `json:"id"`
	StudyID         string     `json:"study_id"`
	ParticipantID   string     `json:"participant_id"`
	ComparisonCount int        `json:"comparison_count"`
	IsCompleted     bool       `json:"is_completed"`
	ContinuedVoting bool       `json:"continued_voting"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Open reports whether the session may accept further votes.
func (s Session) Open() bool { return !s.IsCompleted || s.ContinuedVoting }

// Phase is the matchmaking stage computed fresh on every call.
type Phase string

const (
	// PhaseCoverage is active while some item has not been shown this session.
	PhaseCoverage Phase = "coverage"
	// PhaseDepth is active once every item has been shown at least once.
	PhaseDepth Phase = "depth"
)

// MatchPair is a proposed pair with its display assignment. Not persisted.
type MatchPair struct {
	CategoryID  string `json:"category_id"`
	ItemAID     string `json:"item_a_id"`
	ItemBID     string `json:"item_b_id"`
	LeftItemID  string `json:"left_item_id"`
	RightItemID string `json:"right_item_id"`
	Phase       Phase  `json:"phase"`
}

// MatchQuad is a proposed set of four items in display order. Not persisted.
type MatchQuad struct {
	CategoryID string   `json:"category_id"`
	ItemIDs    []string `json:"item_ids"`
	Positions  []string `json:"positions"`
	Phase      Phase    `json:"phase"`
}

// AnalysisJob asks for a background statistics pass over one category.
type AnalysisJob struct {
	ID         string    `json:"id"`
	CategoryID string    `json:"category_id"`
	Reason     string    `json:"reason"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}
