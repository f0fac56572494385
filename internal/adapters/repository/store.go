// Package repository persists studies, items, sessions and comparisons.
//
// Every implementation applies a vote through RecordVote as one atomic unit:
// the session repeat check, the rating update computed from the freshest
// ratings, the counter bumps and the comparison rows either all land or none
// do.
package repository

import (
	"context"
	"time"

	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/rating"
)

// Outcome is one decided pairwise result inside a vote.
type Outcome struct {
	WinnerID    string
	LoserID     string
	LeftItemID  string
	RightItemID string
}

// VoteRequest is everything needed to record one vote. A pair vote carries
// one outcome; a quad vote carries three outcomes sharing the winner.
type VoteRequest struct {
	VoteID         string
	SessionID      string
	CategoryID     string
	Outcomes       []Outcome
	ResponseTimeMs *int
	IsFlagged      bool
	FlagReason     string
	IsTest         bool
	// AllowRepeat skips the per-session pair repeat check (quad votes).
	AllowRepeat bool
	CreatedAt   time.Time
}

// Valid reports whether the comparisons should move ratings.
func (r VoteRequest) Valid() bool { return !r.IsFlagged && !r.IsTest }

// RateFunc computes the rating update for a winner and loser snapshot.
type RateFunc func(winner, loser model.Item) rating.Change

// VoteResult is the state after a recorded vote.
type VoteResult struct {
	Comparisons []model.Comparison
	// Items holds the post-vote state of every item the vote touched.
	Items   map[string]model.Item
	Session model.Session
}

// Stats is a cheap summary of store contents.
type Stats struct {
	Studies     int `json:"studies"`
	Categories  int `json:"categories"`
	Items       int `json:"items"`
	Sessions    int `json:"sessions"`
	Comparisons int `json:"comparisons"`
}

// Store provides read/write access to study state.
type Store interface {
	CreateStudy(ctx context.Context, s model.Study) error
	GetStudy(ctx context.Context, id string) (model.Study, error)
	ListStudies(ctx context.Context) ([]model.Study, error)

	CreateCategory(ctx context.Context, c model.Category) error
	GetCategory(ctx context.Context, id string) (model.Category, error)
	// ListCategories returns a study's categories in display order.
	ListCategories(ctx context.Context, studyID string) ([]model.Category, error)

	// AddItems inserts items. A zero EloRating is replaced by the seed
	// rating.
	AddItems(ctx context.Context, items ...model.Item) error
	ListItems(ctx context.Context, categoryID string) ([]model.Item, error)

	CreateSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	// UpdateSessionState persists the completion and continued-voting flags.
	UpdateSessionState(ctx context.Context, s model.Session) error

	// SessionComparisons returns a session's comparisons oldest first. An
	// empty categoryID returns every category.
	SessionComparisons(ctx context.Context, sessionID, categoryID string) ([]model.Comparison, error)
	// CategoryComparisons returns every comparison in a category oldest
	// first.
	CategoryComparisons(ctx context.Context, categoryID string) ([]model.Comparison, error)

	// RecordVote applies a vote atomically. It returns ErrSessionCompleted
	// for a closed session, ErrItemNotInCategory for foreign items, and
	// ErrAlreadyCompared when a pair repeats within the session.
	RecordVote(ctx context.Context, req VoteRequest, rate RateFunc) (VoteResult, error)

	Stats(ctx context.Context) (Stats, error)
	Close() error
}

func seedItem(it model.Item) model.Item {
	if it.EloRating == 0 {
		it.EloRating = it.SeedRating()
	}
	return it
}

// applyOutcome bumps counters and, for valid votes, ratings on the running
// item snapshots. It returns the comparison row to store.
func applyOutcome(items map[string]model.Item, req VoteRequest, o Outcome, rate RateFunc) model.Comparison {
	w, l := items[o.WinnerID], items[o.LoserID]
	if req.Valid() {
		change := rate(w, l)
		w.EloRating, l.EloRating = change.WinnerNewRating, change.LoserNewRating
		w.ComparisonCount++
		w.WinCount++
		l.ComparisonCount++
		l.LossCount++
		for _, it := range []*model.Item{&w, &l} {
			switch it.ID {
			case o.LeftItemID:
				it.LeftCount++
			case o.RightItemID:
				it.RightCount++
			}
		}
		items[w.ID], items[l.ID] = w, l
	}
	return model.Comparison{
		VoteID:         req.VoteID,
		SessionID:      req.SessionID,
		CategoryID:     req.CategoryID,
		ItemAID:        o.WinnerID,
		ItemBID:        o.LoserID,
		WinnerID:       o.WinnerID,
		LeftItemID:     o.LeftItemID,
		RightItemID:    o.RightItemID,
		ResponseTimeMs: req.ResponseTimeMs,
		IsFlagged:      req.IsFlagged,
		FlagReason:     req.FlagReason,
		IsTest:         req.IsTest,
		CreatedAt:      req.CreatedAt,
	}
}

func validateRequest(req VoteRequest) error {
	if req.SessionID == "" || req.CategoryID == "" || len(req.Outcomes) == 0 {
		return ErrInvalidVote
	}
	for _, o := range req.Outcomes {
		if o.WinnerID == "" || o.LoserID == "" || o.WinnerID == o.LoserID {
			return ErrInvalidVote
		}
	}
	return nil
}

// Open returns a SQLite store at path, or a MemoryStore when path is empty.
func Open(ctx context.Context, path string, opts ...Option) (Store, error) {
	if path == "" {
		return NewMemoryStore(opts...), nil
	}
	return OpenSQLite(ctx, path, opts...)
}
