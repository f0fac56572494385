package progress

import (
	"github.com/okian/blindpair/internal/domain/matchmaking"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/domain/stats"
)

// CategoryInput is the read snapshot for one category of a session.
type CategoryInput struct {
	Category model.Category
	Items    []model.Item
	// Session holds this session's comparisons in the category, oldest first.
	Session []model.Comparison
	// Global holds every comparison recorded in the category.
	Global []model.Comparison
}

// CategoryProgress is the completion decision for one category.
type CategoryProgress struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	ItemCount  int    `json:"item_count"`
	Logged     int    `json:"logged"`
	Target     int    `json:"target"`
	Covered    bool   `json:"covered"`
	// Exhausted is set when no further selection is possible: every pair
	// was compared or the pool is too small.
	Exhausted bool `json:"exhausted"`
	Complete  bool `json:"complete"`
	// Threshold is evaluated only once the category is complete.
	Threshold   *stats.ThresholdResult `json:"threshold,omitempty"`
	CanContinue bool                   `json:"can_continue"`
}

// SessionProgress aggregates category decisions in display order.
type SessionProgress struct {
	Categories []CategoryProgress `json:"categories"`
	Complete   bool               `json:"complete"`
	// Current is the category the next selection should come from, empty
	// when the session has nothing left to show.
	Current string `json:"current,omitempty"`
}

// Orchestrator combines planner targets, coverage and publishability into
// completion decisions.
type Orchestrator struct {
	planner *Planner
}

// NewOrchestrator creates an orchestrator around planner. A nil planner uses
// the defaults.
func NewOrchestrator(planner *Planner) *Orchestrator {
	if planner == nil {
		planner = NewPlanner()
	}
	return &Orchestrator{planner: planner}
}

// Planner returns the planner used for targets.
func (o *Orchestrator) Planner() *Planner { return o.planner }

// Category evaluates one category. Coverage gates completion independently
// of the numeric target.
func (o *Orchestrator) Category(study model.Study, in CategoryInput) CategoryProgress {
	n := len(in.Items)
	cp := CategoryProgress{
		CategoryID: in.Category.ID,
		Name:       in.Category.Name,
		ItemCount:  n,
		Covered:    matchmaking.HasFullCoverage(in.Items, in.Session),
	}

	switch study.Mode {
	case model.ModeQuad:
		cp.Logged = distinctVotes(in.Session)
		cp.Target = o.planner.RecommendedQuads(n, study.ExpectedReviewers)
		cp.Exhausted = n < 4 || matchmaking.IsExhausted(in.Items, in.Session)
	default:
		cp.Logged = len(in.Session)
		cp.Target = o.planner.RecommendedComparisons(n, study.ExpectedReviewers)
		cp.Exhausted = n < 2 || matchmaking.IsExhausted(in.Items, in.Session)
	}

	cp.Complete = cp.Exhausted || (cp.Logged >= cp.Target && cp.Covered)
	if !cp.Complete {
		return cp
	}

	th := stats.IsPublishableThreshold(in.Items, in.Global, study.Thresholds)
	cp.Threshold = &th
	cp.CanContinue = study.AllowContinuedVoting && !cp.Exhausted && th.Status == stats.StatusInsufficient
	return cp
}

// Session evaluates every category in display order. A session that opted
// into continued voting stays open while some category can continue.
func (o *Orchestrator) Session(study model.Study, session model.Session, inputs []CategoryInput) SessionProgress {
	ordered := make([]CategoryInput, len(inputs))
	copy(ordered, inputs)
	sortInputs(ordered)

	sp := SessionProgress{Categories: make([]CategoryProgress, 0, len(ordered)), Complete: true}
	continuable := ""
	for _, in := range ordered {
		cp := o.Category(study, in)
		sp.Categories = append(sp.Categories, cp)
		if !cp.Complete {
			if sp.Complete {
				sp.Current = cp.CategoryID
			}
			sp.Complete = false
		}
		if cp.CanContinue && continuable == "" {
			continuable = cp.CategoryID
		}
	}

	if sp.Complete && session.ContinuedVoting && continuable != "" {
		sp.Complete = false
		sp.Current = continuable
	}
	return sp
}

func sortInputs(in []CategoryInput) {
	cats := make([]model.Category, len(in))
	byID := make(map[string]CategoryInput, len(in))
	for i, c := range in {
		cats[i] = c.Category
		byID[c.Category.ID] = c
	}
	model.SortCategories(cats)
	for i, c := range cats {
		in[i] = byID[c.ID]
	}
}

// distinctVotes counts quad votes; comparisons without a vote id count
// individually.
func distinctVotes(cs []model.Comparison) int {
	seen := make(map[string]struct{}, len(cs))
	n := 0
	for _, c := range cs {
		if c.VoteID == "" {
			n++
			continue
		}
		if _, ok := seen[c.VoteID]; !ok {
			seen[c.VoteID] = struct{}{}
			n++
		}
	}
	return n
}
